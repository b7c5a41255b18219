package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"leasesim/pkg/bus"
	"leasesim/pkg/iprange"
	"leasesim/pkg/lease"
	"leasesim/pkg/telemetry"
	"leasesim/services/leasesim/internal/config"
	"leasesim/services/leasesim/internal/events"
	"leasesim/services/leasesim/internal/sim"
	"leasesim/services/leasesim/internal/statushttp"
)

const serviceName = "leasesim"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "In-process DHCP-style lease simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newExpandCommand())
	cmd.AddCommand(newWatchCommand())
	return cmd
}

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the configured lease servers and clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file (defaults to $LEASESIM_CONFIG, then the built-in example)")
	return cmd
}

func newExpandCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "expand FROM TO",
		Short: "Print every address in an inclusive IPv4 range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return expand(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func expand(out io.Writer, from, to string) error {
	addrs, err := iprange.Expand(from, to)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if _, err := fmt.Fprintln(out, a); err != nil {
			return err
		}
	}
	return nil
}

func newWatchCommand() *cobra.Command {
	var (
		natsURL string
		subject string
		durable string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print lease events published on NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd.OutOrStdout(), natsURL, subject, durable)
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", os.Getenv("LEASESIM_NATS_URL"), "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", config.DefaultSubjectPrefix+".>", "Subject to subscribe to")
	cmd.Flags().StringVar(&durable, "durable", "leasesim-watch", "Durable consumer name")
	return cmd
}

func watch(ctx context.Context, out io.Writer, natsURL, subject, durable string) error {
	if natsURL == "" {
		return errors.New("--nats or LEASESIM_NATS_URL is required")
	}
	b, err := bus.New(natsURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer b.Close()

	sub, err := b.Subscribe(ctx, subject, durable, func(_ context.Context, data []byte) error {
		_, err := fmt.Fprintln(out, string(data))
		return err
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Close()

	<-ctx.Done()
	return nil
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	metrics, err := events.NewMetricsSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	sinks := []lease.Sink{events.NewLogSink(logger), metrics}

	if cfg.NATS.URL != "" {
		b, err := connectBus(cfg.NATS)
		if err != nil {
			return err
		}
		defer b.Close()
		sinks = append(sinks, events.NewBusSink(b, cfg.NATS.SubjectPrefix, logger))
		logger.Printf("INFO publishing lease events to %s.*", cfg.NATS.SubjectPrefix)
	}

	simulation, err := sim.New(ctx, cfg, sim.Options{Sink: events.Multi(sinks...)})
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	defer simulation.Stop()

	var ready atomic.Bool
	errCh := make(chan error, 1)

	if cfg.HTTP.Enabled {
		server, err := newStatusServer(cfg.HTTP, simulation.Registry, &ready, middleware)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
			}
		}()

		logger.Printf("INFO http listening on %s", server.Addr)

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	simulation.Start(ctx)
	ready.Store(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Printf("INFO shutting down")
		return nil
	}
}

func connectBus(cfg config.NATSConfig) (*bus.Bus, error) {
	b, err := bus.New(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	if err := b.EnsureStream(cfg.Stream, cfg.SubjectPrefix+".>"); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func newStatusServer(cfg config.HTTPConfig, reg *lease.Registry, ready *atomic.Bool, middleware func(http.Handler) http.Handler) (*http.Server, error) {
	handler, err := statushttp.Routes(reg, ready, prometheus.DefaultGatherer)
	if err != nil {
		return nil, fmt.Errorf("build status routes: %w", err)
	}
	if middleware != nil {
		handler = middleware(handler)
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
