// Package sim builds a lease registry from configuration and drives it.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"leasesim/pkg/lease"
	"leasesim/services/leasesim/internal/config"
)

// Simulation owns the servers and clients created from one Config.
type Simulation struct {
	Registry *lease.Registry

	clients []*lease.Client
	once    sync.Once
}

// Options adjusts how clients are constructed; zero values use real time.
type Options struct {
	Sink      lease.Sink
	NewTicker func(time.Duration) lease.Ticker
}

// New registers every configured server, then every configured client. The
// clients' timers are bound to ctx.
func New(ctx context.Context, cfg config.Config, opts Options) (*Simulation, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	sink := opts.Sink
	if sink == nil {
		sink = lease.NopSink
	}

	reg := lease.NewRegistry()
	for _, s := range cfg.Servers {
		lease.NewServer(reg, s.Name, s.OwnIP, s.Range, s.LeaseTime, s.SubnetMask, lease.WithServerSink(sink))
	}

	sim := &Simulation{Registry: reg}
	for _, c := range cfg.Clients {
		sim.clients = append(sim.clients, lease.NewClient(ctx, reg, c.Name, c.CheckPeriod,
			lease.WithClientSink(sink),
			lease.WithTicker(opts.NewTicker),
		))
	}
	return sim, nil
}

// Start asks every client for its first configuration, in creation order.
func (s *Simulation) Start(ctx context.Context) {
	for _, c := range s.clients {
		c.RequestConfig(ctx)
	}
}

// Stop halts every client timer.
func (s *Simulation) Stop() {
	s.once.Do(func() {
		for _, c := range s.clients {
			c.Stop()
		}
	})
}
