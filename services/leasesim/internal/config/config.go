package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"leasesim/pkg/lease"
)

const (
	DefaultHTTPAddr      = ":8080"
	DefaultSubjectPrefix = "leasesim.events"
	DefaultStream        = "LEASESIM_EVENTS"
)

// Default mirrors the stock example: one server handing out
// 192.168.0.1-192.168.0.20 for 20s and one client checking every 3s.
func Default() Config {
	return Config{
		Servers: []ServerConfig{{
			Name:       "dhcp01",
			OwnIP:      "192.168.0.254",
			Range:      lease.Range{From: "192.168.0.1", To: "192.168.0.20"},
			LeaseTime:  20 * time.Second,
			SubnetMask: "255.255.255.0",
		}},
		Clients: []ClientConfig{{
			Name:        "client01",
			CheckPeriod: 3 * time.Second,
		}},
		HTTP: HTTPConfig{Enabled: true, Addr: DefaultHTTPAddr},
		NATS: NATSConfig{SubjectPrefix: DefaultSubjectPrefix, Stream: DefaultStream},
	}
}

// Load reads the YAML file at path (or $LEASESIM_CONFIG when path is empty),
// falls back to Default when neither is set, then applies environment
// overrides. Ranges and masks are passed through unchecked.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("LEASESIM_CONFIG")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.HTTP.Enabled = getEnvBool("LEASESIM_ENABLE_HTTP", cfg.HTTP.Enabled)
	cfg.HTTP.Addr = getEnv("LEASESIM_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.NATS.URL = getEnv("LEASESIM_NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("LEASESIM_NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
	cfg.NATS.Stream = getEnv("LEASESIM_NATS_STREAM", cfg.NATS.Stream)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes a YAML document. Sections left out of the document keep
// their defaults; the server and client lists replace the defaults whenever
// the document mentions them.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = DefaultStream
	}
	return cfg, nil
}

// Validate checks names and durations only.
func (c Config) Validate() error {
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d]: name is required", i)
		}
		if s.LeaseTime <= 0 {
			return fmt.Errorf("server %s: lease_time must be positive", s.Name)
		}
	}
	for i, cl := range c.Clients {
		if cl.Name == "" {
			return fmt.Errorf("clients[%d]: name is required", i)
		}
		if cl.CheckPeriod <= 0 {
			return fmt.Errorf("client %s: check_period must be positive", cl.Name)
		}
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
