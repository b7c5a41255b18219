package lease

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Range is the textual from/to pair a server hands to its Expander.
type Range struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Expander enumerates every address between from and to inclusive.
type Expander func(from, to string) ([]string, error)

// IPConfig is the network configuration granted to a client. Only the
// remaining lease time changes after issue.
type IPConfig struct {
	id         uuid.UUID
	server     string
	address    string
	subnetMask string
	remaining  atomic.Int64
}

func newIPConfig(server, address, mask string, leaseTime time.Duration) *IPConfig {
	cfg := &IPConfig{
		id:         uuid.New(),
		server:     server,
		address:    address,
		subnetMask: mask,
	}
	cfg.remaining.Store(int64(leaseTime))
	return cfg
}

func (c *IPConfig) ID() uuid.UUID      { return c.id }
func (c *IPConfig) Server() string     { return c.server }
func (c *IPConfig) Address() string    { return c.address }
func (c *IPConfig) SubnetMask() string { return c.subnetMask }

// Gateway is never populated; ok is always false.
func (c *IPConfig) Gateway() (gateway string, ok bool) { return "", false }

// LeaseTimeRemaining may be zero or negative once the lease has expired.
func (c *IPConfig) LeaseTimeRemaining() time.Duration {
	return time.Duration(c.remaining.Load())
}

func (c *IPConfig) consume(d time.Duration) time.Duration {
	return time.Duration(c.remaining.Add(-int64(d)))
}

// EventKind names a lifecycle event reported to a Sink.
type EventKind string

const (
	EventServerCreated EventKind = "server_created"
	EventClientCreated EventKind = "client_created"
	EventAllocated     EventKind = "allocated"
	EventExhausted     EventKind = "exhausted"
	EventRangeInvalid  EventKind = "range_invalid"
	EventRequesting    EventKind = "requesting"
	EventNoServer      EventKind = "no_server"
	EventConfigured    EventKind = "configured"
	EventLeaseCheck    EventKind = "lease_check"
	EventLeaseExpired  EventKind = "lease_expired"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

// Event is a human-readable report of something the core did.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Level     string        `json:"level"`
	Server    string        `json:"server,omitempty"`
	Client    string        `json:"client,omitempty"`
	Address   string        `json:"address,omitempty"`
	LeaseID   uuid.UUID     `json:"lease_id"`
	Remaining time.Duration `json:"remaining"`
	Message   string        `json:"msg"`
	At        time.Time     `json:"at"`
}

// Sink receives events. Implementations must not block for long; the core
// ignores anything a sink does with an event.
type Sink interface {
	Emit(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event)

func (f SinkFunc) Emit(ctx context.Context, evt Event) { f(ctx, evt) }

// NopSink discards every event.
var NopSink Sink = SinkFunc(func(context.Context, Event) {})

func emit(ctx context.Context, sink Sink, evt Event) {
	if evt.Level == "" {
		evt.Level = LevelInfo
	}
	evt.At = time.Now().UTC()
	sink.Emit(ctx, evt)
}

// Ticker delivers the periodic firings that drive a client's lease check.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the default Ticker backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}
