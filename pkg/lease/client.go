package lease

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Client holds at most one IPConfig and re-requests a fresh one from the
// registry's first server whenever its lease runs out.
type Client struct {
	name   string
	period time.Duration
	reg    *Registry
	sink   Sink

	newTicker func(time.Duration) Ticker

	mu     sync.Mutex
	config *IPConfig

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// ClientOption customises a Client at construction.
type ClientOption func(*Client)

// WithTicker replaces NewTimeTicker, e.g. to drive the client from simulated time.
func WithTicker(fn func(time.Duration) Ticker) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

// WithClientSink sets where the client reports events.
func WithClientSink(sink Sink) ClientOption {
	return func(c *Client) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// NewClient registers a client with reg and starts its lease timer, which
// fires every period until ctx is cancelled or Stop is called. The client
// starts unconfigured; call RequestConfig to obtain the first lease. With
// the default ticker, period must be positive.
func NewClient(ctx context.Context, reg *Registry, name string, period time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		name:      name,
		period:    period,
		reg:       reg,
		sink:      NopSink,
		newTicker: NewTimeTicker,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	ticker := c.newTicker(period)
	go c.run(runCtx, ticker)

	reg.addClient(c)
	emit(ctx, c.sink, Event{
		Kind:    EventClientCreated,
		Client:  name,
		Message: fmt.Sprintf("created client %s", name),
	})
	return c
}

func (c *Client) Name() string          { return c.name }
func (c *Client) Period() time.Duration { return c.period }

// CurrentConfig returns the held configuration, or nil before the first
// successful request.
func (c *Client) CurrentConfig() *IPConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Stop halts the lease timer and waits for any in-flight check to finish.
func (c *Client) Stop() {
	c.stopOnce.Do(c.cancel)
	<-c.done
}

func (c *Client) run(ctx context.Context, ticker Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.checkLease(ctx)
		}
	}
}

// RequestConfig asks the first registered server for a configuration. On
// success it replaces the held one; otherwise the client keeps whatever it
// had, even an expired lease.
func (c *Client) RequestConfig(ctx context.Context) {
	srv, ok := c.reg.FirstServer()
	if !ok {
		emit(ctx, c.sink, Event{
			Kind:    EventNoServer,
			Level:   LevelWarn,
			Client:  c.name,
			Message: "no lease server found in the network",
		})
		return
	}

	emit(ctx, c.sink, Event{
		Kind:    EventRequesting,
		Client:  c.name,
		Server:  srv.name,
		Message: fmt.Sprintf("requesting network configuration from server %s", srv.name),
	})

	cfg, ok := srv.AllocateConfig(ctx)
	if !ok {
		return
	}

	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()

	emit(ctx, c.sink, Event{
		Kind:      EventConfigured,
		Client:    c.name,
		Server:    srv.name,
		Address:   cfg.address,
		LeaseID:   cfg.id,
		Remaining: cfg.LeaseTimeRemaining(),
		Message:   fmt.Sprintf("received new ip configuration. ip: %s", cfg.address),
	})
}

func (c *Client) checkLease(ctx context.Context) {
	cfg := c.CurrentConfig()
	if cfg == nil {
		return
	}

	remaining := cfg.consume(c.period)
	emit(ctx, c.sink, Event{
		Kind:      EventLeaseCheck,
		Client:    c.name,
		Address:   cfg.address,
		LeaseID:   cfg.id,
		Remaining: remaining,
		Message:   fmt.Sprintf("checking lease time: %s remaining", remaining),
	})
	if remaining > 0 {
		return
	}

	emit(ctx, c.sink, Event{
		Kind:      EventLeaseExpired,
		Client:    c.name,
		Address:   cfg.address,
		LeaseID:   cfg.id,
		Remaining: remaining,
		Message:   "lease time expired, requesting new ip configuration",
	})
	c.RequestConfig(ctx)
}
