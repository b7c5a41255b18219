package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTicker hands each tick over an unbuffered channel, so a send only
// completes once the client loop has finished the previous firing.
type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case m.ch <- time.Now():
		case <-time.After(5 * time.Second):
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
}

func newManualClient(t *testing.T, reg *Registry, name string, period time.Duration, opts ...ClientOption) (*Client, *manualTicker) {
	t.Helper()
	tk := &manualTicker{ch: make(chan time.Time)}
	opts = append(opts, WithTicker(func(d time.Duration) Ticker {
		assert.Equal(t, period, d)
		return tk
	}))
	c := NewClient(context.Background(), reg, name, period, opts...)
	t.Cleanup(c.Stop)
	return c, tk
}

func TestRequestConfigNoServer(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry()
	c, _ := newManualClient(t, reg, "client01", 3*time.Second, WithClientSink(sink))

	require.NotPanics(t, func() { c.RequestConfig(context.Background()) })
	assert.Nil(t, c.CurrentConfig())

	evt, found := sink.last(EventNoServer)
	require.True(t, found)
	assert.Equal(t, LevelWarn, evt.Level)
	assert.Equal(t, "client01", evt.Client)
}

func TestRequestConfigUsesFirstServerOnly(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	first := NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.1"}, 20*time.Second, "255.255.255.0")
	second := NewServer(reg, "dhcp02", "10.0.1.254", Range{From: "10.0.1.1", To: "10.0.1.9"}, 20*time.Second, "255.255.255.0")

	a, _ := newManualClient(t, reg, "a", 3*time.Second)
	b, _ := newManualClient(t, reg, "b", 3*time.Second)

	a.RequestConfig(ctx)
	require.NotNil(t, a.CurrentConfig())
	assert.Equal(t, "dhcp01", a.CurrentConfig().Server())

	b.RequestConfig(ctx)
	assert.Nil(t, b.CurrentConfig(), "no fallback to the second server")
	assert.Len(t, first.Leases(), 1)
	assert.Empty(t, second.Leases())
}

func TestCheckLeaseUnconfiguredIsNoop(t *testing.T) {
	sink := &recordingSink{}
	reg := NewRegistry()
	NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.2"}, 20*time.Second, "255.255.255.0")
	c, _ := newManualClient(t, reg, "client01", 3*time.Second, WithClientSink(sink))

	c.checkLease(context.Background())
	assert.Nil(t, c.CurrentConfig())
	assert.Zero(t, sink.count(EventLeaseCheck))
	assert.Zero(t, sink.count(EventRequesting))
}

func TestCheckLeaseDecrementsByPeriod(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.2"}, 20*time.Second, "255.255.255.0")
	c, _ := newManualClient(t, reg, "client01", 3*time.Second)

	c.RequestConfig(ctx)
	cfg := c.CurrentConfig()
	require.NotNil(t, cfg)

	prev := cfg.LeaseTimeRemaining()
	for i := 0; i < 6; i++ {
		c.checkLease(ctx)
		require.Same(t, cfg, c.CurrentConfig())
		assert.Equal(t, prev-3*time.Second, cfg.LeaseTimeRemaining())
		prev = cfg.LeaseTimeRemaining()
	}
	assert.Equal(t, 2*time.Second, prev)
}

func TestCheckLeaseRenewsAfterExactMultiple(t *testing.T) {
	const (
		leaseTime = 12 * time.Second
		period    = 3 * time.Second
	)
	ctx := context.Background()
	sink := &recordingSink{}
	reg := NewRegistry()
	NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.9"}, leaseTime, "255.255.255.0")
	c, _ := newManualClient(t, reg, "client01", period, WithClientSink(sink))

	c.RequestConfig(ctx)
	initial := c.CurrentConfig()
	require.NotNil(t, initial)

	for i := 0; i < int(leaseTime/period)-1; i++ {
		c.checkLease(ctx)
	}
	assert.Same(t, initial, c.CurrentConfig())
	assert.Equal(t, 1, sink.count(EventRequesting))

	c.checkLease(ctx)
	assert.Equal(t, 2, sink.count(EventRequesting))
	assert.Equal(t, 1, sink.count(EventLeaseExpired))
	assert.Zero(t, initial.LeaseTimeRemaining())

	renewed := c.CurrentConfig()
	require.NotSame(t, initial, renewed)
	assert.Equal(t, leaseTime, renewed.LeaseTimeRemaining())
	assert.Equal(t, "10.0.0.2", renewed.Address())
}

func TestRenewalFailureKeepsExpiredConfig(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	reg := NewRegistry()
	NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.1"}, 6*time.Second, "255.255.255.0", WithServerSink(sink))
	c, _ := newManualClient(t, reg, "client01", 3*time.Second, WithClientSink(sink))

	c.RequestConfig(ctx)
	cfg := c.CurrentConfig()
	require.NotNil(t, cfg)

	c.checkLease(ctx)
	c.checkLease(ctx)
	assert.Same(t, cfg, c.CurrentConfig())
	assert.Zero(t, cfg.LeaseTimeRemaining())
	assert.Equal(t, 1, sink.count(EventExhausted))

	c.checkLease(ctx)
	assert.Same(t, cfg, c.CurrentConfig())
	assert.Equal(t, -3*time.Second, cfg.LeaseTimeRemaining())
	assert.Equal(t, "10.0.0.1", cfg.Address())
	assert.Equal(t, 2, sink.count(EventExhausted))
}

func TestClientTimerRenewsOntoNextAddress(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	srv := NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.2"}, 20*time.Second, "255.255.255.0")
	c, tk := newManualClient(t, reg, "client01", 3*time.Second)

	c.RequestConfig(ctx)
	first := c.CurrentConfig()
	require.NotNil(t, first)
	assert.Equal(t, "10.0.0.1", first.Address())
	assert.Equal(t, 20*time.Second, first.LeaseTimeRemaining())

	tk.tick(t, 7)
	c.Stop()

	renewed := c.CurrentConfig()
	require.NotNil(t, renewed)
	assert.Equal(t, "10.0.0.2", renewed.Address())
	assert.Equal(t, 20*time.Second, renewed.LeaseTimeRemaining())
	assert.Equal(t, -1*time.Second, first.LeaseTimeRemaining())
	assert.Len(t, srv.Leases(), 2)
}

func TestClientStop(t *testing.T) {
	reg := NewRegistry()
	c, tk := newManualClient(t, reg, "client01", time.Second)

	c.Stop()
	c.Stop()

	select {
	case tk.ch <- time.Now():
		t.Fatal("tick delivered after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClientStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(ctx, NewRegistry(), "client01", time.Hour)
	cancel()

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatal("client loop did not exit after cancel")
	}
	c.Stop()
}

func TestClientWithTimeTicker(t *testing.T) {
	reg := NewRegistry()
	NewServer(reg, "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.50"}, 30*time.Millisecond, "255.255.255.0")
	c := NewClient(context.Background(), reg, "client01", 10*time.Millisecond)
	t.Cleanup(c.Stop)

	c.RequestConfig(context.Background())
	require.NotNil(t, c.CurrentConfig())

	require.Eventually(t, func() bool {
		cfg := c.CurrentConfig()
		return cfg != nil && cfg.Address() != "10.0.0.1"
	}, 5*time.Second, 5*time.Millisecond)
}
