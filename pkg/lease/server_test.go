package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingSink) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func TestAllocateConfigIssuesAscendingUniqueAddresses(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	srv := NewServer(NewRegistry(), "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.5"}, 20*time.Second, "255.255.255.0", WithServerSink(sink))

	var got []string
	for i := 0; i < 5; i++ {
		cfg, ok := srv.AllocateConfig(ctx)
		require.True(t, ok, "allocation %d", i)
		got = append(got, cfg.Address())
	}
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}, got)

	cfg, ok := srv.AllocateConfig(ctx)
	assert.False(t, ok)
	assert.Nil(t, cfg)
	assert.Len(t, srv.Leases(), 5)

	evt, found := sink.last(EventExhausted)
	require.True(t, found)
	assert.Equal(t, LevelWarn, evt.Level)
	assert.Equal(t, "dhcp01", evt.Server)
	assert.Equal(t, 5, sink.count(EventAllocated))
	assert.Equal(t, 1, sink.count(EventServerCreated))
}

func TestAllocateConfigFields(t *testing.T) {
	srv := NewServer(NewRegistry(), "dhcp01", "192.168.0.254", Range{From: "192.168.0.1", To: "192.168.0.20"}, 20*time.Second, "255.255.255.0")

	cfg, ok := srv.AllocateConfig(context.Background())
	require.True(t, ok)
	assert.Equal(t, "192.168.0.1", cfg.Address())
	assert.Equal(t, "255.255.255.0", cfg.SubnetMask())
	assert.Equal(t, "dhcp01", cfg.Server())
	assert.Equal(t, 20*time.Second, cfg.LeaseTimeRemaining())
	assert.NotEqual(t, uuid.Nil, cfg.ID())
	gw, set := cfg.Gateway()
	assert.False(t, set)
	assert.Empty(t, gw)

	leases := srv.Leases()
	require.Len(t, leases, 1)
	assert.Same(t, cfg, leases[0])
}

func TestAllocateConfigNeverReusesExpiredAddresses(t *testing.T) {
	ctx := context.Background()
	srv := NewServer(NewRegistry(), "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.1"}, time.Second, "255.255.255.0")

	cfg, ok := srv.AllocateConfig(ctx)
	require.True(t, ok)
	cfg.consume(5 * time.Second)
	require.True(t, cfg.LeaseTimeRemaining() < 0)

	_, ok = srv.AllocateConfig(ctx)
	assert.False(t, ok)
}

func TestAllocateConfigRangeInvalid(t *testing.T) {
	tests := []struct {
		name string
		rng  Range
	}{
		{name: "reversed", rng: Range{From: "10.0.0.9", To: "10.0.0.1"}},
		{name: "malformed", rng: Range{From: "not-an-ip", To: "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			srv := NewServer(NewRegistry(), "dhcp01", "10.0.0.254", tt.rng, time.Second, "bogus-mask", WithServerSink(sink))

			cfg, ok := srv.AllocateConfig(context.Background())
			assert.False(t, ok)
			assert.Nil(t, cfg)
			assert.Empty(t, srv.Leases())

			evt, found := sink.last(EventRangeInvalid)
			require.True(t, found)
			assert.Equal(t, LevelWarn, evt.Level)
		})
	}
}

func TestAllocateConfigUsesExpander(t *testing.T) {
	var calls int
	expand := func(from, to string) ([]string, error) {
		calls++
		assert.Equal(t, "a", from)
		assert.Equal(t, "b", to)
		return []string{"x", "y"}, nil
	}
	srv := NewServer(NewRegistry(), "dhcp01", "z", Range{From: "a", To: "b"}, time.Second, "m", WithExpander(expand))

	first, ok := srv.AllocateConfig(context.Background())
	require.True(t, ok)
	second, ok := srv.AllocateConfig(context.Background())
	require.True(t, ok)
	assert.Equal(t, "x", first.Address())
	assert.Equal(t, "y", second.Address())
	assert.Equal(t, 2, calls)
}

func TestAllocateConfigExpanderError(t *testing.T) {
	srv := NewServer(NewRegistry(), "dhcp01", "z", Range{}, time.Second, "m", WithExpander(func(string, string) ([]string, error) {
		return nil, errors.New("boom")
	}))
	_, ok := srv.AllocateConfig(context.Background())
	assert.False(t, ok)
}

func TestAllocateConfigConcurrent(t *testing.T) {
	const (
		poolSize = 40
		workers  = 64
	)
	srv := NewServer(NewRegistry(), "dhcp01", "10.0.0.254", Range{From: "10.0.0.1", To: "10.0.0.40"}, time.Minute, "255.255.255.0")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg, ok := srv.AllocateConfig(context.Background())
			if !ok {
				return
			}
			mu.Lock()
			granted = append(granted, cfg.Address())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, granted, poolSize)
	seen := make(map[string]struct{}, len(granted))
	for _, addr := range granted {
		_, dup := seen[addr]
		require.False(t, dup, "address %s issued twice", addr)
		seen[addr] = struct{}{}
	}
}
