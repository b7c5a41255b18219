package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"leasesim/pkg/iprange"
)

const tracerName = "leasesim/pkg/lease"

// Server hands out addresses from a fixed range. Leases are never
// released: an address stays taken for the life of the server, so the pool
// only ever shrinks.
type Server struct {
	name      string
	ownIP     string
	ipRange   Range
	leaseTime time.Duration
	mask      string

	expand Expander
	sink   Sink
	tracer trace.Tracer

	mu     sync.Mutex
	leases []*IPConfig
	taken  map[string]struct{}
}

// ServerOption customises a Server at construction.
type ServerOption func(*Server)

// WithExpander replaces iprange.Expand.
func WithExpander(fn Expander) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.expand = fn
		}
	}
}

// WithServerSink sets where the server reports events.
func WithServerSink(sink Sink) ServerOption {
	return func(s *Server) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewServer creates a server and registers it with reg. The range and mask
// are taken as given; a bad range surfaces only when allocation is attempted.
func NewServer(reg *Registry, name, ownIP string, ipRange Range, leaseTime time.Duration, subnetMask string, opts ...ServerOption) *Server {
	s := &Server{
		name:      name,
		ownIP:     ownIP,
		ipRange:   ipRange,
		leaseTime: leaseTime,
		mask:      subnetMask,
		expand:    iprange.Expand,
		sink:      NopSink,
		tracer:    otel.Tracer(tracerName),
		taken:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	reg.addServer(s)
	emit(context.Background(), s.sink, Event{
		Kind:    EventServerCreated,
		Server:  name,
		Message: fmt.Sprintf("created lease server %s with address %s", name, ownIP),
	})
	return s
}

func (s *Server) Name() string             { return s.name }
func (s *Server) OwnAddress() string       { return s.ownIP }
func (s *Server) Range() Range             { return s.ipRange }
func (s *Server) SubnetMask() string       { return s.mask }
func (s *Server) LeaseTime() time.Duration { return s.leaseTime }

// Leases returns the issued leases in issue order.
func (s *Server) Leases() []*IPConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*IPConfig(nil), s.leases...)
}

// AllocateConfig issues a configuration for the lowest address in range that
// has never been leased. ok is false when the range is exhausted or cannot
// be expanded.
func (s *Server) AllocateConfig(ctx context.Context) (cfg *IPConfig, ok bool) {
	ctx, span := s.tracer.Start(ctx, "lease.allocate", trace.WithAttributes(
		attribute.String("lease.server", s.name),
	))
	defer span.End()

	cfg, err := s.assign()
	switch {
	case err != nil:
		span.SetAttributes(attribute.String("lease.result", "range_invalid"))
		emit(ctx, s.sink, Event{
			Kind:    EventRangeInvalid,
			Level:   LevelWarn,
			Server:  s.name,
			Message: fmt.Sprintf("cannot expand range %s-%s: %v", s.ipRange.From, s.ipRange.To, err),
		})
		return nil, false
	case cfg == nil:
		span.SetAttributes(attribute.String("lease.result", "exhausted"))
		emit(ctx, s.sink, Event{
			Kind:    EventExhausted,
			Level:   LevelWarn,
			Server:  s.name,
			Message: "there is no unused ip address",
		})
		return nil, false
	}

	span.SetAttributes(
		attribute.String("lease.result", "allocated"),
		attribute.String("lease.address", cfg.address),
	)
	emit(ctx, s.sink, Event{
		Kind:      EventAllocated,
		Server:    s.name,
		Address:   cfg.address,
		LeaseID:   cfg.id,
		Remaining: s.leaseTime,
		Message:   fmt.Sprintf("found unused ip: %s", cfg.address),
	})
	return cfg, true
}

// assign runs the expand-scan-append sequence as one critical section.
func (s *Server) assign() (*IPConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := s.expand(s.ipRange.From, s.ipRange.To)
	if err != nil {
		return nil, err
	}
	for _, ip := range candidates {
		if _, ok := s.taken[ip]; ok {
			continue
		}
		cfg := newIPConfig(s.name, ip, s.mask, s.leaseTime)
		s.leases = append(s.leases, cfg)
		s.taken[ip] = struct{}{}
		return cfg, nil
	}
	return nil, nil
}
