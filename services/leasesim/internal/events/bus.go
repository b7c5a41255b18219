package events

import (
	"context"
	"log"
	"strings"

	"leasesim/pkg/lease"
)

// Publisher is the slice of bus.Bus the sink needs.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// BusSink publishes every event as JSON on <prefix>.<kind>.
type BusSink struct {
	pub    Publisher
	prefix string
	logger *log.Logger
}

func NewBusSink(pub Publisher, prefix string, logger *log.Logger) *BusSink {
	if logger == nil {
		logger = log.Default()
	}
	return &BusSink{pub: pub, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject an event of kind is published on.
func (s *BusSink) Subject(kind lease.EventKind) string {
	return s.prefix + "." + string(kind)
}

func (s *BusSink) Emit(ctx context.Context, evt lease.Event) {
	if err := s.pub.Publish(ctx, s.Subject(evt.Kind), evt); err != nil {
		s.logger.Printf("ERROR publish %s event: %v", evt.Kind, err)
	}
}
