// Package events provides lease.Sink implementations for logging, metrics
// and the NATS event stream.
package events

import (
	"context"
	"log"

	"leasesim/pkg/lease"
)

// LogSink writes each event as a level-prefixed line, which the telemetry
// JSON writer turns into the level field.
type LogSink struct {
	logger *log.Logger
}

func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, evt lease.Event) {
	level := evt.Level
	if level == "" {
		level = lease.LevelInfo
	}
	subject := evt.Client
	if subject == "" {
		subject = evt.Server
	}
	if subject == "" {
		s.logger.Printf("%s %s", level, evt.Message)
		return
	}
	s.logger.Printf("%s %s: %s", level, subject, evt.Message)
}

type multiSink []lease.Sink

func (m multiSink) Emit(ctx context.Context, evt lease.Event) {
	for _, s := range m {
		s.Emit(ctx, evt)
	}
}

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...lease.Sink) lease.Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
