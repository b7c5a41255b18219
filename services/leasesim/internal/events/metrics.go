package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"leasesim/pkg/lease"
)

// MetricsSink turns events into prometheus series.
type MetricsSink struct {
	EventsTotal      *prometheus.CounterVec // kind
	AllocationsTotal *prometheus.CounterVec // server, result=allocated|exhausted|range_invalid
	LeaseRemaining   *prometheus.GaugeVec   // client
}

// NewMetricsSink creates the collectors and registers them on reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	m := &MetricsSink{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leasesim_events_total",
				Help: "Total lease lifecycle events by kind",
			},
			[]string{"kind"},
		),
		AllocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leasesim_allocations_total",
				Help: "Total allocation attempts by server and result",
			},
			[]string{"server", "result"},
		),
		LeaseRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leasesim_lease_remaining_seconds",
				Help: "Remaining lease time of each client's current configuration",
			},
			[]string{"client"},
		),
	}

	for _, c := range []prometheus.Collector{m.EventsTotal, m.AllocationsTotal, m.LeaseRemaining} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsSink) Emit(_ context.Context, evt lease.Event) {
	m.EventsTotal.WithLabelValues(string(evt.Kind)).Inc()

	switch evt.Kind {
	case lease.EventAllocated, lease.EventExhausted, lease.EventRangeInvalid:
		m.AllocationsTotal.WithLabelValues(evt.Server, string(evt.Kind)).Inc()
	case lease.EventConfigured, lease.EventLeaseCheck:
		m.LeaseRemaining.WithLabelValues(evt.Client).Set(evt.Remaining.Seconds())
	}
}
