// Package metrics exposes Prometheus instrumentation for the grid
// subsystem. Registration is per-instance so tests can use isolated
// registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the grid's Prometheus collectors.
type Metrics struct {
	TickDuration   prometheus.Histogram
	Networks       prometheus.Gauge
	Nodes          prometheus.Gauge
	PoweredRatio   prometheus.Gauge
	BudgetOverruns prometheus.Counter
	EventsDropped  prometheus.Counter
	InvalidEvents  prometheus.Counter
}

// New creates and registers the grid collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridworks_tick_duration_seconds",
			Help:    "Wall time spent per simulation tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Networks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridworks_networks",
			Help: "Number of live resource networks.",
		}),
		Nodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridworks_nodes",
			Help: "Number of placed grid nodes.",
		}),
		PoweredRatio: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gridworks_powered_ratio",
			Help: "Fraction of consumers currently powered.",
		}),
		BudgetOverruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridworks_budget_overruns_total",
			Help: "Ticks whose recompute exceeded the configured budget.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridworks_events_dropped_total",
			Help: "Notifications dropped by the re-entrancy depth guard.",
		}),
		InvalidEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridworks_invalid_events_total",
			Help: "Inbound events dropped for referencing unknown nodes.",
		}),
	}
}
