// Package metrics exposes the daemon's reconcile instrumentation as
// prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the reconcile-cycle collectors.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	RulesetSize   prometheus.Gauge
}

// New registers the collectors on the registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxfw",
			Name:      "reconcile_cycles_total",
			Help:      "Reconcile cycles by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proxfw",
			Name:      "reconcile_duration_seconds",
			Help:      "Wall time of one compile-and-apply cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		RulesetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxfw",
			Name:      "ruleset_commands",
			Help:      "Command count of the last applied ruleset.",
		}),
	}

	registry.MustRegister(m.CyclesTotal, m.CycleDuration, m.RulesetSize)

	return m
}
