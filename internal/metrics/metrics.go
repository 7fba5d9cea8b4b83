// Package metrics exposes Prometheus collectors for inspection, proposals,
// and merge attempts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lanes"

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	inspectionDuration prometheus.Histogram
	mergeAttempts      *prometheus.CounterVec
	proposals          prometheus.Counter
	laneRiskTier       *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		inspectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspection_duration_seconds",
			Help:      "Time to inspect every lane of a run",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		mergeAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_attempts_total",
			Help:      "Lane merge attempts by method and outcome",
		}, []string{"method", "outcome"}),
		proposals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_generated_total",
			Help:      "Merge proposals generated",
		}),
		laneRiskTier: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lane_risk_tier",
			Help:      "Lanes per risk tier in the most recent proposal",
		}, []string{"tier"}),
	}
}

// ObserveInspection records how long an inspection took.
func (m *Metrics) ObserveInspection(d time.Duration) {
	if m == nil {
		return
	}
	m.inspectionDuration.Observe(d.Seconds())
}

// MergeAttempt counts one lane merge attempt.
func (m *Metrics) MergeAttempt(method, outcome string) {
	if m == nil {
		return
	}
	m.mergeAttempts.WithLabelValues(method, outcome).Inc()
}

// ProposalGenerated counts a proposal and replaces the per-tier lane gauge.
func (m *Metrics) ProposalGenerated(tiers map[string]int) {
	if m == nil {
		return
	}
	m.proposals.Inc()
	m.laneRiskTier.Reset()
	for tier, n := range tiers {
		m.laneRiskTier.WithLabelValues(tier).Set(float64(n))
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
