package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/sentinel/pkg/config"
)

// DecisionMetrics tracks pipeline-level decision metrics.
//
// Metrics:
//   - sentinel_decisions_total: decisions by pipeline source and verdict
//   - sentinel_decision_duration_seconds: end-to-end latency by source
//   - sentinel_escalations_total: decisions flagged for human review
//   - sentinel_fallback_decisions_total: decisions produced by a fallback path
type DecisionMetrics struct {
	decisionsTotal   *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	escalationsTotal prometheus.Counter
	fallbackTotal    prometheus.Counter
}

// NewDecisionMetrics creates and registers decision metrics.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of terminal decisions by source and verdict",
			},
			[]string{"source", "verdict"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "End-to-end decision latency by source",
				// Fast path lands in the sub-millisecond buckets; the slow
				// path is bounded by per-class timeouts up to ~15s.
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"source"},
		),
		escalationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "escalations_total",
				Help:      "Total number of decisions escalated for human review",
			},
		),
		fallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "fallback_decisions_total",
				Help:      "Total number of decisions produced by a fallback path",
			},
		),
	}

	registry.MustRegister(dm.decisionsTotal, dm.duration, dm.escalationsTotal, dm.fallbackTotal)
	return dm
}

// RecordDecision records one terminal decision.
func (dm *DecisionMetrics) RecordDecision(source, verdict string, duration time.Duration, escalated, fallback bool) {
	dm.decisionsTotal.WithLabelValues(source, verdict).Inc()
	dm.duration.WithLabelValues(source).Observe(duration.Seconds())
	if escalated {
		dm.escalationsTotal.Inc()
	}
	if fallback {
		dm.fallbackTotal.Inc()
	}
}
