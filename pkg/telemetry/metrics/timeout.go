package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/sentinel/pkg/config"
)

// TimeoutMetrics tracks slow-path execution under the timeout manager.
//
// Metrics:
//   - sentinel_timeouts_total: timeout events by operation class and reason
//   - sentinel_retries_total: retry attempts by operation class
//   - sentinel_inflight_operations: current in-flight slow-path operations
//   - sentinel_overload_rejections_total: requests rejected at the
//     concurrency ceiling
//   - sentinel_breaker_open: 1 when the evaluator circuit breaker is open
type TimeoutMetrics struct {
	timeoutsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec
	inflight      prometheus.Gauge
	overloadTotal prometheus.Counter
	breakerOpen   prometheus.Gauge
}

// NewTimeoutMetrics creates and registers timeout metrics.
func NewTimeoutMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *TimeoutMetrics {
	tm := &TimeoutMetrics{
		timeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "timeouts_total",
				Help:      "Total number of timeout events by operation class and reason",
			},
			[]string{"class", "reason"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retries_total",
				Help:      "Total number of slow-path retry attempts by operation class",
			},
			[]string{"class"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "inflight_operations",
			Help:      "Current number of in-flight slow-path operations",
		}),
		overloadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "overload_rejections_total",
			Help:      "Total number of requests rejected at the concurrency ceiling",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "breaker_open",
			Help:      "Whether the slow-evaluator circuit breaker is open (1) or closed (0)",
		}),
	}

	registry.MustRegister(tm.timeoutsTotal, tm.retriesTotal, tm.inflight, tm.overloadTotal, tm.breakerOpen)
	return tm
}

// RecordTimeout records one timeout event for the class.
func (tm *TimeoutMetrics) RecordTimeout(class, reason string) {
	tm.timeoutsTotal.WithLabelValues(class, reason).Inc()
}

// RecordRetry records one retry attempt for the class.
func (tm *TimeoutMetrics) RecordRetry(class string) {
	tm.retriesTotal.WithLabelValues(class).Inc()
}

// SetInflight updates the in-flight operations gauge.
func (tm *TimeoutMetrics) SetInflight(n int64) {
	tm.inflight.Set(float64(n))
}

// RecordOverload records one overload rejection.
func (tm *TimeoutMetrics) RecordOverload() {
	tm.overloadTotal.Inc()
}

// SetBreakerOpen records the breaker state.
func (tm *TimeoutMetrics) SetBreakerOpen(open bool) {
	if open {
		tm.breakerOpen.Set(1)
	} else {
		tm.breakerOpen.Set(0)
	}
}
