package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/sentinel/pkg/config"
)

// CacheMetrics tracks decision-cache performance.
//
// Metrics:
//   - sentinel_cache_hits_total / sentinel_cache_misses_total
//   - sentinel_cache_entries: current in-memory entry count
//   - sentinel_cache_evictions_total: evictions by policy
//   - sentinel_cache_expired_total / sentinel_cache_invalidated_total
//   - sentinel_cache_put_failures_total: rolled-back inserts after a
//     persistence failure
type CacheMetrics struct {
	hitsTotal        prometheus.Counter
	missesTotal      prometheus.Counter
	entries          prometheus.Gauge
	evictionsTotal   *prometheus.CounterVec
	expiredTotal     prometheus.Counter
	invalidatedTotal prometheus.Counter
	putFailuresTotal prometheus.Counter
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of decision cache hits",
		}),
		missesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of decision cache misses",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_entries",
			Help:      "Current number of entries in the decision cache",
		}),
		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_evictions_total",
				Help:      "Total number of cache evictions by policy",
			},
			[]string{"policy"},
		),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_expired_total",
			Help:      "Total number of cache entries removed after TTL expiry",
		}),
		invalidatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_invalidated_total",
			Help:      "Total number of cache entries removed by invalidation",
		}),
		putFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_put_failures_total",
			Help:      "Total number of cache inserts rolled back after a persistence failure",
		}),
	}

	registry.MustRegister(
		cm.hitsTotal, cm.missesTotal, cm.entries, cm.evictionsTotal,
		cm.expiredTotal, cm.invalidatedTotal, cm.putFailuresTotal,
	)
	return cm
}

// RecordHit records a cache hit.
func (cm *CacheMetrics) RecordHit() { cm.hitsTotal.Inc() }

// RecordMiss records a cache miss.
func (cm *CacheMetrics) RecordMiss() { cm.missesTotal.Inc() }

// SetEntries updates the current entry count gauge.
func (cm *CacheMetrics) SetEntries(n int) { cm.entries.Set(float64(n)) }

// RecordEvictions records n evictions under the named policy.
func (cm *CacheMetrics) RecordEvictions(policy string, n int) {
	cm.evictionsTotal.WithLabelValues(policy).Add(float64(n))
}

// RecordExpired records n TTL expirations.
func (cm *CacheMetrics) RecordExpired(n int) { cm.expiredTotal.Add(float64(n)) }

// RecordInvalidated records n invalidated entries.
func (cm *CacheMetrics) RecordInvalidated(n int) { cm.invalidatedTotal.Add(float64(n)) }

// RecordPutFailure records a rolled-back insert.
func (cm *CacheMetrics) RecordPutFailure() { cm.putFailuresTotal.Inc() }
