// Package metrics provides Prometheus metrics for the Sentinel decision
// engine.
//
// The Collector owns a prometheus.Registry and three metric groups:
//
//   - DecisionMetrics: per-request counters and latency histograms keyed by
//     pipeline source and verdict.
//   - CacheMetrics: decision-cache hits, misses, entry counts, evictions,
//     expirations, and invalidations.
//   - TimeoutMetrics: slow-path timeouts grouped by operation class and
//     reason, retries, in-flight gauge, and overload rejections.
//
// All metrics use the configured namespace (default "sentinel").
package metrics
