package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/sentinel/pkg/config"
)

// Collector owns the Prometheus registry and all Sentinel metric groups.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decision *DecisionMetrics
	cache    *CacheMetrics
	timeout  *TimeoutMetrics
}

// NewCollector creates a metrics collector with the specified configuration
// and registry. If registry is nil a fresh registry (with Go runtime and
// process collectors) is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		defaults := config.NewDefaultConfig()
		cfg = &defaults.Telemetry.Metrics
	}

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		decision: NewDecisionMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		timeout:  NewTimeoutMetrics(cfg, registry),
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Decision returns the decision metric group. Safe on a nil collector,
// so assembly code with metrics disabled can pass the groups through
// unconditionally.
func (c *Collector) Decision() *DecisionMetrics {
	if c == nil {
		return nil
	}
	return c.decision
}

// Cache returns the cache metric group. Safe on a nil collector.
func (c *Collector) Cache() *CacheMetrics {
	if c == nil {
		return nil
	}
	return c.cache
}

// Timeout returns the timeout metric group. Safe on a nil collector.
func (c *Collector) Timeout() *TimeoutMetrics {
	if c == nil {
		return nil
	}
	return c.timeout
}
