package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/sentinel/pkg/config"
)

func newTestCollector() *Collector {
	cfg := &config.MetricsConfig{Enabled: true, Namespace: "sentinel"}
	return NewCollector(cfg, prometheus.NewRegistry())
}

func TestDecisionMetrics(t *testing.T) {
	c := newTestCollector()

	c.Decision().RecordDecision("cache_hit", "allow", time.Millisecond, false, false)
	c.Decision().RecordDecision("emergency_fallback", "block", 10*time.Millisecond, true, true)

	if got := testutil.ToFloat64(c.Decision().escalationsTotal); got != 1 {
		t.Errorf("Expected 1 escalation, got %v", got)
	}
	if got := testutil.ToFloat64(c.Decision().fallbackTotal); got != 1 {
		t.Errorf("Expected 1 fallback decision, got %v", got)
	}
	if got := testutil.ToFloat64(c.Decision().decisionsTotal.WithLabelValues("cache_hit", "allow")); got != 1 {
		t.Errorf("Expected 1 cache_hit/allow decision, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	c := newTestCollector()

	c.Cache().RecordHit()
	c.Cache().RecordHit()
	c.Cache().RecordMiss()
	c.Cache().SetEntries(7)
	c.Cache().RecordEvictions("lru", 3)
	c.Cache().RecordPutFailure()

	if got := testutil.ToFloat64(c.Cache().hitsTotal); got != 2 {
		t.Errorf("Expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.Cache().entries); got != 7 {
		t.Errorf("Expected 7 entries, got %v", got)
	}
	if got := testutil.ToFloat64(c.Cache().evictionsTotal.WithLabelValues("lru")); got != 3 {
		t.Errorf("Expected 3 lru evictions, got %v", got)
	}
}

func TestTimeoutMetrics(t *testing.T) {
	c := newTestCollector()

	c.Timeout().RecordTimeout("system_command", "deadline_exceeded")
	c.Timeout().RecordRetry("system_command")
	c.Timeout().SetInflight(4)
	c.Timeout().RecordOverload()
	c.Timeout().SetBreakerOpen(true)

	if got := testutil.ToFloat64(c.Timeout().inflight); got != 4 {
		t.Errorf("Expected 4 in-flight, got %v", got)
	}
	if got := testutil.ToFloat64(c.Timeout().breakerOpen); got != 1 {
		t.Errorf("Expected breaker open gauge 1, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	c := newTestCollector()
	c.Decision().RecordDecision("rule_based_fast", "block", time.Millisecond, false, false)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sentinel_decisions_total") {
		t.Error("Expected sentinel_decisions_total in exposition output")
	}
}
