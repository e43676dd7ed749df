package timeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
	"mercator-hq/sentinel/pkg/telemetry/metrics"
)

// OperationFunc invokes the slow evaluator for one operation. It must
// honor ctx cancellation, but the manager bounds it even when it does
// not.
type OperationFunc func(ctx context.Context) (*decision.Decision, error)

// CacheLookup consults the decision cache during use_cache handling.
type CacheLookup func(ctx context.Context, operation string, parameters map[string]any, sessionID string) (*decision.Decision, bool)

// Manager wraps slow evaluator calls with per-class timeouts, retries,
// a concurrency ceiling, and default actions.
type Manager struct {
	configs       map[OperationClass]Config
	maxConcurrent int64
	inflight      atomic.Int64

	safeRules   []*compiledSafeDefault
	cacheLookup CacheLookup
	breaker     *gobreaker.CircuitBreaker

	metrics *metrics.TimeoutMetrics
	logger  *slog.Logger
}

// Options configures a Manager beyond its YAML config.
type Options struct {
	// CacheLookup serves use_cache default actions. Nil disables the
	// cache consult; use_cache then behaves like the safe default.
	CacheLookup CacheLookup

	// SafeRules overrides the built-in safe-default rule set.
	SafeRules []SafeDefaultRule

	Metrics *metrics.TimeoutMetrics
	Logger  *slog.Logger
}

// NewManager creates a timeout manager from configuration.
func NewManager(cfg *config.TimeoutsConfig, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "timeout")
	}

	rules := opts.SafeRules
	if rules == nil {
		rules = DefaultSafeRules()
	}
	compiled, err := compileSafeDefaults(rules)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		configs:       resolveClassConfigs(cfg.Classes),
		maxConcurrent: int64(cfg.MaxConcurrent),
		safeRules:     compiled,
		cacheLookup:   opts.CacheLookup,
		metrics:       opts.Metrics,
		logger:        logger,
	}

	if cfg.Breaker.Enabled {
		m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "slow-evaluator",
			Timeout: cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.Breaker.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("evaluator breaker state changed", "from", from.String(), "to", to.String())
				if m.metrics != nil {
					m.metrics.SetBreakerOpen(to == gobreaker.StateOpen)
				}
			},
		})
	}

	return m, nil
}

// ConfigFor returns the resolved configuration for an operation class.
// Unknown classes get the conservative block-on-timeout default.
func (m *Manager) ConfigFor(class OperationClass) Config {
	if cfg, ok := m.configs[class]; ok {
		return cfg
	}
	return conservativeConfig(class)
}

// Inflight returns the number of operations currently executing.
func (m *Manager) Inflight() int64 {
	return m.inflight.Load()
}

// errAttemptTimeout distinguishes a per-attempt deadline from the
// caller's context expiring.
var errAttemptTimeout = errors.New("evaluator attempt timed out")

// ExecuteWithTimeout runs fn under the class's timeout policy and
// always returns a decision, never an error: evaluator failures and
// timeouts resolve to the class's default action. Pass an empty class
// to classify the operation by keyword.
func (m *Manager) ExecuteWithTimeout(ctx context.Context, operation string, parameters map[string]any, sessionID string, fn OperationFunc, class OperationClass) *decision.Decision {
	start := time.Now()

	if class == "" {
		class = Classify(operation)
	}
	cfg := m.ConfigFor(class)

	// The ceiling rejects, never queues: a queued request would blow
	// the latency bound anyway, just later.
	n := m.inflight.Add(1)
	if m.metrics != nil {
		m.metrics.SetInflight(n)
	}
	defer func() {
		left := m.inflight.Add(-1)
		if m.metrics != nil {
			m.metrics.SetInflight(left)
		}
	}()

	if m.maxConcurrent > 0 && n > m.maxConcurrent {
		if m.metrics != nil {
			m.metrics.RecordOverload()
		}
		m.logger.Warn("slow path over capacity, rejecting",
			"operation", operation, "inflight", n, "max_concurrent", m.maxConcurrent)
		return m.overloadDecision(operation, sessionID, cfg, start)
	}

	d, retries, err := m.executeWithRetries(ctx, cfg, fn)
	if err == nil {
		d.ProcessingTime = time.Since(start)
		d.Operation = operation
		d.SessionID = sessionID
		if d.RequestID == "" {
			d.RequestID = uuid.NewString()
		}
		if retries > 0 {
			d.Source = decision.SourceEvaluatorRetry
		} else {
			d.Source = decision.SourceEvaluatorComplete
		}
		if cfg.MonitoringRequired {
			d.RequiresMonitoring = true
		}
		return d
	}

	if isTimeout(err) {
		return m.handleTimeout(ctx, operation, parameters, sessionID, cfg, retries, start)
	}
	return m.handleExecutionError(operation, sessionID, cfg, err, start)
}

// executeWithRetries runs fn under the per-attempt timeout, retrying
// timed-out attempts with exponential backoff (base delay doubling per
// attempt). Evaluator errors are terminal, not retried: a failing
// evaluator answering quickly is not a latency problem.
func (m *Manager) executeWithRetries(ctx context.Context, cfg Config, fn OperationFunc) (*decision.Decision, int, error) {
	var d *decision.Decision
	retries := 0

	attempt := func() error {
		res, err := m.invoke(ctx, cfg, fn)
		if err != nil {
			if isTimeout(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		d = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		retries++
		if m.metrics != nil {
			m.metrics.RecordRetry(string(cfg.Class))
		}
		m.logger.Debug("retrying slow evaluator",
			"class", string(cfg.Class), "retry", retries, "delay", next, "error", err)
	}

	err := backoff.RetryNotify(attempt,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.RetryCount)), ctx),
		notify)
	return d, retries, err
}

// invoke runs fn once under the per-attempt deadline. The result is
// abandoned if the deadline fires first, even when fn ignores its
// context: the caller's latency budget does not negotiate.
func (m *Manager) invoke(ctx context.Context, cfg Config, fn OperationFunc) (*decision.Decision, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	call := func() (*decision.Decision, error) {
		type outcome struct {
			d   *decision.Decision
			err error
		}
		ch := make(chan outcome, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- outcome{nil, fmt.Errorf("evaluator panicked: %v", r)}
				}
			}()
			d, err := fn(attemptCtx)
			ch <- outcome{d, err}
		}()

		select {
		case out := <-ch:
			if out.err != nil {
				return nil, out.err
			}
			if out.d == nil {
				return nil, errors.New("evaluator returned no decision")
			}
			return out.d, nil
		case <-attemptCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errAttemptTimeout
		}
	}

	if m.breaker == nil {
		return call()
	}

	res, err := m.breaker.Execute(func() (any, error) { return call() })
	if err != nil {
		return nil, err
	}
	return res.(*decision.Decision), nil
}

func isTimeout(err error) bool {
	return errors.Is(err, errAttemptTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// handleTimeout applies the class's default action after retries are
// exhausted (or the breaker refused the call).
func (m *Manager) handleTimeout(ctx context.Context, operation string, parameters map[string]any, sessionID string, cfg Config, retries int, start time.Time) *decision.Decision {
	escalated := cfg.Severity == decision.ThreatCritical ||
		(cfg.EscalationThreshold > 0 && retries >= cfg.EscalationThreshold) ||
		cfg.DefaultAction == DeferToHuman

	d := m.applyDefaultAction(ctx, operation, parameters, sessionID, cfg)
	d.TimeoutUsed = true
	d.Escalated = d.Escalated || escalated
	d.ProcessingTime = time.Since(start)

	if m.metrics != nil {
		m.metrics.RecordTimeout(string(cfg.Class), "timeout")
	}
	m.logTimeoutEvent(TimeoutEvent{
		Operation: operation,
		Class:     cfg.Class,
		SessionID: sessionID,
		Retries:   retries,
		Elapsed:   d.ProcessingTime,
		Action:    cfg.DefaultAction,
		Verdict:   d.Verdict,
		Escalated: d.Escalated,
	})
	return d
}

// applyDefaultAction resolves one of the six default actions to a
// decision. Never returns nil.
func (m *Manager) applyDefaultAction(ctx context.Context, operation string, parameters map[string]any, sessionID string, cfg Config) *decision.Decision {
	base := func(v decision.Verdict, conf decision.Confidence, reasoning string) *decision.Decision {
		return &decision.Decision{
			ID:                 uuid.NewString(),
			Verdict:            v,
			Confidence:         conf,
			Reasoning:          reasoning,
			Source:             decision.SourceTimeoutFallback,
			ThreatLevel:        cfg.Severity,
			Operation:          operation,
			SessionID:          sessionID,
			RequiresMonitoring: cfg.MonitoringRequired,
			Timestamp:          time.Now(),
		}
	}

	switch cfg.DefaultAction {
	case UseCache:
		if m.cacheLookup != nil {
			if cached, ok := m.cacheLookup(ctx, operation, parameters, sessionID); ok {
				d := cached.Clone()
				d.ID = uuid.NewString()
				d.Source = decision.SourceTimeoutFallback
				d.CacheUsed = true
				d.Reasoning = fmt.Sprintf("evaluator timed out; reusing cached decision: %s", cached.Reasoning)
				d.Timestamp = time.Now()
				return d
			}
		}
		return base(cfg.SafeDefault, decision.ConfidenceMedium,
			"evaluator timed out and no cached decision exists; applying class safe default")

	case UseFallbackRules:
		for _, c := range m.safeRules {
			if c.match(operation, parameters) {
				return base(c.Verdict, decision.ConfidenceFromScore(c.Confidence),
					fmt.Sprintf("safe default rule %s: %s", c.ID, c.Reasoning))
			}
		}
		return base(decision.VerdictBlock, decision.ConfidenceFromScore(0.5),
			"no safe default rule matched")

	case DeferToHuman:
		d := base(decision.VerdictDefer, decision.ConfidenceMedium,
			"evaluator timed out; deferring to a human operator")
		d.Escalated = true
		return d

	case EmergencySafeMode:
		return base(decision.VerdictEmergencySafe, decision.ConfidenceMedium,
			"evaluator timed out; entering emergency safe mode")

	case AllowDefault, BlockDefault:
		return base(cfg.SafeDefault, decision.ConfidenceMedium,
			fmt.Sprintf("evaluator timed out; applying class safe default (%s)", cfg.SafeDefault))

	default:
		return base(decision.VerdictBlock, decision.ConfidenceLow,
			fmt.Sprintf("unknown default action %q; blocking", cfg.DefaultAction))
	}
}

// handleExecutionError converts an evaluator failure into the class's
// safe default. The raw error is logged, never surfaced to the caller.
func (m *Manager) handleExecutionError(operation, sessionID string, cfg Config, err error, start time.Time) *decision.Decision {
	if m.metrics != nil {
		m.metrics.RecordTimeout(string(cfg.Class), "error")
	}
	m.logger.Error("slow evaluator failed",
		"operation", operation, "class", string(cfg.Class), "session_id", sessionID, "error", err)

	return &decision.Decision{
		ID:                 uuid.NewString(),
		Verdict:            cfg.SafeDefault,
		Confidence:         decision.ConfidenceLow,
		Reasoning:          "evaluator failed; applying class safe default",
		Source:             decision.SourceTimeoutFallback,
		ThreatLevel:        cfg.Severity,
		FallbackUsed:       true,
		Operation:          operation,
		SessionID:          sessionID,
		RequiresMonitoring: cfg.MonitoringRequired,
		Escalated:          true,
		ProcessingTime:     time.Since(start),
		Timestamp:          time.Now(),
	}
}

// overloadDecision rejects a request over the concurrency ceiling.
func (m *Manager) overloadDecision(operation, sessionID string, cfg Config, start time.Time) *decision.Decision {
	return &decision.Decision{
		ID:             uuid.NewString(),
		Verdict:        decision.VerdictBlock,
		Confidence:     decision.ConfidenceHigh,
		Reasoning:      "slow evaluation capacity exhausted; request rejected rather than queued",
		Source:         decision.SourceSystemOverride,
		ThreatLevel:    cfg.Severity.Max(decision.ThreatMedium),
		Operation:      operation,
		SessionID:      sessionID,
		Escalated:      true,
		ProcessingTime: time.Since(start),
		Timestamp:      time.Now(),
	}
}

// TimeoutEvent is the structured record of one timed-out evaluation.
type TimeoutEvent struct {
	Operation string
	Class     OperationClass
	SessionID string
	Retries   int
	Elapsed   time.Duration
	Action    DefaultAction
	Verdict   decision.Verdict
	Escalated bool
}

func (m *Manager) logTimeoutEvent(ev TimeoutEvent) {
	m.logger.Warn("slow evaluator timed out",
		"operation", ev.Operation,
		"class", string(ev.Class),
		"session_id", ev.SessionID,
		"retries", ev.Retries,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
		"default_action", string(ev.Action),
		"verdict", string(ev.Verdict),
		"escalated", ev.Escalated,
	)
}
