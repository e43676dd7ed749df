package fallback

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
)

// Engine is the emergency decision engine.
type Engine struct {
	mu              sync.RWMutex
	rules           []*compiledEmergencyRule // sorted by ascending priority
	state           decision.SystemState
	maxAlternatives int
	logger          *slog.Logger
}

// NewEngine creates an emergency engine in the normal system state.
// Invalid rules are logged and skipped. Pass DefaultEmergencyRules()
// for the built-in set.
func NewEngine(rs []EmergencyRule, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With("component", "fallback")
	}
	e := &Engine{state: decision.StateNormal, maxAlternatives: 3, logger: logger}
	e.Replace(rs)
	return e
}

// NewEngineFromConfig creates an engine honoring the fallback section:
// initial system state and the alternatives cap.
func NewEngineFromConfig(cfg *config.FallbackConfig, rs []EmergencyRule, logger *slog.Logger) *Engine {
	e := NewEngine(rs, logger)
	if cfg.InitialState != "" {
		e.state = decision.SystemState(cfg.InitialState)
	}
	if cfg.MaxAlternatives > 0 {
		e.maxAlternatives = cfg.MaxAlternatives
	}
	return e
}

// Replace swaps the emergency rule set, skipping invalid rules.
func (e *Engine) Replace(rs []EmergencyRule) {
	compiled := make([]*compiledEmergencyRule, 0, len(rs))
	for _, r := range rs {
		c, err := compileEmergency(r)
		if err != nil {
			e.logger.Warn("skipping invalid emergency rule", "error", err)
			continue
		}
		compiled = append(compiled, c)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
}

// AddRule registers a single emergency rule.
func (e *Engine) AddRule(r EmergencyRule) error {
	c, err := compileEmergency(r)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("emergency rule %s already registered", r.ID)
		}
	}
	e.rules = append(e.rules, c)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
	return nil
}

// SetSystemState changes the global operating state. State transitions
// are logged because they change the meaning of every subsequent
// emergency decision.
func (e *Engine) SetSystemState(s decision.SystemState) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev != s {
		e.logger.Warn("system state changed", "from", string(prev), "to", string(s))
	}
}

// SystemState returns the current operating state.
func (e *Engine) SystemState() decision.SystemState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// EvaluateEmergency produces a decision for the operation. It never
// fails: malformed input, an empty rule set, or a panic during rule
// evaluation all degrade to a conservative block rather than an error.
func (e *Engine) EvaluateEmergency(operation string, parameters map[string]any, sessionID string) (d *decision.Decision) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("emergency evaluation panicked", "panic", fmt.Sprint(r), "session_id", sessionID)
			d = e.conservativeBlock(operation, sessionID, fmt.Sprintf("emergency evaluation failed internally: %v", r))
			d.ProcessingTime = time.Since(start)
		}
	}()

	text := serializeOperation(operation, parameters)

	e.mu.RLock()
	state := e.state
	var matched []*compiledEmergencyRule
	now := time.Now()
	for _, c := range e.rules {
		if !c.Enabled {
			continue
		}
		if c.re.MatchString(text) {
			c.recordTrigger(now)
			matched = append(matched, c)
		}
	}
	e.mu.RUnlock()

	d = e.decide(operation, sessionID, matched, state)
	d.ProcessingTime = time.Since(start)
	return d
}

// decide resolves matched rules to a decision and applies the system
// state post-processing.
func (e *Engine) decide(operation, sessionID string, matched []*compiledEmergencyRule, state decision.SystemState) *decision.Decision {
	var d *decision.Decision

	if len(matched) == 0 {
		// Nothing classified the operation. The emergency engine only
		// runs when the rest of the pipeline has failed, so unknown
		// means unreviewable: block.
		d = e.conservativeBlock(operation, sessionID, "no emergency rule matched; unknown operations are blocked during fallback handling")
	} else {
		// Highest threat level across all matches wins; ties resolve to
		// the earlier (lower-priority-number) rule.
		auth := matched[0]
		for _, c := range matched[1:] {
			if c.ThreatLevel.Severity() > auth.ThreatLevel.Severity() {
				auth = c
			}
		}

		ids := make([]string, len(matched))
		for i, c := range matched {
			ids[i] = c.ID
		}

		d = &decision.Decision{
			Verdict:      verdictFor(auth.Action),
			Confidence:   confidenceForEmergency(auth),
			Reasoning:    fmt.Sprintf("Emergency rule %s: %s", auth.ID, auth.Rationale),
			Source:       decision.SourceEmergencyFallback,
			ThreatLevel:  auth.ThreatLevel,
			FallbackUsed: true,
			Operation:    operation,
			SessionID:    sessionID,
			MatchedRules: ids,
			Timestamp:    time.Now(),
		}
		if auth.Action == ActionAllowMonitored {
			d.RequiresMonitoring = true
		}
	}

	e.applyState(d, state)

	d.Alternatives = alternativesFor(operation, e.maxAlternatives)
	d.Escalated = d.Escalated ||
		d.ThreatLevel == decision.ThreatCritical ||
		d.Verdict == decision.VerdictDefer ||
		state != decision.StateNormal

	return d
}

// applyState post-processes a decision according to the global system
// state. Rule outcomes stand as evaluated in the normal state.
func (e *Engine) applyState(d *decision.Decision, state decision.SystemState) {
	switch state {
	case decision.StateDegraded:
		d.RequiresMonitoring = true

	case decision.StateEmergency:
		if d.ThreatLevel != decision.ThreatSafe {
			d.Verdict = decision.VerdictBlock
			d.ThreatLevel = decision.ThreatCritical
			d.Reasoning += " (emergency state: non-safe operations are blocked)"
		}

	case decision.StateLockdown:
		d.Verdict = decision.VerdictBlock
		d.ThreatLevel = d.ThreatLevel.Max(decision.ThreatHigh)
		d.Reasoning += " (lockdown: all operations are blocked)"
	}
}

func (e *Engine) conservativeBlock(operation, sessionID, reason string) *decision.Decision {
	return &decision.Decision{
		Verdict:      decision.VerdictBlock,
		Confidence:   decision.ConfidenceLow,
		Reasoning:    reason,
		Source:       decision.SourceEmergencyFallback,
		ThreatLevel:  decision.ThreatMedium,
		FallbackUsed: true,
		Operation:    operation,
		SessionID:    sessionID,
		Timestamp:    time.Now(),
	}
}

func verdictFor(a Action) decision.Verdict {
	switch a {
	case ActionImmediateBlock:
		return decision.VerdictBlock
	case ActionDeferToHuman:
		return decision.VerdictDefer
	case ActionAllowMonitored, ActionAllowSafe:
		return decision.VerdictAllow
	default:
		return decision.VerdictBlock
	}
}

// confidenceForEmergency is deliberately capped: decisions made without
// the slow evaluator carry less certainty than the same classification
// on the fast path.
func confidenceForEmergency(c *compiledEmergencyRule) decision.Confidence {
	switch c.ThreatLevel {
	case decision.ThreatCritical:
		return decision.ConfidenceHigh
	case decision.ThreatSafe:
		return decision.ConfidenceHigh
	default:
		return decision.ConfidenceMedium
	}
}

// Stats returns trigger bookkeeping for every emergency rule.
func (e *Engine) Stats() []RuleStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]RuleStats, len(e.rules))
	for i, c := range e.rules {
		var last time.Time
		if ns := c.lastTriggered.Load(); ns > 0 {
			last = time.Unix(0, ns)
		}
		out[i] = RuleStats{
			ID:            c.ID,
			Enabled:       c.Enabled,
			Priority:      c.Priority,
			ThreatLevel:   c.ThreatLevel,
			TriggerCount:  c.triggerCount.Load(),
			LastTriggered: last,
		}
	}
	return out
}

// RuleStats reports trigger bookkeeping for one emergency rule.
type RuleStats struct {
	ID            string
	Enabled       bool
	Priority      int
	ThreatLevel   decision.ThreatLevel
	TriggerCount  int64
	LastTriggered time.Time
}

// serializeOperation flattens the operation and its parameters into the
// text the patterns match against. Keys sort so the text is stable for
// a given request.
func serializeOperation(operation string, parameters map[string]any) string {
	if len(parameters) == 0 {
		return operation
	}
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := operation
	for _, k := range keys {
		text += fmt.Sprintf(" %s=%v", k, parameters[k])
	}
	return text
}
