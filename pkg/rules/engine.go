package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/decision"
)

// Engine is the fast rule-based classifier.
type Engine struct {
	mu     sync.RWMutex
	rules  []*compiledRule // sorted by ascending priority
	logger *slog.Logger
}

// NewEngine creates an engine with the given rules. Rules with invalid
// patterns are logged and skipped. Pass DefaultRules() for the built-in
// set.
func NewEngine(rs []Rule, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With("component", "rules")
	}
	e := &Engine{logger: logger}
	e.Replace(rs)
	return e
}

// Replace swaps the entire rule set. Invalid rules are logged and
// skipped; the remainder are installed sorted by ascending priority.
func (e *Engine) Replace(rs []Rule) {
	compiled := make([]*compiledRule, 0, len(rs))
	for _, r := range rs {
		c, err := compile(r)
		if err != nil {
			e.logger.Warn("skipping invalid rule", "error", err)
			continue
		}
		compiled = append(compiled, c)
	}
	sortRules(compiled)

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	e.logger.Info("rule set installed", "rules", len(compiled), "skipped", len(rs)-len(compiled))
}

// AddRule registers a single custom rule. Returns an error if the
// pattern does not compile or the ID is already taken.
func (e *Engine) AddRule(r Rule) error {
	c, err := compile(r)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("rule %s already registered", r.ID)
		}
	}
	e.rules = append(e.rules, c)
	sortRules(e.rules)
	return nil
}

// Match is one rule that matched during evaluation, recorded in match
// order.
type Match struct {
	RuleID      string
	ThreatLevel decision.ThreatLevel
	Action      Action
	Rationale   string
}

// Evaluation is the outcome of scanning the rule set.
type Evaluation struct {
	// Matches lists every rule that matched, in match (priority) order.
	Matches []Match

	// ThreatLevel is the highest severity across all matches.
	ThreatLevel decision.ThreatLevel

	// Authoritative is the match that determines the action: the
	// highest-severity match, ties resolved in favor of the earlier one.
	Authoritative *Match
}

// Evaluate scans the rule set against the operation text. It returns a
// conclusive decision and true, or (nil, false) when no rule matches or
// the authoritative action is review.
//
// Rules evaluate in ascending priority order. Every matching rule is
// recorded and the highest-severity match resolves the final threat level
// and action; a block-class match stops further scanning since nothing
// can outrank an immediate block beyond raising its severity.
func (e *Engine) Evaluate(operationText string) (*decision.Decision, bool) {
	start := time.Now()
	eval := e.scan(operationText)

	if eval.Authoritative == nil || eval.Authoritative.Action == ActionReview {
		return nil, false
	}

	d := e.decisionFromEvaluation(operationText, eval)
	d.ProcessingTime = time.Since(start)
	return d, true
}

// Scan returns the full evaluation without converting it to a decision.
// Used by callers that need the match list regardless of conclusiveness.
func (e *Engine) Scan(operationText string) Evaluation {
	return e.scan(operationText)
}

func (e *Engine) scan(operationText string) Evaluation {
	now := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	eval := Evaluation{ThreatLevel: decision.ThreatSafe}
	authIdx := -1
	for _, c := range e.rules {
		if !c.Enabled {
			continue
		}
		if !c.re.MatchString(operationText) {
			continue
		}

		c.recordTrigger(now)
		m := Match{
			RuleID:      c.ID,
			ThreatLevel: c.ThreatLevel,
			Action:      c.Action,
			Rationale:   c.Rationale,
		}
		eval.Matches = append(eval.Matches, m)

		if authIdx < 0 || m.ThreatLevel.Severity() > eval.Matches[authIdx].ThreatLevel.Severity() {
			authIdx = len(eval.Matches) - 1
		}
		eval.ThreatLevel = eval.ThreatLevel.Max(m.ThreatLevel)

		if m.Action.isBlockClass() {
			break
		}
	}
	if authIdx >= 0 {
		eval.Authoritative = &eval.Matches[authIdx]
	}
	return eval
}

// decisionFromEvaluation converts a conclusive evaluation to a decision.
func (e *Engine) decisionFromEvaluation(operationText string, eval Evaluation) *decision.Decision {
	auth := eval.Authoritative

	var verdict decision.Verdict
	var restrictions []string
	switch auth.Action {
	case ActionBlock:
		verdict = decision.VerdictBlock
	case ActionAllowRestricted:
		verdict = decision.VerdictAllow
		restrictions = e.restrictionsFor(auth.RuleID)
	default:
		verdict = decision.VerdictAllow
	}

	matched := make([]string, len(eval.Matches))
	for i, m := range eval.Matches {
		matched[i] = m.RuleID
	}

	return &decision.Decision{
		Verdict:      verdict,
		Confidence:   confidenceFor(eval.ThreatLevel),
		Reasoning:    fmt.Sprintf("Rule %s matched: %s", auth.RuleID, auth.Rationale),
		Source:       decision.SourceRuleBased,
		ThreatLevel:  eval.ThreatLevel,
		Operation:    operationText,
		Restrictions: restrictions,
		MatchedRules: matched,
		Timestamp:    time.Now(),
	}
}

func (e *Engine) restrictionsFor(ruleID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.rules {
		if c.ID == ruleID {
			return append([]string(nil), c.Restrictions...)
		}
	}
	return nil
}

// confidenceFor maps a resolved threat level to a decision confidence.
// Clear-cut threats and clearly safe operations both classify with high
// confidence; the middle of the range is less certain.
func confidenceFor(t decision.ThreatLevel) decision.Confidence {
	switch t {
	case decision.ThreatCritical:
		return decision.ConfidenceVeryHigh
	case decision.ThreatHigh, decision.ThreatSafe:
		return decision.ConfidenceHigh
	case decision.ThreatMedium:
		return decision.ConfidenceMedium
	default:
		return decision.ConfidenceMedium
	}
}

// Stats returns trigger bookkeeping for every registered rule.
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

// Len returns the number of installed rules.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

func sortRules(rs []*compiledRule) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Priority < rs[j].Priority
	})
}
