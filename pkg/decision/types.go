package decision

import (
	"time"
)

// Verdict is the terminal outcome of evaluating a proposed operation.
type Verdict string

const (
	// VerdictAllow permits the operation to proceed.
	VerdictAllow Verdict = "allow"

	// VerdictBlock denies the operation.
	VerdictBlock Verdict = "block"

	// VerdictReview means the fast path could not decide and the slow
	// evaluator (or a human) must weigh in. A rule-engine result of
	// "review" is inconclusive and does not terminate the pipeline.
	VerdictReview Verdict = "review"

	// VerdictDefer hands the operation to a human operator.
	VerdictDefer Verdict = "defer"

	// VerdictEmergencySafe is the emergency-safe-mode outcome: the
	// operation is held while the system is in a degraded state.
	VerdictEmergencySafe Verdict = "emergency_safe"
)

// IsConclusive reports whether the verdict terminates the pipeline.
// Only VerdictReview is inconclusive.
func (v Verdict) IsConclusive() bool {
	return v != VerdictReview
}

// Confidence is the tier of certainty attached to a decision.
type Confidence string

const (
	ConfidenceVeryHigh  Confidence = "very_high"
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceLow       Confidence = "low"
	ConfidenceUncertain Confidence = "uncertain"
)

// Score returns the nominal numeric score for a confidence tier,
// used when ordering competing fallback rules.
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceVeryHigh:
		return 0.95
	case ConfidenceHigh:
		return 0.85
	case ConfidenceMedium:
		return 0.65
	case ConfidenceLow:
		return 0.45
	default:
		return 0.25
	}
}

// ConfidenceFromScore maps a numeric score back onto the nearest tier.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.9:
		return ConfidenceVeryHigh
	case score >= 0.75:
		return ConfidenceHigh
	case score >= 0.55:
		return ConfidenceMedium
	case score >= 0.35:
		return ConfidenceLow
	default:
		return ConfidenceUncertain
	}
}

// AtLeast reports whether c is at or above the given tier.
func (c Confidence) AtLeast(other Confidence) bool {
	return c.Score() >= other.Score()
}

// ThreatLevel classifies the severity of a matched operation.
type ThreatLevel string

const (
	ThreatSafe     ThreatLevel = "safe"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Severity returns the ordinal rank of the threat level.
// CRITICAL > HIGH > MEDIUM > LOW > SAFE.
func (t ThreatLevel) Severity() int {
	switch t {
	case ThreatCritical:
		return 4
	case ThreatHigh:
		return 3
	case ThreatMedium:
		return 2
	case ThreatLow:
		return 1
	default:
		return 0
	}
}

// Max returns the higher-severity of two threat levels.
func (t ThreatLevel) Max(other ThreatLevel) ThreatLevel {
	if other.Severity() > t.Severity() {
		return other
	}
	return t
}

// Source identifies which pipeline phase produced a decision.
type Source string

const (
	// SourceCacheHit means the decision was served from the decision cache.
	SourceCacheHit Source = "cache_hit"

	// SourceRuleBased means the fast rule engine decided without
	// consulting the slow evaluator.
	SourceRuleBased Source = "rule_based_fast"

	// SourceEvaluatorComplete means the slow evaluator answered within
	// its timeout on the first attempt.
	SourceEvaluatorComplete Source = "llm_complete"

	// SourceEvaluatorRetry means the slow evaluator answered on a retry
	// after at least one timeout.
	SourceEvaluatorRetry Source = "llm_streaming"

	// SourceTimeoutFallback means the configured safe default was applied
	// after the slow evaluator timed out.
	SourceTimeoutFallback Source = "timeout_fallback"

	// SourceEmergencyFallback means the emergency fallback engine decided.
	SourceEmergencyFallback Source = "emergency_fallback"

	// SourceSystemOverride means admission control rejected the request
	// (for example the concurrency ceiling was reached).
	SourceSystemOverride Source = "system_override"
)

// SystemState is the global operating state consulted by the emergency
// fallback engine.
type SystemState string

const (
	// StateNormal is regular operation; rule outcomes stand as evaluated.
	StateNormal SystemState = "normal"

	// StateDegraded indicates partial failure; decisions are escalated
	// for review but rule outcomes are otherwise respected.
	StateDegraded SystemState = "degraded"

	// StateEmergency forces any non-safe outcome to an immediate block.
	StateEmergency SystemState = "emergency"

	// StateLockdown forces every outcome to an immediate block.
	StateLockdown SystemState = "lockdown"
)

// Decision is the unified output of the pipeline: one terminal answer for
// one proposed operation, with enough context attached for auditing.
type Decision struct {
	// ID uniquely identifies this decision for audit correlation.
	ID string `json:"id"`

	// Verdict is the terminal outcome.
	Verdict Verdict `json:"verdict"`

	// Confidence is the certainty tier of the verdict.
	Confidence Confidence `json:"confidence"`

	// Reasoning is a human-readable explanation of which phase decided
	// and why (e.g. "Timeout occurred, using safe default: block").
	Reasoning string `json:"reasoning"`

	// Source is the pipeline phase that produced the decision.
	Source Source `json:"source"`

	// ThreatLevel is the severity assigned by rule matching, when the
	// deciding phase performed any.
	ThreatLevel ThreatLevel `json:"threat_level,omitempty"`

	// ProcessingTime is how long the deciding phase took.
	ProcessingTime time.Duration `json:"processing_time"`

	// CacheUsed is true when the decision was served from cache.
	CacheUsed bool `json:"cache_used"`

	// FallbackUsed is true when an emergency or safe-default rule decided.
	FallbackUsed bool `json:"fallback_used"`

	// TimeoutUsed is true when the slow evaluator timed out and a default
	// action was applied.
	TimeoutUsed bool `json:"timeout_used"`

	// Operation is the operation text that was evaluated.
	Operation string `json:"operation"`

	// Parameters are the operation parameters as submitted.
	Parameters map[string]any `json:"parameters,omitempty"`

	// SessionID identifies the requesting agent session.
	SessionID string `json:"session_id,omitempty"`

	// RequestID correlates the decision with the originating request.
	RequestID string `json:"request_id,omitempty"`

	// Alternatives are safer operations suggested in place of a blocked one.
	Alternatives []string `json:"alternatives,omitempty"`

	// Restrictions are conditions attached to an allow verdict.
	Restrictions []string `json:"restrictions,omitempty"`

	// RequiresMonitoring marks decisions whose execution must be observed.
	RequiresMonitoring bool `json:"requires_monitoring,omitempty"`

	// Escalated marks decisions requiring human/administrator review.
	Escalated bool `json:"escalated,omitempty"`

	// MatchedRules lists the IDs of rules that matched, in match order.
	MatchedRules []string `json:"matched_rules,omitempty"`

	// PhaseResults holds per-phase sub-decisions for audit. Keys are
	// phase names; values are phase-specific summaries.
	PhaseResults map[string]any `json:"phase_results,omitempty"`

	// Timestamp is when the decision was produced.
	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a deep-enough copy of the decision for handing to another
// goroutine. Parameter values are shared; the maps and slices that the
// pipeline mutates are copied.
func (d *Decision) Clone() *Decision {
	out := *d
	if d.Parameters != nil {
		out.Parameters = make(map[string]any, len(d.Parameters))
		for k, v := range d.Parameters {
			out.Parameters[k] = v
		}
	}
	out.Alternatives = append([]string(nil), d.Alternatives...)
	out.Restrictions = append([]string(nil), d.Restrictions...)
	out.MatchedRules = append([]string(nil), d.MatchedRules...)
	if d.PhaseResults != nil {
		out.PhaseResults = make(map[string]any, len(d.PhaseResults))
		for k, v := range d.PhaseResults {
			out.PhaseResults[k] = v
		}
	}
	return &out
}
