package rules

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"mercator-hq/sentinel/pkg/decision"
)

// Action is what a matched rule does with the operation.
type Action string

const (
	// ActionAllow permits the operation immediately.
	ActionAllow Action = "allow"

	// ActionAllowRestricted permits the operation with the rule's
	// restrictions attached.
	ActionAllowRestricted Action = "allow_restricted"

	// ActionBlock denies the operation immediately.
	ActionBlock Action = "block"

	// ActionReview leaves the decision to the slow evaluator.
	ActionReview Action = "review"
)

// isBlockClass reports whether the action short-circuits rule scanning.
func (a Action) isBlockClass() bool {
	return a == ActionBlock
}

// Rule is one pattern-matched classification rule. Rules are immutable by
// convention after registration except for the trigger bookkeeping, which
// the engine updates on every match.
type Rule struct {
	// ID uniquely identifies the rule.
	ID string `yaml:"id"`

	// Pattern is a regular expression matched against the serialized
	// operation text (case-insensitive).
	Pattern string `yaml:"pattern"`

	// ThreatLevel is the severity assigned when the rule matches.
	ThreatLevel decision.ThreatLevel `yaml:"threat_level"`

	// Action is taken when this rule is the authoritative match.
	Action Action `yaml:"action"`

	// Rationale is a free-text explanation used in decision reasoning.
	Rationale string `yaml:"rationale"`

	// Enabled rules participate in evaluation; disabled rules are kept
	// but skipped.
	Enabled bool `yaml:"enabled"`

	// Priority orders evaluation; lower numbers evaluate first.
	Priority int `yaml:"priority"`

	// Restrictions are attached to allow_restricted decisions.
	Restrictions []string `yaml:"restrictions"`
}

// compiledRule pairs a rule with its compiled pattern and mutable trigger
// bookkeeping.
type compiledRule struct {
	Rule
	re *regexp.Regexp

	// lastTriggered is the UnixNano timestamp of the most recent match.
	lastTriggered atomic.Int64

	// triggerCount counts matches over the engine's lifetime.
	triggerCount atomic.Int64
}

func (c *compiledRule) recordTrigger(now time.Time) {
	c.lastTriggered.Store(now.UnixNano())
	c.triggerCount.Add(1)
}

// RuleStats reports trigger bookkeeping for one rule.
type RuleStats struct {
	ID            string
	Enabled       bool
	Priority      int
	ThreatLevel   decision.ThreatLevel
	TriggerCount  int64
	LastTriggered time.Time
}

// compile validates and compiles a rule's pattern. Patterns match
// case-insensitively: operation text arrives in whatever case the agent
// produced.
func compile(r Rule) (*compiledRule, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("rule has no id")
	}
	if r.Pattern == "" {
		return nil, fmt.Errorf("rule %s has no pattern", r.ID)
	}
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s has invalid pattern: %w", r.ID, err)
	}
	return &compiledRule{Rule: r, re: re}, nil
}
