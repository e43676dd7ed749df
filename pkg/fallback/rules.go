package fallback

import (
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"mercator-hq/sentinel/pkg/decision"
)

// Action is what a matched emergency rule does with the operation.
type Action string

const (
	// ActionImmediateBlock denies the operation outright.
	ActionImmediateBlock Action = "immediate_block"

	// ActionDeferToHuman hands the operation to a human operator.
	ActionDeferToHuman Action = "defer_to_human"

	// ActionAllowMonitored permits the operation with mandatory
	// monitoring.
	ActionAllowMonitored Action = "allow_monitored"

	// ActionAllowSafe permits a clearly harmless operation.
	ActionAllowSafe Action = "allow_safe"
)

// EmergencyRule is one pattern rule in the emergency set. The set is a
// superset of the fast rule engine's: it must classify everything the
// fast path would, plus the long tail the fast path defers on, because
// there is nobody left to defer to.
type EmergencyRule struct {
	ID          string               `yaml:"id"`
	Pattern     string               `yaml:"pattern"`
	ThreatLevel decision.ThreatLevel `yaml:"threat_level"`
	Action      Action               `yaml:"action"`
	Rationale   string               `yaml:"rationale"`
	Enabled     bool                 `yaml:"enabled"`
	Priority    int                  `yaml:"priority"`
}

type compiledEmergencyRule struct {
	EmergencyRule
	re *regexp.Regexp

	lastTriggered atomic.Int64
	triggerCount  atomic.Int64
}

func (c *compiledEmergencyRule) recordTrigger(now time.Time) {
	c.lastTriggered.Store(now.UnixNano())
	c.triggerCount.Add(1)
}

func compileEmergency(r EmergencyRule) (*compiledEmergencyRule, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("emergency rule has no id")
	}
	if r.Pattern == "" {
		return nil, fmt.Errorf("emergency rule %s has no pattern", r.ID)
	}
	re, err := regexp.Compile("(?i)" + r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("emergency rule %s has invalid pattern: %w", r.ID, err)
	}
	return &compiledEmergencyRule{EmergencyRule: r, re: re}, nil
}

// DefaultEmergencyRules returns the built-in emergency rule set. It is
// deliberately broader than the fast rule set: substrings that merely
// trigger review on the fast path block here, because the emergency
// engine runs without a slow evaluator to escalate to.
func DefaultEmergencyRules() []EmergencyRule {
	return []EmergencyRule{
		{
			ID:          "em-destructive",
			Pattern:     `rm\s+-[a-z]*[rf]|mkfs|dd\s+.*of=/dev/|shred\s|:\(\)\s*\{\s*:\|:`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionImmediateBlock,
			Rationale:   "destructive operation during fallback handling",
			Enabled:     true,
			Priority:    1,
		},
		{
			ID:          "em-credential",
			Pattern:     `/etc/(shadow|sudoers)|\.ssh/|\.aws/credentials|password|secret|token`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionImmediateBlock,
			Rationale:   "credential or secret access during fallback handling",
			Enabled:     true,
			Priority:    2,
		},
		{
			ID:          "em-privilege",
			Pattern:     `\b(sudo|doas|su)\b|chown\s|chmod\s`,
			ThreatLevel: decision.ThreatHigh,
			Action:      ActionImmediateBlock,
			Rationale:   "privilege change cannot be reviewed while the evaluator is unavailable",
			Enabled:     true,
			Priority:    3,
		},
		{
			ID:          "em-network",
			Pattern:     `\b(curl|wget|nc|ncat|ssh|scp|ftp)\b|https?://`,
			ThreatLevel: decision.ThreatHigh,
			Action:      ActionDeferToHuman,
			Rationale:   "outbound network access needs a human while degraded",
			Enabled:     true,
			Priority:    4,
		},
		{
			ID:          "em-write",
			Pattern:     `\b(mv|cp|touch|mkdir|tee)\b|>>?\s*/`,
			ThreatLevel: decision.ThreatMedium,
			Action:      ActionDeferToHuman,
			Rationale:   "filesystem mutation deferred while degraded",
			Enabled:     true,
			Priority:    5,
		},
		{
			ID:          "em-read-only",
			Pattern:     `^\s*(cat|head|tail|less|stat|wc|grep|find)\b[^|;&>]*$`,
			ThreatLevel: decision.ThreatLow,
			Action:      ActionAllowMonitored,
			Rationale:   "read-only access tolerated under monitoring",
			Enabled:     true,
			Priority:    10,
		},
		{
			ID:          "em-safe",
			Pattern:     `^\s*(help|--help|-h|version|--version|ls|pwd|whoami|date|echo)\b[^|;&>]*$`,
			ThreatLevel: decision.ThreatSafe,
			Action:      ActionAllowSafe,
			Rationale:   "harmless status query",
			Enabled:     true,
			Priority:    11,
		},
	}
}
