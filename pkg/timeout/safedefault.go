package timeout

import (
	"fmt"
	"regexp"
	"sort"

	"mercator-hq/sentinel/pkg/decision"
)

// SafeDefaultRule decides an operation heuristically when the evaluator
// is unreachable and the class's default action is use_fallback_rules.
// A rule matches when its pattern matches the operation text and every
// declared parameter condition matches the corresponding parameter
// value; a rule with a condition on an absent parameter is skipped.
type SafeDefaultRule struct {
	ID string `yaml:"id"`

	// Pattern is matched case-insensitively against the operation text.
	Pattern string `yaml:"pattern"`

	// Parameters maps parameter names to patterns their stringified
	// values must match.
	Parameters map[string]string `yaml:"parameters"`

	// Verdict applied when the rule wins.
	Verdict decision.Verdict `yaml:"verdict"`

	// Confidence orders rules: higher-confidence rules are tried first
	// and the first full match wins.
	Confidence float64 `yaml:"confidence"`

	Reasoning string `yaml:"reasoning"`
}

type compiledSafeDefault struct {
	SafeDefaultRule
	re     *regexp.Regexp
	params map[string]*regexp.Regexp
}

func compileSafeDefaults(rules []SafeDefaultRule) ([]*compiledSafeDefault, error) {
	out := make([]*compiledSafeDefault, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("safe default rule %s has invalid pattern: %w", r.ID, err)
		}
		c := &compiledSafeDefault{SafeDefaultRule: r, re: re}
		if len(r.Parameters) > 0 {
			c.params = make(map[string]*regexp.Regexp, len(r.Parameters))
			for name, p := range r.Parameters {
				pre, err := regexp.Compile("(?i)" + p)
				if err != nil {
					return nil, fmt.Errorf("safe default rule %s parameter %s: %w", r.ID, name, err)
				}
				c.params[name] = pre
			}
		}
		out = append(out, c)
	}
	// Descending confidence; the most certain heuristic answers first.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// match reports whether the rule fully matches the operation. Every
// declared parameter condition must hold.
func (c *compiledSafeDefault) match(operation string, parameters map[string]any) bool {
	if !c.re.MatchString(operation) {
		return false
	}
	for name, pre := range c.params {
		v, ok := parameters[name]
		if !ok {
			return false
		}
		if !pre.MatchString(fmt.Sprint(v)) {
			return false
		}
	}
	return true
}

// DefaultSafeRules returns the built-in safe-default rule set: obvious
// allows for read-only and informational operations, obvious blocks for
// destructive or forced ones.
func DefaultSafeRules() []SafeDefaultRule {
	return []SafeDefaultRule{
		{
			ID: "sd-destructive", Pattern: `rm\s+-[a-z]*[rf]|mkfs|dd\s+.*of=/dev/`,
			Verdict: decision.VerdictBlock, Confidence: 0.95,
			Reasoning: "destructive operation blocked while the evaluator is unavailable",
		},
		{
			ID: "sd-forced-write", Pattern: `\b(write|save|overwrite|truncate)\b`,
			Parameters: map[string]string{"force": `^true$`},
			Verdict:    decision.VerdictBlock, Confidence: 0.9,
			Reasoning: "forced write blocked while the evaluator is unavailable",
		},
		{
			ID: "sd-help", Pattern: `^\s*(help|--help|version|--version)\b`,
			Verdict: decision.VerdictAllow, Confidence: 0.9,
			Reasoning: "informational query allowed without evaluation",
		},
		{
			ID: "sd-read-only", Pattern: `^\s*(cat|head|tail|ls|stat|pwd|whoami)\b[^|;&>]*$`,
			Verdict: decision.VerdictAllow, Confidence: 0.8,
			Reasoning: "read-only operation tolerated without evaluation",
		},
		{
			ID: "sd-tmp-write", Pattern: `\b(write|touch|mkdir)\b.*(/tmp/|/var/tmp/)`,
			Verdict: decision.VerdictAllow, Confidence: 0.7,
			Reasoning: "scratch-directory write tolerated without evaluation",
		},
	}
}
