package timeout

import (
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/decision"
)

// DefaultAction is what the manager does when the evaluator times out
// and retries are exhausted.
type DefaultAction string

const (
	// AllowDefault applies the class's safe decision, which is "allow".
	AllowDefault DefaultAction = "allow_default"

	// BlockDefault applies the class's safe decision, which is "block".
	BlockDefault DefaultAction = "block_default"

	// UseCache consults the decision cache for this request; absent a
	// hit, falls through to the safe decision.
	UseCache DefaultAction = "use_cache"

	// UseFallbackRules applies the safe-default rule set against the
	// operation text; no match means a conservative block.
	UseFallbackRules DefaultAction = "use_fallback_rules"

	// DeferToHuman returns a defer verdict with escalation set.
	DeferToHuman DefaultAction = "defer_to_human"

	// EmergencySafeMode returns the emergency-safe verdict.
	EmergencySafeMode DefaultAction = "emergency_safe_mode"
)

// Config is the resolved per-class timeout behavior.
type Config struct {
	Class               OperationClass
	Timeout             time.Duration
	Severity            decision.ThreatLevel
	DefaultAction       DefaultAction
	RetryCount          int
	RetryDelay          time.Duration
	EscalationThreshold int
	SafeDefault         decision.Verdict
	MonitoringRequired  bool
}

// DefaultClassConfigs returns the built-in per-class behavior. Cheap
// read-style classes time out fast and degrade to a cached or allowed
// answer; anything that mutates state or elevates privilege times out
// slower (the evaluator gets a real chance) but degrades to a block or
// a human.
func DefaultClassConfigs() map[OperationClass]Config {
	return map[OperationClass]Config{
		ClassHelpQuery: {
			Class: ClassHelpQuery, Timeout: 1 * time.Second,
			Severity: decision.ThreatSafe, DefaultAction: AllowDefault,
			RetryCount: 0, RetryDelay: 50 * time.Millisecond,
			EscalationThreshold: 0, SafeDefault: decision.VerdictAllow,
		},
		ClassFileRead: {
			Class: ClassFileRead, Timeout: 3 * time.Second,
			Severity: decision.ThreatLow, DefaultAction: UseCache,
			RetryCount: 1, RetryDelay: 100 * time.Millisecond,
			EscalationThreshold: 2, SafeDefault: decision.VerdictAllow,
		},
		ClassDataAccess: {
			Class: ClassDataAccess, Timeout: 5 * time.Second,
			Severity: decision.ThreatMedium, DefaultAction: UseCache,
			RetryCount: 1, RetryDelay: 200 * time.Millisecond,
			EscalationThreshold: 2, SafeDefault: decision.VerdictBlock,
		},
		ClassFileWrite: {
			Class: ClassFileWrite, Timeout: 5 * time.Second,
			Severity: decision.ThreatMedium, DefaultAction: UseFallbackRules,
			RetryCount: 1, RetryDelay: 200 * time.Millisecond,
			EscalationThreshold: 1, SafeDefault: decision.VerdictBlock,
			MonitoringRequired: true,
		},
		ClassNetworkAccess: {
			Class: ClassNetworkAccess, Timeout: 8 * time.Second,
			Severity: decision.ThreatHigh, DefaultAction: BlockDefault,
			RetryCount: 2, RetryDelay: 250 * time.Millisecond,
			EscalationThreshold: 2, SafeDefault: decision.VerdictBlock,
			MonitoringRequired: true,
		},
		ClassSystemCommand: {
			Class: ClassSystemCommand, Timeout: 10 * time.Second,
			Severity: decision.ThreatHigh, DefaultAction: BlockDefault,
			RetryCount: 1, RetryDelay: 500 * time.Millisecond,
			EscalationThreshold: 1, SafeDefault: decision.VerdictBlock,
			MonitoringRequired: true,
		},
		ClassPrivilegeOp: {
			Class: ClassPrivilegeOp, Timeout: 15 * time.Second,
			Severity: decision.ThreatCritical, DefaultAction: DeferToHuman,
			RetryCount: 0, RetryDelay: 500 * time.Millisecond,
			EscalationThreshold: 0, SafeDefault: decision.VerdictBlock,
			MonitoringRequired: true,
		},
	}
}

// conservativeConfig handles operation classes with no configuration:
// block on timeout, medium severity.
func conservativeConfig(class OperationClass) Config {
	return Config{
		Class: class, Timeout: 5 * time.Second,
		Severity: decision.ThreatMedium, DefaultAction: BlockDefault,
		RetryCount: 1, RetryDelay: 250 * time.Millisecond,
		EscalationThreshold: 1, SafeDefault: decision.VerdictBlock,
		MonitoringRequired: true,
	}
}

// resolveClassConfigs merges YAML per-class overrides over the built-in
// defaults. Zero-valued override fields keep the default.
func resolveClassConfigs(overrides map[string]config.TimeoutClassConfig) map[OperationClass]Config {
	out := DefaultClassConfigs()
	for name, o := range overrides {
		class := OperationClass(name)
		cfg, ok := out[class]
		if !ok {
			cfg = conservativeConfig(class)
		}
		if o.Timeout > 0 {
			cfg.Timeout = o.Timeout
		}
		if o.Severity != "" {
			cfg.Severity = decision.ThreatLevel(o.Severity)
		}
		if o.DefaultAction != "" {
			cfg.DefaultAction = DefaultAction(o.DefaultAction)
		}
		if o.RetryCount > 0 {
			cfg.RetryCount = o.RetryCount
		}
		if o.RetryDelay > 0 {
			cfg.RetryDelay = o.RetryDelay
		}
		if o.EscalationThreshold > 0 {
			cfg.EscalationThreshold = o.EscalationThreshold
		}
		if o.SafeDefault != "" {
			cfg.SafeDefault = decision.Verdict(o.SafeDefault)
		}
		if o.MonitoringRequired {
			cfg.MonitoringRequired = true
		}
		out[class] = cfg
	}
	return out
}
