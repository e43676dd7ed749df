package rules

import "mercator-hq/sentinel/pkg/decision"

// DefaultRules returns the built-in rule set. It covers the operations
// agents request constantly (help, version, listings, plain reads) and
// the substrings that are never acceptable regardless of context
// (recursive filesystem wipes, disk overwrites, fork bombs, piping
// remote scripts into a shell). Deployments extend or replace this set
// via the rules file.
//
// Priorities group the set into bands: 10-19 destructive commands,
// 20-29 privilege and credential access, 30-39 risky-but-reviewable,
// 100+ clearly safe. Within a band, order does not matter because the
// highest-severity match wins.
func DefaultRules() []Rule {
	return []Rule{
		// Destructive operations. These block outright.
		{
			ID:          "destructive-recursive-delete",
			Pattern:     `rm\s+(-[a-z]*[rf][a-z]*\s+)+`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionBlock,
			Rationale:   "recursive or forced file deletion",
			Enabled:     true,
			Priority:    10,
		},
		{
			ID:          "destructive-mkfs",
			Pattern:     `mkfs(\.\w+)?\s`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionBlock,
			Rationale:   "filesystem format destroys all data on the target device",
			Enabled:     true,
			Priority:    10,
		},
		{
			ID:          "destructive-dd-device",
			Pattern:     `dd\s+.*of=/dev/`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionBlock,
			Rationale:   "raw write to a block device",
			Enabled:     true,
			Priority:    10,
		},
		{
			ID:          "destructive-fork-bomb",
			Pattern:     `:\(\)\s*\{\s*:\|:`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionBlock,
			Rationale:   "shell fork bomb",
			Enabled:     true,
			Priority:    10,
		},
		{
			ID:          "remote-script-execution",
			Pattern:     `(curl|wget)\s+[^|;]*\|\s*(ba|z|da)?sh`,
			ThreatLevel: decision.ThreatCritical,
			Action:      ActionBlock,
			Rationale:   "piping a remote script into a shell executes unreviewed code",
			Enabled:     true,
			Priority:    11,
		},
		{
			ID:          "destructive-truncate-system",
			Pattern:     `>\s*/(etc|boot|usr|bin|sbin)/`,
			ThreatLevel: decision.ThreatHigh,
			Action:      ActionBlock,
			Rationale:   "overwriting system paths",
			Enabled:     true,
			Priority:    12,
		},

		// Privilege and credential access.
		{
			ID:          "privilege-escalation",
			Pattern:     `\b(sudo|doas|su)\s+`,
			ThreatLevel: decision.ThreatHigh,
			Action:      ActionReview,
			Rationale:   "privilege escalation requires evaluator review",
			Enabled:     true,
			Priority:    20,
		},
		{
			ID:          "credential-file-access",
			Pattern:     `(/etc/(shadow|sudoers)|\.ssh/id_|\.aws/credentials|\.kube/config)`,
			ThreatLevel: decision.ThreatHigh,
			Action:      ActionBlock,
			Rationale:   "direct access to credential material",
			Enabled:     true,
			Priority:    20,
		},
		{
			ID:          "permission-loosening",
			Pattern:     `chmod\s+([0-7]*7[0-7]*7|a\+w|o\+w)`,
			ThreatLevel: decision.ThreatMedium,
			Action:      ActionReview,
			Rationale:   "world-writable permissions",
			Enabled:     true,
			Priority:    21,
		},

		// Risky but reviewable.
		{
			ID:          "package-install",
			Pattern:     `\b(apt(-get)?|yum|dnf|pip3?|npm|gem)\s+(install|add)\b`,
			ThreatLevel: decision.ThreatMedium,
			Action:      ActionReview,
			Rationale:   "package installation changes the environment",
			Enabled:     true,
			Priority:    30,
		},
		{
			ID:          "outbound-network",
			Pattern:     `\b(curl|wget|nc|ncat|ssh|scp)\s+`,
			ThreatLevel: decision.ThreatMedium,
			Action:      ActionReview,
			Rationale:   "outbound network access",
			Enabled:     true,
			Priority:    31,
		},
		{
			ID:          "service-control",
			Pattern:     `\b(systemctl|service)\s+(stop|restart|disable|mask)\b`,
			ThreatLevel: decision.ThreatMedium,
			Action:      ActionReview,
			Rationale:   "stopping or disabling services",
			Enabled:     true,
			Priority:    32,
		},

		// Clearly safe operations. Low severity, evaluated last so a
		// dangerous substring elsewhere in the text always outranks them.
		{
			ID:          "safe-help",
			Pattern:     `^\s*(help|--help|-h|\?)\s*$`,
			ThreatLevel: decision.ThreatSafe,
			Action:      ActionAllow,
			Rationale:   "help request",
			Enabled:     true,
			Priority:    100,
		},
		{
			ID:          "safe-version",
			Pattern:     `^\s*\S+\s+(--version|-v|version)\s*$`,
			ThreatLevel: decision.ThreatSafe,
			Action:      ActionAllow,
			Rationale:   "version query",
			Enabled:     true,
			Priority:    100,
		},
		{
			ID:          "safe-listing",
			Pattern:     `^\s*(ls|pwd|whoami|date|uptime|echo)\b[^|;&>]*$`,
			ThreatLevel: decision.ThreatSafe,
			Action:      ActionAllow,
			Rationale:   "read-only status command",
			Enabled:     true,
			Priority:    101,
		},
		{
			ID:          "safe-file-read",
			Pattern:     `^\s*(cat|head|tail|less|wc|stat)\s+[^|;&>]*$`,
			ThreatLevel: decision.ThreatLow,
			Action:      ActionAllowRestricted,
			Rationale:   "plain file read",
			Enabled:     true,
			Priority:    102,
			Restrictions: []string{
				"read_only",
				"no_credential_paths",
			},
		},
	}
}
