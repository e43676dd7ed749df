package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk YAML representation of a rule set.
type RuleFile struct {
	// Version of the rule file format. Currently always 1.
	Version int `yaml:"version"`

	// Extend controls whether the file extends the built-in default
	// rules (true) or replaces them entirely (false).
	Extend bool `yaml:"extend_defaults"`

	// Rules is the rule list.
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads a YAML rule file and returns the rule set it defines,
// including the built-in defaults when the file opts into extending
// them. Every rule must compile; a file with any invalid rule is
// rejected whole so a hot reload never half-applies.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	if rf.Version != 0 && rf.Version != 1 {
		return nil, fmt.Errorf("unsupported rules file version %d", rf.Version)
	}

	seen := make(map[string]struct{}, len(rf.Rules))
	for i, r := range rf.Rules {
		if _, err := compile(r); err != nil {
			return nil, fmt.Errorf("rules file %s entry %d: %w", path, i, err)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("rules file %s: duplicate rule id %s", path, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	if !rf.Extend {
		return rf.Rules, nil
	}

	// File rules override defaults that share an ID.
	merged := make([]Rule, 0, len(rf.Rules))
	for _, d := range DefaultRules() {
		if _, overridden := seen[d.ID]; !overridden {
			merged = append(merged, d)
		}
	}
	return append(merged, rf.Rules...), nil
}
