package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/remask/remask/internal/masking"
)

// Rulepack is a YAML file of custom detection rules loaded at startup.
// Every rule goes through the same validation as rules submitted over the
// API, so a bad pack fails the whole load rather than silently dropping
// entries.
type Rulepack struct {
	Name     string                      `yaml:"name"`
	Patterns []masking.CustomPatternSpec `yaml:"patterns"`
}

// LoadRulepack reads and parses a single rulepack file.
func LoadRulepack(path string) (*Rulepack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rulepack %s: %w", path, err)
	}

	var pack Rulepack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rulepack %s: %w", path, err)
	}

	if len(pack.Patterns) == 0 {
		return nil, fmt.Errorf("rulepack %s contains no patterns", path)
	}

	return &pack, nil
}

// LoadRulepacks loads every configured rulepack and returns the combined
// rule list in file order.
func LoadRulepacks(paths []string) ([]masking.CustomPatternSpec, error) {
	var specs []masking.CustomPatternSpec
	for _, path := range paths {
		pack, err := LoadRulepack(path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, pack.Patterns...)
	}
	return specs, nil
}
