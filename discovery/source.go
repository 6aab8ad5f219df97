package discovery

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultExcludes is applied when no source config overrides it. The eval
// repository holds the evaluation harness itself and is never a test
// subject.
var DefaultExcludes = []string{"eval"}

// SourceConfig pins discovery inputs from a file: an explicit repository
// list (bypassing API listing), the organization, and exclusion rules.
type SourceConfig struct {
	Org      string   `yaml:"org"`
	Repos    []string `yaml:"repos"`
	Excludes []string `yaml:"excludes"`
}

// LoadSourceConfig reads and validates a source config file.
func LoadSourceConfig(path string) (*SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source config %s: %w", path, err)
	}

	var cfg SourceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse source config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the config for entries that would silently misbehave
// downstream.
func (c *SourceConfig) Validate() error {
	for _, repo := range c.Repos {
		if repo == "" {
			return fmt.Errorf("repos contains an empty name")
		}
	}
	for _, repo := range c.Excludes {
		if repo == "" {
			return fmt.Errorf("excludes contains an empty name")
		}
	}
	return nil
}

// EffectiveExcludes returns the exclusion list a batch should apply:
// the config's own list when present, the default otherwise.
func (c *SourceConfig) EffectiveExcludes() []string {
	if c != nil && len(c.Excludes) > 0 {
		return c.Excludes
	}
	return DefaultExcludes
}
