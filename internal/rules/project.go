package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-repository configuration file name.
const ProjectConfigName = ".gate_schema.yaml"

// ProjectConfig is the consumer-owned, per-repository configuration.
type ProjectConfig struct {
	// Schema is the base schema name applied when no path override matches.
	Schema string `yaml:"schema"`
	// Overrides maps glob patterns to per-path schema overrides, evaluated
	// in declaration order.
	Overrides OverrideList `yaml:"overrides,omitempty"`
	// RuleOverrides are applied after schema resolution, with the highest
	// precedence of any layer.
	RuleOverrides map[string]RuleOverride `yaml:"rule_overrides,omitempty"`
	Logging       LoggingConfig           `yaml:"logging,omitempty"`
}

// PathOverride binds a glob pattern to a schema name. A nil Schema means the
// matching paths are exempt from enforcement entirely.
type PathOverride struct {
	Pattern string
	Schema  *string
}

// OverrideList preserves the YAML mapping order of per-path overrides, since
// the first matching pattern wins.
type OverrideList []PathOverride

// UnmarshalYAML decodes a mapping of pattern -> {schema: name|null} while
// keeping declaration order.
func (o *OverrideList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("overrides must be a mapping, got %s", value.Tag)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i]
		val := value.Content[i+1]
		if val.Tag == "!!null" {
			continue
		}
		var body struct {
			Schema *string `yaml:"schema"`
		}
		if err := val.Decode(&body); err != nil {
			return fmt.Errorf("override %q: %w", key.Value, err)
		}
		*o = append(*o, PathOverride{Pattern: key.Value, Schema: body.Schema})
	}
	return nil
}

// RuleOverride adjusts one resolved rule from the project config. Params are
// shallow-merged over the rule's resolved params.
type RuleOverride struct {
	Severity Severity       `yaml:"severity,omitempty"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// LoggingConfig controls the per-scan telemetry record.
type LoggingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// LoadProjectConfig reads and parses a project config file.
func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return &cfg, nil
}

// FindProjectConfig walks upward from dir looking for the project config
// file. Returns the path and true when found.
func FindProjectConfig(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
