// Package rules loads rule definitions and schema manifests and resolves
// them, through inheritance and overrides, into the flat rule list a scan
// evaluates.
package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Severity controls how a rule's violations affect the scan outcome.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityOff   Severity = "off"
)

// RuleDefinition is one rule as loaded from its YAML document. Definitions
// are immutable once loaded and re-read from the store per scan.
type RuleDefinition struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Check       CheckConfig   `yaml:"check"`
	Defaults    RuleDefaults  `yaml:"defaults"`
	Error       ErrorTemplate `yaml:"error"`
}

// RuleDefaults carries a definition's own severity/enabled defaults.
// Enabled is a pointer so an absent key can fall through to the global
// default.
type RuleDefaults struct {
	Severity Severity `yaml:"severity"`
	Enabled  *bool    `yaml:"enabled"`
}

// ErrorTemplate holds the message and fix-suggestion templates. Both support
// {variable} interpolation against the analyzer's variable map.
type ErrorTemplate struct {
	Message string `yaml:"message"`
	Fix     string `yaml:"fix"`
}

// CheckConfig is the check-type tag plus its type-specific parameters.
// Fields not used by a given check type are left at their zero values.
type CheckConfig struct {
	Type string `yaml:"type"`

	// pattern_exists
	Pattern            string   `yaml:"pattern,omitempty"`
	Value              string   `yaml:"value,omitempty"`
	Location           string   `yaml:"location,omitempty"`
	RequiredSubstrings []string `yaml:"required_substrings,omitempty"`

	// ast_node_exists
	Node string `yaml:"node,omitempty"`

	// ast_check
	Check            string   `yaml:"check,omitempty"`
	DecoratorPattern []string `yaml:"decorator_pattern,omitempty"`

	// token_scan
	Scan             string   `yaml:"scan,omitempty"`
	SafeValues       []any    `yaml:"safe_values,omitempty"`
	SafeContexts     []string `yaml:"safe_contexts,omitempty"`
	ForbiddenStrings []string `yaml:"forbidden_strings,omitempty"`

	// uppercase_assignments_exist
	MinCount *int `yaml:"min_count,omitempty"`

	// file_metric
	Metric   string `yaml:"metric,omitempty"`
	MaxLines *int   `yaml:"max_lines,omitempty"`

	// custom
	Plugin   string `yaml:"plugin,omitempty"`
	Function string `yaml:"function,omitempty"`
}

// SchemaManifest is a named, inheritable bundle of rule references plus the
// scope declaration that decides which files it enforces.
type SchemaManifest struct {
	Schema          SchemaMeta  `yaml:"schema"`
	Extends         string      `yaml:"extends,omitempty"`
	Scope           ScopeConfig `yaml:"scope"`
	Rules           []RuleRef   `yaml:"rules"`
	AdditionalRules []RuleRef   `yaml:"additional_rules,omitempty"`
}

// SchemaMeta identifies a schema manifest.
type SchemaMeta struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ScopeConfig declares a schema's enforcement perimeter. Exemption always
// wins over gating; an empty GatedPaths list gates everything.
type ScopeConfig struct {
	GatedPaths  []string `yaml:"gated_paths,omitempty"`
	ExemptPaths []string `yaml:"exempt_paths,omitempty"`
	ExemptFiles []string `yaml:"exempt_files,omitempty"`
}

// RuleRef is a schema's reference to a rule: an id plus optional overrides.
// In YAML it may be written as a bare string or as a mapping.
type RuleRef struct {
	ID       string         `yaml:"id"`
	Severity Severity       `yaml:"severity,omitempty"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// UnmarshalYAML accepts either "- rule-id" or a mapping with overrides.
func (r *RuleRef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&r.ID)
	}
	type plain RuleRef
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("invalid rule reference: %w", err)
	}
	*r = RuleRef(p)
	return nil
}

// Resolved is a rule after all inheritance and override layers have been
// applied, ready to evaluate. Built fresh per scan and never shared.
type Resolved struct {
	ID         string
	Definition *RuleDefinition
	Severity   Severity
	Enabled    bool
	Params     map[string]any
}

// Active reports whether the rule participates in a scan.
func (r *Resolved) Active() bool {
	return r.Enabled && r.Severity != SeverityOff
}
