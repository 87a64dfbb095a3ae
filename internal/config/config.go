// Package config provides the process-wide defaults table.
//
// Defaults are compiled into the binary and loaded once, on first access.
// The table is immutable after loading, so unsynchronized concurrent reads
// from parallel scans are safe. A missing or malformed required key is a
// deployment defect, not a per-file condition, and aborts the process.
package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var rawDefaults []byte

// Defaults holds the global fallback values used across the engine.
type Defaults struct {
	Severity string `yaml:"severity"`
	Enabled  bool   `yaml:"enabled"`

	SchemaName    string `yaml:"schema_name"`
	SchemaVersion string `yaml:"schema_version"`

	ErrorLine         int `yaml:"error_line"`
	FallbackLine      int `yaml:"fallback_line"`
	MaxLines          int `yaml:"max_lines"`
	MinUppercaseCount int `yaml:"min_uppercase_count"`
	HashTruncation    int `yaml:"hash_truncation"`

	LogKeywords      []string `yaml:"log_keywords"`
	ProgressWrappers []string `yaml:"progress_wrappers"`
}

var (
	once     sync.Once
	defaults *Defaults
)

// Get returns the shared defaults table, loading it on first call.
// It panics if a required key is absent or the embedded file is invalid.
func Get() *Defaults {
	once.Do(func() {
		d, err := parse(rawDefaults)
		if err != nil {
			panic("config: " + err.Error())
		}
		defaults = d
	})
	return defaults
}

func parse(data []byte) (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("cannot parse defaults: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Defaults) validate() error {
	required := []struct {
		key string
		ok  bool
	}{
		{"severity", d.Severity != ""},
		{"schema_name", d.SchemaName != ""},
		{"schema_version", d.SchemaVersion != ""},
		{"max_lines", d.MaxLines > 0},
		{"hash_truncation", d.HashTruncation > 0},
		{"log_keywords", len(d.LogKeywords) > 0},
		{"progress_wrappers", len(d.ProgressWrappers) > 0},
	}
	for _, r := range required {
		if !r.ok {
			return fmt.Errorf("missing required default: %s", r.key)
		}
	}
	return nil
}
