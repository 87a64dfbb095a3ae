package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeStoreFile(t *testing.T, root, sub, name, content string) {
	t.Helper()
	dir := filepath.Join(root, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDirStoreRule(t *testing.T) {
	root := t.TempDir()
	writeStoreFile(t, root, "rules", "header.yaml", `
id: header
name: Header comment
check:
  type: pattern_exists
  pattern: comment_block_starting_with
defaults:
  severity: warn
error:
  message: "Missing header in {filename}"
`)

	store, err := NewDirStore(root)
	if err != nil {
		t.Fatalf("NewDirStore() error = %v", err)
	}

	def, err := store.Rule("header")
	if err != nil {
		t.Fatalf("Rule() error = %v", err)
	}
	if def.ID != "header" || def.Name != "Header comment" {
		t.Errorf("def = %+v", def)
	}
	if def.Check.Type != "pattern_exists" {
		t.Errorf("Check.Type = %q", def.Check.Type)
	}
	if def.Defaults.Severity != SeverityWarn {
		t.Errorf("Defaults.Severity = %q", def.Defaults.Severity)
	}

	_, err = store.Rule("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing rule error = %v, want ErrNotFound", err)
	}
}

func TestDirStoreSchema(t *testing.T) {
	root := t.TempDir()
	writeStoreFile(t, root, "schemas", "production.yaml", `
schema:
  name: production
  version: "1.2"
extends: base
scope:
  gated_paths: ["src/"]
  exempt_files: ["conftest.py"]
rules:
  - header
  - id: docstring
    severity: block
`)

	store, err := NewDirStore(root)
	if err != nil {
		t.Fatal(err)
	}

	manifest, err := store.Schema("production")
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if manifest.Schema.Name != "production" || manifest.Schema.Version != "1.2" {
		t.Errorf("meta = %+v", manifest.Schema)
	}
	if manifest.Extends != "base" {
		t.Errorf("Extends = %q", manifest.Extends)
	}
	if len(manifest.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(manifest.Rules))
	}
	// Scalar form carries just the id.
	if manifest.Rules[0].ID != "header" || manifest.Rules[0].Severity != "" {
		t.Errorf("rules[0] = %+v", manifest.Rules[0])
	}
	// Mapping form carries overrides.
	if manifest.Rules[1].ID != "docstring" || manifest.Rules[1].Severity != SeverityBlock {
		t.Errorf("rules[1] = %+v", manifest.Rules[1])
	}

	_, err = store.Schema("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing schema error = %v, want ErrNotFound", err)
	}
}

func TestDirStoreSchemaNameFallback(t *testing.T) {
	root := t.TempDir()
	writeStoreFile(t, root, "schemas", "base.yaml", "rules: []\n")

	store, err := NewDirStore(root)
	if err != nil {
		t.Fatal(err)
	}
	manifest, err := store.Schema("base")
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Schema.Name != "base" {
		t.Errorf("Name = %q, want fallback to file name", manifest.Schema.Name)
	}
}

func TestPluginPathConfinement(t *testing.T) {
	root := t.TempDir()
	store := &DirStore{root: root}

	want := filepath.Join(root, "plugins", "check.so")
	if got := store.PluginPath("check.so"); got != want {
		t.Errorf("PluginPath = %q, want %q", got, want)
	}
	// Path traversal in a rule file must not escape the plugin directory.
	if got := store.PluginPath("../../etc/evil.so"); got != filepath.Join(root, "plugins", "evil.so") {
		t.Errorf("PluginPath = %q, traversal must be stripped", got)
	}
}

func TestFindHome(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(EnvHome, dir)
		got, ok := FindHome()
		if !ok || got != dir {
			t.Errorf("FindHome() = %q, %v; want %q, true", got, ok, dir)
		}
	})

	t.Run("env points nowhere", func(t *testing.T) {
		t.Setenv(EnvHome, filepath.Join(t.TempDir(), "missing"))
		if _, ok := FindHome(); ok {
			t.Error("expected not found for nonexistent env dir")
		}
	})
}

func TestMapStore(t *testing.T) {
	store := &MapStore{
		Rules:   map[string]*RuleDefinition{"r": {ID: "r"}},
		Schemas: map[string]*SchemaManifest{"s": {Schema: SchemaMeta{Name: "s"}}},
	}
	if _, err := store.Rule("r"); err != nil {
		t.Errorf("Rule() error = %v", err)
	}
	if _, err := store.Schema("s"); err != nil {
		t.Errorf("Schema() error = %v", err)
	}
	if _, err := store.Rule("x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
