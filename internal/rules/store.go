package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by stores when a rule or schema id does not
// resolve to a document. Callers treat it as a non-fatal warning.
var ErrNotFound = errors.New("not found")

// Store looks up rule definitions and schema manifests by id. The engine
// treats a store as read-only; concurrent scans may share one safely.
type Store interface {
	Rule(id string) (*RuleDefinition, error)
	Schema(name string) (*SchemaManifest, error)
	// PluginPath resolves a trusted-directory-relative plugin reference to
	// an absolute path. Only the base name of the reference is honored, so
	// rule files cannot escape the plugin directory.
	PluginPath(ref string) string
}

// DirStore reads rules/<id>.yaml, schemas/<name>.yaml, and plugins/* from a
// home directory.
type DirStore struct {
	root string
}

// EnvHome is the environment override for the store home directory.
const EnvHome = "PYGATE_HOME"

// NewDirStore returns a store rooted at dir, or an error if dir is not a
// directory.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot open store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root is not a directory: %s", dir)
	}
	return &DirStore{root: dir}, nil
}

// FindHome locates the store home directory: $PYGATE_HOME if set, otherwise
// ~/.config/pygate. The second return is false when neither exists.
func FindHome() (string, bool) {
	if env := os.Getenv(EnvHome); env != "" {
		if info, err := os.Stat(env); err == nil && info.IsDir() {
			return env, true
		}
		return "", false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(home, ".config", "pygate")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, true
	}
	return "", false
}

// Rule loads a rule definition by id.
func (s *DirStore) Rule(id string) (*RuleDefinition, error) {
	path := filepath.Join(s.root, "rules", id+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rule %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("rule %q: %w", id, err)
	}
	var def RuleDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("rule %q: %w", id, err)
	}
	if def.ID == "" {
		def.ID = id
	}
	return &def, nil
}

// Schema loads a schema manifest by name.
func (s *DirStore) Schema(name string) (*SchemaManifest, error) {
	path := filepath.Join(s.root, "schemas", name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("schema %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	var manifest SchemaManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("schema %q: %w", name, err)
	}
	if manifest.Schema.Name == "" {
		manifest.Schema.Name = name
	}
	return &manifest, nil
}

// PluginPath resolves a plugin reference inside the trusted plugins
// directory.
func (s *DirStore) PluginPath(ref string) string {
	return filepath.Join(s.root, "plugins", filepath.Base(ref))
}

// MapStore is an in-memory Store, used by embedded deployments and tests.
type MapStore struct {
	Rules   map[string]*RuleDefinition
	Schemas map[string]*SchemaManifest
	Plugins string
}

func (s *MapStore) Rule(id string) (*RuleDefinition, error) {
	if def, ok := s.Rules[id]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("rule %q: %w", id, ErrNotFound)
}

func (s *MapStore) Schema(name string) (*SchemaManifest, error) {
	if m, ok := s.Schemas[name]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("schema %q: %w", name, ErrNotFound)
}

func (s *MapStore) PluginPath(ref string) string {
	return filepath.Join(s.Plugins, filepath.Base(ref))
}
