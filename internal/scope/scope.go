// Package scope decides which files are subject to enforcement and under
// which schema.
package scope

import (
	"path/filepath"
	"strings"

	"github.com/pygate/pygate/internal/config"
	"github.com/pygate/pygate/internal/rules"
)

// InScope reports whether a file falls inside a schema's enforcement
// perimeter. Exemption always wins over gating: exact exempt filenames are
// checked first, then exempt path prefixes. An empty gated_paths list gates
// everything.
func InScope(path string, sc *rules.ScopeConfig) bool {
	if sc == nil {
		return true
	}
	base := filepath.Base(path)
	for _, f := range sc.ExemptFiles {
		if base == f {
			return false
		}
	}
	for _, p := range sc.ExemptPaths {
		if matchPrefix(path, p) {
			return false
		}
	}
	if len(sc.GatedPaths) == 0 {
		return true
	}
	for _, p := range sc.GatedPaths {
		if matchPrefix(path, p) {
			return true
		}
	}
	return false
}

// matchPrefix reports whether the path starts with the prefix or contains it
// as an interior path segment.
func matchPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.HasPrefix(path, prefix) || strings.Contains(path, "/"+prefix)
}

// EffectiveSchema resolves the schema name for a file from the project
// config's ordered per-path overrides. The second return is true when the
// file is explicitly exempt (override with a null schema); the scan then
// short-circuits to passed.
func EffectiveSchema(path string, project *rules.ProjectConfig) (string, bool) {
	base := filepath.Base(path)
	for _, ovr := range project.Overrides {
		switch {
		case ovr.Schema == nil:
			if matchGlob(path, ovr.Pattern) || matchGlob(base, ovr.Pattern) {
				return "", true
			}
		case *ovr.Schema != "":
			if matchGlob(path, ovr.Pattern) || strings.HasPrefix(path, strings.TrimRight(ovr.Pattern, "*")) {
				return *ovr.Schema, false
			}
		}
	}
	if project.Schema != "" {
		return project.Schema, false
	}
	return config.Get().SchemaName, false
}

// matchGlob matches a path against a glob pattern.
// Supports ** for recursive directory matching.
func matchGlob(path, pattern string) bool {
	path = filepath.Clean(path)
	pattern = filepath.Clean(pattern)

	if strings.Contains(pattern, "**") {
		return matchDoublestar(path, pattern)
	}

	matched, _ := filepath.Match(pattern, path)
	if matched {
		return true
	}

	matched, _ = filepath.Match(pattern, filepath.Base(path))
	return matched
}

// matchDoublestar handles ** glob patterns.
func matchDoublestar(path, pattern string) bool {
	parts := strings.Split(pattern, "**")
	if len(parts) != 2 {
		return false
	}

	prefix := strings.TrimSuffix(parts[0], string(filepath.Separator))
	suffix := strings.TrimPrefix(parts[1], string(filepath.Separator))

	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}

	if suffix == "" {
		return true
	}

	remaining := path
	if prefix != "" {
		remaining = strings.TrimPrefix(path, prefix)
		remaining = strings.TrimPrefix(remaining, string(filepath.Separator))
	}

	pathParts := strings.Split(remaining, string(filepath.Separator))
	for i := range pathParts {
		candidate := strings.Join(pathParts[i:], string(filepath.Separator))
		matched, _ := filepath.Match(suffix, candidate)
		if matched {
			return true
		}
	}

	return false
}
