package rules

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pygate/pygate/internal/config"
)

// Resolve flattens a schema manifest into an ordered rule list. Parent
// schemas referenced via extends are resolved first; a rule id redeclared by
// a child replaces the inherited entry in place, so the most-specific schema
// has the final say. additional_rules are appended afterwards without
// override semantics. Missing references are skipped with a warning.
func Resolve(manifest *SchemaManifest, store Store, log *zap.SugaredLogger) []*Resolved {
	return resolve(manifest, store, log, map[string]bool{})
}

func resolve(manifest *SchemaManifest, store Store, log *zap.SugaredLogger, visited map[string]bool) []*Resolved {
	var resolved []*Resolved
	visited[manifest.Schema.Name] = true

	if manifest.Extends != "" {
		if visited[manifest.Extends] {
			// A cyclic extends chain is a configuration defect; resolve the
			// chain seen so far rather than blocking every gated file.
			log.Warnw("schema inheritance cycle, truncating",
				"schema", manifest.Schema.Name, "extends", manifest.Extends)
		} else if parent, err := store.Schema(manifest.Extends); err != nil {
			logLookupFailure(log, "parent schema not found", manifest.Extends, err)
		} else {
			resolved = resolve(parent, store, log, visited)
		}
	}

	for _, ref := range manifest.Rules {
		entry := buildEntry(ref, store, log)
		if entry == nil {
			continue
		}
		if i := indexOf(resolved, entry.ID); i >= 0 {
			resolved[i] = entry
		} else {
			resolved = append(resolved, entry)
		}
	}

	for _, ref := range manifest.AdditionalRules {
		ref.Params = nil
		if entry := buildEntry(ref, store, log); entry != nil {
			resolved = append(resolved, entry)
		}
	}

	return resolved
}

// buildEntry loads a rule reference and computes effective severity and
// enabled state: explicit override, else rule-definition default, else
// global default.
func buildEntry(ref RuleRef, store Store, log *zap.SugaredLogger) *Resolved {
	if ref.ID == "" {
		return nil
	}
	def, err := store.Rule(ref.ID)
	if err != nil {
		logLookupFailure(log, "rule not found, skipping", ref.ID, err)
		return nil
	}

	defaults := config.Get()

	severity := ref.Severity
	if severity == "" {
		severity = def.Defaults.Severity
	}
	if severity == "" {
		severity = Severity(defaults.Severity)
	}

	enabled := defaults.Enabled
	switch {
	case ref.Enabled != nil:
		enabled = *ref.Enabled
	case def.Defaults.Enabled != nil:
		enabled = *def.Defaults.Enabled
	}

	params := make(map[string]any, len(ref.Params))
	for k, v := range ref.Params {
		params[k] = v
	}

	return &Resolved{
		ID:         ref.ID,
		Definition: def,
		Severity:   severity,
		Enabled:    enabled,
		Params:     params,
	}
}

// ApplyProjectOverrides applies the project config's rule_overrides onto the
// resolved list in place. This is the highest-precedence layer.
func ApplyProjectOverrides(resolved []*Resolved, project *ProjectConfig) []*Resolved {
	if project == nil || len(project.RuleOverrides) == 0 {
		return resolved
	}
	for _, rule := range resolved {
		ovr, ok := project.RuleOverrides[rule.ID]
		if !ok {
			continue
		}
		if ovr.Severity != "" {
			rule.Severity = ovr.Severity
		}
		if ovr.Enabled != nil {
			rule.Enabled = *ovr.Enabled
		}
		for k, v := range ovr.Params {
			rule.Params[k] = v
		}
	}
	return resolved
}

func indexOf(resolved []*Resolved, id string) int {
	for i, r := range resolved {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func logLookupFailure(log *zap.SugaredLogger, msg, id string, err error) {
	if errors.Is(err, ErrNotFound) {
		log.Warnw(msg, "id", id)
		return
	}
	log.Warnw(msg, "id", id, "error", err)
}
