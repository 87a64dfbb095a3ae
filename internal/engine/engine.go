// Package engine orchestrates a scan: it composes the analyzer, rule
// resolver, scope resolver, and check evaluators into the single entry point
// callers use. The engine never parses source itself and never renders
// output; it returns structured results for a presentation layer.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pygate/pygate/internal/analyzer"
	"github.com/pygate/pygate/internal/checks"
	"github.com/pygate/pygate/internal/config"
	"github.com/pygate/pygate/internal/dedupe"
	"github.com/pygate/pygate/internal/rules"
	"github.com/pygate/pygate/internal/scope"
)

// Scan statuses.
const (
	StatusPassed   = "passed"
	StatusRejected = "rejected"
)

// Violation is a single rule violation found during scanning, with its
// message and fix templates already rendered.
type Violation struct {
	RuleID   string `json:"rule"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
	Source   string `json:"source"`
	Value    string `json:"-"`
	Message  string `json:"message"`
	Fix      string `json:"fix"`
}

// ScanResult is the outcome of scanning one file against a schema.
type ScanResult struct {
	Status        string
	Violations    []Violation
	BlockingCount int
	WarningCount  int
	PassedRules   []string
	TotalRules    int
	ScanMS        int64
	SchemaName    string
	SchemaVersion string
}

// ViolationSummary is the compact per-violation form recorded in telemetry.
type ViolationSummary struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
}

// ScanRecord is one flat telemetry record per scan.
type ScanRecord struct {
	File          string
	Schema        string
	SchemaVersion string
	Status        string
	Violations    []ViolationSummary
	PassedRules   []string
	TotalRules    int
	Source        []byte
	ScanMS        int64
}

// Recorder receives one record per scan when project logging is enabled.
// The recorder owns the on-disk format.
type Recorder interface {
	Record(dir string, rec *ScanRecord) error
}

// Options configures an Engine. All fields are optional.
type Options struct {
	Log      *zap.SugaredLogger
	Registry *checks.Registry
	Recorder Recorder
	Dedupe   dedupe.Store
}

// Engine scans Python source files against resolved schemas. An Engine is
// safe for concurrent use: scans share only the read-only store and the
// dedupe set.
type Engine struct {
	store    rules.Store
	runner   *checks.Runner
	log      *zap.SugaredLogger
	recorder Recorder
	dedupe   dedupe.Store
}

// New builds an Engine over a resource store. A nil store is allowed and
// makes every scan pass: enforcement is simply not installed.
func New(store rules.Store, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	registry := opts.Registry
	if registry == nil {
		registry = checks.NewRegistry()
	}
	return &Engine{
		store:    store,
		runner:   checks.NewRunner(store, registry, log),
		log:      log,
		recorder: opts.Recorder,
		dedupe:   opts.Dedupe,
	}
}

// ScanOptions adjusts a single scan.
type ScanOptions struct {
	// SkipScope bypasses the schema's gated/exempt path checks. Used when
	// the caller has already decided the file is subject to enforcement.
	SkipScope bool
}

// Scan checks one source file against the schema selected by the project
// config at projectPath. Missing store, missing project config, an exempt
// path, or an out-of-scope file all return a passed result with zero
// violations. The only error return is a parse failure, which the caller
// must treat as blocking.
func (e *Engine) Scan(ctx context.Context, source []byte, path, projectPath string, opts ScanOptions) (*ScanResult, error) {
	start := time.Now()

	if e.dedupe != nil {
		first, err := e.dedupe.Visit(path)
		if err != nil {
			e.log.Warnw("dedupe store failed", "file", path, "error", err)
		} else if !first {
			return &ScanResult{Status: StatusPassed}, nil
		}
	}

	if e.store == nil {
		return &ScanResult{Status: StatusPassed}, nil
	}

	project, err := rules.LoadProjectConfig(projectPath)
	if err != nil {
		e.log.Debugw("no project config", "path", projectPath, "error", err)
		return &ScanResult{Status: StatusPassed}, nil
	}

	schemaName, exempt := scope.EffectiveSchema(path, project)
	if exempt {
		return &ScanResult{Status: StatusPassed}, nil
	}

	manifest, err := e.store.Schema(schemaName)
	if err != nil {
		e.log.Warnw("schema not found", "schema", schemaName, "error", err)
		return &ScanResult{Status: StatusPassed}, nil
	}

	if !opts.SkipScope && !scope.InScope(path, &manifest.Scope) {
		return &ScanResult{Status: StatusPassed}, nil
	}

	resolved := rules.Resolve(manifest, e.store, e.log)
	resolved = rules.ApplyProjectOverrides(resolved, project)
	var active []*rules.Resolved
	for _, r := range resolved {
		if r.Active() {
			active = append(active, r)
		}
	}

	a, err := analyzer.New(ctx, source, path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	variables := a.BuildVariables(nil)

	result := &ScanResult{
		Status:        StatusPassed,
		TotalRules:    len(active),
		SchemaName:    manifest.Schema.Name,
		SchemaVersion: schemaVersion(manifest),
	}
	var summaries []ViolationSummary

	for _, rule := range active {
		findings := e.runRule(rule, a)
		if len(findings) == 0 {
			result.PassedRules = append(result.PassedRules, rule.ID)
			continue
		}
		for _, f := range findings {
			v := buildViolation(rule, f, variables)
			result.Violations = append(result.Violations, v)
			summaries = append(summaries, ViolationSummary{
				Rule:     rule.ID,
				Severity: string(rule.Severity),
				Line:     v.Line,
			})
			switch rule.Severity {
			case rules.SeverityBlock:
				result.BlockingCount++
			case rules.SeverityWarn:
				result.WarningCount++
			}
		}
	}

	if result.BlockingCount > 0 {
		result.Status = StatusRejected
	}
	result.ScanMS = time.Since(start).Milliseconds()

	if e.recorder != nil && project.Logging.Enabled && project.Logging.Directory != "" {
		rec := &ScanRecord{
			File:          path,
			Schema:        result.SchemaName,
			SchemaVersion: result.SchemaVersion,
			Status:        result.Status,
			Violations:    summaries,
			PassedRules:   result.PassedRules,
			TotalRules:    result.TotalRules,
			Source:        source,
			ScanMS:        result.ScanMS,
		}
		if err := e.recorder.Record(project.Logging.Directory, rec); err != nil {
			e.log.Warnw("telemetry write failed", "file", path, "error", err)
		}
	}

	return result, nil
}

// runRule evaluates one rule, converting a panicking evaluator into a single
// synthetic violation so one broken rule never takes down the scan.
func (e *Engine) runRule(rule *rules.Resolved, a *analyzer.Source) (findings []analyzer.Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Errorw("rule evaluation failed", "rule", rule.ID, "panic", rec)
			findings = []analyzer.Finding{{
				Line:   config.Get().ErrorLine,
				Source: fmt.Sprintf("internal error evaluating rule %s", rule.ID),
			}}
		}
	}()
	return e.runner.Run(rule, a)
}

// buildViolation renders one finding into a violation, interpolating the
// rule's message and fix templates with the analyzer variables merged with
// the finding's own fields. Finding fields win on key collision.
func buildViolation(rule *rules.Resolved, f analyzer.Finding, variables map[string]string) Violation {
	line := f.Line
	if line == 0 {
		line = config.Get().FallbackLine
	}

	merged := make(map[string]string, len(variables)+len(f.Vars)+3)
	for k, v := range variables {
		merged[k] = v
	}
	merged["line"] = strconv.Itoa(line)
	merged["source"] = f.Source
	merged["value"] = f.Value
	for k, v := range f.Vars {
		merged[k] = v
	}

	return Violation{
		RuleID:   rule.ID,
		Severity: string(rule.Severity),
		Line:     line,
		Source:   f.Source,
		Value:    f.Value,
		Message:  InjectVariables(rule.Definition.Error.Message, merged),
		Fix:      InjectVariables(rule.Definition.Error.Fix, merged),
	}
}

func schemaVersion(manifest *rules.SchemaManifest) string {
	if manifest.Schema.Version != "" {
		return manifest.Schema.Version
	}
	return config.Get().SchemaVersion
}
