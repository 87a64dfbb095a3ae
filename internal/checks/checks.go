// Package checks implements the check-type evaluators and their dispatcher.
//
// Each check type is a pure function over the analyzer's query surface; a
// Runner maps the check-type tag from a rule document to the matching
// function. Adding a check type means adding one function and one table
// entry.
package checks

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pygate/pygate/internal/analyzer"
	"github.com/pygate/pygate/internal/config"
	"github.com/pygate/pygate/internal/rules"
)

// Check type tags.
const (
	TypePatternExists        = "pattern_exists"
	TypeASTNodeExists        = "ast_node_exists"
	TypeASTCheck             = "ast_check"
	TypeTokenScan            = "token_scan"
	TypeUppercaseAssignments = "uppercase_assignments_exist"
	TypeDocstringContains    = "docstring_contains"
	TypeFileMetric           = "file_metric"
	TypeCustom               = "custom"
)

// Named structural patterns for pattern_exists.
const (
	PatternMainGuard    = "if_name_main"
	PatternPrintCall    = "print_call"
	PatternCommentBlock = "comment_block_starting_with"
)

// Free-text search locations for the pattern_exists fallback mode.
const (
	LocationFirstNonEmptyLine = "first_non_empty_line"
	LocationAnywhere          = "anywhere"
	LocationEndOfFile         = "end_of_file"
)

// Node names for ast_node_exists.
const (
	NodeModuleDocstring = "module_docstring"
	NodeImportStatement = "import_statement"
)

// Named checks for ast_check.
const (
	CheckAllFunctionDocstrings = "all_functions_have_docstrings"
	CheckForLoopsProgress      = "for_loops_without_progress"
	CheckDecoratedDocstrings   = "decorated_functions_have_docstrings"
	CheckDecoratedTryExcept    = "decorated_functions_have_try_except"
)

// Scan names for token_scan.
const (
	ScanHardcodedLiterals = "hardcoded_literals"
	ScanLogCalls          = "log_calls_containing"
)

// Func evaluates one check against an analyzed source.
type Func func(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding

// Runner dispatches resolved rules to check evaluators.
type Runner struct {
	store    rules.Store
	registry *Registry
	log      *zap.SugaredLogger
	table    map[string]Func
}

// NewRunner builds a Runner. The registry may be nil when no plugin checks
// are configured.
func NewRunner(store rules.Store, registry *Registry, log *zap.SugaredLogger) *Runner {
	r := &Runner{store: store, registry: registry, log: log}
	r.table = map[string]Func{
		TypePatternExists:        checkPatternExists,
		TypeASTNodeExists:        checkASTNodeExists,
		TypeASTCheck:             checkASTCheck,
		TypeTokenScan:            checkTokenScan,
		TypeUppercaseAssignments: checkUppercaseAssignments,
		TypeDocstringContains:    checkDocstringContains,
		TypeFileMetric:           checkFileMetric,
		TypeCustom:               r.checkCustom,
	}
	return r
}

// Run evaluates one resolved rule. An unrecognized check-type tag yields a
// warning and zero violations: an unknown rule must not block unrelated
// work. Contrast with plugin failures, which fail closed.
func (r *Runner) Run(rule *rules.Resolved, a *analyzer.Source) []analyzer.Finding {
	cfg := &rule.Definition.Check
	fn, ok := r.table[cfg.Type]
	if !ok {
		r.log.Warnw("unknown check type", "type", cfg.Type, "rule", rule.ID)
		return nil
	}
	return fn(a, cfg, rule.Params)
}

// ---------------------------------------------------------------------------
// pattern_exists
// ---------------------------------------------------------------------------

func checkPatternExists(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	errorLine := config.Get().ErrorLine

	switch cfg.Pattern {
	case PatternMainGuard:
		if !a.HasMainGuard() {
			return []analyzer.Finding{{Line: a.LineCount()}}
		}
		return nil

	case PatternPrintCall:
		if !a.HasCallTo("print") {
			return []analyzer.Finding{{Line: a.LineCount()}}
		}
		return nil

	case PatternCommentBlock:
		header := a.HeaderComments()
		headerText := strings.Join(header, "\n")
		if cfg.Value != "" && !anyContains(header, cfg.Value) {
			return []analyzer.Finding{{Line: errorLine}}
		}
		for _, sub := range cfg.RequiredSubstrings {
			// Substrings may carry a {variable} tail; only the literal
			// head is matched.
			if i := strings.Index(sub, "{"); i >= 0 {
				sub = sub[:i]
			}
			if sub != "" && !strings.Contains(headerText, sub) {
				return []analyzer.Finding{{Line: errorLine}}
			}
		}
		return nil
	}

	return checkTextPresence(a, cfg, errorLine)
}

// checkTextPresence is the generic fallback mode: free-text presence at one
// of three locations.
func checkTextPresence(a *analyzer.Source, cfg *rules.CheckConfig, errorLine int) []analyzer.Finding {
	value := cfg.Value
	if value == "" {
		value = cfg.Pattern
	}
	location := cfg.Location
	if location == "" {
		location = LocationAnywhere
	}
	lines := a.Lines()

	switch location {
	case LocationFirstNonEmptyLine:
		firstLine, firstNum := "", 0
		for i, l := range lines {
			if strings.TrimSpace(l) != "" {
				firstLine, firstNum = l, i+1
				break
			}
		}
		if value != "" && !strings.Contains(firstLine, value) {
			if firstNum == 0 {
				firstNum = errorLine
			}
			return []analyzer.Finding{{Line: firstNum, Source: strings.TrimRight(firstLine, " \t\r")}}
		}

	case LocationAnywhere:
		// An empty value can never be found, so a misconfigured rule with no
		// value always flags rather than silently passing.
		found := value != "" && anyContains(lines, value)
		if !found && value != "" {
			// Literal match failed; fall back to treating the value as a
			// regular expression over the whole source.
			if re, err := regexp.Compile(value); err == nil && re.MatchString(a.Text()) {
				found = true
			}
		}
		if !found {
			return []analyzer.Finding{{Line: errorLine, Source: a.Line(1)}}
		}

	case LocationEndOfFile:
		if len(lines) > 0 && !strings.Contains(lines[len(lines)-1], value) {
			return []analyzer.Finding{{Line: len(lines), Source: a.Line(len(lines))}}
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// ast_node_exists
// ---------------------------------------------------------------------------

func checkASTNodeExists(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	errorLine := config.Get().ErrorLine

	switch cfg.Node {
	case NodeModuleDocstring:
		docstring, ok := a.ModuleDocstring()
		if !ok || docstring == "" {
			return []analyzer.Finding{{Line: errorLine}}
		}
		for _, sub := range cfg.RequiredSubstrings {
			if !strings.Contains(docstring, sub) {
				return []analyzer.Finding{{
					Line:   errorLine,
					Source: "Missing \"" + sub + "\" in module docstring",
				}}
			}
		}

	case NodeImportStatement:
		if !a.HasImport() {
			return []analyzer.Finding{{Line: errorLine}}
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// ast_check
// ---------------------------------------------------------------------------

func checkASTCheck(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	switch cfg.Check {
	case CheckAllFunctionDocstrings:
		return a.FunctionsMissingDocstrings()
	case CheckForLoopsProgress:
		return a.ForLoopsWithoutProgress(config.Get().ProgressWrappers)
	case CheckDecoratedDocstrings:
		return a.DecoratedFunctions(cfg.DecoratorPattern, analyzer.ModeDocstring)
	case CheckDecoratedTryExcept:
		return a.DecoratedFunctions(cfg.DecoratorPattern, analyzer.ModeTryExcept)
	}
	return nil
}

// ---------------------------------------------------------------------------
// token_scan
// ---------------------------------------------------------------------------

func checkTokenScan(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	switch cfg.Scan {
	case ScanHardcodedLiterals:
		return a.LiteralsInFunctionBodies(cfg.SafeValues, cfg.SafeContexts)

	case ScanLogCalls:
		keywords := config.Get().LogKeywords
		var findings []analyzer.Finding
		for i, line := range a.Lines() {
			lower := strings.ToLower(line)
			if !anyContainsLower(lower, keywords) {
				continue
			}
			for _, forbidden := range cfg.ForbiddenStrings {
				if strings.Contains(lower, strings.ToLower(forbidden)) {
					findings = append(findings, analyzer.Finding{
						Line:   i + 1,
						Source: strings.TrimRight(line, " \t\r"),
						Value:  forbidden,
					})
				}
			}
		}
		return findings
	}
	return nil
}

// ---------------------------------------------------------------------------
// uppercase_assignments_exist
// ---------------------------------------------------------------------------

func checkUppercaseAssignments(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	defaults := config.Get()
	min := defaults.MinUppercaseCount
	if cfg.MinCount != nil {
		min = *cfg.MinCount
	}
	if len(a.ModuleConstants()) < min {
		return []analyzer.Finding{{Line: defaults.ErrorLine}}
	}
	return nil
}

// ---------------------------------------------------------------------------
// docstring_contains
// ---------------------------------------------------------------------------

func checkDocstringContains(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	docstring, ok := a.ModuleDocstring()
	if !ok || !strings.Contains(docstring, cfg.Value) {
		return []analyzer.Finding{{Line: config.Get().ErrorLine}}
	}
	return nil
}

// ---------------------------------------------------------------------------
// file_metric
// ---------------------------------------------------------------------------

func checkFileMetric(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	metric := cfg.Metric
	if metric == "" {
		metric = "line_count"
	}
	if metric != "line_count" {
		return nil
	}

	max := config.Get().MaxLines
	if cfg.MaxLines != nil {
		max = *cfg.MaxLines
	}
	if v, ok := intParam(params, "max_lines"); ok {
		max = v
	}

	if lc := a.LineCount(); lc > max {
		return []analyzer.Finding{{
			Line: lc,
			Vars: map[string]string{"line_count": strconv.Itoa(lc)},
		}}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func anyContains(lines []string, value string) bool {
	for _, l := range lines {
		if strings.Contains(l, value) {
			return true
		}
	}
	return false
}

func anyContainsLower(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// intParam reads an integer parameter that YAML may have decoded as any
// numeric type.
func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}
