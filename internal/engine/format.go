package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	summaryBarWidth = 60
	fixPrefix       = "Fix: "
)

// FormatText renders a result in traceback style for human consumption.
// Returns an empty string when there is nothing to report.
func FormatText(result *ScanResult, path string) string {
	if len(result.Violations) == 0 {
		return ""
	}

	var b strings.Builder
	for i, v := range result.Violations {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  File %q, line %d\n", path, v.Line)
		if v.Source != "" {
			fmt.Fprintf(&b, "    %s\n", v.Source)
			if v.Value != "" {
				if col := strings.Index(v.Source, v.Value); col >= 0 {
					fmt.Fprintf(&b, "    %s%s\n",
						strings.Repeat(" ", col), strings.Repeat("^", len(v.Value)))
				}
			}
		}
		message := v.Message
		if message == "" {
			message = fmt.Sprintf("Rule %s violated", v.RuleID)
		}
		fmt.Fprintf(&b, "  %s\n", message)
		if v.Fix != "" {
			writeFix(&b, v.Fix)
		}
	}

	bar := strings.Repeat("=", summaryBarWidth)
	fmt.Fprintf(&b, "\n%s\n", bar)
	fmt.Fprintf(&b, "  Schema: %s (v%s)\n", result.SchemaName, result.SchemaVersion)
	fmt.Fprintf(&b, "  Violations: %d blocking, %d warnings\n",
		result.BlockingCount, result.WarningCount)
	if result.BlockingCount > 0 {
		b.WriteString("  EXECUTION BLOCKED\n")
	} else {
		b.WriteString("  Execution allowed\n")
	}
	b.WriteString(bar + "\n")
	return b.String()
}

// writeFix renders a possibly multi-line fix suggestion, aligning
// continuation lines under the first.
func writeFix(b *strings.Builder, fix string) {
	lines := strings.Split(strings.TrimSpace(fix), "\n")
	fmt.Fprintf(b, "  %s%s\n", fixPrefix, lines[0])
	padding := strings.Repeat(" ", len(fixPrefix))
	for _, l := range lines[1:] {
		fmt.Fprintf(b, "  %s%s\n", padding, l)
	}
}

type jsonReport struct {
	Status     string      `json:"status"`
	File       string      `json:"file"`
	Violations []Violation `json:"violations"`
	Summary    jsonSummary `json:"summary"`
}

type jsonSummary struct {
	Blocking   int `json:"blocking"`
	Warnings   int `json:"warnings"`
	TotalRules int `json:"total_rules"`
}

// FormatJSON renders a result as an indented JSON report.
func FormatJSON(result *ScanResult, path string) ([]byte, error) {
	report := jsonReport{
		Status:     result.Status,
		File:       path,
		Violations: result.Violations,
		Summary: jsonSummary{
			Blocking:   result.BlockingCount,
			Warnings:   result.WarningCount,
			TotalRules: result.TotalRules,
		},
	}
	if report.Violations == nil {
		report.Violations = []Violation{}
	}
	return json.MarshalIndent(report, "", "  ")
}
