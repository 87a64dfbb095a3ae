package checks

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/pygate/pygate/internal/analyzer"
	"github.com/pygate/pygate/internal/rules"
)

func mustParse(t *testing.T, source string) *analyzer.Source {
	t.Helper()
	s, err := analyzer.New(context.Background(), []byte(source), "app/example.py")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testRunner() *Runner {
	return NewRunner(&rules.MapStore{}, NewRegistry(), zap.NewNop().Sugar())
}

func resolvedRule(id string, check rules.CheckConfig, params map[string]any) *rules.Resolved {
	return &rules.Resolved{
		ID:         id,
		Definition: &rules.RuleDefinition{ID: id, Check: check},
		Severity:   rules.SeverityBlock,
		Enabled:    true,
		Params:     params,
	}
}

func TestRunUnknownCheckType(t *testing.T) {
	r := testRunner()
	a := mustParse(t, "x = 1\n")
	rule := resolvedRule("weird", rules.CheckConfig{Type: "no_such_type"}, nil)
	if got := r.Run(rule, a); len(got) != 0 {
		t.Errorf("findings = %v, want none for unknown check type", got)
	}
}

func TestPatternMainGuard(t *testing.T) {
	r := testRunner()
	cfg := rules.CheckConfig{Type: TypePatternExists, Pattern: PatternMainGuard}

	t.Run("present", func(t *testing.T) {
		a := mustParse(t, "if __name__ == \"__main__\":\n    main()\n")
		if got := r.Run(resolvedRule("mg", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
	})

	t.Run("missing reports last line", func(t *testing.T) {
		a := mustParse(t, "x = 1\ny = 2\nmain()\n")
		got := r.Run(resolvedRule("mg", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Line != a.LineCount() {
			t.Errorf("Line = %d, want %d", got[0].Line, a.LineCount())
		}
	})
}

func TestPatternCommentBlock(t *testing.T) {
	r := testRunner()
	cfg := rules.CheckConfig{
		Type:               TypePatternExists,
		Pattern:            PatternCommentBlock,
		Value:              "Module:",
		RequiredSubstrings: []string{"Author: {author}"},
	}

	t.Run("complete header", func(t *testing.T) {
		a := mustParse(t, "# Module: example\n# Author: someone\nimport os\n")
		if got := r.Run(resolvedRule("hdr", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		a := mustParse(t, "# Author: someone\nimport os\n")
		got := r.Run(resolvedRule("hdr", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Line != 1 {
			t.Errorf("Line = %d, want 1", got[0].Line)
		}
	})

	t.Run("missing required substring", func(t *testing.T) {
		a := mustParse(t, "# Module: example\nimport os\n")
		if got := r.Run(resolvedRule("hdr", cfg, nil), a); len(got) != 1 {
			t.Errorf("findings = %d, want 1", len(got))
		}
	})
}

func TestPatternTextLocations(t *testing.T) {
	r := testRunner()

	t.Run("first non-empty line", func(t *testing.T) {
		cfg := rules.CheckConfig{
			Type:     TypePatternExists,
			Value:    "#!/usr/bin/env python",
			Location: LocationFirstNonEmptyLine,
		}
		a := mustParse(t, "\n# just a comment\nx = 1\n")
		got := r.Run(resolvedRule("shebang", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Line != 2 {
			t.Errorf("Line = %d, want 2", got[0].Line)
		}
	})

	t.Run("anywhere literal", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Value: "TODO", Location: LocationAnywhere}
		a := mustParse(t, "x = 1\n# TODO later\n")
		if got := r.Run(resolvedRule("td", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
	})

	t.Run("anywhere regex fallback", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Value: "x\\s*=\\s*1", Location: LocationAnywhere}
		a := mustParse(t, "x = 1\n")
		if got := r.Run(resolvedRule("rx", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
	})

	t.Run("anywhere missing", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Value: "MARKER", Location: LocationAnywhere}
		a := mustParse(t, "x = 1\n")
		if got := r.Run(resolvedRule("mk", cfg, nil), a); len(got) != 1 {
			t.Errorf("findings = %d, want 1", len(got))
		}
	})

	t.Run("anywhere empty value flags", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Location: LocationAnywhere}
		a := mustParse(t, "x = 1\n")
		got := r.Run(resolvedRule("empty", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1 for a rule with no value", len(got))
		}
		if got[0].Line != 1 {
			t.Errorf("Line = %d, want 1", got[0].Line)
		}
	})

	t.Run("end of file present", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Value: "end marker", Location: LocationEndOfFile}
		a := mustParse(t, "import os\nprint(\"done\")  # end marker\n")
		if got := r.Run(resolvedRule("eof", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none when the last line has the value", got)
		}
	})

	t.Run("end of file missing", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypePatternExists, Value: "end marker", Location: LocationEndOfFile}
		a := mustParse(t, "import os\nprint(\"done\")\n")
		got := r.Run(resolvedRule("eof", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Line != 2 {
			t.Errorf("Line = %d, want 2", got[0].Line)
		}
		if got[0].Source != "print(\"done\")" {
			t.Errorf("Source = %q, want the last real line", got[0].Source)
		}
	})
}

func TestASTNodeExists(t *testing.T) {
	r := testRunner()

	t.Run("module docstring with substrings", func(t *testing.T) {
		cfg := rules.CheckConfig{
			Type:               TypeASTNodeExists,
			Node:               NodeModuleDocstring,
			RequiredSubstrings: []string{"Usage"},
		}
		a := mustParse(t, "\"\"\"Doc.\n\nUsage: run it.\n\"\"\"\n")
		if got := r.Run(resolvedRule("doc", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}

		b := mustParse(t, "\"\"\"Doc without the section.\"\"\"\n")
		got := r.Run(resolvedRule("doc", cfg, nil), b)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if !strings.Contains(got[0].Source, "Usage") {
			t.Errorf("Source = %q, should name the missing substring", got[0].Source)
		}
	})

	t.Run("import statement", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypeASTNodeExists, Node: NodeImportStatement}
		a := mustParse(t, "import os\n")
		if got := r.Run(resolvedRule("imp", cfg, nil), a); len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
		b := mustParse(t, "x = 1\n")
		if got := r.Run(resolvedRule("imp", cfg, nil), b); len(got) != 1 {
			t.Errorf("findings = %d, want 1", len(got))
		}
	})
}

func TestTokenScanLogCalls(t *testing.T) {
	r := testRunner()
	cfg := rules.CheckConfig{
		Type:             TypeTokenScan,
		Scan:             ScanLogCalls,
		ForbiddenStrings: []string{"password"},
	}
	a := mustParse(t, "import logging\nlogging.info(\"user password is %s\", pw)\nprint(\"ok\")\n")
	got := r.Run(resolvedRule("logs", cfg, nil), a)
	if len(got) != 1 {
		t.Fatalf("findings = %d, want 1", len(got))
	}
	if got[0].Line != 2 {
		t.Errorf("Line = %d, want 2", got[0].Line)
	}
	if got[0].Value != "password" {
		t.Errorf("Value = %q, want %q", got[0].Value, "password")
	}
}

func TestUppercaseAssignments(t *testing.T) {
	r := testRunner()
	min := 2
	cfg := rules.CheckConfig{Type: TypeUppercaseAssignments, MinCount: &min}

	a := mustParse(t, "MAX = 1\nTIMEOUT = 2\n")
	if got := r.Run(resolvedRule("const", cfg, nil), a); len(got) != 0 {
		t.Errorf("findings = %v, want none", got)
	}

	b := mustParse(t, "MAX = 1\n")
	if got := r.Run(resolvedRule("const", cfg, nil), b); len(got) != 1 {
		t.Errorf("findings = %d, want 1", len(got))
	}
}

func TestDocstringContains(t *testing.T) {
	r := testRunner()
	cfg := rules.CheckConfig{Type: TypeDocstringContains, Value: "Copyright"}

	a := mustParse(t, "\"\"\"Copyright 2026.\"\"\"\n")
	if got := r.Run(resolvedRule("c", cfg, nil), a); len(got) != 0 {
		t.Errorf("findings = %v, want none", got)
	}

	b := mustParse(t, "\"\"\"No notice.\"\"\"\n")
	if got := r.Run(resolvedRule("c", cfg, nil), b); len(got) != 1 {
		t.Errorf("findings = %d, want 1", len(got))
	}
}

func TestFileMetricMaxLines(t *testing.T) {
	r := testRunner()
	max := 3
	cfg := rules.CheckConfig{Type: TypeFileMetric, Metric: "line_count", MaxLines: &max}

	long := mustParse(t, "a = 1\nb = 2\nc = 3\nd = 4\n")

	t.Run("over the limit", func(t *testing.T) {
		got := r.Run(resolvedRule("len", cfg, nil), long)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Vars["line_count"] == "" {
			t.Error("missing line_count template variable")
		}
	})

	t.Run("param override wins", func(t *testing.T) {
		got := r.Run(resolvedRule("len", cfg, map[string]any{"max_lines": 100}), long)
		if len(got) != 0 {
			t.Errorf("findings = %v, want none with raised limit", got)
		}
	})

	t.Run("yaml float param accepted", func(t *testing.T) {
		got := r.Run(resolvedRule("len", cfg, map[string]any{"max_lines": float64(100)}), long)
		if len(got) != 0 {
			t.Errorf("findings = %v, want none", got)
		}
	})
}

func TestASTCheckDispatch(t *testing.T) {
	r := testRunner()

	t.Run("function docstrings", func(t *testing.T) {
		cfg := rules.CheckConfig{Type: TypeASTCheck, Check: CheckAllFunctionDocstrings}
		a := mustParse(t, "def f():\n    pass\n")
		got := r.Run(resolvedRule("fd", cfg, nil), a)
		if len(got) != 1 {
			t.Fatalf("findings = %d, want 1", len(got))
		}
		if got[0].Vars["function_name"] != "f" {
			t.Errorf("function_name = %q", got[0].Vars["function_name"])
		}
	})

	t.Run("decorated try except", func(t *testing.T) {
		cfg := rules.CheckConfig{
			Type:             TypeASTCheck,
			Check:            CheckDecoratedTryExcept,
			DecoratorPattern: []string{"task"},
		}
		a := mustParse(t, "@task\ndef w():\n    pass\n")
		if got := r.Run(resolvedRule("dt", cfg, nil), a); len(got) != 1 {
			t.Errorf("findings = %d, want 1", len(got))
		}
	})
}
