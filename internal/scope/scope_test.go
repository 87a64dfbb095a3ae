package scope

import (
	"testing"

	"github.com/pygate/pygate/internal/rules"
)

func strPtr(s string) *string { return &s }

func TestInScope(t *testing.T) {
	tests := []struct {
		name string
		path string
		sc   *rules.ScopeConfig
		want bool
	}{
		{
			name: "nil scope gates everything",
			path: "anything.py",
			sc:   nil,
			want: true,
		},
		{
			name: "empty gated paths gate everything",
			path: "src/app.py",
			sc:   &rules.ScopeConfig{},
			want: true,
		},
		{
			name: "exempt filename wins over gating",
			path: "src/conftest.py",
			sc: &rules.ScopeConfig{
				GatedPaths:  []string{"src/"},
				ExemptFiles: []string{"conftest.py"},
			},
			want: false,
		},
		{
			name: "exempt path prefix",
			path: "vendor/lib.py",
			sc:   &rules.ScopeConfig{ExemptPaths: []string{"vendor/"}},
			want: false,
		},
		{
			name: "exempt path as interior segment",
			path: "repo/vendor/lib.py",
			sc:   &rules.ScopeConfig{ExemptPaths: []string{"vendor/"}},
			want: false,
		},
		{
			name: "gated prefix match",
			path: "src/app.py",
			sc:   &rules.ScopeConfig{GatedPaths: []string{"src/"}},
			want: true,
		},
		{
			name: "outside gated paths",
			path: "docs/readme.py",
			sc:   &rules.ScopeConfig{GatedPaths: []string{"src/"}},
			want: false,
		},
		{
			name: "gated as interior segment",
			path: "repo/src/app.py",
			sc:   &rules.ScopeConfig{GatedPaths: []string{"src/"}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InScope(tt.path, tt.sc); got != tt.want {
				t.Errorf("InScope(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestEffectiveSchema(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		project    *rules.ProjectConfig
		want       string
		wantExempt bool
	}{
		{
			name:    "no overrides returns base schema",
			path:    "src/app.py",
			project: &rules.ProjectConfig{Schema: "production"},
			want:    "production",
		},
		{
			name:    "empty project falls back to default schema",
			path:    "src/app.py",
			project: &rules.ProjectConfig{},
			want:    "production",
		},
		{
			name: "glob override selects schema",
			path: "tests/test_app.py",
			project: &rules.ProjectConfig{
				Schema: "production",
				Overrides: rules.OverrideList{
					{Pattern: "tests/**", Schema: strPtr("relaxed")},
				},
			},
			want: "relaxed",
		},
		{
			name: "null schema exempts",
			path: "scratch/tmp.py",
			project: &rules.ProjectConfig{
				Schema: "production",
				Overrides: rules.OverrideList{
					{Pattern: "scratch/*.py", Schema: nil},
				},
			},
			wantExempt: true,
		},
		{
			name: "basename glob exempts",
			path: "deep/nested/throwaway.py",
			project: &rules.ProjectConfig{
				Schema: "production",
				Overrides: rules.OverrideList{
					{Pattern: "throwaway.py", Schema: nil},
				},
			},
			wantExempt: true,
		},
		{
			name: "first matching override wins",
			path: "tests/unit/test_x.py",
			project: &rules.ProjectConfig{
				Schema: "production",
				Overrides: rules.OverrideList{
					{Pattern: "tests/**", Schema: strPtr("relaxed")},
					{Pattern: "tests/unit/**", Schema: strPtr("strict")},
				},
			},
			want: "relaxed",
		},
		{
			name: "prefix form matches directories",
			path: "tools/build/gen.py",
			project: &rules.ProjectConfig{
				Schema: "production",
				Overrides: rules.OverrideList{
					{Pattern: "tools/*", Schema: strPtr("internal")},
				},
			},
			want: "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exempt := EffectiveSchema(tt.path, tt.project)
			if exempt != tt.wantExempt {
				t.Fatalf("exempt = %v, want %v", exempt, tt.wantExempt)
			}
			if !exempt && got != tt.want {
				t.Errorf("schema = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"src/app.py", "src/*.py", true},
		{"src/sub/app.py", "src/*.py", false},
		{"src/sub/app.py", "src/**/*.py", true},
		{"src/sub/deep/app.py", "src/**", true},
		{"other/app.py", "src/**", false},
		{"app.py", "*.py", true},
		{"dir/app.py", "*.py", true}, // bare-filename fallback
		{"app.txt", "*.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.path, func(t *testing.T) {
			if got := matchGlob(tt.path, tt.pattern); got != tt.want {
				t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}
