package checks

import (
	"fmt"
	"strings"

	"github.com/pygate/pygate/internal/analyzer"
)

// builtins are the custom checks compiled into the binary. A rule references
// one by name, e.g. plugin: "import_ordering".
var builtins = map[string]PluginFunc{
	"import_ordering": checkImportOrdering,
}

// Import categories in expected order.
const (
	categoryStdlib     = 0
	categoryThirdParty = 1
	categoryLocal      = 2
)

// pythonStdlib is a snapshot of CPython's top-level standard library module
// names, enough to classify imports in typical production code.
var pythonStdlib = map[string]bool{
	"abc": true, "argparse": true, "ast": true, "asyncio": true,
	"base64": true, "collections": true, "contextlib": true, "copy": true,
	"csv": true, "dataclasses": true, "datetime": true, "decimal": true,
	"enum": true, "functools": true, "glob": true, "hashlib": true,
	"http": true, "importlib": true, "inspect": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"multiprocessing": true, "operator": true, "os": true, "pathlib": true,
	"pickle": true, "platform": true, "pprint": true, "queue": true,
	"random": true, "re": true, "shutil": true, "signal": true,
	"socket": true, "sqlite3": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "tempfile": true, "textwrap": true,
	"threading": true, "time": true, "tokenize": true, "traceback": true,
	"typing": true, "unittest": true, "urllib": true, "uuid": true,
	"warnings": true, "xml": true, "zipfile": true,
}

// checkImportOrdering flags top-level imports that regress the expected
// grouping: standard library, then third-party, then local.
func checkImportOrdering(a *analyzer.Source) []analyzer.Finding {
	var findings []analyzer.Finding
	prev := -1
	for _, imp := range a.TopLevelImports() {
		category := classifyImport(imp.Module)
		if category < prev {
			findings = append(findings, analyzer.Finding{
				Line: imp.Line,
				Vars: map[string]string{
					"message": fmt.Sprintf(
						"Import '%s' is out of order (stdlib -> third-party -> local)",
						imp.Module),
				},
			})
		}
		if category > prev {
			prev = category
		}
	}
	return findings
}

func classifyImport(module string) int {
	top := module
	if i := strings.Index(top, "."); i > 0 {
		top = top[:i]
	}
	switch {
	case pythonStdlib[top]:
		return categoryStdlib
	case strings.HasPrefix(module, "."):
		return categoryLocal
	default:
		return categoryThirdParty
	}
}
