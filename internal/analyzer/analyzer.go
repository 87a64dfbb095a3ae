// Package analyzer provides single-parse structural analysis of Python source.
//
// Every rule queries a Source; no rule touches raw text or the syntax tree
// directly. Each file is parsed exactly once, and all queries are read-only,
// so a single Source may be shared by every evaluator in a scan.
package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParseError reports source text the grammar could not parse. A file that
// cannot be parsed must be treated as blocking, never as a pass.
type ParseError struct {
	Path string
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s: syntax error near line %d", e.Path, e.Line)
}

// Finding is a single raw violation produced by an analyzer query, before
// rule metadata and message templates are applied.
type Finding struct {
	Line   int
	Source string
	Value  string
	// Vars carries query-specific template variables, e.g. function_name.
	Vars map[string]string
}

// Decorated-function check modes.
const (
	ModeDocstring = "docstring"
	ModeTryExcept = "try_except"
)

// Source is the parsed form of one Python file plus its query surface.
type Source struct {
	src   []byte
	path  string
	lines []string
	tree  *sitter.Tree
	root  *sitter.Node
}

// New parses source into a Source. The only failure modes are context
// cancellation and *ParseError; callers must not swallow the latter.
func New(ctx context.Context, source []byte, path string) (*Source, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, err
	}
	root := tree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, &ParseError{Path: path, Line: line}
	}

	return &Source{
		src:   source,
		path:  path,
		lines: splitLines(string(source)),
		tree:  tree,
		root:  root,
	}, nil
}

// splitLines splits source text into lines without a phantom empty line
// after a trailing newline. An empty source has zero lines.
func splitLines(source string) []string {
	lines := strings.Split(source, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// Close releases the parse tree. The Source must not be queried afterwards.
func (s *Source) Close() {
	s.tree.Close()
}

// Path returns the logical file path the Source was built with.
func (s *Source) Path() string { return s.path }

// Text returns the raw source text.
func (s *Source) Text() string { return string(s.src) }

// LineCount returns the number of lines in the source.
func (s *Source) LineCount() int { return len(s.lines) }

// Line returns the 1-based source line with trailing whitespace removed,
// or "" when out of range.
func (s *Source) Line(n int) string {
	if n < 1 || n > len(s.lines) {
		return ""
	}
	return strings.TrimRight(s.lines[n-1], " \t\r")
}

// Lines returns all source lines.
func (s *Source) Lines() []string { return s.lines }

// HeaderComments returns the comment lines preceding the first statement,
// including the leading '#'.
func (s *Source) HeaderComments() []string {
	var comments []string
	for i := 0; i < int(s.root.NamedChildCount()); i++ {
		child := s.root.NamedChild(i)
		if child.Type() != nodeComment {
			break
		}
		comments = append(comments, child.Content(s.src))
	}
	return comments
}

// ModuleDocstring returns the module docstring text, if the first statement
// is a bare string-literal expression. Implicitly concatenated string
// literals count; their parts are joined.
func (s *Source) ModuleDocstring() (string, bool) {
	first := firstStatement(s.root)
	if first == nil || first.Type() != nodeExprStatement {
		return "", false
	}
	str := first.NamedChild(0)
	if str == nil || first.NamedChildCount() != 1 {
		return "", false
	}
	switch str.Type() {
	case nodeString:
		if s.isFString(str) {
			return "", false
		}
		return s.stringValue(str), true
	case nodeConcatenated:
		var parts []string
		for i := 0; i < int(str.NamedChildCount()); i++ {
			part := str.NamedChild(i)
			if part.Type() != nodeString || s.isFString(part) {
				return "", false
			}
			parts = append(parts, s.stringValue(part))
		}
		return strings.Join(parts, ""), true
	}
	return "", false
}

// HasModuleDocstring reports whether the module has a docstring.
func (s *Source) HasModuleDocstring() bool {
	_, ok := s.ModuleDocstring()
	return ok
}

// HasImport reports whether the module has a top-level import statement.
func (s *Source) HasImport() bool {
	for i := 0; i < int(s.root.NamedChildCount()); i++ {
		switch s.root.NamedChild(i).Type() {
		case nodeImport, nodeImportFrom, nodeFutureImport:
			return true
		}
	}
	return false
}

// HasMainGuard reports whether the module has a top-level conditional
// comparing __name__ against "__main__", in either operand order. The
// comparison operator itself is not inspected.
func (s *Source) HasMainGuard() bool {
	for i := 0; i < int(s.root.NamedChildCount()); i++ {
		stmt := s.root.NamedChild(i)
		if stmt.Type() != nodeIf {
			continue
		}
		cond := stmt.ChildByFieldName("condition")
		if cond == nil || cond.Type() != nodeComparison || cond.NamedChildCount() < 2 {
			continue
		}
		left, right := cond.NamedChild(0), cond.NamedChild(1)
		if s.isNameMainComparison(left, right) || s.isNameMainComparison(right, left) {
			return true
		}
	}
	return false
}

// HasCallTo reports whether the module contains a call to the named function.
func (s *Source) HasCallTo(name string) bool {
	found := false
	walk(s.root, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.Type() == nodeCall {
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == nodeIdentifier && fn.Content(s.src) == name {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// ModuleConstants returns the names of module-level constant assignments:
// simple assignments whose target equals its uppercase form, is at least two
// characters long, and does not start with an underscore.
func (s *Source) ModuleConstants() []string {
	var names []string
	for i := 0; i < int(s.root.NamedChildCount()); i++ {
		stmt := s.root.NamedChild(i)
		if stmt.Type() != nodeExprStatement {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign == nil || assign.Type() != nodeAssignment {
			continue
		}
		target := assign.ChildByFieldName("left")
		if target == nil || target.Type() != nodeIdentifier {
			continue
		}
		name := target.Content(s.src)
		if name == strings.ToUpper(name) && len(name) >= 2 && !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	return names
}

// FunctionsMissingDocstrings returns one finding per function definition
// whose first body statement is not a bare string-literal expression. Each
// finding carries the function name and its parameter list for templates.
func (s *Source) FunctionsMissingDocstrings() []Finding {
	var findings []Finding
	walk(s.root, func(n *sitter.Node) bool {
		if n.Type() != nodeFunctionDef {
			return true
		}
		if !s.hasDocstring(n) {
			findings = append(findings, Finding{
				Line:   line(n),
				Source: "",
				Vars: map[string]string{
					"function_name": s.functionName(n),
					"params":        s.formatParams(n),
				},
			})
		}
		return true
	})
	return findings
}

// DecoratedFunctions returns findings for decorated functions whose resolved
// dotted decorator name contains any of patterns and which fail the selected
// check: ModeDocstring (missing docstring) or ModeTryExcept (no try block
// directly in the function body).
func (s *Source) DecoratedFunctions(patterns []string, mode string) []Finding {
	var findings []Finding
	walk(s.root, func(n *sitter.Node) bool {
		if n.Type() != nodeDecoratedDef {
			return true
		}
		def := n.ChildByFieldName("definition")
		if def == nil || def.Type() != nodeFunctionDef {
			return true
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			dec := n.NamedChild(i)
			if dec.Type() != nodeDecorator {
				continue
			}
			name := s.decoratorName(dec.NamedChild(0))
			if !containsAny(name, patterns) {
				continue
			}
			failed := false
			switch mode {
			case ModeDocstring:
				failed = !s.hasDocstring(def)
			case ModeTryExcept:
				failed = !s.hasTryBlock(def)
			}
			if failed {
				findings = append(findings, Finding{
					Line: line(def),
					Vars: map[string]string{"function_name": s.functionName(def)},
				})
			}
		}
		return true
	})
	return findings
}

// ForLoopsWithoutProgress returns findings for for-loops whose iterable
// expression text contains none of the given progress-wrapper call names.
func (s *Source) ForLoopsWithoutProgress(wrappers []string) []Finding {
	var findings []Finding
	walk(s.root, func(n *sitter.Node) bool {
		if n.Type() != nodeFor {
			return true
		}
		iter := n.ChildByFieldName("right")
		if iter == nil {
			return true
		}
		if !containsAny(iter.Content(s.src), wrappers) {
			findings = append(findings, Finding{Line: line(n), Source: ""})
		}
		return true
	})
	return findings
}

// ImportRef is one top-level import and its 1-based source line.
type ImportRef struct {
	Line   int
	Module string
}

// TopLevelImports returns the modules imported at module level, in source
// order. "from X import Y" reports X; relative imports keep their dots.
func (s *Source) TopLevelImports() []ImportRef {
	var imports []ImportRef
	for i := 0; i < int(s.root.NamedChildCount()); i++ {
		stmt := s.root.NamedChild(i)
		switch stmt.Type() {
		case nodeImport, nodeFutureImport:
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				child := stmt.NamedChild(j)
				switch child.Type() {
				case nodeDottedName:
					imports = append(imports, ImportRef{Line: line(stmt), Module: child.Content(s.src)})
				case nodeAliasedImport:
					if name := child.ChildByFieldName("name"); name != nil {
						imports = append(imports, ImportRef{Line: line(stmt), Module: name.Content(s.src)})
					}
				}
			}
		case nodeImportFrom:
			if mod := stmt.ChildByFieldName("module_name"); mod != nil {
				imports = append(imports, ImportRef{Line: line(stmt), Module: mod.Content(s.src)})
			}
		}
	}
	return imports
}

// BuildVariables derives the template variable map for error messages.
// Caller-supplied extras win on key conflicts.
func (s *Source) BuildVariables(extra map[string]string) map[string]string {
	filename := filepath.Base(s.path)
	directory := filepath.Dir(s.path)
	if directory == "." {
		directory = ""
	}

	var funcNames, classNames []string
	walk(s.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case nodeFunctionDef:
			funcNames = append(funcNames, s.functionName(n))
		case nodeClassDef:
			if name := n.ChildByFieldName("name"); name != nil {
				classNames = append(classNames, name.Content(s.src))
			}
		}
		return true
	})

	vars := map[string]string{
		"filename":       filename,
		"filepath":       s.path,
		"directory":      directory,
		"module_name":    strings.TrimSuffix(filename, filepath.Ext(filename)),
		"line_count":     strconv.Itoa(s.LineCount()),
		"function_names": strings.Join(funcNames, ", "),
		"class_names":    strings.Join(classNames, ", "),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

// ---------------------------------------------------------------------------
// Node helpers
// ---------------------------------------------------------------------------

// Grammar node types this package relies on.
const (
	nodeComment       = "comment"
	nodeExprStatement = "expression_statement"
	nodeString        = "string"
	nodeInterpolation = "interpolation"
	nodeConcatenated  = "concatenated_string"
	nodeInteger       = "integer"
	nodeFloat         = "float"
	nodeTrue          = "true"
	nodeFalse         = "false"
	nodeNone          = "none"
	nodeIdentifier    = "identifier"
	nodeAttribute     = "attribute"
	nodeCall          = "call"
	nodeArgumentList  = "argument_list"
	nodeKeywordArg    = "keyword_argument"
	nodeUnaryOp       = "unary_operator"
	nodePair          = "pair"
	nodeIf            = "if_statement"
	nodeComparison    = "comparison_operator"
	nodeFor           = "for_statement"
	nodeTry           = "try_statement"
	nodeAssignment    = "assignment"
	nodeImport        = "import_statement"
	nodeImportFrom    = "import_from_statement"
	nodeFutureImport  = "future_import_statement"
	nodeDottedName    = "dotted_name"
	nodeAliasedImport = "aliased_import"
	nodeFunctionDef   = "function_definition"
	nodeClassDef      = "class_definition"
	nodeDecoratedDef  = "decorated_definition"
	nodeDecorator     = "decorator"
	nodeBlock         = "block"
	nodeModule        = "module"
)

// walk visits n and its children depth-first. Returning false from fn stops
// descent into that subtree.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// line returns the 1-based source line of a node.
func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func firstErrorLine(root *sitter.Node) int {
	errLine := 1
	found := false
	walk(root, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if n.IsError() || n.IsMissing() {
			errLine = line(n)
			found = true
			return false
		}
		return true
	})
	return errLine
}

// firstStatement returns the first non-comment named child of a module or
// block node.
func firstStatement(body *sitter.Node) *sitter.Node {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != nodeComment {
			return child
		}
	}
	return nil
}

// hasDocstring reports whether a function definition's first body statement
// is a bare string-literal expression.
func (s *Source) hasDocstring(fn *sitter.Node) bool {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return false
	}
	first := firstStatement(body)
	if first == nil || first.Type() != nodeExprStatement || first.NamedChildCount() != 1 {
		return false
	}
	switch first.NamedChild(0).Type() {
	case nodeString, nodeConcatenated:
		return true
	}
	return false
}

// hasTryBlock reports whether a try statement appears directly in the
// function body (not nested in inner scopes).
func (s *Source) hasTryBlock(fn *sitter.Node) bool {
	body := fn.ChildByFieldName("body")
	if body == nil {
		return false
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if body.NamedChild(i).Type() == nodeTry {
			return true
		}
	}
	return false
}

func (s *Source) functionName(fn *sitter.Node) string {
	if name := fn.ChildByFieldName("name"); name != nil {
		return name.Content(s.src)
	}
	return ""
}

// formatParams renders the declared parameter names as "a, b, c".
func (s *Source) formatParams(fn *sitter.Node) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case nodeIdentifier:
			names = append(names, p.Content(s.src))
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(s.src))
			}
		case "typed_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if inner := p.NamedChild(0); inner != nil && inner.Type() == nodeIdentifier {
				names = append(names, inner.Content(s.src))
			}
		}
	}
	return strings.Join(names, ", ")
}

// decoratorName resolves a decorator expression to a dotted name. Call-style
// decorators resolve through their function expression.
func (s *Source) decoratorName(expr *sitter.Node) string {
	if expr == nil {
		return ""
	}
	switch expr.Type() {
	case nodeIdentifier:
		return expr.Content(s.src)
	case nodeAttribute:
		obj := s.decoratorName(expr.ChildByFieldName("object"))
		attr := expr.ChildByFieldName("attribute")
		if attr == nil {
			return obj
		}
		if obj == "" {
			return attr.Content(s.src)
		}
		return obj + "." + attr.Content(s.src)
	case nodeCall:
		return s.decoratorName(expr.ChildByFieldName("function"))
	}
	return ""
}

func (s *Source) isNameMainComparison(left, right *sitter.Node) bool {
	if left.Type() != nodeIdentifier || left.Content(s.src) != "__name__" {
		return false
	}
	return right.Type() == nodeString && s.stringValue(right) == "__main__"
}

// isFString reports whether a string node is an interpolated f-string,
// detected structurally by its interpolation children or its prefix.
func (s *Source) isFString(str *sitter.Node) bool {
	for i := 0; i < int(str.NamedChildCount()); i++ {
		if str.NamedChild(i).Type() == nodeInterpolation {
			return true
		}
	}
	raw := str.Content(s.src)
	for _, c := range raw {
		if c == '"' || c == '\'' {
			return false
		}
		if c == 'f' || c == 'F' {
			return true
		}
	}
	return false
}

// stringValue strips prefixes and quotes from a string literal's raw text.
func (s *Source) stringValue(str *sitter.Node) string {
	raw := str.Content(s.src)
	i := 0
	for i < len(raw) && raw[i] != '"' && raw[i] != '\'' {
		i++
	}
	raw = raw[i:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	return raw
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
