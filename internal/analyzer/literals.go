package analyzer

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Literal safe-context names accepted by LiteralsInFunctionBodies.
const (
	ContextDictKey   = "dict_key"
	ContextDictValue = "dict_value"
	ContextCallArg   = "call_argument"
)

// Literal value-type tags carried on findings.
const (
	ValueNumeric = "numeric"
	ValueString  = "string"
	ValueBoolean = "boolean"
)

// literalValue is a typed literal for exact safe-value matching. Matching
// compares both kind and value, so the boolean true never equals the
// integer 1 even though Python's runtime treats bool as a subtype of int.
type literalValue struct {
	kind string // "int", "float", "string", "bool"
	i    int64
	f    float64
	s    string
	b    bool
}

func (v literalValue) display() string {
	switch v.kind {
	case "int":
		return strconv.FormatInt(v.i, 10)
	case "float":
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case "bool":
		if v.b {
			return "True"
		}
		return "False"
	default:
		return v.s
	}
}

// LiteralsInFunctionBodies scans for literal values inside function bodies
// that are neither safe values nor in a safe structural context. Module-level
// literals are exempt: those are assumed to be named constants.
func (s *Source) LiteralsInFunctionBodies(safeValues []any, safeContexts []string) []Finding {
	scan := &literalScan{
		src:      s,
		safe:     parseSafeValues(safeValues),
		contexts: safeContexts,
	}
	scan.visit(s.root, 0)

	for i := range scan.findings {
		scan.findings[i].Source = s.Line(scan.findings[i].Line)
	}
	return scan.findings
}

type literalScan struct {
	src      *Source
	safe     []literalValue
	contexts []string
	findings []Finding
}

func (ls *literalScan) visit(n *sitter.Node, depth int) {
	if n == nil {
		return
	}

	switch n.Type() {
	case nodeFunctionDef:
		depth++
	case nodeInteger, nodeFloat:
		// Negative literals are represented as a unary minus wrapping a
		// positive literal; those are handled at the unary_operator node.
		if !parentIsNegation(n, ls.src.src) {
			if v, ok := ls.src.numericValue(n, false); ok {
				ls.check(n, v, ValueNumeric, depth)
			}
		}
		return
	case nodeTrue:
		ls.check(n, literalValue{kind: "bool", b: true}, ValueBoolean, depth)
		return
	case nodeFalse:
		ls.check(n, literalValue{kind: "bool", b: false}, ValueBoolean, depth)
		return
	case nodeNone:
		return
	case nodeString:
		ls.visitString(n, depth)
		return
	case nodeUnaryOp:
		ls.visitNegation(n, depth)
		// Fall through to children so nested expressions inside the
		// operand (e.g. -f(2)) are still scanned.
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		ls.visit(n.Child(i), depth)
	}
}

func (ls *literalScan) visitString(n *sitter.Node, depth int) {
	// Interpolated and concatenated strings are assumed to be human-facing
	// display text, not configuration values.
	if ls.src.isFString(n) {
		return
	}
	if parent := n.Parent(); parent != nil && parent.Type() == nodeConcatenated {
		return
	}
	if ls.src.isDocstringNode(n) {
		return
	}

	value := literalValue{kind: "string", s: ls.src.stringValue(n)}
	if ls.hasContext(ContextCallArg) && isCallArgument(n) {
		return
	}
	ls.check(n, value, ValueString, depth)
}

// visitNegation reconstructs the combined sign+magnitude value of a
// unary-minus literal before re-applying the safe-value check.
func (ls *literalScan) visitNegation(n *sitter.Node, depth int) {
	if depth == 0 {
		return
	}
	op := n.ChildByFieldName("operator")
	if op == nil || op.Content(ls.src.src) != "-" {
		return
	}
	operand := n.ChildByFieldName("argument")
	if operand == nil {
		return
	}
	switch operand.Type() {
	case nodeInteger, nodeFloat:
	default:
		return
	}
	v, ok := ls.src.numericValue(operand, true)
	if !ok {
		return
	}
	if ls.isSafe(v) {
		return
	}
	if ls.inSafeDictContext(n) {
		return
	}
	ls.findings = append(ls.findings, Finding{
		Line:  line(n),
		Value: v.display(),
		Vars:  map[string]string{"value_type": ValueNumeric},
	})
}

func (ls *literalScan) check(n *sitter.Node, v literalValue, valueType string, depth int) {
	if depth == 0 {
		return
	}
	if ls.isSafe(v) {
		return
	}
	if ls.inSafeDictContext(n) {
		return
	}
	ls.findings = append(ls.findings, Finding{
		Line:  line(n),
		Value: v.display(),
		Vars:  map[string]string{"value_type": valueType},
	})
}

func (ls *literalScan) isSafe(v literalValue) bool {
	for _, sv := range ls.safe {
		if sv.kind != v.kind {
			continue
		}
		switch sv.kind {
		case "int":
			if sv.i == v.i {
				return true
			}
		case "float":
			if sv.f == v.f {
				return true
			}
		case "string":
			if sv.s == v.s {
				return true
			}
		case "bool":
			if sv.b == v.b {
				return true
			}
		}
	}
	return false
}

// inSafeDictContext reports whether the node is a mapping entry while either
// dict context is configured safe.
func (ls *literalScan) inSafeDictContext(n *sitter.Node) bool {
	if !ls.hasContext(ContextDictKey) && !ls.hasContext(ContextDictValue) {
		return false
	}
	parent := n.Parent()
	return parent != nil && parent.Type() == nodePair
}

func (ls *literalScan) hasContext(name string) bool {
	for _, c := range ls.contexts {
		if c == name {
			return true
		}
	}
	return false
}

// isDocstringNode reports whether a string node is the docstring of a
// module, function, or class body: a bare string expression that is the
// first statement of its enclosing block.
func (s *Source) isDocstringNode(str *sitter.Node) bool {
	expr := str.Parent()
	if expr == nil || expr.Type() != nodeExprStatement || expr.NamedChildCount() != 1 {
		return false
	}
	body := expr.Parent()
	if body == nil {
		return false
	}
	switch body.Type() {
	case nodeBlock, nodeModule:
	default:
		return false
	}
	return firstStatement(body) == expr
}

func isCallArgument(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case nodeArgumentList:
		return true
	case nodeKeywordArg:
		gp := parent.Parent()
		return gp != nil && gp.Type() == nodeArgumentList
	}
	return false
}

func parentIsNegation(n *sitter.Node, src []byte) bool {
	parent := n.Parent()
	if parent == nil || parent.Type() != nodeUnaryOp {
		return false
	}
	op := parent.ChildByFieldName("operator")
	return op != nil && op.Content(src) == "-"
}

// numericValue parses an integer or float literal node, optionally negated.
func (s *Source) numericValue(n *sitter.Node, negate bool) (literalValue, bool) {
	raw := strings.ReplaceAll(n.Content(s.src), "_", "")
	if n.Type() == nodeInteger {
		i, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			return literalValue{}, false
		}
		if negate {
			i = -i
		}
		return literalValue{kind: "int", i: i}, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return literalValue{}, false
	}
	if negate {
		f = -f
	}
	return literalValue{kind: "float", f: f}, true
}

// parseSafeValues converts YAML-decoded safe values into typed literals.
func parseSafeValues(values []any) []literalValue {
	var out []literalValue
	for _, v := range values {
		switch t := v.(type) {
		case bool:
			out = append(out, literalValue{kind: "bool", b: t})
		case int:
			out = append(out, literalValue{kind: "int", i: int64(t)})
		case int64:
			out = append(out, literalValue{kind: "int", i: t})
		case float64:
			out = append(out, literalValue{kind: "float", f: t})
		case string:
			out = append(out, literalValue{kind: "string", s: t})
		}
	}
	return out
}
