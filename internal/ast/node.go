// Package ast defines a parser-agnostic syntax tree over ECMAScript source.
//
// Both supported parser backends (internal/parser's tree-sitter and
// subprocess-JSON implementations) build the same Node shape so every
// downstream component — scope resolution, the PDG, the data-flow engine —
// works against one representation regardless of which JS→AST converter
// produced it.
package ast

import "strconv"

// Position is a single line/column location, 1-based line, 0-based column
// (matching ESTree's loc convention).
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a node's source location, start inclusive and end exclusive.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Comment is a single source comment. Neither parser backend fills
// Node.Comments, so the field is always empty and no comment is attached
// to any node.
type Comment struct {
	Text  string
	Range [2]int
}

// Node is a tagged ECMAScript AST node. Kind is one of the ESTree-ish
// variant names (Program, FunctionDeclaration, Identifier, CallExpression,
// MemberExpression, ...). Named single children live in
// Fields; named child lists (params, arguments, body statements, object
// properties, array elements) live in List. Value carries the literal text
// for Identifier/Literal nodes (name, raw value).
type Node struct {
	ID       int
	Kind     string
	Range    [2]int
	Loc      Span
	File     string
	Value    string
	Parent   *Node
	Fields   map[string]*Node
	List     map[string][]*Node
	Comments []Comment
}

// Field returns the named single child, or nil.
func (n *Node) Field(name string) *Node {
	if n == nil || n.Fields == nil {
		return nil
	}
	return n.Fields[name]
}

// Children returns the named child list, possibly empty.
func (n *Node) Children(name string) []*Node {
	if n == nil || n.List == nil {
		return nil
	}
	return n.List[name]
}

// Walk visits n and every reachable descendant depth first, field children
// before list children, calling visit for each. For most kinds that is
// source order; a function's body (a field) is visited before its params
// (a list).
// visit returning false skips the node's children (but continues with
// siblings at the caller level).
func Walk(n *Node, visit func(*Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, key := range sortedFieldKeys(n) {
		Walk(n.Fields[key], visit)
	}
	for _, key := range sortedListKeys(n) {
		for _, child := range n.List[key] {
			Walk(child, visit)
		}
	}
}

// fieldOrder and listOrder pin a deterministic traversal order per Kind so
// that two Walk calls over the same tree always visit nodes in the same
// sequence (Invariant 5: "edges enumerated in source order").
var fieldOrder = map[string][]string{
	"VariableDeclarator":       {"id", "init"},
	"AssignmentExpression":     {"left", "right"},
	"BinaryExpression":         {"left", "right"},
	"LogicalExpression":        {"left", "right"},
	"MemberExpression":         {"object", "property"},
	"CallExpression":           {"callee"},
	"NewExpression":            {"callee"},
	"ConditionalExpression":    {"test", "consequent", "alternate"},
	"IfStatement":              {"test", "consequent", "alternate"},
	"ForStatement":             {"init", "test", "update", "body"},
	"WhileStatement":           {"test", "body"},
	"DoWhileStatement":         {"body", "test"},
	"ReturnStatement":          {"argument"},
	"FunctionDeclaration":      {"id", "body"},
	"FunctionExpression":       {"id", "body"},
	"ArrowFunctionExpression":  {"body"},
	"Property":                 {"key", "value"},
	"UnaryExpression":          {"argument"},
	"UpdateExpression":         {"argument"},
	"CatchClause":              {"param", "body"},
	"Program":                  {},
	"BlockStatement":           {},
}

func sortedFieldKeys(n *Node) []string {
	if order, ok := fieldOrder[n.Kind]; ok {
		return order
	}
	// fallback: stable lexical order over whatever fields exist.
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	insertionSort(keys)
	return keys
}

var listOrder = map[string][]string{
	"Program":                 {"body"},
	"BlockStatement":          {"body"},
	"FunctionDeclaration":     {"params", "body"},
	"FunctionExpression":      {"params", "body"},
	"ArrowFunctionExpression": {"params", "body"},
	"CallExpression":          {"arguments"},
	"NewExpression":           {"arguments"},
	"ArrayExpression":         {"elements"},
	"ObjectExpression":        {"properties"},
	"VariableDeclaration":     {"declarations"},
	"SwitchStatement":         {"cases"},
	"SwitchCase":              {"consequent"},
	"TryStatement":            {"block", "handler", "finalizer"},
	"SequenceExpression":      {"expressions"},
}

func sortedListKeys(n *Node) []string {
	if order, ok := listOrder[n.Kind]; ok {
		return order
	}
	keys := make([]string, 0, len(n.List))
	for k := range n.List {
		keys = append(keys, k)
	}
	insertionSort(keys)
	return keys
}

func insertionSort(keys []string) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

// LineText returns the single source line containing n's start, given the
// full file source. Used to populate flow-record line_of_code fields.
func LineText(src []byte, n *Node) string {
	if n == nil {
		return ""
	}
	start := n.Range[0]
	lineStart := start
	for lineStart > 0 && src[lineStart-1] != '\n' {
		lineStart--
	}
	lineEnd := start
	for lineEnd < len(src) && src[lineEnd] != '\n' {
		lineEnd++
	}
	return string(src[lineStart:lineEnd])
}

// Location formats n's span as "L:C - L:C", the format used in flow hop
// records.
func (n *Node) Location() string {
	if n == nil {
		return ""
	}
	return formatLoc(n.Loc)
}

func formatLoc(s Span) string {
	return strconv.Itoa(s.Start.Line) + ":" + strconv.Itoa(s.Start.Column) + " - " +
		strconv.Itoa(s.End.Line) + ":" + strconv.Itoa(s.End.Column)
}
