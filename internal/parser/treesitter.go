package parser

import (
	"context"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/viant/xguard/internal/ast"
)

// TreeSitterParser is the default, in-process JS→AST converter. It parses
// with github.com/smacker/go-tree-sitter's JavaScript grammar and
// normalizes the concrete syntax tree into xguard's Node vocabulary so the
// rest of the analyzer never touches tree-sitter types directly.
type TreeSitterParser struct{}

func (p *TreeSitterParser) Parse(ctx context.Context, path string, sourceType SourceType) (*ast.Node, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parser: read source %s: %w", path, err)
	}
	root, err := p.ParseSource(ctx, src, path)
	return root, src, err
}

// ParseSource parses in-memory JS source, useful for tests and for the
// subprocess-free default pipeline.
func (p *TreeSitterParser) ParseSource(ctx context.Context, src []byte, file string) (*ast.Node, error) {
	tsParser := sitter.NewParser()
	tsParser.SetLanguage(javascript.GetLanguage())
	tree, err := tsParser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parser: tree-sitter parse failed for %s: %w", file, err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("parser: tree-sitter produced no tree for %s", file)
	}
	c := &converter{src: src, file: file}
	return c.convert(tree.RootNode(), nil), nil
}

type converter struct {
	src    []byte
	file   string
	nextID int
}

func (c *converter) convert(n *sitter.Node, parent *ast.Node) *ast.Node {
	out := &ast.Node{
		ID:     c.nextID,
		Kind:   mapKind(n.Type()),
		File:   c.file,
		Parent: parent,
		Fields: map[string]*ast.Node{},
		List:   map[string][]*ast.Node{},
	}
	c.nextID++
	out.Range = [2]int{int(n.StartByte()), int(n.EndByte())}
	out.Loc = ast.Span{
		Start: ast.Position{Line: int(n.StartPoint().Row) + 1, Column: int(n.StartPoint().Column)},
		End:   ast.Position{Line: int(n.EndPoint().Row) + 1, Column: int(n.EndPoint().Column)},
	}

	switch n.Type() {
	case "identifier", "property_identifier", "shorthand_property_identifier",
		"shorthand_property_identifier_pattern",
		"string", "template_string", "number", "true", "false", "null", "undefined", "regex":
		out.Value = c.text(n)
	case "variable_declaration":
		out.Value = "var"
	case "lexical_declaration":
		if n.ChildCount() > 0 {
			out.Value = n.Child(0).Type() // "let" or "const" keyword token
		}
	case "subscript_expression":
		out.Value = "computed"
	case "binary_expression":
		// The grammar uses one node type for arithmetic/comparison and
		// logical operators alike; ESTree splits these into BinaryExpression
		// and LogicalExpression (&&, ||, ??), so the operator decides Kind.
		op := c.operatorText(n)
		out.Value = op
		if op == "&&" || op == "||" || op == "??" {
			out.Kind = "LogicalExpression"
		} else {
			out.Kind = "BinaryExpression"
		}
	}

	fields := fieldMap[n.Type()]
	names := make([]string, 0, len(fields))
	for field := range fields {
		names = append(names, field)
	}
	sort.Strings(names)
	for _, field := range names {
		path := fields[field]
		child := n.ChildByFieldName(field)
		if child == nil {
			continue
		}
		out.Fields[path] = c.convert(child, out)
	}

	for listField, path := range listMap[n.Type()] {
		if items := c.namedChildren(n, listField); items != nil {
			list := make([]*ast.Node, 0, len(items))
			for _, ch := range items {
				list = append(list, c.convert(ch, out))
			}
			out.List[path] = list
		}
	}

	// A handful of expression/statement wrapper kinds carry no field or
	// they'd need special handling; surface their single meaningful child.
	switch n.Type() {
	case "expression_statement", "parenthesized_expression":
		if ch := n.NamedChild(0); ch != nil {
			out.Fields["expression"] = c.convert(ch, out)
		}
	case "return_statement":
		if ch := n.NamedChild(0); ch != nil {
			out.Fields["argument"] = c.convert(ch, out)
		}
	}

	return out
}

func (c *converter) namedChildren(n *sitter.Node, field string) []*sitter.Node {
	container := n
	if field != "" {
		container = n.ChildByFieldName(field)
		if container == nil {
			return nil
		}
	}
	var named []*sitter.Node
	for i := 0; i < int(container.NamedChildCount()); i++ {
		named = append(named, container.NamedChild(i))
	}
	return named
}

func (c *converter) text(n *sitter.Node) string {
	return string(c.src[n.StartByte():n.EndByte()])
}

// operatorText extracts a binary_expression's operator token: the "operator"
// field if the grammar exposes one, otherwise the first unnamed child whose
// text is a recognized operator (the token sitting between left and right).
func (c *converter) operatorText(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return c.text(op)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		ch := n.Child(i)
		if ch.IsNamed() {
			continue
		}
		switch t := c.text(ch); t {
		case "&&", "||", "??", "+", "-", "*", "/", "%", "**",
			"==", "!=", "===", "!==", "<", ">", "<=", ">=",
			"<<", ">>", ">>>", "&", "|", "^", "in", "instanceof":
			return t
		}
	}
	return ""
}

// mapKind normalizes tree-sitter-javascript node type names into the
// shared ESTree-ish Kind vocabulary internal/ast uses.
func mapKind(tsType string) string {
	if k, ok := kindMap[tsType]; ok {
		return k
	}
	return tsType
}

var kindMap = map[string]string{
	"program":                        "Program",
	"statement_block":                "BlockStatement",
	"function_declaration":           "FunctionDeclaration",
	"function":                       "FunctionExpression",
	"function_expression":            "FunctionExpression",
	"generator_function":             "FunctionExpression",
	"generator_function_declaration": "FunctionDeclaration",
	"arrow_function":                 "ArrowFunctionExpression",
	"variable_declaration":           "VariableDeclaration",
	"lexical_declaration":            "VariableDeclaration",
	"variable_declarator":            "VariableDeclarator",
	"call_expression":                "CallExpression",
	"new_expression":                 "NewExpression",
	"member_expression":              "MemberExpression",
	"subscript_expression":           "MemberExpression",
	"assignment_expression":          "AssignmentExpression",
	"augmented_assignment_expression": "AssignmentExpression",
	"binary_expression":              "BinaryExpression",
	"ternary_expression":             "ConditionalExpression",
	"if_statement":                   "IfStatement",
	"for_statement":                  "ForStatement",
	"for_in_statement":               "ForStatement",
	"while_statement":                "WhileStatement",
	"do_statement":                   "DoWhileStatement",
	"return_statement":               "ReturnStatement",
	"object":                         "ObjectExpression",
	"pair":                           "Property",
	"array":                          "ArrayExpression",
	"identifier":                     "Identifier",
	"property_identifier":            "Identifier",
	"shorthand_property_identifier":  "Identifier",
	"shorthand_property_identifier_pattern": "Identifier",
	"string":              "Literal",
	"template_string":     "Literal",
	"number":              "Literal",
	"true":                "Literal",
	"false":               "Literal",
	"null":                "Literal",
	"undefined":           "Literal",
	"regex":               "Literal",
	"unary_expression":    "UnaryExpression",
	"update_expression":   "UpdateExpression",
	"try_statement":       "TryStatement",
	"catch_clause":        "CatchClause",
	"object_pattern":      "ObjectPattern",
	"array_pattern":       "ArrayPattern",
	"assignment_pattern":  "AssignmentPattern",
	"rest_pattern":        "RestElement",
	"spread_element":      "SpreadElement",
	"sequence_expression": "SequenceExpression",
	"switch_statement":    "SwitchStatement",
	"switch_case":         "SwitchCase",
	"throw_statement":     "ThrowStatement",
}

// fieldMap: tree-sitter node type -> (tree-sitter field name -> ast.Node
// field path). Kept aligned with the fieldOrder table in internal/ast so
// the same Kinds dispatch consistently everywhere.
var fieldMap = map[string]map[string]string{
	"variable_declarator":             {"name": "id", "value": "init"},
	"assignment_expression":           {"left": "left", "right": "right"},
	"augmented_assignment_expression": {"left": "left", "right": "right"},
	"binary_expression":               {"left": "left", "right": "right"},
	"member_expression":               {"object": "object", "property": "property"},
	"subscript_expression":            {"object": "object", "index": "property"},
	"call_expression":                 {"function": "callee"},
	"new_expression":                  {"constructor": "callee"},
	"ternary_expression":              {"condition": "test", "consequence": "consequent", "alternative": "alternate"},
	"if_statement":                    {"condition": "test", "consequence": "consequent", "alternative": "alternate"},
	"for_statement":                   {"initializer": "init", "condition": "test", "increment": "update", "body": "body"},
	"while_statement":                 {"condition": "test", "body": "body"},
	"do_statement":                    {"body": "body", "condition": "test"},
	"function_declaration":            {"name": "id", "body": "body"},
	"function":                        {"name": "id", "body": "body"},
	"function_expression":             {"name": "id", "body": "body"},
	"generator_function_declaration":  {"name": "id", "body": "body"},
	"arrow_function":                  {"body": "body"},
	"pair":                            {"key": "key", "value": "value"},
	"unary_expression":                {"argument": "argument"},
	"update_expression":               {"argument": "argument"},
	"catch_clause":                    {"parameter": "param", "body": "body"},
	"assignment_pattern":              {"left": "id", "right": "init"},
	"pair_pattern":                    {"key": "key", "value": "value"},
	"rest_pattern":                    {},
}

// listMap: tree-sitter node type -> (tree-sitter field name, "" meaning
// "all named children" -> ast.Node list path).
var listMap = map[string]map[string]string{
	"program":                         {"": "body"},
	"statement_block":                 {"": "body"},
	"function_declaration":            {"parameters": "params"},
	"function":                        {"parameters": "params"},
	"function_expression":             {"parameters": "params"},
	"generator_function_declaration":  {"parameters": "params"},
	"arrow_function":                  {"parameters": "params"},
	"variable_declaration":            {"": "declarations"},
	"lexical_declaration":             {"": "declarations"},
	"call_expression":                 {"arguments": "arguments"},
	"new_expression":                  {"arguments": "arguments"},
	"object":                          {"": "properties"},
	"array":                           {"": "elements"},
	"sequence_expression":             {"": "expressions"},
	"switch_statement":                {"body": "cases"},
	"switch_case":                     {"": "consequent"},
	"object_pattern":                  {"": "properties"},
	"array_pattern":                   {"": "elements"},
	"rest_pattern":                    {"": "argument"},
}
