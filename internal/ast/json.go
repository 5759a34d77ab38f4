package ast

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FromESTreeJSON decodes the JSON document produced by the external
// JS→AST converter process — nodes carry "type", "range": [start, end],
// "loc": {start:{line,column}, end:{...}}, plus kind-specific fields — into
// this package's parser-agnostic Node tree.
//
// Any JSON object with a "type" string field is treated as a node; any
// other object/array/scalar field is treated as plain node data and
// dropped except where explicitly consumed by valueOf (name, value, raw,
// kind, computed, operator).
func FromESTreeJSON(data []byte, file string) (*Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ast: decode ESTree json: %w", err)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("ast: root is not a JSON object")
	}
	b := &builder{file: file}
	root := b.convert(obj, nil)
	if root == nil {
		return nil, fmt.Errorf("ast: root node missing \"type\"")
	}
	return root, nil
}

type builder struct {
	file   string
	nextID int
}

func (b *builder) convert(obj map[string]interface{}, parent *Node) *Node {
	kindRaw, ok := obj["type"]
	if !ok {
		return nil
	}
	kind, _ := kindRaw.(string)
	n := &Node{
		ID:     b.nextID,
		Kind:   kind,
		File:   b.file,
		Parent: parent,
		Fields: map[string]*Node{},
		List:   map[string][]*Node{},
	}
	b.nextID++

	n.Range = rangeOf(obj)
	n.Loc = spanOf(obj)
	n.Value = valueOf(kind, obj)

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := obj[key]
		switch key {
		case "type", "start", "end", "range", "loc", "name", "value", "raw":
			continue
		}
		switch v := val.(type) {
		case map[string]interface{}:
			if child := b.convert(v, n); child != nil {
				n.Fields[key] = child
			}
		case []interface{}:
			var list []*Node
			for _, elem := range v {
				elemObj, ok := elem.(map[string]interface{})
				if !ok {
					continue
				}
				if child := b.convert(elemObj, n); child != nil {
					list = append(list, child)
				}
			}
			if list != nil {
				n.List[key] = list
			}
		}
	}
	return n
}

func rangeOf(obj map[string]interface{}) [2]int {
	if r, ok := obj["range"].([]interface{}); ok && len(r) == 2 {
		return [2]int{intOf(r[0]), intOf(r[1])}
	}
	return [2]int{intOf(obj["start"]), intOf(obj["end"])}
}

func spanOf(obj map[string]interface{}) Span {
	loc, ok := obj["loc"].(map[string]interface{})
	if !ok {
		return Span{}
	}
	return Span{Start: posOf(loc["start"]), End: posOf(loc["end"])}
}

func posOf(v interface{}) Position {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Position{}
	}
	return Position{Line: intOf(m["line"]), Column: intOf(m["column"])}
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func valueOf(kind string, obj map[string]interface{}) string {
	switch kind {
	case "Identifier", "PrivateIdentifier", "JSXIdentifier":
		if s, ok := obj["name"].(string); ok {
			return s
		}
	case "Literal":
		if raw, ok := obj["raw"].(string); ok {
			return raw
		}
		if v, ok := obj["value"]; ok {
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	case "VariableDeclaration":
		if k, ok := obj["kind"].(string); ok {
			return k
		}
	case "MemberExpression":
		if c, ok := obj["computed"].(bool); ok && c {
			return "computed"
		}
	case "LogicalExpression", "BinaryExpression":
		if op, ok := obj["operator"].(string); ok {
			return op
		}
	}
	return ""
}
