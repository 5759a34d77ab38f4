package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/xguard/internal/ast"
)

// program:
//
//	function outer(x) {
//	  if (true) {
//	    var z = x;
//	    let y = z;
//	  }
//	  return y; // unresolved: y is block-scoped to the if-block
//	}
const src = `{
  "type": "Program",
  "body": [
    {
      "type": "FunctionDeclaration",
      "id": {"type": "Identifier", "name": "outer"},
      "params": [{"type": "Identifier", "name": "x"}],
      "body": {
        "type": "BlockStatement",
        "body": [
          {
            "type": "IfStatement",
            "test": {"type": "Literal", "value": true, "raw": "true"},
            "consequent": {
              "type": "BlockStatement",
              "body": [
                {
                  "type": "VariableDeclaration",
                  "kind": "var",
                  "declarations": [
                    {"type": "VariableDeclarator",
                     "id": {"type": "Identifier", "name": "z"},
                     "init": {"type": "Identifier", "name": "x"}}
                  ]
                },
                {
                  "type": "VariableDeclaration",
                  "kind": "let",
                  "declarations": [
                    {"type": "VariableDeclarator",
                     "id": {"type": "Identifier", "name": "y"},
                     "init": {"type": "Identifier", "name": "z"}}
                  ]
                }
              ]
            }
          },
          {
            "type": "ReturnStatement",
            "argument": {"type": "Identifier", "name": "y"}
          }
        ]
      }
    }
  ]
}`

func TestResolve_HoistingAndBlockScoping(t *testing.T) {
	root, err := ast.FromESTreeJSON([]byte(src), "outer.js")
	require.NoError(t, err)

	fs, err := (&Resolver{}).Resolve("outer.js", root)
	require.NoError(t, err)

	byValue := map[string][]*Occurrence{}
	for _, occ := range fs.Occurrences {
		byValue[occ.Node.Value] = append(byValue[occ.Node.Value], occ)
	}

	// "z" inside the if-block is var-hoisted to the function scope, so both
	// the declarator's "x" init reference and the nested "z" read resolve.
	require.Len(t, byValue["z"], 2, "declaring + reading occurrence of z")
	for _, occ := range byValue["z"] {
		require.NotNil(t, occ.Binding)
		assert.Equal(t, BindVar, occ.Binding.Kind)
	}

	// "y" is let-scoped to the if-block; the trailing return sees a
	// different, unresolved "y" (no binding reaches outside the block).
	require.Len(t, byValue["y"], 2)
	var resolvedY, unresolvedY int
	for _, occ := range byValue["y"] {
		if occ.Binding != nil {
			resolvedY++
			assert.Equal(t, BindLet, occ.Binding.Kind)
		} else {
			unresolvedY++
		}
	}
	assert.Equal(t, 1, resolvedY)
	assert.Equal(t, 1, unresolvedY)

	// the function's own parameter is visible throughout its body.
	require.Len(t, byValue["x"], 2, "param occurrence + the init read inside the if-block")
	for _, occ := range byValue["x"] {
		require.NotNil(t, occ.Binding)
		assert.Equal(t, BindParam, occ.Binding.Kind)
	}

	// "outer" is a function declaration bound at script scope.
	require.Len(t, byValue["outer"], 1)
	require.NotNil(t, byValue["outer"][0].Binding)
	assert.Equal(t, BindFunc, byValue["outer"][0].Binding.Kind)
}

func TestResolve_NamedFunctionExpressionSelfBinding(t *testing.T) {
	src := `{
	  "type": "Program",
	  "body": [
	    {
	      "type": "VariableDeclaration",
	      "kind": "const",
	      "declarations": [{
	        "type": "VariableDeclarator",
	        "id": {"type": "Identifier", "name": "f"},
	        "init": {
	          "type": "FunctionExpression",
	          "id": {"type": "Identifier", "name": "self"},
	          "params": [],
	          "body": {
	            "type": "BlockStatement",
	            "body": [
	              {"type": "ReturnStatement", "argument": {"type": "Identifier", "name": "self"}}
	            ]
	          }
	        }
	      }]
	    },
	    {"type": "ExpressionStatement", "expression": {"type": "Identifier", "name": "self"}}
	  ]
	}`
	root, err := ast.FromESTreeJSON([]byte(src), "fe.js")
	require.NoError(t, err)
	fs, err := (&Resolver{}).Resolve("fe.js", root)
	require.NoError(t, err)

	var insideResolved, outsideUnresolved bool
	for _, occ := range fs.Occurrences {
		if occ.Node.Value != "self" {
			continue
		}
		if occ.Binding != nil {
			insideResolved = true
		} else {
			outsideUnresolved = true
		}
	}
	assert.True(t, insideResolved, "self must resolve inside the function expression's own body")
	assert.True(t, outsideUnresolved, "self must not leak to the enclosing scope")
}

// var x = 1;
// var o = {x: x};
//
// The object literal's own key "x" is not a reference to the variable x, so
// it must never become an occurrence of its binding — only the property
// value (the second "x") does.
func TestResolve_ObjectLiteralKeyDoesNotLeakAsOccurrence(t *testing.T) {
	src := `{
	  "type": "Program",
	  "body": [
	    {"type": "VariableDeclaration", "kind": "var", "declarations": [
	      {"type": "VariableDeclarator",
	       "id": {"type": "Identifier", "name": "x"},
	       "init": {"type": "Literal", "value": 1, "raw": "1"}}
	    ]},
	    {"type": "VariableDeclaration", "kind": "var", "declarations": [
	      {"type": "VariableDeclarator",
	       "id": {"type": "Identifier", "name": "o"},
	       "init": {"type": "ObjectExpression", "properties": [
	         {"type": "Property", "key": {"type": "Identifier", "name": "x"},
	          "value": {"type": "Identifier", "name": "x"}, "computed": false}
	       ]}}
	    ]}
	  ]
	}`
	root, err := ast.FromESTreeJSON([]byte(src), "obj.js")
	require.NoError(t, err)
	fs, err := (&Resolver{}).Resolve("obj.js", root)
	require.NoError(t, err)

	var xOccurrences []*Occurrence
	for _, occ := range fs.Occurrences {
		if occ.Node.Value == "x" {
			xOccurrences = append(xOccurrences, occ)
		}
	}
	require.Len(t, xOccurrences, 2, "only the declaration and the property value read, never the key")
	for _, occ := range xOccurrences {
		require.NotNil(t, occ.Binding)
		assert.Equal(t, BindVar, occ.Binding.Kind)
	}
}
