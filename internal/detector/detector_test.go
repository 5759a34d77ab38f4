package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/pdg"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/scope"
)

// chrome.runtime.onMessage.addListener((m, s, sendResponse) => {
//   chrome.cookies.getAll({}, c => sendResponse(c));
//   return true;
// });
//
// An unguarded privileged-API exfiltration: the cookie jar reaches
// sendResponse with no sender.* check gating it.
const exfilSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResponse"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                 "property": {"type": "Identifier", "name": "cookies"}},
                "property": {"type": "Identifier", "name": "getAll"}},
              "arguments": [
                {"type": "ObjectExpression"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "c"}],
                 "body": {
                   "type": "CallExpression",
                   "callee": {"type": "Identifier", "name": "sendResponse"},
                   "arguments": [{"type": "Identifier", "name": "c"}]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

// chrome.runtime.onMessage.addListener((m, s, sendResponse) => {
//   chrome.cookies.getAll({}, c => {
//     const v = extract(c);
//     sendResponse(v);
//   });
//   return true;
// });
// function extract(c) { return c.value; }
//
// The cookie jar is never passed to sendResponse directly: it is routed
// through an ordinary user-defined helper function first. The argument/
// parameter and return/call-site data-dependence bridges must still trace
// it through to the sink.
const helperFunctionExfilSrc = `{
  "type": "Program",
  "body": [
    {
      "type": "ExpressionStatement",
      "expression": {
        "type": "CallExpression",
        "callee": {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object":
            {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
             "property": {"type": "Identifier", "name": "runtime"}},
           "property": {"type": "Identifier", "name": "onMessage"}},
          "property": {"type": "Identifier", "name": "addListener"}},
        "arguments": [{
          "type": "ArrowFunctionExpression",
          "params": [
            {"type": "Identifier", "name": "m"},
            {"type": "Identifier", "name": "s"},
            {"type": "Identifier", "name": "sendResponse"}
          ],
          "body": {
            "type": "BlockStatement",
            "body": [
              {"type": "ExpressionStatement", "expression": {
                "type": "CallExpression",
                "callee": {"type": "MemberExpression", "object":
                  {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                   "property": {"type": "Identifier", "name": "cookies"}},
                  "property": {"type": "Identifier", "name": "getAll"}},
                "arguments": [
                  {"type": "ObjectExpression"},
                  {"type": "ArrowFunctionExpression",
                   "params": [{"type": "Identifier", "name": "c"}],
                   "body": {
                     "type": "BlockStatement",
                     "body": [
                       {"type": "VariableDeclaration", "kind": "const", "declarations": [
                         {"type": "VariableDeclarator",
                          "id": {"type": "Identifier", "name": "v"},
                          "init": {
                            "type": "CallExpression",
                            "callee": {"type": "Identifier", "name": "extract"},
                            "arguments": [{"type": "Identifier", "name": "c"}]
                          }}
                       ]},
                       {"type": "ExpressionStatement", "expression": {
                         "type": "CallExpression",
                         "callee": {"type": "Identifier", "name": "sendResponse"},
                         "arguments": [{"type": "Identifier", "name": "v"}]
                       }}
                     ]
                   }}
                ]
              }},
              {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
            ]
          }
        }]
      }
    },
    {
      "type": "FunctionDeclaration",
      "id": {"type": "Identifier", "name": "extract"},
      "params": [{"type": "Identifier", "name": "c"}],
      "body": {"type": "BlockStatement", "body": [
        {"type": "ReturnStatement", "argument": {
          "type": "MemberExpression",
          "object": {"type": "Identifier", "name": "c"},
          "property": {"type": "Identifier", "name": "value"}
        }}
      ]}
    }
  ]
}`

func TestDetect_CookieExfiltrationThroughHelperFunction(t *testing.T) {
	fs, g := buildGraph(t, helperFunctionExfilSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(helperFunctionExfilSrc), fs, g)
	require.NoError(t, err)
	require.Len(t, findings.ExfiltrationDangers, 1,
		"taint routed through an ordinary helper function (extract) must still reach sendResponse")
	assert.Empty(t, findings.InfiltrationDangers)
}

func buildGraph(t *testing.T, src string) (*scope.FileScope, *pdg.Graph) {
	t.Helper()
	root, err := ast.FromESTreeJSON([]byte(src), "bg.js")
	require.NoError(t, err)
	fs, err := (&scope.Resolver{}).Resolve("bg.js", root)
	require.NoError(t, err)
	tables := profile.DefaultTables()
	g, err := (&pdg.Builder{Callbacks: tables.Callbacks}).Build(fs)
	require.NoError(t, err)
	return fs, g
}

func TestDetect_UnguardedCookieExfiltration(t *testing.T) {
	fs, g := buildGraph(t, exfilSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(exfilSrc), fs, g)
	require.NoError(t, err)
	require.Len(t, findings.ExfiltrationDangers, 1)
	assert.Empty(t, findings.InfiltrationDangers)

	danger := findings.ExfiltrationDangers[0]
	assert.Equal(t, "1/1", danger.DataFlowNumber)
	assert.NotEmpty(t, danger.FromFlow)
	assert.NotEmpty(t, danger.ToFlow)
	assert.Equal(t, "CallExpression", danger.Rendezvous.NodeType)
}

// Same listener, now gated by a sender.url check around the response. The
// guard removes the exfiltration emission entirely: adding a sufficient
// guard removes every emission it gates.
const guardedSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResponse"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                 "property": {"type": "Identifier", "name": "cookies"}},
                "property": {"type": "Identifier", "name": "getAll"}},
              "arguments": [
                {"type": "ObjectExpression"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "c"}],
                 "body": {
                   "type": "BlockStatement",
                   "body": [
                     {"type": "IfStatement",
                      "test": {"type": "BinaryExpression", "operator": "===",
                        "left": {"type": "MemberExpression",
                          "object": {"type": "Identifier", "name": "s"},
                          "property": {"type": "Identifier", "name": "url"}},
                        "right": {"type": "Literal", "value": "https://admin.com", "raw": "\"https://admin.com\""}},
                      "consequent": {"type": "BlockStatement", "body": [
                        {"type": "ExpressionStatement", "expression": {
                          "type": "CallExpression",
                          "callee": {"type": "Identifier", "name": "sendResponse"},
                          "arguments": [{"type": "Identifier", "name": "c"}]
                        }}
                      ]}}
                   ]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_SenderGuardSuppressesExfiltration(t *testing.T) {
	fs, g := buildGraph(t, guardedSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(guardedSrc), fs, g)
	require.NoError(t, err)
	assert.Empty(t, findings.ExfiltrationDangers)
	assert.Empty(t, findings.InfiltrationDangers)
}

// Same listener, guarded by a ternary instead of an IfStatement:
// `s.url === "https://admin.com" ? sendResponse(c) : null;`. The response
// call sits in the ternary's consequent branch, which never becomes its own
// CFG statement, so the guard must be recognized at the expression level.
const ternaryGuardedSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResponse"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                 "property": {"type": "Identifier", "name": "cookies"}},
                "property": {"type": "Identifier", "name": "getAll"}},
              "arguments": [
                {"type": "ObjectExpression"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "c"}],
                 "body": {
                   "type": "BlockStatement",
                   "body": [
                     {"type": "ExpressionStatement", "expression": {
                       "type": "ConditionalExpression",
                       "test": {"type": "BinaryExpression", "operator": "===",
                         "left": {"type": "MemberExpression",
                           "object": {"type": "Identifier", "name": "s"},
                           "property": {"type": "Identifier", "name": "url"}},
                         "right": {"type": "Literal", "value": "https://admin.com", "raw": "\"https://admin.com\""}},
                       "consequent": {
                         "type": "CallExpression",
                         "callee": {"type": "Identifier", "name": "sendResponse"},
                         "arguments": [{"type": "Identifier", "name": "c"}]
                       },
                       "alternate": {"type": "Literal", "value": null, "raw": "null"}
                     }}
                   ]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_TernaryGuardSuppressesExfiltration(t *testing.T) {
	fs, g := buildGraph(t, ternaryGuardedSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(ternaryGuardedSrc), fs, g)
	require.NoError(t, err)
	assert.Empty(t, findings.ExfiltrationDangers)
	assert.Empty(t, findings.InfiltrationDangers)
}

// Same listener, guarded by `s.url.startsWith("https://example.com/")`
// rather than an equality check against the sender property itself.
const startsWithGuardedSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResponse"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                 "property": {"type": "Identifier", "name": "cookies"}},
                "property": {"type": "Identifier", "name": "getAll"}},
              "arguments": [
                {"type": "ObjectExpression"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "c"}],
                 "body": {
                   "type": "BlockStatement",
                   "body": [
                     {"type": "IfStatement",
                      "test": {
                        "type": "CallExpression",
                        "callee": {"type": "MemberExpression",
                          "object": {"type": "MemberExpression",
                            "object": {"type": "Identifier", "name": "s"},
                            "property": {"type": "Identifier", "name": "url"}},
                          "property": {"type": "Identifier", "name": "startsWith"}},
                        "arguments": [{"type": "Literal", "value": "https://example.com/", "raw": "\"https://example.com/\""}]
                      },
                      "consequent": {"type": "BlockStatement", "body": [
                        {"type": "ExpressionStatement", "expression": {
                          "type": "CallExpression",
                          "callee": {"type": "Identifier", "name": "sendResponse"},
                          "arguments": [{"type": "Identifier", "name": "c"}]
                        }}
                      ]}}
                   ]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_StartsWithGuardSuppressesExfiltration(t *testing.T) {
	fs, g := buildGraph(t, startsWithGuardedSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(startsWithGuardedSrc), fs, g)
	require.NoError(t, err)
	assert.Empty(t, findings.ExfiltrationDangers)
	assert.Empty(t, findings.InfiltrationDangers)
}

// Same listener, guarded by a logical-AND short-circuit instead of an
// IfStatement/ternary: `s.url === "https://admin.com" && sendResponse(c);`.
const logicalAndGuardedSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResponse"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                 "property": {"type": "Identifier", "name": "cookies"}},
                "property": {"type": "Identifier", "name": "getAll"}},
              "arguments": [
                {"type": "ObjectExpression"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "c"}],
                 "body": {
                   "type": "BlockStatement",
                   "body": [
                     {"type": "ExpressionStatement", "expression": {
                       "type": "LogicalExpression",
                       "operator": "&&",
                       "left": {"type": "BinaryExpression", "operator": "===",
                         "left": {"type": "MemberExpression",
                           "object": {"type": "Identifier", "name": "s"},
                           "property": {"type": "Identifier", "name": "url"}},
                         "right": {"type": "Literal", "value": "https://admin.com", "raw": "\"https://admin.com\""}},
                       "right": {
                         "type": "CallExpression",
                         "callee": {"type": "Identifier", "name": "sendResponse"},
                         "arguments": [{"type": "Identifier", "name": "c"}]
                       }
                     }}
                   ]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_LogicalAndGuardSuppressesExfiltration(t *testing.T) {
	fs, g := buildGraph(t, logicalAndGuardedSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(logicalAndGuardedSrc), fs, g)
	require.NoError(t, err)
	assert.Empty(t, findings.ExfiltrationDangers)
	assert.Empty(t, findings.InfiltrationDangers)
}

// chrome.runtime.onMessage.addListener((m,s,sendResp)=>{
//   chrome.storage.local.get(null, x=>sendResp(x));
//   return true;
// });
//
// The response callback is named sendResp here, not sendResponse — the
// sink must be recognized by its position as the listener's third
// parameter, not by that literal name.
const storageExfilSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [
          {"type": "Identifier", "name": "m"},
          {"type": "Identifier", "name": "s"},
          {"type": "Identifier", "name": "sendResp"}
        ],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "CallExpression",
              "callee": {"type": "MemberExpression", "object":
                {"type": "MemberExpression", "object":
                  {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
                   "property": {"type": "Identifier", "name": "storage"}},
                 "property": {"type": "Identifier", "name": "local"}},
                "property": {"type": "Identifier", "name": "get"}},
              "arguments": [
                {"type": "Literal", "value": null, "raw": "null"},
                {"type": "ArrowFunctionExpression",
                 "params": [{"type": "Identifier", "name": "x"}],
                 "body": {
                   "type": "CallExpression",
                   "callee": {"type": "Identifier", "name": "sendResp"},
                   "arguments": [{"type": "Identifier", "name": "x"}]
                 }}
              ]
            }},
            {"type": "ReturnStatement", "argument": {"type": "Literal", "value": true, "raw": "true"}}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_StorageExfiltrationViaRenamedResponseParam(t *testing.T) {
	fs, g := buildGraph(t, storageExfilSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("bg.js", []byte(storageExfilSrc), fs, g)
	require.NoError(t, err)
	require.Len(t, findings.ExfiltrationDangers, 1)
	assert.Empty(t, findings.InfiltrationDangers)
}

// chrome.runtime.onMessage.addListener((m)=>{
//   document.body.innerHTML = m.html;
// });
//
// An attacker-controlled message field flowing straight into a DOM sink.
const domInfiltrationSrc = `{
  "type": "Program",
  "body": [{
    "type": "ExpressionStatement",
    "expression": {
      "type": "CallExpression",
      "callee": {"type": "MemberExpression", "object":
        {"type": "MemberExpression", "object":
          {"type": "MemberExpression", "object": {"type": "Identifier", "name": "chrome"},
           "property": {"type": "Identifier", "name": "runtime"}},
         "property": {"type": "Identifier", "name": "onMessage"}},
        "property": {"type": "Identifier", "name": "addListener"}},
      "arguments": [{
        "type": "ArrowFunctionExpression",
        "params": [{"type": "Identifier", "name": "m"}],
        "body": {
          "type": "BlockStatement",
          "body": [
            {"type": "ExpressionStatement", "expression": {
              "type": "AssignmentExpression",
              "operator": "=",
              "left": {"type": "MemberExpression",
                "object": {"type": "MemberExpression",
                  "object": {"type": "Identifier", "name": "document"},
                  "property": {"type": "Identifier", "name": "body"}},
                "property": {"type": "Identifier", "name": "innerHTML"}},
              "right": {"type": "MemberExpression",
                "object": {"type": "Identifier", "name": "m"},
                "property": {"type": "Identifier", "name": "html"}}
            }}
          ]
        }
      }]
    }
  }]
}`

func TestDetect_MessageToDOMInfiltration(t *testing.T) {
	fs, g := buildGraph(t, domInfiltrationSrc)
	d := &Detector{Tables: profile.DefaultTables()}

	findings, err := d.Detect("content.js", []byte(domInfiltrationSrc), fs, g)
	require.NoError(t, err)
	require.Len(t, findings.InfiltrationDangers, 1)
	assert.Empty(t, findings.ExfiltrationDangers)
}
