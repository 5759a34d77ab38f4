// Package profile holds the dotted-call-path taint tables (sources, sinks,
// sender guards) the detector drives its classification from, plus the
// callback-argument-position table the PDG builder uses to add call edges
// for callback-style APIs (addListener, forEach, then, ...). Tables are
// plain YAML-tagged data (gopkg.in/yaml.v3), loaded from a compiled-in
// default and mergeable with a user override, not a hardcoded switch.
package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/viant/xguard/internal/ast"
)

// DefaultVersion names the compiled-in table revision. It is not written
// into reports.
const DefaultVersion = "v1"

// SourceRule matches a tainting call: Object.Method(...), optionally a
// wildcard method ("*"), tainting either the call's own return value
// (consumed via its enclosing callback, CallbackTaintedParams empty) or
// specific parameters of a callback/listener argument it registers
// (CallbackTaintedParams, e.g. onMessage's message/sender).
type SourceRule struct {
	Object                string `yaml:"object"`
	Method                string `yaml:"method"`
	CallbackTaintedParams []int  `yaml:"callbackTaintedParams,omitempty"`
}

func (r SourceRule) Matches(object, method string) bool {
	return r.Object == object && (r.Method == "*" || r.Method == method)
}

// SinkRuleKind distinguishes the shape of a sink site.
type SinkRuleKind string

const (
	SinkCall       SinkRuleKind = "call"       // Object.Method(args...)
	SinkAssign     SinkRuleKind = "assign"     // obj.Property = <tainted>
	SinkReturn     SinkRuleKind = "return"     // a listener's own return value
	SinkStringArg0 SinkRuleKind = "stringArg0" // sink only if arg 0 is a string literal/expr, not a function
)

// SinkRule identifies a dangerous data sink and which position carries the
// potentially-tainted value.
type SinkRule struct {
	Kind     SinkRuleKind `yaml:"kind"`
	Object   string       `yaml:"object,omitempty"`
	Method   string       `yaml:"method,omitempty"`
	Property string       `yaml:"property,omitempty"`
	ArgIndex int          `yaml:"argIndex"`
}

// GuardRule names one sender-identity property xguard recognizes as a
// valid origin check gating a message-response sink.
type GuardRule struct {
	Object string   `yaml:"object"`
	Path   []string `yaml:"path"`
}

// DottedName joins Object and Path for display/debugging.
func (g GuardRule) DottedName() string {
	return strings.Join(append([]string{g.Object}, g.Path...), ".")
}

// CallbackSite names an API whose call registers a callback function; the
// PDG builder adds a call edge from the registering call to that callback
// so data-flow can walk into it as if it were an ordinary function call.
type CallbackSite struct {
	Object        string `yaml:"object"`
	Method        string `yaml:"method"`
	CallbackIndex int    `yaml:"callbackIndex"`
}

// Tables bundles every taint/callback table the detector and PDG builder
// consult. All four are data, not code, so a deployment can extend them
// without a rebuild; an override only adds rules (see Merge), it cannot
// replace or remove the defaults.
type Tables struct {
	Sources   []SourceRule   `yaml:"sources"`
	Sinks     []SinkRule     `yaml:"sinks"`
	Guards    []GuardRule    `yaml:"guards"`
	Callbacks []CallbackSite `yaml:"callbacks"`
}

// Merge appends other's rules onto t and returns the combined table; a user
// override is additive, it never removes a default rule.
func (t Tables) Merge(other Tables) Tables {
	return Tables{
		Sources:   append(append([]SourceRule{}, t.Sources...), other.Sources...),
		Sinks:     append(append([]SinkRule{}, t.Sinks...), other.Sinks...),
		Guards:    append(append([]GuardRule{}, t.Guards...), other.Guards...),
		Callbacks: append(append([]CallbackSite{}, t.Callbacks...), other.Callbacks...),
	}
}

// LoadOverride reads a YAML Tables document from path and merges it onto
// DefaultTables().
func LoadOverride(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("profile: read override %s: %w", path, err)
	}
	var override Tables
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Tables{}, fmt.Errorf("profile: decode override %s: %w", path, err)
	}
	return DefaultTables().Merge(override), nil
}

// SplitCallee renders a call's callee expression as a dotted object prefix
// and method name, e.g. chrome.runtime.onMessage.addListener ->
// ("chrome.runtime.onMessage", "addListener"); a bare identifier call
// eval(...) -> ("", "eval"). Shared by the PDG builder (call-edge
// resolution) and the detector (source/sink table matching) so both agree
// on what a dotted API name means.
func SplitCallee(callee *ast.Node) (object, method string) {
	if callee == nil {
		return "", ""
	}
	if callee.Kind == "Identifier" {
		return "", callee.Value
	}
	if callee.Kind != "MemberExpression" {
		return "", ""
	}
	prop := callee.Field("property")
	if prop == nil {
		return "", ""
	}
	method = prop.Value
	object = DottedName(callee.Field("object"))
	return object, method
}

// DottedName renders a (possibly chained) MemberExpression/Identifier
// expression as a dotted string, e.g. chrome.storage.local.
func DottedName(n *ast.Node) string {
	if n == nil {
		return ""
	}
	if n.Kind == "Identifier" {
		return n.Value
	}
	if n.Kind == "MemberExpression" {
		prop := n.Field("property")
		obj := DottedName(n.Field("object"))
		if prop == nil {
			return obj
		}
		if obj == "" {
			return prop.Value
		}
		return obj + "." + prop.Value
	}
	return ""
}

// DefaultTables returns the compiled-in source/sink/guard/callback tables.
func DefaultTables() Tables {
	return Tables{
		Sources: []SourceRule{
			{Object: "chrome.cookies", Method: "getAll"},
			{Object: "chrome.cookies", Method: "get"},
			{Object: "chrome.history", Method: "*"},
			{Object: "chrome.tabs", Method: "query"},
			{Object: "chrome.tabs", Method: "get"},
			{Object: "chrome.storage.local", Method: "get"},
			{Object: "chrome.storage.sync", Method: "get"},
			{Object: "chrome.storage.session", Method: "get"},
			{Object: "chrome.bookmarks", Method: "*"},
			{Object: "chrome.downloads", Method: "*"},
			{Object: "chrome.identity", Method: "*"},
			{Object: "chrome.topSites", Method: "get"},
			{Object: "chrome.webRequest", Method: "*"},
			{Object: "chrome.runtime.onMessage", Method: "addListener", CallbackTaintedParams: []int{0, 1}},
			{Object: "chrome.runtime.onMessageExternal", Method: "addListener", CallbackTaintedParams: []int{0, 1}},
			{Object: "port.onMessage", Method: "addListener", CallbackTaintedParams: []int{0}},
			{Object: "window", Method: "addEventListener", CallbackTaintedParams: []int{0}},
		},
		Sinks: []SinkRule{
			// Calling the onMessage listener's own third parameter (its
			// sendResponse callback) is a message-response sink no matter
			// what the call site names that parameter locally; the
			// detector recognizes it positionally rather than by listing
			// it here by name.
			{Kind: SinkReturn, Object: "onMessage", Method: "addListener"},
			{Kind: SinkCall, Object: "port", Method: "postMessage", ArgIndex: 0},
			{Kind: SinkCall, Object: "chrome.tabs", Method: "sendMessage", ArgIndex: 1},
			{Kind: SinkCall, Object: "chrome.runtime", Method: "sendMessage", ArgIndex: 0},
			{Kind: SinkCall, Object: "chrome.storage.local", Method: "set", ArgIndex: 0},
			{Kind: SinkCall, Object: "chrome.storage.sync", Method: "set", ArgIndex: 0},
			{Kind: SinkCall, Object: "chrome.storage.session", Method: "set", ArgIndex: 0},
			{Kind: SinkAssign, Property: "innerHTML"},
			{Kind: SinkAssign, Property: "outerHTML"},
			{Kind: SinkCall, Object: "document", Method: "write", ArgIndex: 0},
			{Kind: SinkCall, Object: "document", Method: "writeln", ArgIndex: 0},
			{Kind: SinkCall, Object: "", Method: "eval", ArgIndex: 0},
			{Kind: SinkCall, Object: "", Method: "Function", ArgIndex: -1},
			{Kind: SinkStringArg0, Object: "", Method: "setTimeout", ArgIndex: 0},
			{Kind: SinkStringArg0, Object: "", Method: "setInterval", ArgIndex: 0},
		},
		Guards: []GuardRule{
			{Object: "sender", Path: []string{"url"}},
			{Object: "sender", Path: []string{"origin"}},
			{Object: "sender", Path: []string{"tab", "url"}},
			{Object: "sender", Path: []string{"id"}},
			{Object: "sender", Path: []string{"frameId"}},
		},
		Callbacks: []CallbackSite{
			{Object: "chrome.runtime.onMessage", Method: "addListener", CallbackIndex: 0},
			{Object: "chrome.runtime.onMessageExternal", Method: "addListener", CallbackIndex: 0},
			{Object: "port.onMessage", Method: "addListener", CallbackIndex: 0},
			{Object: "window", Method: "addEventListener", CallbackIndex: 1},
			{Object: "", Method: "forEach", CallbackIndex: 0},
			{Object: "", Method: "map", CallbackIndex: 0},
			{Object: "", Method: "filter", CallbackIndex: 0},
			{Object: "", Method: "then", CallbackIndex: 0},
			// Asynchronous chrome APIs that deliver their privileged result
			// through a trailing callback argument rather than a return
			// value; the PDG builder needs a call edge into the callback so
			// the result's data-dependence can be traced to its use.
			{Object: "chrome.cookies", Method: "getAll", CallbackIndex: 1},
			{Object: "chrome.cookies", Method: "get", CallbackIndex: 1},
			{Object: "chrome.storage.local", Method: "get", CallbackIndex: 1},
			{Object: "chrome.storage.sync", Method: "get", CallbackIndex: 1},
			{Object: "chrome.storage.session", Method: "get", CallbackIndex: 1},
			{Object: "chrome.tabs", Method: "query", CallbackIndex: 1},
			{Object: "chrome.tabs", Method: "get", CallbackIndex: 1},
		},
	}
}
