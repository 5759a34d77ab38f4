// Package scope resolves lexical scope over xguard's parser-agnostic AST:
// var/function hoisting, let/const/class block scoping, function-expression
// self-binding, catch-clause scoping, and destructuring leaf bindings.
package scope

import (
	"fmt"

	"github.com/viant/xguard/internal/ast"
)

// Kind values a Scope can take.
const (
	KindScript  = "script"
	KindFunc    = "function"
	KindBlock   = "block"
	KindCatch   = "catch"
)

// Binding kinds, mirroring the declaration form that introduced the name.
const (
	BindVar    = "var"
	BindLet    = "let"
	BindConst  = "const"
	BindFunc   = "function"
	BindParam  = "param"
	BindCatch  = "catch"
	BindClass  = "class"
)

// Scope is one lexical scope in the chain. ID uses a composite string key
// ("file::scopeNodeID") rather than a numeric handle, so scopes stay stable
// across independent Resolve calls over the same file.
type Scope struct {
	ID     string
	Kind   string
	Node   *ast.Node
	Parent *Scope
	Names  map[string]*Binding
}

// Binding records where a name was declared and under what form.
type Binding struct {
	Name      string
	Kind      string
	Node      *ast.Node // the declaring Identifier (or pattern leaf) node
	Scope     *Scope    // the scope it is actually recorded in (post-hoisting)
	HoistedTo *Scope    // non-nil when declared in an inner scope but hoisted out
}

// Occurrence is one identifier use (read or the declaring occurrence
// itself) resolved to its Binding, or nil when unresolved (global/implicit).
type Occurrence struct {
	Node    *ast.Node
	Binding *Binding
}

func newScope(kind string, node *ast.Node, parent *Scope) *Scope {
	id := "<root>"
	if node != nil {
		id = fmt.Sprintf("%s::%d", node.File, node.ID)
	}
	return &Scope{ID: id, Kind: kind, Node: node, Parent: parent, Names: map[string]*Binding{}}
}

// Find looks up name starting at s and walking outward through parents.
func (s *Scope) Find(name string) *Binding {
	for cur := s; cur != nil; cur = cur.Parent {
		if b, ok := cur.Names[name]; ok {
			return b
		}
	}
	return nil
}

// declare records a binding directly in s; first occurrence wins.
func (s *Scope) declare(name, kind string, node *ast.Node) *Binding {
	if existing, ok := s.Names[name]; ok {
		return existing
	}
	b := &Binding{Name: name, Kind: kind, Node: node, Scope: s}
	s.Names[name] = b
	return b
}

// nearestFunctionOrScript walks outward to find the scope var/function
// declarations hoist to.
func nearestFunctionOrScript(s *Scope) *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind == KindFunc || cur.Kind == KindScript {
			return cur
		}
	}
	return s
}

// FileScope is the resolved result for one file: its scope tree root plus
// every identifier occurrence resolved against it.
type FileScope struct {
	File        string
	Root        *Scope
	Occurrences []*Occurrence
	scopes      map[*ast.Node]*Scope
}

func (fs *FileScope) ScopeOf(n *ast.Node) *Scope {
	return fs.scopes[n]
}
