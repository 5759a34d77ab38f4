package pdg

import (
	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/scope"
)

// Builder constructs a Graph from a resolved FileScope.
type Builder struct {
	// Callbacks names which call sites register a function argument as a
	// reachable callback (profile.CallbackSite), so CallTargets can follow
	// chrome.runtime.onMessage.addListener(fn) the same way it follows a
	// direct call.
	Callbacks []profile.CallbackSite
}

// Build performs one structural pass: CFG + control-dependence edges via a
// statement dispatch table keyed by ast.Node.Kind, plus call-edge
// resolution. Data-dependence is not precomputed; Graph.ParentsOf/ChildrenOf
// compute it lazily on first query.
func (b *Builder) Build(fs *scope.FileScope) (*Graph, error) {
	g := &Graph{
		fs:                fs,
		succ:              map[*ast.Node][]*ast.Node{},
		pred:              map[*ast.Node][]*ast.Node{},
		controlDep:        map[*ast.Node][]*ast.Node{},
		callEdges:         map[*ast.Node][]*ast.Node{},
		cfgNodes:          map[*ast.Node]bool{},
		occByBinding:      map[*scope.Binding][]*scope.Occurrence{},
		occByNode:         map[*ast.Node]*scope.Occurrence{},
		targetCalls:       map[*ast.Node][]*ast.Node{},
		paramArgOccs:      map[*ast.Node][]*scope.Occurrence{},
		argParam:          map[*ast.Node]*ast.Node{},
		callResultBinding: map[*ast.Node]*scope.Binding{},
		parentsCache:      map[*scope.Occurrence][]*scope.Occurrence{},
		childrenCache:     map[*scope.Occurrence][]*scope.Occurrence{},
		inFlight:          map[*scope.Occurrence]bool{},
	}
	for _, occ := range fs.Occurrences {
		g.occByBinding[occ.Binding] = append(g.occByBinding[occ.Binding], occ)
		g.occByNode[occ.Node] = occ
	}

	bld := &builder{g: g}
	bld.buildSeq(nil, fs.Root.Node.Children("body"), nil)

	// Every function body is its own CFG region; find and build each one
	// independently of the outer linear flow that merely contains it.
	ast.Walk(fs.Root.Node, func(n *ast.Node) bool {
		if isFunctionNode(n) {
			bld.buildFunctionBody(n)
		}
		return true
	})

	bld.resolveCallEdges(fs, b.Callbacks)
	return g, nil
}

func isFunctionNode(n *ast.Node) bool {
	switch n.Kind {
	case "FunctionDeclaration", "FunctionExpression", "ArrowFunctionExpression":
		return true
	}
	return false
}

type builder struct {
	g *Graph
}

// buildFunctionBody registers fn itself as a pseudo-statement standing for
// "function entry" (where parameter bindings originate) and chains its
// body from there, so a parameter's data-dependence children can be found
// by the ordinary statement-successor walk instead of needing special
// parameter-entry handling in Graph.
func (b *builder) buildFunctionBody(fn *ast.Node) {
	b.g.cfgNodes[fn] = true
	body := fn.Field("body")
	if body == nil {
		return
	}
	if body.Kind == "BlockStatement" {
		b.buildSeq([]*ast.Node{fn}, body.Children("body"), nil)
		return
	}
	// Arrow function expression body: a bare expression, no statement
	// sequence to chain, but it still needs to be its own CFG node distinct
	// from fn so a parameter used directly in it (`c => sendResponse(c)`)
	// resolves to a different enclosing statement than fn's entry does.
	b.g.cfgNodes[body] = true
	b.link([]*ast.Node{fn}, body)
}

func (b *builder) link(from []*ast.Node, to *ast.Node) {
	for _, f := range from {
		b.g.succ[f] = append(b.g.succ[f], to)
		b.g.pred[to] = append(b.g.pred[to], f)
	}
}

// buildSeq links prevExits into the first statement of stmts and chains the
// rest in source order, returning the sequence's exit set.
func (b *builder) buildSeq(prevExits []*ast.Node, stmts []*ast.Node, controllers []*ast.Node) []*ast.Node {
	cur := prevExits
	for _, s := range stmts {
		b.link(cur, s)
		cur = b.buildStmt(s, controllers)
	}
	return cur
}

// buildStmt registers s as a CFG node, records its control-dependence
// ancestors, and dispatches on Kind to produce its exit set.
func (b *builder) buildStmt(s *ast.Node, controllers []*ast.Node) []*ast.Node {
	b.g.cfgNodes[s] = true
	if len(controllers) > 0 {
		b.g.controlDep[s] = append(b.g.controlDep[s], controllers...)
	}

	switch s.Kind {
	case "IfStatement":
		inner := append(append([]*ast.Node{}, controllers...), s)
		var exits []*ast.Node
		if cons := s.Field("consequent"); cons != nil {
			b.link([]*ast.Node{s}, cons)
			exits = append(exits, b.buildStmt(cons, inner)...)
		}
		if alt := s.Field("alternate"); alt != nil {
			b.link([]*ast.Node{s}, alt)
			exits = append(exits, b.buildStmt(alt, inner)...)
		} else {
			exits = append(exits, s)
		}
		return exits

	case "BlockStatement":
		stmts := s.Children("body")
		if len(stmts) == 0 {
			return []*ast.Node{s}
		}
		return b.buildSeq([]*ast.Node{s}, stmts, controllers)

	case "WhileStatement", "ForStatement":
		inner := append(append([]*ast.Node{}, controllers...), s)
		var bodyExits []*ast.Node
		if body := s.Field("body"); body != nil {
			b.link([]*ast.Node{s}, body)
			bodyExits = b.buildStmt(body, inner)
		}
		b.link(bodyExits, s) // loop back to the test
		return []*ast.Node{s}

	case "TryStatement":
		// Simplified: try/catch/finally is treated as an atomic CFG node.
		// Catch-clause scoping itself is fully modeled in internal/scope.
		// The statements inside the try, catch and finally blocks are not
		// CFG nodes of their own: they all share this one node as their
		// enclosing statement, so a write and a later read of the same
		// binding inside one try statement are not linked, and no edge
		// leads from the try block into the catch block.
		return []*ast.Node{s}

	case "ReturnStatement", "ThrowStatement", "BreakStatement", "ContinueStatement":
		return nil

	default:
		return []*ast.Node{s}
	}
}

// resolveCallEdges walks every CallExpression and links it to the function
// node(s) it invokes: a locally resolved identifier/member callee, or a
// callback argument position named in the callback table.
func (b *builder) resolveCallEdges(fs *scope.FileScope, callbacks []profile.CallbackSite) {
	ast.Walk(fs.Root.Node, func(n *ast.Node) bool {
		if n.Kind != "CallExpression" {
			return true
		}
		callee := n.Field("callee")
		if callee == nil {
			return true
		}
		if callee.Kind == "Identifier" {
			if scopeOf := fs.ScopeOf(callee); scopeOf != nil {
				if binding := scopeOf.Find(callee.Value); binding != nil && isFunctionNode(binding.Node.Parent) {
					b.addCallEdge(n, binding.Node.Parent)
					// Restricted to an actual function declaration/
					// expression binding: a callback held in a parameter
					// (e.g. a listener's own sendResponse) also has a
					// function node as its declaring identifier's parent,
					// but its "arguments" there are the callback's own
					// call-site arguments, not params of the thing being
					// called, so wiring them would pair unrelated values.
					if binding.Kind == scope.BindFunc {
						b.wireArgsAndReturn(n, binding.Node.Parent, fs)
					}
				} else if binding != nil && binding.Node != nil {
					// a variable initialized with a function literal
					// (const f = function(){} or const f = () => {}).
					if fn := findAssignedFunction(binding); fn != nil {
						b.addCallEdge(n, fn)
						b.wireArgsAndReturn(n, fn, fs)
					}
				}
			}
		}
		for _, site := range callbacks {
			if !matchesCallbackSite(callee, site) {
				continue
			}
			args := n.Children("arguments")
			if site.CallbackIndex < len(args) && isFunctionNode(args[site.CallbackIndex]) {
				b.addCallEdge(n, args[site.CallbackIndex])
			}
		}
		return true
	})
}

// addCallEdge records that call invokes target and wires a cross-procedural
// CFG edge from call's enclosing statement to target's entry so the
// ordinary statement-successor walk in Graph.ChildrenOf can carry a
// parameter's data-dependence children into the callback body (and
// ParentsOf the other way).
func (b *builder) addCallEdge(call, target *ast.Node) {
	b.g.callEdges[call] = append(b.g.callEdges[call], target)
	if stmt := b.g.enclosingStmt(call); stmt != nil {
		b.link([]*ast.Node{stmt}, target)
	}
}

// wireArgsAndReturn records the cross-procedural data-dependence bridges
// for an ordinary (non-callback-table) call to a user-defined function:
// each argument position is paired with the matching parameter so a taint
// walk can cross the call boundary in either direction, and, when the
// call's result is assigned to a local binding, the callee is registered
// as a caller of that binding so its ReturnStatements can bridge back out.
func (b *builder) wireArgsAndReturn(call, fn *ast.Node, fs *scope.FileScope) {
	b.g.targetCalls[fn] = append(b.g.targetCalls[fn], call)

	args := call.Children("arguments")
	params := fn.Children("params")
	for i, p := range params {
		if i >= len(args) {
			break
		}
		root := rootIdentifier(args[i])
		if root == nil {
			continue
		}
		occ := b.g.occByNode[root]
		if occ == nil {
			continue
		}
		b.g.paramArgOccs[p] = append(b.g.paramArgOccs[p], occ)
		b.g.argParam[root] = p
	}

	parent := call.Parent
	if parent == nil || parent.Kind != "VariableDeclarator" || parent.Field("init") != call {
		return
	}
	id := parent.Field("id")
	if id == nil {
		return
	}
	if occ := b.g.occByNode[id]; occ != nil && occ.Binding != nil {
		b.g.callResultBinding[call] = occ.Binding
	}
}

// rootIdentifier descends a (possibly chained, non-computed) MemberExpression
// to its root Identifier, matching the member-access policy used elsewhere
// in the analyzer: reading o.p is treated as a use of o.
func rootIdentifier(n *ast.Node) *ast.Node {
	for n != nil {
		switch n.Kind {
		case "Identifier":
			return n
		case "MemberExpression":
			n = n.Field("object")
		default:
			return nil
		}
	}
	return nil
}

// enclosingFunctionNode walks n's ancestor chain to the nearest function
// node (declaration, expression, or arrow).
func enclosingFunctionNode(n *ast.Node) *ast.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if isFunctionNode(cur) {
			return cur
		}
	}
	return nil
}

// findAssignedFunction handles `const f = function(){}` / `let f = () => {}`
// where f's binding node is the declarator's id, not a function node.
func findAssignedFunction(binding *scope.Binding) *ast.Node {
	p := binding.Node.Parent
	if p == nil || p.Kind != "VariableDeclarator" {
		return nil
	}
	init := p.Field("init")
	if init != nil && isFunctionNode(init) {
		return init
	}
	return nil
}

// matchesCallbackSite checks callee against a dotted Object.Method rule,
// tolerating the member-expression chain (a.b.c.method(...)).
func matchesCallbackSite(callee *ast.Node, site profile.CallbackSite) bool {
	object, method := profile.SplitCallee(callee)
	if site.Method != method {
		return false
	}
	if site.Object == "" {
		return true
	}
	return object == site.Object
}
