// Package pdg builds a program dependence graph: AST plus control-flow
// successor/predecessor edges, control-dependence edges, call edges, and a
// lazily-computed data-dependence layer exposed through
// ParentsOf/ChildrenOf. Uses a statement-dispatch style generalized from
// Go's statement forms to ECMAScript's.
package pdg

import (
	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/scope"
)

// Graph is one file's program dependence graph.
type Graph struct {
	fs *scope.FileScope

	succ       map[*ast.Node][]*ast.Node
	pred       map[*ast.Node][]*ast.Node
	controlDep map[*ast.Node][]*ast.Node
	callEdges  map[*ast.Node][]*ast.Node
	cfgNodes   map[*ast.Node]bool

	occByBinding map[*scope.Binding][]*scope.Occurrence
	occByNode    map[*ast.Node]*scope.Occurrence

	// Cross-procedural bridges, populated for ordinary user-defined function
	// calls (not the profile.CallbackSite-table kind, which already has its
	// own taint-origin treatment): targetCalls is callEdges' reverse, keyed
	// by callee entry node; paramArgOccs/argParam pair a parameter
	// declaration with the call-site argument occurrence that supplies it;
	// callResultBinding records the binding a call's result is assigned to
	// (`const v = f(...)`), so a ReturnStatement inside f can bridge back
	// out to v.
	targetCalls       map[*ast.Node][]*ast.Node
	paramArgOccs      map[*ast.Node][]*scope.Occurrence
	argParam          map[*ast.Node]*ast.Node
	callResultBinding map[*ast.Node]*scope.Binding

	parentsCache  map[*scope.Occurrence][]*scope.Occurrence
	childrenCache map[*scope.Occurrence][]*scope.Occurrence
	inFlight      map[*scope.Occurrence]bool
}

// ControlDepAncestors returns the conditional/loop nodes n is
// control-dependent on, outermost first: statement-level If/While/For
// ancestors recorded at build time for n's enclosing statement, plus any
// ConditionalExpression (ternary) or logical-AND LogicalExpression that
// wraps n more tightly than that statement does. The latter are computed
// on the fly by walking n's direct ancestor chain, since a ternary/`&&`
// guard lives inside a single statement rather than branching the CFG.
func (g *Graph) ControlDepAncestors(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	if stmt := g.enclosingStmt(n); stmt != nil {
		out = append(out, g.controlDep[stmt]...)
	}
	out = append(out, g.expressionGuardAncestors(n)...)
	return out
}

// expressionGuardAncestors walks upward from n, stopping at n's enclosing
// statement, collecting ConditionalExpression/LogicalExpression(&&)
// ancestors that guard n's evaluation: n must be reached only through the
// ternary's consequent branch, or the "&&"'s right operand, for the
// ancestor's condition to actually gate n.
func (g *Graph) expressionGuardAncestors(n *ast.Node) []*ast.Node {
	var out []*ast.Node
	cur := n
	for cur != nil && !g.cfgNodes[cur] {
		parent := cur.Parent
		if parent == nil {
			break
		}
		switch {
		case parent.Kind == "ConditionalExpression" && parent.Field("consequent") == cur:
			out = append([]*ast.Node{parent}, out...)
		case parent.Kind == "LogicalExpression" && parent.Value == "&&" && parent.Field("right") == cur:
			out = append([]*ast.Node{parent}, out...)
		}
		cur = parent
	}
	return out
}

// Successors returns n's immediate CFG successors.
func (g *Graph) Successors(n *ast.Node) []*ast.Node { return g.succ[n] }

// Predecessors returns n's immediate CFG predecessors.
func (g *Graph) Predecessors(n *ast.Node) []*ast.Node { return g.pred[n] }

// CallTargets returns the function-entry nodes a CallExpression resolves
// to (zero, one, or more for callback-table fan-out).
func (g *Graph) CallTargets(call *ast.Node) []*ast.Node { return g.callEdges[call] }

// EnclosingStatement walks n's ancestor chain to the nearest registered
// statement-level CFG node, so callers outside this package (the
// detector's sender-guard gating) can reuse control-dependence lookups
// keyed by statement rather than by arbitrary expression node.
func (g *Graph) EnclosingStatement(n *ast.Node) *ast.Node {
	return g.enclosingStmt(n)
}

// enclosingStmt walks n's ancestor chain to the nearest registered
// statement-level CFG node.
func (g *Graph) enclosingStmt(n *ast.Node) *ast.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if g.cfgNodes[cur] {
			return cur
		}
	}
	return nil
}

// isWriteOccurrence reports whether occ is where its binding's value is
// produced: the declaring node itself, or the left-hand side of an
// assignment.
func isWriteOccurrence(occ *scope.Occurrence) bool {
	if occ.Binding == nil {
		return false
	}
	if occ.Node == occ.Binding.Node {
		return true
	}
	p := occ.Node.Parent
	if p != nil && p.Kind == "AssignmentExpression" && p.Field("left") == occ.Node {
		return true
	}
	return false
}

// ParentsOf performs a backward CFG-predecessor walk: starting at occ's
// enclosing statement, walk predecessor statements
// looking for the nearest write occurrence of the same binding on each
// path. Results are memoized; a query already in flight for occ (a cycle)
// returns an empty result instead of recursing forever, since the cache
// entry is only filled when the query finishes.
func (g *Graph) ParentsOf(occ *scope.Occurrence) []*scope.Occurrence {
	if cached, ok := g.parentsCache[occ]; ok {
		return cached
	}
	if g.inFlight[occ] {
		return g.parentsCache[occ] // partial/empty: re-entrancy guard
	}
	g.inFlight[occ] = true
	defer delete(g.inFlight, occ)

	var out []*scope.Occurrence
	if occ.Binding == nil {
		g.parentsCache[occ] = out
		return out
	}
	start := g.enclosingStmt(occ.Node)
	if start == nil {
		g.parentsCache[occ] = out
		return out
	}

	visited := map[*ast.Node]bool{start: true}
	queue := append([]*ast.Node{}, g.pred[start]...)
	seenWrite := map[*scope.Occurrence]bool{}
	for len(queue) > 0 {
		stmt := queue[0]
		queue = queue[1:]
		if visited[stmt] {
			continue
		}
		visited[stmt] = true

		if w := g.writeInStmt(stmt, occ.Binding); w != nil {
			for _, origin := range g.resolveWriteOrigins(w) {
				if !seenWrite[origin] {
					seenWrite[origin] = true
					out = append(out, origin)
				}
			}
			continue // this path's search stops at its nearest write
		}
		queue = append(queue, g.pred[stmt]...)
	}
	g.parentsCache[occ] = out
	return out
}

// ChildrenOf performs the forward CFG-successor walk: starting at occ's
// enclosing statement, walk successor statements collecting the nearest
// read occurrence(s) of the same binding on each path, stopping a path
// early at the nearest re-write (a later write shadows occ's value).
func (g *Graph) ChildrenOf(occ *scope.Occurrence) []*scope.Occurrence {
	if cached, ok := g.childrenCache[occ]; ok {
		return cached
	}
	if g.inFlight[occ] {
		return g.childrenCache[occ]
	}
	g.inFlight[occ] = true
	defer delete(g.inFlight, occ)

	var out []*scope.Occurrence
	if occ.Binding == nil {
		g.childrenCache[occ] = out
		return out
	}
	start := g.enclosingStmt(occ.Node)
	if start == nil {
		g.childrenCache[occ] = out
		return out
	}

	visited := map[*ast.Node]bool{start: true}
	queue := append([]*ast.Node{}, g.succ[start]...)
	seen := map[*scope.Occurrence]bool{}
	for len(queue) > 0 {
		stmt := queue[0]
		queue = queue[1:]
		if visited[stmt] {
			continue
		}
		visited[stmt] = true

		reads := g.readsInStmt(stmt, occ.Binding)
		if len(reads) > 0 {
			for _, r := range reads {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
				for _, bridged := range append(g.argBridge(r), g.returnBridge(r)...) {
					if !seen[bridged] {
						seen[bridged] = true
						out = append(out, bridged)
					}
				}
			}
			continue
		}
		if g.writeInStmt(stmt, occ.Binding) != nil {
			continue // shadowed by a re-write before any read
		}
		queue = append(queue, g.succ[stmt]...)
	}
	g.childrenCache[occ] = out
	return out
}

// resolveWriteOrigins returns w itself, unless w is a function parameter's
// own declaration with known call-site arguments feeding it, in which case
// it returns those argument occurrences instead: the parameter's real
// origin is whatever the caller passed in, not the parameter binding
// itself, so a backward walk keeps tracing into the caller rather than
// stopping at the function boundary.
func (g *Graph) resolveWriteOrigins(w *scope.Occurrence) []*scope.Occurrence {
	if w.Binding != nil && w.Binding.Kind == scope.BindParam {
		if args := g.paramArgOccs[w.Node]; len(args) > 0 {
			return args
		}
	}
	return []*scope.Occurrence{w}
}

// argBridge reports whether r is itself a call-site argument wired (via
// paramArgOccs/argParam) to a callee parameter, and if so returns that
// parameter's own declaration occurrence, so a forward walk keeps going
// into the callee body instead of stopping at the call.
func (g *Graph) argBridge(r *scope.Occurrence) []*scope.Occurrence {
	paramNode, ok := g.argParam[r.Node]
	if !ok {
		return nil
	}
	if occ := g.occByNode[paramNode]; occ != nil {
		return []*scope.Occurrence{occ}
	}
	return nil
}

// returnBridge reports whether r sits inside a ReturnStatement whose
// enclosing function is invoked from call sites that assign the result to
// a local binding (`const v = f(...)`), and if so returns that binding's
// own declaration occurrence, so the forward walk carries the returned
// value back out to the caller instead of dead-ending at the function's
// exit.
func (g *Graph) returnBridge(r *scope.Occurrence) []*scope.Occurrence {
	stmt := g.enclosingStmt(r.Node)
	if stmt == nil || stmt.Kind != "ReturnStatement" {
		return nil
	}
	fn := enclosingFunctionNode(r.Node)
	if fn == nil {
		return nil
	}
	var out []*scope.Occurrence
	for _, call := range g.targetCalls[fn] {
		binding := g.callResultBinding[call]
		if binding == nil {
			continue
		}
		for _, occ := range g.occByBinding[binding] {
			if isWriteOccurrence(occ) {
				out = append(out, occ)
			}
		}
	}
	return out
}

func (g *Graph) writeInStmt(stmt *ast.Node, b *scope.Binding) *scope.Occurrence {
	for _, occ := range g.occByBinding[b] {
		if g.enclosingStmt(occ.Node) == stmt && isWriteOccurrence(occ) {
			return occ
		}
	}
	return nil
}

func (g *Graph) readsInStmt(stmt *ast.Node, b *scope.Binding) []*scope.Occurrence {
	var out []*scope.Occurrence
	for _, occ := range g.occByBinding[b] {
		if g.enclosingStmt(occ.Node) == stmt && !isWriteOccurrence(occ) {
			out = append(out, occ)
		}
	}
	return out
}
