package scope

import "github.com/viant/xguard/internal/ast"

// Resolver runs two-pass resolution: a hoisting-aware declaration
// collection pass, then an occurrence-resolution pass (collect-then-resolve,
// reuse-existing-in-scope-first), adapted from Go-style package/file scoping
// to ECMAScript's var/let/const/function/class and hoisting rules.
type Resolver struct{}

// Resolve builds the scope tree for prog and resolves every identifier
// occurrence against it.
func (r *Resolver) Resolve(file string, prog *ast.Node) (*FileScope, error) {
	root := newScope(KindScript, prog, nil)
	fs := &FileScope{File: file, Root: root, scopes: map[*ast.Node]*Scope{}}
	collectDeclarations(prog, root, fs)
	resolveOccurrences(prog, fs)
	return fs, nil
}

func isFunctionKind(k string) bool {
	switch k {
	case "FunctionDeclaration", "FunctionExpression", "ArrowFunctionExpression":
		return true
	}
	return false
}

// collectDeclarations walks the tree assigning a lexical Scope to every node
// (fs.scopes) and declaring names at the scope hoisting sends them to.
func collectDeclarations(n *ast.Node, cur *Scope, fs *FileScope) {
	if n == nil {
		return
	}
	fs.scopes[n] = cur

	switch n.Kind {
	case "FunctionDeclaration":
		if id := n.Field("id"); id != nil && id.Value != "" {
			hoistScope := nearestFunctionOrScript(cur)
			b := hoistScope.declare(id.Value, BindFunc, id)
			if hoistScope != cur && b.Node == id {
				b.HoistedTo = hoistScope
			}
			fs.scopes[id] = hoistScope
		}
		fnScope := newScope(KindFunc, n, cur)
		declareParams(n, fnScope, fs)
		collectInFunctionBody(n, fnScope, fs)
		return

	case "FunctionExpression":
		fnScope := newScope(KindFunc, n, cur)
		if id := n.Field("id"); id != nil && id.Value != "" {
			fnScope.declare(id.Value, BindFunc, id) // self-binding, visible only inside
			fs.scopes[id] = fnScope
		}
		declareParams(n, fnScope, fs)
		collectInFunctionBody(n, fnScope, fs)
		return

	case "ArrowFunctionExpression":
		fnScope := newScope(KindFunc, n, cur)
		declareParams(n, fnScope, fs)
		collectInFunctionBody(n, fnScope, fs)
		return

	case "CatchClause":
		catchScope := newScope(KindCatch, n, cur)
		if param := n.Field("param"); param != nil {
			for _, leaf := range destructureLeaves(param) {
				catchScope.declare(leaf.Value, BindCatch, leaf)
				fs.scopes[leaf] = catchScope
			}
		}
		if body := n.Field("body"); body != nil {
			blockScope := newScope(KindBlock, body, catchScope)
			collectChildren(body, blockScope, fs)
		}
		return

	case "BlockStatement":
		blockScope := newScope(KindBlock, n, cur)
		collectChildren(n, blockScope, fs)
		return

	case "VariableDeclaration":
		target := cur
		if n.Value == BindVar {
			target = nearestFunctionOrScript(cur)
		}
		for _, decl := range n.Children("declarations") {
			id := decl.Field("id")
			if id == nil {
				continue
			}
			kind := n.Value
			if kind == "" {
				kind = BindVar
			}
			for _, leaf := range destructureLeaves(id) {
				b := target.declare(leaf.Value, kind, leaf)
				if target != cur && b.Node == leaf {
					b.HoistedTo = target
				}
				fs.scopes[leaf] = target
			}
		}
	}

	collectChildren(n, cur, fs)
}

// collectChildren recurses into every field/list child. Declaration order
// across siblings doesn't affect the result (hoisting makes all var/function
// declarations visible throughout their target scope regardless of
// position), so plain map iteration is fine here; resolveOccurrences is the
// pass that needs ast.Walk's deterministic source order.
func collectChildren(n *ast.Node, cur *Scope, fs *FileScope) {
	for _, child := range n.Fields {
		collectDeclarations(child, cur, fs)
	}
	for _, list := range n.List {
		for _, child := range list {
			collectDeclarations(child, cur, fs)
		}
	}
}

func collectInFunctionBody(fn *ast.Node, fnScope *Scope, fs *FileScope) {
	body := fn.Field("body")
	if body == nil {
		return
	}
	if body.Kind == "BlockStatement" {
		// the function body block shares the function scope directly,
		// it does not introduce its own nested block.
		fs.scopes[body] = fnScope
		collectChildren(body, fnScope, fs)
		return
	}
	// arrow function expression body (no braces)
	collectDeclarations(body, fnScope, fs)
}

func declareParams(fn *ast.Node, fnScope *Scope, fs *FileScope) {
	for _, p := range fn.Children("params") {
		for _, leaf := range destructureLeaves(p) {
			fnScope.declare(leaf.Value, BindParam, leaf)
			fs.scopes[leaf] = fnScope
		}
	}
}

// destructureLeaves returns every Identifier binding leaf inside a
// (possibly destructuring) declaration target: Identifier itself,
// ObjectPattern/ArrayPattern members, AssignmentPattern defaults, and
// RestElement tails.
func destructureLeaves(n *ast.Node) []*ast.Node {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case "Identifier":
		return []*ast.Node{n}
	case "AssignmentPattern":
		return destructureLeaves(n.Field("id"))
	case "ObjectPattern":
		var out []*ast.Node
		for _, prop := range n.Children("properties") {
			if prop.Kind == "Property" {
				out = append(out, destructureLeaves(prop.Field("value"))...)
			} else {
				out = append(out, destructureLeaves(prop)...)
			}
		}
		return out
	case "ArrayPattern":
		var out []*ast.Node
		for _, el := range n.Children("elements") {
			out = append(out, destructureLeaves(el)...)
		}
		return out
	case "RestElement":
		if arg := n.Field("argument"); arg != nil {
			return destructureLeaves(arg)
		}
		for _, c := range n.Children("argument") {
			out := destructureLeaves(c)
			if out != nil {
				return out
			}
		}
	}
	return nil
}

// resolveOccurrences walks the tree a second time, resolving every
// Identifier node that is a genuine reference (excluding property keys and
// non-computed member-expression properties) against the scope it sits in.
func resolveOccurrences(prog *ast.Node, fs *FileScope) {
	ast.Walk(prog, func(n *ast.Node) bool {
		if n.Kind != "Identifier" {
			return true
		}
		if isExcludedIdentifier(n) {
			return true
		}
		cur := fs.scopes[n]
		var b *Binding
		if cur != nil {
			b = cur.Find(n.Value)
		}
		fs.Occurrences = append(fs.Occurrences, &Occurrence{Node: n, Binding: b})
		return true
	})
}

func isExcludedIdentifier(n *ast.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	switch p.Kind {
	case "Property":
		if p.Field("key") == n {
			return true
		}
	case "MemberExpression":
		if p.Field("property") == n && p.Value != "computed" {
			return true
		}
	}
	return false
}
