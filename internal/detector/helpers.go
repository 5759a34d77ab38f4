package detector

import (
	"strings"

	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/pdg"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/report"
	"github.com/viant/xguard/internal/scope"
)

func isFunctionNode(n *ast.Node) bool {
	if n == nil {
		return false
	}
	switch n.Kind {
	case "FunctionDeclaration", "FunctionExpression", "ArrowFunctionExpression":
		return true
	}
	return false
}

// memberRootIdentifier descends a (possibly chained, non-computed)
// MemberExpression to its root Identifier, matching §4.2's member-policy:
// reading o.p is a use of o.
func memberRootIdentifier(n *ast.Node) *ast.Node {
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

// memberPath walks outward from n through the chain of enclosing
// non-computed MemberExpressions that have n (or the previous step) as
// their object, collecting property names innermost-first: for
// `sender.tab.url` starting at the `sender` identifier it returns
// ["tab", "url"].
func memberPath(n *ast.Node) []string {
	var path []string
	cur := n
	for cur.Parent != nil && cur.Parent.Kind == "MemberExpression" &&
		cur.Parent.Field("object") == cur && cur.Parent.Value != "computed" {
		prop := cur.Parent.Field("property")
		if prop == nil {
			break
		}
		path = append(path, prop.Value)
		cur = cur.Parent
	}
	return path
}

// memberPathFromRoot decomposes a (possibly chained) non-computed
// MemberExpression downward into its root Identifier and the dotted
// property path leading to it, e.g. sender.tab.url -> (sender,
// ["tab","url"]). Unlike memberPath (which walks outward from a known
// root), this walks inward from an arbitrary member-expression node, so it
// can resolve the receiver of a method call such as
// sender.tab.url.startsWith(...).
func memberPathFromRoot(n *ast.Node) (*ast.Node, []string) {
	var path []string
	for n != nil {
		switch n.Kind {
		case "Identifier":
			return n, path
		case "MemberExpression":
			if n.Value == "computed" {
				return nil, nil
			}
			prop := n.Field("property")
			if prop == nil {
				return nil, nil
			}
			path = append([]string{prop.Value}, path...)
			n = n.Field("object")
		default:
			return nil, nil
		}
	}
	return nil, nil
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func enclosingFunction(n *ast.Node) *ast.Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if isFunctionNode(cur) {
			return cur
		}
	}
	return nil
}

// callRegisteringFunction returns the CallExpression that passes fn as one
// of its arguments (i.e. fn is a callback registered at that call site), or
// nil if fn isn't a direct call argument.
func callRegisteringFunction(fn *ast.Node) *ast.Node {
	p := fn.Parent
	if p == nil || p.Kind != "CallExpression" {
		return nil
	}
	for _, a := range p.Children("arguments") {
		if a == fn {
			return p
		}
	}
	return nil
}

func enclosingCallbackMatches(returnStmt *ast.Node, rule profile.SinkRule) bool {
	fn := enclosingFunction(returnStmt)
	if fn == nil {
		return false
	}
	call := callRegisteringFunction(fn)
	if call == nil {
		return false
	}
	object, method := profile.SplitCallee(call.Field("callee"))
	if method != rule.Method {
		return false
	}
	return strings.Contains(object, rule.Object) || strings.Contains(object, "onMessage")
}

func matchesSinkCall(rule profile.SinkRule, object, method string, call *ast.Node) bool {
	if rule.Kind == profile.SinkAssign || rule.Kind == profile.SinkReturn {
		return false
	}
	if rule.Method != method {
		return false
	}
	if rule.Object != "" && rule.Object != object {
		return false
	}
	if rule.Kind == profile.SinkStringArg0 {
		args := call.Children("arguments")
		if len(args) == 0 || isFunctionNode(args[0]) {
			return false // the function-literal form isn't the string-building flavor
		}
	}
	return true
}

// calleeDeclOcc resolves a call's callee back to the occurrence where its
// binding was declared, so the detector can trace a to_flow demonstrating
// the call site really does invoke the registered sink (not a shadowed
// same-named local). Returns nil for unresolved/global callees (e.g.
// chrome.storage.local.set, which has no local declaration to trace).
func calleeDeclOcc(n *ast.Node, occByNode map[*ast.Node]*scope.Occurrence) *scope.Occurrence {
	root := memberRootIdentifier(n.Field("callee"))
	if root == nil {
		return nil
	}
	occ := occByNode[root]
	if occ == nil || occ.Binding == nil {
		return nil
	}
	return occByNode[occ.Binding.Node]
}

// paramIndex returns the position of target within params, or -1.
func paramIndex(params []*ast.Node, target *ast.Node) int {
	for i, p := range params {
		if p == target {
			return i
		}
	}
	return -1
}

// responseCallbackSinkCandidate recognizes a call to an onMessage-style
// listener's own sendResponse parameter as a message-response sink by
// position (the third callback parameter), not by the local name the call
// site happens to give it — `(m,s,sendResp) => { ...; sendResp(x) }` is the
// same sink as `(m,s,sendResponse) => { ...; sendResponse(x) }`.
func (d *Detector) responseCallbackSinkCandidate(n *ast.Node, occByNode map[*ast.Node]*scope.Occurrence) *sinkCandidate {
	callee := n.Field("callee")
	if callee == nil || callee.Kind != "Identifier" {
		return nil
	}
	calleeOcc := occByNode[callee]
	if calleeOcc == nil || calleeOcc.Binding == nil || calleeOcc.Binding.Kind != scope.BindParam {
		return nil
	}
	paramNode := calleeOcc.Binding.Node
	fn := paramNode.Parent
	if fn == nil || !isFunctionNode(fn) {
		return nil
	}
	if paramIndex(fn.Children("params"), paramNode) != 2 {
		return nil
	}
	call := callRegisteringFunction(fn)
	if call == nil {
		return nil
	}
	object, method := profile.SplitCallee(call.Field("callee"))
	if method != "addListener" || !strings.Contains(object, "onMessage") {
		return nil
	}
	args := n.Children("arguments")
	if len(args) == 0 {
		return nil
	}
	root := memberRootIdentifier(args[0])
	if root == nil {
		return nil
	}
	occ := occByNode[root]
	if occ == nil {
		return nil
	}
	return &sinkCandidate{occ: occ, cat: catMessageResponse, rendezvous: n, calleeOcc: occByNode[paramNode]}
}

func (d *Detector) callSinkCandidate(n *ast.Node, rule profile.SinkRule, occByNode map[*ast.Node]*scope.Occurrence, fs *scope.FileScope) *sinkCandidate {
	args := n.Children("arguments")
	idx := rule.ArgIndex
	if rule.Kind == profile.SinkStringArg0 {
		idx = 0
	}
	if idx == -1 {
		for _, a := range args {
			if root := memberRootIdentifier(a); root != nil {
				if occ := occByNode[root]; occ != nil {
					return &sinkCandidate{occ: occ, cat: sinkCategory(rule), rendezvous: n, calleeOcc: calleeDeclOcc(n, occByNode)}
				}
			}
		}
		return nil
	}
	if idx < 0 || idx >= len(args) {
		return nil
	}
	root := memberRootIdentifier(args[idx])
	if root == nil {
		return nil
	}
	occ := occByNode[root]
	if occ == nil {
		return nil
	}
	return &sinkCandidate{occ: occ, cat: sinkCategory(rule), rendezvous: n, calleeOcc: calleeDeclOcc(n, occByNode)}
}

func (d *Detector) assignSinkCandidate(n *ast.Node, rule profile.SinkRule, occByNode map[*ast.Node]*scope.Occurrence) *sinkCandidate {
	right := n.Field("right")
	root := memberRootIdentifier(right)
	if root == nil {
		return nil
	}
	occ := occByNode[root]
	if occ == nil {
		return nil
	}
	return &sinkCandidate{occ: occ, cat: sinkCategory(rule), rendezvous: n}
}

func (d *Detector) returnSinkCandidate(n *ast.Node, rule profile.SinkRule, occByNode map[*ast.Node]*scope.Occurrence) *sinkCandidate {
	arg := n.Field("argument")
	if arg == nil {
		return nil
	}
	root := memberRootIdentifier(arg)
	if root == nil {
		return nil
	}
	occ := occByNode[root]
	if occ == nil {
		return nil
	}
	return &sinkCandidate{occ: occ, cat: sinkCategory(rule), rendezvous: n}
}

func (d *Detector) sourceCandidatesFor(n *ast.Node, rule profile.SourceRule, occByNode map[*ast.Node]*scope.Occurrence) []sourceCandidate {
	args := n.Children("arguments")
	object, method := profile.SplitCallee(n.Field("callee"))

	idx := -1
	for _, cb := range d.Tables.Callbacks {
		if cb.Method != method {
			continue
		}
		if cb.Object != "" && cb.Object != object {
			continue
		}
		idx = cb.CallbackIndex
		break
	}
	if idx == -1 {
		for i := len(args) - 1; i >= 0; i-- {
			if isFunctionNode(args[i]) {
				idx = i
				break
			}
		}
	}
	if idx < 0 || idx >= len(args) || !isFunctionNode(args[idx]) {
		return nil
	}

	callback := args[idx]
	params := callback.Children("params")
	taintedIdx := rule.CallbackTaintedParams
	if len(taintedIdx) == 0 {
		taintedIdx = []int{0}
	}
	var out []sourceCandidate
	for _, pi := range taintedIdx {
		if pi < 0 || pi >= len(params) {
			continue
		}
		occ := occByNode[params[pi]]
		if occ == nil {
			continue
		}
		out = append(out, sourceCandidate{occ: occ, cat: sourceCategory(rule)})
	}
	return out
}

// listenerSenderParam walks outward from n through however many nested
// callbacks separate it from the onMessage-style listener (the sink often
// fires from a privileged API's own callback, not the listener body
// directly, per the getAll(query, c => sendResponse(c)) shape), and returns
// the listener's sender parameter node once found.
func listenerSenderParam(n *ast.Node) *ast.Node {
	for fn := enclosingFunction(n); fn != nil; fn = enclosingFunction(fn) {
		call := callRegisteringFunction(fn)
		if call == nil {
			continue
		}
		object, method := profile.SplitCallee(call.Field("callee"))
		if method != "addListener" || !strings.Contains(object, "onMessage") {
			continue
		}
		params := fn.Children("params")
		if len(params) < 2 {
			continue
		}
		return params[1]
	}
	return nil
}

// senderGuarded implements sender-guard gating: the sink call's
// control-dependence ancestors (enclosing IfStatement/WhileStatement/
// ForStatement, or a tighter ConditionalExpression ternary/logical-AND
// wrapping the call directly) are walked looking for a test expression
// referencing the enclosing listener's sender parameter through a path
// (sender.url, sender.tab.url, ...) the guard table recognizes, either as a
// bare property read or as the receiver of a .startsWith(...)/.endsWith(...)
// call.
func (d *Detector) senderGuarded(sk sinkCandidate, g *pdg.Graph, occByNode map[*ast.Node]*scope.Occurrence) bool {
	if sk.cat != catMessageResponse {
		return false
	}
	senderParam := listenerSenderParam(sk.rendezvous)
	if senderParam == nil {
		return false // no sender parameter in scope, nothing to guard with
	}
	senderOcc := occByNode[senderParam]
	if senderOcc == nil {
		return false
	}
	senderBinding := senderOcc.Binding

	found := false
	for _, anc := range g.ControlDepAncestors(sk.rendezvous) {
		var test *ast.Node
		switch anc.Kind {
		case "LogicalExpression":
			test = anc.Field("left")
		default: // IfStatement, WhileStatement, ForStatement, ConditionalExpression
			test = anc.Field("test")
		}
		if test == nil {
			continue
		}
		if d.guardTestMatches(test, senderBinding, occByNode) {
			found = true
		}
	}
	return found
}

// guardTestMatches reports whether test contains either a bare read of
// senderBinding through a path a GuardRule recognizes (sender.url), or a
// call to .startsWith(...)/.endsWith(...) whose receiver is such a path
// (sender.url.startsWith("https://example.com/")).
func (d *Detector) guardTestMatches(test *ast.Node, senderBinding *scope.Binding, occByNode map[*ast.Node]*scope.Occurrence) bool {
	found := false
	ast.Walk(test, func(c *ast.Node) bool {
		switch c.Kind {
		case "Identifier":
			occ := occByNode[c]
			if occ == nil || occ.Binding == nil || occ.Binding != senderBinding {
				return true
			}
			path := memberPath(c)
			for _, gr := range d.Tables.Guards {
				if samePath(path, gr.Path) {
					found = true
				}
			}
		case "CallExpression":
			callee := c.Field("callee")
			if callee == nil || callee.Kind != "MemberExpression" || callee.Value == "computed" {
				return true
			}
			prop := callee.Field("property")
			if prop == nil || (prop.Value != "startsWith" && prop.Value != "endsWith") {
				return true
			}
			root, path := memberPathFromRoot(callee.Field("object"))
			if root == nil {
				return true
			}
			occ := occByNode[root]
			if occ == nil || occ.Binding == nil || occ.Binding != senderBinding {
				return true
			}
			for _, gr := range d.Tables.Guards {
				if samePath(path, gr.Path) {
					found = true
				}
			}
		}
		return true
	})
	return found
}

// unguardedListenersWithoutSource finds every onMessage-style listener
// registration whose callback body never touches a privileged or storage
// source; reported only when
// config.Include31ViolationsWithoutSensitiveAPIAccess opts in. Sender
// guards are not examined: a listener that checks its sender is reported
// the same way as one that does not.
func (d *Detector) unguardedListenersWithoutSource(fs *scope.FileScope, src []byte, sources []sourceCandidate) []report.ListenerRecord {
	taintedNodes := map[*ast.Node]bool{}
	for _, s := range sources {
		if s.cat != catMessage {
			taintedNodes[s.occ.Node] = true
		}
	}

	var out []report.ListenerRecord
	ast.Walk(fs.Root.Node, func(n *ast.Node) bool {
		if n.Kind != "CallExpression" {
			return true
		}
		object, method := profile.SplitCallee(n.Field("callee"))
		if method != "addListener" || !strings.Contains(object, "onMessage") {
			return true
		}
		args := n.Children("arguments")
		if len(args) == 0 || !isFunctionNode(args[0]) {
			return true
		}
		callback := args[0]
		hasPrivileged := false
		ast.Walk(callback, func(c *ast.Node) bool {
			if taintedNodes[c] {
				hasPrivileged = true
			}
			return true
		})
		if !hasPrivileged {
			out = append(out, report.ListenerRecord{
				Location: n.Location(), Filename: fs.File, LineOfCode: ast.LineText(src, n),
			})
		}
		return true
	})
	return out
}
