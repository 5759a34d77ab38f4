// Package detector implements browser-extension vulnerability
// classification: it drives internal/dataflow between every taint source
// and sink occurrence named in an internal/profile.Tables, applies the
// rendezvous rule and sender-guard gating, and emits
// report.DangerRecord/ListenerRecord values. A single driver type walks a
// resolved graph and emits typed findings, the same shape whether the
// underlying checks are Go linkage rules or a chrome-extension taint
// taxonomy.
package detector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/dataflow"
	"github.com/viant/xguard/internal/pdg"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/report"
	"github.com/viant/xguard/internal/scope"
)

// Detector drives one file's Graph against a fixed set of taint tables.
type Detector struct {
	Tables       profile.Tables
	IncludeUnguardedWithoutSource bool
	MaxFlowDepth int
}

// FileFindings is one file's detector output.
type FileFindings struct {
	ExfiltrationDangers           []report.DangerRecord
	InfiltrationDangers           []report.DangerRecord
	ViolationsWithoutSensitiveAPI []report.ListenerRecord
	ExtensionStorageAccesses      map[string]int
}

// category names the taint-table role a matched rule plays, used to decide
// exfiltration/infiltration classification.
type category string

const (
	catPrivileged category = "privileged"
	catStorage    category = "storage"
	catMessage    category = "message"

	catMessageResponse category = "message-response"
	catStorageWrite    category = "storage-write"
	catDOM             category = "dom"
)

func sourceCategory(r profile.SourceRule) category {
	if strings.HasPrefix(r.Object, "chrome.storage.") {
		return catStorage
	}
	switch r.Object {
	case "chrome.runtime.onMessage", "chrome.runtime.onMessageExternal", "port.onMessage", "window":
		return catMessage
	}
	return catPrivileged
}

func sinkCategory(r profile.SinkRule) category {
	if strings.HasPrefix(r.Object, "chrome.storage.") && r.Method == "set" {
		return catStorageWrite
	}
	switch {
	case r.Method == "sendResponse", r.Kind == profile.SinkReturn,
		r.Object == "port" && r.Method == "postMessage",
		r.Object == "chrome.tabs" && r.Method == "sendMessage",
		r.Object == "chrome.runtime" && r.Method == "sendMessage":
		return catMessageResponse
	}
	return catDOM
}

// bucket is which report list a classified pair lands in; "" means the
// source/sink category pairing isn't a recognized vulnerability shape, so
// the pair is not reported.
func bucket(src, sink category) string {
	switch {
	case src == catPrivileged && sink == catMessageResponse:
		return "exfiltration" // privileged API leaked back through a message response
	case src == catStorage && sink == catMessageResponse:
		return "exfiltration" // stored data leaked back through a message response
	case src == catMessage && sink == catDOM:
		return "infiltration" // attacker-controlled message written into the DOM (UXSS)
	case src == catMessage && sink == catStorageWrite:
		return "infiltration" // attacker-controlled message persisted to storage
	case src == catStorage && sink == catDOM:
		return "infiltration" // persisted (possibly poisoned) data written into the DOM
	default:
		return ""
	}
}

// sourceCandidate is one occurrence whose value is tainted at its origin.
type sourceCandidate struct {
	occ *scope.Occurrence
	cat category
}

// sinkCandidate is one occurrence whose value reaches a dangerous sink,
// plus the node that stands in for the "rendezvous" in the output record.
type sinkCandidate struct {
	occ        *scope.Occurrence
	cat        category
	rendezvous *ast.Node
	calleeOcc  *scope.Occurrence // non-nil when the sink call's callee resolves to a local binding
}

// Detect runs the full source -> sink sweep for one file.
func (d *Detector) Detect(file string, src []byte, fs *scope.FileScope, g *pdg.Graph) (*FileFindings, error) {
	if fs == nil || fs.Root == nil || fs.Root.Node == nil {
		return nil, fmt.Errorf("detector: %s: empty file scope", file)
	}
	occByNode := map[*ast.Node]*scope.Occurrence{}
	for _, occ := range fs.Occurrences {
		occByNode[occ.Node] = occ
	}

	storageAccesses := map[string]int{}
	var sources []sourceCandidate
	var sinks []sinkCandidate

	ast.Walk(fs.Root.Node, func(n *ast.Node) bool {
		switch n.Kind {
		case "CallExpression":
			object, method := profile.SplitCallee(n.Field("callee"))
			if strings.HasPrefix(object, "chrome.storage.") {
				storageAccesses[strings.TrimPrefix(object, "chrome.storage.")]++
			}
			for _, rule := range d.Tables.Sources {
				if !rule.Matches(object, method) {
					continue
				}
				sources = append(sources, d.sourceCandidatesFor(n, rule, occByNode)...)
			}
			for _, rule := range d.Tables.Sinks {
				if rule.Kind == profile.SinkAssign {
					continue
				}
				if !matchesSinkCall(rule, object, method, n) {
					continue
				}
				if sc := d.callSinkCandidate(n, rule, occByNode, fs); sc != nil {
					sinks = append(sinks, *sc)
				}
			}
			if sc := d.responseCallbackSinkCandidate(n, occByNode); sc != nil {
				sinks = append(sinks, *sc)
			}
		case "AssignmentExpression":
			left := n.Field("left")
			if left == nil || left.Kind != "MemberExpression" || left.Value == "computed" {
				break
			}
			prop := left.Field("property")
			if prop == nil {
				break
			}
			for _, rule := range d.Tables.Sinks {
				if rule.Kind != profile.SinkAssign || rule.Property != prop.Value {
					continue
				}
				if sc := d.assignSinkCandidate(n, rule, occByNode); sc != nil {
					sinks = append(sinks, *sc)
				}
			}
		case "ReturnStatement":
			for _, rule := range d.Tables.Sinks {
				if rule.Kind != profile.SinkReturn {
					continue
				}
				if !enclosingCallbackMatches(n, rule) {
					continue
				}
				if sc := d.returnSinkCandidate(n, rule, occByNode); sc != nil {
					sinks = append(sinks, *sc)
				}
			}
		}
		return true
	})

	engine := &dataflow.Engine{Graph: g, Src: src, File: file}
	opts := dataflow.Options{MaxDepth: d.MaxFlowDepth}

	var pairs []pairResult
	for _, src := range sources {
		flows := engine.Flows(src.occ, dataflow.Forward, opts)
		for _, sk := range sinks {
			b := bucket(src.cat, sk.cat)
			if b == "" {
				continue
			}
			flow, ok := reaches(flows, sk.occ.Node)
			if !ok {
				continue
			}
			if d.senderGuarded(sk, g, occByNode) {
				continue
			}
			pairs = append(pairs, pairResult{
				bucket: b,
				record: d.buildDangerRecord(engine, flow, sk, opts),
				sortKey: [2]int{sk.occ.Node.ID, src.occ.Node.ID},
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].sortKey[0] != pairs[j].sortKey[0] {
			return pairs[i].sortKey[0] < pairs[j].sortKey[0]
		}
		return pairs[i].sortKey[1] < pairs[j].sortKey[1]
	})

	findings := &FileFindings{ExtensionStorageAccesses: storageAccesses}
	total := len(pairs)
	for i, p := range pairs {
		p.record.DataFlowNumber = fmt.Sprintf("%d/%d", i+1, total)
		switch p.bucket {
		case "exfiltration":
			findings.ExfiltrationDangers = append(findings.ExfiltrationDangers, p.record)
		case "infiltration":
			findings.InfiltrationDangers = append(findings.InfiltrationDangers, p.record)
		}
	}

	if d.IncludeUnguardedWithoutSource {
		findings.ViolationsWithoutSensitiveAPI = d.unguardedListenersWithoutSource(fs, src, sources)
	}
	return findings, nil
}

type pairResult struct {
	bucket  string
	record  report.DangerRecord
	sortKey [2]int
}

// reaches reports whether any flow's last hop is occurrence target, and
// returns that flow.
func reaches(flows []dataflow.Flow, target *ast.Node) (dataflow.Flow, bool) {
	for _, f := range flows {
		if len(f.Hops) == 0 {
			continue
		}
		if f.Hops[len(f.Hops)-1].Location == target.Location() && f.Hops[len(f.Hops)-1].Identifier == target.Value {
			return f, true
		}
	}
	return dataflow.Flow{}, false
}

func (d *Detector) buildDangerRecord(engine *dataflow.Engine, fromFlow dataflow.Flow, sk sinkCandidate, opts dataflow.Options) report.DangerRecord {
	toFlow := []dataflow.FlowHop{{
		No: 1, Location: sk.rendezvous.Location(), Filename: engine.File,
		Identifier: sk.rendezvous.Value, LineOfCode: ast.LineText(engine.Src, sk.rendezvous),
	}}
	if sk.calleeOcc != nil {
		if flows := engine.Flows(sk.calleeOcc, dataflow.Forward, opts); len(flows) > 0 {
			if f, ok := reaches(flows, sk.occ.Node.Parent); ok {
				toFlow = f.Hops
			} else {
				toFlow = flows[0].Hops
			}
		}
	}
	return report.DangerRecord{
		FromFlow: report.FromHops(fromFlow.Hops),
		ToFlow:   report.FromHops(toFlow),
		Rendezvous: report.RendezvousRecord{
			NodeType:   sk.rendezvous.Kind,
			Range:      sk.rendezvous.Range,
			File:       engine.File,
			LineOfCode: ast.LineText(engine.Src, sk.rendezvous),
		},
	}
}
