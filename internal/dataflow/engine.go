// Package dataflow walks a pdg.Graph's lazily-computed data-dependence
// layer to enumerate flows between identifier occurrences, producing the
// numbered hop records xguard reports findings with.
package dataflow

import (
	"github.com/viant/xguard/internal/ast"
	"github.com/viant/xguard/internal/pdg"
	"github.com/viant/xguard/internal/scope"
)

// Direction selects which half of the lazy data-dependence layer a walk
// follows: Forward tracks where a value goes (ChildrenOf, source->sink),
// Backward tracks where a value came from (ParentsOf, sink->source).
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Options configures one Flows call.
type Options struct {
	// MaxDepth, 0 by default, means unbounded (cycle-broken via a per-path
	// visited set). A positive value truncates any path that would exceed
	// it, marking Flow.Truncated instead of silently dropping the tail.
	MaxDepth int
}

// FlowHop is one step of a reported flow.
type FlowHop struct {
	No         int
	Location   string
	Filename   string
	Identifier string
	LineOfCode string
}

// Flow is one source-to-sink (or sink-to-source) path.
type Flow struct {
	Hops      []FlowHop
	Truncated bool
}

// Engine drives a single file's Graph.
type Engine struct {
	Graph *pdg.Graph
	Src   []byte
	File  string
}

// Flows enumerates every path from occ following dir, in deterministic
// node-id order, stopping branches that revisit an occurrence already on
// the current path (cycle breaking) or that exceed opts.MaxDepth.
func (e *Engine) Flows(occ *scope.Occurrence, dir Direction, opts Options) []Flow {
	start := FlowHop{No: 1, Location: occ.Node.Location(), Filename: e.File,
		Identifier: occ.Node.Value, LineOfCode: ast.LineText(e.Src, occ.Node)}

	var out []Flow
	e.walk(occ, dir, opts, []FlowHop{start}, map[*scope.Occurrence]bool{occ: true}, &out)
	if len(out) == 0 {
		out = []Flow{{Hops: []FlowHop{start}}}
	}
	return out
}

func (e *Engine) walk(occ *scope.Occurrence, dir Direction, opts Options, hops []FlowHop, visited map[*scope.Occurrence]bool, out *[]Flow) {
	var next []*scope.Occurrence
	if dir == Forward {
		next = e.Graph.ChildrenOf(occ)
	} else {
		next = e.Graph.ParentsOf(occ)
	}

	if len(next) == 0 {
		*out = append(*out, Flow{Hops: append([]FlowHop{}, hops...)})
		return
	}

	if opts.MaxDepth > 0 && len(hops) >= opts.MaxDepth {
		*out = append(*out, Flow{Hops: append([]FlowHop{}, hops...), Truncated: true})
		return
	}

	branched := false
	for _, n := range orderByNodeID(next) {
		if visited[n] {
			continue
		}
		branched = true
		visited[n] = true
		hop := FlowHop{No: len(hops) + 1, Location: n.Node.Location(), Filename: e.File,
			Identifier: n.Node.Value, LineOfCode: ast.LineText(e.Src, n.Node)}
		e.walk(n, dir, opts, append(hops, hop), visited, out)
		delete(visited, n)
	}
	if !branched {
		*out = append(*out, Flow{Hops: append([]FlowHop{}, hops...)})
	}
}

func orderByNodeID(occs []*scope.Occurrence) []*scope.Occurrence {
	out := append([]*scope.Occurrence{}, occs...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Node.ID < out[j-1].Node.ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
