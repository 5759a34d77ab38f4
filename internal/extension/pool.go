// Package extension orchestrates analysis across a batch of discovered
// browser extensions: an outer worker pool bounded at half the machine's
// CPUs, and, within one extension, a second small pool running the
// background script and content scripts in parallel over independent
// per-file graphs so no locking is needed. Built on golang.org/x/sync/
// errgroup for bounded fan-out at both levels.
package extension

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/viant/xguard/internal/config"
	"github.com/viant/xguard/internal/parser"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/report"
	"github.com/viant/xguard/internal/unpack"
)

// Pool drives a batch of extensions concurrently.
type Pool struct {
	Parser parser.Parser
	Tables profile.Tables
	Config config.Config
}

// NewPool builds a Pool whose Parser is selected from cfg.Parser ("process"
// picks ProcessParser wired to cfg.ParserBin, anything else defaults to the
// in-process TreeSitterParser).
func NewPool(cfg config.Config, tables profile.Tables) *Pool {
	var p parser.Parser
	if cfg.Parser == "process" {
		p = &parser.ProcessParser{Bin: cfg.ParserBin}
	} else {
		p = &parser.TreeSitterParser{}
	}
	return &Pool{Parser: p, Tables: tables, Config: cfg}
}

// Run analyzes every extension, writing each result to the slot matching
// its (possibly reordered, see below) input index so no ordering
// synchronization is needed beyond the index assignment itself. A single
// extension's analysis failure never aborts the batch: recovery granularity
// is per-extension — Pool.Analyze always returns a result, recording
// crashes/timeouts inside it.
//
// When Config.SortBySizeAscending is set, the batch is scheduled smallest
// extension first (by unpack.Extension.SizeBytes), so a degree-limited run
// finishes its quick extensions instead of queuing them all behind whatever
// large extension happened to sort first in the input.
func (p *Pool) Run(ctx context.Context, extensions []unpack.Extension) ([]report.ExtensionResult, error) {
	degree := 1
	if p.Config.Parallelize {
		degree = p.Config.ResolveDegree()
	}

	if p.Config.SortBySizeAscending {
		extensions = append([]unpack.Extension{}, extensions...)
		sort.SliceStable(extensions, func(i, j int) bool {
			return extensions[i].SizeBytes < extensions[j].SizeBytes
		})
	}

	results := make([]report.ExtensionResult, len(extensions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(degree)
	for i, ext := range extensions {
		i, ext := i, ext
		g.Go(func() error {
			results[i] = p.Analyze(gctx, ext)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
