package extension

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viant/xguard/internal/detector"
	"github.com/viant/xguard/internal/parser"
	"github.com/viant/xguard/internal/pdg"
	"github.com/viant/xguard/internal/report"
	"github.com/viant/xguard/internal/scope"
	"github.com/viant/xguard/internal/unpack"
	"github.com/viant/xguard/internal/xerrors"
)

// Analyze runs one extension to completion (or until its timeout budget
// expires) and returns its result; it never returns an error itself. An
// expired budget sets the role's benchmarks timed_out flag, a recovered
// panic is listed under benchmarks.*.crashes, and a file that fails to
// parse, resolve, build or detect is skipped with no record in the result.
func (p *Pool) Analyze(ctx context.Context, ext unpack.Extension) report.ExtensionResult {
	manifestVersion := 0
	if ext.Manifest != nil {
		manifestVersion = ext.Manifest.ManifestVersion
	}
	result := report.NewExtensionResult(ext.ID, manifestVersion, []byte(ext.Root))
	result.ContentScriptInjectedInto = contentScriptMatches(ext)

	timeout := time.Duration(p.Config.TimeoutSeconds) * time.Second
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		result.BP, result.Benchmarks.BP = p.analyzeRole(gctx, ext.ID, backgroundFiles(ext))
		return nil
	})
	g.Go(func() error {
		result.CS, result.Benchmarks.CS = p.analyzeRole(gctx, ext.ID, contentScriptFiles(ext))
		return nil
	})
	_ = g.Wait()
	return result
}

// analyzeRole analyzes one script role's file list independently (its own
// AST, scope and PDG per file, no state shared with the other role), recovering
// file-level failures so one bad file never sinks the whole role.
func (p *Pool) analyzeRole(ctx context.Context, extID string, files []string) (report.ScriptResult, report.TimingCounters) {
	start := time.Now()
	sr := report.NewScriptResult()
	timing := report.TimingCounters{FileCount: len(files)}
	identLens := map[string][]int{}

	for _, f := range files {
		select {
		case <-ctx.Done():
			timing.TimedOut = true
			timing.DurationMS = time.Since(start).Milliseconds()
			return sr, timing
		default:
		}

		findings, fs, err := p.analyzeFile(ctx, extID, f)
		if err != nil {
			var crash *xerrors.InternalInvariantViolation
			if xerrors.As(err, &crash) {
				timing.Crashes = append(timing.Crashes, crash.Error())
			}
			continue // ParseFailure/ResolveFailure: skip this file, keep going
		}
		mergeFindings(&sr, findings)
		collectIdentifierStats(fs, identLens)
	}

	sr.CodeStats = computeCodeStats(identLens)
	timing.DurationMS = time.Since(start).Milliseconds()
	return sr, timing
}

// analyzeFile runs the full single-file pipeline: parse, resolve scope,
// build the PDG, run the detector. A panic anywhere in this chain is
// recovered and reported as an InternalInvariantViolation rather than
// crashing the whole batch.
func (p *Pool) analyzeFile(ctx context.Context, extID, path string) (findings *detector.FileFindings, fs *scope.FileScope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.NewInternalInvariantViolation(extID, fmt.Sprintf("panic analyzing %s: %v", path, r))
		}
	}()

	root, src, perr := p.Parser.Parse(ctx, path, parser.SourceType(p.Config.SourceType))
	if perr != nil {
		return nil, nil, xerrors.NewParseFailure(path, perr)
	}
	resolved, rerr := (&scope.Resolver{}).Resolve(path, root)
	if rerr != nil {
		return nil, nil, xerrors.NewResolveFailure(path, "", rerr)
	}
	graph, berr := (&pdg.Builder{Callbacks: p.Tables.Callbacks}).Build(resolved)
	if berr != nil {
		return nil, nil, xerrors.NewResolveFailure(path, "", berr)
	}
	d := &detector.Detector{
		Tables:                        p.Tables,
		IncludeUnguardedWithoutSource: p.Config.Include31ViolationsWithoutSensitiveAPIAccess,
		MaxFlowDepth:                  p.Config.MaxFlowDepth,
	}
	findings, derr := d.Detect(path, src, resolved, graph)
	if derr != nil {
		return nil, nil, xerrors.NewResolveFailure(path, "", derr)
	}
	return findings, resolved, nil
}

func mergeFindings(sr *report.ScriptResult, f *detector.FileFindings) {
	if f == nil {
		return
	}
	sr.ExfiltrationDangers = append(sr.ExfiltrationDangers, f.ExfiltrationDangers...)
	sr.InfiltrationDangers = append(sr.InfiltrationDangers, f.InfiltrationDangers...)
	sr.ViolationsWithoutSensitiveAPI = append(sr.ViolationsWithoutSensitiveAPI, f.ViolationsWithoutSensitiveAPI...)
	for k, v := range f.ExtensionStorageAccesses {
		sr.ExtensionStorageAccesses[k] += v
	}
}
