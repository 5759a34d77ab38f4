package extension

import (
	"path/filepath"
	"sort"

	"github.com/viant/xguard/internal/report"
	"github.com/viant/xguard/internal/scope"
	"github.com/viant/xguard/internal/unpack"
)

// backgroundFiles resolves the extension's privileged entry-point scripts
// (MV2 background.scripts or MV3 background.service_worker) to absolute
// paths under ext.Root.
func backgroundFiles(ext unpack.Extension) []string {
	if ext.Manifest == nil {
		return nil
	}
	names := ext.Manifest.Background.Files()
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(ext.Root, n))
	}
	return out
}

// contentScriptFiles resolves every content_scripts[].js entry to an
// absolute path, deduplicated and sorted.
func contentScriptFiles(ext unpack.Extension) []string {
	if ext.Manifest == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, cs := range ext.Manifest.ContentScripts {
		for _, js := range cs.JS {
			abs := filepath.Join(ext.Root, js)
			if !seen[abs] {
				seen[abs] = true
				out = append(out, abs)
			}
		}
	}
	sort.Strings(out)
	return out
}

// contentScriptMatches flattens every content_scripts[].matches glob across
// the manifest, deduplicated and sorted, for the result's
// content_script_injected_into field.
func contentScriptMatches(ext unpack.Extension) []string {
	if ext.Manifest == nil {
		return []string{}
	}
	seen := map[string]bool{}
	out := []string{}
	for _, cs := range ext.Manifest.ContentScripts {
		for _, m := range cs.Matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// collectIdentifierStats records each declaring occurrence's name length
// under its binding kind ("var", "let", "const", "function", "param", ...),
// feeding computeCodeStats.
func collectIdentifierStats(fs *scope.FileScope, lens map[string][]int) {
	if fs == nil {
		return
	}
	for _, occ := range fs.Occurrences {
		if occ.Binding == nil || occ.Node != occ.Binding.Node {
			continue // only count the declaring occurrence, not every use
		}
		lens[occ.Binding.Kind] = append(lens[occ.Binding.Kind], len(occ.Binding.Name))
	}
}

// computeCodeStats reduces per-kind identifier lengths into the
// naming-statistics record, or the -1 sentinel when nothing was declared.
func computeCodeStats(lens map[string][]int) report.CodeStats {
	total, oneChar := 0, 0
	avg := map[string]float64{}
	for kind, ls := range lens {
		sum := 0
		for _, l := range ls {
			sum += l
			total++
			if l == 1 {
				oneChar++
			}
		}
		avg[kind] = float64(sum) / float64(len(ls))
	}
	if total == 0 {
		return report.UnavailableCodeStats()
	}
	return report.CodeStats{
		AverageIdentifierLengthByKind: avg,
		OneCharIdentifierPercentage:   100 * float64(oneChar) / float64(total),
	}
}
