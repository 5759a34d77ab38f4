package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/viant/xguard/internal/ast"
)

// ProcessParser invokes an external JS→AST converter process: the binary
// is run as
//
//	<bin> <source_path> <output_json_path> <source_type>
//
// and is expected to write an ESTree-compatible JSON document to
// output_json_path, exiting 0 on success or non-zero (with a diagnostic on
// stderr) on failure.
type ProcessParser struct {
	// Bin is the converter executable path.
	Bin string
	// WorkDir, if set, is used to stage the per-call output JSON file;
	// defaults to os.TempDir().
	WorkDir string
}

func (p *ProcessParser) Parse(ctx context.Context, path string, sourceType SourceType) (*ast.Node, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parser: read source %s: %w", path, err)
	}

	outFile, err := os.CreateTemp(p.WorkDir, "xguard-ast-*.json")
	if err != nil {
		return nil, nil, fmt.Errorf("parser: create output file: %w", err)
	}
	outPath := outFile.Name()
	_ = outFile.Close()
	defer os.Remove(outPath)

	cmd := exec.CommandContext(ctx, p.Bin, path, outPath, string(sourceType))
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("parser: attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("parser: start converter: %w", err)
	}
	diagCh := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(stderr)
		diagCh <- string(b)
	}()
	waitErr := cmd.Wait()
	diag := <-diagCh
	if waitErr != nil {
		return nil, nil, fmt.Errorf("parser: converter failed for %s: %w (%s)", path, waitErr, diag)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, nil, fmt.Errorf("parser: read converter output: %w", err)
	}
	root, err := ast.FromESTreeJSON(out, path)
	if err != nil {
		return nil, nil, fmt.Errorf("parser: decode converter output for %s: %w", path, err)
	}
	return root, src, nil
}
