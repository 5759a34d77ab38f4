// Command xguard analyzes every browser extension found under a directory
// tree for the privileged-source-to-message-sink and message-to-DOM/storage
// vulnerability classes described in SPEC_FULL.md, writing one JSON result
// per extension. A thin stdlib-flag driver rather than a CLI framework —
// see DESIGN.md.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viant/xguard/internal/config"
	"github.com/viant/xguard/internal/extension"
	"github.com/viant/xguard/internal/profile"
	"github.com/viant/xguard/internal/unpack"
)

func main() {
	dir := flag.String("dir", "", "directory to scan for unpacked extensions (manifest.json roots)")
	configPath := flag.String("config", "", "path to a YAML config file (optional, layers over defaults)")
	outDir := flag.String("out", "", "directory to write one <extension-id>.json per extension (default: stdout)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "xguard: -dir is required")
		os.Exit(2)
	}

	if err := run(*dir, *configPath, *outDir); err != nil {
		fmt.Fprintln(os.Stderr, "xguard:", err)
		os.Exit(1)
	}
}

func run(dir, configPath, outDir string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	tables := profile.DefaultTables()
	if cfg.ProfileOverridePath != "" {
		merged, err := profile.LoadOverride(cfg.ProfileOverridePath)
		if err != nil {
			return err
		}
		tables = merged
	}

	ctx := context.Background()
	extensions, err := unpack.NewDirSource(dir).Discover(ctx)
	if err != nil {
		return err
	}

	pool := extension.NewPool(cfg, tables)
	results, err := pool.Run(ctx, extensions)
	if err != nil {
		return err
	}

	for _, result := range results {
		data, err := result.MarshalIndent()
		if err != nil {
			return fmt.Errorf("xguard: marshal result for %s: %w", result.Extension, err)
		}
		if outDir == "" {
			fmt.Println(string(data))
			continue
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("xguard: create output dir: %w", err)
		}
		path := filepath.Join(outDir, result.Extension+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("xguard: write %s: %w", path, err)
		}
	}
	return nil
}
