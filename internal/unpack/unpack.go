// Package unpack discovers browser-extension roots under a directory tree
// and exposes their files. Finds extension roots via a marker-file walk
// (searching a tree for manifest.json), using github.com/viant/afs's
// Service instead of os.Stat so remote/archive-backed sources work the same
// way local ones do.
package unpack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"

	"github.com/viant/xguard/internal/manifest"
)

const markerFile = "manifest.json"

// Extension is one discovered, unpacked browser extension.
type Extension struct {
	// ID is a stable, path-derived identifier (the directory name holding
	// manifest.json).
	ID       string
	Root     string
	Manifest *manifest.Manifest
	JSFiles  []string // every .js file under Root, sorted
	// SizeBytes is the combined size of JSFiles, gathered for free from the
	// same afs.Walk that discovered them. extension.Pool uses it to order a
	// batch when config.Config.SortBySizeAscending is set.
	SizeBytes int64
}

// Source locates extensions. The default implementation walks a local (or
// afs-addressable) directory tree; tests and callers that already have an
// extension list in memory can supply their own.
type Source interface {
	Discover(ctx context.Context) ([]Extension, error)
}

// DirSource discovers every manifest.json-rooted extension under Root.
type DirSource struct {
	Root string
	fs   afs.Service
}

// NewDirSource builds a DirSource backed by afs's default service for
// directory discovery.
func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root, fs: afs.New()}
}

func (s *DirSource) Discover(ctx context.Context) ([]Extension, error) {
	var manifests []string
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if info.Name() == markerFile {
			manifests = append(manifests, filepath.Join(parent, info.Name()))
		}
		return true, nil
	}
	err := s.fs.Walk(ctx, s.Root, visitor)
	if err != nil {
		return nil, fmt.Errorf("unpack: walk %s: %w", s.Root, err)
	}
	sort.Strings(manifests)

	var out []Extension
	for _, manifestPath := range manifests {
		root := filepath.Dir(manifestPath)
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return nil, err
		}
		js, size, err := s.jsFiles(ctx, root)
		if err != nil {
			return nil, err
		}
		out = append(out, Extension{
			ID:        filepath.Base(root),
			Root:      root,
			Manifest:  m,
			JSFiles:   js,
			SizeBytes: size,
		})
	}
	return out, nil
}

func (s *DirSource) jsFiles(ctx context.Context, root string) ([]string, int64, error) {
	var files []string
	var total int64
	var visitor storage.OnVisit = func(ctx context.Context, baseURL, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		if strings.HasSuffix(info.Name(), ".js") {
			files = append(files, filepath.Join(parent, info.Name()))
			total += info.Size()
		}
		return true, nil
	}
	err := s.fs.Walk(ctx, root, visitor)
	if err != nil {
		return nil, 0, fmt.Errorf("unpack: walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, total, nil
}
