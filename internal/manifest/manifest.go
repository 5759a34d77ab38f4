// Package manifest decodes a browser extension's manifest.json, the
// project-root marker xguard's unpack layer searches a directory tree for. manifest.json is
// a plain JSON document, so stdlib encoding/json is the whole decoder.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is the subset of Chrome's manifest.json schema xguard's
// detector needs: entry points (background script or service worker) and
// content-script injection rules.
type Manifest struct {
	Name            string           `json:"name"`
	Version         string           `json:"version"`
	ManifestVersion int              `json:"manifest_version"`
	Background      *Background      `json:"background,omitempty"`
	ContentScripts  []ContentScript  `json:"content_scripts,omitempty"`
	Permissions     []string         `json:"permissions,omitempty"`
	HostPermissions []string         `json:"host_permissions,omitempty"`
}

// Background names the extension's privileged entry point: MV2 used a
// persistent/event page ("scripts"), MV3 uses a single service worker.
type Background struct {
	Scripts        []string `json:"scripts,omitempty"`
	ServiceWorker  string   `json:"service_worker,omitempty"`
	Page           string   `json:"page,omitempty"`
}

// Files returns every script this background entry loads.
func (b *Background) Files() []string {
	if b == nil {
		return nil
	}
	if b.ServiceWorker != "" {
		return []string{b.ServiceWorker}
	}
	return b.Scripts
}

// ContentScript is one content_scripts[] entry.
type ContentScript struct {
	Matches []string `json:"matches,omitempty"`
	JS      []string `json:"js,omitempty"`
	CSS     []string `json:"css,omitempty"`
}

// Load reads and decodes manifest.json at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", path, err)
	}
	return &m, nil
}
