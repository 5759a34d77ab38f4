// Package config defines xguard's run configuration: a plain YAML-tagged
// struct loaded with gopkg.in/yaml.v3, no dedicated config-loading library.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is xguard's run configuration.
type Config struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	Parallelize    bool `yaml:"parallelize"`
	Degree         int  `yaml:"degree,omitempty"`
	// SortBySizeAscending schedules extension.Pool.Run's batch smallest
	// (by combined .js byte size) first, so a worker-limited run surfaces
	// results for the quick extensions before getting stuck behind a large
	// one.
	SortBySizeAscending bool `yaml:"sort_by_size_ascending"`

	// Include31ViolationsWithoutSensitiveAPIAccess controls whether
	// unguarded-listener findings are reported even when the extension
	// never touches a privileged source (opt-in, off by default).
	Include31ViolationsWithoutSensitiveAPIAccess bool `yaml:"include_31_violations_without_sensitive_api_access"`

	SourceType string `yaml:"source_type"` // "script" | "module" | "commonjs"
	Parser     string `yaml:"parser"`      // "treesitter" | "process"
	ParserBin  string `yaml:"parser_bin,omitempty"`

	ProfileOverridePath string `yaml:"profile_override_path,omitempty"`
	MaxFlowDepth        int    `yaml:"max_flow_depth,omitempty"`
}

// Default returns xguard's compiled-in defaults.
func Default() Config {
	return Config{
		TimeoutSeconds: 600,
		Parallelize:    true,
		SortBySizeAscending: false,
		Include31ViolationsWithoutSensitiveAPIAccess: false,
		SourceType: "script",
		Parser:     "treesitter",
		MaxFlowDepth: 0,
	}
}

// ResolveDegree resolves the configured concurrency degree, defaulting to half
// the machine's CPUs (minimum 1).
func (c Config) ResolveDegree() int {
	if c.Degree > 0 {
		return c.Degree
	}
	d := runtime.NumCPU() / 2
	if d < 1 {
		d = 1
	}
	return d
}

// Load reads a YAML config file and layers it over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}
