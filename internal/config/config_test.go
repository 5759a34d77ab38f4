package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_LayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout_seconds: 30\nparser: process\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, "process", cfg.Parser)
	assert.True(t, cfg.Parallelize, "unset fields keep the default")
}

func TestResolveDegree_DefaultsToHalfCPUsMinimumOne(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.ResolveDegree(), 1)

	cfg.Degree = 4
	assert.Equal(t, 4, cfg.ResolveDegree())
}
