package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
logger:
  verbosity: debug
compute:
  backend: naive
  tileWidth: 64
  deviceMemoryBytes: 1073741824
metrics:
  listenAddress: ":9090"
bench:
  rows: 60000
  cols: 1000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Verbosity)
	assert.Equal(t, "naive", cfg.Compute.Backend)
	assert.Equal(t, 64, cfg.Compute.TileWidth)
	assert.Equal(t, int64(1<<30), cfg.Compute.DeviceMemoryBytes)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddress)
	assert.Equal(t, 60000, cfg.Bench.Rows)
	assert.Equal(t, 1000, cfg.Bench.Cols)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  verbosity: warn\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logger.Verbosity)
	assert.Equal(t, "tiled", cfg.Compute.Backend)
	assert.Equal(t, 32, cfg.Compute.TileWidth)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.Logger.Verbosity)
	assert.Equal(t, "tiled", cfg.Compute.Backend)
	assert.Equal(t, 32, cfg.Compute.TileWidth)
}
