package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydb/quarry/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/quarry", cfg.Storage.DataDir)
	assert.Equal(t, "/var/lib/quarry/tables", cfg.Storage.TableDir)
	assert.Equal(t, 1024, cfg.Storage.MaxOpenFiles)
	assert.Equal(t, 7, cfg.Storage.NumLevels)
	assert.Equal(t, 8, cfg.Storage.ScanWorkers)
	assert.Equal(t, 10, cfg.Bloom.BitsPerKey)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /data/quarry
  max_open_files: 256
  num_levels: 5
bloom:
  bits_per_key: 14
logging:
  level: debug
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/quarry", cfg.Storage.DataDir)
	assert.Equal(t, "/data/quarry/tables", cfg.Storage.TableDir)
	assert.Equal(t, 256, cfg.Storage.MaxOpenFiles)
	assert.Equal(t, 5, cfg.Storage.NumLevels)
	assert.Equal(t, 14, cfg.Bloom.BitsPerKey)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unspecified fields fall back to defaults.
	assert.Equal(t, 8, cfg.Storage.ScanWorkers)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "storage: [not a map]"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "logging:\n  level: loud\n"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "metrics:\n  port: 99999\n"))
	assert.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "storage:\n  max_open_files: -1\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.NumLevels = 0
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Bloom.BitsPerKey = -1
	assert.Error(t, cfg.Validate())
}
