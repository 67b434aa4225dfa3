package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imago.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8491, cfg.Server.Port)
	assert.Equal(t, 128, cfg.ML.BatchSize)
	assert.Equal(t, 64, cfg.Vector.UpsertBatchSize)
	assert.Equal(t, int64(100*1024*1024), cfg.Pipeline.MaxFileSize)
	assert.Equal(t, "Cosine", cfg.Vector.Distance)
}

func TestLoadFromFiles_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[ml]
base_url = "http://ml.internal:8001"
timeout = "120s"
batch_size = 32

[vector]
host = "qdrant.internal"
vector_size = 768
`)

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://ml.internal:8001", cfg.ML.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.ML.Timeout)
	assert.Equal(t, 32, cfg.ML.BatchSize)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Host)
	assert.Equal(t, 768, cfg.Vector.VectorSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, 4, cfg.Pipeline.CPUWorkers)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	first := writeConfig(t, "[server]\nport = 9000\n")
	second := writeConfig(t, "[server]\nport = 9001\n")

	cfg, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/does/not/exist.toml")
	assert.Error(t, err)
}

func TestLoadFromFiles_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `
[vector]
distance = "Manhattan"
`)
	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IMAGO_PORT", "9100")
	t.Setenv("IMAGO_ML_URL", "http://env-ml:8001")
	t.Setenv("IMAGO_ML_BATCH_SIZE", "16")
	t.Setenv("IMAGO_QDRANT_HOST", "env-qdrant")
	t.Setenv("IMAGO_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://env-ml:8001", cfg.ML.BaseURL)
	assert.Equal(t, 16, cfg.ML.BatchSize)
	assert.Equal(t, "env-qdrant", cfg.Vector.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestVectorBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:6333", cfg.VectorBaseURL())
}
