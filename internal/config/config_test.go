package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data/engram.db", cfg.Storage.DSN)
	assert.Equal(t, "", cfg.LLM.Provider)
	assert.Equal(t, "ollama", cfg.LLM.EmbeddingProvider)
	assert.Equal(t, 4096, cfg.LLM.EmbeddingCacheSize)
	assert.Equal(t, 0.05, cfg.Recall.ScopeBoost)
	assert.Equal(t, 10, cfg.Recall.DefaultLimit)
	assert.Equal(t, 3, cfg.Recall.HybridFloor)
	assert.Equal(t, 0.45, cfg.Recall.HybridEscalateScore)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	data := `
storage:
  engine: postgres
  dsn: postgres://localhost/engram?sslmode=disable
llm:
  provider: anthropic
  api_key: test-key
  embedding_provider: openai
recall:
  scope_boost: 0.1
  default_limit: 25
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "openai", cfg.LLM.EmbeddingProvider)
	assert.Equal(t, 0.1, cfg.Recall.ScopeBoost)
	assert.Equal(t, 25, cfg.Recall.DefaultLimit)
	// Unspecified options still get defaults.
	assert.Equal(t, 3, cfg.Recall.HybridFloor)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  engine: sqlite\n"), 0o644))

	t.Setenv("ENGRAM_STORAGE_ENGINE", "postgres")
	t.Setenv("ENGRAM_STORAGE_DSN", "postgres://env/engram")
	t.Setenv("ENGRAM_RECALL_DEFAULT_LIMIT", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://env/engram", cfg.Storage.DSN)
	assert.Equal(t, 42, cfg.Recall.DefaultLimit)
}

func TestValidateRejectsUnknownEngines(t *testing.T) {
	t.Setenv("ENGRAM_STORAGE_ENGINE", "cassandra")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsUnknownProviders(t *testing.T) {
	t.Setenv("ENGRAM_LLM_PROVIDER", "mystery")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("ENGRAM_LLM_PROVIDER", "")
	t.Setenv("ENGRAM_EMBEDDING_PROVIDER", "mystery")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangeBoost(t *testing.T) {
	t.Setenv("ENGRAM_RECALL_SCOPE_BOOST", "1.5")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/engram.yaml")
	assert.Error(t, err)
}
