// Package config provides configuration management for Engram. Settings are
// read from an optional YAML file and overridden by environment variables
// with the ENGRAM_ prefix; every option has a sensible default so a bare
// `engramd` starts with an embedded SQLite store and no LLM provider.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Engram engine.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	LLM     LLMConfig     `yaml:"llm"`
	Recall  RecallConfig  `yaml:"recall"`
}

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	// Engine is the backend type: "sqlite" or "postgres".
	Engine string `yaml:"engine"`

	// DSN is the datasource: a file path / :memory: for sqlite, a
	// connection string for postgres.
	DSN string `yaml:"dsn"`
}

// LLMConfig selects the completion and embedding providers.
type LLMConfig struct {
	// Provider is the completion backend: "anthropic", "openai", "ollama",
	// or "" for none (services degrade to deterministic fallbacks).
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// EmbeddingProvider is the embedding backend: "openai" or "ollama".
	// Embeddings are required for all write and recall paths.
	EmbeddingProvider  string `yaml:"embedding_provider"`
	EmbeddingAPIKey    string `yaml:"embedding_api_key"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingBaseURL   string `yaml:"embedding_base_url"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// EmbeddingCacheSize bounds the in-process embedding LRU cache.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`
}

// RecallConfig tunes the recall pipeline.
type RecallConfig struct {
	// ScopeBoost is added to the score of workspace-native results so they
	// outrank global-pool results at equal raw similarity.
	ScopeBoost float64 `yaml:"scope_boost"`

	// DefaultLimit applies when a recall request supplies no limit.
	DefaultLimit int `yaml:"default_limit"`

	// HybridFloor: hybrid mode escalates to the LLM pass when the RAG
	// result count falls below this.
	HybridFloor int `yaml:"hybrid_floor"`

	// HybridEscalateScore: hybrid mode escalates when the top RAG score
	// falls below this secondary threshold.
	HybridEscalateScore float64 `yaml:"hybrid_escalate_score"`
}

// Load reads the YAML file at path (when non-empty), applies environment
// overrides, fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Storage.Engine, "ENGRAM_STORAGE_ENGINE")
	setString(&c.Storage.DSN, "ENGRAM_STORAGE_DSN")

	setString(&c.LLM.Provider, "ENGRAM_LLM_PROVIDER")
	setString(&c.LLM.APIKey, "ENGRAM_LLM_API_KEY")
	setString(&c.LLM.Model, "ENGRAM_LLM_MODEL")
	setString(&c.LLM.BaseURL, "ENGRAM_LLM_BASE_URL")
	setString(&c.LLM.EmbeddingProvider, "ENGRAM_EMBEDDING_PROVIDER")
	setString(&c.LLM.EmbeddingAPIKey, "ENGRAM_EMBEDDING_API_KEY")
	setString(&c.LLM.EmbeddingModel, "ENGRAM_EMBEDDING_MODEL")
	setString(&c.LLM.EmbeddingBaseURL, "ENGRAM_EMBEDDING_BASE_URL")
	setInt(&c.LLM.EmbeddingDimension, "ENGRAM_EMBEDDING_DIMENSION")
	setInt(&c.LLM.EmbeddingCacheSize, "ENGRAM_EMBEDDING_CACHE_SIZE")

	setFloat(&c.Recall.ScopeBoost, "ENGRAM_RECALL_SCOPE_BOOST")
	setInt(&c.Recall.DefaultLimit, "ENGRAM_RECALL_DEFAULT_LIMIT")
	setInt(&c.Recall.HybridFloor, "ENGRAM_RECALL_HYBRID_FLOOR")
	setFloat(&c.Recall.HybridEscalateScore, "ENGRAM_RECALL_HYBRID_ESCALATE_SCORE")
}

func (c *Config) applyDefaults() {
	if c.Storage.Engine == "" {
		c.Storage.Engine = "sqlite"
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "./data/engram.db"
	}
	if c.LLM.EmbeddingProvider == "" {
		c.LLM.EmbeddingProvider = "ollama"
	}
	if c.LLM.EmbeddingCacheSize == 0 {
		c.LLM.EmbeddingCacheSize = 4096
	}
	if c.Recall.ScopeBoost == 0 {
		c.Recall.ScopeBoost = 0.05
	}
	if c.Recall.DefaultLimit == 0 {
		c.Recall.DefaultLimit = 10
	}
	if c.Recall.HybridFloor == 0 {
		c.Recall.HybridFloor = 3
	}
	if c.Recall.HybridEscalateScore == 0 {
		c.Recall.HybridEscalateScore = 0.45
	}
}

// Validate checks for configuration mistakes that would only surface later.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}

	switch c.LLM.Provider {
	case "", "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("config: unsupported LLM provider %q", c.LLM.Provider)
	}

	switch c.LLM.EmbeddingProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("config: unsupported embedding provider %q", c.LLM.EmbeddingProvider)
	}

	if c.Recall.ScopeBoost < 0 || c.Recall.ScopeBoost > 1 {
		return fmt.Errorf("config: scope_boost must be in [0,1], got %v", c.Recall.ScopeBoost)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
