package llm

import (
	"fmt"

	"github.com/engramdev/engram/internal/config"
)

// NewProvider creates the completion provider named by the configuration.
// An empty provider name is valid and returns (nil, nil): services treat a
// nil Provider as the detectable no-provider state and degrade to their
// deterministic fallbacks.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", cfg.Provider)
	}
}

// NewEmbedder creates the embedding provider named by the configuration,
// wrapped in the LRU cache. Unlike completion, an embedding provider is
// mandatory: write and recall paths cannot proceed without vectors.
func NewEmbedder(cfg config.LLMConfig) (EmbeddingProvider, error) {
	var inner EmbeddingProvider
	switch cfg.EmbeddingProvider {
	case "openai":
		inner = NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:    cfg.EmbeddingAPIKey,
			Model:     cfg.EmbeddingModel,
			BaseURL:   cfg.EmbeddingBaseURL,
			Dimension: cfg.EmbeddingDimension,
		})
	case "ollama":
		inner = NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.EmbeddingBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			Dimension:      cfg.EmbeddingDimension,
		})
	default:
		return nil, fmt.Errorf("llm: unsupported embedding provider %q", cfg.EmbeddingProvider)
	}
	return NewCachedEmbedder(inner, cfg.EmbeddingCacheSize)
}
