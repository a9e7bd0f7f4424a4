package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OllamaConfig holds configuration for the local Ollama client, which
// serves both chat completion and embedding roles.
type OllamaConfig struct {
	BaseURL        string // default: http://localhost:11434
	Model          string // default: qwen2.5:7b
	EmbeddingModel string // default: nomic-embed-text
	Dimension      int    // default: 768 (nomic-embed-text)
	Timeout        time.Duration
}

// OllamaClient implements Provider and EmbeddingProvider against a local
// Ollama daemon.
type OllamaClient struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second // local models can be slow
	}
	return &OllamaClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker("ollama"),
		limiter: rate.NewLimiter(rate.Limit(10), 1),
	}
}

// Model returns the configured chat model name.
func (c *OllamaClient) Model() string { return c.cfg.Model }

// Dimension returns the fixed embedding dimensionality.
func (c *OllamaClient) Dimension() int { return c.cfg.Dimension }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]int  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

// Complete sends a chat completion to the Ollama daemon.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*CompletionResponse), nil
}

func (c *OllamaClient) complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := ollamaChatRequest{Model: c.cfg.Model, Stream: false}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.MaxTokens > 0 {
		body.Options = map[string]int{"num_predict": req.MaxTokens}
	}

	respBody, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("ollama: failed to parse response: %w", err)
	}
	return &CompletionResponse{Content: parsed.Message.Content}, nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding via the Ollama embeddings endpoint.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// EmbedBatch embeds texts one at a time; the Ollama API has no batch
// endpoint, so the limiter paces sequential calls.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	respBody, err := c.post(ctx, "/api/embeddings", ollamaEmbedRequest{
		Model:  c.cfg.EmbeddingModel,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("ollama: failed to parse embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: empty embedding returned")
	}
	return parsed.Embedding, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
