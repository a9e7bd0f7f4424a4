// Package llm defines the capability contracts for language-model and
// embedding providers consumed by the Engram services. Providers are
// selected once at startup via the factory and injected as explicit
// dependencies; absence of a configured completion provider is a valid,
// detectable state that services degrade around rather than crash on.
package llm

import (
	"context"
	"errors"
)

// ErrNoProvider indicates that no completion provider is configured.
// Services with a deterministic fallback (tiering, ontology) degrade
// gracefully; callers without one surface this to the client.
var ErrNoProvider = errors.New("llm: no provider configured")

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat completion call.
type CompletionRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// CompletionResponse carries the model's text output.
type CompletionResponse struct {
	Content string `json:"content"`
}

// Provider is the completion contract implemented by concrete LLM backends.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// EmbeddingProvider generates fixed-dimension vector embeddings. Failures
// surface as errors, never as silently zero-filled vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}
