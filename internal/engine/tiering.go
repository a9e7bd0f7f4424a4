package engine

import (
	"context"
	"fmt"

	"github.com/engramdev/engram/internal/llm"
)

const (
	abstractMaxChars = 100
	overviewMaxChars = 500
	tierMaxTokens    = 500

	summarizerRole = "You are a summarization assistant. Respond with the summary text only, no preamble."
)

// TieringService generates the abstract and overview tiers for memory
// content. Provider failures fall back to deterministic truncation so the
// write path never blocks on a model outage.
type TieringService struct {
	provider llm.Provider
}

// NewTieringService creates a tiering service. A nil provider is valid;
// generation then always uses truncation.
func NewTieringService(provider llm.Provider) *TieringService {
	return &TieringService{provider: provider}
}

// GenerateAbstract produces a one-line abstract of the content, at most
// about 100 characters.
func (s *TieringService) GenerateAbstract(ctx context.Context, content string) string {
	prompt := fmt.Sprintf("Summarize the following in one short sentence of at most %d characters:\n\n%s", abstractMaxChars, content)
	return s.summarize(ctx, prompt, content, abstractMaxChars)
}

// GenerateOverview produces a short-paragraph overview of the content, at
// most about 500 characters.
func (s *TieringService) GenerateOverview(ctx context.Context, content string) string {
	prompt := fmt.Sprintf("Summarize the following in a short paragraph of at most %d characters:\n\n%s", overviewMaxChars, content)
	return s.summarize(ctx, prompt, content, overviewMaxChars)
}

// GenerateTiers produces both tiers with two independent provider calls.
// Both values are returned even when short content makes them equal.
func (s *TieringService) GenerateTiers(ctx context.Context, content string) (abstract, overview string) {
	return s.GenerateAbstract(ctx, content), s.GenerateOverview(ctx, content)
}

func (s *TieringService) summarize(ctx context.Context, prompt, content string, maxChars int) string {
	if s.provider == nil {
		return truncate(content, maxChars)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: summarizerRole},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens: tierMaxTokens,
	})
	if err != nil || resp.Content == "" {
		return truncate(content, maxChars)
	}
	return resp.Content
}

// truncate cuts content at maxChars runes with an ellipsis marker. Content
// at or under the limit is returned unchanged.
func truncate(content string, maxChars int) string {
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	return string(runes[:maxChars]) + "…"
}
