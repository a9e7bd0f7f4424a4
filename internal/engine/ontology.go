package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/pkg/types"
)

// OntologyService classifies the relationship between two pieces of content
// against the closed relationship vocabulary, using an LLM provider when one
// is configured.
type OntologyService struct {
	provider llm.Provider
}

// NewOntologyService creates an ontology service. A nil provider is valid;
// classification then always returns the default relation.
func NewOntologyService(provider llm.Provider) *OntologyService {
	return &OntologyService{provider: provider}
}

const classifyPrompt = `You classify the relationship between two statements.
Respond with exactly one relationship type from this list, nothing else:

%s

Statement A: %s
Statement B: %s

Relationship:`

// Classify determines how content A relates to content B. Provider failures
// and unrecognized responses degrade to the default relation rather than
// erroring; the association is still useful with a weaker label.
func (s *OntologyService) Classify(ctx context.Context, contentA, contentB string) (string, error) {
	if s.provider == nil {
		return types.RelationDefault, nil
	}

	prompt := fmt.Sprintf(classifyPrompt,
		strings.Join(types.AllRelationships(), ", "), contentA, contentB)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: 20,
	})
	if err != nil {
		return types.RelationDefault, nil
	}

	return ResolveRelationship(resp.Content), nil
}

// ResolveRelationship maps raw model output onto the vocabulary. Exact
// matches win; otherwise the response is treated as a possibly truncated
// prefix, accepted only when it completes to exactly one known type.
// Anything else resolves to the default relation.
func ResolveRelationship(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.TrimSuffix(normalized, ".")
	normalized = strings.Trim(normalized, `"'`)
	normalized = strings.TrimSuffix(normalized, ".")
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	if normalized == "" {
		return types.RelationDefault
	}

	if types.IsKnownRelationship(normalized) {
		return normalized
	}

	var candidate string
	for _, rel := range types.AllRelationships() {
		if len(normalized) < len(rel) && strings.HasPrefix(rel, normalized) {
			if candidate != "" {
				return types.RelationDefault
			}
			candidate = rel
		}
	}
	if candidate != "" {
		return candidate
	}
	return types.RelationDefault
}
