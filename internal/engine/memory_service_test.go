package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/pkg/types"
)

func testRecallConfig() config.RecallConfig {
	return config.RecallConfig{
		ScopeBoost:          0.05,
		DefaultLimit:        10,
		HybridFloor:         3,
		HybridEscalateScore: 0.45,
	}
}

// newTestService wires a memory service over an in-memory backend with
// enrichment off, so tests observe only the operation under test.
func newTestService(t *testing.T, embedder llm.EmbeddingProvider, provider llm.Provider) *MemoryService {
	t.Helper()
	svc := NewMemoryService(newTestBackend(t), embedder, provider, testRecallConfig())
	svc.Enrich = false
	return svc
}

func TestRememberCreatesMemory(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	mem, err := svc.Remember(ctx, "ws-1", RememberInput{
		Content: "standup is at 9:30",
		Type:    types.TypeEpisodic,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, mem.ID)
	assert.Equal(t, types.StatusActive, mem.Status)
	assert.Equal(t, types.TypeEpisodic, mem.Type)
	assert.NotEmpty(t, mem.ContentHash)
	assert.Len(t, mem.Embedding, 2)
}

func TestRememberSkipsExactDuplicate(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	first, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "the repo uses trunk-based development"})
	require.NoError(t, err)

	// Same content modulo whitespace: no new record.
	second, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "the repo  uses trunk-based  development"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestRememberMergesNearDuplicate(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"deploys happen on fridays": {1, 0, 0},
			"deployments run fridays":   {0.999, 0.01, 0},
		},
		fallback: []float32{0, 0, 1},
	}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	first, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "deploys happen on fridays"})
	require.NoError(t, err)

	merged, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "deployments run fridays"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, "deployments run fridays", merged.Content)
}

func TestRememberRejectsEmptyContent(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{fallback: []float32{1}}, nil)

	_, err := svc.Remember(context.Background(), "ws-1", RememberInput{Content: "  "})
	assert.Error(t, err)
}

func TestRecallRequiresEmbedder(t *testing.T) {
	svc := newTestService(t, nil, nil)

	_, err := svc.Recall(context.Background(), "ws-1", RecallInput{Query: "anything"})
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestRecallScopeBoost(t *testing.T) {
	// The same vector lives in both the caller's workspace and _global; the
	// native copy must rank first with exactly the boost separating them.
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	_, err := svc.Remember(ctx, types.GlobalWorkspaceID, RememberInput{Content: "shared convention"})
	require.NoError(t, err)
	native, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "workspace convention"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "convention"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	assert.Equal(t, native.ID, result.Memories[0].Memory.ID)
	assert.Equal(t, types.GlobalWorkspaceID, result.Memories[1].Memory.WorkspaceID)
	assert.InDelta(t, 0.05, result.Memories[0].Score-result.Memories[1].Score, 1e-6)
}

func TestRecallExcludeGlobal(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	_, err := svc.Remember(ctx, types.GlobalWorkspaceID, RememberInput{Content: "global fact"})
	require.NoError(t, err)
	_, err = svc.Remember(ctx, "ws-1", RememberInput{Content: "local fact"})
	require.NoError(t, err)

	off := false
	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "fact", IncludeGlobal: &off})
	require.NoError(t, err)

	require.Equal(t, 1, result.Count)
	assert.Equal(t, "ws-1", result.Memories[0].Memory.WorkspaceID)
}

func TestRecallGlobalWorkspaceNotDoubled(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	_, err := svc.Remember(ctx, types.GlobalWorkspaceID, RememberInput{Content: "singleton fact"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, types.GlobalWorkspaceID, RecallInput{Query: "fact"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestRecallMinRelevanceAppliedAfterBoost(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"query":       {1, 0},
			"strong hit":  {1, 0},
			"weak signal": {0.5, 0.87},
		},
		fallback: []float32{0, 1},
	}
	svc := newTestService(t, embedder, nil)
	ctx := context.Background()

	_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "strong hit"})
	require.NoError(t, err)
	_, err = svc.Remember(ctx, "ws-1", RememberInput{Content: "weak signal"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "query", MinRelevance: 0.9})
	require.NoError(t, err)

	require.Equal(t, 1, result.Count)
	assert.Equal(t, "strong hit", result.Memories[0].Memory.Content)
}

func TestRecallTouchesAccessCounts(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	backend := newTestBackend(t)
	svc := NewMemoryService(backend, embedder, nil, testRecallConfig())
	svc.Enrich = false
	ctx := context.Background()

	mem, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "tracked"})
	require.NoError(t, err)
	global, err := svc.Remember(ctx, types.GlobalWorkspaceID, RememberInput{Content: "shared fact"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "tracked"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	got, err := backend.GetMemory(ctx, "ws-1", mem.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.NotNil(t, got.LastAccessedAt)

	// Global-pool hits are touched under _global, not the caller's workspace.
	got, err = backend.GetMemory(ctx, types.GlobalWorkspaceID, global.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.NotNil(t, got.LastAccessedAt)
}

func TestRecallLLMModeFilters(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	provider := &fakeProvider{reply: "2"}
	svc := newTestService(t, embedder, provider)
	ctx := context.Background()

	_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "first memory"})
	require.NoError(t, err)
	_, err = svc.Remember(ctx, "ws-1", RememberInput{Content: "second memory"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "memory", Mode: ModeLLM})
	require.NoError(t, err)

	require.Equal(t, 1, result.Count)
	assert.Equal(t, 1, provider.calls)
}

func TestRecallLLMModeToleratesBadOutput(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, &fakeProvider{reply: "sure, happy to help!"})
	ctx := context.Background()

	_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "resilient"})
	require.NoError(t, err)

	// Unparseable judgment keeps the RAG candidates untouched.
	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "resilient", Mode: ModeLLM})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestRecallHybridEscalatesOnThinResults(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	provider := &fakeProvider{reply: "1"}
	svc := newTestService(t, embedder, provider)
	ctx := context.Background()

	// One hit is below the floor of three, so hybrid escalates.
	_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "lonely memory"})
	require.NoError(t, err)

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "memory", Mode: ModeHybrid})
	require.NoError(t, err)

	assert.True(t, result.Escalated)
	assert.Equal(t, 1, provider.calls)
}

func TestRecallHybridSkipsEscalationWhenStrong(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	provider := &fakeProvider{reply: "1,2,3"}
	svc := newTestService(t, embedder, provider)
	ctx := context.Background()

	for _, content := range []string{"alpha note", "beta note", "gamma note"} {
		_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: content})
		require.NoError(t, err)
	}

	result, err := svc.Recall(ctx, "ws-1", RecallInput{Query: "note", Mode: ModeHybrid})
	require.NoError(t, err)

	assert.False(t, result.Escalated)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 3, result.Count)
}

func TestReflectRequiresProvider(t *testing.T) {
	svc := newTestService(t, &fakeEmbedder{fallback: []float32{1, 0}}, nil)

	_, err := svc.Reflect(context.Background(), "ws-1", "what do we know?", 200)
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestReflectSynthesizes(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	provider := &fakeProvider{reply: "The team deploys on Fridays and prefers tabs."}
	svc := newTestService(t, embedder, provider)
	ctx := context.Background()

	mem, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "deploys on fridays"})
	require.NoError(t, err)

	result, err := svc.Reflect(ctx, "ws-1", "what are the team habits?", 200)
	require.NoError(t, err)

	assert.Equal(t, "The team deploys on Fridays and prefers tabs.", result.Reflection)
	assert.Contains(t, result.SourceIDs, mem.ID)
}

func TestReflectSurfacesProviderFailure(t *testing.T) {
	embedder := &fakeEmbedder{fallback: []float32{1, 0}}
	svc := newTestService(t, embedder, &fakeProvider{err: errors.New("model offline")})
	ctx := context.Background()

	_, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "something"})
	require.NoError(t, err)

	_, err = svc.Reflect(ctx, "ws-1", "question", 100)
	assert.Error(t, err)
}

func TestEnrichmentGeneratesTiersAndAssociations(t *testing.T) {
	embedder := &fakeEmbedder{
		vectors: map[string][]float32{
			"the original fact about caching": {1, 0},
			"a closely related caching fact":  {0.8, 0.6},
		},
		fallback: []float32{0, 1},
	}
	backend := newTestBackend(t)
	svc := NewMemoryService(backend, embedder, nil, testRecallConfig())
	ctx := context.Background()

	first, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "the original fact about caching"})
	require.NoError(t, err)
	second, err := svc.Remember(ctx, "ws-1", RememberInput{Content: "a closely related caching fact"})
	require.NoError(t, err)

	// Without a provider tiers fall back to truncation; short content means
	// abstract == content.
	assert.Equal(t, first.Content, first.Abstract)
	assert.Equal(t, second.Content, second.Overview)

	// The second write links to its nearest neighbor with the default
	// relation (no classification provider).
	assocs, err := backend.GetAssociations(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, first.ID, assocs[0].TargetID)
	assert.Equal(t, types.RelationDefault, assocs[0].Relationship)
}
