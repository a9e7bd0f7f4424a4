package engine

import (
	"context"
	"testing"

	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage/sqlite"
)

// newTestBackend opens an in-memory SQLite backend for engine tests.
func newTestBackend(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test backend: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fakeProvider returns a canned reply, or a fixed error when set.
type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.reply}, nil
}

func (f *fakeProvider) Model() string { return "fake-model" }

// fakeEmbedder serves fixed vectors per text, falling back to a default.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.fallback, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.fallback) }
func (f *fakeEmbedder) Model() string  { return "fake-embedder" }
