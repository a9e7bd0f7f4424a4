package sqlite

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

func TestSearchMemoriesRanksByCosine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	far := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "unrelated topic", Embedding: []float32{0, 1, 0}})
	near := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "close match", Embedding: []float32{0.9, 0.1, 0}})
	exact := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "exact match", Embedding: []float32{1, 0, 0}})

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0, 0}, storage.SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Memory.ID != exact.ID {
		t.Errorf("rank 0: got %q, want exact match %q", results[0].Memory.ID, exact.ID)
	}
	if results[1].Memory.ID != near.ID {
		t.Errorf("rank 1: got %q, want near match %q", results[1].Memory.ID, near.ID)
	}
	if results[2].Memory.ID != far.ID {
		t.Errorf("rank 2: got %q, want far match %q", results[2].Memory.ID, far.ID)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("exact score: got %v, want 1.0", results[0].Score)
	}
}

func TestSearchMemoriesMinRelevance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "orthogonal", Embedding: []float32{0, 1}})
	mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "aligned", Embedding: []float32{1, 0}})

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, MinRelevance: 0.5})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Memory.Content != "aligned" {
		t.Errorf("got %q, want aligned", results[0].Memory.Content)
	}
}

func TestSearchMemoriesLexicalBoost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two memories with identical embeddings; only one matches the query
	// text, so the lexical boost must break the tie.
	plain := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "general notes about the project", Embedding: []float32{1, 0}})
	lexical := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "deployment checklist for production", Embedding: []float32{1, 0}})

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, QueryText: "deployment"})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Memory.ID != lexical.ID {
		t.Errorf("rank 0: got %q, want lexical hit %q", results[0].Memory.ID, lexical.ID)
	}
	if results[1].Memory.ID != plain.ID {
		t.Errorf("rank 1: got %q, want %q", results[1].Memory.ID, plain.ID)
	}
	if diff := results[0].Score - results[1].Score; math.Abs(diff-lexicalBoost) > 1e-6 {
		t.Errorf("boost delta: got %v, want %v", diff, lexicalBoost)
	}
}

func TestSearchMemoriesPunctuatedQueryText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Punctuation in the query text must never reach FTS5 as operator
	// syntax. The surviving barewords still contribute a lexical boost.
	plain := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "general notes about the project", Embedding: []float32{1, 0}})
	release := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "release v1 changelog", Embedding: []float32{1, 0}})

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, QueryText: "what changed in v1.2"})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Memory.ID != release.ID {
		t.Errorf("rank 0: got %q, want lexical hit %q", results[0].Memory.ID, release.ID)
	}
	if results[1].Memory.ID != plain.ID {
		t.Errorf("rank 1: got %q, want %q", results[1].Memory.ID, plain.ID)
	}

	// Queries that are nothing but punctuation skip the lexical pass.
	results, err = store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, QueryText: ". , / ;"})
	if err != nil {
		t.Fatalf("SearchMemories() with punctuation-only text failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("punctuation-only text: got %d results, want 2", len(results))
	}
}

func TestSearchMemoriesTextOnlyHit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// No embedding at all: reachable only through the full-text index.
	mem := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "kubernetes ingress configuration"})

	results, err := store.SearchMemories(ctx, "ws-1", nil,
		storage.SearchOptions{Limit: 10, QueryText: "kubernetes"})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Memory.ID != mem.ID {
		t.Errorf("got %q, want %q", results[0].Memory.ID, mem.ID)
	}
	if math.Abs(results[0].Score-lexicalBoost) > 1e-6 {
		t.Errorf("text-only score: got %v, want %v", results[0].Score, lexicalBoost)
	}
}

func TestSearchMemoriesStatusFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "active row", Embedding: []float32{1, 0}})
	arch := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "archived row", Embedding: []float32{1, 0}})
	archived := types.StatusArchived
	if _, err := store.UpdateMemory(ctx, "ws-1", arch.ID, storage.MemoryPatch{Status: &archived}); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	del := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "deleted row", Embedding: []float32{1, 0}})
	if err := store.DeleteMemory(ctx, "ws-1", del.ID, false); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0}, storage.SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != active.ID {
		t.Fatalf("default filter: got %d results, want only the active row", len(results))
	}

	results, err = store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, IncludeArchived: true})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("with archived: got %d results, want 2", len(results))
	}
}

func TestSearchMemoriesTypeFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "a fact", Embedding: []float32{1, 0}, Type: types.TypeSemantic})
	episodic := mustCreate(t, store, "ws-1", storage.CreateMemoryInput{
		Content: "an event", Embedding: []float32{1, 0}, Type: types.TypeEpisodic})

	results, err := store.SearchMemories(ctx, "ws-1", []float32{1, 0},
		storage.SearchOptions{Limit: 10, Types: []types.MemoryType{types.TypeEpisodic}})
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 || results[0].Memory.ID != episodic.ID {
		t.Fatalf("type filter: got %d results, want only the episodic row", len(results))
	}
}

func TestSearchMemoriesRequiresQuery(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SearchMemories(context.Background(), "ws-1", nil, storage.SearchOptions{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello world", "hello* OR world*"},
		{`"quoted" (grouped)`, "quoted* OR grouped*"},
		{"a", ""},
		{"", ""},
		{"C++ tips", "tips*"},
		{"what changed in v1.2", "what* OR changed* OR in* OR v1*"},
		{"session.store/main; retry", "session* OR store* OR main* OR retry*"},
		{"naïve café", "naïve* OR café*"},
		{". , / ;", ""},
	}
	for _, tc := range cases {
		if got := sanitizeFTSQuery(tc.in); got != tc.want {
			t.Errorf("sanitizeFTSQuery(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %v, want 1", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("length mismatch: got %v, want 0", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Errorf("zero vector: got %v, want 0", got)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	emb := []float32{0.25, -1.5, 3.75}
	blob := serializeEmbedding(emb)

	got, err := deserializeEmbedding(blob, len(emb))
	if err != nil {
		t.Fatalf("deserializeEmbedding() failed: %v", err)
	}
	for i := range emb {
		if got[i] != emb[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], emb[i])
		}
	}

	if _, err := deserializeEmbedding(blob, 2); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
