// Package engine contains the services that operate on the storage
// backend: deduplication, contradiction handling, relationship ontology
// classification, semantic tiering, and the memory service that composes
// them into the remember/recall/reflect pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/engramdev/engram/internal/storage"
)

// DedupAction is the decision for an incoming piece of content.
type DedupAction string

const (
	// DedupCreate: the content is new, persist a fresh memory.
	DedupCreate DedupAction = "create"

	// DedupUpdate: the content is a near-duplicate, merge into the match.
	DedupUpdate DedupAction = "update"

	// DedupSkip: the content is an exact duplicate, keep the existing row.
	DedupSkip DedupAction = "skip"
)

// DedupThreshold is the cosine similarity above which incoming content is
// treated as an update of the best-matching existing memory. Fixed
// configuration, not a per-call parameter.
const DedupThreshold = 0.95

// DedupResult is the outcome of a duplicate check.
type DedupResult struct {
	Action     DedupAction `json:"action"`
	ExistingID string      `json:"existing_memory_id,omitempty"`
	Similarity float64     `json:"similarity_score,omitempty"`
	Reason     string      `json:"reason"`
}

// DedupCandidate is one entry in a batch duplicate check.
type DedupCandidate struct {
	Content     string
	ContentHash string
	Embedding   []float32
}

// Deduplicator decides CREATE/UPDATE/SKIP for incoming content before it is
// persisted, comparing against the current workspace state.
type Deduplicator struct {
	store storage.Backend
}

// NewDeduplicator creates a deduplication service over the given backend.
func NewDeduplicator(store storage.Backend) *Deduplicator {
	return &Deduplicator{store: store}
}

// Check evaluates incoming content against the workspace. Decision order:
// exact hash match wins (SKIP), then maximum cosine similarity at or above
// DedupThreshold (UPDATE), otherwise CREATE.
func (d *Deduplicator) Check(ctx context.Context, workspaceID, content, contentHash string, embedding []float32) (*DedupResult, error) {
	if contentHash == "" {
		contentHash = storage.ContentHash(content)
	}

	existing, err := d.store.FindByContentHash(ctx, workspaceID, contentHash)
	if err == nil {
		return &DedupResult{
			Action:     DedupSkip,
			ExistingID: existing.ID,
			Similarity: 1.0,
			Reason:     "Exact content duplicate",
		}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("dedup: hash lookup failed: %w", err)
	}

	// Degraded mode: without an embedding only the hash check is possible.
	if len(embedding) > 0 {
		records, err := d.store.ListEmbeddings(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("dedup: embedding sweep failed: %w", err)
		}

		bestID := ""
		bestSim := -1.0
		for _, rec := range records {
			if sim := cosine32(embedding, rec.Embedding); sim > bestSim {
				bestSim = sim
				bestID = rec.MemoryID
			}
		}

		if bestID != "" && bestSim >= DedupThreshold {
			return &DedupResult{
				Action:     DedupUpdate,
				ExistingID: bestID,
				Similarity: bestSim,
				Reason:     fmt.Sprintf("Semantic duplicate (similarity %.3f)", bestSim),
			}, nil
		}
	}

	return &DedupResult{
		Action: DedupCreate,
		Reason: "New unique memory",
	}, nil
}

// CheckBatch evaluates each candidate independently against the current
// persisted workspace state. Batch members do not dedup against each other
// in this pass; only what is already stored counts.
func (d *Deduplicator) CheckBatch(ctx context.Context, workspaceID string, candidates []DedupCandidate) ([]DedupResult, error) {
	results := make([]DedupResult, 0, len(candidates))
	for _, c := range candidates {
		res, err := d.Check(ctx, workspaceID, c.Content, c.ContentHash, c.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// cosine32 computes cosine similarity between two float32 vectors.
func cosine32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
