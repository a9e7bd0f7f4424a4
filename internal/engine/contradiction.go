package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// negationPair models a lexical contradiction: content asserting the
// positive form conflicts with content asserting the negative form of the
// same statement. The negative form is always checked first because most
// positive forms are substrings of their negation ("is" inside "is not").
type negationPair struct {
	positive string
	negative string
}

var negationPairs = []negationPair{
	{"is", "is not"},
	{"can", "cannot"},
	{"will", "will not"},
	{"should", "should not"},
	{"does", "does not"},
	{"has", "has no"},
	{"always", "never"},
	{"likes", "dislikes"},
	{"true", "false"},
	{"enabled", "disabled"},
}

const baseNegationConfidence = 0.7

// ContradictionService detects negation conflicts between memories and
// exposes the resolution workflow over the storage backend.
type ContradictionService struct {
	store storage.Backend
}

// NewContradictionService creates a contradiction service over the given backend.
func NewContradictionService(store storage.Backend) *ContradictionService {
	return &ContradictionService{store: store}
}

// DetectPair checks two memories for a lexical negation conflict. Returns
// the persisted record on detection, or nil when the pair does not conflict.
func (s *ContradictionService) DetectPair(ctx context.Context, a, b *types.Memory) (*types.ContradictionRecord, error) {
	confidence, ok := negationConflict(a.Content, b.Content)
	if !ok {
		return nil, nil
	}

	record := &types.ContradictionRecord{
		WorkspaceID:       a.WorkspaceID,
		MemoryAID:         a.ID,
		MemoryBID:         b.ID,
		ContradictionType: "negation",
		DetectionMethod:   "negation_pattern",
		Confidence:        confidence,
	}
	created, err := s.store.CreateContradiction(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("contradiction: persist failed: %w", err)
	}
	return created, nil
}

// ScanAgainst checks a new memory against a set of existing memories and
// records every conflict found. Used by the write path as best-effort
// enrichment after a memory is persisted.
func (s *ContradictionService) ScanAgainst(ctx context.Context, memory *types.Memory, existing []*types.Memory) ([]*types.ContradictionRecord, error) {
	var records []*types.ContradictionRecord
	for _, other := range existing {
		if other.ID == memory.ID {
			continue
		}
		rec, err := s.DetectPair(ctx, memory, other)
		if err != nil {
			return records, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

// List returns unresolved contradictions for a workspace, newest first.
// The count is the size of the returned (limited) set.
func (s *ContradictionService) List(ctx context.Context, workspaceID string, limit int) ([]types.ContradictionRecord, int, error) {
	return s.store.ListContradictions(ctx, workspaceID, limit)
}

// Resolve marks a contradiction with the chosen strategy. Strategy and
// merge-content validation happens in the storage layer; resolving does not
// mutate the conflicting memories, that is left to the caller.
func (s *ContradictionService) Resolve(ctx context.Context, id string, resolution types.ResolutionStrategy, mergedContent string) (*types.ContradictionRecord, error) {
	return s.store.ResolveContradiction(ctx, id, resolution, mergedContent)
}

// negationConflict reports whether two pieces of content assert opposite
// forms of a known negation pair, with a confidence score. The negative
// phrase is matched before the positive so "is not" never counts as "is".
func negationConflict(contentA, contentB string) (float64, bool) {
	a := " " + strings.ToLower(storage.NormalizeContent(contentA)) + " "
	b := " " + strings.ToLower(storage.NormalizeContent(contentB)) + " "

	for _, pair := range negationPairs {
		neg := " " + pair.negative + " "
		pos := " " + pair.positive + " "

		aNeg := strings.Contains(a, neg)
		bNeg := strings.Contains(b, neg)
		aPos := !aNeg && strings.Contains(a, pos)
		bPos := !bNeg && strings.Contains(b, pos)

		if (aPos && bNeg) || (aNeg && bPos) {
			return baseNegationConfidence + 0.3*tokenOverlap(a, b, pair), true
		}
	}
	return 0, false
}

// tokenOverlap measures how much the two statements share outside the
// negation pair itself, scaled 0..1. Higher overlap means the sentences
// are more likely about the same subject.
func tokenOverlap(a, b string, pair negationPair) float64 {
	skip := map[string]bool{}
	for _, w := range strings.Fields(pair.positive + " " + pair.negative) {
		skip[w] = true
	}

	setA := map[string]bool{}
	for _, w := range strings.Fields(a) {
		if !skip[w] {
			setA[w] = true
		}
	}
	if len(setA) == 0 {
		return 0
	}

	shared, total := 0, len(setA)
	seen := map[string]bool{}
	for _, w := range strings.Fields(b) {
		if skip[w] || seen[w] {
			continue
		}
		seen[w] = true
		if setA[w] {
			shared++
		} else {
			total++
		}
	}
	return float64(shared) / float64(total)
}
