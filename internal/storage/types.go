package storage

import (
	"errors"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

var (
	// ErrNotFound indicates that the requested entity does not exist or is
	// invisible due to soft-delete filtering.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrity indicates a referential integrity violation, e.g. an
	// association or contradiction referencing a nonexistent memory.
	ErrIntegrity = errors.New("referential integrity violation")

	// ErrConflict indicates a lost one-shot transition race, e.g. resolving
	// a contradiction that another caller already resolved.
	ErrConflict = errors.New("conflicting concurrent update")
)

// CreateMemoryInput carries the fields for a new memory. ID, status, and
// timestamps are assigned by the backend; ContentHash is computed from
// Content when absent.
type CreateMemoryInput struct {
	TenantID    string
	Content     string
	ContentHash string
	Embedding   []float32
	Type        types.MemoryType
	Subtype     types.MemorySubtype
	Importance  float64
	Tags        []string
}

// MemoryPatch is a partial update. Nil fields are left untouched.
type MemoryPatch struct {
	Content    *string
	Embedding  []float32 // nil = unchanged
	Status     *types.MemoryStatus
	Pinned     *bool
	Importance *float64
	Tags       []string // nil = unchanged
	Abstract   *string
	Overview   *string
}

// SearchOptions controls SearchMemories behaviour.
type SearchOptions struct {
	// Limit caps the number of results (default 10, max 100).
	Limit int

	// MinRelevance drops results scoring below this value (0.0-1.0).
	MinRelevance float64

	// QueryText, when set, unions full-text matches into the candidate set.
	QueryText string

	// Types restricts results to the given memory types. Empty = all.
	Types []types.MemoryType

	// IncludeArchived includes archived memories in results.
	IncludeArchived bool

	// IncludeDeleted includes soft-deleted memories in results.
	IncludeDeleted bool
}

// Normalize applies defaults and clamps out-of-range values.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.MinRelevance < 0 {
		o.MinRelevance = 0
	}
	if o.MinRelevance > 1 {
		o.MinRelevance = 1
	}
}

// ScoredMemory pairs a memory with its search relevance score.
type ScoredMemory struct {
	Memory types.Memory
	Score  float64
}

// EmbeddingRecord is a lightweight projection used by the deduplication
// sweep: it avoids hydrating full memories for every similarity comparison.
type EmbeddingRecord struct {
	MemoryID    string
	ContentHash string
	Embedding   []float32
}

// TraversalNode is a memory reached by walking the association graph.
type TraversalNode struct {
	Memory *types.Memory

	// Depth is the hop count from the starting memory (1 = direct edge).
	Depth int

	// Relationship is the edge type on the path step that reached this node.
	Relationship string
}

// DefaultWorkingMemoryTTL applies when a working-memory write supplies no TTL.
const DefaultWorkingMemoryTTL = 30 * time.Minute
