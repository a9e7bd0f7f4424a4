// Package storage defines the storage contract for the Engram memory
// engine. The backend owns all index state (vector, full-text, graph); the
// services above it never manipulate index internals directly, only the
// operations declared here. Implementations must be safe for concurrent use
// and must serialize writes per memory so readers observe either the pre- or
// post-write state, never a partial write.
package storage

import (
	"context"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// Backend is the durable store for memories, associations, contradictions,
// workspaces, and session-scoped working memory. All memory operations are
// scoped by workspace ID. Read paths return ErrNotFound rather than
// panicking or throwing; soft-deleted memories are always hidden at this
// layer unless IncludeDeleted is explicitly requested.
type Backend interface {
	// CreateMemory persists a new memory. The backend assigns the ID, sets
	// status to active and pinned to false, computes the content hash when
	// absent, and indexes the row into the vector, full-text, and
	// hash-lookup structures.
	CreateMemory(ctx context.Context, workspaceID string, input CreateMemoryInput) (*types.Memory, error)

	// GetMemory retrieves a memory by ID. Soft-deleted memories return
	// ErrNotFound; archived memories are returned (status filtering beyond
	// the deleted guard is the caller's responsibility).
	GetMemory(ctx context.Context, workspaceID, id string) (*types.Memory, error)

	// UpdateMemory merges the supplied partial fields into an existing
	// memory and re-indexes vector/full-text entries when content or
	// embedding changed. Returns ErrNotFound for missing or deleted rows.
	UpdateMemory(ctx context.Context, workspaceID, id string, patch MemoryPatch) (*types.Memory, error)

	// DeleteMemory soft-deletes by default (status=deleted, deleted_at set,
	// row retained, invisible to reads). With hard=true the row and its
	// index entries are physically removed.
	DeleteMemory(ctx context.Context, workspaceID, id string, hard bool) error

	// FindByContentHash returns the most recent non-deleted memory in the
	// workspace with the given content hash, or ErrNotFound.
	FindByContentHash(ctx context.Context, workspaceID, hash string) (*types.Memory, error)

	// ListEmbeddings returns the embeddings of all non-deleted memories in
	// the workspace for the deduplication similarity sweep.
	ListEmbeddings(ctx context.Context, workspaceID string) ([]EmbeddingRecord, error)

	// SearchMemories ranks workspace memories by cosine similarity against
	// the query embedding, optionally unioning full-text matches, and
	// returns results with score >= MinRelevance ordered by score
	// descending. Ties break by most-recent created_at, then by ID, so
	// pagination stays stable.
	SearchMemories(ctx context.Context, workspaceID string, query []float32, opts SearchOptions) ([]ScoredMemory, error)

	// TouchMemories bumps access_count and last_accessed_at for the given
	// IDs. Missing IDs are skipped silently.
	TouchMemories(ctx context.Context, workspaceID string, ids []string) error

	// CreateAssociation adds a directed edge between two memories. The
	// relationship must be in the known vocabulary; referencing a
	// nonexistent memory fails with ErrIntegrity.
	CreateAssociation(ctx context.Context, assoc *types.Association) (*types.Association, error)

	// GetAssociations returns all edges touching the memory, outgoing and
	// incoming.
	GetAssociations(ctx context.Context, memoryID string) ([]types.Association, error)

	// Traverse walks the association graph from startID up to maxDepth
	// hops, visiting each memory at most once (cycle-safe), and returns up
	// to limit nodes ordered by hop distance.
	Traverse(ctx context.Context, startID string, maxDepth, limit int) ([]TraversalNode, error)

	// CreateContradiction records a detected conflict. Referencing a
	// nonexistent memory fails with ErrIntegrity.
	CreateContradiction(ctx context.Context, rec *types.ContradictionRecord) (*types.ContradictionRecord, error)

	// GetContradiction retrieves a contradiction record by ID.
	GetContradiction(ctx context.Context, id string) (*types.ContradictionRecord, error)

	// ListContradictions returns unresolved records for the workspace,
	// newest first, capped at limit. The returned count is the size of the
	// limited result set.
	ListContradictions(ctx context.Context, workspaceID string, limit int) ([]types.ContradictionRecord, int, error)

	// ResolveContradiction sets the resolution exactly once. A second
	// attempt on an already-resolved record fails with ErrConflict; an
	// unknown ID fails with ErrNotFound.
	ResolveContradiction(ctx context.Context, id string, resolution types.ResolutionStrategy, mergedContent string) (*types.ContradictionRecord, error)

	// CreateWorkspace persists a workspace. Creating an existing ID is an
	// upsert of name/description/settings.
	CreateWorkspace(ctx context.Context, ws *types.Workspace) error

	// GetWorkspace retrieves a workspace by ID.
	GetWorkspace(ctx context.Context, id string) (*types.Workspace, error)

	// PutWorkingMemory stores ephemeral session context with a TTL.
	PutWorkingMemory(ctx context.Context, workspaceID, sessionID, key, value string, ttl time.Duration) error

	// GetWorkingMemory reads a working-memory value. Expired or missing
	// entries return ErrNotFound.
	GetWorkingMemory(ctx context.Context, workspaceID, sessionID, key string) (string, error)

	// PurgeExpiredWorkingMemory removes expired entries and returns the
	// number of rows deleted.
	PurgeExpiredWorkingMemory(ctx context.Context) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}
