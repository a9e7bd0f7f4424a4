package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// CreateAssociation adds a directed edge between two memories. The
// relationship must be in the known vocabulary or the default relation;
// referencing a nonexistent memory fails with ErrIntegrity.
func (s *Store) CreateAssociation(ctx context.Context, assoc *types.Association) (*types.Association, error) {
	if assoc == nil || assoc.SourceID == "" || assoc.TargetID == "" {
		return nil, fmt.Errorf("%w: source and target IDs are required", storage.ErrInvalidInput)
	}
	if !types.IsKnownRelationship(assoc.Relationship) {
		return nil, fmt.Errorf("%w: unknown relationship %q", storage.ErrInvalidInput, assoc.Relationship)
	}

	created := *assoc
	if created.ID == "" {
		created.ID = "assoc:" + uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO associations (id, source_id, target_id, relationship, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		created.ID, created.SourceID, created.TargetID,
		created.Relationship, created.Strength, created.CreatedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("%w: association references nonexistent memory", storage.ErrIntegrity)
		}
		return nil, fmt.Errorf("sqlite: failed to create association: %w", err)
	}
	return &created, nil
}

// GetAssociations returns all edges touching the memory, outgoing and
// incoming.
func (s *Store) GetAssociations(ctx context.Context, memoryID string) ([]types.Association, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, relationship, strength, created_at
		FROM associations
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at DESC, id`,
		memoryID, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get associations: %w", err)
	}
	defer rows.Close()

	return scanAssociations(rows)
}

// Traverse walks the association graph from startID breadth-first up to
// maxDepth hops, following edges in both directions. A visited set guards
// against cycles; each memory appears at most once, ordered by hop distance.
func (s *Store) Traverse(ctx context.Context, startID string, maxDepth, limit int) ([]storage.TraversalNode, error) {
	if startID == "" {
		return nil, fmt.Errorf("%w: start memory ID is required", storage.ErrInvalidInput)
	}
	if maxDepth < 1 {
		maxDepth = 3
	}
	if maxDepth > 10 {
		maxDepth = 10
	}
	if limit < 1 {
		limit = 50
	}

	type frontierEntry struct {
		id  string
		rel string
	}

	visited := map[string]bool{startID: true}
	frontier := []frontierEntry{{id: startID}}

	var nodes []storage.TraversalNode
	for depth := 1; depth <= maxDepth && len(frontier) > 0 && len(nodes) < limit; depth++ {
		var next []frontierEntry
		for _, entry := range frontier {
			neighbors, err := s.neighbors(ctx, entry.id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.id] {
					continue
				}
				visited[n.id] = true

				// Soft-deleted memories are invisible to traversal.
				mem, err := s.getAnyWorkspace(ctx, n.id)
				if err != nil {
					continue
				}
				nodes = append(nodes, storage.TraversalNode{
					Memory:       mem,
					Depth:        depth,
					Relationship: n.rel,
				})
				if len(nodes) >= limit {
					break
				}
				next = append(next, n)
			}
			if len(nodes) >= limit {
				break
			}
		}
		frontier = next
	}
	return nodes, nil
}

// neighbors returns adjacent memory IDs with the connecting relationship,
// in deterministic order.
func (s *Store) neighbors(ctx context.Context, memoryID string) ([]struct {
	id  string
	rel string
}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN source_id = ? THEN target_id ELSE source_id END AS neighbor,
		       relationship
		FROM associations
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at, id`,
		memoryID, memoryID, memoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load neighbors: %w", err)
	}
	defer rows.Close()

	var out []struct {
		id  string
		rel string
	}
	for rows.Next() {
		var n struct {
			id  string
			rel string
		}
		if err := rows.Scan(&n.id, &n.rel); err != nil {
			return nil, fmt.Errorf("sqlite: neighbor scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: neighbor rows: %w", err)
	}
	return out, nil
}

// getAnyWorkspace fetches a non-deleted memory by ID without workspace
// scoping; traversal follows edges wherever they lead.
func (s *Store) getAnyWorkspace(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	return scanMemory(row)
}

// scanAssociations reads association rows in the canonical column order.
func scanAssociations(rows *sql.Rows) ([]types.Association, error) {
	var assocs []types.Association
	for rows.Next() {
		var a types.Association
		if err := rows.Scan(&a.ID, &a.SourceID, &a.TargetID, &a.Relationship, &a.Strength, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: association scan: %w", err)
		}
		assocs = append(assocs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: association rows: %w", err)
	}
	return assocs, nil
}
