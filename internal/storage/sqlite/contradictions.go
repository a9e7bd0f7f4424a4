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

// CreateContradiction records a detected conflict between two memories.
func (s *Store) CreateContradiction(ctx context.Context, rec *types.ContradictionRecord) (*types.ContradictionRecord, error) {
	if rec == nil || rec.MemoryAID == "" || rec.MemoryBID == "" {
		return nil, fmt.Errorf("%w: both memory IDs are required", storage.ErrInvalidInput)
	}
	if rec.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}

	created := *rec
	if created.ID == "" {
		created.ID = "contra:" + uuid.NewString()
	}
	if created.DetectedAt.IsZero() {
		created.DetectedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contradictions (
			id, workspace_id, memory_a_id, memory_b_id,
			contradiction_type, confidence, detection_method,
			resolution, merged_content, detected_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.WorkspaceID, created.MemoryAID, created.MemoryBID,
		created.ContradictionType, created.Confidence, created.DetectionMethod,
		nullableString(string(created.Resolution)), nullableString(created.MergedContent),
		created.DetectedAt, nullableTimePtr(created.ResolvedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("%w: contradiction references nonexistent memory", storage.ErrIntegrity)
		}
		return nil, fmt.Errorf("sqlite: failed to create contradiction: %w", err)
	}
	return &created, nil
}

const contradictionColumns = `
	id, workspace_id, memory_a_id, memory_b_id,
	contradiction_type, confidence, detection_method,
	resolution, merged_content, detected_at, resolved_at`

// GetContradiction retrieves a contradiction record by ID.
func (s *Store) GetContradiction(ctx context.Context, id string) (*types.ContradictionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: contradiction ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contradictionColumns+` FROM contradictions WHERE id = ?`, id)
	return scanContradiction(row)
}

// ListContradictions returns unresolved records for the workspace, newest
// first, capped at limit. The count reflects the limited result set.
func (s *Store) ListContradictions(ctx context.Context, workspaceID string, limit int) ([]types.ContradictionRecord, int, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contradictionColumns+` FROM contradictions
		 WHERE workspace_id = ? AND resolution IS NULL
		 ORDER BY detected_at DESC, id LIMIT ?`,
		workspaceID, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: failed to list contradictions: %w", err)
	}
	defer rows.Close()

	var records []types.ContradictionRecord
	for rows.Next() {
		rec, err := scanContradiction(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlite: contradiction rows: %w", err)
	}
	return records, len(records), nil
}

// ResolveContradiction sets the resolution exactly once. The guarded UPDATE
// (resolution IS NULL) makes concurrent resolve attempts race-safe: the
// loser observes zero affected rows and fails with ErrConflict.
func (s *Store) ResolveContradiction(ctx context.Context, id string, resolution types.ResolutionStrategy, mergedContent string) (*types.ContradictionRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: contradiction ID is required", storage.ErrInvalidInput)
	}
	if !types.IsValidResolution(resolution) {
		return nil, fmt.Errorf("%w: unknown resolution strategy %q", storage.ErrInvalidInput, resolution)
	}
	if resolution == types.ResolutionMerge && mergedContent == "" {
		return nil, fmt.Errorf("%w: merge resolution requires merged content", storage.ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE contradictions
		SET resolution = ?, merged_content = ?, resolved_at = ?
		WHERE id = ? AND resolution IS NULL`,
		resolution, nullableString(mergedContent), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to resolve contradiction: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing record from an already-resolved one.
		if _, err := s.GetContradiction(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: contradiction %s is already resolved", storage.ErrConflict, id)
	}

	return s.GetContradiction(ctx, id)
}

// scanContradiction scans a row selected with contradictionColumns.
func scanContradiction(row rowScanner) (*types.ContradictionRecord, error) {
	var rec types.ContradictionRecord
	var resolution, mergedContent sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.WorkspaceID, &rec.MemoryAID, &rec.MemoryBID,
		&rec.ContradictionType, &rec.Confidence, &rec.DetectionMethod,
		&resolution, &mergedContent, &rec.DetectedAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan contradiction: %w", err)
	}

	if resolution.Valid {
		rec.Resolution = types.ResolutionStrategy(resolution.String)
	}
	if mergedContent.Valid {
		rec.MergedContent = mergedContent.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rec.ResolvedAt = &t
	}
	return &rec, nil
}

// nullableTimePtr converts a time pointer to sql.NullTime.
func nullableTimePtr(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
