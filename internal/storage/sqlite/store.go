// Package sqlite implements the storage.Backend contract on an embedded
// SQLite database (modernc.org/sqlite, CGO-free). A single open connection
// serialises writes; WAL mode lets readers proceed without blocking the
// writer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Ensure *Store implements the full backend contract at compile time.
var _ storage.Backend = (*Store)(nil)

// Store implements storage.Backend using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database, configures WAL mode, creates the schema,
// and seeds the reserved _global workspace.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.seedReservedWorkspaces(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seedReservedWorkspaces ensures the shared _global workspace exists.
func (s *Store) seedReservedWorkspaces() error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO workspaces (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		types.GlobalWorkspaceID, types.DefaultTenantID, "Global", time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to seed global workspace: %w", err)
	}
	return nil
}

// Close flushes the WAL into the main database file and releases resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

// memoryColumns is the canonical SELECT column list; scanMemory must match.
const memoryColumns = `
	id, workspace_id, tenant_id, content, content_hash,
	embedding, dimension, type, subtype, status,
	pinned, importance, tags, abstract, overview,
	created_at, updated_at, deleted_at, access_count, last_accessed_at`

// CreateMemory persists a new memory with a freshly assigned ID.
func (s *Store) CreateMemory(ctx context.Context, workspaceID string, input storage.CreateMemoryInput) (*types.Memory, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}

	if err := s.ensureWorkspace(ctx, workspaceID, input.TenantID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mem := &types.Memory{
		ID:          "mem:" + uuid.NewString(),
		WorkspaceID: workspaceID,
		TenantID:    input.TenantID,
		Content:     input.Content,
		ContentHash: input.ContentHash,
		Embedding:   input.Embedding,
		Type:        input.Type,
		Subtype:     input.Subtype,
		Status:      types.StatusActive,
		Importance:  input.Importance,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mem.TenantID == "" {
		mem.TenantID = types.DefaultTenantID
	}
	if mem.Type == "" {
		mem.Type = types.TypeSemantic
	}
	if mem.ContentHash == "" {
		mem.ContentHash = storage.ContentHash(mem.Content)
	}

	var tagsJSON []byte
	if len(mem.Tags) > 0 {
		var err error
		tagsJSON, err = json.Marshal(mem.Tags)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to marshal tags: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (
			id, workspace_id, tenant_id, content, content_hash,
			embedding, dimension, type, subtype, status,
			pinned, importance, tags, abstract, overview,
			created_at, updated_at, access_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		mem.ID, mem.WorkspaceID, mem.TenantID, mem.Content, mem.ContentHash,
		nullableBlob(serializeEmbedding(mem.Embedding)), len(mem.Embedding),
		mem.Type, nullableString(string(mem.Subtype)), mem.Status,
		mem.Pinned, mem.Importance, nullableBlob(tagsJSON),
		nullableString(mem.Abstract), nullableString(mem.Overview),
		mem.CreatedAt, mem.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to create memory: %w", err)
	}

	return mem, nil
}

// ensureWorkspace creates the workspace row on first write so arbitrary
// workspace IDs are writable without an explicit CreateWorkspace call.
func (s *Store) ensureWorkspace(ctx context.Context, workspaceID, tenantID string) error {
	if tenantID == "" {
		tenantID = types.DefaultTenantID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO workspaces (id, tenant_id, name, created_at) VALUES (?, ?, ?, ?)`,
		workspaceID, tenantID, workspaceID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to ensure workspace: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory by ID. Soft-deleted rows are invisible.
func (s *Store) GetMemory(ctx context.Context, workspaceID, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE id = ? AND workspace_id = ? AND deleted_at IS NULL`,
		id, workspaceID,
	)
	return scanMemory(row)
}

// UpdateMemory merges the supplied partial fields into an existing memory.
func (s *Store) UpdateMemory(ctx context.Context, workspaceID, id string, patch storage.MemoryPatch) (*types.Memory, error) {
	mem, err := s.GetMemory(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		mem.Content = *patch.Content
		mem.ContentHash = storage.ContentHash(mem.Content)
	}
	if patch.Embedding != nil {
		mem.Embedding = patch.Embedding
	}
	if patch.Status != nil {
		if !types.IsValidStatusTransition(mem.Status, *patch.Status) && mem.Status != *patch.Status {
			return nil, fmt.Errorf("%w: invalid status transition %q -> %q",
				storage.ErrInvalidInput, mem.Status, *patch.Status)
		}
		mem.Status = *patch.Status
	}
	if patch.Pinned != nil {
		mem.Pinned = *patch.Pinned
	}
	if patch.Importance != nil {
		mem.Importance = *patch.Importance
	}
	if patch.Tags != nil {
		mem.Tags = patch.Tags
	}
	if patch.Abstract != nil {
		mem.Abstract = *patch.Abstract
	}
	if patch.Overview != nil {
		mem.Overview = *patch.Overview
	}
	mem.UpdatedAt = time.Now().UTC()

	var tagsJSON []byte
	if len(mem.Tags) > 0 {
		tagsJSON, err = json.Marshal(mem.Tags)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to marshal tags: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, content_hash = ?, embedding = ?, dimension = ?,
			status = ?, pinned = ?, importance = ?, tags = ?,
			abstract = ?, overview = ?, updated_at = ?
		WHERE id = ? AND workspace_id = ? AND deleted_at IS NULL`,
		mem.Content, mem.ContentHash,
		nullableBlob(serializeEmbedding(mem.Embedding)), len(mem.Embedding),
		mem.Status, mem.Pinned, mem.Importance, nullableBlob(tagsJSON),
		nullableString(mem.Abstract), nullableString(mem.Overview), mem.UpdatedAt,
		id, workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to update memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}

	return mem, nil
}

// DeleteMemory soft-deletes by default; hard=true removes the row and its
// index entries (FTS rows go via trigger, associations via cascade).
func (s *Store) DeleteMemory(ctx context.Context, workspaceID, id string, hard bool) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var (
		res sql.Result
		err error
	)
	if hard {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM memories WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE memories SET status = ?, deleted_at = ?, updated_at = ?
			 WHERE id = ? AND workspace_id = ? AND deleted_at IS NULL`,
			types.StatusDeleted, time.Now().UTC(), time.Now().UTC(), id, workspaceID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete memory: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindByContentHash returns the most recent non-deleted memory with the
// given hash, scoped to the workspace.
func (s *Store) FindByContentHash(ctx context.Context, workspaceID, hash string) (*types.Memory, error) {
	if hash == "" {
		return nil, fmt.Errorf("%w: content hash is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE workspace_id = ? AND content_hash = ? AND deleted_at IS NULL
		 ORDER BY created_at DESC, id LIMIT 1`,
		workspaceID, hash,
	)
	return scanMemory(row)
}

// ListEmbeddings returns the embeddings of all non-deleted memories in the
// workspace for the deduplication similarity sweep.
func (s *Store) ListEmbeddings(ctx context.Context, workspaceID string) ([]storage.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content_hash, embedding, dimension FROM memories
		 WHERE workspace_id = ? AND deleted_at IS NULL AND embedding IS NOT NULL`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var records []storage.EmbeddingRecord
	for rows.Next() {
		var rec storage.EmbeddingRecord
		var blob []byte
		var dim int
		if err := rows.Scan(&rec.MemoryID, &rec.ContentHash, &blob, &dim); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding: %w", err)
		}
		emb, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue // corrupt blob, skip rather than fail the sweep
		}
		rec.Embedding = emb
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: embeddings rows: %w", err)
	}
	return records, nil
}

// TouchMemories bumps access_count and last_accessed_at for the given IDs.
func (s *Store) TouchMemories(ctx context.Context, workspaceID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
			 WHERE id = ? AND workspace_id = ? AND deleted_at IS NULL`,
			now, id, workspaceID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to touch memory %s: %w", id, err)
		}
	}
	return nil
}

// CreateWorkspace persists a workspace (upsert on ID).
func (s *Store) CreateWorkspace(ctx context.Context, ws *types.Workspace) error {
	if ws == nil || ws.ID == "" {
		return fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}
	if ws.TenantID == "" {
		ws.TenantID = types.DefaultTenantID
	}
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = time.Now().UTC()
	}

	var settingsJSON []byte
	if len(ws.Settings) > 0 {
		var err error
		settingsJSON, err = json.Marshal(ws.Settings)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal settings: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, tenant_id, name, description, settings, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			settings = excluded.settings`,
		ws.ID, ws.TenantID, ws.Name, nullableString(ws.Description),
		nullableBlob(settingsJSON), ws.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace retrieves a workspace by ID.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*types.Workspace, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: workspace ID is required", storage.ErrInvalidInput)
	}

	var ws types.Workspace
	var description, settingsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, description, settings, created_at
		 FROM workspaces WHERE id = ?`, id,
	).Scan(&ws.ID, &ws.TenantID, &ws.Name, &description, &settingsJSON, &ws.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get workspace: %w", err)
	}

	if description.Valid {
		ws.Description = description.String
	}
	if settingsJSON.Valid && settingsJSON.String != "" {
		if err := json.Unmarshal([]byte(settingsJSON.String), &ws.Settings); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal settings: %w", err)
		}
	}
	return &ws, nil
}

// PutWorkingMemory stores ephemeral session context with a TTL.
func (s *Store) PutWorkingMemory(ctx context.Context, workspaceID, sessionID, key, value string, ttl time.Duration) error {
	if workspaceID == "" || sessionID == "" || key == "" {
		return fmt.Errorf("%w: workspace, session, and key are required", storage.ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = storage.DefaultWorkingMemoryTTL
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO working_memory (workspace_id, session_id, key, value, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, session_id, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at`,
		workspaceID, sessionID, key, value, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to put working memory: %w", err)
	}
	return nil
}

// GetWorkingMemory reads a working-memory value; expired entries are hidden.
func (s *Store) GetWorkingMemory(ctx context.Context, workspaceID, sessionID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM working_memory
		 WHERE workspace_id = ? AND session_id = ? AND key = ? AND expires_at > ?`,
		workspaceID, sessionID, key, time.Now().UTC(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to get working memory: %w", err)
	}
	return value, nil
}

// PurgeExpiredWorkingMemory removes expired entries.
func (s *Store) PurgeExpiredWorkingMemory(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM working_memory WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to purge working memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan code.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory scans a row selected with memoryColumns into a types.Memory.
func scanMemory(row rowScanner) (*types.Memory, error) {
	var mem types.Memory
	var embBlob []byte
	var dim int
	var subtype, tagsJSON, abstract, overview sql.NullString
	var deletedAt, lastAccessedAt sql.NullTime

	err := row.Scan(
		&mem.ID, &mem.WorkspaceID, &mem.TenantID, &mem.Content, &mem.ContentHash,
		&embBlob, &dim, &mem.Type, &subtype, &mem.Status,
		&mem.Pinned, &mem.Importance, &tagsJSON, &abstract, &overview,
		&mem.CreatedAt, &mem.UpdatedAt, &deletedAt, &mem.AccessCount, &lastAccessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
	}

	if emb, err := deserializeEmbedding(embBlob, dim); err == nil {
		mem.Embedding = emb
	}
	if subtype.Valid {
		mem.Subtype = types.MemorySubtype(subtype.String)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &mem.Tags); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal tags: %w", err)
		}
	}
	if abstract.Valid {
		mem.Abstract = abstract.String
	}
	if overview.Valid {
		mem.Overview = overview.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		mem.DeletedAt = &t
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		mem.LastAccessedAt = &t
	}
	return &mem, nil
}

// isForeignKeyError reports whether err is a SQLite FK constraint failure.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// nullableString converts a string to sql.NullString; empty means NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableBlob converts a byte slice to an interface suitable for NULL blobs.
func nullableBlob(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
