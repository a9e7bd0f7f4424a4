package postgres

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// searchMaxCandidates caps the candidate set per search.
const searchMaxCandidates = 10_000

// lexicalBoost is added to the score of memories that also match the
// full-text query; lexical-only hits stand at exactly this value.
const lexicalBoost = 0.1

// SearchMemories ranks workspace memories by cosine similarity against the
// query embedding, unions full-text matches when QueryText is set, filters
// by MinRelevance and status flags, and orders by score descending with
// created_at-then-ID tie-breaks. Uses the pgvector ANN index when available,
// otherwise scores embeddings in process.
func (s *Store) SearchMemories(ctx context.Context, workspaceID string, query []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	if len(query) == 0 && opts.QueryText == "" {
		return nil, fmt.Errorf("%w: query embedding or text is required", storage.ErrInvalidInput)
	}

	scores := make(map[string]float64)

	if len(query) > 0 {
		var err error
		if s.pgvectorAvailable {
			err = s.vectorScoresSQL(ctx, workspaceID, query, scores)
		} else {
			err = s.vectorScoresInProcess(ctx, workspaceID, query, scores)
		}
		if err != nil {
			return nil, err
		}
	}

	if opts.QueryText != "" {
		ftsIDs, err := s.fullTextMatch(ctx, workspaceID, opts.QueryText)
		if err != nil {
			return nil, err
		}
		for _, id := range ftsIDs {
			scores[id] += lexicalBoost
		}
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, 0, len(scores))
	for id, score := range scores {
		if score >= opts.MinRelevance {
			candidates = append(candidates, scored{id, score})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var results []storage.ScoredMemory
	for _, c := range candidates {
		mem, err := s.getAnyStatus(ctx, workspaceID, c.id)
		if err != nil {
			continue
		}
		if mem.Status == types.StatusDeleted && !opts.IncludeDeleted {
			continue
		}
		if mem.Status == types.StatusArchived && !opts.IncludeArchived {
			continue
		}
		if !matchesTypes(mem.Type, opts.Types) {
			continue
		}
		results = append(results, storage.ScoredMemory{Memory: *mem, Score: c.score})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID < b.Memory.ID
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// vectorScoresSQL scores candidates server-side via pgvector cosine distance.
func (s *Store) vectorScoresSQL(ctx context.Context, workspaceID string, query []float32, scores map[string]float64) error {
	vec := pgvector.NewVector(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, 1 - (embedding_vec <=> $1) AS score
		FROM memories
		WHERE workspace_id = $2 AND embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1
		LIMIT $3`,
		vec, workspaceID, searchMaxCandidates,
	)
	if err != nil {
		return fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return fmt.Errorf("postgres: vector scan: %w", err)
		}
		scores[id] = score
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: vector rows: %w", err)
	}
	return nil
}

// vectorScoresInProcess loads embeddings and scores them in Go. Fallback for
// servers without the pgvector extension.
func (s *Store) vectorScoresInProcess(ctx context.Context, workspaceID string, query []float32, scores map[string]float64) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding, dimension FROM memories
		WHERE workspace_id = $1 AND embedding IS NOT NULL
		ORDER BY created_at DESC LIMIT $2`,
		workspaceID, searchMaxCandidates,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to load search candidates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		var dim int
		if err := rows.Scan(&id, &blob, &dim); err != nil {
			continue
		}
		emb, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		scores[id] = cosineSimilarity(query, emb)
	}
	return rows.Err()
}

func (s *Store) getAnyStatus(ctx context.Context, workspaceID, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID,
	)
	return scanMemory(row)
}

// fullTextMatch returns the IDs of memories matching the query via the
// tsvector index.
func (s *Store) fullTextMatch(ctx context.Context, workspaceID, queryText string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM memories
		WHERE workspace_id = $1
		  AND content_tsv @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(content_tsv, plainto_tsquery('english', $2)) DESC
		LIMIT $3`,
		workspaceID, queryText, searchMaxCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: full-text search failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: FTS scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: FTS rows: %w", err)
	}
	return ids, nil
}

func matchesTypes(t types.MemoryType, filter []types.MemoryType) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if t == f {
			return true
		}
	}
	return false
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
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

// serializeEmbedding encodes a float32 vector as a little-endian blob.
func serializeEmbedding(emb []float32) []byte {
	if len(emb) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(emb))
	for i, v := range emb {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian float32 blob, validating the
// declared dimension against the blob length.
func deserializeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob) == 0 || dim == 0 {
		return nil, nil
	}
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("postgres: embedding blob length %d does not match dimension %d", len(blob), dim)
	}
	emb := make([]float32, dim)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return emb, nil
}
