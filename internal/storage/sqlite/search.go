package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// searchMaxCandidates caps the number of embeddings loaded into memory per
// search. Candidates are selected newest-first so recently created memories
// are always considered. For datasets beyond this, use the postgres backend
// with pgvector-indexed ANN search.
const searchMaxCandidates = 10_000

// lexicalBoost is added to the score of memories that also match the
// full-text query. Memories reachable only lexically (e.g. without an
// embedding) are scored at exactly this value.
const lexicalBoost = 0.1

// SearchMemories ranks workspace memories by cosine similarity against the
// query embedding, unions full-text matches when QueryText is set, filters
// by MinRelevance and status flags, and orders by score descending with
// created_at-then-ID tie-breaks for stable pagination.
func (s *Store) SearchMemories(ctx context.Context, workspaceID string, query []float32, opts storage.SearchOptions) ([]storage.ScoredMemory, error) {
	opts.Normalize()

	if len(query) == 0 && opts.QueryText == "" {
		return nil, fmt.Errorf("%w: query embedding or text is required", storage.ErrInvalidInput)
	}

	scores := make(map[string]float64)

	if len(query) > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, embedding, dimension FROM memories
			WHERE workspace_id = ? AND embedding IS NOT NULL
			ORDER BY created_at DESC LIMIT ?`,
			workspaceID, searchMaxCandidates,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to load search candidates: %w", err)
		}
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
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: search candidate rows: %w", err)
		}
		rows.Close()
	}

	// Union full-text matches: lexical hits get a fixed boost on top of
	// their vector score, or stand alone at the boost value when they have
	// no embedding. FTS never lowers a vector score.
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

	// Hydrate and filter by status. Over-fetching is bounded by the
	// candidate cap; hydration stops once the limit is satisfied.
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

	// Deterministic ordering: score desc, then most-recent created_at,
	// then ID ascending.
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

// getAnyStatus fetches a memory regardless of soft-delete state; the search
// path applies its own status filtering from the caller's flags.
func (s *Store) getAnyStatus(ctx context.Context, workspaceID, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND workspace_id = ?`,
		id, workspaceID,
	)
	return scanMemory(row)
}

// fullTextMatch returns the IDs of memories matching the sanitized FTS query.
func (s *Store) fullTextMatch(ctx context.Context, workspaceID, queryText string) ([]string, error) {
	ftsQuery := sanitizeFTSQuery(queryText)
	if ftsQuery == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? AND m.workspace_id = ?
		ORDER BY rank LIMIT ?`,
		ftsQuery, workspaceID, searchMaxCandidates,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FTS MATCH %q: %w", queryText, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: FTS scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: FTS rows: %w", err)
	}
	return ids, nil
}

// matchesTypes reports whether t passes the optional type filter.
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

// sanitizeFTSQuery converts free-form user input into a safe FTS5 MATCH
// expression. Only bareword runes (ASCII letters, digits, underscore, and
// anything beyond ASCII) survive; every other character splits terms, so
// punctuation can never reach FTS5 as operator syntax. Each remaining word
// becomes a prefix term joined with OR for better recall.
func sanitizeFTSQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r >= utf8.RuneSelf:
			return false
		}
		return true
	})

	var terms []string
	for _, w := range words {
		if len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	return strings.Join(terms, " OR ")
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
		return nil, fmt.Errorf("sqlite: embedding blob length %d does not match dimension %d", len(blob), dim)
	}
	emb := make([]float32, dim)
	for i := range emb {
		emb[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return emb, nil
}
