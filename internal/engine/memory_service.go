package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/llm"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// RecallMode selects the retrieval strategy.
type RecallMode string

const (
	// ModeRAG ranks by vector similarity only.
	ModeRAG RecallMode = "rag"

	// ModeLLM additionally filters candidates through an LLM relevance
	// judgment.
	ModeLLM RecallMode = "llm"

	// ModeHybrid runs RAG first and escalates to the LLM pass only when the
	// RAG result set looks insufficient.
	ModeHybrid RecallMode = "hybrid"
)

// RememberInput carries a new piece of content for the write path.
type RememberInput struct {
	TenantID   string
	Content    string
	Type       types.MemoryType
	Subtype    types.MemorySubtype
	Importance float64
	Tags       []string
}

// RecallInput parameterizes a retrieval request. IncludeGlobal defaults to
// true; set it to false explicitly to search only the target workspace.
type RecallInput struct {
	Query         string
	Mode          RecallMode
	Limit         int
	MinRelevance  float64
	IncludeGlobal *bool
	Types         []types.MemoryType
}

// RecalledMemory is one ranked recall hit. Score includes the scope boost.
type RecalledMemory struct {
	Memory types.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// RecallResult is the ranked outcome of a recall request.
type RecallResult struct {
	Memories []RecalledMemory `json:"memories"`
	Count    int              `json:"count"`
	Mode     RecallMode       `json:"mode"`

	// Escalated is set when a hybrid request fell through to the LLM pass.
	Escalated bool `json:"escalated,omitempty"`
}

// ReflectResult is a free-text synthesis over recalled memories.
type ReflectResult struct {
	Reflection string   `json:"reflection"`
	SourceIDs  []string `json:"source_ids"`
}

// MemoryService composes deduplication, tiering, contradiction detection,
// and ontology classification into the remember/recall/reflect pipeline.
type MemoryService struct {
	store    storage.Backend
	embedder llm.EmbeddingProvider
	provider llm.Provider

	dedup          *Deduplicator
	contradictions *ContradictionService
	ontology       *OntologyService
	tiering        *TieringService

	cfg config.RecallConfig

	// wsLocks serializes the dedup-then-write section per workspace so two
	// concurrent remember calls with identical content cannot both CREATE.
	wsLocks sync.Map // workspaceID -> *sync.Mutex

	// Enrich toggles the best-effort post-write enrichment (tier
	// generation, contradiction scan, association classification).
	Enrich bool
}

// NewMemoryService wires the pipeline. Provider and embedder may be nil;
// operations that strictly require one fail with ErrNoProvider, the rest
// degrade per service.
func NewMemoryService(store storage.Backend, embedder llm.EmbeddingProvider, provider llm.Provider, cfg config.RecallConfig) *MemoryService {
	return &MemoryService{
		store:          store,
		embedder:       embedder,
		provider:       provider,
		dedup:          NewDeduplicator(store),
		contradictions: NewContradictionService(store),
		ontology:       NewOntologyService(provider),
		tiering:        NewTieringService(provider),
		cfg:            cfg,
		Enrich:         true,
	}
}

func (s *MemoryService) lockWorkspace(workspaceID string) *sync.Mutex {
	mu, _ := s.wsLocks.LoadOrStore(workspaceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Remember runs the write path: hash and embed the content, consult the
// deduplicator, then create, update, or return the existing memory. The
// dedup decision and the write happen under a per-workspace lock so the
// decision cannot go stale between lookup and write.
func (s *MemoryService) Remember(ctx context.Context, workspaceID string, input RememberInput) (*types.Memory, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}

	hash := storage.ContentHash(input.Content)

	var embedding []float32
	if s.embedder != nil {
		var err error
		embedding, err = s.embedder.Embed(ctx, input.Content)
		if err != nil {
			// Hash-only dedup still works without an embedding.
			log.Printf("engine: embedding failed, degrading to hash-only dedup: %v", err)
			embedding = nil
		}
	}

	mu := s.lockWorkspace(workspaceID)
	mu.Lock()
	memory, created, err := s.writeDeduped(ctx, workspaceID, input, hash, embedding)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	if created && s.Enrich {
		s.enrich(ctx, memory, embedding)
	}
	return memory, nil
}

func (s *MemoryService) writeDeduped(ctx context.Context, workspaceID string, input RememberInput, hash string, embedding []float32) (*types.Memory, bool, error) {
	decision, err := s.dedup.Check(ctx, workspaceID, input.Content, hash, embedding)
	if err != nil {
		return nil, false, err
	}

	switch decision.Action {
	case DedupSkip:
		existing, err := s.store.GetMemory(ctx, workspaceID, decision.ExistingID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil

	case DedupUpdate:
		patch := storage.MemoryPatch{
			Content:   &input.Content,
			Embedding: embedding,
		}
		if input.Importance > 0 {
			patch.Importance = &input.Importance
		}
		if len(input.Tags) > 0 {
			patch.Tags = input.Tags
		}
		updated, err := s.store.UpdateMemory(ctx, workspaceID, decision.ExistingID, patch)
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil

	default:
		memory, err := s.store.CreateMemory(ctx, workspaceID, storage.CreateMemoryInput{
			TenantID:    input.TenantID,
			Content:     input.Content,
			ContentHash: hash,
			Embedding:   embedding,
			Type:        input.Type,
			Subtype:     input.Subtype,
			Importance:  input.Importance,
			Tags:        input.Tags,
		})
		if err != nil {
			return nil, false, err
		}
		return memory, true, nil
	}
}

// enrich runs the best-effort post-write steps. Failures are logged, never
// surfaced; the memory is already durable at this point.
func (s *MemoryService) enrich(ctx context.Context, memory *types.Memory, embedding []float32) {
	abstract, overview := s.tiering.GenerateTiers(ctx, memory.Content)
	if abstract != "" || overview != "" {
		patch := storage.MemoryPatch{Abstract: &abstract, Overview: &overview}
		if updated, err := s.store.UpdateMemory(ctx, memory.WorkspaceID, memory.ID, patch); err != nil {
			log.Printf("engine: tier update failed for %s: %v", memory.ID, err)
		} else {
			*memory = *updated
		}
	}

	if len(embedding) == 0 {
		return
	}

	scored, err := s.store.SearchMemories(ctx, memory.WorkspaceID, embedding, storage.SearchOptions{Limit: 5})
	if err != nil {
		log.Printf("engine: enrichment search failed for %s: %v", memory.ID, err)
		return
	}

	neighbors := make([]*types.Memory, 0, len(scored))
	for i := range scored {
		if scored[i].Memory.ID != memory.ID {
			neighbors = append(neighbors, &scored[i].Memory)
		}
	}
	if len(neighbors) == 0 {
		return
	}

	if _, err := s.contradictions.ScanAgainst(ctx, memory, neighbors); err != nil {
		log.Printf("engine: contradiction scan failed for %s: %v", memory.ID, err)
	}

	closest := neighbors[0]
	relationship, _ := s.ontology.Classify(ctx, memory.Content, closest.Content)
	if _, err := s.store.CreateAssociation(ctx, &types.Association{
		SourceID:     memory.ID,
		TargetID:     closest.ID,
		Relationship: relationship,
	}); err != nil {
		log.Printf("engine: association failed for %s -> %s: %v", memory.ID, closest.ID, err)
	}
}

// Recall retrieves the most relevant memories for a query. The target
// workspace is always searched; the global workspace is merged in unless
// disabled or the target is global itself. Workspace-native hits receive a
// fixed additive boost so they outrank global hits at equal raw similarity.
func (s *MemoryService) Recall(ctx context.Context, workspaceID string, input RecallInput) (*RecallResult, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("recall: %w", llm.ErrNoProvider)
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}

	mode := input.Mode
	if mode == "" {
		mode = ModeRAG
	}
	limit := input.Limit
	if limit < 1 {
		limit = s.cfg.DefaultLimit
	}

	queryEmbedding, err := s.embedder.Embed(ctx, input.Query)
	if err != nil {
		return nil, fmt.Errorf("recall: query embedding failed: %w", err)
	}

	opts := storage.SearchOptions{
		Limit:     limit,
		QueryText: input.Query,
		Types:     input.Types,
	}

	scored, err := s.store.SearchMemories(ctx, workspaceID, queryEmbedding, opts)
	if err != nil {
		return nil, err
	}

	includeGlobal := input.IncludeGlobal == nil || *input.IncludeGlobal
	if includeGlobal && workspaceID != types.GlobalWorkspaceID {
		globalScored, err := s.store.SearchMemories(ctx, types.GlobalWorkspaceID, queryEmbedding, opts)
		if err != nil {
			return nil, err
		}
		scored = append(scored, globalScored...)
	}

	ranked := s.rank(scored, workspaceID, input.MinRelevance, limit)

	result := &RecallResult{Mode: mode}
	switch mode {
	case ModeLLM:
		result.Memories = s.llmFilter(ctx, input.Query, ranked)
	case ModeHybrid:
		if s.needsEscalation(ranked) {
			result.Memories = s.llmFilter(ctx, input.Query, ranked)
			result.Escalated = true
		} else {
			result.Memories = ranked
		}
	default:
		result.Memories = ranked
	}
	result.Count = len(result.Memories)

	// Touch under each memory's own workspace: global-pool hits live in
	// _global, not the caller's workspace.
	byWorkspace := make(map[string][]string)
	for _, m := range result.Memories {
		byWorkspace[m.Memory.WorkspaceID] = append(byWorkspace[m.Memory.WorkspaceID], m.Memory.ID)
	}
	for ws, ids := range byWorkspace {
		if err := s.store.TouchMemories(ctx, ws, ids); err != nil {
			log.Printf("engine: access tracking failed for workspace %s: %v", ws, err)
		}
	}
	return result, nil
}

// rank applies the scope boost, drops sub-threshold hits, sorts, and
// truncates. Ties break native-before-global, then newest first, then by ID.
func (s *MemoryService) rank(scored []storage.ScoredMemory, workspaceID string, minRelevance float64, limit int) []RecalledMemory {
	hits := make([]RecalledMemory, 0, len(scored))
	for _, sm := range scored {
		score := sm.Score
		if sm.Memory.WorkspaceID == workspaceID && workspaceID != types.GlobalWorkspaceID {
			score += s.cfg.ScopeBoost
		}
		if score < minRelevance {
			continue
		}
		hits = append(hits, RecalledMemory{Memory: sm.Memory, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		iNative := hits[i].Memory.WorkspaceID == workspaceID
		jNative := hits[j].Memory.WorkspaceID == workspaceID
		if iNative != jNative {
			return iNative
		}
		if !hits[i].Memory.CreatedAt.Equal(hits[j].Memory.CreatedAt) {
			return hits[i].Memory.CreatedAt.After(hits[j].Memory.CreatedAt)
		}
		return hits[i].Memory.ID < hits[j].Memory.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// needsEscalation reports whether a hybrid request should fall through to
// the LLM pass: too few hits, or every hit scoring below the secondary
// threshold.
func (s *MemoryService) needsEscalation(hits []RecalledMemory) bool {
	if len(hits) < s.cfg.HybridFloor {
		return true
	}
	for _, h := range hits {
		if h.Score >= s.cfg.HybridEscalateScore {
			return false
		}
	}
	return true
}

// llmFilter asks the provider which candidates actually answer the query
// and keeps those, preserving rank order. Tolerant of messy output; any
// provider or parse failure returns the candidates unchanged.
func (s *MemoryService) llmFilter(ctx context.Context, query string, hits []RecalledMemory) []RecalledMemory {
	if s.provider == nil || len(hits) == 0 {
		return hits
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidate memories:\n", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, h.Memory.Content)
	}
	b.WriteString("\nList the numbers of the memories relevant to the query, comma separated. If none are relevant, respond with \"none\".")

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		MaxTokens: 100,
	})
	if err != nil {
		log.Printf("engine: llm relevance pass failed: %v", err)
		return hits
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	if answer == "none" {
		return []RecalledMemory{}
	}

	keep := map[int]bool{}
	found := false
	for _, field := range strings.FieldsFunc(answer, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if n, err := strconv.Atoi(field); err == nil && n >= 1 && n <= len(hits) {
			keep[n-1] = true
			found = true
		}
	}
	if !found {
		return hits
	}

	filtered := make([]RecalledMemory, 0, len(keep))
	for i, h := range hits {
		if keep[i] {
			filtered = append(filtered, h)
		}
	}
	return filtered
}

const reflectCandidates = 8

// Reflect recalls the top memories for a query and synthesizes them into a
// single free-text reflection. Requires a completion provider.
func (s *MemoryService) Reflect(ctx context.Context, workspaceID, query string, maxTokens int) (*ReflectResult, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("reflect: %w", llm.ErrNoProvider)
	}
	if maxTokens < 1 {
		maxTokens = tierMaxTokens
	}

	recalled, err := s.Recall(ctx, workspaceID, RecallInput{
		Query: query,
		Mode:  ModeRAG,
		Limit: reflectCandidates,
	})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Reflect on the following memories and answer the question.\n\nMemories:\n")
	ids := make([]string, 0, len(recalled.Memories))
	for _, m := range recalled.Memories {
		fmt.Fprintf(&b, "- %s\n", m.Memory.Content)
		ids = append(ids, m.Memory.ID)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", query)

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("reflect: synthesis failed: %w", err)
	}

	return &ReflectResult{Reflection: resp.Content, SourceIDs: ids}, nil
}
