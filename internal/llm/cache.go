package llm

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an EmbeddingProvider with an LRU cache keyed by the
// input text. Embeddings are deterministic per model, so caching is safe
// and avoids repeated provider calls for the dedup and recall hot paths.
type CachedEmbedder struct {
	inner EmbeddingProvider
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache of the given size. Size
// defaults to 4096 entries when non-positive.
func NewCachedEmbedder(inner EmbeddingProvider, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector when present, otherwise delegates.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and delegates only the misses, then
// stitches results back into input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(text); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			results[missIdx[j]] = vec
			c.cache.Add(missTexts[j], vec)
		}
	}
	return results, nil
}

// Dimension returns the wrapped provider's dimensionality.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Model returns the wrapped provider's model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }
