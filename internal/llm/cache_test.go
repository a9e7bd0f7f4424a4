package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records every call so tests can assert cache behaviour.
type countingEmbedder struct {
	vectors    map[string][]float32
	embedCalls int
	batchCalls [][]string
	err        error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.embedCalls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vectors[text], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.batchCalls = append(c.batchCalls, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.vectors[t]
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int { return 3 }
func (c *countingEmbedder) Model() string  { return "counting-test" }

func TestCachedEmbedderServesHits(t *testing.T) {
	inner := &countingEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
	}}
	cached, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("provider down")}
	cached, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "alpha")
	require.Error(t, err)
	_, err = cached.Embed(ctx, "alpha")
	require.Error(t, err)

	assert.Equal(t, 2, inner.embedCalls)
}

func TestCachedEmbedderBatchDelegatesOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
		"gamma": {0, 0, 1},
	}}
	cached, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "beta")
	require.NoError(t, err)

	vectors, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// Results come back in input order even though beta was a cache hit.
	assert.Equal(t, []float32{1, 0, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1, 0}, vectors[1])
	assert.Equal(t, []float32{0, 0, 1}, vectors[2])

	require.Len(t, inner.batchCalls, 1)
	assert.Equal(t, []string{"alpha", "gamma"}, inner.batchCalls[0])
}

func TestCachedEmbedderBatchAllHits(t *testing.T) {
	inner := &countingEmbedder{vectors: map[string][]float32{
		"alpha": {1, 0, 0},
	}}
	cached, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	vectors, err := cached.EmbedBatch(ctx, []string{"alpha", "alpha"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Empty(t, inner.batchCalls)
}

func TestCachedEmbedderDefaultsSize(t *testing.T) {
	inner := &countingEmbedder{vectors: map[string][]float32{}}
	cached, err := NewCachedEmbedder(inner, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.Dimension())
	assert.Equal(t, "counting-test", cached.Model())
}
