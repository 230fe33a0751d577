package embedcache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		c.calls++
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dim }
func (c *countingEmbedder) ModelName() string { return "counting-test" }

func TestEmbedCachesRepeatedQuery(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	cached := New(inner, 10, time.Minute)

	_, err := cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestEmbedBatchOnlyCallsInnerForMisses(t *testing.T) {
	inner := &countingEmbedder{dim: 1}
	cached := New(inner, 10, time.Minute)

	_, err := cached.Embed(context.Background(), "cached")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(context.Background(), []string{"cached", "fresh"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, inner.calls) // 1 for initial Embed, 1 for "fresh"
}

type nanEmbedder struct{}

func (nanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(math.NaN())}, nil
}
func (nanEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (nanEmbedder) Dimensions() int    { return 1 }
func (nanEmbedder) ModelName() string  { return "nan-test" }

func TestEmbedDoesNotFilterNaN(t *testing.T) {
	cached := New(nanEmbedder{}, 10, time.Minute)
	vec, err := cached.Embed(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, vec, 1)
	assert.True(t, math.IsNaN(float64(vec[0])))
}
