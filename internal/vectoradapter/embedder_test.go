package vectoradapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "func calculateTotal(items []Item) int")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "func calculateTotal(items []Item) int")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
}

func TestHashEmbedderSimilarTextsAreCloserThanUnrelated(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "func calculateTotal(items []Item) int")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "func calculateTotalPrice(items []Item) int")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "func renderHTMLTemplate(w http.ResponseWriter)")
	require.NoError(t, err)

	simAB := CosineSimilarity(a, b)
	simAC := CosineSimilarity(a, c)
	assert.Greater(t, simAB, simAC)
}

func TestHashEmbedderEmptyTextReturnsZeroVector(t *testing.T) {
	e := NewHashEmbedder(8)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestHashEmbedderBatchMatchesIndividualEmbed(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()
	texts := []string{"alpha beta", "gamma delta"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}
