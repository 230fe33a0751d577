package vectoradapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchReturnsNearestByID(t *testing.T) {
	store, err := New(Config{Dimensions: 3})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestAddReplacesExistingIDViaLazyDeletion(t *testing.T) {
	store, err := New(Config{Dimensions: 2})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"x"}, [][]float32{{1, 0}}))
	require.NoError(t, store.Add(ctx, []string{"x"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, store.Count())
	stats := store.Stats()
	assert.Equal(t, 2, stats.GraphNodes)
	assert.Equal(t, 1, stats.Orphans)
}

func TestDeleteOrphansWithoutShrinkingGraph(t *testing.T) {
	store, err := New(Config{Dimensions: 2})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"only"}, [][]float32{{1, 1}}))
	require.NoError(t, store.Delete(ctx, []string{"only"}))

	assert.Equal(t, 0, store.Count())
	assert.Equal(t, 1, store.Stats().GraphNodes)
	results, err := store.Search(ctx, []float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	store, err := New(Config{Dimensions: 2})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, store.Save(path))

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".meta")
	require.NoError(t, err)

	restored, err := New(Config{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())
	results, err := restored.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestDimensionMismatchIsRejected(t *testing.T) {
	store, err := New(Config{Dimensions: 3})
	require.NoError(t, err)

	err = store.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	assert.Error(t, err)
}
