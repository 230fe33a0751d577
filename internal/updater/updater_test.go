package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/bm25"
	"github.com/codesearch/codesearch/internal/chunker"
	"github.com/codesearch/codesearch/internal/embedcache"
	"github.com/codesearch/codesearch/internal/invertedindex"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/symbols"
	"github.com/codesearch/codesearch/internal/vectoradapter"
)

func newTestUpdater(t *testing.T) (*Updater, *invertedindex.Index, *vectoradapter.Store) {
	t.Helper()

	inverted, err := invertedindex.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = inverted.Close() })

	vectors, err := vectoradapter.New(vectoradapter.Config{Dimensions: 64})
	require.NoError(t, err)

	idx := symbols.NewIndexer()
	t.Cleanup(idx.Close)

	u, err := New(Config{
		Chunker:  chunker.New(chunker.DefaultOptions()),
		Symbols:  idx,
		BM25:     bm25.New(bm25.Config{}),
		Inverted: inverted,
		Vectors:  vectors,
		Embedder: embedcache.New(vectoradapter.NewHashEmbedder(64), 100, 0),
	})
	require.NoError(t, err)
	return u, inverted, vectors
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestApplyUpsertIndexesAcrossAllBackends(t *testing.T) {
	u, inverted, vectors := newTestUpdater(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n\nfunc calculateTotal(items []int) int {\n\treturn 0\n}\n")

	ctx := context.Background()
	err := u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated})
	require.NoError(t, err)

	stats := u.Stats()
	assert.Equal(t, int64(1), stats.FilesIndexed)
	assert.Greater(t, stats.ChunksTotal, int64(0))

	hits, err := inverted.Search(ctx, "calculateTotal", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	assert.Greater(t, vectors.Count(), 0)
	assert.NotEmpty(t, u.SymbolsForFile(path))
}

func TestApplyUpsertTruncatesOversizedDocumentTokens(t *testing.T) {
	inverted, err := invertedindex.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = inverted.Close() })

	idx := symbols.NewIndexer()
	t.Cleanup(idx.Close)

	engine := bm25.New(bm25.Config{})
	u, err := New(Config{
		Chunker:              chunker.New(chunker.Options{LinesPerChunk: 10000, OverlapLines: 0}),
		Symbols:              idx,
		BM25:                 engine,
		Inverted:             inverted,
		MaxTokensPerDocument: 5,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf("var uniqueIdentifierNumber%d int", i))
	}
	path := writeFile(t, dir, "big.go", strings.Join(lines, "\n")+"\n")

	ctx := context.Background()
	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated}))

	ids := engine.DocumentIDs()
	require.NotEmpty(t, ids)
	doc, ok := engine.Document(ids[0])
	require.True(t, ok)
	assert.LessOrEqual(t, len(doc.Tokens), 5)
}

func TestChunkReturnsIndexedChunkByID(t *testing.T) {
	u, _, _ := newTestUpdater(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\nfunc a() {}\n")

	ctx := context.Background()
	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated}))

	chunk, ok := u.Chunk(path + ":0")
	require.True(t, ok)
	assert.Equal(t, path, chunk.FilePath)

	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeDeleted}))
	_, ok = u.Chunk(path + ":0")
	assert.False(t, ok)
}

func TestApplyUpsertTwiceDoesNotDuplicateChunks(t *testing.T) {
	u, _, vectors := newTestUpdater(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\nfunc a() {}\n")

	ctx := context.Background()
	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated}))
	firstCount := vectors.Count()

	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeModified}))
	assert.Equal(t, firstCount, vectors.Count())
}

func TestApplyDeleteRemovesFromAllBackends(t *testing.T) {
	u, inverted, vectors := newTestUpdater(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\nfunc uniqueTargetFn() {}\n")

	ctx := context.Background()
	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated}))
	require.Greater(t, vectors.Count(), 0)

	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeDeleted}))

	assert.Equal(t, 0, vectors.Count())
	hits, err := inverted.Search(ctx, "uniqueTargetFn", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, u.SymbolsForFile(path))
}

func TestApplyUpsertOnDeletedFileFallsBackToDelete(t *testing.T) {
	u, _, vectors := newTestUpdater(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.go", "package main\nfunc f() {}\n")

	ctx := context.Background()
	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeCreated}))
	require.NoError(t, os.Remove(path))

	require.NoError(t, u.Apply(ctx, model.FileChange{FilePath: path, Kind: model.ChangeModified}))
	assert.Equal(t, 0, vectors.Count())
}

func TestApplyBatchTreatsMissingFileAsDeleteNotFailure(t *testing.T) {
	u, _, _ := newTestUpdater(t)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.go", "package main\nfunc ok() {}\n")
	missing := filepath.Join(dir, "does-not-exist.go")

	err := u.ApplyBatch(context.Background(), []model.FileChange{
		{FilePath: missing, Kind: model.ChangeModified},
		{FilePath: good, Kind: model.ChangeCreated},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Stats().FilesIndexed)
}
