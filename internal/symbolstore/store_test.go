package symbolstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReplaceFileThenLoadAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	syms := []model.Symbol{
		{FilePath: "a.go", Name: "Foo", StartLine: 10, EndLine: 20, Kind: "function", Language: "go"},
		{FilePath: "a.go", Name: "Bar", StartLine: 30, EndLine: 40, Kind: "method", Parent: "Foo", Language: "go"},
	}
	require.NoError(t, s.ReplaceFile(ctx, "a.go", syms))

	byFile, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, byFile["a.go"], 2)
	assert.Equal(t, "Foo", byFile["a.go"][0].Name)
	assert.Equal(t, "Bar", byFile["a.go"][1].Name)
	assert.Equal(t, "Foo", byFile["a.go"][1].Parent)
}

func TestReplaceFileIsIdempotentOnResubmit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	syms := []model.Symbol{{FilePath: "a.go", Name: "Foo", StartLine: 10, Kind: "function"}}
	require.NoError(t, s.ReplaceFile(ctx, "a.go", syms))
	require.NoError(t, s.ReplaceFile(ctx, "a.go", syms))

	byFile, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, byFile["a.go"], 1)
}

func TestReplaceFileDropsShrunkSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx, "a.go", []model.Symbol{
		{FilePath: "a.go", Name: "Foo", StartLine: 1, Kind: "function"},
		{FilePath: "a.go", Name: "Bar", StartLine: 2, Kind: "function"},
	}))
	require.NoError(t, s.ReplaceFile(ctx, "a.go", []model.Symbol{
		{FilePath: "a.go", Name: "Foo", StartLine: 1, Kind: "function"},
	}))

	byFile, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, byFile["a.go"], 1)
	assert.Equal(t, "Foo", byFile["a.go"][0].Name)
}

func TestDeleteFileRemovesAllItsSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFile(ctx, "a.go", []model.Symbol{{FilePath: "a.go", Name: "Foo", StartLine: 1, Kind: "function"}}))
	require.NoError(t, s.ReplaceFile(ctx, "b.go", []model.Symbol{{FilePath: "b.go", Name: "Baz", StartLine: 1, Kind: "function"}}))

	require.NoError(t, s.DeleteFile(ctx, "a.go"))

	byFile, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, byFile, "a.go")
	assert.Contains(t, byFile, "b.go")
}

func TestOpenPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.ReplaceFile(context.Background(), "a.go", []model.Symbol{
		{FilePath: "a.go", Name: "Foo", StartLine: 1, Kind: "function"},
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	byFile, err := s2.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, byFile["a.go"], 1)
}
