package bm25

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/model"
)

func tok(text string, kind model.TokenKind, pos int) model.Token {
	return model.Token{Text: text, Kind: kind, Position: pos}
}

func TestSearchRanksMoreFrequentTermHigher(t *testing.T) {
	e := New(Config{})

	require.NoError(t, e.AddDocument(Document{
		ID: "doc1",
		Tokens: []model.Token{
			tok("calculate", model.TokenIdentifier, 0),
			tok("sum", model.TokenIdentifier, 1),
		},
	}))
	require.NoError(t, e.AddDocument(Document{
		ID: "doc2",
		Tokens: []model.Token{
			tok("calculate", model.TokenIdentifier, 0),
			tok("calculate", model.TokenIdentifier, 1),
			tok("total", model.TokenIdentifier, 2),
		},
	}))

	results, err := e.Search("calculate", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc2", results[0].DocID)
}

func TestIncrementalAddUpdatesStatsWithoutRebuild(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.AddDocument(Document{ID: "doc1", Tokens: []model.Token{tok("function", model.TokenIdentifier, 0)}}))
	require.NoError(t, e.AddDocument(Document{ID: "doc2", Tokens: []model.Token{tok("function", model.TokenIdentifier, 0)}}))

	results, err := e.Search("function", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.NoError(t, e.AddDocument(Document{ID: "doc3", Tokens: []model.Token{tok("function", model.TokenIdentifier, 0)}}))
	results, err = e.Search("function", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 3, e.Stats().TotalDocuments)
}

func TestRareTermHasHigherIDFThanCommonTerm(t *testing.T) {
	e := New(Config{})
	for i := 0; i < 10; i++ {
		require.NoError(t, e.AddDocument(Document{
			ID:     docID(i),
			Tokens: []model.Token{tok("universal", model.TokenIdentifier, 0)},
		}))
	}
	require.NoError(t, e.AddDocument(Document{ID: "rare-doc", Tokens: []model.Token{tok("unique", model.TokenIdentifier, 0)}}))

	universalIDF := e.InverseDocumentFrequency("universal")
	uniqueIDF := e.InverseDocumentFrequency("unique")
	assert.Greater(t, uniqueIDF, universalIDF)
}

func TestRemoveDocumentUpdatesPostings(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.AddDocument(Document{ID: "doc1", Tokens: []model.Token{tok("foo", model.TokenIdentifier, 0)}}))
	e.RemoveDocument("doc1")

	results, err := e.Search("foo", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, e.DocumentFrequency("foo"))
}

func TestAddDocumentRejectsDuplicateID(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.AddDocument(Document{ID: "doc1", Tokens: []model.Token{tok("foo", model.TokenIdentifier, 0)}}))

	err := e.AddDocument(Document{ID: "doc1", Tokens: []model.Token{tok("bar", model.TokenIdentifier, 0)}})
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidInput, errs.KindOf(err))

	// the original document must be untouched by the rejected add
	results, searchErr := e.Search("foo", 10)
	require.NoError(t, searchErr)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocID)
}

func TestEmptyQueryReturnsNoResults(t *testing.T) {
	e := New(Config{})
	require.NoError(t, e.AddDocument(Document{ID: "doc1", Tokens: []model.Token{tok("foo", model.TokenIdentifier, 0)}}))
	results, err := e.Search("", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreSnapshotAndRestore(t *testing.T) {
	store, err := OpenStore("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	doc := Document{
		ID: "a.go:0", FilePath: "a.go", ChunkIndex: 0, StartLine: 1, EndLine: 10, Language: "go",
		Tokens: []model.Token{tok("widget", model.TokenIdentifier, 0)},
	}
	require.NoError(t, store.Snapshot(ctx, doc))

	restored := New(Config{})
	require.NoError(t, store.Restore(ctx, restored))

	results, err := restored.Search("widget", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.go:0", results[0].DocID)
}

func docID(i int) string {
	return "common-" + string(rune('a'+i))
}
