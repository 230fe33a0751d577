package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/bm25"
	"github.com/codesearch/codesearch/internal/invertedindex"
	"github.com/codesearch/codesearch/internal/searcher"
	"github.com/codesearch/codesearch/internal/tokenizer"
)

func newSearcherForValidation(t *testing.T) *searcher.Searcher {
	t.Helper()
	engine := bm25.New(bm25.Config{})
	require.NoError(t, engine.AddDocument(bm25.Document{
		ID: "auth.rs:0", FilePath: "auth.rs",
		Tokens: tokenizer.Tokenize("pub fn authenticate_user(u: &str) {}"),
	}))
	require.NoError(t, engine.AddDocument(bm25.Document{
		ID: "unrelated.rs:0", FilePath: "unrelated.rs",
		Tokens: tokenizer.Tokenize("pub fn render_widget() {}"),
	}))

	inverted, err := invertedindex.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { inverted.Close() })
	require.NoError(t, inverted.Index(context.Background(), []invertedindex.Document{
		{ID: "auth.rs:0", Content: "pub fn authenticate_user(u: &str) {}", FilePath: "auth.rs"},
	}))

	s, err := searcher.New(searcher.Config{BM25: engine, Inverted: inverted})
	require.NoError(t, err)
	return s
}

func TestLoadQuerySpecsParsesYAML(t *testing.T) {
	data := []byte(`
queries:
  - id: S1
    name: exact identifier search
    query: authenticate_user
    expected: ["auth.rs"]
`)
	specs, err := LoadQuerySpecs(data)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "S1", specs[0].ID)
	assert.Equal(t, []string{"auth.rs"}, specs[0].Expected)
}

func TestRunQueryPassesWhenExpectedFileIsReturned(t *testing.T) {
	v := NewValidator(newSearcherForValidation(t), 10)

	result := v.RunQuery(context.Background(), QuerySpec{
		ID: "S1", Query: "authenticate_user", Expected: []string{"auth.rs"},
	})

	assert.True(t, result.Passed)
	assert.Equal(t, 0, result.MatchedAt)
	assert.Empty(t, result.Error)
}

func TestRunQueryFailsWhenExpectedFileIsAbsent(t *testing.T) {
	v := NewValidator(newSearcherForValidation(t), 10)

	result := v.RunQuery(context.Background(), QuerySpec{
		ID: "missing", Query: "authenticate_user", Expected: []string{"never_indexed.rs"},
	})

	assert.False(t, result.Passed)
	assert.Equal(t, -1, result.MatchedAt)
}

func TestRunQueryWithNoExpectedIsANegativeTestThatOnlyNeedsNoError(t *testing.T) {
	v := NewValidator(newSearcherForValidation(t), 10)

	result := v.RunQuery(context.Background(), QuerySpec{ID: "neg", Query: "xyzzy_not_present"})
	assert.True(t, result.Passed)
}

func TestRunAllAggregatesPassCount(t *testing.T) {
	v := NewValidator(newSearcherForValidation(t), 10)

	summary := v.RunAll(context.Background(), []QuerySpec{
		{ID: "S1", Query: "authenticate_user", Expected: []string{"auth.rs"}},
		{ID: "miss", Query: "authenticate_user", Expected: []string{"never_indexed.rs"}},
	})

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Pass)
	require.Len(t, summary.Results, 2)
}

func TestCheckExpectedMatchesSubstringAndPrefix(t *testing.T) {
	ok, idx := checkExpected([]string{"internal/search/engine.go", "main.go"}, []string{"internal/search"})
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	ok, idx = checkExpected([]string{"main.go"}, []string{"nowhere.go"})
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}
