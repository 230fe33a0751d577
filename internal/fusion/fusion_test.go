package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/model"
)

func TestFuseEmptySourcesReturnsEmptyNotNil(t *testing.T) {
	f := New(MethodRRF, 0)
	results := f.Fuse(nil)
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuseBoostsDocumentFoundByMultipleSources(t *testing.T) {
	f := New(MethodRRF, 60)

	lexical := Source{MatchType: model.MatchExact, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go", Score: 5},
		{ChunkID: "b.go:0", FilePath: "b.go", Score: 4},
	}}
	semantic := Source{MatchType: model.MatchSemantic, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go", Score: 0.9},
	}}

	results := f.Fuse([]Source{lexical, semantic})
	require.Len(t, results, 2)
	assert.Equal(t, "a.go:0", results[0].ChunkID)
	assert.Equal(t, 1.0, results[0].Score) // top score normalized to 1.0
}

func TestFuseTieBreaksByMatchTypePriority(t *testing.T) {
	f := New(MethodRRF, 60)

	// Both chunks tie at rank 1 in their own single-hit source with equal
	// weight, producing identical RRF scores; match type must break the
	// tie (Symbol outranks Statistical).
	symbolSrc := Source{MatchType: model.MatchSymbol, Hits: []Hit{
		{ChunkID: "z.go:0", FilePath: "z.go"},
	}}
	statSrc := Source{MatchType: model.MatchStatistical, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go"},
	}}

	results := f.Fuse([]Source{symbolSrc, statSrc})
	require.Len(t, results, 2)
	assert.Equal(t, "z.go:0", results[0].ChunkID)
}

func TestCompareTieBreaksByFilePathThenStartLine(t *testing.T) {
	// Equal score and match type: file path breaks the tie first.
	assert.True(t, compare(
		Result{FilePath: "a.go", StartLine: 5, Score: 1, MatchType: model.MatchExact},
		Result{FilePath: "b.go", StartLine: 1, Score: 1, MatchType: model.MatchExact},
	))
	// Equal score, match type, and file path: start line breaks the tie.
	assert.True(t, compare(
		Result{FilePath: "a.go", StartLine: 1, Score: 1, MatchType: model.MatchExact},
		Result{FilePath: "a.go", StartLine: 2, Score: 1, MatchType: model.MatchExact},
	))
}

func TestFuseWeightedSumNormalizesPerSourceBeforeCombining(t *testing.T) {
	f := New(MethodWeightedSum, 0)

	src := Source{MatchType: model.MatchExact, Weight: 1, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go", Score: 10},
		{ChunkID: "b.go:0", FilePath: "b.go", Score: 5},
	}}

	results := f.Fuse([]Source{src})
	require.Len(t, results, 2)
	assert.Equal(t, "a.go:0", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.InDelta(t, 0.5, results[1].Score, 0.001)
}

func TestFuseMergesMatchedTermsAndSymbolAcrossSources(t *testing.T) {
	f := New(MethodRRF, 60)

	lexical := Source{MatchType: model.MatchExact, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go", MatchedTerms: []string{"calculate"}},
	}}
	symbolSrc := Source{MatchType: model.MatchSymbol, Hits: []Hit{
		{ChunkID: "a.go:0", FilePath: "a.go", Symbol: "calculateTotal"},
	}}

	results := f.Fuse([]Source{lexical, symbolSrc})
	require.Len(t, results, 1)
	assert.Equal(t, "calculateTotal", results[0].Symbol)
	assert.Equal(t, []string{"calculate"}, results[0].MatchedTerms)
	assert.Len(t, results[0].SourceRanks, 2)
}
