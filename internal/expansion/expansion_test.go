package expansion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearch/codesearch/internal/fusion"
	"github.com/codesearch/codesearch/internal/model"
)

type fakeLookup struct {
	chunks map[string]model.Chunk
}

func (f fakeLookup) Chunk(id string) (model.Chunk, bool) {
	c, ok := f.chunks[id]
	return c, ok
}

func TestExpandAttachesPrevAndNextChunks(t *testing.T) {
	lookup := fakeLookup{chunks: map[string]model.Chunk{
		"a.go:0": {ID: "a.go:0", FilePath: "a.go", ChunkIndex: 0, StartLine: 1, EndLine: 10, Content: "prev"},
		"a.go:1": {ID: "a.go:1", FilePath: "a.go", ChunkIndex: 1, StartLine: 11, EndLine: 20, Content: "matched"},
		"a.go:2": {ID: "a.go:2", FilePath: "a.go", ChunkIndex: 2, StartLine: 21, EndLine: 30, Content: "next"},
	}}
	e := New(lookup)

	result := e.Expand(fusion.Result{ChunkID: "a.go:1", FilePath: "a.go", StartLine: 11, Score: 1})

	require.NotNil(t, result.PrevChunk)
	require.NotNil(t, result.NextChunk)
	assert.Equal(t, "prev", result.PrevChunk.Content)
	assert.Equal(t, "next", result.NextChunk.Content)
	assert.Equal(t, "matched", result.Content)
	assert.Equal(t, 20, result.EndLine)
}

func TestExpandFirstChunkHasNoPrevChunk(t *testing.T) {
	lookup := fakeLookup{chunks: map[string]model.Chunk{
		"a.go:0": {ID: "a.go:0", FilePath: "a.go", ChunkIndex: 0, Content: "only"},
	}}
	e := New(lookup)

	result := e.Expand(fusion.Result{ChunkID: "a.go:0", FilePath: "a.go"})

	assert.Nil(t, result.PrevChunk)
	assert.Nil(t, result.NextChunk)
	assert.Equal(t, "only", result.Content)
}

func TestExpandHandlesEvictedChunkGracefully(t *testing.T) {
	e := New(fakeLookup{chunks: map[string]model.Chunk{}})

	result := e.Expand(fusion.Result{ChunkID: "gone.go:3", FilePath: "gone.go", Score: 0.5})

	assert.Empty(t, result.Content)
	assert.Nil(t, result.PrevChunk)
	assert.Nil(t, result.NextChunk)
	assert.Equal(t, "gone.go", result.FilePath)
}

func TestExpandNonChunkIDLikeSymbolHitIsPassedThrough(t *testing.T) {
	// Symbol-retriever hits use a "<file>:sym:<line>" composite ID. Split
	// at its last colon it reads as file "a.go:sym", chunk 12, which the
	// chunk table does not hold; Expand must not panic or attach bogus
	// neighbors for it.
	e := New(fakeLookup{chunks: map[string]model.Chunk{}})

	result := e.Expand(fusion.Result{ChunkID: "a.go:sym:12", FilePath: "a.go", Symbol: "DoThing"})

	assert.Nil(t, result.PrevChunk)
	assert.Nil(t, result.NextChunk)
	assert.Equal(t, "DoThing", result.Symbol)
}

func TestExpandAllPreservesOrder(t *testing.T) {
	lookup := fakeLookup{chunks: map[string]model.Chunk{}}
	e := New(lookup)

	results := e.ExpandAll([]fusion.Result{
		{ChunkID: "a.go:0", FilePath: "a.go"},
		{ChunkID: "b.go:0", FilePath: "b.go"},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "a.go:0", results[0].ChunkID)
	assert.Equal(t, "b.go:0", results[1].ChunkID)
}
