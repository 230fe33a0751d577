// Package expansion attaches neighboring-chunk context to a fused search
// hit. A chunk boundary rarely lines up with a function boundary, so the
// chunk immediately before or after the matched one often carries context
// a reader needs (the rest of a signature, the closing brace, a doc
// comment) that the match itself doesn't include.
//
// This is distinct from the lexical query rewriting in
// internal/searcher's Expander, which expands query terms before
// retrieval; this package expands a result's context after retrieval and
// fusion, by looking up the chunk table.
package expansion

import (
	"strconv"
	"strings"

	"github.com/codesearch/codesearch/internal/fusion"
	"github.com/codesearch/codesearch/internal/model"
)

// ChunkLookup resolves a chunk ID to its chunk, if still indexed.
// *updater.Updater satisfies this.
type ChunkLookup interface {
	Chunk(chunkID string) (model.Chunk, bool)
}

// Expander attaches the matched chunk's own content plus its immediate
// predecessor and successor, by (file_path, chunk_index) lookup.
type Expander struct {
	lookup ChunkLookup
}

// New builds an Expander backed by lookup.
func New(lookup ChunkLookup) *Expander {
	return &Expander{lookup: lookup}
}

// Expand converts a fused hit into a model.SearchResult, filling in its
// content and line range from the chunk table and attaching PrevChunk /
// NextChunk when those neighbors are still indexed. A result whose own
// chunk has since been evicted from the table (e.g. deleted between
// search and expansion) is still returned, with Content left empty and
// no neighbors attached.
func (e *Expander) Expand(result fusion.Result) model.SearchResult {
	out := model.SearchResult{
		ChunkID:      result.ChunkID,
		FilePath:     result.FilePath,
		StartLine:    result.StartLine,
		Score:        result.Score,
		MatchType:    result.MatchType,
		MatchedTerms: result.MatchedTerms,
		Symbol:       result.Symbol,
	}

	filePath, index, ok := parseChunkID(result.ChunkID)
	if !ok {
		return out
	}

	if chunk, found := e.lookup.Chunk(result.ChunkID); found {
		out.Content = chunk.Content
		out.EndLine = chunk.EndLine
		out.StartLine = chunk.StartLine
	}

	if prev, found := e.lookup.Chunk(chunkID(filePath, index-1)); found {
		prevCopy := prev
		out.PrevChunk = &prevCopy
	}
	if next, found := e.lookup.Chunk(chunkID(filePath, index+1)); found {
		nextCopy := next
		out.NextChunk = &nextCopy
	}

	return out
}

// ExpandAll applies Expand to every result in order.
func (e *Expander) ExpandAll(results []fusion.Result) []model.SearchResult {
	out := make([]model.SearchResult, len(results))
	for i, r := range results {
		out[i] = e.Expand(r)
	}
	return out
}

// parseChunkID splits a chunk ID of the form "<file_path>:<chunk_index>"
// back into its parts. File paths never contain ':' on the platforms this
// indexes, so the final colon is the separator.
func parseChunkID(id string) (filePath string, index int, ok bool) {
	i := strings.LastIndex(id, ":")
	if i < 0 || i == len(id)-1 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}

func chunkID(filePath string, index int) string {
	return filePath + ":" + strconv.Itoa(index)
}
