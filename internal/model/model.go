// Package model defines the data types shared across the indexing and
// search pipeline: chunks, tokens, symbols and search results.
package model

import "time"

// Chunk is a contiguous slice of a source file produced by the chunker.
// Chunks tile a file: for a given file, concatenating chunks in ChunkIndex
// order and removing the overlap reproduces the file contents.
type Chunk struct {
	ID         string // "<file_path>:<chunk_index>"
	FilePath   string
	ChunkIndex int
	StartLine  int // 1-indexed, inclusive
	EndLine    int // 1-indexed, inclusive
	Content    string
	Language   string
	Hash       string // content hash, used for change detection
}

// TokenKind classifies the source region a token was extracted from, which
// drives the importance weight applied during BM25 scoring.
type TokenKind int

const (
	TokenIdentifier TokenKind = iota
	TokenString
	TokenComment
)

// Weight returns the importance weight for the token kind per the
// tokenizer's scoring contract.
func (k TokenKind) Weight() float64 {
	switch k {
	case TokenIdentifier:
		return 1.0
	case TokenString:
		return 0.7
	case TokenComment:
		return 0.5
	default:
		return 1.0
	}
}

// Token is a single normalized term extracted from a chunk, positioned so
// callers can reconstruct highlight spans.
type Token struct {
	Text     string
	Kind     TokenKind
	Position int // token ordinal within the chunk
}

// Symbol is a named code entity discovered by AST analysis.
type Symbol struct {
	Name      string
	Kind      string // function, method, class, struct, interface, const, var, ...
	FilePath  string
	StartLine int
	EndLine   int
	Signature string
	Parent    string // enclosing symbol name, if any
	Language  string
}

// MatchType is the closed set of ways a search result can have been
// produced; used as a fusion tie-break and for result annotation.
type MatchType int

const (
	MatchExact MatchType = iota
	MatchSymbol
	MatchSemantic
	MatchFuzzy
	MatchStatistical
)

// priority returns the tie-break ordering; lower sorts first.
func (m MatchType) priority() int {
	switch m {
	case MatchExact:
		return 0
	case MatchSymbol:
		return 1
	case MatchSemantic:
		return 2
	case MatchFuzzy:
		return 3
	case MatchStatistical:
		return 4
	default:
		return 5
	}
}

// Less reports whether m should be ordered before other in a tie-break.
func (m MatchType) Less(other MatchType) bool {
	return m.priority() < other.priority()
}

func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchSymbol:
		return "symbol"
	case MatchSemantic:
		return "semantic"
	case MatchFuzzy:
		return "fuzzy"
	case MatchStatistical:
		return "statistical"
	default:
		return "unknown"
	}
}

// SearchResult is a single hit returned from the unified searcher, after
// fusion and optional three-chunk expansion.
type SearchResult struct {
	ChunkID      string
	FilePath     string
	StartLine    int
	EndLine      int
	Content      string
	Score        float64
	MatchType    MatchType
	MatchedTerms []string
	Symbol       string // populated when the hit originates from the symbol indexer

	// PrevChunk / NextChunk are populated by the three-chunk expander.
	PrevChunk *Chunk
	NextChunk *Chunk
}

// FileChange describes a single file mutation handed to the incremental
// updater.
type FileChange struct {
	FilePath  string
	Kind      ChangeKind
	Timestamp time.Time
}

// ChangeKind is the closed set of file mutations the updater understands.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeModified
	ChangeDeleted
)
