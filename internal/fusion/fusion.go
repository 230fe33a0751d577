// Package fusion combines ranked result lists from the four retrievers
// (lexical, fuzzy, semantic, symbol) into one ordered list, using
// Reciprocal Rank Fusion by default with a normalized-score weighted-sum
// alternative.
package fusion

import (
	"sort"

	"github.com/codesearch/codesearch/internal/model"
)

// DefaultK is the standard RRF smoothing constant: k=60 is empirically
// validated across domains and used by Azure AI Search, OpenSearch, etc.
const DefaultK = 60

// Hit is one retriever's ranked result for a chunk, before fusion.
type Hit struct {
	ChunkID      string
	FilePath     string
	StartLine    int
	Score        float64
	MatchedTerms []string
	Symbol       string
}

// Source is one retriever's full ranked result list, in rank order
// (best first), tagged with the match type it contributes to fusion.
type Source struct {
	MatchType model.MatchType
	Weight    float64 // defaults to 1.0 if <= 0
	Hits      []Hit
}

// Result is a single fused hit, carrying enough provenance for the
// searcher to build a model.SearchResult and for diagnostics to explain
// how a hit was ranked.
type Result struct {
	ChunkID      string
	FilePath     string
	StartLine    int
	Score        float64 // normalized to [0, 1], 1.0 is the top hit
	MatchType    model.MatchType
	MatchedTerms []string
	Symbol       string
	SourceRanks  map[model.MatchType]int // 1-indexed rank within each contributing source
}

// Method selects the fusion algorithm.
type Method string

const (
	MethodRRF         Method = "rrf"
	MethodWeightedSum Method = "weighted_sum"
)

// Fuser combines multiple retrievers' ranked lists into one.
type Fuser struct {
	Method Method
	K      int // RRF smoothing constant; ignored by MethodWeightedSum
}

// New creates a Fuser. An empty Method defaults to RRF; a non-positive K
// defaults to DefaultK.
func New(method Method, k int) *Fuser {
	if method == "" {
		method = MethodRRF
	}
	if k <= 0 {
		k = DefaultK
	}
	return &Fuser{Method: method, K: k}
}

// Fuse combines sources into a single ranked, deduplicated, normalized
// result list. Tie-break order: fused score (desc), match-type priority
// (asc, per model.MatchType.Less), then (file_path, start_line) for full
// determinism.
func (f *Fuser) Fuse(sources []Source) []Result {
	if len(sources) == 0 {
		return []Result{}
	}

	switch f.Method {
	case MethodWeightedSum:
		return f.fuseWeightedSum(sources)
	default:
		return f.fuseRRF(sources)
	}
}

func (f *Fuser) fuseRRF(sources []Source) []Result {
	acc := make(map[string]*accumulator)

	maxLen := 0
	for _, src := range sources {
		if len(src.Hits) > maxLen {
			maxLen = len(src.Hits)
		}
	}
	missingRank := maxLen + 1

	presentIn := make(map[string]map[model.MatchType]bool)

	for _, src := range sources {
		weight := src.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for rank, hit := range src.Hits {
			r := getOrCreate(acc, hit)
			r.score += weight / float64(f.K+rank+1)
			r.addSource(src.MatchType, rank+1)

			if presentIn[hit.ChunkID] == nil {
				presentIn[hit.ChunkID] = make(map[model.MatchType]bool)
			}
			presentIn[hit.ChunkID][src.MatchType] = true
		}
	}

	// Documents missing from a source still receive that source's
	// contribution at missingRank, so a hit found by every retriever but
	// ranked last in one doesn't lose to a hit found by only one.
	for _, src := range sources {
		weight := src.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for chunkID, r := range acc {
			if presentIn[chunkID][src.MatchType] {
				continue
			}
			r.score += weight / float64(f.K+missingRank)
		}
	}

	return f.finalize(acc)
}

func (f *Fuser) fuseWeightedSum(sources []Source) []Result {
	acc := make(map[string]*accumulator)

	for _, src := range sources {
		weight := src.Weight
		if weight <= 0 {
			weight = 1.0
		}
		maxScore := 0.0
		for _, hit := range src.Hits {
			if hit.Score > maxScore {
				maxScore = hit.Score
			}
		}
		for rank, hit := range src.Hits {
			normalized := 1.0
			if maxScore > 0 {
				normalized = hit.Score / maxScore
			}
			r := getOrCreate(acc, hit)
			r.score += weight * normalized
			r.addSource(src.MatchType, rank+1)
		}
	}

	return f.finalize(acc)
}

type accumulator struct {
	hit         Hit
	bestType    model.MatchType
	hasType     bool
	score       float64
	sourceRanks map[model.MatchType]int
}

func (a *accumulator) addSource(mt model.MatchType, rank int) {
	if a.sourceRanks == nil {
		a.sourceRanks = make(map[model.MatchType]int)
	}
	a.sourceRanks[mt] = rank
	if !a.hasType || mt.Less(a.bestType) {
		a.bestType = mt
		a.hasType = true
	}
}

func getOrCreate(m map[string]*accumulator, hit Hit) *accumulator {
	if r, ok := m[hit.ChunkID]; ok {
		if hit.Symbol != "" {
			r.hit.Symbol = hit.Symbol
		}
		if len(hit.MatchedTerms) > 0 {
			r.hit.MatchedTerms = hit.MatchedTerms
		}
		return r
	}
	r := &accumulator{hit: hit}
	m[hit.ChunkID] = r
	return r
}

func (f *Fuser) finalize(acc map[string]*accumulator) []Result {
	results := make([]Result, 0, len(acc))
	for _, a := range acc {
		results = append(results, Result{
			ChunkID:      a.hit.ChunkID,
			FilePath:     a.hit.FilePath,
			StartLine:    a.hit.StartLine,
			Score:        a.score,
			MatchType:    a.bestType,
			MatchedTerms: a.hit.MatchedTerms,
			Symbol:       a.hit.Symbol,
			SourceRanks:  a.sourceRanks,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return compare(results[i], results[j])
	})

	normalize(results)
	return results
}

// compare reports whether a should rank before b: higher score first,
// then match-type priority, then (file_path, start_line) for a fully
// deterministic order.
func compare(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.MatchType != b.MatchType {
		return a.MatchType.Less(b.MatchType)
	}
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	return a.StartLine < b.StartLine
}

// normalize scales all scores to [0, 1] using the top score as reference.
func normalize(results []Result) {
	if len(results) == 0 {
		return
	}
	max := results[0].Score
	if max == 0 {
		return
	}
	for i := range results {
		results[i].Score = results[i].Score / max
	}
}
