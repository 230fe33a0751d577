// Package invertedindex wraps bleve for full-text and fuzzy search over
// chunk content. It is deliberately separate from internal/bm25: bleve
// does not expose raw df/idf/N/avgdl, so the hand-rolled BM25 engine owns
// exact-term statistical scoring while this package owns fuzzy and
// free-text matching.
package invertedindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/gofrs/flock"

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/tokenizer"
)

const (
	codeTokenizerName = "code_tokenizer"
	codeStopFilterName = "code_stop"
	codeAnalyzerName  = "code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(codeTokenizerName, codeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(codeStopFilterName, codeStopFilterConstructor)
}

// Document is a single chunk's searchable content.
type Document struct {
	ID       string
	Content  string
	FilePath string
	Language string
}

// Hit is a single scored match.
type Hit struct {
	DocID        string
	Score        float64
	MatchedTerms []string
	// FuzzyDistance is the maximum edit distance the fuzzy query ran with,
	// after clamping the requested distance to bleve's supported range
	// [0, 2]. Zero for exact/non-fuzzy queries.
	FuzzyDistance int
}

// Index wraps a bleve index with a cross-process write lock, so a
// concurrently running indexer and CLI invocation cannot corrupt it by
// writing simultaneously.
type Index struct {
	mu     sync.RWMutex
	bleve  bleve.Index
	path   string
	lock   *flock.Flock
	closed bool
}

type indexedDoc struct {
	Content  string `json:"content"`
	FilePath string `json:"file_path"`
	Language string `json:"language"`
}

// Open creates or opens the inverted index at path. An empty path creates
// an in-memory index, used in tests.
func Open(path string) (*Index, error) {
	indexMapping, err := buildMapping()
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "invertedindex", "build index mapping", err)
	}

	var idx bleve.Index
	var lock *flock.Flock

	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "invertedindex", "create index directory", err)
		}
		lock = flock.New(path + ".lock")
		locked, lockErr := lock.TryLock()
		// Retry a held lock a few times with growing backoff before
		// reporting contention.
		for attempt := 1; lockErr == nil && !locked && attempt <= 4; attempt++ {
			time.Sleep(time.Duration(attempt*attempt) * 25 * time.Millisecond)
			locked, lockErr = lock.TryLock()
		}
		if lockErr != nil {
			return nil, errs.Wrap(errs.KindInternal, "invertedindex", "acquire write lock", lockErr)
		}
		if !locked {
			return nil, errs.New(errs.KindLockContention, "invertedindex", "index is locked by another process")
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil {
			_ = lock.Unlock()
			return nil, errs.Wrap(errs.KindIndexCorrupt, "invertedindex", "open existing index", err).
				WithDetail("path", path)
		}
	}
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, errs.Wrap(errs.KindInternal, "invertedindex", "open or create index", err)
	}

	return &Index{bleve: idx, path: path, lock: lock}, nil
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(codeAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": codeTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			codeStopFilterName,
		},
	})
	if err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = codeAnalyzerName
	return m, nil
}

// Index adds or replaces documents in the index.
func (idx *Index) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return errs.New(errs.KindInternal, "invertedindex", "index is closed")
	}

	batch := idx.bleve.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, indexedDoc{Content: doc.Content, FilePath: doc.FilePath, Language: doc.Language}); err != nil {
			return errs.Wrap(errs.KindInternal, "invertedindex", fmt.Sprintf("index document %s", doc.ID), err)
		}
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return errs.Wrap(errs.KindInternal, "invertedindex", "execute batch", err)
	}
	return nil
}

// Delete removes documents by ID.
func (idx *Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return errs.New(errs.KindInternal, "invertedindex", "index is closed")
	}

	batch := idx.bleve.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := idx.bleve.Batch(batch); err != nil {
		return errs.Wrap(errs.KindInternal, "invertedindex", "execute delete batch", err)
	}
	return nil
}

// Search runs a full-text match query and returns the top limit hits. An
// empty or all-whitespace query fails with KindInvalidInput: the index's
// own search(query) contract has no meaning for an empty string, distinct
// from a higher layer choosing to treat an empty query as an empty result.
func (idx *Index) Search(ctx context.Context, queryStr string, limit int) ([]Hit, error) {
	if strings.TrimSpace(queryStr) == "" {
		return nil, errs.New(errs.KindInvalidInput, "invertedindex", "query must not be empty")
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")
	return idx.run(ctx, matchQuery, limit)
}

// FuzzySearch runs a fuzzy match query, tolerating up to maxEditDistance
// character edits per term. maxEditDistance is clamped to bleve's supported
// range of [0, 2]. An empty or all-whitespace query fails with
// KindInvalidInput, matching Search.
func (idx *Index) FuzzySearch(ctx context.Context, queryStr string, maxEditDistance, limit int) ([]Hit, error) {
	if strings.TrimSpace(queryStr) == "" {
		return nil, errs.New(errs.KindInvalidInput, "invertedindex", "query must not be empty")
	}
	if maxEditDistance < 0 {
		maxEditDistance = 0
	}
	if maxEditDistance > 2 {
		maxEditDistance = 2
	}

	fuzzyQuery := bleve.NewFuzzyQuery(queryStr)
	fuzzyQuery.SetField("content")
	fuzzyQuery.Fuzziness = maxEditDistance

	hits, err := idx.run(ctx, fuzzyQuery, limit)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].FuzzyDistance = maxEditDistance
	}
	return hits, nil
}

func (idx *Index) run(ctx context.Context, q query.Query, limit int) ([]Hit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, errs.New(errs.KindInternal, "invertedindex", "index is closed")
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.IncludeLocations = true

	result, err := idx.bleve.SearchInContext(ctx, req)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "invertedindex", "execute search", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{
			DocID:        h.ID,
			Score:        h.Score,
			MatchedTerms: matchedTerms(h),
		})
	}
	return hits, nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locs := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locs {
			seen[term] = struct{}{}
		}
	}
	terms := make([]string, 0, len(seen))
	for t := range seen {
		terms = append(terms, t)
	}
	return terms
}

// DocCount returns the number of documents in the index.
func (idx *Index) DocCount() (uint64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, err := idx.bleve.DocCount()
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, "invertedindex", "count documents", err)
	}
	return n, nil
}

// Stats is the get_index_stats() contract: document count plus the
// on-disk segment count and size backing it.
type Stats struct {
	NumDocuments   uint64
	NumSegments    uint64
	IndexSizeBytes uint64
}

// Stats returns NumDocuments alongside NumSegments and IndexSizeBytes read
// from bleve's scorch backend stats. A field the running bleve backend
// doesn't expose (an in-memory index opened with Open("") has no disk
// footprint at all) reports as 0 rather than failing the call.
func (idx *Index) Stats() (Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return Stats{}, errs.New(errs.KindInternal, "invertedindex", "index is closed")
	}

	n, err := idx.bleve.DocCount()
	if err != nil {
		return Stats{}, errs.Wrap(errs.KindInternal, "invertedindex", "count documents", err)
	}

	stats := Stats{NumDocuments: n}
	raw, ok := idx.bleve.StatsMap()["index"].(map[string]interface{})
	if !ok {
		return stats, nil
	}
	stats.NumSegments = statUint(raw, "num_root_filesegments") + statUint(raw, "num_root_memorysegments")
	stats.IndexSizeBytes = statUint(raw, "num_bytes_used_disk")
	return stats, nil
}

func statUint(m map[string]interface{}, key string) uint64 {
	switch v := m[key].(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	case int:
		return uint64(v)
	}
	return 0
}

// Close releases the bleve index and the write lock.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	var err error
	if idx.bleve != nil {
		err = idx.bleve.Close()
	}
	if idx.lock != nil {
		_ = idx.lock.Unlock()
	}
	return err
}

func codeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

// codeTokenizer delegates to the shared tokenizer package so the inverted
// index and the BM25 engine segment identifiers identically.
type codeTokenizer struct{}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := tokenizer.Tokenize(text)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(tok.Text))
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(tok.Text)

		stream = append(stream, &analysis.Token{
			Term:     []byte(tok.Text),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return stream
}

func codeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &codeStopFilter{stopWords: tokenizer.BuildStopWordMap(tokenizer.DefaultStopWords)}, nil
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := f.stopWords[strings.ToLower(string(tok.Term))]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
