// Package bm25 implements a hand-rolled Okapi BM25 ranking engine. Unlike
// the bleve-backed inverted index, this engine exposes its raw statistics
// (document frequency, inverse document frequency, corpus size, average
// document length) so the fusion layer and diagnostics can reason about
// score provenance directly, not just a final score.
package bm25

import (
	"math"
	"sort"
	"sync"

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/tokenizer"
)

// Document is a single unit of retrieval: one chunk, already tokenized.
type Document struct {
	ID         string
	FilePath   string
	ChunkIndex int
	StartLine  int
	EndLine    int
	Language   string
	Tokens     []model.Token
}

// Stats summarizes engine-wide corpus statistics.
type Stats struct {
	TotalDocuments int
	VocabularySize int
	AverageDocLen  float64
	K1             float64
	B              float64
}

// Result is a single scored hit.
type Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// postingEntry records one document's contribution to a term's postings
// list: its weighted term frequency within that document.
type postingEntry struct {
	docID string
	freq  float64 // sum of importance weights for this term in this doc
}

// Engine is a thread-safe, incrementally updatable BM25 index.
type Engine struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	docs       map[string]*Document
	docLength  map[string]float64 // weighted token count per document
	postings   map[string][]postingEntry
	totalDocLen float64
}

// Config tunes the BM25 free parameters. A K1 <= 0 falls back to the
// conventional 1.2, and a B outside [0, 1] to 0.75; a zero B is kept and
// disables document-length normalization.
type Config struct {
	K1 float64
	B  float64
}

// New creates an empty Engine.
func New(cfg Config) *Engine {
	k1 := cfg.K1
	if k1 <= 0 {
		k1 = 1.2
	}
	b := cfg.B
	if b < 0 || b > 1 {
		b = 0.75
	}
	return &Engine{
		k1:        k1,
		b:         b,
		docs:      make(map[string]*Document),
		docLength: make(map[string]float64),
		postings:  make(map[string][]postingEntry),
	}
}

// AddDocument indexes doc. It fails with KindInvalidInput ("document
// exists") if doc.ID is already present — callers that mean to replace a
// document must RemoveDocument it first, so an update is always an
// explicit delete-then-insert rather than a silent overwrite. Indexing is
// otherwise fully incremental: corpus statistics (N, average document
// length, per-term document frequency) are updated in place rather than
// requiring a full rebuild.
func (e *Engine) AddDocument(doc Document) error {
	if doc.ID == "" {
		return errs.New(errs.KindInvalidInput, "bm25", "document id must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.docs[doc.ID]; exists {
		return errs.New(errs.KindInvalidInput, "bm25", "document exists: "+doc.ID).WithDetail("doc_id", doc.ID)
	}

	termWeights := make(map[string]float64)
	for _, tok := range doc.Tokens {
		termWeights[tok.Text] += tok.Kind.Weight()
	}

	var length float64
	for term, weight := range termWeights {
		e.postings[term] = append(e.postings[term], postingEntry{docID: doc.ID, freq: weight})
		length += weight
	}

	docCopy := doc
	e.docs[doc.ID] = &docCopy
	e.docLength[doc.ID] = length
	e.totalDocLen += length

	return nil
}

// RemoveDocument deletes a document and its postings from the index.
func (e *Engine) RemoveDocument(docID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(docID)
}

func (e *Engine) removeLocked(docID string) {
	if _, ok := e.docs[docID]; !ok {
		return
	}
	e.totalDocLen -= e.docLength[docID]
	delete(e.docLength, docID)
	delete(e.docs, docID)

	for term, entries := range e.postings {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.docID != docID {
				filtered = append(filtered, entry)
			}
		}
		if len(filtered) == 0 {
			delete(e.postings, term)
		} else {
			e.postings[term] = filtered
		}
	}
}

// DocumentIDs returns the IDs of every document currently indexed, in no
// particular order. Useful for callers that need to find all chunks
// belonging to a given file without maintaining their own index.
func (e *Engine) DocumentIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.docs))
	for id := range e.docs {
		ids = append(ids, id)
	}
	return ids
}

// Document returns the indexed document for docID, if present.
func (e *Engine) Document(docID string) (Document, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.docs[docID]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// DocumentFrequency returns the number of documents containing term.
func (e *Engine) DocumentFrequency(term string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.postings[term])
}

// InverseDocumentFrequency returns the BM25 IDF for term: ln((N-df+0.5)/(df+0.5) + 1).
// The +1 inside the log keeps the value non-negative even when a term
// appears in more than half the corpus.
func (e *Engine) InverseDocumentFrequency(term string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idfLocked(term)
}

func (e *Engine) idfLocked(term string) float64 {
	n := float64(len(e.docs))
	df := float64(len(e.postings[term]))
	if n == 0 {
		return 0
	}
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Stats returns a snapshot of corpus-wide statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	avgdl := 0.0
	if len(e.docs) > 0 {
		avgdl = e.totalDocLen / float64(len(e.docs))
	}

	return Stats{
		TotalDocuments: len(e.docs),
		VocabularySize: len(e.postings),
		AverageDocLen:  avgdl,
		K1:             e.k1,
		B:              e.b,
	}
}

// Search tokenizes query, scores every document that shares at least one
// term, and returns the top limit results ordered by descending score.
func (e *Engine) Search(query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	queryTokens := tokenizer.Tokenize(query)
	if len(queryTokens) == 0 {
		return []Result{}, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	avgdl := 0.0
	if len(e.docs) > 0 {
		avgdl = e.totalDocLen / float64(len(e.docs))
	}

	scores := make(map[string]float64)
	matched := make(map[string]map[string]struct{})

	seenTerms := make(map[string]struct{})
	for _, qt := range queryTokens {
		term := qt.Text
		if _, dup := seenTerms[term]; dup {
			continue
		}
		seenTerms[term] = struct{}{}

		idf := e.idfLocked(term)
		for _, entry := range e.postings[term] {
			docLen := e.docLength[entry.docID]
			denom := entry.freq + e.k1*(1-e.b+e.b*docLen/safeAvgdl(avgdl))
			if denom == 0 {
				continue
			}
			score := idf * (entry.freq * (e.k1 + 1)) / denom
			scores[entry.docID] += score

			if matched[entry.docID] == nil {
				matched[entry.docID] = make(map[string]struct{})
			}
			matched[entry.docID][term] = struct{}{}
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		terms := make([]string, 0, len(matched[docID]))
		for t := range matched[docID] {
			terms = append(terms, t)
		}
		sort.Strings(terms)
		results = append(results, Result{DocID: docID, Score: score, MatchedTerms: terms})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func safeAvgdl(avgdl float64) float64 {
	if avgdl == 0 {
		return 1
	}
	return avgdl
}
