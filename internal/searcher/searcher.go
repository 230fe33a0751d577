// Package searcher implements the unified search entry point: it
// dispatches a query to all configured retrievers concurrently, tolerates
// a retriever timing out or erroring without failing the whole query, and
// fuses whatever comes back via internal/fusion.
package searcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codesearch/codesearch/internal/bm25"
	"github.com/codesearch/codesearch/internal/embedcache"
	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/expansion"
	"github.com/codesearch/codesearch/internal/fusion"
	"github.com/codesearch/codesearch/internal/invertedindex"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/updater"
	"github.com/codesearch/codesearch/internal/vectoradapter"
)

// DefaultPerRetrieverTimeout bounds how long any single retriever may run
// before its contribution is dropped from fusion rather than stalling the
// whole query.
const DefaultPerRetrieverTimeout = 500 * time.Millisecond

// DefaultQueryTimeout bounds the wall-clock time of an entire Search call,
// across every retriever and the fusion step, independent of how long any
// single retriever's own PerRetrieverTimeout allows it to run.
const DefaultQueryTimeout = 2 * time.Second

// Options configures a single Search call.
type Options struct {
	Limit                int
	PerRetrieverTimeout   time.Duration
	QueryTimeout          time.Duration
	FuzzyMaxEditDistance int
	ExpandQuery          bool
}

// withDefaults fills in zero-valued fields.
func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.PerRetrieverTimeout <= 0 {
		o.PerRetrieverTimeout = DefaultPerRetrieverTimeout
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.FuzzyMaxEditDistance <= 0 {
		o.FuzzyMaxEditDistance = 1
	}
	return o
}

// Config wires a Searcher's backing retrievers. BM25 is the only
// mandatory dependency; Inverted, Vectors+Embedder, and Symbols may each
// be nil to disable that retrieval strategy.
type Config struct {
	BM25     *bm25.Engine
	Inverted *invertedindex.Index
	Vectors  *vectoradapter.Store
	Embedder embedcache.Embedder
	Symbols   *updater.Updater
	Fuser     *fusion.Fuser
	Expander  *Expander
	Expansion *expansion.Expander
	Logger    *slog.Logger
}

// Searcher is the unified, concurrent, multi-retriever search entry
// point.
type Searcher struct {
	bm25     *bm25.Engine
	inverted *invertedindex.Index
	vectors  *vectoradapter.Store
	embedder embedcache.Embedder
	symbols   *updater.Updater
	fuser     *fusion.Fuser
	expander  *Expander
	expansion *expansion.Expander
	logger    *slog.Logger
}

// New builds a Searcher from cfg.
func New(cfg Config) (*Searcher, error) {
	if cfg.BM25 == nil {
		return nil, errs.New(errs.KindInvalidInput, "searcher", "bm25 engine is required")
	}
	fuser := cfg.Fuser
	if fuser == nil {
		fuser = fusion.New(fusion.MethodRRF, fusion.DefaultK)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		bm25:      cfg.BM25,
		inverted:  cfg.Inverted,
		vectors:   cfg.Vectors,
		embedder:  cfg.Embedder,
		symbols:   cfg.Symbols,
		fuser:     fuser,
		expander:  cfg.Expander,
		expansion: cfg.Expansion,
		logger:    logger,
	}, nil
}

// retrieverOutcome captures one retriever's result or failure, so a
// timeout or error can be logged without aborting the others.
type retrieverOutcome struct {
	matchType model.MatchType
	source    fusion.Source
	err       error
}

// Search dispatches query to every configured retriever concurrently,
// each bounded by opts.PerRetrieverTimeout, and fuses whatever comes
// back. A retriever that times out or errors contributes nothing to
// fusion rather than failing the query, unless every retriever fails, in
// which case Search returns one KindInternal error whose "failures"
// detail is the number of failed retrievers. An empty or all-whitespace
// query short-circuits to an empty result set: this is a higher-layer
// convenience distinct from the inverted index's own search(query), which
// fails outright on an empty query.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]fusion.Result, error) {
	if strings.TrimSpace(query) == "" {
		return []fusion.Result{}, nil
	}

	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()

	lexicalQuery := query
	if opts.ExpandQuery && s.expander != nil {
		lexicalQuery = s.expander.Expand(query)
	}

	outcomes := make(chan retrieverOutcome, 4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outcomes <- s.runStatistical(gctx, lexicalQuery, opts)
		return nil
	})
	if s.inverted != nil {
		g.Go(func() error {
			outcomes <- s.runLexical(gctx, lexicalQuery, opts)
			return nil
		})
		g.Go(func() error {
			outcomes <- s.runFuzzy(gctx, lexicalQuery, opts)
			return nil
		})
	}
	if s.vectors != nil && s.embedder != nil {
		g.Go(func() error {
			outcomes <- s.runSemantic(gctx, query, opts)
			return nil
		})
	}
	if s.symbols != nil {
		g.Go(func() error {
			outcomes <- s.runSymbol(gctx, query, opts)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	var sources []fusion.Source
	var failures []error
	for outcome := range outcomes {
		if outcome.err != nil {
			failures = append(failures, outcome.err)
			s.logger.Warn("retriever failed",
				slog.String("match_type", outcome.matchType.String()),
				slog.Any("error", outcome.err))
			continue
		}
		sources = append(sources, outcome.source)
	}

	if len(sources) == 0 && len(failures) > 0 {
		return nil, errs.New(errs.KindInternal, "searcher", "all retrievers failed").
			WithDetail("failures", itoa(len(failures)))
	}

	return s.fuser.Fuse(sources), nil
}

// SearchExpanded runs Search and, if an expansion.Expander was configured,
// attaches each hit's prior/next chunk context before returning. Without
// an Expander configured it still returns model.SearchResult values, just
// without PrevChunk/NextChunk populated.
func (s *Searcher) SearchExpanded(ctx context.Context, query string, opts Options) ([]model.SearchResult, error) {
	results, err := s.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if s.expansion == nil {
		out := make([]model.SearchResult, len(results))
		for i, r := range results {
			out[i] = model.SearchResult{
				ChunkID:      r.ChunkID,
				FilePath:     r.FilePath,
				StartLine:    r.StartLine,
				Score:        r.Score,
				MatchType:    r.MatchType,
				MatchedTerms: r.MatchedTerms,
				Symbol:       r.Symbol,
			}
		}
		return out, nil
	}
	return s.expansion.ExpandAll(results), nil
}

func (s *Searcher) runStatistical(ctx context.Context, query string, opts Options) retrieverOutcome {
	ctx, cancel := context.WithTimeout(ctx, opts.PerRetrieverTimeout)
	defer cancel()

	results, err := s.bm25.Search(query, opts.Limit)
	if err != nil {
		return retrieverOutcome{matchType: model.MatchStatistical, err: err}
	}
	hits := make([]fusion.Hit, len(results))
	for i, r := range results {
		doc, _ := s.bm25.Document(r.DocID)
		hits[i] = fusion.Hit{
			ChunkID:      r.DocID,
			FilePath:     doc.FilePath,
			StartLine:    doc.StartLine,
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
		}
	}
	return retrieverOutcome{matchType: model.MatchStatistical, source: fusion.Source{MatchType: model.MatchStatistical, Hits: hits}}
}

func (s *Searcher) runLexical(ctx context.Context, query string, opts Options) retrieverOutcome {
	ctx, cancel := context.WithTimeout(ctx, opts.PerRetrieverTimeout)
	defer cancel()

	hits, err := s.inverted.Search(ctx, query, opts.Limit)
	if err != nil {
		return retrieverOutcome{matchType: model.MatchExact, err: err}
	}
	return retrieverOutcome{matchType: model.MatchExact, source: fusion.Source{MatchType: model.MatchExact, Hits: invertedHits(hits)}}
}

func (s *Searcher) runFuzzy(ctx context.Context, query string, opts Options) retrieverOutcome {
	ctx, cancel := context.WithTimeout(ctx, opts.PerRetrieverTimeout)
	defer cancel()

	hits, err := s.inverted.FuzzySearch(ctx, query, opts.FuzzyMaxEditDistance, opts.Limit)
	if err != nil {
		return retrieverOutcome{matchType: model.MatchFuzzy, err: err}
	}
	return retrieverOutcome{matchType: model.MatchFuzzy, source: fusion.Source{MatchType: model.MatchFuzzy, Hits: invertedHits(hits)}}
}

func invertedHits(hits []invertedindex.Hit) []fusion.Hit {
	out := make([]fusion.Hit, len(hits))
	for i, h := range hits {
		out[i] = fusion.Hit{
			ChunkID:      h.DocID,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
		}
	}
	return out
}

func (s *Searcher) runSemantic(ctx context.Context, query string, opts Options) retrieverOutcome {
	ctx, cancel := context.WithTimeout(ctx, opts.PerRetrieverTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return retrieverOutcome{matchType: model.MatchSemantic, err: err}
	}
	results, err := s.vectors.Search(ctx, vec, opts.Limit)
	if err != nil {
		return retrieverOutcome{matchType: model.MatchSemantic, err: err}
	}
	hits := make([]fusion.Hit, len(results))
	for i, r := range results {
		hits[i] = fusion.Hit{ChunkID: r.ID, Score: float64(r.Score)}
	}
	return retrieverOutcome{matchType: model.MatchSemantic, source: fusion.Source{MatchType: model.MatchSemantic, Hits: hits}}
}

// runSymbol matches the query against known symbol names. Symbol
// granularity differs from chunk granularity (a symbol spans only part of
// a chunk), so each hit gets its own composite ID rather than trying to
// resolve the enclosing chunk; it still fuses correctly since fusion
// dedupes by whatever key a retriever reports.
func (s *Searcher) runSymbol(ctx context.Context, query string, opts Options) retrieverOutcome {
	_, cancel := context.WithTimeout(ctx, opts.PerRetrieverTimeout)
	defer cancel()

	var hits []fusion.Hit
	for _, sym := range s.symbols.AllSymbols() {
		if !symbolMatches(sym, query) {
			continue
		}
		hits = append(hits, fusion.Hit{
			ChunkID:   sym.FilePath + ":sym:" + itoa(sym.StartLine),
			FilePath:  sym.FilePath,
			StartLine: sym.StartLine,
			Score:     1.0,
			Symbol:    sym.Name,
		})
		if len(hits) >= opts.Limit {
			break
		}
	}
	return retrieverOutcome{matchType: model.MatchSymbol, source: fusion.Source{MatchType: model.MatchSymbol, Hits: hits}}
}

func symbolMatches(sym model.Symbol, query string) bool {
	return query != "" && strings.Contains(strings.ToLower(sym.Name), strings.ToLower(query))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
