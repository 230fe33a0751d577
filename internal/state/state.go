// Package state owns the on-disk layout of a single project's index:
// inverted_index/, vectors/, symbols.db, bm25.snapshot, and meta.json,
// opened and wired together into the full retrieval stack (chunker,
// symbol indexer, BM25 engine, inverted index, vector store, updater,
// fusion, searcher, three-chunk expansion) the way the CLI commands need
// it. This mirrors the teacher's pattern of a single runner struct wiring
// every backend from one data directory, generalized from a single
// metadata.db + bm25 + vector triple to this engine's five-part layout.
package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/codesearch/codesearch/internal/bm25"
	"github.com/codesearch/codesearch/internal/chunker"
	"github.com/codesearch/codesearch/internal/config"
	"github.com/codesearch/codesearch/internal/embedcache"
	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/expansion"
	"github.com/codesearch/codesearch/internal/fusion"
	"github.com/codesearch/codesearch/internal/invertedindex"
	"github.com/codesearch/codesearch/internal/searcher"
	"github.com/codesearch/codesearch/internal/symbols"
	"github.com/codesearch/codesearch/internal/symbolstore"
	"github.com/codesearch/codesearch/internal/updater"
	"github.com/codesearch/codesearch/internal/vectoradapter"
)

// SchemaVersion is incremented whenever the persisted layout changes in
// a way that requires a full rebuild rather than an incremental restore.
const SchemaVersion = 1

// meta is the contents of meta.json.
type meta struct {
	SchemaVersion int       `json:"schema_version"`
	Dimensions    int       `json:"dimensions"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// State bundles every opened backend for a single project's data
// directory, plus the Updater and Searcher built on top of them.
type State struct {
	DataDir string

	BM25       *bm25.Engine
	bm25Store  *bm25.Store
	Inverted   *invertedindex.Index
	Vectors    *vectoradapter.Store
	SymbolIdx  *symbols.Indexer
	SymbolDB   *symbolstore.Store
	Embedder   embedcache.Embedder
	Chunker    *chunker.Chunker
	Updater    *updater.Updater
	Searcher   *searcher.Searcher

	vectorPath string
}

func paths(dataDir string) (invertedDir, vectorsPath, symbolsPath, bm25Path, metaPath string) {
	return filepath.Join(dataDir, "inverted_index"),
		filepath.Join(dataDir, "vectors", "index.gob"),
		filepath.Join(dataDir, "symbols.db"),
		filepath.Join(dataDir, "bm25.snapshot"),
		filepath.Join(dataDir, "meta.json")
}

// Open assembles a full State rooted at dataDir, creating the directory
// and an empty index if none exists, or restoring persisted state if it
// does. A schema version mismatch in meta.json is reported as
// errs.KindIndexCorrupt: the caller should clear dataDir and re-index.
func Open(ctx context.Context, dataDir string, cfg *config.Config) (*State, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "state", "create data directory", err)
	}
	invertedDir, vectorsPath, symbolsPath, bm25Path, metaPath := paths(dataDir)

	dimensions := cfg.Embedder.Dimensions
	if dimensions <= 0 {
		dimensions = 256
	}

	if existing, err := readMeta(metaPath); err == nil && existing.SchemaVersion != SchemaVersion {
		return nil, errs.New(errs.KindIndexCorrupt, "state", "persisted schema version mismatch, rebuild required").
			WithDetail("data_dir", dataDir)
	}

	engine := bm25.New(bm25.Config{K1: cfg.BM25.K1, B: cfg.BM25.B})
	bm25Store, err := bm25.OpenStore(bm25Path)
	if err != nil {
		return nil, err
	}
	if err := bm25Store.Restore(ctx, engine); err != nil {
		_ = bm25Store.Close()
		return nil, err
	}

	inverted, err := invertedindex.Open(invertedDir)
	if err != nil {
		_ = bm25Store.Close()
		return nil, err
	}

	vectors, err := vectoradapter.New(vectoradapter.Config{Dimensions: dimensions})
	if err != nil {
		_ = bm25Store.Close()
		_ = inverted.Close()
		return nil, err
	}
	if _, statErr := os.Stat(vectorsPath); statErr == nil {
		if err := vectors.Load(vectorsPath); err != nil {
			_ = bm25Store.Close()
			_ = inverted.Close()
			return nil, errs.Wrap(errs.KindIndexCorrupt, "state", "load vector store", err)
		}
	}

	symbolDB, err := symbolstore.Open(symbolsPath)
	if err != nil {
		_ = bm25Store.Close()
		_ = inverted.Close()
		return nil, err
	}

	ttl, parseErr := time.ParseDuration(cfg.Embedder.CacheTTL)
	if parseErr != nil {
		ttl = embedcache.DefaultTTL
	}
	embedder := embedcache.New(vectoradapter.NewHashEmbedder(dimensions), cfg.Embedder.CacheSize, ttl)

	chk := chunker.New(chunker.Options{
		LinesPerChunk: chunkLines(cfg),
		OverlapLines:  overlapLines(cfg),
		MaxBytes:      cfg.Chunk.MaxChunkBytes,
	})
	symbolIdx := symbols.NewIndexer()

	up, err := updater.New(updater.Config{
		Chunker:              chk,
		Symbols:              symbolIdx,
		BM25:                 engine,
		Inverted:             inverted,
		Vectors:              vectors,
		Embedder:             embedder,
		SymbolStore:          symbolDB,
		MaxTokensPerDocument: cfg.Chunk.MaxTokensPerDocument,
	})
	if err != nil {
		_ = bm25Store.Close()
		_ = inverted.Close()
		_ = symbolDB.Close()
		return nil, err
	}
	if err := up.LoadPersistedSymbols(ctx); err != nil {
		_ = bm25Store.Close()
		_ = inverted.Close()
		_ = symbolDB.Close()
		return nil, err
	}

	fuser := fusion.New(fusion.Method(cfg.Fusion.Method), cfg.Fusion.RRFConstant)
	s, err := searcher.New(searcher.Config{
		BM25:      engine,
		Inverted:  inverted,
		Vectors:   vectors,
		Embedder:  embedder,
		Symbols:   up,
		Fuser:     fuser,
		Expander:  searcher.NewExpander(),
		Expansion: expansion.New(up),
	})
	if err != nil {
		_ = bm25Store.Close()
		_ = inverted.Close()
		_ = symbolDB.Close()
		return nil, err
	}

	return &State{
		DataDir:    dataDir,
		BM25:       engine,
		bm25Store:  bm25Store,
		Inverted:   inverted,
		Vectors:    vectors,
		SymbolIdx:  symbolIdx,
		SymbolDB:   symbolDB,
		Embedder:   embedder,
		Chunker:    chk,
		Updater:    up,
		Searcher:   s,
		vectorPath: vectorsPath,
	}, nil
}

func chunkLines(cfg *config.Config) int {
	if cfg.Chunk.Size <= 0 {
		return 0
	}
	// ChunkConfig.Size is specified as an approximate byte/char budget in
	// the config schema; the line-based chunker wants a line count, so
	// treat ~60 characters per line as a rough average line width.
	lines := cfg.Chunk.Size / 60
	if lines < 1 {
		lines = 1
	}
	return lines
}

func overlapLines(cfg *config.Config) int {
	if cfg.Chunk.Overlap <= 0 {
		return 0
	}
	lines := cfg.Chunk.Overlap / 60
	if lines < 1 {
		lines = 1
	}
	return lines
}

func readMeta(path string) (meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return meta{}, err
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}, errs.Wrap(errs.KindIndexCorrupt, "state", "parse meta.json", err)
	}
	return m, nil
}

// Save flushes the BM25 engine and vector store to disk and writes an
// up-to-date meta.json. The inverted index and symbol database persist
// themselves incrementally on every write, so they need no explicit
// flush here.
func (s *State) Save(ctx context.Context) error {
	for _, id := range s.BM25.DocumentIDs() {
		doc, ok := s.BM25.Document(id)
		if !ok {
			continue
		}
		if err := s.bm25Store.Snapshot(ctx, doc); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.vectorPath), 0o755); err != nil {
		return errs.Wrap(errs.KindInternal, "state", "create vector directory", err)
	}
	if err := s.Vectors.Save(s.vectorPath); err != nil {
		return errs.Wrap(errs.KindInternal, "state", "save vector store", err)
	}

	_, _, _, _, metaPath := paths(s.DataDir)
	m := meta{SchemaVersion: SchemaVersion, Dimensions: s.Embedder.Dimensions(), UpdatedAt: time.Now()}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindInternal, "state", "marshal meta.json", err)
	}
	if err := os.WriteFile(metaPath, data, 0o644); err != nil {
		return errs.Wrap(errs.KindInternal, "state", "write meta.json", err)
	}
	return nil
}

// Close releases every backend's resources.
func (s *State) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(s.bm25Store.Close())
	record(s.Inverted.Close())
	record(s.Vectors.Close())
	record(s.SymbolDB.Close())
	s.SymbolIdx.Close()
	return firstErr
}
