// Package updater orchestrates incremental index maintenance: turning a
// single file change into the coordinated sequence of deletes and inserts
// across the symbol, BM25, inverted-index, and vector stores.
package updater

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/codesearch/codesearch/internal/bm25"
	"github.com/codesearch/codesearch/internal/chunker"
	"github.com/codesearch/codesearch/internal/embedcache"
	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/invertedindex"
	"github.com/codesearch/codesearch/internal/model"
	"github.com/codesearch/codesearch/internal/symbols"
	"github.com/codesearch/codesearch/internal/symbolstore"
	"github.com/codesearch/codesearch/internal/tokenizer"
	"github.com/codesearch/codesearch/internal/vectoradapter"
)

// DefaultMaxTokensPerDocument bounds how many tokens a single chunk
// contributes to the BM25 and inverted indexes absent a config override.
const DefaultMaxTokensPerDocument = 100000

// Stats reports cumulative counters for observability and the CLI's
// progress output.
type Stats struct {
	FilesIndexed int64
	FilesDeleted int64
	FilesFailed  int64
	ChunksTotal  int64
}

// Updater applies a FileChange to every retrieval backend in a fixed
// order: the symbol indexer and BM25 engine first (cheap, CPU-only),
// then the inverted index, then the vector store (the most expensive per
// document). A delete always precedes a re-insert, so a modified file
// never leaves stale chunks from a shrunk or renamed symbol set behind.
type Updater struct {
	chunker     *chunker.Chunker
	symbols     *symbols.Indexer
	bm25        *bm25.Engine
	inverted    *invertedindex.Index
	vectors     *vectoradapter.Store
	embedder    embedcache.Embedder
	symbolStore *symbolstore.Store
	stopWords   map[string]struct{}
	fileSymbols map[string][]model.Symbol // filePath -> last known symbols, for Delete
	chunks      map[string]model.Chunk    // chunk ID -> chunk, for the three-chunk expander

	maxTokensPerDoc int
	logger          *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Config wires an Updater's backing stores. Vectors and Embedder may both
// be nil to run in lexical-only mode (no semantic retrieval); Inverted may
// be nil to skip full-text/fuzzy matching.
type Config struct {
	Chunker  *chunker.Chunker
	Symbols  *symbols.Indexer
	BM25     *bm25.Engine
	Inverted *invertedindex.Index
	Vectors  *vectoradapter.Store
	Embedder embedcache.Embedder

	// SymbolStore, if set, persists extracted symbols to symbols.db so a
	// restart can hydrate the symbol retriever via LoadPersistedSymbols
	// instead of re-parsing every file.
	SymbolStore *symbolstore.Store

	// MaxTokensPerDocument caps how many tokens a single chunk contributes
	// to the BM25 and inverted indexes. Zero uses DefaultMaxTokensPerDocument.
	MaxTokensPerDocument int
	Logger               *slog.Logger
}

// New builds an Updater from cfg.
func New(cfg Config) (*Updater, error) {
	if cfg.Chunker == nil || cfg.Symbols == nil || cfg.BM25 == nil {
		return nil, errs.New(errs.KindInvalidInput, "updater", "chunker, symbols, and bm25 are required")
	}
	maxTokens := cfg.MaxTokensPerDocument
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokensPerDocument
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		chunker:         cfg.Chunker,
		symbols:         cfg.Symbols,
		bm25:            cfg.BM25,
		inverted:        cfg.Inverted,
		vectors:         cfg.Vectors,
		embedder:        cfg.Embedder,
		symbolStore:     cfg.SymbolStore,
		stopWords:       tokenizer.BuildStopWordMap(tokenizer.DefaultStopWords),
		fileSymbols:     make(map[string][]model.Symbol),
		chunks:          make(map[string]model.Chunk),
		maxTokensPerDoc: maxTokens,
		logger:          logger,
	}, nil
}

// LoadPersistedSymbols hydrates the in-memory symbol table from
// SymbolStore, so the symbol retriever works immediately after a restart
// without waiting for every file to be re-touched.
func (u *Updater) LoadPersistedSymbols(ctx context.Context) error {
	if u.symbolStore == nil {
		return nil
	}
	byFile, err := u.symbolStore.LoadAll(ctx)
	if err != nil {
		return err
	}
	u.mu.Lock()
	for filePath, syms := range byFile {
		u.fileSymbols[filePath] = syms
	}
	u.mu.Unlock()
	return nil
}

// Apply processes a single FileChange end to end.
func (u *Updater) Apply(ctx context.Context, change model.FileChange) error {
	switch change.Kind {
	case model.ChangeDeleted:
		return u.applyDelete(ctx, change.FilePath)
	default:
		return u.applyUpsert(ctx, change.FilePath)
	}
}

// ApplyBatch processes changes in order, continuing past per-file
// failures so one bad file doesn't stall reconciliation of the rest; if
// any file failed, it returns one KindInternal error whose failure_count
// detail is the number of failed files.
func (u *Updater) ApplyBatch(ctx context.Context, changes []model.FileChange) error {
	var failures []error
	for _, change := range changes {
		if err := u.Apply(ctx, change); err != nil {
			failures = append(failures, err)
			u.mu.Lock()
			u.stats.FilesFailed++
			u.mu.Unlock()
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return errs.New(errs.KindInternal, "updater", "one or more files failed to index").
		WithDetail("failure_count", itoa(len(failures)))
}

func (u *Updater) applyDelete(ctx context.Context, filePath string) error {
	if err := u.deleteFileFromIndexes(ctx, filePath); err != nil {
		return err
	}
	u.mu.Lock()
	delete(u.fileSymbols, filePath)
	u.stats.FilesDeleted++
	u.mu.Unlock()
	if u.symbolStore != nil {
		if err := u.symbolStore.DeleteFile(ctx, filePath); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) applyUpsert(ctx context.Context, filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return u.applyDelete(ctx, filePath)
		}
		return errs.Wrap(errs.KindInvalidInput, "updater", "read file", err)
	}

	language := chunker.LanguageFromExtension(filePath)

	// Delete-before-insert: stale chunks and symbols from a shrunk file
	// must not survive a re-index.
	if err := u.deleteFileFromIndexes(ctx, filePath); err != nil {
		return err
	}

	chunks, err := u.chunker.Chunk(filePath, string(content), language)
	if err != nil {
		return errs.Wrap(errs.KindInvalidInput, "updater", "chunk file", err)
	}

	syms, err := u.symbols.IndexFile(ctx, filePath, content, language)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "updater", "extract symbols", err)
	}
	u.mu.Lock()
	u.fileSymbols[filePath] = syms
	u.mu.Unlock()
	if u.symbolStore != nil {
		if err := u.symbolStore.ReplaceFile(ctx, filePath, syms); err != nil {
			return err
		}
	}

	if err := u.indexChunks(ctx, chunks, language); err != nil {
		return err
	}

	u.mu.Lock()
	u.stats.FilesIndexed++
	u.stats.ChunksTotal += int64(len(chunks))
	u.mu.Unlock()
	return nil
}

func (u *Updater) indexChunks(ctx context.Context, chunks []model.Chunk, language string) error {
	u.mu.Lock()
	for _, chunk := range chunks {
		u.chunks[chunk.ID] = chunk
	}
	u.mu.Unlock()

	for _, chunk := range chunks {
		tokens := tokenizer.FilterStopWords(tokenizer.Tokenize(chunk.Content), u.stopWords)
		if len(tokens) > u.maxTokensPerDoc {
			u.logger.Warn("chunk exceeds max tokens per document, truncating",
				"chunk_id", chunk.ID, "file_path", chunk.FilePath,
				"token_count", len(tokens), "max_tokens", u.maxTokensPerDoc)
			tokens = tokens[:u.maxTokensPerDoc]
		}
		if err := u.bm25.AddDocument(bm25.Document{
			ID:         chunk.ID,
			FilePath:   chunk.FilePath,
			ChunkIndex: chunk.ChunkIndex,
			StartLine:  chunk.StartLine,
			EndLine:    chunk.EndLine,
			Language:   language,
			Tokens:     tokens,
		}); err != nil {
			return errs.Wrap(errs.KindInternal, "updater", "add bm25 document", err)
		}
	}

	if u.inverted != nil && len(chunks) > 0 {
		docs := make([]invertedindex.Document, len(chunks))
		for i, chunk := range chunks {
			docs[i] = invertedindex.Document{
				ID:       chunk.ID,
				Content:  chunk.Content,
				FilePath: chunk.FilePath,
				Language: language,
			}
		}
		if err := u.inverted.Index(ctx, docs); err != nil {
			return errs.Wrap(errs.KindInternal, "updater", "update inverted index", err)
		}
	}

	if u.vectors != nil && u.embedder != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Content
			ids[i] = chunk.ID
		}
		vectors, err := u.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			// Fall back to one chunk at a time: a chunk whose embedding
			// fails is logged and skipped instead of failing the file.
			ids, vectors = ids[:0], nil
			for _, chunk := range chunks {
				vec, embedErr := u.embedder.Embed(ctx, chunk.Content)
				if embedErr != nil {
					u.logger.Warn("embedding failed, skipping chunk",
						"chunk_id", chunk.ID, "error", embedErr)
					continue
				}
				ids = append(ids, chunk.ID)
				vectors = append(vectors, vec)
			}
		}
		if err := u.vectors.Add(ctx, ids, vectors); err != nil {
			return errs.Wrap(errs.KindInternal, "updater", "update vector store", err)
		}
	}
	return nil
}

// deleteFileFromIndexes removes every chunk previously indexed for
// filePath across all backends. Deletion doesn't require re-reading the
// file: the chunk IDs to remove are found by scanning the BM25 engine's
// documents for filePath (bm25IDsForFile).
func (u *Updater) deleteFileFromIndexes(ctx context.Context, filePath string) error {
	ids := u.bm25IDsForFile(filePath)
	if len(ids) == 0 {
		return nil
	}

	u.mu.Lock()
	for _, id := range ids {
		delete(u.chunks, id)
	}
	u.mu.Unlock()

	for _, id := range ids {
		u.bm25.RemoveDocument(id)
	}
	if u.inverted != nil {
		if err := u.inverted.Delete(ctx, ids); err != nil {
			return errs.Wrap(errs.KindInternal, "updater", "delete from inverted index", err)
		}
	}
	if u.vectors != nil {
		if err := u.vectors.Delete(ctx, ids); err != nil {
			return errs.Wrap(errs.KindInternal, "updater", "delete from vector store", err)
		}
	}
	return nil
}

// bm25IDsForFile finds every currently-indexed chunk ID belonging to
// filePath by scanning the BM25 engine's document set. This is a linear
// scan; for the incremental, one-file-at-a-time update path it is cheap,
// since a single file rarely has more than a few dozen chunks.
func (u *Updater) bm25IDsForFile(filePath string) []string {
	var ids []string
	for _, id := range u.bm25.DocumentIDs() {
		doc, ok := u.bm25.Document(id)
		if ok && doc.FilePath == filePath {
			ids = append(ids, id)
		}
	}
	return ids
}

// Stats returns a snapshot of cumulative update counters.
func (u *Updater) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// SymbolsForFile returns the most recently indexed symbols for filePath,
// used by the symbol retriever to answer "find definition" style queries
// without re-parsing the file.
func (u *Updater) SymbolsForFile(filePath string) []model.Symbol {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.fileSymbols[filePath]
}

// Chunk returns the most recently indexed chunk for chunkID, if it is
// still live. Used by the three-chunk expander to resolve a hit's
// neighboring chunks by ID.
func (u *Updater) Chunk(chunkID string) (model.Chunk, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	c, ok := u.chunks[chunkID]
	return c, ok
}

// AllSymbols returns every symbol currently tracked across all indexed
// files.
func (u *Updater) AllSymbols() []model.Symbol {
	u.mu.Lock()
	defer u.mu.Unlock()
	var all []model.Symbol
	for _, syms := range u.fileSymbols {
		all = append(all, syms...)
	}
	return all
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
