package bm25

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/model"
)

// Store persists an Engine's documents to SQLite so a restart can restore
// the index without re-tokenizing every file. It snapshots documents and
// their tokens directly, rather than FTS5 postings, since the engine's own
// incremental posting-list maintenance is what we want restored exactly.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the snapshot database at path. An empty path
// opens an in-memory database, useful for tests.
func OpenStore(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "bm25", "open snapshot database", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errs.Wrap(errs.KindInternal, "bm25", "set pragma", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id      TEXT PRIMARY KEY,
		file_path   TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_line  INTEGER NOT NULL,
		end_line    INTEGER NOT NULL,
		language    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		doc_id   TEXT NOT NULL,
		text     TEXT NOT NULL,
		kind     INTEGER NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(doc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_doc_id ON tokens(doc_id);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "bm25", "create snapshot schema", err)
	}
	return nil
}

// Snapshot replaces the persisted copy of doc with its current contents.
func (s *Store) Snapshot(ctx context.Context, doc Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "begin snapshot transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE doc_id = ?`, doc.ID); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "clear prior tokens", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents(doc_id, file_path, chunk_index, start_line, end_line, language)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FilePath, doc.ChunkIndex, doc.StartLine, doc.EndLine, doc.Language); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "upsert document row", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tokens(doc_id, text, kind, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "prepare token insert", err)
	}
	defer stmt.Close()

	for _, tok := range doc.Tokens {
		if _, err := stmt.ExecContext(ctx, doc.ID, tok.Text, int(tok.Kind), tok.Position); err != nil {
			return errs.Wrap(errs.KindInternal, "bm25", "insert token", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "commit snapshot", err)
	}
	return nil
}

// Delete removes a document's persisted snapshot.
func (s *Store) Delete(ctx context.Context, docID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "begin delete transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE doc_id = ?`, docID); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "delete tokens", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "delete document row", err)
	}
	return tx.Commit()
}

// Restore rebuilds engine from every document persisted in the store, in
// doc_id order, by replaying AddDocument for each.
func (s *Store) Restore(ctx context.Context, engine *Engine) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, file_path, chunk_index, start_line, end_line, language FROM documents ORDER BY doc_id`)
	if err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "bm25", "query documents for restore", err)
	}
	defer rows.Close()

	type docRow struct {
		id, filePath, language  string
		chunkIndex, start, end int
	}
	var docRows []docRow
	for rows.Next() {
		var d docRow
		if err := rows.Scan(&d.id, &d.filePath, &d.chunkIndex, &d.start, &d.end, &d.language); err != nil {
			return errs.Wrap(errs.KindIndexCorrupt, "bm25", "scan document row", err)
		}
		docRows = append(docRows, d)
	}
	if err := rows.Err(); err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "bm25", "iterate document rows", err)
	}

	for _, d := range docRows {
		tokens, err := s.loadTokens(ctx, d.id)
		if err != nil {
			return err
		}
		if err := engine.AddDocument(Document{
			ID:         d.id,
			FilePath:   d.filePath,
			ChunkIndex: d.chunkIndex,
			StartLine:  d.start,
			EndLine:    d.end,
			Language:   d.language,
			Tokens:     tokens,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadTokens(ctx context.Context, docID string) ([]model.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, kind, position FROM tokens WHERE doc_id = ? ORDER BY position`, docID)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexCorrupt, "bm25", "query tokens for restore", err)
	}
	defer rows.Close()

	var tokens []model.Token
	for rows.Next() {
		var t model.Token
		var kind int
		if err := rows.Scan(&t.Text, &kind, &t.Position); err != nil {
			return nil, errs.Wrap(errs.KindIndexCorrupt, "bm25", "scan token row", err)
		}
		t.Kind = model.TokenKind(kind)
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.KindInternal, "bm25", "close snapshot database", err)
	}
	return nil
}
