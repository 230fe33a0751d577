// Package symbolstore persists extracted symbols to SQLite (symbols.db),
// so the symbol retriever survives a process restart without re-parsing
// every file. Rows are keyed by (file_path, name, line): re-indexing the
// same symbol at the same location is an idempotent upsert, matching the
// incremental updater's delete-before-insert semantics for everything
// else it tracks.
package symbolstore

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/codesearch/codesearch/internal/errs"
	"github.com/codesearch/codesearch/internal/model"
)

// Store wraps a symbols.db SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. An empty path opens an
// in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "symbolstore", "open symbols database", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, errs.Wrap(errs.KindInternal, "symbolstore", "set pragma", err)
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
	CREATE TABLE IF NOT EXISTS symbols (
		file_path  TEXT NOT NULL,
		name       TEXT NOT NULL,
		line       INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		end_line   INTEGER NOT NULL,
		signature  TEXT NOT NULL,
		parent     TEXT NOT NULL,
		language   TEXT NOT NULL,
		PRIMARY KEY (file_path, name, line)
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errs.Wrap(errs.KindIndexCorrupt, "symbolstore", "create symbols schema", err)
	}
	return nil
}

// ReplaceFile atomically swaps filePath's persisted symbols for syms:
// every prior row for filePath is removed before the new set is
// inserted, so a shrunk or renamed symbol never lingers.
func (s *Store) ReplaceFile(ctx context.Context, filePath string, syms []model.Symbol) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "begin replace transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "clear prior symbols", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO symbols(file_path, name, line, kind, end_line, signature, parent, language)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "prepare symbol insert", err)
	}
	defer stmt.Close()

	for _, sym := range syms {
		if _, err := stmt.ExecContext(ctx, sym.FilePath, sym.Name, sym.StartLine, sym.Kind,
			sym.EndLine, sym.Signature, sym.Parent, sym.Language); err != nil {
			return errs.Wrap(errs.KindInternal, "symbolstore", "insert symbol row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "commit symbol replace", err)
	}
	return nil
}

// DeleteFile removes every persisted symbol for filePath.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, filePath); err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "delete file symbols", err)
	}
	return nil
}

// LoadAll returns every persisted symbol, grouped by file path, for
// hydrating the updater's in-memory symbol table at startup.
func (s *Store) LoadAll(ctx context.Context) (map[string][]model.Symbol, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, name, line, kind, end_line, signature, parent, language FROM symbols ORDER BY file_path, line`)
	if err != nil {
		return nil, errs.Wrap(errs.KindIndexCorrupt, "symbolstore", "query symbols for restore", err)
	}
	defer rows.Close()

	out := make(map[string][]model.Symbol)
	for rows.Next() {
		var sym model.Symbol
		if err := rows.Scan(&sym.FilePath, &sym.Name, &sym.StartLine, &sym.Kind,
			&sym.EndLine, &sym.Signature, &sym.Parent, &sym.Language); err != nil {
			return nil, errs.Wrap(errs.KindIndexCorrupt, "symbolstore", "scan symbol row", err)
		}
		out[sym.FilePath] = append(out[sym.FilePath], sym)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.KindInternal, "symbolstore", "close symbols database", err)
	}
	return nil
}
