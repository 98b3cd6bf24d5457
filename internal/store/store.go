// Package store provides the SQLite-backed models cache for VivoAssist. The
// cache records, per manual, the device or model names the manual covers and
// the pages they were extracted from, so the inventory query ("what models do
// you support") answers from local state instead of re-asking the index.
// Records persist across restarts; a cache build is resume-safe because
// already-cached manuals are skipped.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is the cached model inventory of one manual.
type Record struct {
	// Manual is the manual identifier the record belongs to.
	Manual string
	// Name is the device/model name the manual covers.
	Name string
	// Pages are the manual pages the name was extracted from. Empty when
	// the name was inferred rather than extracted.
	Pages []string
	// Inferred marks a name derived from the manual's filename because
	// extraction found nothing usable in the content.
	Inferred bool
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
}

// ModelsStore persists and retrieves per-manual model records.
// Implementations must be safe for concurrent use.
type ModelsStore interface {
	// Put replaces the records for a manual atomically.
	Put(ctx context.Context, manual string, records []Record) error
	// Get returns the records for a manual, oldest-first. A manual with no
	// records returns an empty slice, not an error.
	Get(ctx context.Context, manual string) ([]Record, error)
	// Manuals returns the identifiers of all manuals that have records,
	// sorted ascending.
	Manuals(ctx context.Context) ([]string, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ModelsStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the models cache database.
// It resolves to ~/.vivoassist/models.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".vivoassist")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "models.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS models (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    manual       TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    pages        TEXT    NOT NULL DEFAULT '[]',  -- JSON array of page labels
    inferred     INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_models_manual
    ON models (manual, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Put replaces the records for a manual atomically: existing rows are deleted
// and the new set inserted inside one transaction, so a crash mid-build never
// leaves a manual half-written.
func (s *SQLiteStore) Put(ctx context.Context, manual string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: put begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM models WHERE manual = ?`, manual); err != nil {
		return fmt.Errorf("store: put delete: %w", err)
	}

	const ins = `INSERT INTO models (manual, name, pages, inferred, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().Unix()
	for _, r := range records {
		pages := r.Pages
		if pages == nil {
			pages = []string{}
		}
		encoded, err := json.Marshal(pages)
		if err != nil {
			return fmt.Errorf("store: put encode pages: %w", err)
		}
		inferred := 0
		if r.Inferred {
			inferred = 1
		}
		if _, err := tx.ExecContext(ctx, ins, manual, r.Name, string(encoded), inferred, now); err != nil {
			return fmt.Errorf("store: put insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: put commit: %w", err)
	}
	return nil
}

// Get returns the records for a manual in insertion order.
func (s *SQLiteStore) Get(ctx context.Context, manual string) ([]Record, error) {
	const q = `
SELECT name, pages, inferred, created_at
FROM   models
WHERE  manual = ?
ORDER  BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, manual)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var pages string
		var inferred int
		var ts int64
		if err := rows.Scan(&r.Name, &pages, &inferred, &ts); err != nil {
			return nil, fmt.Errorf("store: get scan: %w", err)
		}
		if err := json.Unmarshal([]byte(pages), &r.Pages); err != nil {
			return nil, fmt.Errorf("store: get decode pages: %w", err)
		}
		r.Manual = manual
		r.Inferred = inferred != 0
		r.CreatedAt = time.Unix(ts, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get rows: %w", err)
	}
	return records, nil
}

// Manuals returns the identifiers of all manuals that have cached records.
func (s *SQLiteStore) Manuals(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT manual FROM models ORDER BY manual ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: manuals: %w", err)
	}
	defer rows.Close()

	var manuals []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("store: manuals scan: %w", err)
		}
		manuals = append(manuals, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: manuals rows: %w", err)
	}
	return manuals, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
