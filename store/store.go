// Package store is the persistent record of the system: signals
// received, per-adapter execution outcomes (C4), and the error log
// (C5). Backed by SQLite in WAL mode via database/sql, matching
// spec.md §6's schema layout exactly.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the database handle shared by the signals, executions,
// and error log tables.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path, enables
// WAL mode for concurrent readers alongside a single writer, and
// migrates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writers serialize at the SQLite level regardless; one connection
	// avoids "database is locked" churn under WAL with concurrent goroutines.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			fingerprint TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			received_at TEXT NOT NULL,
			processed   INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id                  TEXT PRIMARY KEY,
			signal_fingerprint  TEXT NOT NULL,
			adapter_id          TEXT NOT NULL,
			external_order_id   TEXT,
			status              TEXT NOT NULL,
			result_blob         TEXT NOT NULL,
			latency_ms          INTEGER,
			created_at          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_signal ON executions (signal_fingerprint)`,
		`CREATE TABLE IF NOT EXISTS error_log (
			id          TEXT PRIMARY KEY,
			level       TEXT NOT NULL,
			category    TEXT NOT NULL,
			message     TEXT NOT NULL,
			context_blob TEXT,
			created_at  TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_error_log_created_at ON error_log (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
