package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/alpinetrade/dex-gateway/secrets"
)

const (
	errorLogDefaultLimit = 50
	errorLogMaxLimit     = 100
)

// ErrorLogEntry is one persisted error/warning event.
type ErrorLogEntry struct {
	ID          string
	Level       string
	Category    string
	Message     string
	ContextBlob string
	CreatedAt   time.Time
}

// RecordError persists an error/warning event. It is fire-and-forget
// from the caller's perspective: it does not return an error, and a
// persistence failure is logged to stderr rather than surfaced,
// because a broken error log must never itself break dispatch. The
// message and context blob pass through secrets.RedactSecrets before
// they are written.
func (s *Store) RecordError(ctx context.Context, level, category, message, contextBlob string) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO error_log (id, level, category, message, context_blob, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), level, category, secrets.RedactSecrets(message), secrets.RedactSecrets(contextBlob), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error_log: failed to persist entry (category=%s): %v\n", category, err)
	}
}

// Errors returns up to limit recent error log entries (clamped to
// errorLogMaxLimit), most recent first, optionally restricted to the
// last `hours` hours.
func (s *Store) Errors(ctx context.Context, limit int, hours *int) ([]ErrorLogEntry, error) {
	if limit <= 0 {
		limit = errorLogDefaultLimit
	}
	if limit > errorLogMaxLimit {
		limit = errorLogMaxLimit
	}

	query := `SELECT id, level, category, message, context_blob, created_at FROM error_log`
	args := []interface{}{}
	if hours != nil {
		cutoff := time.Now().UTC().Add(-time.Duration(*hours) * time.Hour).Format(time.RFC3339Nano)
		query += ` WHERE created_at >= ?`
		args = append(args, cutoff)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("errors: %w", err)
	}
	defer rows.Close()

	var out []ErrorLogEntry
	for rows.Next() {
		var e ErrorLogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.ContextBlob, &createdAt); err != nil {
			return nil, fmt.Errorf("errors: scan: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupOldErrors deletes error log entries older than retention and
// returns the number of rows removed. Intended to be called
// periodically by a background sweep.
func (s *Store) CleanupOldErrors(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM error_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old errors: %w", err)
	}
	return res.RowsAffected()
}

// RunRetentionSweep runs CleanupOldErrors once per interval until ctx
// is cancelled. Grounded on the teacher's periodic-ticker background
// loop shape (start-stop via context, not a separate stop channel).
func (s *Store) RunRetentionSweep(ctx context.Context, retention, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupOldErrors(ctx, retention); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
