package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SignalRecord is the persisted view of an admitted signal.
type SignalRecord struct {
	Fingerprint string
	Payload     string
	ReceivedAt  time.Time
	Processed   bool
}

// RecordSignal persists the admitted signal's fingerprint and opaque
// payload. Called once per signal, before dispatch, so the raw payload
// survives even if the process crashes mid-dispatch. A second insert
// under the same fingerprint is a defense-in-depth violation — the
// deduplicator should have already caught it — so it is surfaced as an
// error rather than silently dropped.
func (s *Store) RecordSignal(ctx context.Context, fingerprint, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (fingerprint, payload, received_at, processed) VALUES (?, ?, ?, 0)`,
		fingerprint, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record signal: %w", err)
	}
	return nil
}

// MarkProcessed flips a signal's processed flag once dispatch completes.
func (s *Store) MarkProcessed(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE signals SET processed = 1 WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// GetSignal returns the persisted signal, or nil if never recorded.
func (s *Store) GetSignal(ctx context.Context, fingerprint string) (*SignalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload, received_at, processed FROM signals WHERE fingerprint = ?`,
		fingerprint)

	var rec SignalRecord
	var receivedAt string
	var processed int
	err := row.Scan(&rec.Fingerprint, &rec.Payload, &receivedAt, &processed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	rec.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	rec.Processed = processed != 0
	return &rec, nil
}
