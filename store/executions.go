package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecutionStatus is the persisted outcome of one adapter's dispatch.
type ExecutionStatus string

const (
	ExecPending ExecutionStatus = "pending"
	ExecFilled  ExecutionStatus = "filled"
	ExecPartial ExecutionStatus = "partial"
	ExecFailed  ExecutionStatus = "failed"
)

// ResultBlob is the opaque adapter-response payload stored alongside
// an execution record. FilledAmount/RemainingAmount drive the
// post-hoc partial-fill coercion; ErrorMessage and IsTestMode are
// carried through for the execution log viewer.
type ResultBlob struct {
	FilledAmount    decimal.Decimal `json:"filled_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	IsTestMode      bool            `json:"is_test_mode,omitempty"`
}

// ExecutionRecord is the persisted view returned by RecordExecution:
// an assigned identifier, the (possibly coerced) status, and the UTC
// creation timestamp.
type ExecutionRecord struct {
	ID                string
	SignalFingerprint string
	AdapterID         string
	ExternalOrderID   string
	Status            ExecutionStatus
	ResultBlob        ResultBlob
	LatencyMS         *int64
	CreatedAt         time.Time
}

// RecordExecution persists one adapter's outcome for a signal. If
// resultBlob indicates both a nonzero filled amount and a nonzero
// remaining amount, status is coerced to partial regardless of the
// caller-supplied status — this is the one authoritative place that
// classification happens.
func (s *Store) RecordExecution(ctx context.Context, signalFingerprint, adapterID, externalOrderID string, status ExecutionStatus, resultBlob ResultBlob, latencyMS *int64) (*ExecutionRecord, error) {
	if resultBlob.FilledAmount.IsPositive() && resultBlob.RemainingAmount.IsPositive() {
		status = ExecPartial
	}
	switch status {
	case ExecFilled, ExecPartial, ExecFailed, ExecPending:
	default:
		return nil, fmt.Errorf("record execution: invalid status %q", status)
	}

	blob, err := json.Marshal(resultBlob)
	if err != nil {
		return nil, fmt.Errorf("record execution: marshal result blob: %w", err)
	}

	rec := &ExecutionRecord{
		ID:                uuid.NewString(),
		SignalFingerprint: signalFingerprint,
		AdapterID:         adapterID,
		ExternalOrderID:   externalOrderID,
		Status:            status,
		ResultBlob:        resultBlob,
		LatencyMS:         latencyMS,
		CreatedAt:         time.Now().UTC(),
	}

	var orderID sql.NullString
	if externalOrderID != "" {
		orderID = sql.NullString{String: externalOrderID, Valid: true}
	}
	var latency sql.NullInt64
	if latencyMS != nil {
		latency = sql.NullInt64{Int64: *latencyMS, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, signal_fingerprint, adapter_id, external_order_id, status, result_blob, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SignalFingerprint, rec.AdapterID, orderID, string(rec.Status), string(blob), latency,
		rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("record execution: %w", err)
	}
	return rec, nil
}

// ExecutionsForSignal returns every execution row recorded for a
// signal fingerprint, most recent first.
func (s *Store) ExecutionsForSignal(ctx context.Context, signalFingerprint string) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, signal_fingerprint, adapter_id, external_order_id, status, result_blob, latency_ms, created_at
		 FROM executions WHERE signal_fingerprint = ? ORDER BY created_at DESC`,
		signalFingerprint)
	if err != nil {
		return nil, fmt.Errorf("executions for signal: %w", err)
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var orderID sql.NullString
		var status, blob, createdAt string
		var latency sql.NullInt64

		if err := rows.Scan(&rec.ID, &rec.SignalFingerprint, &rec.AdapterID, &orderID, &status, &blob, &latency, &createdAt); err != nil {
			return nil, fmt.Errorf("executions for signal: scan: %w", err)
		}
		rec.ExternalOrderID = orderID.String
		rec.Status = ExecutionStatus(status)
		_ = json.Unmarshal([]byte(blob), &rec.ResultBlob)
		if latency.Valid {
			l := latency.Int64
			rec.LatencyMS = &l
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
