package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecordExecution_FilledStatusPersists(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	latency := int64(42)
	rec, err := st.RecordExecution(ctx, "fp-1", "mock", "order-1", ExecFilled, ResultBlob{
		FilledAmount: decimal.RequireFromString("1.5"),
	}, &latency)
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if rec.Status != ExecFilled {
		t.Fatalf("expected status filled, got %s", rec.Status)
	}
	if rec.ID == "" {
		t.Fatal("expected a generated execution id")
	}
}

func TestRecordExecution_CoercesToPartialWhenBothAmountsPositive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec, err := st.RecordExecution(ctx, "fp-1", "mock", "order-1", ExecFilled, ResultBlob{
		FilledAmount:    decimal.RequireFromString("0.5"),
		RemainingAmount: decimal.RequireFromString("0.5"),
	}, nil)
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if rec.Status != ExecPartial {
		t.Fatalf("expected a positive filled+remaining pair to coerce to partial, got %s", rec.Status)
	}
}

func TestRecordExecution_DoesNotCoerceWhenOnlyFilledPositive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec, err := st.RecordExecution(ctx, "fp-1", "mock", "order-1", ExecFilled, ResultBlob{
		FilledAmount: decimal.RequireFromString("1"),
	}, nil)
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
	if rec.Status != ExecFilled {
		t.Fatalf("expected status to remain filled with zero remaining, got %s", rec.Status)
	}
}

func TestRecordExecution_InvalidStatusRejected(t *testing.T) {
	st := openTestStore(t)
	_, err := st.RecordExecution(context.Background(), "fp-1", "mock", "", ExecutionStatus("bogus"), ResultBlob{}, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid execution status")
	}
}

func TestExecutionsForSignal_MostRecentFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.RecordExecution(ctx, "fp-1", "adapter-a", "order-1", ExecFilled, ResultBlob{}, nil); err != nil {
		t.Fatalf("record execution 1: %v", err)
	}
	if _, err := st.RecordExecution(ctx, "fp-1", "adapter-b", "order-2", ExecFailed, ResultBlob{ErrorMessage: "rejected"}, nil); err != nil {
		t.Fatalf("record execution 2: %v", err)
	}

	executions, err := st.ExecutionsForSignal(ctx, "fp-1")
	if err != nil {
		t.Fatalf("executions for signal: %v", err)
	}
	if len(executions) != 2 {
		t.Fatalf("expected 2 execution rows, got %d", len(executions))
	}
	if executions[0].AdapterID != "adapter-b" {
		t.Fatalf("expected the most recently recorded execution first, got %q", executions[0].AdapterID)
	}
}

func TestExecutionsForSignal_EmptyForUnknownFingerprint(t *testing.T) {
	st := openTestStore(t)
	executions, err := st.ExecutionsForSignal(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("executions for signal: %v", err)
	}
	if len(executions) != 0 {
		t.Fatalf("expected no execution rows, got %d", len(executions))
	}
}
