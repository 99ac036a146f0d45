// Package signal implements the fingerprint function (§4.10) and the
// signal processor (C6): parallel fan-out of one validated signal to
// every active DEX adapter, with a hard dispatch deadline.
package signal

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/store"
	"github.com/alpinetrade/dex-gateway/tracing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OverallStatus summarizes a dispatch across all active adapters.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallPartial OverallStatus = "partial"
	OverallFailed  OverallStatus = "failed"
)

// OutcomeStatus is one adapter's per-signal submission outcome, as
// surfaced in ProcessingResponse — distinct from the execution log's
// post-hoc partial classification.
type OutcomeStatus string

const (
	OutcomeFilled OutcomeStatus = "filled"
	OutcomeError  OutcomeStatus = "error"
)

var errProcessFailed = errors.New("signal dispatch failed")

// AdapterOutcome is one adapter's result row in a ProcessingResponse.
type AdapterOutcome struct {
	AdapterID       string          `json:"adapter_id"`
	Status          OutcomeStatus   `json:"status"`
	ExternalOrderID string          `json:"external_order_id,omitempty"`
	FilledAmount    decimal.Decimal `json:"filled_amount"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	LatencyMS       int64           `json:"latency_ms"`
}

// ProcessingResponse is C6's return value.
type ProcessingResponse struct {
	SignalFingerprint string           `json:"signal_fingerprint"`
	OverallStatus     OverallStatus    `json:"overall_status"`
	Results           []AdapterOutcome `json:"results"`
	ActiveCount       int              `json:"active_count"`
	SuccessfulCount   int              `json:"successful_count"`
	FailedCount       int              `json:"failed_count"`
	TotalLatencyMS    int64            `json:"total_latency_ms"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Processor dispatches validated signals to every active adapter in
// parallel, bounded by a single deadline, and records one execution
// row per outcome.
type Processor struct {
	registry *dexadapter.Registry
	store    *store.Store
	tracer   *tracing.Tracer
	log      zerolog.Logger
	deadline time.Duration
}

// NewProcessor wires the dispatch fan-out. tracer is optional (nil is
// safe) so tests can drive Process without a tracer configured.
func NewProcessor(registry *dexadapter.Registry, st *store.Store, tracer *tracing.Tracer, log zerolog.Logger, deadline time.Duration) *Processor {
	if deadline == 0 {
		deadline = 30 * time.Second
	}
	return &Processor{
		registry: registry,
		store:    st,
		tracer:   tracer,
		log:      log.With().Str("component", "signal_processor").Logger(),
		deadline: deadline,
	}
}

// startSpan begins a span as a child of whatever span the inbound HTTP
// request already attached to ctx, falling back to a root span if none
// is present. It is a no-op when no tracer is configured.
func (p *Processor) startSpan(ctx context.Context, name string) *tracing.Span {
	if p.tracer == nil {
		return nil
	}
	var parent *tracing.SpanContext
	if s := tracing.SpanFromContext(ctx); s != nil {
		sc := s.Context
		parent = &sc
	}
	return p.tracer.StartSpan(name, parent)
}

func (p *Processor) endSpan(span *tracing.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus("ERROR", err.Error())
	} else {
		span.SetStatus("OK", "")
	}
	p.tracer.EndSpan(span)
}

// Process dispatches payload to every currently active adapter.
// isTestMode is stamped into each execution record's result_blob so
// audit/volume aggregations can exclude dry-run dispatches.
func (p *Processor) Process(ctx context.Context, payload Payload, fingerprint string, isTestMode bool) (resp ProcessingResponse) {
	start := time.Now()

	span := p.startSpan(ctx, "signal.dispatch")
	if span != nil {
		span.SetAttribute("signal_fingerprint", fingerprint)
		span.SetAttribute("symbol", payload.Symbol)
		span.SetAttribute("side", payload.Side)
	}
	defer func() {
		if span == nil {
			return
		}
		span.SetAttribute("overall_status", string(resp.OverallStatus))
		span.SetAttribute("active_count", strconv.Itoa(resp.ActiveCount))
		var err error
		if resp.OverallStatus == OverallFailed {
			err = errProcessFailed
		}
		p.endSpan(span, err)
	}()

	active := p.registry.Active()

	if len(active) == 0 {
		return ProcessingResponse{
			SignalFingerprint: fingerprint,
			OverallStatus:     OverallFailed,
			Results:           []AdapterOutcome{},
			ActiveCount:       0,
			Timestamp:         time.Now().UTC(),
		}
	}

	if span != nil {
		ctx = tracing.ContextWithSpan(ctx, span)
	}
	dctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	type taskResult struct {
		outcome AdapterOutcome
	}
	resultsCh := make(chan taskResult, len(active))

	var wg sync.WaitGroup
	for _, a := range active {
		wg.Add(1)
		go func(ad dexadapter.Adapter) {
			defer wg.Done()
			resultsCh <- taskResult{outcome: p.dispatchOne(dctx, ad, payload)}
		}(a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var outcomes []AdapterOutcome
	select {
	case <-done:
		outcomes = make([]AdapterOutcome, 0, len(active))
		for i := 0; i < len(active); i++ {
			outcomes = append(outcomes, (<-resultsCh).outcome)
		}
	case <-dctx.Done():
		// Deadline expired before every adapter responded: no partial
		// results are merged, per §4.5 step 3.
		p.log.Warn().
			Str("signal_fingerprint", fingerprint).
			Int("active_count", len(active)).
			Msg("signal dispatch deadline exceeded")
		return ProcessingResponse{
			SignalFingerprint: fingerprint,
			OverallStatus:     OverallFailed,
			Results:           []AdapterOutcome{},
			ActiveCount:       len(active),
			FailedCount:       len(active),
			TotalLatencyMS:    time.Since(start).Milliseconds(),
			Timestamp:         time.Now().UTC(),
		}
	}

	successful, failed := 0, 0
	for _, o := range outcomes {
		p.recordExecution(ctx, fingerprint, o, isTestMode)
		if o.Status == OutcomeFilled {
			successful++
		} else {
			failed++
		}
	}

	return ProcessingResponse{
		SignalFingerprint: fingerprint,
		OverallStatus:     overallStatus(successful, failed),
		Results:           outcomes,
		ActiveCount:       len(active),
		SuccessfulCount:   successful,
		FailedCount:       failed,
		TotalLatencyMS:    time.Since(start).Milliseconds(),
		Timestamp:         time.Now().UTC(),
	}
}

// dispatchOne submits to one adapter, measuring latency from just
// before the call to just after — not including goroutine scheduling
// overhead.
func (p *Processor) dispatchOne(ctx context.Context, a dexadapter.Adapter, payload Payload) AdapterOutcome {
	span := p.startSpan(ctx, "dex.submit_order")
	if span != nil {
		span.SetAttribute("adapter_id", a.ID())
		span.SetAttribute("symbol", payload.Symbol)
		span.SetAttribute("side", payload.Side)
	}

	start := time.Now()
	result, err := a.SubmitOrder(ctx, payload.Symbol, dexadapter.Side(payload.Side), payload.Size)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		p.log.Warn().Err(err).Str("adapter_id", a.ID()).Msg("submit_order failed")
		p.endSpan(span, err)
		return AdapterOutcome{
			AdapterID:    a.ID(),
			Status:       OutcomeError,
			FilledAmount: decimal.Zero,
			ErrorMessage: err.Error(),
			LatencyMS:    latency,
		}
	}

	p.endSpan(span, nil)
	return AdapterOutcome{
		AdapterID:       a.ID(),
		Status:          OutcomeFilled,
		ExternalOrderID: result.ExternalOrderID,
		FilledAmount:    result.FilledAmount,
		LatencyMS:       latency,
	}
}

// recordExecution persists one outcome. A persistence failure is
// logged and must not prevent recording the remaining outcomes.
func (p *Processor) recordExecution(ctx context.Context, fingerprint string, o AdapterOutcome, isTestMode bool) {
	status := store.ExecFailed
	if o.Status == OutcomeFilled {
		status = store.ExecFilled
	}

	// RemainingAmount is left at its zero value: submit_order returns as
	// soon as the order is accepted, before any fill is known, so the
	// live dispatch path never has a remaining amount to report. The
	// partial/filled>0∧remaining>0 classification only fires for
	// executions backfilled from a later order-status reconciliation.
	blob := store.ResultBlob{
		FilledAmount: o.FilledAmount,
		ErrorMessage: o.ErrorMessage,
		IsTestMode:   isTestMode,
	}

	latency := o.LatencyMS
	if _, err := p.store.RecordExecution(ctx, fingerprint, o.AdapterID, o.ExternalOrderID, status, blob, &latency); err != nil {
		p.log.Error().Err(err).Str("signal_fingerprint", fingerprint).Str("adapter_id", o.AdapterID).
			Msg("failed to record execution")
	}
}

func overallStatus(successful, failed int) OverallStatus {
	switch {
	case failed == 0:
		return OverallSuccess
	case successful == 0:
		return OverallFailed
	default:
		return OverallPartial
	}
}
