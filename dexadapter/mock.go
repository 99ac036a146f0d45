package dexadapter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockAdapter simulates a DEX without making real network calls. All
// orders succeed instantly; fills arrive only via a later OrderStatus
// query, mirroring how a real exchange confirms orders before filling
// them. Suitable for development, CI, and test-mode deployments.
type MockAdapter struct {
	BaseAdapter
	logger  zerolog.Logger
	counter int64
}

func NewMockAdapter(logger zerolog.Logger) *MockAdapter {
	return &MockAdapter{logger: logger.With().Str("adapter_id", "mock").Logger()}
}

func (m *MockAdapter) ID() string { return "mock" }

func (m *MockAdapter) Connect(ctx context.Context) error {
	if already := m.beginConnecting(); already {
		return nil
	}
	m.markConnected()
	m.logger.Info().Msg("connected to mock dex")
	return nil
}

func (m *MockAdapter) Disconnect(ctx context.Context) error {
	m.markDisconnected()
	m.logger.Info().Msg("disconnected from mock dex")
	return nil
}

func (m *MockAdapter) SubmitOrder(ctx context.Context, symbol string, side Side, size decimal.Decimal) (*SubmissionResult, error) {
	n := atomic.AddInt64(&m.counter, 1)
	orderID := fmt.Sprintf("mock-order-%06d", n)

	m.logger.Info().
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("size", size.String()).
		Msg("mock order submitted")

	return &SubmissionResult{
		ExternalOrderID: orderID,
		Status:          StatusSubmitted,
		SubmittedAt:     time.Now().UTC(),
		FilledAmount:    decimal.Zero,
		RawResponse: map[string]interface{}{
			"order_id": orderID,
			"status":   "submitted",
			"symbol":   symbol,
			"side":     string(side),
			"size":     size.String(),
		},
	}, nil
}

func (m *MockAdapter) OrderStatus(ctx context.Context, externalOrderID string) (*OrderStatus, error) {
	return &OrderStatus{
		ExternalOrderID: externalOrderID,
		Status:          StatusFilled,
		FilledAmount:    decimal.Zero,
		RemainingAmount: decimal.Zero,
	}, nil
}

func (m *MockAdapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	m.logger.Info().Str("order_id", externalOrderID).Msg("mock order cancelled")
	return nil
}

func (m *MockAdapter) Position(ctx context.Context, symbol string) (*Position, error) {
	return nil, nil
}

func (m *MockAdapter) HealthProbe(ctx context.Context) HealthSample {
	status := HealthOffline
	if m.IsConnected() {
		status = HealthHealthy
	}
	return HealthSample{
		Status:     status,
		LatencyMS:  1,
		ObservedAt: time.Now().UTC(),
	}
}
