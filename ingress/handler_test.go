package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/alpinetrade/dex-gateway/dedup"
	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/ratelimit"
	"github.com/alpinetrade/dex-gateway/shutdown"
	"github.com/alpinetrade/dex-gateway/signal"
	"github.com/alpinetrade/dex-gateway/store"
)

// fakeAdapter is a minimal always-connected dexadapter.Adapter used to
// drive the handler's dispatch path without any network dependency.
type fakeAdapter struct {
	id string
}

func (a *fakeAdapter) ID() string                          { return a.id }
func (a *fakeAdapter) Connect(ctx context.Context) error    { return nil }
func (a *fakeAdapter) Disconnect(ctx context.Context) error { return nil }
func (a *fakeAdapter) IsConnected() bool                    { return true }
func (a *fakeAdapter) SubmitOrder(ctx context.Context, symbol string, side dexadapter.Side, size decimal.Decimal) (*dexadapter.SubmissionResult, error) {
	return &dexadapter.SubmissionResult{ExternalOrderID: "order-1", Status: dexadapter.StatusSubmitted, SubmittedAt: time.Now().UTC(), FilledAmount: decimal.Zero}, nil
}
func (a *fakeAdapter) OrderStatus(ctx context.Context, externalOrderID string) (*dexadapter.OrderStatus, error) {
	return nil, nil
}
func (a *fakeAdapter) CancelOrder(ctx context.Context, externalOrderID string) error { return nil }
func (a *fakeAdapter) Position(ctx context.Context, symbol string) (*dexadapter.Position, error) {
	return nil, nil
}
func (a *fakeAdapter) HealthProbe(ctx context.Context) dexadapter.HealthSample {
	return dexadapter.HealthSample{Status: dexadapter.HealthHealthy}
}
func (a *fakeAdapter) SubscribeUpdates(ctx context.Context, sink dexadapter.UpdateSink) (dexadapter.Unsubscribe, error) {
	return func() {}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := &config.Config{MaxBodyBytes: 64 * 1024, WebhookToken: "test-token"}

	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := dexadapter.NewRegistry()
	registry.Register(&fakeAdapter{id: "mock"})

	dd := dedup.New(time.Minute)
	rl := ratelimit.New(time.Minute, 100)
	sd := shutdown.New()
	proc := signal.NewProcessor(registry, st, nil, zerolog.New(io.Discard), time.Second)
	reg := metrics.New(prometheus.NewRegistry())

	return NewHandler(cfg, zerolog.New(io.Discard), st, dd, rl, sd, proc, nil, reg)
}

func postWebhook(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeWebhook(rec, req)
	return rec
}

func TestServeWebhook_ValidSignalDispatchesSuccessfully(t *testing.T) {
	h := newTestHandler(t)
	rec := postWebhook(h, `{"symbol":"ETH-PERP","side":"buy","size":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp DispatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OverallStatus != "success" {
		t.Fatalf("expected overall_status success, got %q", resp.OverallStatus)
	}
	if resp.SuccessfulCount != 1 {
		t.Fatalf("expected 1 successful result, got %d", resp.SuccessfulCount)
	}
}

func TestServeWebhook_InvalidPayloadReturns400(t *testing.T) {
	h := newTestHandler(t)
	rec := postWebhook(h, `{"symbol":"","side":"buy","size":1}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if env.Code != "INVALID_SIGNAL" {
		t.Fatalf("expected code INVALID_SIGNAL, got %q", env.Code)
	}
}

func TestServeWebhook_DuplicateSignalEchoesIdempotently(t *testing.T) {
	h := newTestHandler(t)
	body := `{"symbol":"ETH-PERP","side":"buy","size":1}`

	first := postWebhook(h, body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}

	second := postWebhook(h, body)
	if second.Code != http.StatusOK {
		t.Fatalf("expected duplicate to echo 200, got %d", second.Code)
	}

	var resp DispatchResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected an empty results list on the duplicate echo, got %d", len(resp.Results))
	}
}

func TestServeWebhook_RateLimitedReturns429WithRetryAfter(t *testing.T) {
	cfg := &config.Config{MaxBodyBytes: 64 * 1024, WebhookToken: "test-token"}
	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	registry := dexadapter.NewRegistry()
	registry.Register(&fakeAdapter{id: "mock"})

	dd := dedup.New(time.Minute)
	rl := ratelimit.New(time.Minute, 1) // only 1 allowed per window
	sd := shutdown.New()
	proc := signal.NewProcessor(registry, st, nil, zerolog.New(io.Discard), time.Second)
	reg := metrics.New(prometheus.NewRegistry())
	h := NewHandler(cfg, zerolog.New(io.Discard), st, dd, rl, sd, proc, nil, reg)

	first := postWebhook(h, `{"symbol":"ETH-PERP","side":"buy","size":1}`)
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}

	second := postWebhook(h, `{"symbol":"BTC-PERP","side":"sell","size":2}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the limit is exhausted, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header on a 429 response")
	}
}

func TestServeWebhook_TestModeReturnsDryRunEnvelope(t *testing.T) {
	h := newTestHandler(t)
	h.cfg.TestMode = true

	rec := postWebhook(h, `{"symbol":"ETH-PERP","side":"buy","size":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp DryRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal dry run response: %v", err)
	}
	if resp.Status != "dry_run" {
		t.Fatalf("expected status dry_run, got %q", resp.Status)
	}
}
