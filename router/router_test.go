package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/alpinetrade/dex-gateway/dedup"
	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/health"
	"github.com/alpinetrade/dex-gateway/ingress"
	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/policy"
	"github.com/alpinetrade/dex-gateway/ratelimit"
	"github.com/alpinetrade/dex-gateway/shutdown"
	"github.com/alpinetrade/dex-gateway/signal"
	"github.com/alpinetrade/dex-gateway/store"
)

func testSetup(t *testing.T) http.Handler {
	t.Helper()

	cfg := &config.Config{
		WebhookToken:    "test-token",
		MaxBodyBytes:    1 << 20,
		AllowedOrigins:  []string{"*"},
		RateLimitWindow: time.Minute,
		RateLimitMax:    10,
	}
	log := zerolog.New(io.Discard).With().Timestamp().Logger()

	ctx := context.Background()

	st, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	registry := dexadapter.NewRegistry()
	gate, err := policy.Load(ctx, "")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	proc := signal.NewProcessor(registry, st, nil, log, 30*time.Second)
	coord := shutdown.New()

	h := ingress.NewHandler(cfg, log, st, dedup.New(time.Minute), ratelimit.New(time.Minute, 10), coord, proc, gate, m)
	agg := health.NewAggregator(registry)

	return NewRouter(Deps{
		Config:       cfg,
		Logger:       log,
		Ingress:      h,
		Aggregator:   agg,
		Shutdown:     coord,
		PromGatherer: reg,
		StartedAt:    time.Now(),
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Result().StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rw.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy with no adapters registered, got %v", body["status"])
	}
}

func TestReadyz(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /readyz, got %d", rw.Result().StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", rw.Result().StatusCode)
	}
}

func TestWebhookUnauthenticated(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated /webhook, got %d", rw.Result().StatusCode)
	}
}

func TestWebhookInvalidSignal(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook?token=test-token", bytes.NewReader([]byte(`{"symbol":"","side":"buy","size":"1"}`)))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty symbol, got %d", rw.Result().StatusCode)
	}
}

func TestWebhookNoActiveAdapters(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook?token=test-token", bytes.NewReader([]byte(`{"symbol":"ETH-PERP","side":"buy","size":"0.5"}`)))
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected 200 even with zero active adapters (failed overall_status), got %d", rw.Result().StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rw.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["overall_status"] != "failed" {
		t.Fatalf("expected overall_status=failed with zero adapters, got %v", body["overall_status"])
	}
}

func TestCORSPreflight(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodOptions, "/webhook", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	if rw.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS Allow-Origin header on preflight response")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := testSetup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	headers := []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Strict-Transport-Security",
	}
	for _, h := range headers {
		if rw.Header().Get(h) == "" {
			t.Fatalf("expected security header %s to be set", h)
		}
	}
}
