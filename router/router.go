// Package router wires the full middleware chain (A8) and mounts every
// HTTP route: the authenticated /webhook ingress endpoint, the public
// composite /health view, and the ambient /metrics and /readyz probes.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/alpinetrade/dex-gateway/health"
	"github.com/alpinetrade/dex-gateway/ingress"
	gwmw "github.com/alpinetrade/dex-gateway/middleware"
	"github.com/alpinetrade/dex-gateway/shutdown"
	"github.com/alpinetrade/dex-gateway/tracing"
)

// Deps bundles every dependency the router needs to mount routes.
// Grouped into a struct rather than a long positional parameter list
// since Tracer is optional; PromGatherer is required for /metrics.
type Deps struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Ingress      *ingress.Handler
	Aggregator   *health.Aggregator
	Shutdown     *shutdown.Coordinator
	Tracer       *tracing.Tracer
	PromGatherer prometheus.Gatherer
	StartedAt    time.Time
}

// NewRouter returns a configured chi Router with the middleware chain
// from SPEC_FULL.md §4.17 (order matters): request ID → panic recovery
// → structured request log → CORS → security headers → body-size limit
// → shutdown-drain check → auth → (rate limit is consulted inside the
// ingress handler, not here, since duplicates must bypass it).
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(gwmw.CORSMiddleware(d.Config.AllowedOrigins))
	r.Use(gwmw.SecurityHeadersMiddleware)
	if d.Tracer != nil {
		r.Use(tracing.TracingMiddleware(d.Tracer))
	}
	r.Use(maxBodySize(d.Config.MaxBodyBytes))

	// --- Unauthenticated, ambient endpoints ---
	r.Get("/health", healthHandler(d))
	r.Get("/readyz", readyzHandler)
	r.Get("/metrics", promhttp.HandlerFor(d.PromGatherer, promhttp.HandlerOpts{}).ServeHTTP)

	// --- Ingress endpoint: drain check, then auth, then the handler
	// itself (which performs dedup before consulting the rate limiter).
	r.Group(func(r chi.Router) {
		r.Use(gwmw.DrainGate(d.Shutdown))
		r.Use(gwmw.WebhookAuth(d.Config))
		r.Post("/webhook", d.Ingress.ServeWebhook)
	})

	return r
}

func healthHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := d.Aggregator.Query(r.Context())

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":          view.Status,
			"test_mode":       d.Config.TestMode,
			"uptime_seconds":  time.Since(d.StartedAt).Seconds(),
			"dex_status":      view.DexStatus,
			"timestamp":       time.Now().UTC(),
		})
	}
}

func readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// maxBodySize limits the request body size ahead of the ingress
// handler's own read, so an oversized body is rejected before it's
// fully buffered.
func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 256 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request body too large","code":"INVALID_SIGNAL"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}
