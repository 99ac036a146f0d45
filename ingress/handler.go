package ingress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/alpinetrade/dex-gateway/dedup"
	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/policy"
	"github.com/alpinetrade/dex-gateway/ratelimit"
	"github.com/alpinetrade/dex-gateway/secrets"
	"github.com/alpinetrade/dex-gateway/shutdown"
	"github.com/alpinetrade/dex-gateway/signal"
	"github.com/alpinetrade/dex-gateway/store"
)

// Handler implements the ingress controller's request-scoped logic
// (§4.6 steps 3-10; steps 1-2 — drain check and authentication — run
// as router middleware ahead of this handler).
type Handler struct {
	cfg       *config.Config
	log       zerolog.Logger
	store     *store.Store
	dedup     *dedup.Deduplicator
	limiter   *ratelimit.Limiter
	shutdown  *shutdown.Coordinator
	processor *signal.Processor
	policy    *policy.Gate
	metrics   *metrics.Registry
}

func NewHandler(
	cfg *config.Config,
	log zerolog.Logger,
	st *store.Store,
	dd *dedup.Deduplicator,
	rl *ratelimit.Limiter,
	sd *shutdown.Coordinator,
	proc *signal.Processor,
	gate *policy.Gate,
	reg *metrics.Registry,
) *Handler {
	return &Handler{
		cfg:       cfg,
		log:       log.With().Str("component", "ingress").Logger(),
		store:     st,
		dedup:     dd,
		limiter:   rl,
		shutdown:  sd,
		processor: proc,
		policy:    gate,
		metrics:   reg,
	}
}

// ServeWebhook is the POST /webhook handler. It is mounted behind the
// drain-check and auth middleware (§4.17); everything from parse
// onward is the handler's own responsibility so that rate limiting can
// be skipped for duplicates (§4.6 step 5/6).
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := requestToken(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SIGNAL", "failed to read request body", nil)
		return
	}

	payload, err := ParsePayload(body)
	if err != nil {
		h.store.RecordError(ctx, "warning", "INVALID_SIGNAL", err.Error(), secrets.RedactSecrets(secrets.TruncateBody(string(body))))
		h.metrics.InvalidSignals.Inc()
		writeError(w, http.StatusBadRequest, "INVALID_SIGNAL", err.Error(), nil)
		return
	}

	if h.policy != nil {
		decision, err := h.policy.Evaluate(ctx, policy.Input{
			Symbol: payload.Symbol,
			Side:   payload.Side,
			Size:   payload.Size.String(),
			Token:  token,
		})
		if err != nil {
			h.log.Warn().Err(err).Msg("policy evaluation error; failing open")
		}
		if !decision.Allow {
			reason := "policy denied signal"
			if len(decision.Reasons) > 0 {
				reason = decision.Reasons[0]
			}
			h.store.RecordError(ctx, "warning", "INVALID_SIGNAL", reason, secrets.RedactSecrets(secrets.TruncateBody(string(body))))
			h.metrics.InvalidSignals.Inc()
			writeError(w, http.StatusBadRequest, "INVALID_SIGNAL", reason, nil)
			return
		}
	}

	fingerprint := signal.Fingerprint(payload)

	if h.dedup.IsDuplicate(fingerprint) {
		h.metrics.DuplicatesRejected.Inc()
		writeJSON(w, http.StatusOK, idempotentEcho(fingerprint))
		return
	}

	if !h.limiter.IsAllowed(token) {
		h.metrics.RateLimited.Inc()
		retryAfter := h.limiter.RetryAfter(token)
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", &fingerprint)
		return
	}

	h.metrics.SignalsReceived.Inc()

	if err := h.store.RecordSignal(ctx, fingerprint, string(body)); err != nil {
		h.store.RecordError(ctx, "error", "DATABASE_ERROR", err.Error(), fingerprint)
	}

	release := h.shutdown.Track(fingerprint)
	defer release()

	pr := h.dispatchSafely(ctx, payload, fingerprint)

	if err := h.store.MarkProcessed(ctx, fingerprint); err != nil {
		h.store.RecordError(ctx, "error", "DATABASE_ERROR", err.Error(), fingerprint)
	}

	for _, o := range pr.Results {
		h.metrics.DispatchOutcomes.WithLabelValues(o.AdapterID, string(o.Status)).Inc()
		h.metrics.DispatchLatency.WithLabelValues(o.AdapterID).Observe(float64(o.LatencyMS))
	}

	if h.cfg.TestMode {
		writeJSON(w, http.StatusOK, dryRunResponseFrom(payload, pr))
		return
	}

	writeJSON(w, http.StatusOK, dispatchResponseFrom(pr))
}

// dispatchSafely calls the signal processor, collapsing any panic into
// a synthesized failed response rather than surfacing a 5xx (§4.6 step 9).
func (h *Handler) dispatchSafely(ctx context.Context, payload signal.Payload, fingerprint string) (pr signal.ProcessingResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			h.store.RecordError(ctx, "error", "EXECUTION_FAILED", fmt.Sprintf("signal processor panic: %v", rec), fingerprint)
			pr = signal.ProcessingResponse{
				SignalFingerprint: fingerprint,
				OverallStatus:     signal.OverallFailed,
				Results:           []signal.AdapterOutcome{},
				Timestamp:         time.Now().UTC(),
			}
		}
	}()
	return h.processor.Process(ctx, payload, fingerprint, h.cfg.TestMode)
}

// requestToken extracts the webhook token the same way the auth
// middleware does: query param first, then the system header.
func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return r.Header.Get("X-Webhook-Token")
}
