// Package middleware holds the ambient HTTP middleware the router
// chains in front of the ingress handler: constant-time webhook
// authentication, the shutdown-drain gate, CORS, security headers, and
// a request-level timeout safety net.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alpinetrade/dex-gateway/config"
)

// WebhookAuth enforces §4.6 step 2: the token may arrive as the
// `token` query parameter (the per-user webhook token) or the
// `X-Webhook-Token` header (the system token). Both are compared
// against the configured system token in constant time — per-user
// token-to-user-id resolution is an excluded collaborator (spec.md §1),
// so both paths authenticate against the same shared secret here.
func WebhookAuth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			candidate := r.URL.Query().Get("token")
			if candidate == "" {
				candidate = r.Header.Get("X-Webhook-Token")
			}

			if !constantTimeEqual(candidate, cfg.WebhookToken) {
				writeAuthError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      "invalid or missing webhook token",
		"code":       "INVALID_TOKEN",
		"signal_id":  nil,
		"dex":        nil,
		"timestamp":  time.Now().UTC(),
	})
}
