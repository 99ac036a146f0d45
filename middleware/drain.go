package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alpinetrade/dex-gateway/shutdown"
)

// DrainGate rejects new admission once the shutdown coordinator is
// draining (§4.6 step 1). It runs ahead of auth so a draining process
// never touches C1/C2/the store for a request it will reject anyway.
func DrainGate(coord *shutdown.Coordinator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if coord.IsDraining() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error":     "service is shutting down",
					"code":      "SERVICE_UNAVAILABLE",
					"signal_id": nil,
					"dex":       nil,
					"timestamp": time.Now().UTC(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
