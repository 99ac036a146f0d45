package ingress

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alpinetrade/dex-gateway/signal"
)

// DispatchResponse is §6's normal/duplicate/partial/failed 200 shape.
type DispatchResponse struct {
	SignalID        string       `json:"signal_id"`
	OverallStatus   string       `json:"overall_status"`
	Results         []ResultItem `json:"results"`
	TotalDexCount   int          `json:"total_dex_count"`
	SuccessfulCount int          `json:"successful_count"`
	FailedCount     int          `json:"failed_count"`
	TotalLatencyMS  int64        `json:"total_latency_ms"`
	Timestamp       time.Time    `json:"timestamp"`
}

// ResultItem is one adapter's row in DispatchResponse.Results.
type ResultItem struct {
	DexID        string `json:"dex_id"`
	Status       string `json:"status"`
	OrderID      string `json:"order_id,omitempty"`
	FilledAmount string `json:"filled_amount"`
	ErrorMessage string `json:"error_message,omitempty"`
	LatencyMS    int64  `json:"latency_ms"`
}

func dispatchResponseFrom(pr signal.ProcessingResponse) DispatchResponse {
	results := make([]ResultItem, 0, len(pr.Results))
	for _, o := range pr.Results {
		results = append(results, ResultItem{
			DexID:        o.AdapterID,
			Status:       string(o.Status),
			OrderID:      o.ExternalOrderID,
			FilledAmount: o.FilledAmount.String(),
			ErrorMessage: o.ErrorMessage,
			LatencyMS:    o.LatencyMS,
		})
	}
	return DispatchResponse{
		SignalID:        pr.SignalFingerprint,
		OverallStatus:   string(pr.OverallStatus),
		Results:         results,
		TotalDexCount:   pr.ActiveCount,
		SuccessfulCount: pr.SuccessfulCount,
		FailedCount:     pr.FailedCount,
		TotalLatencyMS:  pr.TotalLatencyMS,
		Timestamp:       pr.Timestamp,
	}
}

// idempotentEcho is the duplicate-arrival response: success, empty results.
func idempotentEcho(signalID string) DispatchResponse {
	return DispatchResponse{
		SignalID:      signalID,
		OverallStatus: "success",
		Results:       []ResultItem{},
		Timestamp:     time.Now().UTC(),
	}
}

// DryRunItem is one simulated adapter outcome in a test-mode response.
type DryRunItem struct {
	Dex             string `json:"dex"`
	Symbol          string `json:"symbol"`
	Side            string `json:"side"`
	Size            string `json:"size"`
	SimulatedResult string `json:"simulated_result"`
}

// DryRunResponse is the test-mode dry-run envelope (§4.6).
type DryRunResponse struct {
	Status            string       `json:"status"`
	SignalID          string       `json:"signal_id"`
	Message           string       `json:"message"`
	WouldHaveExecuted []DryRunItem `json:"would_have_executed"`
	Timestamp         time.Time    `json:"timestamp"`
}

func dryRunResponseFrom(payload signal.Payload, pr signal.ProcessingResponse) DryRunResponse {
	items := make([]DryRunItem, 0, len(pr.Results))
	for _, o := range pr.Results {
		simulated := string(o.Status)
		if o.ErrorMessage != "" {
			simulated = o.ErrorMessage
		}
		items = append(items, DryRunItem{
			Dex:             o.AdapterID,
			Symbol:          payload.Symbol,
			Side:            payload.Side,
			Size:            payload.Size.String(),
			SimulatedResult: simulated,
		})
	}
	return DryRunResponse{
		Status:            "dry_run",
		SignalID:          pr.SignalFingerprint,
		Message:           "test mode: signal was dispatched to test-only adapters, no live order was placed",
		WouldHaveExecuted: items,
		Timestamp:         pr.Timestamp,
	}
}

// ErrorEnvelope is the uniform 4xx/5xx body (§6/§7).
type ErrorEnvelope struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	SignalID  *string   `json:"signal_id"`
	Dex       *string   `json:"dex"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, signalID *string) {
	writeJSON(w, status, ErrorEnvelope{
		Error:     message,
		Code:      code,
		SignalID:  signalID,
		Dex:       nil,
		Timestamp: time.Now().UTC(),
	})
}
