// Package ingress implements the webhook ingress controller (C10):
// authenticate, parse, fingerprint, deduplicate, rate-limit, persist,
// and dispatch one signal, in the normative order.
package ingress

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alpinetrade/dex-gateway/signal"
	"github.com/shopspring/decimal"
)

// rawPayload mirrors the wire shape. Size uses decimal.Decimal directly
// since its UnmarshalJSON already accepts both a JSON number and a
// numeric string.
type rawPayload struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Size   decimal.Decimal `json:"size"`
}

// ParsePayload decodes and validates a webhook body into a signal.Payload.
// Validation: symbol non-empty after trim; side one of buy/sell; size a
// positive decimal (zero, negative, and non-numeric are rejected).
func ParsePayload(body []byte) (signal.Payload, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return signal.Payload{}, fmt.Errorf("malformed body: %w", err)
	}

	symbol := strings.TrimSpace(raw.Symbol)
	if symbol == "" {
		return signal.Payload{}, fmt.Errorf("symbol must not be empty")
	}

	side := strings.ToLower(strings.TrimSpace(raw.Side))
	if side != "buy" && side != "sell" {
		return signal.Payload{}, fmt.Errorf("side must be buy or sell, got %q", side)
	}

	if raw.Size.Sign() <= 0 {
		return signal.Payload{}, fmt.Errorf("size must be a positive decimal")
	}

	return signal.Payload{Symbol: symbol, Side: side, Size: raw.Size}, nil
}
