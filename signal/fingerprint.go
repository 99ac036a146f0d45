package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the validated webhook triple.
type Payload struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Size   decimal.Decimal `json:"size"`
}

// canonical is the deterministic-key-order JSON shape hashed into the
// fingerprint. Field order here is the canonical order; Go's struct
// field encoding order is stable across runs, satisfying "keys in a
// deterministic order" without a manual sort.
type canonical struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Size   string `json:"size"`
}

// Fingerprint computes the 16-hex-char signal identifier used for
// deduplication: SHA-256 of the canonicalized payload JSON, ":", and
// the current UTC instant truncated to the minute in ISO format
// without a timezone suffix, then hex-encoded and truncated.
//
// This intentionally makes dedup granularity approximately — not
// exactly — one minute: a request at 00:00:59 and another at 00:01:00
// produce different fingerprints despite being 1s apart.
func Fingerprint(p Payload) string {
	c := canonical{
		Symbol: strings.TrimSpace(p.Symbol),
		Side:   strings.ToLower(strings.TrimSpace(p.Side)),
		Size:   p.Size.String(),
	}
	body, _ := json.Marshal(c)

	minute := time.Now().UTC().Truncate(time.Minute).Format("2006-01-02T15:04:05")

	h := sha256.Sum256(append(body, []byte(":"+minute)...))
	return hex.EncodeToString(h[:])[:16]
}
