package signal

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFingerprint_StableAcrossWhitespaceAndCase(t *testing.T) {
	a := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1.5")})
	b := Fingerprint(Payload{Symbol: "  ETH-PERP  ", Side: "BUY", Size: decimal.RequireFromString("1.5")})
	if a != b {
		t.Fatalf("expected whitespace/case-insensitive fingerprints to match: %s != %s", a, b)
	}
}

func TestFingerprint_DiffersBySymbol(t *testing.T) {
	a := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	b := Fingerprint(Payload{Symbol: "BTC-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	if a == b {
		t.Fatal("expected distinct symbols to produce distinct fingerprints")
	}
}

func TestFingerprint_DiffersBySide(t *testing.T) {
	a := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	b := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "sell", Size: decimal.RequireFromString("1")})
	if a == b {
		t.Fatal("expected distinct sides to produce distinct fingerprints")
	}
}

func TestFingerprint_DiffersBySize(t *testing.T) {
	a := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	b := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("2")})
	if a == b {
		t.Fatal("expected distinct sizes to produce distinct fingerprints")
	}
}

func TestFingerprint_Length(t *testing.T) {
	fp := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	if len(fp) != 16 {
		t.Fatalf("expected a 16-hex-char fingerprint, got length %d (%s)", len(fp), fp)
	}
}

func TestFingerprint_TrailingZerosDoNotMatter(t *testing.T) {
	// 1 and 1.0 are numerically equal and decimal.String() drops trailing
	// zeros, so both canonicalize to "1" and produce the same fingerprint.
	a := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1")})
	b := Fingerprint(Payload{Symbol: "ETH-PERP", Side: "buy", Size: decimal.RequireFromString("1.0")})
	if a != b {
		t.Fatalf("expected sizes differing only in trailing zeros to produce the same fingerprint: %s != %s", a, b)
	}
}
