package dexadapter

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestMockAdapter_ConnectDisconnectLifecycle(t *testing.T) {
	m := NewMockAdapter(zerolog.Nop())
	if m.IsConnected() {
		t.Fatal("expected a freshly constructed mock adapter to be disconnected")
	}

	ctx := context.Background()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected connected after Connect")
	}

	if err := m.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if m.IsConnected() {
		t.Fatal("expected disconnected after Disconnect")
	}
}

func TestMockAdapter_ConnectIsIdempotent(t *testing.T) {
	m := NewMockAdapter(zerolog.Nop())
	ctx := context.Background()
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("second connect should be a no-op, got error: %v", err)
	}
	if !m.IsConnected() {
		t.Fatal("expected still connected after a repeated Connect")
	}
}

func TestMockAdapter_SubmitOrderAssignsUniqueIDs(t *testing.T) {
	m := NewMockAdapter(zerolog.Nop())
	ctx := context.Background()

	r1, err := m.SubmitOrder(ctx, "ETH-PERP", SideBuy, decimal.RequireFromString("1"))
	if err != nil {
		t.Fatalf("submit order 1: %v", err)
	}
	r2, err := m.SubmitOrder(ctx, "ETH-PERP", SideBuy, decimal.RequireFromString("1"))
	if err != nil {
		t.Fatalf("submit order 2: %v", err)
	}
	if r1.ExternalOrderID == r2.ExternalOrderID {
		t.Fatal("expected distinct order ids across submissions")
	}
	if r1.Status != StatusSubmitted {
		t.Fatalf("expected status submitted, got %s", r1.Status)
	}
}

func TestMockAdapter_HealthProbeReflectsConnectionState(t *testing.T) {
	m := NewMockAdapter(zerolog.Nop())
	ctx := context.Background()

	if sample := m.HealthProbe(ctx); sample.Status != HealthOffline {
		t.Fatalf("expected offline before connect, got %s", sample.Status)
	}

	_ = m.Connect(ctx)
	if sample := m.HealthProbe(ctx); sample.Status != HealthHealthy {
		t.Fatalf("expected healthy after connect, got %s", sample.Status)
	}
}

func TestMockAdapter_ID(t *testing.T) {
	m := NewMockAdapter(zerolog.Nop())
	if m.ID() != "mock" {
		t.Fatalf("expected id 'mock', got %q", m.ID())
	}
}
