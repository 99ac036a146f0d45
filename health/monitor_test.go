package health

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/store"
)

// fakeMonitorAdapter is a test-only dexadapter.Adapter whose health and
// connect outcomes are both switchable mid-test, used to drive the
// monitor's failure-counting and reconnect loop deterministically.
type fakeMonitorAdapter struct {
	id string

	mu         sync.Mutex
	healthy    bool
	connectErr error
	connects   int
}

func (a *fakeMonitorAdapter) ID() string { return a.id }

func (a *fakeMonitorAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects++
	return a.connectErr
}
func (a *fakeMonitorAdapter) Disconnect(ctx context.Context) error { return nil }
func (a *fakeMonitorAdapter) IsConnected() bool                    { return true }
func (a *fakeMonitorAdapter) SubmitOrder(ctx context.Context, symbol string, side dexadapter.Side, size decimal.Decimal) (*dexadapter.SubmissionResult, error) {
	return nil, nil
}
func (a *fakeMonitorAdapter) OrderStatus(ctx context.Context, externalOrderID string) (*dexadapter.OrderStatus, error) {
	return nil, nil
}
func (a *fakeMonitorAdapter) CancelOrder(ctx context.Context, externalOrderID string) error {
	return nil
}
func (a *fakeMonitorAdapter) Position(ctx context.Context, symbol string) (*dexadapter.Position, error) {
	return nil, nil
}
func (a *fakeMonitorAdapter) HealthProbe(ctx context.Context) dexadapter.HealthSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.healthy {
		return dexadapter.HealthSample{Status: dexadapter.HealthHealthy}
	}
	return dexadapter.HealthSample{Status: dexadapter.HealthOffline, Error: "probe failed"}
}
func (a *fakeMonitorAdapter) SubscribeUpdates(ctx context.Context, sink dexadapter.UpdateSink) (dexadapter.Unsubscribe, error) {
	return func() {}, nil
}

func (a *fakeMonitorAdapter) setHealthy(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = v
}

// fakeAlerter records every Send call for assertion.
type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAlerter) Send(ctx context.Context, category string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, category)
}

func (f *fakeAlerter) count(category string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == category {
			n++
		}
	}
	return n
}

func testMonitorLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func openMonitorTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMonitor_ConsecutiveFailuresReachOffline(t *testing.T) {
	registry := dexadapter.NewRegistry()
	adapter := &fakeMonitorAdapter{id: "a"}
	registry.Register(adapter)

	alerter := &fakeAlerter{}
	m := NewMonitor(registry, openMonitorTestStore(t), alerter, nil, nil, testMonitorLogger(), MonitorConfig{
		MaxFailures:   2,
		ProbeTimeout:  time.Second,
		MaxReconnects: 1,
		BackoffBase:   time.Millisecond,
		BackoffCap:    time.Millisecond,
	})

	ctx := context.Background()
	m.runCycle(ctx) // failure 1: degraded
	m.runCycle(ctx) // failure 2: offline, triggers reconnect

	st := m.stateFor("a")
	m.mu.Lock()
	status := st.currentStatus
	m.mu.Unlock()

	if status != dexadapter.HealthOffline {
		t.Fatalf("expected offline after reaching max consecutive failures, got %s", status)
	}
	if alerter.count("transition") == 0 {
		t.Fatal("expected at least one transition alert")
	}
}

func TestMonitor_RecoverySendsRecoveryAlert(t *testing.T) {
	registry := dexadapter.NewRegistry()
	adapter := &fakeMonitorAdapter{id: "a"}
	registry.Register(adapter)

	alerter := &fakeAlerter{}
	m := NewMonitor(registry, openMonitorTestStore(t), alerter, nil, nil, testMonitorLogger(), MonitorConfig{
		MaxFailures:   1,
		ProbeTimeout:  time.Second,
		MaxReconnects: 1,
		BackoffBase:   time.Millisecond,
		BackoffCap:    time.Millisecond,
	})

	ctx := context.Background()
	m.runCycle(ctx) // offline immediately since MaxFailures=1

	// wait out any reconnect goroutine before flipping healthy and recycling
	time.Sleep(20 * time.Millisecond)
	adapter.setHealthy(true)
	m.runCycle(ctx)

	if alerter.count("recovery") == 0 {
		t.Fatal("expected a recovery alert once the adapter reports healthy again")
	}
}

func TestMonitor_HealthyAdapterNeverAlerts(t *testing.T) {
	registry := dexadapter.NewRegistry()
	adapter := &fakeMonitorAdapter{id: "a", healthy: true}
	registry.Register(adapter)

	alerter := &fakeAlerter{}
	m := NewMonitor(registry, openMonitorTestStore(t), alerter, nil, nil, testMonitorLogger(), MonitorConfig{
		ProbeTimeout: time.Second,
	})

	ctx := context.Background()
	m.runCycle(ctx)
	m.runCycle(ctx)

	if len(alerter.calls) != 0 {
		t.Fatalf("expected no alerts for a consistently healthy adapter, got %v", alerter.calls)
	}
}

func TestMonitor_Run_StopsOnContextCancel(t *testing.T) {
	registry := dexadapter.NewRegistry()
	registry.Register(&fakeMonitorAdapter{id: "a", healthy: true})

	m := NewMonitor(registry, openMonitorTestStore(t), &fakeAlerter{}, nil, nil, testMonitorLogger(), MonitorConfig{
		CheckInterval: time.Millisecond,
		ProbeTimeout:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancellation")
	}
}
