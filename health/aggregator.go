// Package health implements the synchronous health aggregator (C7)
// used by the public health endpoint, and the background health
// monitor (C8) that drives reconnection.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/alpinetrade/dex-gateway/dexadapter"
)

// errorWindow is a rolling 5-minute failure counter per adapter,
// reset to zero on the next successful probe, expired wholesale once
// its window elapses. Exposed for diagnostics only — it never feeds
// the aggregation decision.
type errorWindow struct {
	count       int
	windowStart time.Time
}

const errorWindowSize = 5 * time.Minute

// AdapterStatus is one adapter's entry in the composite health view.
type AdapterStatus struct {
	Status        dexadapter.HealthState `json:"status"`
	LatencyMS     int64                  `json:"latency_ms"`
	ErrorCount    int                    `json:"error_count"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	LastSuccessful *time.Time            `json:"last_successful,omitempty"`
}

// CompositeView is the aggregated health response.
type CompositeView struct {
	Status     dexadapter.HealthState   `json:"status"`
	DexStatus  map[string]AdapterStatus `json:"dex_status"`
}

// Aggregator queries every configured adapter's health_probe in
// parallel and composes a single status. It also tracks rolling
// 5-minute error counts, independent of the Monitor's own
// consecutive-failure bookkeeping.
type Aggregator struct {
	registry *dexadapter.Registry

	mu             sync.Mutex
	errors         map[string]*errorWindow
	lastSuccessful map[string]time.Time
}

func NewAggregator(registry *dexadapter.Registry) *Aggregator {
	return &Aggregator{
		registry:       registry,
		errors:         make(map[string]*errorWindow),
		lastSuccessful: make(map[string]time.Time),
	}
}

// Query runs health_probe on every registered adapter concurrently
// (via the registry's fan-out) and composes the aggregate view.
// Aggregation rule: all healthy -> healthy; all offline -> offline;
// empty adapter list -> healthy; otherwise -> degraded.
func (a *Aggregator) Query(ctx context.Context) CompositeView {
	samples := a.registry.HealthCheckAll(ctx)

	view := CompositeView{DexStatus: make(map[string]AdapterStatus, len(samples))}

	healthyCount, offlineCount := 0, 0
	a.mu.Lock()
	for id, sample := range samples {
		switch sample.Status {
		case dexadapter.HealthHealthy:
			healthyCount++
			a.lastSuccessful[id] = sample.ObservedAt
			delete(a.errors, id)
		case dexadapter.HealthOffline:
			offlineCount++
			a.recordErrorLocked(id)
		default:
			a.recordErrorLocked(id)
		}

		status := AdapterStatus{
			Status:       sample.Status,
			LatencyMS:    sample.LatencyMS,
			ErrorMessage: sample.Error,
			ErrorCount:   a.errorCountLocked(id),
		}
		if ts, ok := a.lastSuccessful[id]; ok {
			t := ts
			status.LastSuccessful = &t
		}
		view.DexStatus[id] = status
	}
	a.mu.Unlock()

	switch {
	case len(samples) == 0:
		view.Status = dexadapter.HealthHealthy
	case healthyCount == len(samples):
		view.Status = dexadapter.HealthHealthy
	case offlineCount == len(samples):
		view.Status = dexadapter.HealthOffline
	default:
		view.Status = dexadapter.HealthDegraded
	}

	return view
}

// recordErrorLocked increments id's rolling error count, resetting the
// window first if it has expired. Caller must hold a.mu.
func (a *Aggregator) recordErrorLocked(id string) {
	now := time.Now()
	w, ok := a.errors[id]
	if !ok || now.Sub(w.windowStart) > errorWindowSize {
		w = &errorWindow{windowStart: now}
		a.errors[id] = w
	}
	w.count++
}

func (a *Aggregator) errorCountLocked(id string) int {
	w, ok := a.errors[id]
	if !ok {
		return 0
	}
	if time.Since(w.windowStart) > errorWindowSize {
		return 0
	}
	return w.count
}
