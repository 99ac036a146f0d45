package health

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/store"
	"github.com/alpinetrade/dex-gateway/tracing"
	"github.com/rs/zerolog"
)

// Alerter is the minimal surface the monitor needs from the alert
// sink (A5); satisfied structurally by alert.Client without an
// import cycle.
type Alerter interface {
	Send(ctx context.Context, category string, payload map[string]interface{})
}

// MonitorConfig controls the background health-check-and-reconnect
// loop. Zero values fall back to spec defaults.
type MonitorConfig struct {
	CheckInterval    time.Duration // P, default 30s
	ProbeTimeout     time.Duration // T_probe, default 10s
	MaxFailures      int           // F, default 3
	MaxReconnects    int           // N_reconnect_max, default 10
	BackoffBase      time.Duration // default 1s
	BackoffCap       time.Duration // default 30s
}

func (c *MonitorConfig) setDefaults() {
	if c.CheckInterval == 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 30 * time.Second
	}
}

// adapterState is the monitor's per-adapter bookkeeping.
type adapterState struct {
	consecutiveFailures int
	currentStatus       dexadapter.HealthState
	reconnecting        bool
}

// Monitor is the background health loop (C8): it is never called from
// the request path. It reprobes every registered adapter each cycle
// and schedules reconnection when an adapter goes offline.
type Monitor struct {
	registry *dexadapter.Registry
	errLog   *store.Store
	alerter  Alerter
	metrics  *metrics.Registry
	tracer   *tracing.Tracer
	log      zerolog.Logger
	cfg      MonitorConfig

	mu     sync.Mutex
	states map[string]*adapterState
}

// NewMonitor wires the health loop. metricsReg and tracer are both
// optional (nil is safe) so tests can exercise the loop without a
// Prometheus registry or tracer configured.
func NewMonitor(registry *dexadapter.Registry, errLog *store.Store, alerter Alerter, metricsReg *metrics.Registry, tracer *tracing.Tracer, log zerolog.Logger, cfg MonitorConfig) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		registry: registry,
		errLog:   errLog,
		alerter:  alerter,
		metrics:  metricsReg,
		tracer:   tracer,
		log:      log.With().Str("component", "health_monitor").Logger(),
		cfg:      cfg,
		states:   make(map[string]*adapterState),
	}
}

// startSpan begins a probe span rooted at the monitor's own background
// context — there is no inbound HTTP request to derive a parent from —
// and is a no-op when no tracer is configured.
func (m *Monitor) startSpan(name string) *tracing.Span {
	if m.tracer == nil {
		return nil
	}
	return m.tracer.StartSpan(name, nil)
}

func (m *Monitor) endSpan(span *tracing.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus("ERROR", err.Error())
	} else {
		span.SetStatus("OK", "")
	}
	m.tracer.EndSpan(span)
}

// Run blocks, running one cycle immediately and then every
// CheckInterval, until ctx is cancelled. The loop recovers from any
// panic in a single cycle so the scheduler is never lost.
func (m *Monitor) Run(ctx context.Context) {
	m.runCycleGuarded(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycleGuarded(ctx)
		}
	}
}

func (m *Monitor) runCycleGuarded(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.errLog.RecordError(ctx, "error", "HEALTH_CHECK_FAILED", "health monitor cycle panicked", toJSON(r))
		}
	}()
	m.runCycle(ctx)
}

func (m *Monitor) runCycle(ctx context.Context) {
	adapters := m.registry.List()

	var wg sync.WaitGroup
	for _, a := range adapters {
		st := m.stateFor(a.ID())

		m.mu.Lock()
		reconnecting := st.reconnecting
		m.mu.Unlock()
		if reconnecting {
			continue
		}

		wg.Add(1)
		go func(ad dexadapter.Adapter) {
			defer wg.Done()
			m.probeOne(ctx, ad)
		}(a)
	}
	wg.Wait()
}

func (m *Monitor) stateFor(id string) *adapterState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		st = &adapterState{currentStatus: dexadapter.HealthHealthy}
		m.states[id] = st
	}
	return st
}

func (m *Monitor) probeOne(ctx context.Context, a dexadapter.Adapter) {
	span := m.startSpan("dex.health_probe")
	if span != nil {
		span.SetAttribute("adapter_id", a.ID())
	}

	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	sample := a.HealthProbe(pctx)
	failed := sample.Status != dexadapter.HealthHealthy

	if span != nil {
		span.SetAttribute("status", string(sample.Status))
	}
	if failed {
		msg := sample.Error
		if msg == "" {
			msg = "health probe failed"
		}
		m.endSpan(span, errors.New(msg))
	} else {
		m.endSpan(span, nil)
	}

	if m.metrics != nil {
		m.metrics.AdapterHealth.WithLabelValues(a.ID()).Set(metrics.HealthGaugeValue(string(sample.Status)))
	}

	m.mu.Lock()
	st := m.states[a.ID()]
	prevStatus := st.currentStatus

	if !failed {
		if prevStatus == dexadapter.HealthDegraded || prevStatus == dexadapter.HealthOffline {
			m.mu.Unlock()
			m.alerter.Send(ctx, "recovery", map[string]interface{}{"adapter_id": a.ID()})
			m.mu.Lock()
		}
		st.consecutiveFailures = 0
		st.currentStatus = dexadapter.HealthHealthy
		m.mu.Unlock()
		return
	}

	st.consecutiveFailures++
	newStatus := dexadapter.HealthDegraded
	if st.consecutiveFailures >= m.cfg.MaxFailures {
		newStatus = dexadapter.HealthOffline
	}
	changed := newStatus != prevStatus
	st.currentStatus = newStatus
	shouldReconnect := newStatus == dexadapter.HealthOffline
	if shouldReconnect {
		st.reconnecting = true
	}
	m.mu.Unlock()

	if changed {
		m.alerter.Send(ctx, "transition", map[string]interface{}{
			"adapter_id": a.ID(),
			"from":       prevStatus,
			"to":         newStatus,
			"error":      sample.Error,
		})
	}

	if shouldReconnect {
		go m.reconnect(ctx, a)
	}
}

// reconnect retries disconnect/connect/verify up to MaxReconnects
// times with exponential backoff and jitter, clearing the reconnecting
// flag on every exit path regardless of outcome.
func (m *Monitor) reconnect(ctx context.Context, a dexadapter.Adapter) {
	defer func() {
		m.mu.Lock()
		if st, ok := m.states[a.ID()]; ok {
			st.reconnecting = false
		}
		m.mu.Unlock()
	}()

	for attempt := 1; attempt <= m.cfg.MaxReconnects; attempt++ {
		if m.metrics != nil {
			m.metrics.ReconnectAttempts.WithLabelValues(a.ID()).Inc()
		}

		_ = a.Disconnect(ctx)
		if err := a.Connect(ctx); err == nil {
			pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
			sample := a.HealthProbe(pctx)
			cancel()
			if sample.Status == dexadapter.HealthHealthy {
				m.mu.Lock()
				if st, ok := m.states[a.ID()]; ok {
					st.consecutiveFailures = 0
					st.currentStatus = dexadapter.HealthHealthy
				}
				m.mu.Unlock()
				return
			}
		}

		delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	m.errLog.RecordError(ctx, "error", "HEALTH_CHECK_FAILED",
		"reconnection attempts exhausted", toJSON(map[string]string{"adapter_id": a.ID()}))
}

// backoffDelay computes min(base*2^(attempt-1), cap) * jitter, jitter
// uniform in [0.8, 1.2].
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	d := float64(base) * float64(int64(1)<<uint(attempt-1))
	if d > float64(cap) {
		d = float64(cap)
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(d * jitter)
}
