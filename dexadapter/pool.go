package dexadapter

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// PoolConfig holds connection pool configuration for one adapter's
// outbound HTTP client.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	DisableCompression    bool
	ForceHTTP2            bool
}

// DefaultPoolConfig returns production-grade pool defaults. Each
// adapter talks to exactly one exchange host, so per-host limits
// double as per-adapter limits.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		MaxConnsPerHost:       32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		ResponseHeaderTimeout: 0, // handled by context deadline per request
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    false,
		ForceHTTP2:            true,
	}
}

// PoolMetrics tracks connection pool utilization per adapter.
type PoolMetrics struct {
	ActiveConnections sync.Map // map[string]*int64
	TotalRequests     sync.Map // map[string]*int64
	TotalErrors       sync.Map // map[string]*int64
	ConnectionReuses  sync.Map // map[string]*int64
}

// ConnectionPool manages shared HTTP transports and clients, one per
// adapter id, so each real adapter reuses its own pool of connections
// to its exchange instead of dialing fresh per request.
type ConnectionPool struct {
	mu         sync.RWMutex
	transports map[string]*http.Transport
	clients    map[string]*http.Client
	configs    map[string]PoolConfig
	defaults   PoolConfig
	metrics    *PoolMetrics
}

func NewConnectionPool(defaults PoolConfig) *ConnectionPool {
	return &ConnectionPool{
		transports: make(map[string]*http.Transport),
		clients:    make(map[string]*http.Client),
		configs:    make(map[string]PoolConfig),
		defaults:   defaults,
		metrics:    &PoolMetrics{},
	}
}

func DefaultConnectionPool() *ConnectionPool {
	return NewConnectionPool(DefaultPoolConfig())
}

// Configure sets a custom pool configuration for a specific adapter id.
func (p *ConnectionPool) Configure(adapterID string, cfg PoolConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[adapterID] = cfg
	delete(p.transports, adapterID)
	delete(p.clients, adapterID)
}

// GetClient returns a shared HTTP client for an adapter id with the
// given timeout, creating its transport on first access.
func (p *ConnectionPool) GetClient(adapterID string, timeout time.Duration) *http.Client {
	p.mu.RLock()
	if c, ok := p.clients[adapterID]; ok {
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[adapterID]; ok {
		return c
	}

	cfg := p.configFor(adapterID)
	transport := p.createTransport(cfg)
	p.transports[adapterID] = transport

	client := &http.Client{
		Transport: &metricsRoundTripper{
			inner:     transport,
			adapterID: adapterID,
			metrics:   p.metrics,
		},
		Timeout: timeout,
	}
	p.clients[adapterID] = client

	return client
}

// Metrics returns the current pool metrics snapshot, keyed by adapter id.
func (p *ConnectionPool) Metrics() map[string]map[string]int64 {
	result := make(map[string]map[string]int64)

	collect := func(store *sync.Map, field string) {
		store.Range(func(key, value interface{}) bool {
			name := key.(string)
			if _, ok := result[name]; !ok {
				result[name] = make(map[string]int64)
			}
			result[name][field] = atomic.LoadInt64(value.(*int64))
			return true
		})
	}
	collect(&p.metrics.TotalRequests, "total_requests")
	collect(&p.metrics.TotalErrors, "total_errors")
	collect(&p.metrics.ActiveConnections, "active_connections")
	collect(&p.metrics.ConnectionReuses, "connection_reuses")

	return result
}

// Close gracefully closes all idle connections across every adapter.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.transports {
		t.CloseIdleConnections()
	}
}

func (p *ConnectionPool) configFor(adapterID string) PoolConfig {
	if cfg, ok := p.configs[adapterID]; ok {
		return cfg
	}
	return p.defaults
}

func (p *ConnectionPool) createTransport(cfg PoolConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableCompression:    cfg.DisableCompression,
	}

	if cfg.ForceHTTP2 {
		t.TLSClientConfig = &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
			MinVersion: tls.VersionTLS12,
		}
		t.ForceAttemptHTTP2 = true
	}

	return t
}

// metricsRoundTripper wraps an http.RoundTripper to track connection
// metrics per adapter.
type metricsRoundTripper struct {
	inner     http.RoundTripper
	adapterID string
	metrics   *PoolMetrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	active := m.getOrCreateCounter(&m.metrics.ActiveConnections, m.adapterID)
	atomic.AddInt64(active, 1)
	defer atomic.AddInt64(active, -1)

	total := m.getOrCreateCounter(&m.metrics.TotalRequests, m.adapterID)
	atomic.AddInt64(total, 1)

	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		errCount := m.getOrCreateCounter(&m.metrics.TotalErrors, m.adapterID)
		atomic.AddInt64(errCount, 1)
		return nil, err
	}

	if !resp.Close {
		reuses := m.getOrCreateCounter(&m.metrics.ConnectionReuses, m.adapterID)
		atomic.AddInt64(reuses, 1)
	}

	return resp, nil
}

func (m *metricsRoundTripper) getOrCreateCounter(store *sync.Map, key string) *int64 {
	if val, ok := store.Load(key); ok {
		return val.(*int64)
	}
	counter := new(int64)
	actual, _ := store.LoadOrStore(key, counter)
	return actual.(*int64)
}
