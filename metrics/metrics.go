// Package metrics is the ambient Prometheus instrumentation (A3):
// counters and histograms for ingress admission, per-adapter dispatch
// outcomes, and health state, exposed via /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the gateway exports. One Registry per
// process, wired into a prometheus.Registerer at startup.
type Registry struct {
	SignalsReceived    prometheus.Counter
	DuplicatesRejected prometheus.Counter
	RateLimited        prometheus.Counter
	InvalidSignals     prometheus.Counter

	DispatchOutcomes *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec

	AdapterHealth *prometheus.GaugeVec

	ReconnectAttempts *prometheus.CounterVec
	AlertsSent        *prometheus.CounterVec
}

// New registers every metric against reg and returns the bundle.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		SignalsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "dex_gateway_signals_received_total",
			Help: "Total webhook signals admitted past validation, deduplication and rate limiting.",
		}),
		DuplicatesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "dex_gateway_duplicates_rejected_total",
			Help: "Total signals short-circuited by the deduplicator.",
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "dex_gateway_rate_limited_total",
			Help: "Total signals rejected by the rate limiter.",
		}),
		InvalidSignals: factory.NewCounter(prometheus.CounterOpts{
			Name: "dex_gateway_invalid_signals_total",
			Help: "Total signals rejected at schema validation or the policy gate.",
		}),
		DispatchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_gateway_dispatch_outcomes_total",
			Help: "Per-adapter submit_order outcomes.",
		}, []string{"adapter_id", "status"}),
		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dex_gateway_dispatch_latency_ms",
			Help:    "Per-adapter submit_order latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		}, []string{"adapter_id"}),
		AdapterHealth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dex_gateway_adapter_health",
			Help: "Adapter health state: 1=healthy, 0.5=degraded, 0=offline.",
		}, []string{"adapter_id"}),
		ReconnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_gateway_reconnect_attempts_total",
			Help: "Total reconnection attempts by the health monitor.",
		}, []string{"adapter_id"}),
		AlertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dex_gateway_alerts_sent_total",
			Help: "Total alerts delivered by the alert sink, by category.",
		}, []string{"category"}),
	}
}

// HealthGaugeValue maps a health state name to the gauge value
// convention documented on AdapterHealth.
func HealthGaugeValue(status string) float64 {
	switch status {
	case "healthy":
		return 1
	case "degraded":
		return 0.5
	default:
		return 0
	}
}
