package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/alpinetrade/dex-gateway/alert"
	"github.com/alpinetrade/dex-gateway/config"
	"github.com/alpinetrade/dex-gateway/dedup"
	"github.com/alpinetrade/dex-gateway/dexadapter"
	"github.com/alpinetrade/dex-gateway/health"
	"github.com/alpinetrade/dex-gateway/ingress"
	"github.com/alpinetrade/dex-gateway/logger"
	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/policy"
	"github.com/alpinetrade/dex-gateway/ratelimit"
	"github.com/alpinetrade/dex-gateway/redisclient"
	"github.com/alpinetrade/dex-gateway/router"
	"github.com/alpinetrade/dex-gateway/secrets"
	"github.com/alpinetrade/dex-gateway/shutdown"
	tradesignal "github.com/alpinetrade/dex-gateway/signal"
	"github.com/alpinetrade/dex-gateway/store"
	"github.com/alpinetrade/dex-gateway/tracing"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("env", cfg.Env).Bool("test_mode", cfg.TestMode).Msg("dex gateway starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	var rc *redisclient.Client
	if cfg.RedisURL != "" {
		rc, err = redisclient.New(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("redis init failed — alert suppression falls back to in-memory")
		} else if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis ping failed — alert suppression falls back to in-memory")
			rc = nil
		} else {
			log.Info().Msg("redis connected")
		}
	}

	secretsClient := secrets.New(secrets.VaultConfig{
		Enabled: os.Getenv("VAULT_ADDR") != "",
		Address: os.Getenv("VAULT_ADDR"),
		Token:   os.Getenv("VAULT_TOKEN"),
	})

	registry := dexadapter.NewRegistry()
	registerAdapters(ctx, registry, secretsClient, log)

	dd := dedup.New(cfg.DedupWindow)
	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMax)
	coord := shutdown.New()

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(promReg)

	traceExporter := tracing.NewLogExporter(log)
	tracer := tracing.NewTracer(log, traceExporter, 1.0)

	proc := tradesignal.NewProcessor(registry, st, tracer, log, cfg.SignalDispatchTimeout)

	gate, err := policy.Load(ctx, cfg.PolicyRegoPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load policy module")
	}

	alertClient := alert.New(alert.Config{
		WebhookURL:     cfg.AlertWebhookURL,
		SuppressWindow: cfg.AlertSuppressWindow,
	}, rc, metricsRegistry, log)

	monitor := health.NewMonitor(registry, st, alertClient, metricsRegistry, tracer, log, health.MonitorConfig{
		CheckInterval: cfg.HealthCheckInterval,
		ProbeTimeout:  cfg.HealthProbeTimeout,
		MaxFailures:   cfg.HealthMaxFailures,
		BackoffCap:    cfg.HealthMaxBackoff,
	})
	go monitor.Run(ctx)

	go st.RunRetentionSweep(ctx, cfg.ErrorLogRetention, 24*time.Hour, func(err error) {
		log.Error().Err(err).Msg("error log retention sweep failed")
	})

	handler := ingress.NewHandler(cfg, log, st, dd, limiter, coord, proc, gate, metricsRegistry)
	aggregator := health.NewAggregator(registry)

	r := router.NewRouter(router.Deps{
		Config:       cfg,
		Logger:       log,
		Ingress:      handler,
		Aggregator:   aggregator,
		Shutdown:     coord,
		Tracer:       tracer,
		PromGatherer: promReg,
		StartedAt:    time.Now(),
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.SignalDispatchTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	ossignal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received, draining")

	// §4.9 shutdown sequence: stop admitting new work, let the HTTP
	// server finish in-flight requests, await in-flight signal fan-out,
	// then disconnect every adapter individually before closing storage.
	coord.Initiate()
	cancel() // stop the health monitor and retention sweep loops

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}

	coord.AwaitCompletion(shutdownCtx, cfg.ShutdownGracePeriod)

	for _, a := range registry.List() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), cfg.AdapterDisconnectTime)
		if err := a.Disconnect(disconnectCtx); err != nil {
			log.Warn().Err(err).Str("adapter_id", a.ID()).Msg("adapter disconnect timed out, continuing shutdown")
		}
		disconnectCancel()
	}

	tracer.Shutdown()

	if rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}

	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("store close failed")
	}

	log.Info().Msg("gateway stopped gracefully")
}

// registerAdapters always registers the mock adapter — exercised in
// test mode and in development without exchange credentials — and
// registers one RESTAdapter per DEX_<ID>_BASE_URL entry found in the
// environment, resolving its API key through secretsClient.
func registerAdapters(ctx context.Context, registry *dexadapter.Registry, secretsClient *secrets.Client, log zerolog.Logger) {
	mock := dexadapter.NewMockAdapter(log)
	registry.Register(mock)
	if err := mock.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("mock adapter connect failed")
	}
	log.Info().Msg("registered mock adapter")

	pool := dexadapter.DefaultConnectionPool()
	for _, id := range configuredAdapterIDs() {
		baseURL := os.Getenv("DEX_" + id + "_BASE_URL")
		if baseURL == "" {
			continue
		}

		apiKey, err := secretsClient.GetAdapterKey(ctx, strings.ToLower(id))
		if err != nil {
			log.Warn().Err(err).Str("adapter_id", id).Msg("no credentials available, skipping adapter")
			continue
		}

		adapter := dexadapter.NewRESTAdapter(dexadapter.RESTAdapterConfig{
			ID:      strings.ToLower(id),
			BaseURL: baseURL,
			APIKey:  apiKey,
			Pool:    pool,
		}, log)
		registry.Register(adapter)

		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := adapter.Connect(connectCtx); err != nil {
			log.Warn().Err(err).Str("adapter_id", id).Msg("initial connect failed, health monitor will retry")
		}
		connectCancel()

		log.Info().Str("adapter_id", id).Str("base_url", baseURL).Msg("registered dex adapter")
	}
}

// configuredAdapterIDs scans the environment for DEX_<ID>_BASE_URL
// entries and returns the distinct <ID> segments found.
func configuredAdapterIDs() []string {
	const prefix, suffix = "DEX_", "_BASE_URL"
	var ids []string
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix) {
			id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
			if id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
