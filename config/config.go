// Package config loads gateway configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gateway configuration values.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Auth
	WebhookToken string
	TestMode     bool

	// AppHost is retained for compatibility with the configuration list;
	// URL minting itself is an excluded collaborator.
	AppHost string

	// Storage
	SQLitePath string

	// Redis backs alert-storm suppression; optional, falls back to
	// an in-memory suppressor when unset.
	RedisURL string

	// Deduplication (C1)
	DedupWindow time.Duration

	// Rate limiting (C2)
	RateLimitWindow time.Duration
	RateLimitMax    int

	// Health monitor (C8)
	HealthCheckInterval time.Duration
	HealthMaxFailures   int
	HealthMaxBackoff    time.Duration
	HealthProbeTimeout  time.Duration

	// Signal dispatch (C6)
	SignalDispatchTimeout time.Duration

	// Shutdown (C9)
	ShutdownGracePeriod   time.Duration
	AdapterDisconnectTime time.Duration

	// Alerting (A5)
	AlertWebhookURL     string
	AlertSuppressWindow time.Duration

	// Policy gate (A7); empty path disables the gate
	PolicyRegoPath string

	// Error log retention (C5)
	ErrorLogRetention time.Duration

	// Body limits
	MaxBodyBytes int64

	// Logging
	LogLevel string

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from environment variables and an optional
// .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)

	databaseURL := getEnv("DATABASE_URL", "")
	sqlitePath := getEnv("SQLITE_PATH", databaseURL)
	if sqlitePath == "" {
		sqlitePath = "dex-gateway.db"
	}

	cfg := &Config{
		Addr:            getEnv("GATEWAY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),
		TestMode:     getEnvBool("TEST_MODE", false),
		AppHost:      getEnv("APP_HOST", ""),

		SQLitePath: sqlitePath,
		RedisURL:   getEnv("REDIS_URL", ""),

		DedupWindow: time.Duration(getEnvInt("DEDUP_WINDOW_SECONDS", 60)) * time.Second,

		RateLimitWindow: time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX_REQUESTS", 10),

		HealthCheckInterval: time.Duration(getEnvInt("HEALTH_CHECK_INTERVAL_SECONDS", 30)) * time.Second,
		HealthMaxFailures:   getEnvInt("HEALTH_MAX_FAILURES", 3),
		HealthMaxBackoff:    time.Duration(getEnvInt("HEALTH_MAX_BACKOFF_SECONDS", 30)) * time.Second,
		HealthProbeTimeout:  time.Duration(getEnvInt("HEALTH_PROBE_TIMEOUT_SECONDS", 10)) * time.Second,

		SignalDispatchTimeout: time.Duration(getEnvInt("SIGNAL_DISPATCH_TIMEOUT_SECONDS", 30)) * time.Second,

		ShutdownGracePeriod:   time.Duration(getEnvInt("SHUTDOWN_GRACE_PERIOD_SECONDS", 30)) * time.Second,
		AdapterDisconnectTime: time.Duration(getEnvInt("ADAPTER_DISCONNECT_TIMEOUT_SECONDS", 5)) * time.Second,

		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		AlertSuppressWindow: time.Duration(getEnvInt("ALERT_SUPPRESS_WINDOW_SECONDS", 300)) * time.Second,

		PolicyRegoPath: getEnv("POLICY_REGO_PATH", ""),

		ErrorLogRetention: time.Duration(getEnvInt("ERROR_LOG_RETENTION_DAYS", 90)) * 24 * time.Hour,

		MaxBodyBytes: int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 256*1024)),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "*")),
	}
	return cfg
}

// Validate checks the values Load cannot itself fail fast on without
// breaking its error-free signature. Callers that need a hard startup
// failure (main, not the test suite) invoke this explicitly.
func (c *Config) Validate() error {
	if c.WebhookToken == "" {
		return errors.New("WEBHOOK_TOKEN is required and must not be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, trimSpace(v[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
