// Package alert implements the alert sink (A5): fire-and-forget
// webhook delivery for health transitions and recoveries, with
// storm suppression so a flapping adapter doesn't page every cycle.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/alpinetrade/dex-gateway/metrics"
	"github.com/alpinetrade/dex-gateway/redisclient"
	"github.com/rs/zerolog"
)

// Config controls webhook delivery and storm suppression.
type Config struct {
	WebhookURL      string
	SuppressWindow  time.Duration // default 5m
	HTTPTimeout     time.Duration // default 10s
}

// Client posts alert events to a configured webhook URL. Within
// SuppressWindow, repeated alerts for the same (category, adapter_id)
// key are dropped — backed by Redis SETNX when configured, an
// in-memory map otherwise.
type Client struct {
	cfg     Config
	client  *http.Client
	redis   *redisclient.Client
	metrics *metrics.Registry
	log     zerolog.Logger

	mu       sync.Mutex
	inMemory map[string]time.Time
}

// New wires an alert sink. metricsReg is optional (nil is safe) so
// tests can exercise delivery without a Prometheus registry configured.
func New(cfg Config, redis *redisclient.Client, metricsReg *metrics.Registry, log zerolog.Logger) *Client {
	if cfg.SuppressWindow == 0 {
		cfg.SuppressWindow = 5 * time.Minute
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		redis:    redis,
		metrics:  metricsReg,
		log:      log.With().Str("component", "alert").Logger(),
		inMemory: make(map[string]time.Time),
	}
}

// Send delivers an alert in a background goroutine: the caller never
// waits on network I/O or a delivery failure. category combined with
// payload's adapter_id (when present) forms the suppression key.
func (c *Client) Send(ctx context.Context, category string, payload map[string]interface{}) {
	if c.cfg.WebhookURL == "" {
		c.log.Debug().Str("category", category).Msg("alert webhook not configured, suppressed")
		return
	}

	key := category
	if adapterID, ok := payload["adapter_id"].(string); ok {
		key = category + ":" + adapterID
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPTimeout)
		defer cancel()

		fresh, err := c.markIfAbsent(sendCtx, key)
		if err != nil {
			c.log.Warn().Err(err).Msg("alert suppression check failed, sending anyway")
		} else if !fresh {
			return
		}

		if c.metrics != nil {
			c.metrics.AlertsSent.WithLabelValues(category).Inc()
		}

		body, err := json.Marshal(map[string]interface{}{
			"category":  category,
			"payload":   payload,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			c.log.Error().Err(err).Msg("failed to marshal alert payload")
			return
		}

		req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			c.log.Error().Err(err).Msg("failed to build alert request")
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Error().Err(err).Str("category", category).Msg("alert webhook delivery failed")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			c.log.Error().Int("status", resp.StatusCode).Str("category", category).Msg("alert webhook returned error status")
		}
	}()
}

func (c *Client) markIfAbsent(ctx context.Context, key string) (bool, error) {
	if c.redis != nil {
		return c.redis.MarkIfAbsent(ctx, key, c.cfg.SuppressWindow)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.inMemory[key]; ok && time.Since(last) < c.cfg.SuppressWindow {
		return false, nil
	}
	c.inMemory[key] = time.Now()
	return true, nil
}
