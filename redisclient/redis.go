// Package redisclient wraps go-redis for the alert storm-suppression
// window (A5). Callers that run without REDIS_URL configured get a
// nil *Client; the alert sink falls back to an in-memory suppressor
// in that case.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/alpinetrade/dex-gateway/config"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Client{c: redis.NewClient(opt)}, nil
}

func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

// MarkIfAbsent sets key with the given TTL only if it does not already
// exist. Returns true when this call set the key (first occurrence
// within the window), false when it was already present (suppressed).
func (r *Client) MarkIfAbsent(ctx context.Context, key string, window time.Duration) (bool, error) {
	return r.c.SetNX(ctx, key, 1, window).Result()
}

func (r *Client) Close() error {
	return r.c.Close()
}
