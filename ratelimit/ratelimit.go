// Package ratelimit implements per-key sliding-window admission
// control (C2): a key may make at most L requests in any rolling
// window of length W.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key sliding window rate limiter. Per-key bucket
// mutation is atomic with respect to concurrent calls on the same
// key; a single mutex guards every bucket, so calls on independent
// keys also serialize against each other.
type Limiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// New creates a Limiter admitting at most max requests per key in any
// rolling window of the given length.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		buckets: make(map[string][]time.Time),
	}
}

// IsAllowed prunes timestamps older than the window from key's bucket;
// if the remaining count is at or above the limit it returns false,
// otherwise it appends now and returns true.
func (l *Limiter) IsAllowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket := l.pruneLocked(key, now)

	if len(bucket) >= l.max {
		return false
	}
	l.buckets[key] = append(bucket, now)
	return true
}

// RetryAfter returns 0 if key's bucket is empty after pruning,
// otherwise the time remaining until the oldest timestamp falls out of
// the window. Never negative.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	bucket := l.pruneLocked(key, now)
	if len(bucket) == 0 {
		return 0
	}

	resetAt := bucket[0].Add(l.window)
	d := resetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// pruneLocked drops timestamps older than the window for key and
// stores the pruned bucket back. Caller must hold l.mu.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	bucket := l.buckets[key]

	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.buckets[key] = kept
	return kept
}

// Cleanup drops keys whose buckets are entirely stale. Optional
// housekeeping; IsAllowed/RetryAfter are self-pruning and correct
// without it.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key := range l.buckets {
		if len(l.pruneLocked(key, now)) == 0 {
			delete(l.buckets, key)
		}
	}
}
