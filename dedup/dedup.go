// Package dedup implements time-bounded set membership for signal
// fingerprints (C1): "have I seen this fingerprint within the last W
// seconds?", bounded in memory by purging stale entries on every call.
package dedup

import (
	"sync"
	"time"
)

// Deduplicator answers is_duplicate while bounding memory to the
// number of distinct fingerprints observed within the last window.
// A single mutex guards the map; contention is negligible at expected
// signal rates.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
}

// New creates a Deduplicator with the given sliding window.
func New(window time.Duration) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		window: window,
	}
}

// IsDuplicate purges entries whose age is at least the window, then
// reports whether fingerprint was already present. If not present, it
// records (fingerprint, now) and returns false. The dedup window is
// measured from the fingerprint's first sighting — a hit never
// refreshes its timestamp.
func (d *Deduplicator) IsDuplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.purgeLocked()

	if _, ok := d.seen[fingerprint]; ok {
		return true
	}
	d.seen[fingerprint] = time.Now()
	return false
}

// Size returns the number of fingerprints currently tracked, for tests
// and diagnostics.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.purgeLocked()
	return len(d.seen)
}

func (d *Deduplicator) purgeLocked() {
	now := time.Now()
	for fp, firstSeen := range d.seen {
		if now.Sub(firstSeen) >= d.window {
			delete(d.seen, fp)
		}
	}
}
