// Package shutdown implements the shutdown coordinator (C9): it
// tracks in-flight work and gates new work during drain.
package shutdown

import (
	"context"
	"sync"
	"time"
)

// Coordinator tracks in-flight signal fingerprints and gates new
// admission during drain. One Coordinator per process.
type Coordinator struct {
	mu        sync.Mutex
	draining  bool
	inFlight  map[string]struct{}
	completed chan struct{}
}

// New creates a Coordinator in the running (non-draining) state.
func New() *Coordinator {
	return &Coordinator{
		inFlight:  make(map[string]struct{}),
		completed: make(chan struct{}),
	}
}

// IsDraining reports whether Initiate has been called. Ingress
// admission checks this first, before touching any other component.
func (c *Coordinator) IsDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// Initiate marks the system as draining. Subsequent admission checks
// fail; in-flight work already tracked is allowed to finish.
func (c *Coordinator) Initiate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = true
	if len(c.inFlight) == 0 {
		c.signalCompletionLocked()
	}
}

// Track is scoped acquisition: it adds fingerprint to the in-flight
// set and returns a release function that must run on every exit path
// of the caller, including panics. When the in-flight set becomes
// empty during drain, completion is signaled.
func (c *Coordinator) Track(fingerprint string) (release func()) {
	c.mu.Lock()
	c.inFlight[fingerprint] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.inFlight, fingerprint)
			if c.draining && len(c.inFlight) == 0 {
				c.signalCompletionLocked()
			}
		})
	}
}

// signalCompletionLocked closes the completion channel exactly once.
// Caller must hold c.mu.
func (c *Coordinator) signalCompletionLocked() {
	select {
	case <-c.completed:
		// already closed
	default:
		close(c.completed)
	}
}

// AwaitCompletion waits for either the in-flight set to drain to zero
// or the grace period to expire. Returns true iff all in-flight work
// finished within grace.
func (c *Coordinator) AwaitCompletion(ctx context.Context, grace time.Duration) bool {
	c.mu.Lock()
	if len(c.inFlight) == 0 {
		c.mu.Unlock()
		return true
	}
	completed := c.completed
	c.mu.Unlock()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-completed:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// InFlightIDs returns the fingerprints currently tracked, for
// diagnostics.
func (c *Coordinator) InFlightIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) InFlightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}
