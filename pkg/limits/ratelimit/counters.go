// Package ratelimit implements fixed-window action counters with
// two-phase reservation. A reservation tentatively occupies a slot so
// concurrent evaluations racing for the last slot cannot both win; the
// caller commits the slot when the action will execute or cancels it
// when the action is blocked.
package ratelimit

import (
	"sync"
	"time"
)

// key identifies one counting bucket.
type key struct {
	policyID    string
	scopeKey    string
	windowStart int64
}

// counter is one fixed-window bucket.
type counter struct {
	mu    sync.Mutex
	count int
}

// Counters tracks fixed-window counts per (policy, scope, window).
//
// # Thread Safety
//
// All methods are safe for concurrent use. The outer map is guarded by
// its own mutex; each bucket carries its own lock so contention stays
// per-bucket.
type Counters struct {
	mu        sync.Mutex
	buckets   map[key]*counter
	lastPrune time.Time
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{buckets: make(map[key]*counter)}
}

// Reservation is a tentatively occupied slot. Exactly one of Commit or
// Cancel should be called; both are idempotent and safe on nil.
type Reservation struct {
	c        *counter
	mu       sync.Mutex
	resolved bool
}

// Commit keeps the slot.
func (r *Reservation) Commit() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = true
}

// Cancel returns the slot.
func (r *Reservation) Cancel() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved {
		return
	}
	r.resolved = true

	r.c.mu.Lock()
	if r.c.count > 0 {
		r.c.count--
	}
	r.c.mu.Unlock()
}

// windowStart truncates t to the window boundary.
func windowStart(t time.Time, window time.Duration) int64 {
	return t.Truncate(window).Unix()
}

// Reserve attempts to occupy one slot in the window containing now. It
// returns the reservation (nil when checkOnly), whether a slot was
// available, and the count before this call. When the limit is already
// reached nothing is consumed.
func (c *Counters) Reserve(policyID, scopeKey string, window time.Duration, limit int, now time.Time, checkOnly bool) (*Reservation, bool, int) {
	bucket := c.bucket(key{policyID, scopeKey, windowStart(now, window)}, window, now)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	current := bucket.count
	if current >= limit {
		return nil, false, current
	}
	if checkOnly {
		return nil, true, current
	}

	bucket.count++
	return &Reservation{c: bucket}, true, current
}

// Count returns the count in the window containing now.
func (c *Counters) Count(policyID, scopeKey string, window time.Duration, now time.Time) int {
	c.mu.Lock()
	bucket, ok := c.buckets[key{policyID, scopeKey, windowStart(now, window)}]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return bucket.count
}

// bucket returns (creating if needed) the counter for k, pruning stale
// windows at most once per window length.
func (c *Counters) bucket(k key, window time.Duration, now time.Time) *counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPrune) >= window {
		cutoff := now.Add(-24 * time.Hour).Unix()
		for old := range c.buckets {
			if old.windowStart < cutoff {
				delete(c.buckets, old)
			}
		}
		c.lastPrune = now
	}

	bucket, ok := c.buckets[k]
	if !ok {
		bucket = &counter{}
		c.buckets[k] = bucket
	}
	return bucket
}

// State is one bucket's persisted form.
type State struct {
	PolicyID    string `json:"policy_id"`
	ScopeKey    string `json:"scope_key"`
	WindowStart int64  `json:"window_start"`
	Count       int    `json:"count"`
}

// Export captures every live bucket.
func (c *Counters) Export() []State {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make([]State, 0, len(c.buckets))
	for k, bucket := range c.buckets {
		bucket.mu.Lock()
		count := bucket.count
		bucket.mu.Unlock()
		if count == 0 {
			continue
		}
		states = append(states, State{
			PolicyID:    k.policyID,
			ScopeKey:    k.scopeKey,
			WindowStart: k.windowStart,
			Count:       count,
		})
	}
	return states
}

// Restore replaces live state with the given buckets. Used once at
// startup, before evaluation traffic begins.
func (c *Counters) Restore(states []State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buckets = make(map[key]*counter, len(states))
	for _, s := range states {
		c.buckets[key{s.PolicyID, s.ScopeKey, s.WindowStart}] = &counter{count: s.Count}
	}
}
