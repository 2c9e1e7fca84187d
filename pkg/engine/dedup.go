package engine

import (
	"sync"
	"time"
)

// dedupCache remembers recent decisions by idempotency key so a retried
// action replays its prior result instead of consuming limit capacity
// twice.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type dedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]dedupEntry
}

type dedupEntry struct {
	result  *Result
	expires time.Time
}

func newDedupCache(ttl time.Duration) *dedupCache {
	return &dedupCache{
		ttl:     ttl,
		entries: make(map[string]dedupEntry),
	}
}

// get returns the cached result for the key, or nil when absent or
// expired.
func (c *dedupCache) get(key string, now time.Time) *Result {
	if key == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		return nil
	}
	return e.result
}

// put stores a result under the key and opportunistically drops expired
// entries.
func (c *dedupCache) put(key string, result *Result, now time.Time) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = dedupEntry{result: result, expires: now.Add(c.ttl)}
}
