package risk

import (
	"sync"
	"time"
)

// TTLCache is a keyed seen-recently store. Each instance is self-contained,
// so components take one by injection instead of sharing process-wide state.
// The gate uses one to throttle repeat denial alerts.
type TTLCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

// NewTTLCache creates a cache whose entries expire after ttl.
func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Hit reports whether key was recorded within the TTL, recording it now if
// not. A false return means the caller owns this window for the key.
func (c *TTLCache) Hit(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if at, ok := c.seen[key]; ok && now.Sub(at) < c.ttl {
		return true
	}

	// Drop whatever has expired while we hold the lock.
	for k, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, k)
		}
	}

	c.seen[key] = now
	return false
}

// Forget removes a key immediately.
func (c *TTLCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
}

// Len returns the number of live entries.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	now := time.Now()
	for _, at := range c.seen {
		if now.Sub(at) < c.ttl {
			n++
		}
	}
	return n
}
