package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"pulsefeed/pkg/ratelimit"
)

const (
	cacheTTL     = 24 * time.Hour
	cacheMaxKeys = 2000
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// responseCache is the bounded single-mutex cache spec.md Design Notes
// §9 prescribes, keyed by (call_kind, stable hash of inputs) so a prompt
// version bump or input change naturally misses rather than serving
// stale structured output.
type responseCache struct {
	clock ratelimit.Clock

	mu    sync.Mutex
	items map[string]cacheEntry
}

func newResponseCache(clock ratelimit.Clock) *responseCache {
	if clock == nil {
		clock = &ratelimit.SystemClock{}
	}
	return &responseCache{clock: clock, items: make(map[string]cacheEntry)}
}

func cacheKey(callKind string, inputs ...string) string {
	h := sha256.New()
	h.Write([]byte(promptVersion))
	h.Write([]byte("|"))
	h.Write([]byte(callKind))
	for _, in := range inputs {
		h.Write([]byte("|"))
		h.Write([]byte(in))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *responseCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= cacheMaxKeys {
		c.evictOneLocked()
	}
	c.items[key] = cacheEntry{value: value, expiresAt: c.clock.Now().Add(cacheTTL)}
}

func (c *responseCache) evictOneLocked() {
	for k := range c.items {
		delete(c.items, k)
		return
	}
}
