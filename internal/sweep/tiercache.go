package sweep

import (
	"sync"
	"time"
)

// TierCache memoizes per-chat tier lookups for a bounded TTL so a sweep
// over many chats doesn't hammer the tier source every tick.
type TierCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]tierEntry
}

type tierEntry struct {
	fast    bool
	expires time.Time
}

// NewTierCache builds a cache with the given TTL. now is injectable for
// tests; pass nil for time.Now.
func NewTierCache(ttl time.Duration, now func() time.Time) *TierCache {
	if now == nil {
		now = time.Now
	}
	return &TierCache{ttl: ttl, now: now, entries: make(map[string]tierEntry)}
}

// Get returns the cached tier for the chat, if present and fresh.
func (c *TierCache) Get(chatID string) (fast, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[chatID]
	if !found {
		return false, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, chatID)
		return false, false
	}
	return e.fast, true
}

// Set records the chat's tier until the TTL elapses.
func (c *TierCache) Set(chatID string, fast bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chatID] = tierEntry{fast: fast, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every cached entry. Used when tier membership
// changes via config reload.
func (c *TierCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
