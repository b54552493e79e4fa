package service

import (
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

// Cache holds successful records for a bounded time. Expired entries are
// evicted lazily on lookup; there is no background sweeper.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	record    core.Record
	expiresAt time.Time
}

// NewCache creates a cache. now may be nil to use the wall clock.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// CacheKey builds a key scoped to the target, so entries never leak between
// targets.
func CacheKey(target core.Target, command string, parts ...string) string {
	var b strings.Builder
	b.WriteString(target.Identity())
	b.WriteByte(0)
	b.WriteString(command)
	for _, p := range parts {
		b.WriteByte(0)
		b.WriteString(p)
	}
	return b.String()
}

// Get returns a live record for key.
func (c *Cache) Get(key string) (core.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.record, true
}

// Put stores rec for ttl. Failed records and non-positive TTLs are ignored.
func (c *Cache) Put(key string, rec core.Record, ttl time.Duration) {
	if ttl <= 0 || rec == nil || !rec.Succeeded() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{record: rec, expiresAt: c.now().Add(ttl)}
}

// InvalidateTarget drops every entry belonging to target.
func (c *Cache) InvalidateTarget(target core.Target) int {
	prefix := target.Identity() + "\x00"
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
