// SPDX-License-Identifier: MIT

// Package cache provides the TTL cache used for anonymised identifiers
// and learner-model read-throughs, with in-memory and Redis backends.
package cache

import (
	"sync"
	"time"
)

// Cache is a thread-safe string cache with per-entry expiration.
type Cache interface {
	// Get retrieves a value. The second return is false when absent or expired.
	Get(key string) (string, bool)
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(key string, value string, ttl time.Duration)
	// Delete removes a key.
	Delete(key string)
	// Stats returns hit/miss counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64
	Misses int64
	Sets   int64
	Size   int
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	stats   Stats
}

// NewMemory returns an in-memory cache. Expired entries are dropped
// lazily on access; the anonymisation working set is small enough that
// no janitor goroutine is needed.
func NewMemory() Cache {
	return &memoryCache{entries: make(map[string]entry)}
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(time.Now()) {
		if ok {
			delete(c.entries, key)
		}
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(key, value string, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: exp}
	c.stats.Sets++
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}
