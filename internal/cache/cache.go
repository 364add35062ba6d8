package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultTTL is how long a cached forecast or region list stays valid.
const DefaultTTL = 5 * time.Minute

// Cache defines the interface for forecast payload caching implementations.
// Values are the encoded JSON payloads, so every backend stores identical bytes.
// Get returns data only while the entry is valid; Keys lists held keys without checking validity.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
	Keys() []string
}

// InMemoryCache implements Cache using an in-memory map with lazy TTL expiration.
// Expired entries are reported as misses but stay in the map until overwritten or cleared.
type InMemoryCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
	ttl  time.Duration
	now  func() time.Time
}

// cacheEntry stores a cached payload with the instant it was inserted.
type cacheEntry struct {
	data      []byte
	timestamp time.Time
}

// NewInMemoryCache creates an in-memory cache whose entries are valid for ttl.
// A non-positive ttl falls back to DefaultTTL.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	return NewInMemoryCacheWithClock(ttl, time.Now)
}

// NewInMemoryCacheWithClock is NewInMemoryCache with an injectable clock.
func NewInMemoryCacheWithClock(ttl time.Duration, now func() time.Time) *InMemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		ttl:  ttl,
		now:  now,
	}
}

// Get returns the payload for key when present and now - timestamp < ttl.
// Returns (nil, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.timestamp) >= c.ttl {
		return nil, false, nil
	}
	return entry.data, true, nil
}

// Set stores value under key stamped with the current instant, replacing any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		data:      stored,
		timestamp: c.now(),
	}
	return nil
}

// Clear removes every entry.
func (c *InMemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry)
	return nil
}

// Keys returns the held keys in sorted order, expired ones included.
func (c *InMemoryCache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
