package cache

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "forecast:"

// maxRelativeExp is the largest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached. Expiry is delegated to the
// server; a local index of written keys backs Keys and Clear because memcached
// cannot enumerate its contents.
type MemcachedCache struct {
	client *memcache.Client
	ttl    time.Duration

	mu    sync.Mutex
	index map[string]struct{}
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, ttl, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemcachedCache{
		client: client,
		ttl:    ttl,
		index:  make(map[string]struct{}),
	}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key maps a cache key to a memcached-safe key. Region names may contain spaces.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + url.QueryEscape(k)
}

// expiration converts the TTL to memcached's relative seconds, clamped to
// 1..maxRelativeExp before the int32 conversion.
func (c *MemcachedCache) expiration() int32 {
	ttl := c.ttl
	if ttl < time.Second {
		return 1
	}
	if ttl > maxRelativeExp*time.Second {
		return maxRelativeExp
	}
	return int32(ttl / time.Second)
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      value,
		Expiration: c.expiration(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.index[key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Clear deletes every key this process wrote. Entries written by other
// processes sharing the server are left alone.
func (c *MemcachedCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	c.index = make(map[string]struct{})
	c.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.client.Delete(c.key(k)); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Keys returns the keys written through this cache since the last Clear.
func (c *MemcachedCache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
