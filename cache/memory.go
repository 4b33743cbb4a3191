package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process cache backed by go-cache.
type MemoryCache struct {
	c      *gocache.Cache
	policy Policy
}

// NewMemoryCache creates a memory cache. Expired entries are swept every
// policy.CleanupInterval; with no TTL nothing ever expires.
func NewMemoryCache(policy Policy) *MemoryCache {
	policy = policy.withDefaults()
	return &MemoryCache{
		c:      gocache.New(gocache.NoExpiration, policy.CleanupInterval),
		policy: policy,
	}
}

// Get retrieves a value from the cache. Returns (nil, false) on miss or expiry.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Add stores value if key is absent.
func (m *MemoryCache) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := m.c.Add(key, value, m.expiration(ttl)); err != nil {
		// go-cache reports an existing, unexpired item as an error.
		return false, nil
	}
	return true, nil
}

// Delete removes a value from the cache.
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Len returns the number of live entries.
func (m *MemoryCache) Len() int {
	return m.c.ItemCount()
}

func (m *MemoryCache) expiration(ttl time.Duration) time.Duration {
	ttl = m.policy.EffectiveTTL(ttl)
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
