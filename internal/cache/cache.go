package cache

import (
	"sync"
	"time"

	"github.com/apiodactyl/apiodactyl/internal/model"
)

// DefaultTTL is the freshness window after which a cached key is treated as
// absent.
const DefaultTTL = 300 * time.Second

type entry struct {
	key      model.APIKey
	cachedAt time.Time
}

// APIKeyCache maps key hashes to validated key records for a bounded time.
// It is a disposable view of the key store: entries may lag the store by up
// to the TTL, and every operation is safe for concurrent use.
type APIKeyCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	// epoch counts removals. A fill that started before a removal is dropped
	// so a concurrent lookup cannot resurrect a revoked key.
	epoch uint64

	ttl time.Duration
	now func() time.Time
}

// Option configures an APIKeyCache.
type Option func(*APIKeyCache)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *APIKeyCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *APIKeyCache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache using DefaultTTL.
func New(opts ...Option) *APIKeyCache {
	c := &APIKeyCache{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *APIKeyCache) TTL() time.Duration { return c.ttl }

// Get returns the cached key for hash if it is younger than the TTL. Expired
// entries are reported absent and left for CleanupExpired.
func (c *APIKeyCache) Get(hash string) (model.APIKey, bool) {
	c.mu.RLock()
	e, ok := c.entries[hash]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.cachedAt) >= c.ttl {
		return model.APIKey{}, false
	}
	return clone(e.key), true
}

// Insert stores key under hash, replacing any existing entry and restarting
// its freshness window.
func (c *APIKeyCache) Insert(hash string, key model.APIKey) {
	c.mu.Lock()
	c.entries[hash] = entry{key: clone(key), cachedAt: c.now()}
	c.mu.Unlock()
}

// Epoch returns the current removal epoch. Pass it to Fill after a store
// lookup that started at this point.
func (c *APIKeyCache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Fill inserts key only if nothing was removed since epoch was read. It
// reports whether the entry was stored.
func (c *APIKeyCache) Fill(hash string, key model.APIKey, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.entries[hash] = entry{key: clone(key), cachedAt: c.now()}
	return true
}

// Remove deletes the entry for hash. Removing a missing entry is a no-op.
func (c *APIKeyCache) Remove(hash string) {
	c.mu.Lock()
	delete(c.entries, hash)
	c.epoch++
	c.mu.Unlock()
}

// CleanupExpired evicts every entry older than the TTL and returns how many
// were evicted.
func (c *APIKeyCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for hash, e := range c.entries {
		if now.Sub(e.cachedAt) >= c.ttl {
			delete(c.entries, hash)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *APIKeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func clone(k model.APIKey) model.APIKey {
	if k.LastUsedAt != nil {
		t := *k.LastUsedAt
		k.LastUsedAt = &t
	}
	return k
}
