package keys

import (
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/robfig/cron/v3"
)

type cacheEntry struct {
	set     jwk.Set
	expires time.Time
}

// Cache is the process-wide resolved key-set cache, keyed by issuer+source.
// Entries are replaced whole, so concurrent readers always observe a
// complete key set, never a partially refreshed one.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// Get returns the cached set for key if present and unexpired.
func (c *Cache) Get(key string) (jwk.Set, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.set, true
}

// Put swaps in a freshly resolved set for key.
func (c *Cache) Put(key string, set jwk.Set) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{set: set, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Sweep removes expired entries. Expired entries are also invisible to Get,
// so sweeping is housekeeping, not correctness.
func (c *Cache) Sweep() {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len reports the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper schedules Sweep on the given cron spec (e.g. "@every 1m").
// The returned cron is already started; callers stop it on shutdown.
func (c *Cache) StartSweeper(schedule string) (*cron.Cron, error) {
	cr := cron.New()
	if _, err := cr.AddFunc(schedule, c.Sweep); err != nil {
		return nil, err
	}
	cr.Start()
	return cr, nil
}
