package engine

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is how long an analysis is served without recomputing.
const DefaultCacheTTL = 300 * time.Second

// DefaultCacheSize bounds how many projects keep a cached analysis.
const DefaultCacheSize = 256

// Cache holds the latest analysis per project until it expires. Entries are
// also checked against Now so an injected clock can expire them early.
type Cache struct {
	TTL  time.Duration
	Size int
	Now  func() time.Time

	once    sync.Once
	entries *expirable.LRU[string, cacheEntry]
}

type cacheEntry struct {
	analysis Analysis
	expires  time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{TTL: ttl, Size: DefaultCacheSize}
	c.lru()
	return c
}

func (c *Cache) lru() *expirable.LRU[string, cacheEntry] {
	c.once.Do(func() {
		if c.TTL <= 0 {
			c.TTL = DefaultCacheTTL
		}
		if c.Size <= 0 {
			c.Size = DefaultCacheSize
		}
		c.entries = expirable.NewLRU[string, cacheEntry](c.Size, nil, c.TTL)
	})
	return c.entries
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) Get(projectID string) (Analysis, bool) {
	if c == nil {
		return Analysis{}, false
	}
	entries := c.lru()
	e, ok := entries.Get(projectID)
	if !ok {
		return Analysis{}, false
	}
	if !c.now().Before(e.expires) {
		entries.Remove(projectID)
		return Analysis{}, false
	}
	return e.analysis, true
}

func (c *Cache) Put(a Analysis) {
	if c == nil {
		return
	}
	entries := c.lru()
	entries.Add(a.ProjectID, cacheEntry{analysis: a, expires: c.now().Add(c.TTL)})
}

// Invalidate drops the given projects, or everything when none are named.
func (c *Cache) Invalidate(projectIDs ...string) {
	if c == nil {
		return
	}
	entries := c.lru()
	if len(projectIDs) == 0 {
		entries.Purge()
		return
	}
	for _, id := range projectIDs {
		entries.Remove(id)
	}
}

// Len reports how many analyses are cached.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru().Len()
}
