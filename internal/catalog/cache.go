package catalog

import (
	"sync"
	"sync/atomic"

	"dmmsync/internal/media"
)

type cacheKey struct {
	title    string
	category media.Category
	year     int
}

type cacheValue struct {
	entry   Entry
	matched bool
}

// Cache memoizes resolutions within one run, including "no match" outcomes.
// It is safe for concurrent use and is meant to be dropped when the run ends.
type Cache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheValue
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheValue)}
}

// Lookup returns the memoized resolution for the key. found is false when the
// key has not been resolved yet.
func (c *Cache) Lookup(title string, category media.Category, year int) (entry Entry, matched, found bool) {
	if c == nil {
		return Entry{}, false, false
	}
	c.mu.RLock()
	v, ok := c.entries[cacheKey{title: title, category: category, year: year}]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		return Entry{}, false, false
	}
	c.hits.Add(1)
	return v.entry, v.matched, true
}

// Store memoizes a resolution. A zero Entry with matched=false records "no
// match".
func (c *Cache) Store(title string, category media.Category, year int, entry Entry, matched bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[cacheKey{title: title, category: category, year: year}] = cacheValue{entry: entry, matched: matched}
	c.mu.Unlock()
}

// Len returns the number of memoized keys.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the lookup hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
