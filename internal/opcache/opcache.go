// Package opcache keeps recently parsed documents and validation outcomes so
// repeated operations skip the parser and validator.
package opcache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a fixed-size LRU keyed by query text. A cache created with a
// non-positive size stores nothing.
type Cache[V any] struct {
	lruCache *lru.Cache[string, V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a cache holding up to size entries.
func New[V any](size int) (*Cache[V], error) {
	c := &Cache[V]{}
	if size <= 0 {
		return c, nil
	}
	lruCache, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	c.lruCache = lruCache
	return c, nil
}

// Get returns the entry stored for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil || c.lruCache == nil {
		var zero V
		return zero, false
	}
	v, ok := c.lruCache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Add stores v under key, evicting the least recently used entry when full.
func (c *Cache[V]) Add(key string, v V) {
	if c == nil || c.lruCache == nil {
		return
	}
	c.lruCache.Add(key, v)
}

// Len is the number of entries.
func (c *Cache[V]) Len() int {
	if c == nil || c.lruCache == nil {
		return 0
	}
	return c.lruCache.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *Cache[V]) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
