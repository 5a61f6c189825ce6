package cache

import (
	"sync"
)

// ColumnCache defines a generic interface for caching packed
// half-precision columns (raw binary16 bit patterns).
type ColumnCache interface {
	// Get retrieves a packed column from the cache.
	Get(key string) ([]uint16, bool)
	// Put stores a packed column in the cache.
	Put(key string, col []uint16)
	// Size returns the number of columns in the cache.
	Size() int
}

// MapCache is a simple in-memory implementation of ColumnCache.
type MapCache struct {
	data map[string][]uint16
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[string][]uint16),
	}
}

func (c *MapCache) Get(key string) ([]uint16, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached bits
	if v, ok := c.data[key]; ok {
		dst := make([]uint16, len(v))
		copy(dst, v)
		return dst, true
	}
	return nil, false
}

func (c *MapCache) Put(key string, col []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Store copy
	dst := make([]uint16, len(col))
	copy(dst, col)
	c.data[key] = dst
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
