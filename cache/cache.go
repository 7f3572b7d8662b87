// Package cache provides a generic, thread-safe, bounded-size
// memoization cache. It exists for exactly one caller shape: resolve a
// key once, compute its value under lock if absent, and keep it around
// for every later lookup of the same key — see errid.frameCache, which
// memoizes the (function name, entry line) resolution of a raise-site
// program counter.
package cache

import (
	"container/list"
	"sync"
)

// Cache is a generic thread-safe LRU cache bounded to a fixed capacity.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[K, V]
	order    *list.List
	capacity int
}

// entry holds a cached value and its position in the LRU list.
type entry[K comparable, V any] struct {
	key     K
	value   V
	element *list.Element
}

// New creates a new Cache with the specified capacity. When the cache is
// full, the least recently used item is evicted to make room.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache[K, V]{
		items:    make(map[K]*entry[K, V], capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// GetOrSet returns the existing value for key if present, moving it to
// the front of the LRU order. Otherwise it calls fn to compute the
// value, stores it (evicting the least recently used entry if the cache
// is at capacity), and returns it. The whole operation holds the cache
// lock, so two goroutines racing on the same absent key never compute fn
// twice.
func (c *Cache[K, V]) GetOrSet(key K, fn func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.order.MoveToFront(e.element)
		return e.value
	}

	value := fn()

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	element := c.order.PushFront(key)
	c.items[key] = &entry[K, V]{key: key, value: value, element: element}
	return value
}

// evictOldest removes the least recently used item. Must be called with
// mu held.
func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	key := oldest.Value.(K)
	delete(c.items, key)
	c.order.Remove(oldest)
}
