// Package cache provides a bounded, reference-counted instance cache.
//
// The cache keeps at most one live value per key and tracks how many
// callers are currently using each entry. Entries that are in use are
// never evicted; the size bound is therefore soft and may be exceeded
// while every entry is busy.
package cache

import (
	"container/list"
	"sync"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Size             int
	MaxSize          int
	InUseEntries     int
	InUseTotal       int
	Evictions        int64
	BlockedEvictions int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	inUse int
}

// Cache is a bounded key/value cache with usage reference counts.
//
// All operations are serialized under a single mutex, including Get,
// which updates recency order. Throughput is not a goal here; the one
// guarantee that matters is that an acquired entry survives any amount
// of eviction pressure until it is released.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxSize int

	// order holds *entry values, most recently used at the front.
	order   *list.List
	entries map[K]*list.Element

	evictions        int64
	blockedEvictions int64
}

// New creates a cache bounded at maxSize entries. maxSize <= 0 is
// treated as 1.
func New[K comparable, V any](maxSize int) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Cache[K, V]{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[K]*list.Element),
	}
}

// Get returns the value for key, marking it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Set inserts or replaces the value for key, marks it most recently
// used, and runs an eviction pass. Replacing a value keeps the entry's
// current reference count.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
	} else {
		c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	}
	c.evict()
}

// Acquire increments the in-use count for key. It returns false if the
// key is absent; the caller is expected to construct the value, Set it,
// and Acquire again (double-checked creation is the caller's job).
func (c *Cache[K, V]) Acquire(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	el.Value.(*entry[K, V]).inUse++
	return true
}

// Release decrements the in-use count for key, flooring at zero. When
// the count reaches zero the entry becomes evictable and an eviction
// pass runs. Releasing an absent key is a no-op.
func (c *Cache[K, V]) Release(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return
	}
	e := el.Value.(*entry[K, V])
	if e.inUse > 0 {
		e.inUse--
	}
	if e.inUse == 0 {
		c.evict()
	}
}

// Delete removes key unconditionally, ignoring its reference count, and
// returns the removed value if the key was present.
func (c *Cache[K, V]) Delete(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.Remove(el)
	delete(c.entries, key)
	return el.Value.(*entry[K, V]).value, true
}

// Len returns the current number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:             c.order.Len(),
		MaxSize:          c.maxSize,
		Evictions:        c.evictions,
		BlockedEvictions: c.blockedEvictions,
	}
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[K, V])
		if e.inUse > 0 {
			s.InUseEntries++
			s.InUseTotal += e.inUse
		}
	}
	return s
}

// evict removes idle entries oldest-first while the cache is over its
// bound. If everything left is in use it records a blocked eviction and
// stops: exceeding the bound temporarily beats evicting a live entry.
// Callers must hold c.mu.
func (c *Cache[K, V]) evict() {
	for c.order.Len() > c.maxSize {
		victim := c.oldestIdle()
		if victim == nil {
			c.blockedEvictions++
			return
		}
		e := victim.Value.(*entry[K, V])
		c.order.Remove(victim)
		delete(c.entries, e.key)
		c.evictions++
	}
}

// oldestIdle scans oldest-first for an entry with no users. The front
// element is excluded: it is the entry that was just set or touched, and
// evicting it would make the triggering operation a no-op.
func (c *Cache[K, V]) oldestIdle() *list.Element {
	for el := c.order.Back(); el != nil && el != c.order.Front(); el = el.Prev() {
		if el.Value.(*entry[K, V]).inUse == 0 {
			return el
		}
	}
	return nil
}
