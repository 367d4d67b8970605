// Package memcache is a size-weighted least-recently-used cache.
package memcache

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrInvalidCapacity = errors.New("invalid cache capacity")

// RemovalListener is called for every entry leaving the cache, evicted or removed.
type RemovalListener[V any] func(key string, value V)

type entry[V any] struct {
	key         string
	value       V
	size        int
	lastUsed    time.Time
	agingFactor float64
	// use orders entries used within the same clock tick
	use uint64
}

// MemoryCache holds values up to a total size. When an insertion would exceed the capacity,
// the least recently used entries are evicted until the used size is at or below the low water
// mark and the new entry fits. It is not safe for concurrent use.
type MemoryCache[V any] struct {
	capacity  int
	lowWater  int
	used      int
	entries   map[string]*entry[V]
	listeners []RemovalListener[V]
	now       func() time.Time
	uses      uint64
}

type Option[V any] func(*MemoryCache[V])

// WithClock replaces time.Now for recording entry use.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *MemoryCache[V]) {
		c.now = now
	}
}

// NewMemoryCache returns a cache holding at most capacity, trimming to lowWater when full.
func NewMemoryCache[V any](capacity, lowWater int, opts ...Option[V]) (*MemoryCache[V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity %d is less than 1", ErrInvalidCapacity, capacity)
	}
	if lowWater < 0 || lowWater >= capacity {
		return nil, fmt.Errorf("%w: low water %d is negative or not less than capacity %d", ErrInvalidCapacity, lowWater, capacity)
	}
	c := &MemoryCache[V]{
		capacity: capacity,
		lowWater: lowWater,
		entries:  make(map[string]*entry[V]),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *MemoryCache[V]) Capacity() int {
	return c.capacity
}

func (c *MemoryCache[V]) LowWater() int {
	return c.lowWater
}

func (c *MemoryCache[V]) UsedCapacity() int {
	return c.used
}

func (c *MemoryCache[V]) FreeCapacity() int {
	return c.capacity - c.used
}

func (c *MemoryCache[V]) Len() int {
	return len(c.entries)
}

// SetCapacity changes the capacity. The low water mark drops to 85% of the capacity if it
// would no longer be below it. A smaller capacity trims the cache to the low water mark.
func (c *MemoryCache[V]) SetCapacity(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("%w: capacity %d is less than 1", ErrInvalidCapacity, capacity)
	}
	old := c.capacity
	c.capacity = capacity
	if c.capacity <= c.lowWater {
		c.lowWater = c.capacity * 85 / 100
	}
	if c.capacity < old {
		c.makeSpace(0)
	}
	return nil
}

func (c *MemoryCache[V]) SetLowWater(lowWater int) error {
	if lowWater < 0 || lowWater >= c.capacity {
		return fmt.Errorf("%w: low water %d is negative or not less than capacity %d", ErrInvalidCapacity, lowWater, c.capacity)
	}
	c.lowWater = lowWater
	return nil
}

// EntryForKey returns the value for key and marks it as used.
func (c *MemoryCache[V]) EntryForKey(key string) (V, bool) {
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.touch(e)
	return e.value, true
}

// PutEntry adds value under key with the given size, replacing any existing entry.
// Entries smaller than 1 or larger than the capacity are refused.
func (c *MemoryCache[V]) PutEntry(key string, value V, size int) error {
	if size < 1 || size > c.capacity {
		return fmt.Errorf("%w: entry size %d is not within [1, %d]", ErrInvalidCapacity, size, c.capacity)
	}
	if existing, ok := c.entries[key]; ok {
		c.remove(existing)
	}
	if c.used+size > c.capacity {
		c.makeSpace(size)
	}
	e := &entry[V]{key: key, value: value, size: size, agingFactor: 1}
	c.touch(e)
	c.entries[key] = e
	c.used += size
	return nil
}

// SetEntryAgingFactor makes an entry age faster (> 1) or slower (< 1) than others.
func (c *MemoryCache[V]) SetEntryAgingFactor(key string, agingFactor float64) {
	if e, ok := c.entries[key]; ok {
		e.agingFactor = agingFactor
	}
}

func (c *MemoryCache[V]) ContainsKey(key string) bool {
	_, ok := c.entries[key]
	return ok
}

func (c *MemoryCache[V]) RemoveEntry(key string) {
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// Clear empties the cache, notifying the listeners when callListeners is set.
func (c *MemoryCache[V]) Clear(callListeners bool) {
	if callListeners {
		for _, e := range c.entries {
			c.remove(e)
		}
	}
	c.entries = make(map[string]*entry[V])
	c.used = 0
}

func (c *MemoryCache[V]) AddListener(l RemovalListener[V]) {
	c.listeners = append(c.listeners, l)
}

func (c *MemoryCache[V]) touch(e *entry[V]) {
	c.uses++
	e.use = c.uses
	e.lastUsed = c.now()
}

func (c *MemoryCache[V]) remove(e *entry[V]) {
	delete(c.entries, e.key)
	c.used -= e.size
	for _, l := range c.listeners {
		l(e.key, e.value)
	}
}

// makeSpace evicts the oldest entries until the cache is at its low water mark
// and has at least required free.
func (c *MemoryCache[V]) makeSpace(required int) {
	now := c.now()
	sorted := make([]*entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		ai := float64(now.Sub(sorted[i].lastUsed)) * sorted[i].agingFactor
		aj := float64(now.Sub(sorted[j].lastUsed)) * sorted[j].agingFactor
		if ai != aj {
			return ai > aj
		}
		return sorted[i].use < sorted[j].use
	})
	for _, e := range sorted {
		if c.used <= c.lowWater && c.FreeCapacity() >= required {
			break
		}
		c.remove(e)
	}
}
