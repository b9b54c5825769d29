// Package cache provides the byte-budgeted resource cache that holds decoded
// tile resources (textures, elevation grids) between frames.
package cache

import (
	"container/list"
	"errors"
	"log/slog"
	"reflect"
	"sync"

	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/metrics"
)

var (
	// ErrInvalidKey is returned for an empty cache key.
	ErrInvalidKey = errors.New("cache key must not be empty")
	// ErrInvalidSize is returned for a non-positive entry size.
	ErrInvalidSize = errors.New("entry size must be positive")
	// ErrInvalidCapacity is returned for a non-positive capacity or a low-water
	// mark above capacity.
	ErrInvalidCapacity = errors.New("capacity must be positive and low-water must not exceed it")
	// ErrNilResource is returned when inserting a nil resource.
	ErrNilResource = errors.New("resource must not be nil")
)

// Releaser is implemented by resources holding memory that must be freed
// when they leave the cache.
type Releaser interface {
	Release()
}

type entry struct {
	key      string
	resource any
	size     int64
	frame    uint64
	elem     *list.Element
}

// MemoryCache keeps resources under a byte budget. When an insertion would
// exceed the capacity, the least recently used entries are evicted until the
// cache fits within its low-water mark. Entries used during the current frame
// are never evicted; if nothing else can go the new entry is admitted over
// budget.
type MemoryCache struct {
	mu        sync.Mutex
	capacity  int64
	lowWater  int64
	used      int64
	frame     uint64
	entries   map[string]*entry
	lru       *list.List
	listeners []func(key string, resource any)
	log       *slog.Logger
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Capacity int64  `json:"capacity"`
	LowWater int64  `json:"low_water"`
	Used     int64  `json:"used"`
	Entries  int    `json:"entries"`
	Frame    uint64 `json:"frame"`
}

// NewMemoryCache creates a cache of capacity bytes. A zero lowWater means
// evict down to capacity.
func NewMemoryCache(capacity, lowWater int64) (*MemoryCache, error) {
	if lowWater == 0 {
		lowWater = capacity
	}
	if capacity <= 0 || lowWater <= 0 || lowWater > capacity {
		return nil, ErrInvalidCapacity
	}
	return &MemoryCache{
		capacity: capacity,
		lowWater: lowWater,
		frame:    1,
		entries:  make(map[string]*entry),
		lru:      list.New(),
		log:      logger.Component("cache"),
	}, nil
}

// Put adds or replaces the entry for key. Replacing an entry with the same
// resource only updates its size and recency.
func (c *MemoryCache) Put(key string, resource any, size int64) error {
	if key == "" {
		return ErrInvalidKey
	}
	if size <= 0 {
		return ErrInvalidSize
	}
	if resource == nil {
		return ErrNilResource
	}

	c.mu.Lock()
	var removed []*entry
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
		if !sameResource(old.resource, resource) {
			removed = append(removed, old)
		}
	}
	if c.used+size > c.capacity {
		removed = append(removed, c.evictLocked(c.lowWater-size)...)
		if c.used+size > c.capacity {
			metrics.CacheOverBudgetTotal.Inc()
			c.log.Debug("admitted over budget", "op", "put", "key", key,
				"size", size, "used", c.used, "capacity", c.capacity)
		}
	}
	e := &entry{key: key, resource: resource, size: size}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	c.used += size
	metrics.CacheUsedBytes.Set(float64(c.used))
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, removed)
	return nil
}

// evictLocked drops least recently used entries not in use this frame until
// used <= target or no candidates remain.
func (c *MemoryCache) evictLocked(target int64) []*entry {
	var evicted []*entry
	for el := c.lru.Back(); el != nil && c.used > target; {
		e := el.Value.(*entry)
		prev := el.Prev()
		if e.frame != c.frame {
			c.removeLocked(e)
			evicted = append(evicted, e)
			metrics.CacheEvictionsTotal.Inc()
		}
		el = prev
	}
	if len(evicted) > 0 {
		c.log.Debug("evicted entries", "op", "evict", "count", len(evicted), "used", c.used)
	}
	return evicted
}

// sameResource reports whether a and b are the same resource value. Values
// of non-comparable types are never the same.
func sameResource(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func (c *MemoryCache) removeLocked(e *entry) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
	c.used -= e.size
}

func (c *MemoryCache) notify(listeners []func(string, any), removed []*entry) {
	for _, e := range removed {
		for _, fn := range listeners {
			fn(e.key, e.resource)
		}
		if r, ok := e.resource.(Releaser); ok {
			r.Release()
		}
	}
}

// Get returns the resource for key and marks it used in the current frame.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	c.useLocked(e)
	metrics.CacheHitsTotal.Inc()
	return e.resource, true
}

// Peek returns the resource for key without affecting recency.
func (c *MemoryCache) Peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.resource, true
}

// Touch marks key used in the current frame and reports whether it exists.
func (c *MemoryCache) Touch(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.useLocked(e)
	}
	return ok
}

func (c *MemoryCache) useLocked(e *entry) {
	e.frame = c.frame
	c.lru.MoveToFront(e.elem)
}

// ContainsKey reports whether key is cached, without marking it used.
func (c *MemoryCache) ContainsKey(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Remove drops key and reports whether it was present.
func (c *MemoryCache) Remove(key string) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(e)
		metrics.CacheUsedBytes.Set(float64(c.used))
	}
	listeners := c.listeners
	c.mu.Unlock()
	if ok {
		c.notify(listeners, []*entry{e})
	}
	return ok
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	removed := make([]*entry, 0, len(c.entries))
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		removed = append(removed, el.Value.(*entry))
	}
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.used = 0
	metrics.CacheUsedBytes.Set(0)
	listeners := c.listeners
	c.mu.Unlock()
	c.notify(listeners, removed)
}

// BeginFrame starts a new frame. Entries used in earlier frames become
// eligible for eviction again.
func (c *MemoryCache) BeginFrame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame++
	return c.frame
}

// SetCapacity changes the capacity. The low-water mark follows the capacity
// unless it was set lower. Shrinking evicts immediately.
func (c *MemoryCache) SetCapacity(capacity int64) error {
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	c.mu.Lock()
	if c.lowWater == c.capacity || c.lowWater > capacity {
		c.lowWater = capacity
	}
	c.capacity = capacity
	var removed []*entry
	if c.used > c.capacity {
		removed = c.evictLocked(c.lowWater)
		metrics.CacheUsedBytes.Set(float64(c.used))
	}
	listeners := c.listeners
	c.mu.Unlock()
	c.notify(listeners, removed)
	return nil
}

// SetLowWater sets the size eviction reduces the cache to.
func (c *MemoryCache) SetLowWater(lowWater int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lowWater <= 0 || lowWater > c.capacity {
		return ErrInvalidCapacity
	}
	c.lowWater = lowWater
	return nil
}

// AddEvictionListener registers fn to be called for every entry leaving the
// cache, whether evicted, replaced, removed or cleared.
func (c *MemoryCache) AddEvictionListener(fn func(key string, resource any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Capacity is the byte budget.
func (c *MemoryCache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// UsedCapacity is the total size of the cached entries.
func (c *MemoryCache) UsedCapacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// FreeCapacity is the remaining budget, zero when admitted over budget.
func (c *MemoryCache) FreeCapacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.capacity-c.used, 0)
}

// Len is the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the keys from most to least recently used.
func (c *MemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry).key)
	}
	return keys
}

// Stats returns a usage snapshot.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity: c.capacity,
		LowWater: c.lowWater,
		Used:     c.used,
		Entries:  len(c.entries),
		Frame:    c.frame,
	}
}
