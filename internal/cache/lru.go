// Package cache provides the TTL-bounded LRU caches used across the server:
// logo lookups, session token sources and folder access checks.
package cache

import (
	"container/list"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// entry is a cached value with expiration.
type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Metrics tracks cache statistics.
type Metrics struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total) * 100
}

// LRUConfig holds configuration for the LRU cache.
type LRUConfig struct {
	MaxEntries int           // Maximum number of entries (0 = unlimited)
	DefaultTTL time.Duration // TTL for entries set without an explicit one
	Logger     *slog.Logger
}

// DefaultLRUConfig returns default configuration.
func DefaultLRUConfig() LRUConfig {
	return LRUConfig{
		MaxEntries: 1000,
		DefaultTTL: 5 * time.Minute,
		Logger:     slog.Default(),
	}
}

// LRU is a thread-safe LRU cache with TTL support.
type LRU[V any] struct {
	config  LRUConfig
	items   map[string]*list.Element
	order   *list.List
	mu      sync.Mutex
	metrics Metrics

	// onRemove is called, outside the lock, for evicted and expired values.
	onRemove func(key string, value V)
	now      func() time.Time
}

// NewLRU creates a new LRU cache.
func NewLRU[V any](config LRUConfig) *LRU[V] {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	return &LRU[V]{
		config: config,
		items:  make(map[string]*list.Element),
		order:  list.New(),
		now:    time.Now,
	}
}

// OnRemove registers a callback for values leaving the cache by eviction or
// expiration. Explicit Delete does not trigger it.
func (c *LRU[V]) OnRemove(fn func(key string, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemove = fn
}

// Get returns the value for key if present and not expired.
func (c *LRU[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.metrics.Misses++
		c.mu.Unlock()
		c.config.Logger.Debug("cache miss", slog.String("key", key))
		return zero, false
	}

	e := elem.Value.(*entry[V])
	if e.expired(c.now()) {
		c.removeElementLocked(elem)
		c.metrics.Misses++
		c.metrics.Expirations++
		onRemove := c.onRemove
		c.mu.Unlock()

		c.config.Logger.Debug("cache miss (expired)", slog.String("key", key))
		if onRemove != nil {
			onRemove(e.key, e.value)
		}
		return zero, false
	}

	c.order.MoveToFront(elem)
	c.metrics.Hits++
	c.mu.Unlock()

	c.config.Logger.Debug("cache hit", slog.String("key", key))
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *LRU[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with a specific TTL.
func (c *LRU[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.expiresAt = c.now().Add(ttl)
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		return
	}

	var evicted *entry[V]
	if c.config.MaxEntries > 0 && c.order.Len() >= c.config.MaxEntries {
		evicted = c.evictOldestLocked()
	}

	elem := c.order.PushFront(&entry[V]{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	c.items[key] = elem
	onRemove := c.onRemove
	c.mu.Unlock()

	c.config.Logger.Debug("cache set",
		slog.String("key", key),
		slog.Duration("ttl", ttl),
	)
	if evicted != nil {
		c.config.Logger.Debug("cache eviction (LRU)", slog.String("key", evicted.key))
		if onRemove != nil {
			onRemove(evicted.key, evicted.value)
		}
	}
}

// Delete removes a key from the cache.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElementLocked(elem)
	return true
}

// DeletePrefix removes all keys with the given prefix.
func (c *LRU[V]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElementLocked(elem)
			count++
		}
	}
	return count
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order = list.New()
}

// Size returns the number of entries, expired ones included until cleaned up.
func (c *LRU[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Metrics returns a copy of the current metrics.
func (c *LRU[V]) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Cleanup removes all expired entries.
func (c *LRU[V]) Cleanup() int {
	c.mu.Lock()
	now := c.now()
	var removed []*entry[V]
	for _, elem := range c.items {
		e := elem.Value.(*entry[V])
		if e.expired(now) {
			c.removeElementLocked(elem)
			c.metrics.Expirations++
			removed = append(removed, e)
		}
	}
	onRemove := c.onRemove
	c.mu.Unlock()

	if onRemove != nil {
		for _, e := range removed {
			onRemove(e.key, e.value)
		}
	}
	return len(removed)
}

// Values returns all non-expired values, most recently used first.
func (c *LRU[V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	values := make([]V, 0, len(c.items))
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*entry[V])
		if !e.expired(now) {
			values = append(values, e.value)
		}
	}
	return values
}

// evictOldestLocked removes the least recently used entry.
// Must be called with lock held.
func (c *LRU[V]) evictOldestLocked() *entry[V] {
	elem := c.order.Back()
	if elem == nil {
		return nil
	}
	c.removeElementLocked(elem)
	c.metrics.Evictions++
	return elem.Value.(*entry[V])
}

// removeElementLocked removes an element from the cache.
// Must be called with lock held.
func (c *LRU[V]) removeElementLocked(elem *list.Element) {
	e := elem.Value.(*entry[V])
	delete(c.items, e.key)
	c.order.Remove(elem)
}
