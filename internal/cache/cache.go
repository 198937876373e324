// Package cache provides the result caches used by the analytics engines.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/metrics"
)

// Cache stores computed results by key. Values must not be mutated after Set.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Delete(key string)
	DeletePrefix(prefix string)
	Clear()
	Len() int
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
}

// TTLCache is an in-memory cache whose entries expire ttl after insertion
type TTLCache[V any] struct {
	mu      sync.RWMutex
	name    string
	entries map[string]*entry[V]
	ttl     time.Duration
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// Option configures a TTLCache
type Option func(*options)

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCleanupInterval sets how often expired entries are purged (0 disables the janitor)
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// NewTTLCache creates a cache and starts its janitor
func NewTTLCache[V any](name string, ttl time.Duration, opts ...Option) *TTLCache[V] {
	o := options{now: time.Now, cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTLCache[V]{
		name:    name,
		entries: make(map[string]*entry[V]),
		ttl:     ttl,
		now:     o.now,
		stopCh:  make(chan struct{}),
	}

	if o.cleanupInterval > 0 {
		go c.cleanup(o.cleanupInterval)
	}

	return c
}

// Get returns a live entry
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists || c.expired(e, c.now()) {
		metrics.ObserveCache(c.name, false)
		return zero, false
	}

	metrics.ObserveCache(c.name, true)
	return e.value, true
}

// Set stores a value
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry[V]{value: value, insertedAt: c.now()}
}

// Delete removes a key
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeletePrefix removes all keys with the given prefix
func (c *TTLCache[V]) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear removes all entries
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
}

// Len counts live entries
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if !c.expired(e, now) {
			n++
		}
	}
	return n
}

func (c *TTLCache[V]) expired(e *entry[V], now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// purge drops expired entries
func (c *TTLCache[V]) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
		}
	}
}

func (c *TTLCache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purge()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the janitor; safe to call more than once
func (c *TTLCache[V]) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

// Stats returns cache statistics
func (c *TTLCache[V]) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expired := 0
	now := c.now()
	for _, e := range c.entries {
		if c.expired(e, now) {
			expired++
		}
	}

	return map[string]interface{}{
		"name":            c.name,
		"total_entries":   len(c.entries),
		"expired_entries": expired,
		"active_entries":  len(c.entries) - expired,
		"ttl_seconds":     c.ttl.Seconds(),
	}
}

// New builds the configured backend
func New[V any](name string, cfg config.CacheConfig) (Cache[V], error) {
	switch cfg.Backend {
	case "", "memory":
		return NewTTLCache[V](name, cfg.TTL), nil
	case "redis":
		return NewRedisCache[V](name, RedisConfig{
			URL:       cfg.RedisURL,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s (supported: memory, redis)", cfg.Backend)
	}
}

var _ Cache[int] = (*TTLCache[int])(nil)
