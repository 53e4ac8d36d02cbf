// Package cache provides time-bounded in-memory caches for remote lookups.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Option configures a cache.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func applyOptions(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TimeBounded caches values for an absolute TTL measured from insertion.
// The lock is only held around map access, never across a loader call.
type TimeBounded[K comparable, V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[K]entry[V]

	group singleflight.Group
}

// New creates an empty cache.
func New[K comparable, V any](name string, ttl time.Duration, log zerolog.Logger, opts ...Option) *TimeBounded[K, V] {
	s := applyOptions(opts)
	return &TimeBounded[K, V]{
		name:    name,
		ttl:     ttl,
		now:     s.now,
		log:     log.With().Str("component", "cache").Str("cache", name).Logger(),
		entries: make(map[K]entry[V]),
	}
}

// Name identifies the cache in logs.
func (c *TimeBounded[K, V]) Name() string {
	return c.name
}

func (c *TimeBounded[K, V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.storedAt) >= c.ttl
}

// Get returns the cached value if it has not expired. It never loads.
// An expired entry found here is evicted.
func (c *TimeBounded[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value with a fresh timestamp.
func (c *TimeBounded[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Evict removes a single key.
func (c *TimeBounded[K, V]) Evict(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or calls loader on a miss.
// Concurrent misses for the same key share one loader call.
// Failed loads are not cached.
func (c *TimeBounded[K, V]) GetOrLoad(ctx context.Context, key K, loader func(context.Context, K) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(fmt.Sprint(key), func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	if shared {
		c.log.Trace().Interface("key", key).Msg("Shared in-flight load")
	}
	return res.(V), nil
}

// Sweep drops every expired entry and returns how many were removed.
// The map is rebuilt and swapped, never filtered in place.
func (c *TimeBounded[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := make(map[K]entry[V], len(c.entries))
	for k, e := range c.entries {
		if !c.expired(e, now) {
			kept[k] = e
		}
	}
	removed := len(c.entries) - len(kept)
	c.entries = kept
	return removed
}

// Len counts entries, including expired ones not yet swept.
func (c *TimeBounded[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
