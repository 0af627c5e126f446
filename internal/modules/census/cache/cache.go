// Package cache memoizes successful computations by key until explicitly invalidated.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/hbl-templ/bakerloo-line-extension/internal/modules/census/types"
)

// Key identifies an entry: a dataset and either a geography code or a station name.
type Key struct {
	Dataset string
	Subject string
}

func (k Key) String() string { return k.Dataset + "/" + k.Subject }

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is safe for concurrent use. A key's computation runs at most once at a time;
// failures are never stored.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    *lru.Cache
	capacity   int
	clock      clockwork.Clock
	group      singleflight.Group
	generation uint64
	hits       uint64
	misses     uint64
	clearedAt  time.Time
}

type Option func(*options)

type options struct {
	capacity int
	clock    clockwork.Clock
}

// WithCapacity bounds the number of entries; the least recently used is evicted first.
// Zero means unbounded.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

func New[V any](opts ...Option) *Cache[V] {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 0 {
		o.capacity = 0
	}
	return &Cache[V]{
		entries:  lru.New(o.capacity),
		capacity: o.capacity,
		clock:    o.clock,
	}
}

// GetOrCompute returns the stored value for key, or runs compute and stores its result
// if it succeeds. Concurrent callers for the same key share one compute call.
//
// The shared call runs detached from any single caller's cancellation, so one caller
// going away never fails the others. Each caller stops waiting when its own ctx ends.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key Key, compute func(context.Context) (V, error)) (V, error) {
	var zero V
	c.mu.Lock()
	if v, ok := c.entries.Get(key); ok {
		c.hits++
		c.mu.Unlock()
		return v.(entry[V]).value, nil
	}
	c.misses++
	gen := c.generation
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	shared := context.WithoutCancel(ctx)
	sfKey := fmt.Sprintf("%d/%s", gen, key)
	ch := c.group.DoChan(sfKey, func() (any, error) {
		c.mu.Lock()
		if v, ok := c.entries.Get(key); ok && c.generation == gen {
			c.mu.Unlock()
			return v.(entry[V]).value, nil
		}
		c.mu.Unlock()

		value, err := compute(shared)
		if err != nil {
			return value, err
		}
		c.mu.Lock()
		// A result computed before InvalidateAll belongs to the cleared generation.
		if c.generation == gen {
			c.entries.Add(key, entry[V]{value: value, storedAt: c.clock.Now()})
		}
		c.mu.Unlock()
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(V)
		return value, nil
	}
}

// Peek returns the stored value and when it was stored. It counts as a use for eviction
// but not as a hit.
func (c *Cache[V]) Peek(key Key) (V, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(key)
	if !ok {
		var zero V
		return zero, time.Time{}, false
	}
	e := v.(entry[V])
	return e.value, e.storedAt, true
}

// InvalidateAll drops every entry. Computations already running finish but are not stored.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Clear()
	c.generation++
	c.clearedAt = c.clock.Now()
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache[V]) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.CacheStats{
		Entries:   c.entries.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		ClearedAt: c.clearedAt,
	}
}
