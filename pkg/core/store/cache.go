package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached dataset stays fresh.
const DefaultTTL = 900 * time.Second

// Cache is an in-memory TTL cache with request coalescing. Concurrent
// GetOrLoad calls for the same missing key share one loader invocation.
//
// Key: see Key.String for per-fact entries; datasets are keyed by ticker.
// Expired entries are removed by a background loop; call Close to stop it.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cachedValue[V]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	done    chan struct{}
	closed  sync.Once

	hits   atomic.Int64
	misses atomic.Int64
	loads  atomic.Int64
}

type cachedValue[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	ttl           time.Duration
	evictInterval time.Duration
	now           func() time.Time
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithEvictInterval sets how often expired entries are swept.
func WithEvictInterval(d time.Duration) CacheOption {
	return func(o *cacheOptions) {
		if d > 0 {
			o.evictInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewCache creates a cache and starts its eviction goroutine.
func NewCache[V any](opts ...CacheOption) *Cache[V] {
	o := cacheOptions{ttl: DefaultTTL, evictInterval: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Cache[V]{
		entries: make(map[string]cachedValue[V]),
		ttl:     o.ttl,
		now:     o.now,
		done:    make(chan struct{}),
	}
	go c.evictLoop(o.evictInterval)
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached value and true if a fresh entry exists.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores v under key with the configured TTL.
func (c *Cache[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedValue[V]{value: v, expiresAt: c.now().Add(c.ttl)}
}

// Delete drops key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// GetOrLoad returns the cached value for key, or runs load once for all
// concurrent callers and caches a successful result. Failed loads are not
// cached.
//
// The loader runs with a context detached from any single caller's
// cancellation, since singleflight shares it between waiters; each caller
// still stops waiting when its own ctx is done.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A caller that lost the race to a just-finished load sees its result.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.loads.Add(1)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Loads   int64 `json:"loads"`
	Entries int   `json:"entries"`
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Loads:   c.loads.Load(),
		Entries: n,
	}
}

// Close stops the background eviction goroutine. Safe to call twice.
func (c *Cache[V]) Close() {
	c.closed.Do(func() { close(c.done) })
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *Cache[V]) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache[V]) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}
