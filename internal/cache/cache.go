// Package cache provides a short-TTL read cache with in-flight request
// coalescing for per-user record reads. Concurrent identical cache misses
// share a single underlying fetch (singleflight); only positive results are
// cached, so a "not yet created" record is always re-checked rather than
// sticking at not-found after a race with a concurrent writer.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "record_cache_lookups_total",
	Help: "Record cache lookups partitioned by outcome.",
}, []string{"outcome"}) // hit | miss | stale

// Key identifies one cached logical record.
type Key struct {
	UserID string
	Kind   string
	Name   string // record key, list marker, or probe name
}

func (k Key) String() string {
	return k.UserID + "\x00" + k.Kind + "\x00" + k.Name
}

type entry struct {
	value     any
	fetchedAt time.Time
	ttl       time.Duration
}

// Cache is a TTL read cache plus request coalescer. The zero value is not
// usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns a fresh cached value if one exists.
func (c *Cache) Get(k Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k.String()]
	if !ok {
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= e.ttl {
		delete(c.entries, k.String())
		lookups.WithLabelValues("stale").Inc()
		return nil, false
	}
	lookups.WithLabelValues("hit").Inc()
	return e.value, true
}

// Put stores a value with a TTL. Used for write-through after a successful
// save so the written key is immediately readable from cache.
func (c *Cache) Put(k Key, v any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k.String()] = entry{value: v, fetchedAt: c.now(), ttl: ttl}
}

// Invalidate removes the entry for a key, as opposed to letting it expire.
// Called on every successful write to the same key.
func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k.String())
}

// GetOrFetch returns the cached value for k, or runs fetch to populate it.
//
// Semantics:
//   - force bypasses the cache unconditionally (but still coalesces with
//     other forced fetches for the same key).
//   - Concurrent callers missing on the same key join one in-flight fetch;
//     the in-flight entry is dropped when the fetch settles, success or not.
//     The shared fetch is detached from the initiating caller's cancellation,
//     so a caller that leaves early cannot abort the result for later joiners.
//   - fetch reports found=false for an absent record; absence is returned to
//     the caller as a nil value and is never cached.
func (c *Cache) GetOrFetch(ctx context.Context, k Key, ttl time.Duration, force bool, fetch func(ctx context.Context) (any, bool, error)) (any, error) {
	if !force {
		if v, ok := c.Get(k); ok {
			return v, nil
		}
	}

	flightKey := k.String()
	if force {
		flightKey += "\x00force"
	}
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		val, found, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		c.Put(k, val, ttl)
		return val, nil
	})
	return v, err
}
