package engine

import (
	"context"
	"sync"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/obs"
)

type CacheService interface {
	GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (Result, error)) (Result, error)
}

type cacheEntry struct {
	val     Result
	expiry  time.Time
	ready   bool
	waiters []chan resultOrErr
}

type resultOrErr struct {
	res Result
	err error
}

// Cache is a TTL result cache with single-flight semantics: concurrent
// identical queries collapse onto one live aggregation and share its
// result.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	items   map[string]*cacheEntry
	metrics *obs.Metrics
}

func NewCache(ttl time.Duration, m *obs.Metrics) *Cache {
	return &Cache{ttl: ttl, items: make(map[string]*cacheEntry), metrics: m}
}

func (c *Cache) GetOrCompute(ctx context.Context, key string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	c.mu.Lock()
	entry, found := c.items[key]
	now := time.Now()

	if found && entry.ready && now.Before(entry.expiry) {
		val := entry.val
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.IncCacheHits()
		}
		val.Stats.Cache = "hit"
		return val, nil
	}

	// Collapse: a computation is already in flight, join its waiters.
	if found && !entry.ready {
		ch := make(chan resultOrErr, 1)
		entry.waiters = append(entry.waiters, ch)
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case r := <-ch:
			return r.res, r.err
		}
	}

	ch := make(chan resultOrErr, 1)
	entry = &cacheEntry{waiters: []chan resultOrErr{ch}}
	c.items[key] = entry
	c.mu.Unlock()

	res, err := fn(ctx)
	result := resultOrErr{res: res, err: err}

	c.mu.Lock()
	entry.val = res
	entry.expiry = now.Add(c.ttl)
	entry.ready = err == nil
	if err != nil {
		// Failed computations are not cached; the next caller retries.
		delete(c.items, key)
	}
	waiters := entry.waiters
	entry.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w <- result
		close(w)
	}

	return res, err
}
