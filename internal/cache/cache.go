// Package cache memoizes rendered API responses per locale. Entries are
// dropped wholesale for a locale when new observations are ingested, and
// otherwise age out after a TTL.
package cache

import (
	"context"
	"time"

	"pricedash/internal/log"
)

// Entry is a rendered response.
type Entry struct {
	ContentType string
	Body        []byte
}

// Observer receives cache events for metrics.
type Observer interface {
	CacheLookup(hit bool)
	CacheInvalidated(locale string, n int)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(bool)             {}
func (nopObserver) CacheInvalidated(string, int) {}

const keySep = "\x00"

// ResponseCache is an LRU of rendered responses keyed by locale first.
type ResponseCache struct {
	lru      *LRUCache[Entry]
	observer Observer
}

func NewResponseCache(size int, ttl time.Duration, observer Observer) *ResponseCache {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ResponseCache{lru: NewLRUCache[Entry](size, ttl), observer: observer}
}

// Key builds the cache key of a request.
func Key(locale, route, rawQuery string) string {
	return locale + keySep + route + keySep + rawQuery
}

func (c *ResponseCache) Get(key string) (Entry, bool) {
	e, ok := c.lru.Get(key)
	c.observer.CacheLookup(ok)
	return e, ok
}

func (c *ResponseCache) Set(key string, e Entry) {
	c.lru.Set(key, e)
}

// Invalidate drops every response cached for locale.
func (c *ResponseCache) Invalidate(locale string) int {
	n := c.lru.DeletePrefix(locale + keySep)
	c.observer.CacheInvalidated(locale, n)
	return n
}

func (c *ResponseCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *ResponseCache) Size() int {
	return c.lru.Size()
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches until its context ends.
type Janitor struct {
	caches   []Cleaner
	interval time.Duration
	logger   *log.Logger
}

func NewJanitor(interval time.Duration, logger *log.Logger, caches ...Cleaner) *Janitor {
	if logger == nil {
		logger = log.Discard()
	}
	return &Janitor{caches: caches, interval: interval, logger: logger.WithComponent(log.ComponentCache)}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleaned := 0
			for _, c := range j.caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				j.logger.DebugContext(ctx, "Cleaned expired cache entries", "count", cleaned)
			}
		}
	}
}
