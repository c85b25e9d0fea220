package source

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// Fetcher retrieves a named document.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Cached wraps a Fetcher with an in-memory LRU cache. Failed fetches are not
// cached so they can be retried.
type Cached struct {
	inner Fetcher
	ttl   time.Duration
	cache *ccache.Cache[[]byte]
}

// NewCached creates a cache decorator holding up to maxEntries documents for
// ttl each.
func NewCached(inner Fetcher, maxEntries int, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		ttl:   ttl,
		cache: ccache.New(ccache.Configure[[]byte]().MaxSize(int64(maxEntries))),
	}
}

// Fetch returns the cached document or fetches and stores it.
func (c *Cached) Fetch(ctx context.Context, name string) ([]byte, error) {
	item, err := c.cache.Fetch(name, c.ttl, func() ([]byte, error) {
		return c.inner.Fetch(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return item.Value(), nil
}

// Invalidate drops a cached document.
func (c *Cached) Invalidate(name string) {
	c.cache.Delete(name)
}

// Close stops the cache's background worker.
func (c *Cached) Close() {
	c.cache.Stop()
}
