package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 30 * time.Second

// CatalogLoader loads the full catalog.
type CatalogLoader interface {
	Load(ctx context.Context, sortByVotes bool) (*Catalog, error)
}

// Cache keeps the last successfully loaded catalog for ttl. Concurrent misses
// share one load.
type Cache struct {
	source  CatalogLoader
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu       sync.RWMutex
	current  *Catalog
	loadedAt time.Time
}

func NewCache(source CatalogLoader, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, timeout: defaultLoadTimeout, now: time.Now}
}

// Get returns the cached catalog or loads a fresh one.
func (c *Cache) Get(ctx context.Context) (*Catalog, error) {
	c.mu.RLock()
	cur, at := c.current, c.loadedAt
	c.mu.RUnlock()
	if cur != nil && c.now().Sub(at) < c.ttl {
		return cur, nil
	}
	return c.Reload(ctx)
}

// Reload bypasses the cache. A failed reload leaves the previous catalog in
// place for later Get calls. The shared load outlives any one caller; each
// caller stops waiting when its own ctx ends.
func (c *Cache) Reload(ctx context.Context) (*Catalog, error) {
	ch := c.group.DoChan("catalog", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		cat, err := c.source.Load(loadCtx, false)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.current, c.loadedAt = cat, c.now()
		c.mu.Unlock()
		return cat, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Catalog), nil
	}
}
