package cache

import (
	"context"
	"fmt"
	"time"
)

// PageCache caches fully rendered page bodies keyed by view name plus an
// optional per-request suffix.
type PageCache struct {
	store Store
}

// NewPageCache wraps a Store for page caching.
func NewPageCache(store Store) *PageCache {
	return &PageCache{store: store}
}

// Key builds the cache key for a view and suffix.
func (p *PageCache) Key(viewName, suffix string) string {
	return fmt.Sprintf("c:%s:ps:%s", viewName, suffix)
}

// Get returns the cached body for a view, if present.
func (p *PageCache) Get(ctx context.Context, viewName, suffix string) ([]byte, bool, error) {
	body, ok, err := p.store.Get(ctx, p.Key(viewName, suffix))
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(body), true, nil
}

// Put stores a rendered body for a view with the given lifetime.
func (p *PageCache) Put(ctx context.Context, viewName, suffix string, body []byte, ttl time.Duration) error {
	return p.store.SetEx(ctx, p.Key(viewName, suffix), string(body), ttl)
}
