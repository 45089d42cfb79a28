package view

import (
	"context"
	"net/http"
	"time"

	"github.com/JesseYan/gm-share-tool/internal/cache"
	"github.com/JesseYan/gm-share-tool/internal/pipeline"
)

// WithPageCache serves the view from the page cache when a cached body
// exists, and stores successful HTML responses after the post stage. The
// suffix function partitions the cache (by route argument, platform, ...);
// nil means one shared entry per view.
func WithPageCache(pc *cache.PageCache, ttl time.Duration, suffix func(*pipeline.Context) string) Option {
	if suffix == nil {
		suffix = func(*pipeline.Context) string { return "" }
	}
	return func(v *View) {
		name := v.name

		lookup := func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
			body, ok, err := pc.Get(ctx, name, suffix(rc))
			if err != nil || !ok {
				// A cache store failure only costs us a render.
				return pipeline.Continue(nil), nil
			}
			return pipeline.Halt(pipeline.HTML(http.StatusOK, body)), nil
		}

		store := func(ctx context.Context, rc *pipeline.Context) (pipeline.Result, error) {
			resp := rc.Response
			if resp != nil && resp.RedirectTo == "" && len(resp.Body) > 0 &&
				(resp.Status == 0 || resp.Status == http.StatusOK) {
				pc.Put(ctx, name, suffix(rc), resp.Body, ttl) //nolint:errcheck
			}
			return pipeline.Continue(nil), nil
		}

		v.preHooks = append(v.preHooks, lookup)
		v.postHooks = append(v.postHooks, store)
	}
}
