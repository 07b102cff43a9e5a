package entity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// searchTimeout bounds one shared search.
const searchTimeout = 10 * time.Second

// Cached puts a [cache.Cache] in front of Search. Identical concurrent
// searches share one call to the inner repository. Create retires every
// cached result, so a new entity is found by the next search.
type Cached struct {
	Repository
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration

	epoch atomic.Uint64
	group singleflight.Group
}

// NewCached wraps inner. A nil keyer uses [cache.DefaultKeyer].
func NewCached(inner Repository, c cache.Cache, keyer cache.Keyer, ttl time.Duration) *Cached {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &Cached{Repository: inner, cache: c, keyer: keyer, ttl: ttl}
}

// Search implements [Repository].
func (c *Cached) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	limit = normalizeLimit(limit)
	key := fmt.Sprintf("%s:%d", c.keyer.SearchKey(string(kind), query, limit), c.epoch.Load())
	if found, ok := cache.GetJSON[[]Entity](ctx, c.cache, "search", key); ok {
		return found, nil
	}

	// Joined callers wait under their own ctx; the shared search runs
	// detached from the caller that started it.
	ch := c.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), searchTimeout)
		defer cancel()
		found, err := c.Repository.Search(sctx, query, kind, limit)
		if err != nil {
			return nil, err
		}
		_ = cache.SetJSON(sctx, c.cache, "search", key, found, c.ttl)
		return found, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]Entity), nil
	}
}

// Create implements [Repository].
func (c *Cached) Create(ctx context.Context, kind canvas.EntityKind, title, body string) (Entity, error) {
	ent, err := c.Repository.Create(ctx, kind, title, body)
	if err == nil {
		c.epoch.Add(1)
	}
	return ent, err
}
