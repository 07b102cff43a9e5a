package connections

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// EdgeSource answers edge queries for a set of entity uuids. Results
// contain at least every edge whose two endpoints are both in uuids; extra
// edges are filtered out by [Render].
type EdgeSource interface {
	EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error)
}

// Watcher notifies about changed edges. fn receives the uuids of the
// entities whose edges changed.
type Watcher interface {
	WatchEdges(fn func(uuids []string)) (cancel func())
}

// =============================================================================
// Static Source
// =============================================================================

// StaticSource serves a fixed in-memory edge list. It is safe for
// concurrent use.
type StaticSource struct {
	mu       sync.RWMutex
	edges    []canvas.Edge
	next     int
	watchers map[int]func([]string)
}

// NewStaticSource creates a source holding edges.
func NewStaticSource(edges ...canvas.Edge) *StaticSource {
	return &StaticSource{edges: slices.Clone(edges), watchers: map[int]func([]string){}}
}

// EdgesForNodes returns every edge with at least one endpoint in uuids.
func (s *StaticSource) EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(uuids))
	for _, u := range uuids {
		set[u] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []canvas.Edge
	for _, e := range s.edges {
		if set[e.Source] || set[e.Target] {
			out = append(out, e)
		}
	}
	return out, nil
}

// Add appends edges and notifies watchers.
func (s *StaticSource) Add(edges ...canvas.Edge) {
	s.mu.Lock()
	s.edges = append(s.edges, edges...)
	s.mu.Unlock()
	s.notify(endpoints(edges))
}

// Remove deletes every edge with the given key and notifies watchers.
func (s *StaticSource) Remove(key string) {
	s.mu.Lock()
	var removed []canvas.Edge
	s.edges = slices.DeleteFunc(s.edges, func(e canvas.Edge) bool {
		if e.Key() == key {
			removed = append(removed, e)
			return true
		}
		return false
	})
	s.mu.Unlock()
	if len(removed) > 0 {
		s.notify(endpoints(removed))
	}
}

// WatchEdges implements [Watcher].
func (s *StaticSource) WatchEdges(fn func([]string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *StaticSource) notify(uuids []string) {
	s.mu.RLock()
	fns := make([]func([]string), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(uuids)
	}
}

func endpoints(edges []canvas.Edge) []string {
	out := make([]string, 0, 2*len(edges))
	for _, e := range edges {
		out = append(out, e.Source, e.Target)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// =============================================================================
// Cached Source
// =============================================================================

// CachedSource puts a [cache.Cache] in front of another source. Concurrent
// queries for the same uuid set share one call to the inner source. When
// the inner source is a [Watcher], every change notification retires all
// cached results.
type CachedSource struct {
	inner EdgeSource
	cache cache.Cache
	keyer cache.Keyer
	ttl   time.Duration

	epoch atomic.Uint64
	group singleflight.Group
	stop  func()
}

// NewCachedSource wraps inner. A nil keyer uses [cache.DefaultKeyer].
func NewCachedSource(inner EdgeSource, c cache.Cache, keyer cache.Keyer, ttl time.Duration) *CachedSource {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	s := &CachedSource{inner: inner, cache: c, keyer: keyer, ttl: ttl}
	if w, ok := inner.(Watcher); ok {
		s.stop = w.WatchEdges(func([]string) { s.epoch.Add(1) })
	}
	return s
}

// EdgesForNodes implements [EdgeSource].
func (s *CachedSource) EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error) {
	key := fmt.Sprintf("%s:%d", s.keyer.EdgeKey(uuids), s.epoch.Load())
	if edges, ok := cache.GetJSON[[]canvas.Edge](ctx, s.cache, "edges", key); ok {
		return edges, nil
	}

	// The shared call must outlive any single caller: a caller that joined
	// late must not inherit the cancellation of the one that started it.
	ch := s.group.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultQueryTimeout)
		defer cancel()
		edges, err := s.inner.EdgesForNodes(qctx, uuids)
		if err != nil {
			return nil, err
		}
		_ = cache.SetJSON(qctx, s.cache, "edges", key, edges, s.ttl)
		return edges, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]canvas.Edge), nil
	}
}

// WatchEdges forwards to the inner source when it supports watching. The
// cache epoch moves before fn runs, so a re-query from fn misses the cache.
func (s *CachedSource) WatchEdges(fn func([]string)) func() {
	if w, ok := s.inner.(Watcher); ok {
		return w.WatchEdges(func(uuids []string) {
			s.epoch.Add(1)
			fn(uuids)
		})
	}
	return func() {}
}

// Close stops following the inner source. The cache is owned by the caller.
func (s *CachedSource) Close() {
	if s.stop != nil {
		s.stop()
	}
}
