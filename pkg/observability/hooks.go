// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about block persistence, edge queries, cache operations and
// served API requests.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetEngineHooks(&myEngineHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	start := time.Now()
//	err := store.Upsert(ctx, rec)
//	observability.Engine().OnPersist(ctx, "upsert", rec.ID, time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Engine Hooks
// =============================================================================

// EngineHooks receives events from the spatial engine.
type EngineHooks interface {
	// OnPersist records one completed persistence task.
	OnPersist(ctx context.Context, op, blockID string, duration time.Duration, err error)

	// OnMerge records an external change applied to (or rejected by) the engine.
	OnMerge(ctx context.Context, kind string, conflict bool)

	// OnLoad records a full scope load.
	OnLoad(ctx context.Context, scope string, blocks int, duration time.Duration, err error)
}

// =============================================================================
// Edge Hooks
// =============================================================================

// EdgeHooks receives events from connection queries.
type EdgeHooks interface {
	// OnEdgeQuery records one edge query for a visible node set.
	OnEdgeQuery(ctx context.Context, nodes, edges int, duration time.Duration, err error)

	// OnEdgeQueryDiscarded records a completion that arrived after a newer query started.
	OnEdgeQueryDiscarded(ctx context.Context, nodes int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP API.
type HTTPHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, route string)

	// OnResponse records the response written for a request.
	OnResponse(ctx context.Context, method, route string, statusCode int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopEngineHooks is a no-op implementation of EngineHooks.
type NoopEngineHooks struct{}

func (NoopEngineHooks) OnPersist(context.Context, string, string, time.Duration, error) {}
func (NoopEngineHooks) OnMerge(context.Context, string, bool)                           {}
func (NoopEngineHooks) OnLoad(context.Context, string, int, time.Duration, error)       {}

// NoopEdgeHooks is a no-op implementation of EdgeHooks.
type NoopEdgeHooks struct{}

func (NoopEdgeHooks) OnEdgeQuery(context.Context, int, int, time.Duration, error) {}
func (NoopEdgeHooks) OnEdgeQueryDiscarded(context.Context, int)                   {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	engineHooks EngineHooks = NoopEngineHooks{}
	edgeHooks   EdgeHooks   = NoopEdgeHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	httpHooks   HTTPHooks   = NoopHTTPHooks{}
	hooksMu     sync.RWMutex
)

// SetEngineHooks registers custom engine hooks.
// This should be called once at application startup before any engine is created.
func SetEngineHooks(h EngineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		engineHooks = h
	}
}

// SetEdgeHooks registers custom edge query hooks.
func SetEdgeHooks(h EdgeHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		edgeHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Engine returns the registered engine hooks.
func Engine() EngineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return engineHooks
}

// Edges returns the registered edge query hooks.
func Edges() EdgeHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return edgeHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	engineHooks = NoopEngineHooks{}
	edgeHooks = NoopEdgeHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
