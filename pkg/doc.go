// Package pkg provides the libraries behind the canvas engine.
//
// # Overview
//
// A canvas is a 2D surface of blocks, each a visual proxy for a domain
// entity (a note, an idea, a task). Blocks are placed by symbolic position
// or layout style, glide to their targets on a spring, persist to a
// pluggable store and are connected by lines derived from the relationships
// between their entities. The pkg directory is organized into these areas:
//
//  1. [canvas] - The block model and its geometry, with [canvas/position],
//     [canvas/motion] and [canvas/expansion]
//  2. [engine] - The live block collection of one scope and its write queue
//  3. [connections] - Edge queries and the line renderer
//  4. [store] and [entity] - Persistence of blocks and domain entities
//  5. [api] and [render] - HTTP surface and Graphviz export
//
// # Architecture
//
// The data flow of one mutation:
//
//	API request / CLI command / terminal key
//	         ↓
//	    [engine] (mutate memory, publish Diff)
//	         ↓                       ↓
//	    write queue            observers
//	         ↓                       ↓
//	    [store] backend        [connections] tracker → lines
//
// Remote writes flow back through the store's change feed and are merged
// by the engine, local pending writes winning.
//
// # Quick Start
//
//	st, _ := store.Open(ctx, store.Options{Backend: store.BackendSQLite, DSN: "canvas.db"})
//	eng, _ := engine.New(ctx, scope, engine.Options{Store: st})
//	defer eng.Close(ctx)
//	_ = eng.Load(ctx)
//
//	b, _ := eng.CreateBlock(engine.CreateRequest{Kind: canvas.KindNote, Title: "Plan", Token: "center"})
//	_, _ = eng.Move("right", 0, b.ID)
//	for eng.Animating() {
//	    eng.Tick(1.0 / 60)
//	}
//
// # Main Packages
//
// [canvas] - Block, EntityRef, Scope and the point, size and rect geometry.
//
// [canvas/position] - Symbolic position tokens, layout styles and the
// collision-free placement search.
//
// [canvas/motion] - Damped spring integration with snapping and sub-steps.
//
// [canvas/expansion] - The single expanded block with a delayed switch.
//
// [engine] - Engine, the single-writer Loop, Diff observers and merging of
// remote changes.
//
// [connections] - EdgeSource implementations and the Tracker that refreshes
// edges when the visible set changes. [connections.Render] clips lines to
// block bounds.
//
// [entity] - Entity repositories: memory, SQL, Meilisearch-indexed and
// cached.
//
// [store] - Block stores for memory, SQLite, Postgres, Redis and MongoDB,
// with change feeds where the backend supports them.
//
// [cache] - Byte caches (file, Redis, null) and retry policies.
//
// [config] - TOML configuration with environment overrides.
//
// [errors] - Coded errors shared by the engine and the HTTP API.
//
// [observability] - Hooks for metrics and tracing.
//
// [api], [httputil] - The chi router, handlers and middleware.
//
// [render] - DOT and SVG export with pinned block positions.
//
// # Testing
//
//	go test ./pkg/...                    # All tests
//	go test ./pkg/engine/...             # Specific package
//	go test -run Example                 # Examples only
//
// [canvas]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/canvas
// [canvas/position]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/canvas/position
// [canvas/motion]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/canvas/motion
// [canvas/expansion]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/canvas/expansion
// [engine]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/engine
// [connections]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/connections
// [connections.Render]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/connections#Render
// [entity]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/entity
// [store]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/store
// [cache]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/cache
// [config]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/observability
// [api]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/api
// [httputil]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/httputil
// [render]: https://pkg.go.dev/github.com/matzehuels/spatialcanvas/pkg/render
package pkg
