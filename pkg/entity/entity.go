// Package entity is the domain entity repository the canvas places blocks
// for.
//
// The canvas only needs three things from domain data: find entities by
// text, create a placeholder entity for a new block, and look one up by id
// or uuid. [Repository] covers those. Repositories that also store
// relationships implement [connections.EdgeSource] and
// [connections.Watcher], so the same backend feeds the connection renderer.
//
// Backends: [Memory] for tests and throwaway canvases, [SQL] for SQLite and
// Postgres, and [Indexed], which answers searches from Meilisearch and
// falls back to the wrapped repository while the index is unavailable.
// [Cached] keeps recent search results in a [cache.Cache].
package entity

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// DefaultSearchLimit is used when Search is called with limit <= 0.
const DefaultSearchLimit = 20

// Entity is a domain object a block can reference.
type Entity struct {
	Ref       canvas.EntityRef `json:"ref"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Repository is the domain entity store.
type Repository interface {
	// Search returns up to limit entities whose title or body contains
	// query, case-insensitively, ordered by id. An empty kind matches every
	// kind and an empty query matches every entity.
	Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error)
	// Create stores a new entity with a fresh id and uuid.
	Create(ctx context.Context, kind canvas.EntityKind, title, body string) (Entity, error)
	// Fetch looks an entity up by numeric id or uuid. Missing entities
	// yield an ENTITY_NOT_FOUND error.
	Fetch(ctx context.Context, key string) (Entity, error)
}

// Linker stores relationships between entities.
type Linker interface {
	Link(ctx context.Context, edge canvas.Edge) error
	Unlink(ctx context.Context, edge canvas.Edge) error
}

// parseKey splits a Fetch key into a numeric id or a uuid.
func parseKey(key string) (id int64, uuid string, numeric bool) {
	key = strings.TrimSpace(key)
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		return n, "", true
	}
	return 0, key, false
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}

func matches(e Entity, query string, kind canvas.EntityKind) bool {
	if kind != "" && e.Ref.Kind != kind {
		return false
	}
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Title), query) || strings.Contains(strings.ToLower(e.Body), query)
}
