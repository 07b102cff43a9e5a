package entity

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Memory is an in-process repository. Links are kept in a
// [connections.StaticSource].
type Memory struct {
	mu       sync.RWMutex
	entities []Entity
	nextID   int64
	links    *connections.StaticSource
}

// NewMemory creates an empty repository holding the given entities. Entities
// without an id or uuid get fresh ones.
func NewMemory(seed ...Entity) *Memory {
	m := &Memory{nextID: 1, links: connections.NewStaticSource()}
	for _, e := range seed {
		m.insert(e)
	}
	return m
}

func (m *Memory) insert(e Entity) Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Ref.ID <= 0 {
		e.Ref.ID = m.nextID
	}
	if e.Ref.ID >= m.nextID {
		m.nextID = e.Ref.ID + 1
	}
	if e.Ref.UUID == "" {
		e.Ref.UUID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.entities = append(m.entities, e)
	return e
}

// Search implements [Repository].
func (m *Memory) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entity
	for _, e := range m.entities {
		if matches(e, q, kind) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.Ref.ID, b.Ref.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Create implements [Repository].
func (m *Memory) Create(ctx context.Context, kind canvas.EntityKind, title, body string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	return m.insert(Entity{Ref: canvas.EntityRef{Kind: kind}, Title: title, Body: body}), nil
}

// Fetch implements [Repository].
func (m *Memory) Fetch(ctx context.Context, key string) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	id, uid, numeric := parseKey(key)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entities {
		if (numeric && e.Ref.ID == id) || (!numeric && e.Ref.UUID == uid) {
			return e, nil
		}
	}
	return Entity{}, errors.New(errors.ErrCodeEntityNotFound, "entity %q not found", key)
}

// Link implements [Linker].
func (m *Memory) Link(ctx context.Context, edge canvas.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.links.Remove(edge.Key())
	m.links.Add(edge)
	return nil
}

// Unlink implements [Linker].
func (m *Memory) Unlink(ctx context.Context, edge canvas.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.links.Remove(edge.Key())
	return nil
}

// EdgesForNodes implements [connections.EdgeSource].
func (m *Memory) EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error) {
	return m.links.EdgesForNodes(ctx, uuids)
}

// WatchEdges implements [connections.Watcher].
func (m *Memory) WatchEdges(fn func([]string)) func() {
	return m.links.WatchEdges(fn)
}

var (
	_ Repository             = (*Memory)(nil)
	_ Linker                 = (*Memory)(nil)
	_ connections.EdgeSource = (*Memory)(nil)
	_ connections.Watcher    = (*Memory)(nil)
)
