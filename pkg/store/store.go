// Package store persists canvas blocks.
//
// A [BlockStore] is the durable side of the spatial engine: the engine keeps
// the live collection in memory and issues idempotent writes (upsert by id,
// delete by id, position by id) in the background. Stores that can observe
// writes made by other processes also implement [ChangeFeed].
//
// Backends:
//
//	memory     in-process maps, for tests and throwaway canvases
//	sqlite     database/sql over ncruces/go-sqlite3, polling change feed
//	postgres   database/sql over pgx, polling change feed
//	redis      JSON records, per-scope sets, pub/sub change feed
//	mongo      one document per block, change-stream feed
//
// [Open] selects a backend by name.
package store

import (
	"context"
	"maps"
	"time"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// Record is the persisted form of a block. Selection, drag and animation
// state are never stored.
type Record struct {
	ID       string  `json:"id" bson:"_id"`
	Scope    string  `json:"scope" bson:"scope"`
	X        float64 `json:"x" bson:"x"`
	Y        float64 `json:"y" bson:"y"`
	Width    float64 `json:"width" bson:"width"`
	Height   float64 `json:"height" bson:"height"`
	Scale    float64 `json:"scale" bson:"scale"`
	Rotation float64 `json:"rotation" bson:"rotation"`
	ZIndex   int     `json:"z_index" bson:"z_index"`
	Pinned   bool    `json:"pinned" bson:"pinned"`

	EntityKind string `json:"entity_kind" bson:"entity_kind"`
	EntityID   int64  `json:"entity_id" bson:"entity_id"`
	EntityUUID string `json:"entity_uuid,omitempty" bson:"entity_uuid,omitempty"`

	Title    string            `json:"title" bson:"title"`
	Subtitle string            `json:"subtitle,omitempty" bson:"subtitle,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`

	Deleted   bool      `json:"deleted,omitempty" bson:"deleted"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	// Origin names the store handle that made the last write, so feeds can
	// skip a process's own writes.
	Origin string `json:"origin,omitempty" bson:"origin,omitempty"`
}

// FromBlock converts a block for storage under scope.
func FromBlock(scope canvas.Scope, b *canvas.Block) Record {
	return Record{
		ID:         b.ID,
		Scope:      scope.Key(),
		X:          b.Position.X,
		Y:          b.Position.Y,
		Width:      b.Size.Width,
		Height:     b.Size.Height,
		Scale:      b.Scale,
		Rotation:   b.Rotation,
		ZIndex:     b.ZIndex,
		Pinned:     b.Pinned,
		EntityKind: string(b.Entity.Kind),
		EntityID:   b.Entity.ID,
		EntityUUID: b.Entity.UUID,
		Title:      b.Title,
		Subtitle:   b.Subtitle,
		Metadata:   maps.Clone(b.Metadata),
	}
}

// Block rebuilds the in-memory block. Missing size and scale fall back to
// the defaults so that rows written by older clients still validate.
func (r Record) Block() *canvas.Block {
	b := &canvas.Block{
		ID:       r.ID,
		Position: canvas.Point{X: r.X, Y: r.Y},
		Size:     canvas.Size{Width: r.Width, Height: r.Height},
		Scale:    r.Scale,
		Rotation: r.Rotation,
		ZIndex:   r.ZIndex,
		Pinned:   r.Pinned,
		Opacity:  1,
		Entity: canvas.EntityRef{
			Kind: canvas.EntityKind(r.EntityKind),
			ID:   r.EntityID,
			UUID: r.EntityUUID,
		},
		Title:    r.Title,
		Subtitle: r.Subtitle,
		Metadata: maps.Clone(r.Metadata),
	}
	if b.Size.Width <= 0 || b.Size.Height <= 0 {
		b.Size = canvas.DefaultBlockSize
	}
	if b.Scale <= 0 {
		b.Scale = 1
	}
	if b.Metadata == nil {
		b.Metadata = map[string]string{}
	}
	return b
}

// BlockStore is the persistent block store. Every write is idempotent so
// that background writes may complete in any order.
type BlockStore interface {
	// FetchAll returns every non-deleted record of scope, in no particular order.
	FetchAll(ctx context.Context, scope canvas.Scope) ([]Record, error)
	// Upsert inserts or replaces the record with rec.ID. Upserting a
	// deleted id revives it.
	Upsert(ctx context.Context, rec Record) error
	// MarkDeleted soft-deletes id. Unknown ids are not an error.
	MarkDeleted(ctx context.Context, id string) error
	// UpdatePosition stores a new center for id. Unknown ids are not an error.
	UpdatePosition(ctx context.Context, id string, x, y float64) error
	// Close releases the connection.
	Close() error
}

// ChangeKind classifies a [ChangeEvent].
type ChangeKind string

// Change kinds.
const (
	ChangeUpsert   ChangeKind = "upsert"
	ChangeDelete   ChangeKind = "delete"
	ChangePosition ChangeKind = "position"
)

// ChangeEvent is a write made by another store handle.
type ChangeEvent struct {
	Kind ChangeKind `json:"kind"`
	ID   string     `json:"id"`
	// Record is set for upserts.
	Record *Record `json:"record,omitempty"`
	// X and Y are set for position changes.
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Origin string  `json:"origin,omitempty"`
}

// ChangeFeed streams writes made by other processes to the same scope.
// The channel closes when ctx is done or the feed fails.
type ChangeFeed interface {
	Subscribe(ctx context.Context, scope canvas.Scope) (<-chan ChangeEvent, error)
}

// feedBuffer is the channel capacity of every change feed.
const feedBuffer = 64
