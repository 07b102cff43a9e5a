package canvas

import (
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// EntityKind names the kind of domain entity a block references.
// Unknown kinds are allowed; the constants cover the kinds the canvas
// knows how to label.
type EntityKind string

// Known entity kinds.
const (
	KindIdea          EntityKind = "idea"
	KindTask          EntityKind = "task"
	KindNote          EntityKind = "note"
	KindProject       EntityKind = "project"
	KindResearch      EntityKind = "research"
	KindScheduleBlock EntityKind = "schedule_block"
	KindThinkspace    EntityKind = "thinkspace"
	KindConnection    EntityKind = "connection"
)

// UnlinkedEntityID marks a block whose domain entity does not exist yet.
const UnlinkedEntityID int64 = -1

// DefaultBlockSize is the footprint assumed for blocks that have not been
// sized yet and for positions computed before a block exists.
var DefaultBlockSize = Size{Width: 200, Height: 140}

// EntityRef links a block to a domain entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
	UUID string     `json:"uuid,omitempty"`
}

// IsLinked reports whether the reference points at an existing entity.
func (r EntityRef) IsLinked() bool { return r.ID != UnlinkedEntityID }

// Block is one placed element on the canvas.
//
// Position is the block center. Target, Velocity and DragStart are
// transient and never persisted.
type Block struct {
	ID       string  `json:"id"`
	Position Point   `json:"position"`
	Size     Size    `json:"size"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
	Pinned   bool    `json:"pinned,omitempty"`

	Selected bool    `json:"selected,omitempty"`
	Dragging bool    `json:"dragging,omitempty"`
	Opacity  float64 `json:"opacity"`

	Entity   EntityRef         `json:"entity"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Target    *Point `json:"target,omitempty"`
	Velocity  Vector `json:"-"`
	DragStart *Point `json:"-"`
}

// NewBlock creates a block with a fresh id, default size, unit scale and
// full opacity. Pass a ref with ID [UnlinkedEntityID] for a placeholder.
func NewBlock(ref EntityRef, title string) *Block {
	return &Block{
		ID:       uuid.NewString(),
		Size:     DefaultBlockSize,
		Scale:    1,
		Opacity:  1,
		Entity:   ref,
		Title:    title,
		Metadata: map[string]string{},
	}
}

// Unlinked returns an entity reference of the given kind with no backing entity.
func Unlinked(kind EntityKind) EntityRef {
	return EntityRef{Kind: kind, ID: UnlinkedEntityID}
}

// IsLinked reports whether the block is backed by a domain entity.
func (b *Block) IsLinked() bool { return b.Entity.IsLinked() }

// BindEntity late-binds an unlinked block to its entity. The kind is kept
// when ref.Kind is empty.
func (b *Block) BindEntity(ref EntityRef) {
	if ref.Kind == "" {
		ref.Kind = b.Entity.Kind
	}
	b.Entity = ref
}

// Footprint returns the rendered size (Size * Scale).
func (b *Block) Footprint() Size {
	scale := b.Scale
	if scale <= 0 {
		scale = 1
	}
	return b.Size.Scaled(scale)
}

// Bounds returns the axis-aligned rectangle the block occupies. Rotation is
// ignored.
func (b *Block) Bounds() Rect { return RectAround(b.Position, b.Footprint()) }

// Center returns the block center.
func (b *Block) Center() Point { return b.Position }

// Animating reports whether the block has a pending motion target.
func (b *Block) Animating() bool { return b.Target != nil }

// ClearMotion drops the target and velocity.
func (b *Block) ClearMotion() {
	b.Target = nil
	b.Velocity = Vector{}
}

// Clone returns a deep copy.
func (b *Block) Clone() *Block {
	c := *b
	c.Metadata = maps.Clone(b.Metadata)
	if b.Target != nil {
		t := *b.Target
		c.Target = &t
	}
	if b.DragStart != nil {
		d := *b.DragStart
		c.DragStart = &d
	}
	return &c
}

// Validate checks the geometry invariants: finite position and size and a
// strictly positive size.
func (b *Block) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "block id is empty")
	}
	if !b.Position.IsFinite() {
		return errors.New(errors.ErrCodeInvalidInput, "block %s: position %v is not finite", b.ID, b.Position)
	}
	if !b.Size.IsFinite() || b.Size.Width <= 0 || b.Size.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "block %s: invalid size %v", b.ID, b.Size)
	}
	return nil
}

// DisplayTitle returns the title, or a label derived from the entity kind.
func (b *Block) DisplayTitle() string {
	if b.Title != "" {
		return b.Title
	}
	if b.Entity.Kind != "" {
		return fmt.Sprintf("Untitled %s", b.Entity.Kind)
	}
	return "Untitled"
}
