package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/motion"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// MaxPlaceQuantity bounds a single PlaceBlocks call.
const MaxPlaceQuantity = 100

// DefaultMoveDistance is used by Move when distance is zero.
const DefaultMoveDistance = 100.0

// PlaceRequest asks for Quantity blocks for entities matching Query.
type PlaceRequest struct {
	Query    string            `json:"query"`
	Kind     canvas.EntityKind `json:"kind"`
	Quantity int               `json:"quantity"`
	Layout   position.Style    `json:"layout"`
	// CanvasSize bounds the collision search. Zero uses the engine default.
	CanvasSize canvas.Size `json:"canvas_size"`
	// Center overrides the canvas center as the layout center.
	Center *canvas.Point `json:"center,omitempty"`
}

// CreateRequest asks for one new block at a symbolic position.
type CreateRequest struct {
	Kind  canvas.EntityKind `json:"kind"`
	Title string            `json:"title"`
	Body  string            `json:"body,omitempty"`
	// Token is a position token such as "center" or "right_of_selected".
	Token string `json:"token"`
	// Target names the block for tokens relative to a named block.
	Target     string      `json:"target,omitempty"`
	CanvasSize canvas.Size `json:"canvas_size"`
	// Entity links the block to an existing entity. Nil creates a new
	// entity in the background and binds it on a later Tick.
	Entity *canvas.EntityRef `json:"entity,omitempty"`
}

// Resolve maps a position token to a point using the current selection
// and blocks. It never fails.
func (e *Engine) Resolve(token, target string, size canvas.Size) canvas.Point {
	sel, _ := e.Selected()
	return e.resolver.Resolve(token, target, e.canvasSize(size), sel, e.blocks)
}

// CreateBlock adds one block at the resolved, collision-free position of
// req.Token and persists it.
func (e *Engine) CreateBlock(req CreateRequest) (*canvas.Block, error) {
	if req.Kind == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "entity kind is required")
	}
	size := e.canvasSize(req.CanvasSize)
	p := e.resolver.FindNonOverlapping(e.Resolve(req.Token, req.Target, size), e.blocks, size)

	ref := canvas.Unlinked(req.Kind)
	if req.Entity != nil {
		ref = *req.Entity
		if ref.Kind == "" {
			ref.Kind = req.Kind
		}
	}
	b := canvas.NewBlock(ref, req.Title)
	b.Position = p
	if err := e.AddBlock(b, true); err != nil {
		return nil, err
	}
	if !b.IsLinked() {
		e.createEntity(b.ID, req.Kind, req.Title, req.Body)
	}
	return b, nil
}

// PlaceBlocks creates one block per entity matching req.Query, laid out in
// req.Layout around the canvas center (or req.Center) without overlapping
// existing blocks. When the repository has fewer matches than
// req.Quantity, the rest are placeholders titled after the query whose
// entities are created in the background.
func (e *Engine) PlaceBlocks(ctx context.Context, req PlaceRequest) ([]*canvas.Block, error) {
	if req.Quantity <= 0 || req.Quantity > MaxPlaceQuantity {
		return nil, errors.New(errors.ErrCodeInvalidInput, "quantity must be between 1 and %d, got %d", MaxPlaceQuantity, req.Quantity)
	}
	if req.Kind == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "entity kind is required")
	}
	style, err := position.ParseStyle(string(req.Layout))
	if err != nil {
		return nil, err
	}
	req.Layout = style

	found, err := e.entities.Search(ctx, req.Query, req.Kind, req.Quantity)
	if err != nil {
		e.logger.Warn("entity search failed, placing placeholders", "query", req.Query, "err", err)
		found = nil
	}
	if len(found) > req.Quantity {
		found = found[:req.Quantity]
	}

	size := e.canvasSize(req.CanvasSize)
	center := size.Center()
	if req.Center != nil {
		center = *req.Center
	}
	points := e.resolver.PlaceAll(e.resolver.Layout(req.Layout, req.Quantity, center), e.blocks, size)

	placed := make([]*canvas.Block, 0, req.Quantity)
	var missing []*canvas.Block
	e.Batch(func(e *Engine) {
		for i, p := range points {
			var b *canvas.Block
			if i < len(found) {
				b = blockFor(found[i])
			} else {
				b = canvas.NewBlock(canvas.Unlinked(req.Kind), placeholderTitle(req.Query, i-len(found)))
				missing = append(missing, b)
			}
			b.Position = p
			if err := e.AddBlock(b, true); err != nil {
				e.logger.Warn("skipping block", "block", b.ID, "err", err)
				continue
			}
			placed = append(placed, b)
		}
	})
	for _, b := range missing {
		e.createEntity(b.ID, req.Kind, b.Title, "")
	}

	e.logger.Info("placed blocks", "query", req.Query, "kind", req.Kind, "found", len(found), "placed", len(placed), "layout", req.Layout)
	return placed, nil
}

func blockFor(ent entity.Entity) *canvas.Block {
	return canvas.NewBlock(ent.Ref, ent.Title)
}

// placeholderTitle names the n-th (0-based) block created for query.
func placeholderTitle(query string, n int) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	if n == 0 {
		return query
	}
	return fmt.Sprintf("%s %d", query, n+1)
}

// Arrange animates every unpinned block to a fresh layout of style around
// the canvas center. Pinned blocks stay and are avoided.
func (e *Engine) Arrange(style position.Style, size canvas.Size) (Diff, error) {
	style, err := position.ParseStyle(string(style))
	if err != nil {
		return Diff{}, err
	}
	size = e.canvasSize(size)

	var movable, pinned []*canvas.Block
	for _, b := range e.blocks {
		if b.Pinned {
			pinned = append(pinned, b)
		} else {
			movable = append(movable, b)
		}
	}
	targets := e.resolver.PlaceAll(e.resolver.Layout(style, len(movable), size.Center()), pinned, size)

	return e.Batch(func(e *Engine) {
		for i, b := range movable {
			motion.Animate(b, targets[i])
			e.rec.record(b.ID, changeUpdated)
		}
	}), nil
}

var directions = map[string]canvas.Vector{
	"up":         {DY: -1},
	"down":       {DY: 1},
	"left":       {DX: -1},
	"right":      {DX: 1},
	"up_left":    {DX: -1, DY: -1},
	"up_right":   {DX: 1, DY: -1},
	"down_left":  {DX: -1, DY: 1},
	"down_right": {DX: 1, DY: 1},
}

// ParseDirection maps a direction word to a unit step. Diagonals move
// distance along both axes.
func ParseDirection(s string) (canvas.Vector, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	v, ok := directions[key]
	if !ok {
		return canvas.Vector{}, errors.New(errors.ErrCodeInvalidInput, "unknown direction %q", s)
	}
	return v, nil
}

// Move animates unpinned blocks by distance in direction. With ids, only
// those blocks move. Blocks already animating move relative to their
// target.
func (e *Engine) Move(direction string, distance float64, ids ...string) (Diff, error) {
	unit, err := ParseDirection(direction)
	if err != nil {
		return Diff{}, err
	}
	if distance < 0 {
		return Diff{}, errors.New(errors.ErrCodeInvalidInput, "distance must not be negative")
	}
	if distance == 0 {
		distance = DefaultMoveDistance
	}
	only := make(map[string]bool, len(ids))
	for _, id := range ids {
		only[id] = true
	}
	step := unit.Scale(distance)

	return e.Batch(func(e *Engine) {
		for _, b := range e.blocks {
			if b.Pinned || b.Dragging || (len(only) > 0 && !only[b.ID]) {
				continue
			}
			from := b.Position
			if b.Target != nil {
				from = *b.Target
			}
			motion.Animate(b, from.Add(step))
			e.rec.record(b.ID, changeUpdated)
		}
	}), nil
}
