// Package engine owns the live block collection of one canvas scope.
//
// An [Engine] is the single source of truth for the current session. Every
// mutation updates memory first, notifies observers with a [Diff], and
// queues an idempotent background write to the [store.BlockStore]. The
// caller never waits for storage and storage failures never undo a
// mutation; they are logged and counted in [WriteStats].
//
// An Engine is not safe for concurrent use. Exactly one goroutine may call
// its methods; [Loop] provides such a goroutine and serialises commands
// from other goroutines onto it.
//
// Typical use:
//
//	eng, err := engine.New(ctx, scope, engine.Options{Store: st, Entities: repo})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//	if err := eng.Load(ctx); err != nil {
//	    return err
//	}
//	blocks, err := eng.PlaceBlocks(ctx, engine.PlaceRequest{Query: "foo", Kind: canvas.KindNote, Quantity: 3})
package engine

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/motion"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/observability"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// DefaultCanvasSize is used by operations that receive a zero canvas size.
var DefaultCanvasSize = canvas.Size{Width: 1000, Height: 800}

// Options configures an [Engine]. Zero values select defaults.
type Options struct {
	// Store persists blocks. Nil uses a fresh [store.Memory].
	Store store.BlockStore
	// Entities resolves and creates domain entities. Nil uses a fresh
	// [entity.Memory].
	Entities   entity.Repository
	Placement  position.Options
	Spring     motion.Spring
	CanvasSize canvas.Size
	Writes     WriteOptions
	Logger     *log.Logger
}

// Engine is the spatial engine for one scope.
type Engine struct {
	scope    canvas.Scope
	store    store.BlockStore
	entities entity.Repository
	resolver *position.Resolver
	spring   motion.Spring
	size     canvas.Size
	logger   *log.Logger

	base   context.Context
	cancel context.CancelFunc
	writer *writer

	blocks   []*canvas.Block
	selected string

	observers    map[int]func(Diff)
	nextObserver int
	rec          *recorder
	batchDepth   int

	// bindings are entity creations finished in the background, applied
	// on the next Tick.
	bindMu   sync.Mutex
	bindings []binding
	bg       sync.WaitGroup
}

// New creates an engine for scope. Background writes and entity creation
// run under ctx until [Engine.Close].
func New(ctx context.Context, scope canvas.Scope, opts Options) (*Engine, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Entities == nil {
		opts.Entities = entity.NewMemory()
	}
	if opts.Spring == (motion.Spring{}) {
		opts.Spring = motion.Default()
	}
	if opts.CanvasSize.Width <= 0 || opts.CanvasSize.Height <= 0 {
		opts.CanvasSize = DefaultCanvasSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	base, cancel := context.WithCancel(ctx)
	return &Engine{
		scope:     scope,
		store:     opts.Store,
		entities:  opts.Entities,
		resolver:  position.New(opts.Placement),
		spring:    opts.Spring,
		size:      opts.CanvasSize,
		logger:    opts.Logger.With("scope", scope.Key()),
		base:      base,
		cancel:    cancel,
		writer:    newWriter(base, opts.Store, opts.Writes, opts.Logger),
		observers: map[int]func(Diff){},
		rec:       newRecorder(),
	}, nil
}

// Scope returns the scope the engine is bound to.
func (e *Engine) Scope() canvas.Scope { return e.scope }

// Resolver returns the position resolver used for placement.
func (e *Engine) Resolver() *position.Resolver { return e.resolver }

// CanvasSize returns the default canvas size.
func (e *Engine) CanvasSize() canvas.Size { return e.size }

// Store returns the backing store.
func (e *Engine) Store() store.BlockStore { return e.store }

// Entities returns the entity repository.
func (e *Engine) Entities() entity.Repository { return e.entities }

// WriteStats reports background persistence counters.
func (e *Engine) WriteStats() WriteStats { return e.writer.snapshot() }

// PendingWrites returns the number of queued or running writes for id.
func (e *Engine) PendingWrites(id string) int { return e.writer.pending(id) }

func (e *Engine) canvasSize(s canvas.Size) canvas.Size {
	if s.Width <= 0 || s.Height <= 0 {
		return e.size
	}
	return s
}

// =============================================================================
// Reading
// =============================================================================

// Blocks returns the live collection in insertion order. The slice and its
// blocks belong to the engine and must not be modified.
func (e *Engine) Blocks() []*canvas.Block { return e.blocks }

// Len returns the number of blocks.
func (e *Engine) Len() int { return len(e.blocks) }

// Block returns the block with id.
func (e *Engine) Block(id string) (*canvas.Block, bool) {
	i := e.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return e.blocks[i], true
}

// Snapshot returns deep copies of all blocks sorted by z-index, then id.
func (e *Engine) Snapshot() []*canvas.Block {
	out := make([]*canvas.Block, len(e.blocks))
	for i, b := range e.blocks {
		out[i] = b.Clone()
	}
	slices.SortStableFunc(out, func(a, b *canvas.Block) int {
		if c := cmp.Compare(a.ZIndex, b.ZIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Selected returns the selected block, if any.
func (e *Engine) Selected() (*canvas.Block, bool) {
	if e.selected == "" {
		return nil, false
	}
	return e.Block(e.selected)
}

func (e *Engine) indexOf(id string) int {
	return slices.IndexFunc(e.blocks, func(b *canvas.Block) bool { return b.ID == id })
}

func (e *Engine) mustBlock(id string) (*canvas.Block, error) {
	b, ok := e.Block(id)
	if !ok {
		return nil, errors.New(errors.ErrCodeBlockNotFound, "block %s not found", id)
	}
	return b, nil
}

// =============================================================================
// Loading
// =============================================================================

// Load replaces the collection with every non-deleted block of the scope.
// Blocks with writes still pending keep their local state, and blocks added
// locally but not yet stored are kept. Calling Load again re-syncs. On error
// the collection is left unchanged.
func (e *Engine) Load(ctx context.Context) error {
	start := time.Now()
	recs, err := e.store.FetchAll(ctx, e.scope)
	observability.Engine().OnLoad(ctx, e.scope.Key(), len(recs), time.Since(start), err)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "load %s", e.scope)
	}

	current := make(map[string]*canvas.Block, len(e.blocks))
	for _, b := range e.blocks {
		current[b.ID] = b
	}

	e.Batch(func(e *Engine) {
		next := make([]*canvas.Block, 0, len(recs))
		seen := make(map[string]bool, len(recs))
		for _, rec := range recs {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			local, exists := current[rec.ID]
			if exists && e.writer.pending(rec.ID) > 0 {
				next = append(next, local)
				continue
			}
			b := rec.Block()
			if err := b.Validate(); err != nil {
				e.logger.Warn("skipping invalid stored block", "block", rec.ID, "err", err)
				continue
			}
			if exists {
				b.Selected = local.Selected
				b.Opacity = local.Opacity
				next = append(next, b)
				e.rec.record(b.ID, changeUpdated)
				continue
			}
			next = append(next, b)
			e.rec.record(b.ID, changeAdded)
		}
		for _, b := range e.blocks {
			if seen[b.ID] {
				continue
			}
			if e.writer.pending(b.ID) > 0 {
				next = append(next, b)
				continue
			}
			e.rec.record(b.ID, changeRemoved)
		}
		e.blocks = next
		if _, ok := e.Block(e.selected); !ok {
			e.selected = ""
		}
	})

	e.logger.Debug("loaded blocks", "blocks", len(e.blocks), "duration", time.Since(start))
	return nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// AddBlock appends b and, when persist is set, queues an upsert. It fails
// only for invalid geometry or a duplicate id.
func (e *Engine) AddBlock(b *canvas.Block, persist bool) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if e.indexOf(b.ID) >= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "block %s already exists", b.ID)
	}
	if b.Metadata == nil {
		b.Metadata = map[string]string{}
	}
	e.blocks = append(e.blocks, b)
	if persist {
		e.persist(b)
	}
	e.changed(b.ID, changeAdded)
	return nil
}

// RemoveBlock drops id from memory and soft-deletes it in the store.
// Unknown ids are ignored.
func (e *Engine) RemoveBlock(id string) {
	i := e.indexOf(id)
	if i < 0 {
		return
	}
	e.blocks = slices.Delete(e.blocks, i, i+1)
	if e.selected == id {
		e.selected = ""
	}
	e.writer.enqueue(writeOp{kind: opDelete, id: id})
	e.changed(id, changeRemoved)
}

// SaveBlock queues an upsert of the full record of id.
func (e *Engine) SaveBlock(id string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	e.persist(b)
	return nil
}

func (e *Engine) persist(b *canvas.Block) {
	e.writer.enqueue(writeOp{kind: opUpsert, id: b.ID, rec: store.FromBlock(e.scope, b)})
}

// UpdateBlockPosition moves id to p without animation and queues a
// position-only write.
func (e *Engine) UpdateBlockPosition(id string, p canvas.Point) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	if !p.IsFinite() {
		return errors.New(errors.ErrCodeInvalidInput, "position %v is not finite", p)
	}
	b.Position = p
	b.ClearMotion()
	e.writer.enqueue(writeOp{kind: opPosition, id: id, x: p.X, y: p.Y})
	e.changed(id, changeUpdated)
	return nil
}

// Clear removes every block of the scope from memory and the store.
func (e *Engine) Clear() Diff {
	return e.Batch(func(e *Engine) {
		for len(e.blocks) > 0 {
			e.RemoveBlock(e.blocks[len(e.blocks)-1].ID)
		}
	})
}

// =============================================================================
// In-place edits
// =============================================================================

// Select marks id as the selected block. An empty id clears the selection.
func (e *Engine) Select(id string) error {
	if id != "" {
		if _, err := e.mustBlock(id); err != nil {
			return err
		}
	}
	if id == e.selected {
		return nil
	}
	e.Batch(func(e *Engine) {
		if prev, ok := e.Block(e.selected); ok {
			prev.Selected = false
			e.rec.record(prev.ID, changeUpdated)
		}
		e.selected = id
		if b, ok := e.Block(id); ok {
			b.Selected = true
			e.rec.record(id, changeUpdated)
		}
	})
	return nil
}

// BringToFront raises id above every other block and saves it.
func (e *Engine) BringToFront(id string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	top := b.ZIndex
	others := false
	for _, o := range e.blocks {
		if o.ID != id && o.ZIndex >= top {
			top = o.ZIndex
			others = true
		}
	}
	if !others {
		return nil
	}
	b.ZIndex = top + 1
	return e.saved(b)
}

// Resize sets the unscaled size of id and saves it.
func (e *Engine) Resize(id string, size canvas.Size) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	if !size.IsFinite() || size.Width <= 0 || size.Height <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid size %v", size)
	}
	b.Size = size
	return e.saved(b)
}

// SetScale sets the scale factor of id and saves it.
func (e *Engine) SetScale(id string, scale float64) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	if !(scale > 0) || scale > 100 {
		return errors.New(errors.ErrCodeInvalidInput, "invalid scale %v", scale)
	}
	b.Scale = scale
	return e.saved(b)
}

// SetMetadata sets one metadata key of id and saves it. An empty value
// deletes the key.
func (e *Engine) SetMetadata(id, key, value string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	if value == "" {
		delete(b.Metadata, key)
	} else {
		b.Metadata[key] = value
	}
	return e.saved(b)
}

// SetTitle changes the display title of id and saves it.
func (e *Engine) SetTitle(id, title, subtitle string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	b.Title, b.Subtitle = title, subtitle
	return e.saved(b)
}

// TogglePin flips the pin flag of id, saves it and returns the new value.
func (e *Engine) TogglePin(id string) (bool, error) {
	b, err := e.mustBlock(id)
	if err != nil {
		return false, err
	}
	b.Pinned = !b.Pinned
	if b.Pinned {
		b.ClearMotion()
	}
	return b.Pinned, e.saved(b)
}

func (e *Engine) saved(b *canvas.Block) error {
	e.persist(b)
	e.changed(b.ID, changeUpdated)
	return nil
}

// =============================================================================
// Dragging
// =============================================================================

// BeginDrag records the drag anchor of id and stops its animation.
func (e *Engine) BeginDrag(id string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	start := b.Position
	b.DragStart = &start
	b.Dragging = true
	b.ClearMotion()
	e.changed(id, changeUpdated)
	return nil
}

// DragTo moves a dragged block without persisting.
func (e *Engine) DragTo(id string, p canvas.Point) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	if !p.IsFinite() {
		return errors.New(errors.ErrCodeInvalidInput, "position %v is not finite", p)
	}
	b.Position = p
	e.changed(id, changeUpdated)
	return nil
}

// EndDrag finishes a drag and persists the final position.
func (e *Engine) EndDrag(id string) error {
	b, err := e.mustBlock(id)
	if err != nil {
		return err
	}
	b.Dragging = false
	b.DragStart = nil
	return e.UpdateBlockPosition(id, b.Position)
}

// =============================================================================
// Shutdown
// =============================================================================

// Flush waits for background entity creation and queued writes. Entity
// bindings are applied by the next Tick.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.writer.flush(ctx)
}

// Close flushes pending work, then stops background tasks. The store is
// not closed.
func (e *Engine) Close(ctx context.Context) error {
	err := e.Flush(ctx)
	e.cancel()
	return err
}

// cloneMetadata is used by merges that replace a block's fields.
func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}
