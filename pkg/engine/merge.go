package engine

import (
	"context"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/observability"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// Subscribe opens the change feed of the backing store for the engine's
// scope. Events must be handed to [Engine.ApplyChange] on the writer; see
// [Loop.Follow].
func (e *Engine) Subscribe(ctx context.Context) (<-chan store.ChangeEvent, error) {
	feed, ok := e.store.(store.ChangeFeed)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupported, "store %T has no change feed", e.store)
	}
	return feed.Subscribe(ctx, e.scope)
}

// ApplyChange merges a write made by another process, matching by block id.
//
// A local mutation wins while it is in flight: if the block has a pending
// write, is being dragged or is animating toward a target set by Move or
// Arrange, the remote change is dropped and reported in Diff.Conflicts. The local write then lands after the remote one, so the
// store converges on the local state. Otherwise the remote state replaces
// the persisted fields of the block; selection, opacity and drag state stay
// local.
func (e *Engine) ApplyChange(ev store.ChangeEvent) Diff {
	return e.Batch(func(e *Engine) {
		if ev.Kind == store.ChangeUpsert && (ev.Record == nil || ev.Record.Scope != e.scope.Key()) {
			return
		}
		local, exists := e.Block(ev.ID)
		if e.writer.pending(ev.ID) > 0 || (exists && (local.Dragging || local.Animating())) {
			e.logger.Debug("remote change conflicts with local write, keeping local", "block", ev.ID, "kind", ev.Kind)
			observability.Engine().OnMerge(e.base, string(ev.Kind), true)
			e.rec.conflict(ev.ID)
			return
		}
		observability.Engine().OnMerge(e.base, string(ev.Kind), false)

		switch ev.Kind {
		case store.ChangeUpsert:
			remote := ev.Record.Block()
			if err := remote.Validate(); err != nil {
				e.logger.Warn("ignoring invalid remote block", "block", ev.ID, "err", err)
				return
			}
			if !exists {
				e.blocks = append(e.blocks, remote)
				e.rec.record(ev.ID, changeAdded)
				return
			}
			replacePersisted(local, remote)
			e.rec.record(ev.ID, changeUpdated)

		case store.ChangeDelete:
			if !exists {
				return
			}
			e.blocks = removeID(e.blocks, ev.ID)
			if e.selected == ev.ID {
				e.selected = ""
			}
			e.rec.record(ev.ID, changeRemoved)

		case store.ChangePosition:
			if !exists {
				return
			}
			p := canvas.Point{X: ev.X, Y: ev.Y}
			if !p.IsFinite() {
				return
			}
			local.Position = p
			local.ClearMotion()
			e.rec.record(ev.ID, changeUpdated)
		}
	})
}

// replacePersisted copies the stored fields of src into dst.
func replacePersisted(dst, src *canvas.Block) {
	dst.Position = src.Position
	dst.Size = src.Size
	dst.Scale = src.Scale
	dst.Rotation = src.Rotation
	dst.ZIndex = src.ZIndex
	dst.Pinned = src.Pinned
	dst.Entity = src.Entity
	dst.Title = src.Title
	dst.Subtitle = src.Subtitle
	dst.Metadata = cloneMetadata(src.Metadata)
	dst.ClearMotion()
}

func removeID(blocks []*canvas.Block, id string) []*canvas.Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}
