package engine

import (
	"context"
	"time"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// binding is a finished background entity creation.
type binding struct {
	blockID string
	ref     canvas.EntityRef
	title   string
}

// entityCreateTimeout bounds one background entity creation.
const entityCreateTimeout = 30 * time.Second

// createEntity creates the entity for an unlinked block in the background,
// under the engine context rather than the request's. The result is bound
// to the block by the next Tick, on the writer.
func (e *Engine) createEntity(blockID string, kind canvas.EntityKind, title, body string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		cctx, cancel := context.WithTimeout(e.base, entityCreateTimeout)
		defer cancel()

		ent, err := e.entities.Create(cctx, kind, title, body)
		if err != nil {
			e.logger.Warn("entity creation failed, block stays unlinked", "block", blockID, "kind", kind, "err", err)
			return
		}
		e.bindMu.Lock()
		e.bindings = append(e.bindings, binding{blockID: blockID, ref: ent.Ref, title: ent.Title})
		e.bindMu.Unlock()
	}()
}

func (e *Engine) takeBindings() []binding {
	e.bindMu.Lock()
	defer e.bindMu.Unlock()
	out := e.bindings
	e.bindings = nil
	return out
}

// Tick is the per-frame entry point. It binds entities created since the
// last tick, advances every animating block by dt seconds and queues a
// position write for each block that reached its target. The returned diff
// is also delivered to observers.
func (e *Engine) Tick(dt float64) Diff {
	return e.Batch(func(e *Engine) {
		for _, bd := range e.takeBindings() {
			b, ok := e.Block(bd.blockID)
			if !ok {
				e.logger.Debug("dropping binding for removed block", "block", bd.blockID, "entity", bd.ref.UUID)
				continue
			}
			if b.IsLinked() {
				continue
			}
			b.BindEntity(bd.ref)
			if b.Title == "" {
				b.Title = bd.title
			}
			e.persist(b)
			e.rec.record(b.ID, changeUpdated)
		}

		for _, b := range e.blocks {
			if !b.Animating() || b.Dragging {
				continue
			}
			arrived := e.spring.Step(b, dt)
			if arrived {
				e.writer.enqueue(writeOp{kind: opPosition, id: b.ID, x: b.Position.X, y: b.Position.Y})
			}
			if arrived || dt > 0 {
				e.rec.record(b.ID, changeUpdated)
			}
		}
	})
}

// Animating reports whether any block is moving.
func (e *Engine) Animating() bool {
	for _, b := range e.blocks {
		if b.Animating() {
			return true
		}
	}
	return false
}
