package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// memoryData is shared by all handles returned from [Memory.Peer].
type memoryData struct {
	mu      sync.RWMutex
	records map[string]Record
	subs    map[*memorySub]struct{}
}

type memorySub struct {
	scope  string
	origin string
	ch     chan ChangeEvent
	done   <-chan struct{}
}

// Memory is an in-process [BlockStore] and [ChangeFeed].
type Memory struct {
	data   *memoryData
	origin string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		data:   &memoryData{records: map[string]Record{}, subs: map[*memorySub]struct{}{}},
		origin: uuid.NewString(),
	}
}

// Peer returns another handle on the same data with its own origin. Writes
// through the peer show up on this handle's change feed, like writes from
// a second device.
func (m *Memory) Peer() *Memory {
	return &Memory{data: m.data, origin: uuid.NewString()}
}

// FetchAll implements [BlockStore].
func (m *Memory) FetchAll(ctx context.Context, scope canvas.Scope) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := scope.Key()
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	var out []Record
	for _, r := range m.data.records {
		if r.Scope == key && !r.Deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns a record including soft-deleted ones.
func (m *Memory) Get(id string) (Record, bool) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	r, ok := m.data.records[id]
	return r, ok
}

// Upsert implements [BlockStore].
func (m *Memory) Upsert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Deleted = false
	rec.UpdatedAt = time.Now()
	rec.Origin = m.origin

	m.data.mu.Lock()
	m.data.records[rec.ID] = rec
	m.data.mu.Unlock()

	cp := rec
	m.publish(rec.Scope, ChangeEvent{Kind: ChangeUpsert, ID: rec.ID, Record: &cp, Origin: m.origin})
	return nil
}

// MarkDeleted implements [BlockStore].
func (m *Memory) MarkDeleted(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.mu.Lock()
	rec, ok := m.data.records[id]
	if ok {
		rec.Deleted = true
		rec.UpdatedAt = time.Now()
		rec.Origin = m.origin
		m.data.records[id] = rec
	}
	m.data.mu.Unlock()

	if ok {
		m.publish(rec.Scope, ChangeEvent{Kind: ChangeDelete, ID: id, Origin: m.origin})
	}
	return nil
}

// UpdatePosition implements [BlockStore].
func (m *Memory) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.mu.Lock()
	rec, ok := m.data.records[id]
	if ok {
		rec.X, rec.Y = x, y
		rec.UpdatedAt = time.Now()
		rec.Origin = m.origin
		m.data.records[id] = rec
	}
	m.data.mu.Unlock()

	if ok && !rec.Deleted {
		m.publish(rec.Scope, ChangeEvent{Kind: ChangePosition, ID: id, X: x, Y: y, Origin: m.origin})
	}
	return nil
}

// Subscribe implements [ChangeFeed]. Writes made through this handle are
// not delivered.
func (m *Memory) Subscribe(ctx context.Context, scope canvas.Scope) (<-chan ChangeEvent, error) {
	sub := &memorySub{scope: scope.Key(), origin: m.origin, ch: make(chan ChangeEvent, feedBuffer), done: ctx.Done()}

	m.data.mu.Lock()
	m.data.subs[sub] = struct{}{}
	m.data.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.data.mu.Lock()
		delete(m.data.subs, sub)
		close(sub.ch)
		m.data.mu.Unlock()
	}()
	return sub.ch, nil
}

// publish delivers ev to subscribers of scope on other handles. Delivery
// blocks while a subscriber's buffer is full.
func (m *Memory) publish(scope string, ev ChangeEvent) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for sub := range m.data.subs {
		if sub.scope != scope || sub.origin == ev.Origin {
			continue
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// Close implements [BlockStore].
func (m *Memory) Close() error { return nil }

var (
	_ BlockStore = (*Memory)(nil)
	_ ChangeFeed = (*Memory)(nil)
)
