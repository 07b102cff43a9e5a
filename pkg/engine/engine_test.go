package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

var testScope = canvas.Scope{DocumentType: "project", DocumentID: "1"}

// stubStore wraps a memory store with call recording, failure injection
// and an optional gate that holds every write until closed.
type stubStore struct {
	*store.Memory

	mu    sync.Mutex
	calls []string
	fails int // remaining failures; negative fails forever
	gate  chan struct{}
}

func newStubStore() *stubStore { return &stubStore{Memory: store.NewMemory()} }

func (s *stubStore) before(ctx context.Context, call string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	gate := s.gate
	fail := s.fails != 0
	if s.fails > 0 {
		s.fails--
	}
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return fmt.Errorf("store unreachable")
	}
	return nil
}

func (s *stubStore) Upsert(ctx context.Context, rec store.Record) error {
	if err := s.before(ctx, "upsert:"+rec.Title); err != nil {
		return err
	}
	return s.Memory.Upsert(ctx, rec)
}

func (s *stubStore) MarkDeleted(ctx context.Context, id string) error {
	if err := s.before(ctx, "delete"); err != nil {
		return err
	}
	return s.Memory.MarkDeleted(ctx, id)
}

func (s *stubStore) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	if err := s.before(ctx, "position"); err != nil {
		return err
	}
	return s.Memory.UpdatePosition(ctx, id, x, y)
}

func (s *stubStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	e, err := New(context.Background(), testScope, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func flush(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func settle(t *testing.T, e *Engine) {
	t.Helper()
	for i := 0; e.Animating(); i++ {
		if i > 2000 {
			t.Fatal("blocks still animating after 2000 ticks")
		}
		e.Tick(0.016)
	}
}

func near(a, b canvas.Point) bool {
	return math.Abs(a.X-b.X) < 1e-6 && math.Abs(a.Y-b.Y) < 1e-6
}

func addAt(t *testing.T, e *Engine, title string, x, y float64) *canvas.Block {
	t.Helper()
	b := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), title)
	b.Position = canvas.Point{X: x, Y: y}
	if err := e.AddBlock(b, true); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	return b
}

func TestNewRejectsInvalidScope(t *testing.T) {
	_, err := New(context.Background(), canvas.Scope{DocumentType: "project"}, Options{})
	if !errors.Is(err, errors.ErrCodeInvalidScope) {
		t.Errorf("New() error = %v, want INVALID_SCOPE", err)
	}
}

func TestPlaceBlocksOrbitalScenario(t *testing.T) {
	repo := entity.NewMemory()
	for i := range 3 {
		if _, err := repo.Create(context.Background(), canvas.KindNote, fmt.Sprintf("foo %d", i), ""); err != nil {
			t.Fatal(err)
		}
	}
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st, Entities: repo})

	blocks, err := e.PlaceBlocks(context.Background(), PlaceRequest{
		Query:      "foo",
		Kind:       canvas.KindNote,
		Quantity:   3,
		Layout:     position.StyleOrbital,
		CanvasSize: canvas.Size{Width: 1000, Height: 800},
	})
	if err != nil {
		t.Fatalf("PlaceBlocks: %v", err)
	}
	if len(blocks) != 3 || e.Len() != 3 {
		t.Fatalf("placed %d blocks, engine holds %d, want 3", len(blocks), e.Len())
	}

	want := position.Orbital(3, canvas.Point{X: 500, Y: 400}, position.DefaultOrbitRadius)
	for i, b := range blocks {
		if !near(b.Position, want[i]) {
			t.Errorf("block %d at %v, want %v", i, b.Position, want[i])
		}
		if !b.IsLinked() {
			t.Errorf("block %d is unlinked", i)
		}
		for _, o := range blocks[i+1:] {
			if b.Bounds().Intersects(o.Bounds()) {
				t.Errorf("blocks %s and %s overlap", b.Title, o.Title)
			}
		}
	}

	flush(t, e)
	recs, _ := st.FetchAll(context.Background(), testScope)
	if len(recs) != 3 {
		t.Errorf("store holds %d records, want 3", len(recs))
	}
}

func TestPlaceBlocksCreatesMissingEntities(t *testing.T) {
	repo := entity.NewMemory()
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st, Entities: repo})

	blocks, err := e.PlaceBlocks(context.Background(), PlaceRequest{Query: "foo", Kind: canvas.KindIdea, Quantity: 2, Layout: "grid"})
	if err != nil {
		t.Fatal(err)
	}
	if blocks[0].Title != "foo" || blocks[1].Title != "foo 2" {
		t.Errorf("titles = %q, %q", blocks[0].Title, blocks[1].Title)
	}
	for _, b := range blocks {
		if b.IsLinked() {
			t.Fatalf("block %s linked before the entity exists", b.Title)
		}
	}

	flush(t, e)
	d := e.Tick(0)
	if len(d.Updated) != 2 {
		t.Errorf("bind tick diff = %+v, want 2 updated", d)
	}
	flush(t, e)

	for _, b := range blocks {
		if !b.IsLinked() || b.Entity.Kind != canvas.KindIdea || b.Entity.UUID == "" {
			t.Errorf("block %s entity = %+v after binding", b.Title, b.Entity)
		}
		rec, ok := st.Get(b.ID)
		if !ok || rec.EntityID != b.Entity.ID {
			t.Errorf("stored entity id = %d, want %d", rec.EntityID, b.Entity.ID)
		}
		if _, err := repo.Fetch(context.Background(), b.Entity.UUID); err != nil {
			t.Errorf("entity for %s not in repository: %v", b.Title, err)
		}
	}
}

func TestPlaceBlocksAvoidsExistingBlocks(t *testing.T) {
	e := newTestEngine(t, Options{})
	blocker := addAt(t, e, "blocker", 500, 400)

	blocks, err := e.PlaceBlocks(context.Background(), PlaceRequest{Query: "x", Kind: canvas.KindNote, Quantity: 1})
	if err != nil {
		t.Fatal(err)
	}
	if blocks[0].Bounds().Intersects(blocker.Bounds()) {
		t.Errorf("placed block at %v overlaps the blocker", blocks[0].Position)
	}
}

func TestPlaceBlocksErrors(t *testing.T) {
	e := newTestEngine(t, Options{})
	tests := []struct {
		name string
		req  PlaceRequest
		code errors.Code
	}{
		{"zero quantity", PlaceRequest{Kind: canvas.KindNote}, errors.ErrCodeInvalidInput},
		{"too many", PlaceRequest{Kind: canvas.KindNote, Quantity: MaxPlaceQuantity + 1}, errors.ErrCodeInvalidInput},
		{"missing kind", PlaceRequest{Quantity: 1}, errors.ErrCodeInvalidInput},
		{"bad layout", PlaceRequest{Kind: canvas.KindNote, Quantity: 1, Layout: "spiral"}, errors.ErrCodeInvalidLayout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.PlaceBlocks(context.Background(), tt.req)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
	if e.Len() != 0 {
		t.Errorf("failed requests added %d blocks", e.Len())
	}
}

func TestCreateBlockRelativeToSelected(t *testing.T) {
	e := newTestEngine(t, Options{})
	anchor := addAt(t, e, "anchor", 300, 400)
	if err := e.Select(anchor.ID); err != nil {
		t.Fatal(err)
	}

	b, err := e.CreateBlock(CreateRequest{Kind: canvas.KindTask, Title: "next", Token: "right_of_selected"})
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	want := canvas.Point{X: 300 + 100 + 100 + position.DefaultSpacing, Y: 400}
	if !near(b.Position, want) {
		t.Errorf("position = %v, want %v", b.Position, want)
	}

	flush(t, e)
	e.Tick(0)
	if !b.IsLinked() {
		t.Error("created block was not bound to its entity")
	}
}

func TestCreateBlockWithExistingEntity(t *testing.T) {
	e := newTestEngine(t, Options{})
	ref := canvas.EntityRef{ID: 9, UUID: "u-9"}
	b, err := e.CreateBlock(CreateRequest{Kind: canvas.KindNote, Title: "linked", Token: "center", Entity: &ref})
	if err != nil {
		t.Fatal(err)
	}
	if b.Entity.ID != 9 || b.Entity.Kind != canvas.KindNote {
		t.Errorf("entity = %+v", b.Entity)
	}
	if !near(b.Position, canvas.Point{X: 500, Y: 400}) {
		t.Errorf("position = %v, want canvas center", b.Position)
	}
}

func TestPersistenceFailureIsSoft(t *testing.T) {
	st := newStubStore()
	st.fails = -1
	e := newTestEngine(t, Options{Store: st})

	b := addAt(t, e, "a", 100, 100)
	if _, ok := e.Block(b.ID); !ok {
		t.Fatal("block missing from memory after failed persist")
	}
	if err := e.UpdateBlockPosition(b.ID, canvas.Point{X: 200, Y: 200}); err != nil {
		t.Fatalf("UpdateBlockPosition: %v", err)
	}
	flush(t, e)

	stats := e.WriteStats()
	if stats.Failed == 0 || stats.Written != 0 || stats.Pending != 0 {
		t.Errorf("stats = %+v, want failures only", stats)
	}
	if got, _ := e.Block(b.ID); got.Position != (canvas.Point{X: 200, Y: 200}) {
		t.Errorf("position rolled back to %v", got.Position)
	}
}

func TestRetryDeliversAfterTransientFailures(t *testing.T) {
	st := newStubStore()
	st.fails = 2
	e := newTestEngine(t, Options{Store: st, Writes: WriteOptions{
		Retry: &cache.RetryPolicy{Attempts: 3, Delay: time.Millisecond},
	}})

	b := addAt(t, e, "a", 100, 100)
	flush(t, e)

	if _, ok := st.Get(b.ID); !ok {
		t.Fatal("record not stored after retries")
	}
	if stats := e.WriteStats(); stats.Written != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n := st.callCount(); n != 3 {
		t.Errorf("store called %d times, want 3", n)
	}
}

func TestWritesForOneBlockAreOrderedAndCoalesced(t *testing.T) {
	st := newStubStore()
	st.gate = make(chan struct{})
	e := newTestEngine(t, Options{Store: st})

	b := addAt(t, e, "v1", 100, 100)
	deadline := time.Now().Add(2 * time.Second)
	for st.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first write never started")
		}
		time.Sleep(time.Millisecond)
	}

	_ = e.SetTitle(b.ID, "v2", "")
	_ = e.UpdateBlockPosition(b.ID, canvas.Point{X: 150, Y: 150})
	_ = e.UpdateBlockPosition(b.ID, canvas.Point{X: 160, Y: 160})
	_ = e.SetTitle(b.ID, "v3", "")
	if n := e.PendingWrites(b.ID); n != 2 {
		t.Errorf("PendingWrites = %d, want 2 (running + one coalesced upsert)", n)
	}
	close(st.gate)
	flush(t, e)

	calls := st.callLog()
	if len(calls) != 2 || calls[0] != "upsert:v1" || calls[1] != "upsert:v3" {
		t.Errorf("calls = %v, want [upsert:v1 upsert:v3]", calls)
	}
	rec, _ := st.Get(b.ID)
	if rec.Title != "v3" || rec.X != 160 {
		t.Errorf("stored = %q at %v, want v3 at 160", rec.Title, rec.X)
	}
	if stats := e.WriteStats(); stats.Coalesced != 3 {
		t.Errorf("Coalesced = %d, want 3", stats.Coalesced)
	}
}

func TestRemoveAndClear(t *testing.T) {
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st})
	a := addAt(t, e, "a", 100, 100)
	addAt(t, e, "b", 400, 100)
	addAt(t, e, "c", 700, 100)
	flush(t, e)

	_ = e.Select(a.ID)
	e.RemoveBlock(a.ID)
	e.RemoveBlock("missing")
	if _, ok := e.Selected(); ok {
		t.Error("removed block is still selected")
	}
	d := e.Clear()
	if len(d.Removed) != 2 || e.Len() != 0 {
		t.Errorf("Clear diff = %+v, len = %d", d, e.Len())
	}
	flush(t, e)
	recs, _ := st.FetchAll(context.Background(), testScope)
	if len(recs) != 0 {
		t.Errorf("store still holds %d live records", len(recs))
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	for i := range 3 {
		b := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), fmt.Sprintf("b%d", i))
		b.Position = canvas.Point{X: float64(100 + 300*i), Y: 100}
		_ = st.Upsert(context.Background(), store.FromBlock(testScope, b))
	}
	other := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), "elsewhere")
	_ = st.Upsert(context.Background(), store.FromBlock(canvas.Scope{DocumentType: "project", DocumentID: "2"}, other))

	e := newTestEngine(t, Options{Store: st})
	var diffs []Diff
	e.Observe(func(d Diff) { diffs = append(diffs, d) })

	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if e.Len() != 3 {
		t.Fatalf("Len = %d, want 3", e.Len())
	}
	if len(diffs) != 2 || len(diffs[0].Added) != 3 || len(diffs[1].Updated) != 3 || len(diffs[1].Added) != 0 {
		t.Errorf("diffs = %+v", diffs)
	}
}

func TestLoadKeepsBlocksWithPendingWrites(t *testing.T) {
	st := newStubStore()
	st.gate = make(chan struct{})
	e := newTestEngine(t, Options{Store: st})

	b := addAt(t, e, "local", 100, 100)
	if err := e.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := e.Block(b.ID); !ok {
		t.Error("Load dropped a block whose upsert is still pending")
	}
	close(st.gate)
}

type brokenStore struct{ store.BlockStore }

func (brokenStore) FetchAll(context.Context, canvas.Scope) ([]store.Record, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestLoadFailureKeepsState(t *testing.T) {
	e := newTestEngine(t, Options{Store: brokenStore{store.NewMemory()}})
	addAt(t, e, "a", 100, 100)
	err := e.Load(context.Background())
	if !errors.Is(err, errors.ErrCodeStoreUnavailable) {
		t.Errorf("Load error = %v, want STORE_UNAVAILABLE", err)
	}
	if e.Len() != 1 {
		t.Errorf("Len = %d after failed load, want 1", e.Len())
	}
}

func TestArrangeAnimatesAndPersistsOnArrival(t *testing.T) {
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st})
	var blocks []*canvas.Block
	for i := range 4 {
		blocks = append(blocks, addAt(t, e, fmt.Sprintf("b%d", i), 100, 100))
	}
	pinned := addAt(t, e, "pinned", 900, 700)
	if _, err := e.TogglePin(pinned.ID); err != nil {
		t.Fatal(err)
	}

	d, err := e.Arrange(position.StyleGrid, canvas.Size{})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Updated) != 4 {
		t.Errorf("Arrange diff = %+v, want 4 updated", d)
	}
	if !blocks[0].Animating() || pinned.Animating() {
		t.Fatal("Arrange must animate unpinned blocks only")
	}
	if blocks[0].Position != (canvas.Point{X: 100, Y: 100}) {
		t.Error("Arrange teleported a block")
	}
	targets := make([]canvas.Point, len(blocks))
	for i, b := range blocks {
		targets[i] = *b.Target
	}

	settle(t, e)
	flush(t, e)
	for i, b := range blocks {
		if b.Position != targets[i] {
			t.Errorf("block %d at %v, want %v", i, b.Position, targets[i])
		}
		rec, _ := st.Get(b.ID)
		if rec.X != targets[i].X || rec.Y != targets[i].Y {
			t.Errorf("stored position of block %d = (%v, %v), want %v", i, rec.X, rec.Y, targets[i])
		}
		for _, o := range blocks[i+1:] {
			if b.Bounds().Intersects(o.Bounds()) {
				t.Errorf("arranged blocks overlap")
			}
		}
	}
	if pinned.Position != (canvas.Point{X: 900, Y: 700}) {
		t.Errorf("pinned block moved to %v", pinned.Position)
	}
}

func TestArrangeRejectsUnknownStyle(t *testing.T) {
	e := newTestEngine(t, Options{})
	if _, err := e.Arrange("zigzag", canvas.Size{}); !errors.Is(err, errors.ErrCodeInvalidLayout) {
		t.Errorf("error = %v, want INVALID_LAYOUT", err)
	}
}

func TestMove(t *testing.T) {
	e := newTestEngine(t, Options{})
	a := addAt(t, e, "a", 100, 100)
	b := addAt(t, e, "b", 400, 100)

	if _, err := e.Move("right", 50, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Move("down", 0); err != nil {
		t.Fatal(err)
	}
	settle(t, e)
	if a.Position != (canvas.Point{X: 150, Y: 100 + DefaultMoveDistance}) {
		t.Errorf("a at %v", a.Position)
	}
	if b.Position != (canvas.Point{X: 400, Y: 100 + DefaultMoveDistance}) {
		t.Errorf("b at %v", b.Position)
	}

	for _, bad := range []struct {
		dir  string
		dist float64
	}{{"sideways", 10}, {"up", -1}} {
		if _, err := e.Move(bad.dir, bad.dist); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Move(%q, %v) error = %v, want INVALID_INPUT", bad.dir, bad.dist, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want canvas.Vector
	}{
		{"up", canvas.Vector{DY: -1}},
		{" Left ", canvas.Vector{DX: -1}},
		{"down-right", canvas.Vector{DX: 1, DY: 1}},
		{"up left", canvas.Vector{DX: -1, DY: -1}},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseDirection(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestInPlaceEdits(t *testing.T) {
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st})
	a := addAt(t, e, "a", 100, 100)
	b := addAt(t, e, "b", 400, 100)

	if err := e.BringToFront(a.ID); err != nil {
		t.Fatal(err)
	}
	if a.ZIndex <= b.ZIndex {
		t.Errorf("z = %d, %d after BringToFront", a.ZIndex, b.ZIndex)
	}
	if err := e.Resize(a.ID, canvas.Size{Width: 300, Height: 200}); err != nil {
		t.Fatal(err)
	}
	if err := e.Resize(a.ID, canvas.Size{Width: -1, Height: 200}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Resize(negative) error = %v", err)
	}
	if err := e.SetScale(a.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMetadata(a.ID, "color", "red"); err != nil {
		t.Fatal(err)
	}
	if pinned, err := e.TogglePin(a.ID); err != nil || !pinned {
		t.Fatalf("TogglePin = %v, %v", pinned, err)
	}
	if err := e.Resize("missing", canvas.DefaultBlockSize); !errors.Is(err, errors.ErrCodeBlockNotFound) {
		t.Errorf("Resize(missing) error = %v", err)
	}
	flush(t, e)

	rec, _ := st.Get(a.ID)
	if rec.Width != 300 || rec.Scale != 2 || rec.Metadata["color"] != "red" || !rec.Pinned || rec.ZIndex != a.ZIndex {
		t.Errorf("stored record = %+v", rec)
	}

	if err := e.SetMetadata(a.ID, "color", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Metadata["color"]; ok {
		t.Error("empty value did not delete the key")
	}
}

func TestDragPersistsOnEnd(t *testing.T) {
	st := newStubStore()
	e := newTestEngine(t, Options{Store: st})
	a := addAt(t, e, "a", 100, 100)
	flush(t, e)
	before := st.callCount()

	_ = e.BeginDrag(a.ID)
	_ = e.DragTo(a.ID, canvas.Point{X: 150, Y: 120})
	_ = e.DragTo(a.ID, canvas.Point{X: 180, Y: 140})
	flush(t, e)
	if st.callCount() != before {
		t.Error("drag moves were persisted before the drag ended")
	}
	_ = e.EndDrag(a.ID)
	flush(t, e)

	rec, _ := st.Get(a.ID)
	if rec.X != 180 || rec.Y != 140 || a.Dragging || a.DragStart != nil {
		t.Errorf("after drag: stored (%v, %v), dragging %v", rec.X, rec.Y, a.Dragging)
	}
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	e := newTestEngine(t, Options{})
	a := addAt(t, e, "a", 100, 100)
	b := addAt(t, e, "b", 400, 100)
	_ = e.BringToFront(a.ID)

	snap := e.Snapshot()
	if snap[0].ID != b.ID || snap[1].ID != a.ID {
		t.Errorf("snapshot order = %s, %s", snap[0].Title, snap[1].Title)
	}
	snap[0].Position.X = -1
	if b.Position.X == -1 {
		t.Error("snapshot shares blocks with the engine")
	}
}

func TestAddBlockValidation(t *testing.T) {
	e := newTestEngine(t, Options{})
	a := addAt(t, e, "a", 100, 100)
	if err := e.AddBlock(a, false); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate AddBlock error = %v", err)
	}
	bad := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), "nan")
	bad.Position.X = math.NaN()
	if err := e.AddBlock(bad, false); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("NaN AddBlock error = %v", err)
	}
}

func TestObserveAndBatch(t *testing.T) {
	e := newTestEngine(t, Options{})
	var got []Diff
	cancel := e.Observe(func(d Diff) { got = append(got, d) })

	addAt(t, e, "single", 100, 100)
	d := e.Batch(func(e *Engine) {
		x := addAt(t, e, "x", 300, 100)
		addAt(t, e, "y", 500, 100)
		e.RemoveBlock(x.ID)
	})
	if len(got) != 2 {
		t.Fatalf("observer called %d times, want 2", len(got))
	}
	if len(d.Added) != 1 || len(d.Removed) != 0 {
		t.Errorf("batch diff = %+v, want only y added", d)
	}

	e.Batch(func(*Engine) {})
	cancel()
	addAt(t, e, "after", 700, 100)
	if len(got) != 2 {
		t.Errorf("observer called %d times, want 2 after cancel and empty batch", len(got))
	}
}

func TestRecorderFolding(t *testing.T) {
	tests := []struct {
		name    string
		changes []change
		want    Diff
	}{
		{"added then updated", []change{changeAdded, changeUpdated}, Diff{Added: []string{"a"}}},
		{"added then removed", []change{changeAdded, changeRemoved}, Diff{}},
		{"removed then added", []change{changeRemoved, changeAdded}, Diff{Updated: []string{"a"}}},
		{"updated then removed", []change{changeUpdated, changeRemoved}, Diff{Removed: []string{"a"}}},
		{"added removed added", []change{changeAdded, changeRemoved, changeAdded}, Diff{Added: []string{"a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecorder()
			for _, c := range tt.changes {
				r.record("a", c)
			}
			got := r.diff()
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("diff = %+v, want %+v", got, tt.want)
			}
		})
	}
}
