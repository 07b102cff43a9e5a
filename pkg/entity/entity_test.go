package entity

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	meili "github.com/meilisearch/meilisearch-go"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

type repo interface {
	Repository
	Linker
	EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error)
	WatchEdges(fn func([]string)) func()
}

func runRepositoryContract(t *testing.T, r repo) {
	t.Helper()
	ctx := context.Background()

	var created []Entity
	for _, c := range []struct {
		kind  canvas.EntityKind
		title string
		body  string
	}{
		{canvas.KindNote, "Foo research", "first"},
		{canvas.KindNote, "Bar notes", "mentions foo"},
		{canvas.KindTask, "Foo task", ""},
		{canvas.KindNote, "100% done_now", ""},
	} {
		e, err := r.Create(ctx, c.kind, c.title, c.body)
		if err != nil {
			t.Fatalf("Create(%q): %v", c.title, err)
		}
		if e.Ref.ID <= 0 || e.Ref.UUID == "" || e.Ref.Kind != c.kind {
			t.Fatalf("Create(%q) = %+v", c.title, e.Ref)
		}
		created = append(created, e)
	}

	t.Run("search", func(t *testing.T) {
		tests := []struct {
			name  string
			query string
			kind  canvas.EntityKind
			limit int
			want  []string
		}{
			{"title and body", "foo", canvas.KindNote, 0, []string{"Foo research", "Bar notes"}},
			{"any kind", "FOO", "", 0, []string{"Foo research", "Bar notes", "Foo task"}},
			{"limit", "foo", "", 1, []string{"Foo research"}},
			{"empty query", "", canvas.KindTask, 0, []string{"Foo task"}},
			{"no match", "zzz", "", 0, nil},
			{"literal percent", "100%", "", 0, []string{"100% done_now"}},
			{"literal underscore", "e_n", "", 0, []string{"100% done_now"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := r.Search(ctx, tt.query, tt.kind, tt.limit)
				if err != nil {
					t.Fatalf("Search: %v", err)
				}
				if len(got) != len(tt.want) {
					t.Fatalf("Search(%q) = %d results, want %d", tt.query, len(got), len(tt.want))
				}
				for i := range got {
					if got[i].Title != tt.want[i] {
						t.Errorf("result %d = %q, want %q", i, got[i].Title, tt.want[i])
					}
				}
			})
		}
	})

	t.Run("fetch", func(t *testing.T) {
		want := created[2]
		for _, key := range []string{want.Ref.UUID, strconv.FormatInt(want.Ref.ID, 10)} {
			got, err := r.Fetch(ctx, key)
			if err != nil {
				t.Fatalf("Fetch(%q): %v", key, err)
			}
			if got.Ref != want.Ref || got.Title != want.Title {
				t.Errorf("Fetch(%q) = %+v, want %+v", key, got, want)
			}
		}
		if _, err := r.Fetch(ctx, "nope"); !errors.Is(err, errors.ErrCodeEntityNotFound) {
			t.Errorf("Fetch(nope) error = %v, want ENTITY_NOT_FOUND", err)
		}
	})

	t.Run("links", func(t *testing.T) {
		a, b, c := created[0].Ref.UUID, created[1].Ref.UUID, created[2].Ref.UUID
		notified := make(chan []string, 8)
		stop := r.WatchEdges(func(u []string) { notified <- u })
		defer stop()

		if err := r.Link(ctx, canvas.Edge{Source: a, Target: b, Kind: "related", Weight: 1}); err != nil {
			t.Fatal(err)
		}
		if err := r.Link(ctx, canvas.Edge{Source: a, Target: b, Kind: "related", Weight: 3}); err != nil {
			t.Fatal(err)
		}
		if err := r.Link(ctx, canvas.Edge{Source: b, Target: c, Kind: "blocks", Weight: 1}); err != nil {
			t.Fatal(err)
		}
		select {
		case <-notified:
		case <-time.After(time.Second):
			t.Fatal("no edge notification")
		}

		edges, err := r.EdgesForNodes(ctx, []string{a})
		if err != nil {
			t.Fatal(err)
		}
		if len(edges) != 1 || edges[0].Weight != 3 {
			t.Fatalf("EdgesForNodes(a) = %+v, want one edge of weight 3", edges)
		}
		edges, _ = r.EdgesForNodes(ctx, []string{b})
		if len(edges) != 2 {
			t.Fatalf("EdgesForNodes(b) = %d edges, want 2", len(edges))
		}

		if err := r.Unlink(ctx, canvas.Edge{Source: b, Target: a, Kind: "related"}); err != nil {
			t.Fatal(err)
		}
		edges, _ = r.EdgesForNodes(ctx, []string{a})
		if len(edges) != 0 {
			t.Errorf("after unlink EdgesForNodes(a) = %+v", edges)
		}
		if edges, _ := r.EdgesForNodes(ctx, nil); len(edges) != 0 {
			t.Errorf("EdgesForNodes(nil) = %+v", edges)
		}
	})
}

func TestMemory(t *testing.T) {
	runRepositoryContract(t, NewMemory())
}

func TestMemorySeed(t *testing.T) {
	m := NewMemory(
		Entity{Ref: canvas.EntityRef{Kind: canvas.KindIdea, ID: 10}, Title: "seeded"},
		Entity{Ref: canvas.EntityRef{Kind: canvas.KindIdea}, Title: "next"},
	)
	got, err := m.Search(context.Background(), "", canvas.KindIdea, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Ref.ID != 10 || got[1].Ref.ID != 11 {
		t.Errorf("seeded ids = %+v", got)
	}
}

func TestSQLite(t *testing.T) {
	db, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r, err := NewSQL(context.Background(), db, store.DialectSQLite)
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	runRepositoryContract(t, r)

	// Running the schema again is a no-op.
	if _, err := NewSQL(context.Background(), db, store.DialectSQLite); err != nil {
		t.Fatalf("second NewSQL: %v", err)
	}
}

func TestIndexedFallsBackWhenUnavailable(t *testing.T) {
	inner := NewMemory(Entity{Ref: canvas.EntityRef{Kind: canvas.KindNote}, Title: "foo"})
	x := NewIndexed(inner, "http://127.0.0.1:1", "", time.Hour, log.New(io.Discard))
	defer x.Close()

	if x.Healthy() {
		t.Fatal("Healthy() = true for unreachable server")
	}
	got, err := x.Search(context.Background(), "foo", "", 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("Search = %+v, %v", got, err)
	}
	e, err := x.Create(context.Background(), canvas.KindTask, "bar", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := x.Fetch(context.Background(), e.Ref.UUID); err != nil {
		t.Errorf("Fetch through decorator: %v", err)
	}
}

func TestHitToEntity(t *testing.T) {
	e := hitToEntity(meili.Hit{
		"uuid":       json.RawMessage(`"u-1"`),
		"id":         json.RawMessage(`42`),
		"kind":       json.RawMessage(`"note"`),
		"title":      json.RawMessage(`"Foo"`),
		"created_at": json.RawMessage(`1000`),
	})
	if e.Ref.UUID != "u-1" || e.Ref.ID != 42 || e.Ref.Kind != canvas.KindNote || e.Title != "Foo" {
		t.Errorf("hitToEntity = %+v", e)
	}
	if e.CreatedAt.UnixNano() != 1000 {
		t.Errorf("CreatedAt = %v", e.CreatedAt)
	}
}

func TestParseKey(t *testing.T) {
	if id, _, ok := parseKey(" 12 "); !ok || id != 12 {
		t.Errorf("parseKey(12) = %d, %v", id, ok)
	}
	if _, u, ok := parseKey("abc-def"); ok || u != "abc-def" {
		t.Errorf("parseKey(uuid) = %q, %v", u, ok)
	}
}

type countingRepo struct {
	*Memory
	searches int
}

func (r *countingRepo) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	r.searches++
	return r.Memory.Search(ctx, query, kind, limit)
}

func TestCachedSearch(t *testing.T) {
	ctx := context.Background()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	inner := &countingRepo{Memory: NewMemory()}
	c := NewCached(inner, fc, nil, time.Minute)

	if _, err := c.Create(ctx, canvas.KindNote, "foo one", ""); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		found, err := c.Search(ctx, "FOO", canvas.KindNote, 5)
		if err != nil || len(found) != 1 {
			t.Fatalf("Search = %v, %v", found, err)
		}
	}
	if inner.searches != 1 {
		t.Errorf("inner searched %d times, want 1", inner.searches)
	}

	if _, err := c.Create(ctx, canvas.KindNote, "foo two", ""); err != nil {
		t.Fatal(err)
	}
	found, _ := c.Search(ctx, "foo", canvas.KindNote, 5)
	if len(found) != 2 || inner.searches != 2 {
		t.Errorf("after Create: %d results, %d inner searches", len(found), inner.searches)
	}
}

// heldRepo blocks searches until open is closed.
type heldRepo struct {
	*Memory
	started chan struct{}
	open    chan struct{}
}

func (r *heldRepo) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	r.started <- struct{}{}
	select {
	case <-r.open:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.Memory.Search(ctx, query, kind, limit)
}

func TestCachedSearchOutlivesFirstCaller(t *testing.T) {
	inner := &heldRepo{Memory: NewMemory(), started: make(chan struct{}, 4), open: make(chan struct{})}
	if _, err := inner.Create(context.Background(), canvas.KindNote, "foo one", ""); err != nil {
		t.Fatal(err)
	}
	c := NewCached(inner, cache.NewNullCache(), nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Search(ctx, "foo", canvas.KindNote, 5)
		errc <- err
	}()
	<-inner.started

	found := make(chan []Entity, 1)
	go func() {
		res, _ := c.Search(context.Background(), "foo", canvas.KindNote, 5)
		found <- res
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-errc; err != context.Canceled {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}
	close(inner.open)
	if res := <-found; len(res) != 1 {
		t.Errorf("joined caller got %d results, want 1", len(res))
	}
}
