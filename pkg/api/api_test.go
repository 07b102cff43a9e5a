package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/httputil"
)

type fixture struct {
	srv     *httptest.Server
	tracker *connections.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard)

	repo := entity.NewMemory(
		entity.Entity{Ref: canvas.EntityRef{Kind: canvas.KindIdea, UUID: "u-a"}, Title: "Alpha idea"},
		entity.Entity{Ref: canvas.EntityRef{Kind: canvas.KindIdea, UUID: "u-b"}, Title: "Beta idea"},
	)
	if err := repo.Link(ctx, canvas.Edge{Source: "u-a", Target: "u-b", Kind: "relates", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	eng, err := engine.New(ctx, canvas.Scope{DocumentType: "project", DocumentID: "1"}, engine.Options{Entities: repo, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	loop := engine.NewLoop(eng, 0)
	go func() { _ = loop.Run(ctx) }()

	tracker := connections.NewTracker(ctx, repo, connections.TrackerOptions{Logger: logger})
	s, err := New(ctx, Options{
		Loop:      loop,
		Tracker:   tracker,
		Expansion: expansion.New(expansion.Options{}),
		Logger:    logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		srv.Close()
		_ = s.Close(context.Background())
		tracker.Close()
		cancel()
		<-loop.Done()
	})
	return &fixture{srv: srv, tracker: tracker}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) place(t *testing.T) []BlockView {
	t.Helper()
	var placed struct {
		Blocks []BlockView `json:"blocks"`
	}
	req := engine.PlaceRequest{Query: "idea", Kind: canvas.KindIdea, Quantity: 2, Layout: "row"}
	if code := f.do(t, http.MethodPost, "/place", req, &placed); code != http.StatusCreated {
		t.Fatalf("POST /place = %d", code)
	}
	if len(placed.Blocks) != 2 {
		t.Fatalf("placed %d blocks, want 2", len(placed.Blocks))
	}
	return placed.Blocks
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	if code := f.do(t, http.MethodGet, "/healthz", nil, &body); code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", code)
	}
	if body["status"] != "ok" || body["version"] == "" {
		t.Errorf("health = %v", body)
	}
}

func TestPlaceAndConnections(t *testing.T) {
	f := newFixture(t)
	placed := f.place(t)
	for _, b := range placed {
		if !b.IsLinked() {
			t.Errorf("block %q not linked to a seeded entity", b.Title)
		}
	}

	f.tracker.Wait()
	var conns ConnectionsResponse
	if code := f.do(t, http.MethodGet, "/connections", nil, &conns); code != http.StatusOK {
		t.Fatalf("GET /connections = %d", code)
	}
	if conns.Visible != 2 || len(conns.Lines) != 1 {
		t.Fatalf("connections = %+v, want one line between two visible entities", conns)
	}
	if l := conns.Lines[0]; l.Kind != "relates" || l.SourceBlock == l.TargetBlock {
		t.Errorf("line = %+v", l)
	}
}

func TestListBlocksSortedByDrawnZ(t *testing.T) {
	f := newFixture(t)
	f.place(t)

	var before BlocksResponse
	f.do(t, http.MethodGet, "/blocks", nil, &before)
	bottom := before.Blocks[0].ID
	if code := f.do(t, http.MethodPost, "/expand/"+bottom, nil, nil); code != http.StatusOK {
		t.Fatalf("POST /expand = %d", code)
	}

	var after BlocksResponse
	f.do(t, http.MethodGet, "/blocks", nil, &after)
	for i := 1; i < len(after.Blocks); i++ {
		if after.Blocks[i-1].ZIndex > after.Blocks[i].ZIndex {
			t.Fatalf("blocks out of z order at %d: %d > %d", i, after.Blocks[i-1].ZIndex, after.Blocks[i].ZIndex)
		}
	}
	if last := after.Blocks[len(after.Blocks)-1]; last.ID != bottom || !last.Expanded {
		t.Errorf("top block = %s, want expanded %s", last.ID, bottom)
	}
}

func TestExpansion(t *testing.T) {
	f := newFixture(t)
	placed := f.place(t)
	a, b := placed[0].ID, placed[1].ID

	var state ExpansionResponse
	if code := f.do(t, http.MethodPost, "/expand/"+a, nil, &state); code != http.StatusOK {
		t.Fatalf("POST /expand = %d", code)
	}
	if state.Expanded != a {
		t.Fatalf("expanded = %q, want %q", state.Expanded, a)
	}

	var list BlocksResponse
	f.do(t, http.MethodGet, "/blocks", nil, &list)
	if list.Expanded != a {
		t.Errorf("list expanded = %q", list.Expanded)
	}
	for _, v := range list.Blocks {
		switch v.ID {
		case a:
			if !v.Expanded || v.Dimmed {
				t.Errorf("expanded block view = %+v", v)
			}
		case b:
			if !v.Dimmed || v.Opacity != expansion.DefaultDimOpacity {
				t.Errorf("other block: dimmed %v opacity %v", v.Dimmed, v.Opacity)
			}
		}
	}

	resp, err := http.Get(f.srv.URL + "/export.dot")
	if err != nil {
		t.Fatal(err)
	}
	dot, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(dot), "penwidth=3") {
		t.Errorf("export does not highlight the expanded block:\n%s", dot)
	}

	// Deleting the expanded block clears the expansion.
	if code := f.do(t, http.MethodDelete, "/blocks/"+a, nil, nil); code != http.StatusNoContent {
		t.Fatalf("DELETE /blocks/%s = %d", a, code)
	}
	list = BlocksResponse{}
	f.do(t, http.MethodGet, "/blocks", nil, &list)
	if list.Expanded != "" || len(list.Blocks) != 1 {
		t.Errorf("after delete: expanded %q, %d blocks", list.Expanded, len(list.Blocks))
	}

	if code := f.do(t, http.MethodPost, "/collapse", nil, &state); code != http.StatusOK || state.Expanded != "" {
		t.Errorf("POST /collapse = %d, %+v", code, state)
	}
}

func TestCreateResolveMoveClear(t *testing.T) {
	f := newFixture(t)

	var p canvas.Point
	if code := f.do(t, http.MethodPost, "/resolve", ResolveRequest{Token: "center"}, &p); code != http.StatusOK {
		t.Fatalf("POST /resolve = %d", code)
	}
	if p != (canvas.Point{X: 500, Y: 400}) {
		t.Errorf("center = %+v", p)
	}

	var created BlockView
	req := engine.CreateRequest{Kind: canvas.KindNote, Title: "scratch", Token: "center"}
	if code := f.do(t, http.MethodPost, "/blocks", req, &created); code != http.StatusCreated {
		t.Fatalf("POST /blocks = %d", code)
	}
	if created.Position != p || created.Title != "scratch" {
		t.Errorf("created = %+v", created.Block)
	}

	var moved engine.Diff
	if code := f.do(t, http.MethodPost, "/move", MoveRequest{Direction: "right", IDs: []string{created.ID}}, &moved); code != http.StatusOK {
		t.Fatalf("POST /move = %d", code)
	}
	if len(moved.Updated) != 1 || moved.Updated[0] != created.ID {
		t.Errorf("move diff = %+v", moved)
	}

	var front BlockView
	if code := f.do(t, http.MethodPost, "/blocks/"+created.ID+"/front", nil, &front); code != http.StatusOK {
		t.Fatalf("POST front = %d", code)
	}

	var positioned BlockView
	if code := f.do(t, http.MethodPut, "/blocks/"+created.ID+"/position", PositionRequest{X: 10, Y: 20}, &positioned); code != http.StatusOK {
		t.Fatalf("PUT position = %d", code)
	}
	if positioned.Position != (canvas.Point{X: 10, Y: 20}) {
		t.Errorf("position = %+v", positioned.Position)
	}

	var cleared engine.Diff
	if code := f.do(t, http.MethodDelete, "/blocks", nil, &cleared); code != http.StatusOK {
		t.Fatalf("DELETE /blocks = %d", code)
	}
	if len(cleared.Removed) != 1 {
		t.Errorf("clear diff = %+v", cleared)
	}
}

func TestArrange(t *testing.T) {
	f := newFixture(t)
	f.place(t)
	var d engine.Diff
	if code := f.do(t, http.MethodPost, "/arrange", ArrangeRequest{Layout: "grid"}, &d); code != http.StatusOK {
		t.Fatalf("POST /arrange = %d", code)
	}
	if len(d.Updated) != 2 {
		t.Errorf("arrange diff = %+v", d)
	}
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   errors.Code
	}{
		{"quantity", http.MethodPost, "/place", engine.PlaceRequest{Kind: canvas.KindIdea}, 400, errors.ErrCodeInvalidInput},
		{"layout", http.MethodPost, "/arrange", ArrangeRequest{Layout: "spiral"}, 400, errors.ErrCodeInvalidLayout},
		{"direction", http.MethodPost, "/move", MoveRequest{Direction: "sideways"}, 400, errors.ErrCodeInvalidInput},
		{"unknown field", http.MethodPost, "/blocks", map[string]string{"colour": "red"}, 400, errors.ErrCodeInvalidInput},
		{"missing kind", http.MethodPost, "/blocks", engine.CreateRequest{Title: "x"}, 400, errors.ErrCodeInvalidInput},
		{"delete unknown", http.MethodDelete, "/blocks/nope", nil, 404, errors.ErrCodeBlockNotFound},
		{"position unknown", http.MethodPut, "/blocks/nope/position", PositionRequest{}, 404, errors.ErrCodeBlockNotFound},
		{"expand unknown", http.MethodPost, "/expand/nope", nil, 404, errors.ErrCodeBlockNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body httputil.ErrorBody
			if code := f.do(t, tt.method, tt.path, tt.body, &body); code != tt.status {
				t.Fatalf("status = %d, want %d", code, tt.status)
			}
			if body.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Error.Code, tt.code)
			}
		})
	}
}
