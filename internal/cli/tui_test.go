package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

func newWatchFixture(t *testing.T, titles ...string) (*WatchModel, *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	e, err := engine.New(ctx, canvas.Scope{DocumentType: "board", DocumentID: "9"}, engine.Options{Logger: log.New(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	tokens := []string{"center", "top_left", "bottom_right"}
	for i, title := range titles {
		if _, err := e.CreateBlock(engine.CreateRequest{Kind: "note", Title: title, Token: tokens[i%len(tokens)]}); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	m := NewWatchModel(e, nil, expansion.New(expansion.Options{}), nil)
	t.Cleanup(func() {
		m.Close()
		_ = e.Close(ctx)
	})
	return m, e
}

func press(m *WatchModel, key string) tea.Cmd {
	var msg tea.KeyMsg
	switch key {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

// settleFrames feeds frame messages at 60fps until nothing moves.
func settleFrames(t *testing.T, m *WatchModel, e *engine.Engine) {
	t.Helper()
	now := time.Now()
	m.last = now
	for i := 0; i < 400 && e.Animating(); i++ {
		now = now.Add(frameRate)
		m.Update(frameMsg(now))
	}
	if e.Animating() {
		t.Fatal("blocks still animating after 400 frames")
	}
}

func TestWatchModelSelectsFirstBlock(t *testing.T) {
	m, e := newWatchFixture(t, "Alpha", "Beta")
	sel, ok := e.Selected()
	if !ok || sel.ID != e.Blocks()[0].ID {
		t.Fatalf("selected %v, want first block", sel)
	}

	press(m, "tab")
	if sel, _ := e.Selected(); sel.ID != e.Blocks()[1].ID {
		t.Errorf("tab selected %s, want second block", sel.ID)
	}
	press(m, "tab")
	if sel, _ := e.Selected(); sel.ID != e.Blocks()[0].ID {
		t.Errorf("tab did not wrap to the first block")
	}
}

func TestWatchModelMoveAnimates(t *testing.T) {
	m, e := newWatchFixture(t, "Alpha", "Beta")
	sel, _ := e.Selected()
	start := sel.Position
	other := e.Blocks()[1].Position

	press(m, "right")
	if !sel.Animating() {
		t.Fatal("move did not start an animation")
	}
	settleFrames(t, m, e)

	want := start.X + engine.DefaultMoveDistance
	if sel.Position.X != want || sel.Position.Y != start.Y {
		t.Errorf("moved to %v, want x=%.0f", sel.Position, want)
	}
	if e.Blocks()[1].Position != other {
		t.Error("unselected block moved")
	}
}

func TestWatchModelKeys(t *testing.T) {
	m, e := newWatchFixture(t, "Alpha", "Beta", "Gamma")
	sel, _ := e.Selected()

	press(m, "p")
	if !sel.Pinned || !strings.Contains(m.status, "pinned Alpha") {
		t.Errorf("p: pinned=%v status=%q", sel.Pinned, m.status)
	}

	press(m, "enter")
	if !m.expand.IsExpanded(sel.ID) {
		t.Error("enter did not expand the selected block")
	}

	press(m, "a")
	if m.status != "arranged grid" {
		t.Errorf("a: status %q, want arranged grid", m.status)
	}

	press(m, "x")
	if _, ok := e.Block(sel.ID); ok {
		t.Fatal("x did not remove the selected block")
	}
	if m.expand.IsExpanded(sel.ID) {
		t.Error("removed block is still expanded")
	}
	if next, ok := e.Selected(); !ok || next.ID != e.Blocks()[0].ID {
		t.Error("selection did not move to the first remaining block")
	}

	if cmd := press(m, "q"); cmd == nil {
		t.Fatal("q returned no command")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
	if m.View() != "" {
		t.Error("view after quit should be empty")
	}
}

func TestWatchModelAppliesRemoteChanges(t *testing.T) {
	m, e := newWatchFixture(t, "Alpha", "Beta")
	gone := e.Blocks()[1].ID

	m.Update(feedMsg(store.ChangeEvent{Kind: store.ChangeDelete, ID: gone}))
	if _, ok := e.Block(gone); ok {
		t.Error("remote delete was not applied")
	}

	m.feed = make(chan store.ChangeEvent)
	m.Update(feedClosedMsg{})
	if m.feed != nil || m.status != "change feed closed" {
		t.Errorf("closed feed: feed=%v status=%q", m.feed, m.status)
	}
}

func TestWatchModelView(t *testing.T) {
	m, _ := newWatchFixture(t, "Alpha")
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	if m.mapW != 76 || m.mapH != 16 {
		t.Errorf("map size %dx%d, want 76x16", m.mapW, m.mapH)
	}

	view := m.View()
	for _, want := range []string{"board/9", "Alpha", "A"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
