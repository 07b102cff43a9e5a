package cli

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// Map styles
var (
	mapBorderStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim)
	mapBlockStyle    = lipgloss.NewStyle().Foreground(colorWhite)
	mapSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	mapExpandedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	mapDimmedStyle   = lipgloss.NewStyle().Foreground(colorDim)
	mapLineStyle     = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	defaultMapWidth  = 64
	defaultMapHeight = 20
)

// =============================================================================
// Messages
// =============================================================================

type frameMsg time.Time

type feedMsg store.ChangeEvent

type feedClosedMsg struct{}

func frame() tea.Cmd {
	return tea.Tick(frameRate, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func waitFeed(feed <-chan store.ChangeEvent) tea.Cmd {
	if feed == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return feedMsg(ev)
	}
}

// =============================================================================
// WatchModel - Live canvas view
// =============================================================================

// WatchModel is the bubbletea model of the watch command. It owns the
// engine: every mutation, tick and remote change runs in Update.
type WatchModel struct {
	engine  *engine.Engine
	tracker *connections.Tracker
	expand  *expansion.Coordinator
	feed    <-chan store.ChangeEvent

	style   int
	status  string
	mapW    int
	mapH    int
	last    time.Time
	detach  func()
	stopped bool
}

// NewWatchModel creates the model. tracker and feed may be nil.
func NewWatchModel(e *engine.Engine, tracker *connections.Tracker, expand *expansion.Coordinator, feed <-chan store.ChangeEvent) *WatchModel {
	m := &WatchModel{
		engine:  e,
		tracker: tracker,
		expand:  expand,
		feed:    feed,
		mapW:    defaultMapWidth,
		mapH:    defaultMapHeight,
	}
	if tracker != nil {
		tracker.Update(e.Blocks())
	}
	m.detach = e.Observe(func(d engine.Diff) {
		for _, id := range d.Removed {
			m.expand.Forget(id)
		}
		if m.tracker != nil && (len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Updated) > 0) {
			m.tracker.Update(e.Blocks())
		}
	})
	if len(e.Blocks()) > 0 {
		_ = e.Select(e.Blocks()[0].ID)
	}
	return m
}

// Close detaches the model from the engine.
func (m *WatchModel) Close() {
	if m.detach != nil {
		m.detach()
		m.detach = nil
	}
}

func (m *WatchModel) Init() tea.Cmd {
	m.last = time.Now()
	return tea.Batch(frame(), waitFeed(m.feed))
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		now := time.Time(msg)
		dt := now.Sub(m.last).Seconds()
		m.last = now
		m.engine.Tick(min(dt, 0.25))
		return m, frame()
	case feedMsg:
		d := m.engine.ApplyChange(store.ChangeEvent(msg))
		if len(d.Conflicts) > 0 {
			m.status = fmt.Sprintf("kept %d local changes over remote edits", len(d.Conflicts))
		}
		return m, waitFeed(m.feed)
	case feedClosedMsg:
		m.feed = nil
		m.status = "change feed closed"
		return m, nil
	case tea.WindowSizeMsg:
		m.mapW = max(msg.Width-4, 20)
		m.mapH = max(msg.Height/2-4, 8)
		return m, nil
	case tea.KeyMsg:
		return m, m.key(msg.String())
	}
	return m, nil
}

// key applies one keypress. Movement keys move the selected block, or all
// unpinned blocks when nothing is selected.
func (m *WatchModel) key(k string) tea.Cmd {
	sel, hasSel := m.engine.Selected()
	var ids []string
	if hasSel {
		ids = []string{sel.ID}
	}
	var err error

	switch k {
	case "q", "ctrl+c", "esc":
		m.stopped = true
		return tea.Quit
	case "up", "k", "down", "j", "left", "h", "right", "l":
		_, err = m.engine.Move(directionKeys[k], 0, ids...)
	case "tab":
		m.selectNext(1)
	case "shift+tab":
		m.selectNext(-1)
	case "a":
		m.style = (m.style + 1) % len(position.Styles)
		style := position.Styles[m.style]
		if _, err = m.engine.Arrange(style, canvas.Size{}); err == nil {
			m.status = "arranged " + string(style)
		}
	case "enter", " ":
		if hasSel {
			m.expand.Toggle(sel.ID)
		}
	case "f":
		if hasSel {
			err = m.engine.BringToFront(sel.ID)
		}
	case "p":
		if hasSel {
			var pinned bool
			if pinned, err = m.engine.TogglePin(sel.ID); err == nil {
				m.status = map[bool]string{true: "pinned ", false: "unpinned "}[pinned] + sel.DisplayTitle()
			}
		}
	case "x", "delete":
		if hasSel {
			m.engine.RemoveBlock(sel.ID)
			m.selectNext(0)
			m.status = "removed " + sel.DisplayTitle()
		}
	}
	if err != nil {
		m.status = err.Error()
	}
	return nil
}

var directionKeys = map[string]string{
	"up": "up", "k": "up",
	"down": "down", "j": "down",
	"left": "left", "h": "left",
	"right": "right", "l": "right",
}

// selectNext moves the selection by step in block order. A step of 0
// selects the first block.
func (m *WatchModel) selectNext(step int) {
	blocks := m.engine.Blocks()
	if len(blocks) == 0 {
		return
	}
	i := 0
	if sel, ok := m.engine.Selected(); ok && step != 0 {
		i = slices.IndexFunc(blocks, func(b *canvas.Block) bool { return b.ID == sel.ID })
		i = (i + step + len(blocks)) % len(blocks)
	}
	_ = m.engine.Select(blocks[i].ID)
}

func (m *WatchModel) View() string {
	if m.stopped {
		return ""
	}
	var b strings.Builder
	blocks := m.engine.Blocks()

	b.WriteString(StyleTitle.Render("Canvas " + m.engine.Scope().Key()))
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("←↑↓→ move  tab select  ⏎ expand  a arrange  f front  p pin  x delete  q quit"))
	b.WriteString("\n")
	b.WriteString(mapBorderStyle.Render(m.canvasMap(blocks)))
	b.WriteString("\n")

	selected := ""
	if sel, ok := m.engine.Selected(); ok {
		selected = sel.ID
	}
	if len(blocks) > 0 {
		b.WriteString(blockTable(blocks, selected))
		b.WriteString("\n")
	}

	lines := 0
	if m.tracker != nil {
		lines = len(m.tracker.Lines(blocks))
	}
	status := statsLine(blocks, lines)
	if m.engine.Animating() {
		status += StyleDim.Render(" · moving")
	}
	if st := m.engine.WriteStats(); st.Pending > 0 {
		status += StyleDim.Render(fmt.Sprintf(" · %d writes pending", st.Pending))
	}
	b.WriteString(status)
	if m.status != "" {
		b.WriteString("\n  " + StyleHighlight.Render(m.status))
	}
	return b.String()
}

// canvasMap draws blocks as their initial letter and connections as dots
// on a character grid scaled to the canvas size.
func (m *WatchModel) canvasMap(blocks []*canvas.Block) string {
	size := m.engine.CanvasSize()
	grid := make([][]string, m.mapH)
	for y := range grid {
		grid[y] = slices.Repeat([]string{" "}, m.mapW)
	}
	cell := func(p canvas.Point) (int, int, bool) {
		x := int(math.Floor(p.X / size.Width * float64(m.mapW)))
		y := int(math.Floor(p.Y / size.Height * float64(m.mapH)))
		return x, y, x >= 0 && x < m.mapW && y >= 0 && y < m.mapH
	}

	if m.tracker != nil {
		for _, l := range m.tracker.Lines(blocks) {
			steps := int(l.From.Distance(l.To)/size.Width*float64(m.mapW)) + 1
			for i := 1; i < steps; i++ {
				t := float64(i) / float64(steps)
				p := canvas.Point{X: l.From.X + (l.To.X-l.From.X)*t, Y: l.From.Y + (l.To.Y-l.From.Y)*t}
				if x, y, ok := cell(p); ok {
					grid[y][x] = mapLineStyle.Render("·")
				}
			}
		}
	}

	sel, _ := m.engine.Selected()
	ordered := slices.Clone(blocks)
	slices.SortStableFunc(ordered, func(a, b *canvas.Block) int {
		return m.expand.ZIndex(a.ID, a.ZIndex) - m.expand.ZIndex(b.ID, b.ZIndex)
	})
	for _, blk := range ordered {
		x, y, ok := cell(blk.Position)
		if !ok {
			continue
		}
		glyph := "■"
		if t := []rune(blk.DisplayTitle()); len(t) > 0 {
			glyph = strings.ToUpper(string(t[0]))
		}
		style := mapBlockStyle
		switch {
		case m.expand.IsExpanded(blk.ID):
			style = mapExpandedStyle
		case sel != nil && blk.ID == sel.ID:
			style = mapSelectedStyle
		case m.expand.IsDimmed(blk.ID):
			style = mapDimmedStyle
		}
		grid[y][x] = style.Render(glyph)
	}

	rows := make([]string, m.mapH)
	for y, row := range grid {
		rows[y] = strings.Join(row, "")
	}
	return strings.Join(rows, "\n")
}
