// Package connections turns relationship edges into drawable line segments.
//
// [Render] is the pure part: it keeps edges whose endpoints are both on the
// canvas, collapses duplicates, drops edges that are too short or too long,
// caps the total and clips every line to the block outlines. [Tracker] is the
// asynchronous part: it re-queries an [EdgeSource] whenever the set of
// visible entities changes, cancelling the query it supersedes.
package connections

import (
	"math"
	"slices"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// Default rendering bounds.
const (
	DefaultMaxEdges  = 50
	DefaultMinLength = 20.0
	DefaultMaxLength = 2000.0
	DefaultPadding   = 8.0
	DefaultEpsilon   = 1e-3
)

// Options bounds what [Render] draws. Zero MaxEdges, MaxLength and Epsilon
// take their defaults; start from [DefaultOptions] to keep the others.
type Options struct {
	// MaxEdges caps the number of lines; later edges are dropped.
	MaxEdges int
	// MinLength and MaxLength bound the center-to-center distance.
	MinLength float64
	MaxLength float64
	// Padding moves each endpoint outward from the block outline.
	Padding float64
	// Epsilon decides when a line counts as axis-aligned (|cos| or |sin|).
	Epsilon float64
}

// DefaultOptions returns the standard rendering bounds.
func DefaultOptions() Options {
	return Options{
		MaxEdges:  DefaultMaxEdges,
		MinLength: DefaultMinLength,
		MaxLength: DefaultMaxLength,
		Padding:   DefaultPadding,
		Epsilon:   DefaultEpsilon,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxEdges <= 0 {
		o.MaxEdges = d.MaxEdges
	}
	if o.MaxLength <= 0 {
		o.MaxLength = d.MaxLength
	}
	if o.Epsilon <= 0 {
		o.Epsilon = d.Epsilon
	}
	return o
}

// Line is one rendered connection.
type Line struct {
	Key         string       `json:"key"`
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	SourceBlock string       `json:"source_block"`
	TargetBlock string       `json:"target_block"`
	Kind        string       `json:"kind"`
	Weight      float64      `json:"weight"`
	From        canvas.Point `json:"from"`
	To          canvas.Point `json:"to"`
}

// Render converts edges into lines between blocks.
//
// Edges are processed in input order. An edge is kept when both endpoint
// uuids belong to a linked block, its key (sorted endpoints plus kind) has not been
// seen, and the center distance lies within [MinLength, MaxLength]. At most
// MaxEdges lines are returned. When several blocks share an entity uuid the
// first one in blocks is used.
func Render(blocks []*canvas.Block, edges []canvas.Edge, opts Options) []Line {
	opts = opts.withDefaults()

	byUUID := make(map[string]*canvas.Block, len(blocks))
	for _, b := range blocks {
		if b.Entity.UUID == "" || !b.IsLinked() {
			continue
		}
		if _, ok := byUUID[b.Entity.UUID]; !ok {
			byUUID[b.Entity.UUID] = b
		}
	}

	seen := make(map[string]bool, len(edges))
	var lines []Line
	for _, e := range edges {
		if len(lines) >= opts.MaxEdges {
			break
		}
		src, ok1 := byUUID[e.Source]
		dst, ok2 := byUUID[e.Target]
		if !ok1 || !ok2 || src == dst {
			continue
		}
		key := e.Key()
		if seen[key] {
			continue
		}
		seen[key] = true

		d := src.Position.Distance(dst.Position)
		if d < opts.MinLength || d > opts.MaxLength {
			continue
		}

		from, to := Clip(src, dst, opts.Padding, opts.Epsilon)
		lines = append(lines, Line{
			Key:         key,
			Source:      e.Source,
			Target:      e.Target,
			SourceBlock: src.ID,
			TargetBlock: dst.ID,
			Kind:        e.Kind,
			Weight:      e.Weight,
			From:        from,
			To:          to,
		})
	}
	return lines
}

// Clip returns the endpoints of the center-to-center line between a and b,
// each moved out to its block's outline plus padding.
func Clip(a, b *canvas.Block, padding, epsilon float64) (from, to canvas.Point) {
	theta := math.Atan2(b.Position.Y-a.Position.Y, b.Position.X-a.Position.X)
	from = edgePoint(a, theta, padding, epsilon)
	to = edgePoint(b, theta+math.Pi, padding, epsilon)
	return from, to
}

// edgePoint walks from the block center along theta to the outline.
func edgePoint(b *canvas.Block, theta, padding, epsilon float64) canvas.Point {
	half := b.Footprint().Half()
	cos, sin := math.Cos(theta), math.Sin(theta)

	var dist float64
	switch {
	case math.Abs(cos) < epsilon:
		dist = half.Height
	case math.Abs(sin) < epsilon:
		dist = half.Width
	default:
		dist = math.Min(half.Width/math.Abs(cos), half.Height/math.Abs(sin))
	}
	dist += padding
	return canvas.Point{X: b.Position.X + dist*cos, Y: b.Position.Y + dist*sin}
}

// VisibleUUIDs returns the sorted, de-duplicated entity uuids of blocks.
// Unlinked blocks and blocks without a uuid are skipped.
func VisibleUUIDs(blocks []*canvas.Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Entity.UUID != "" && b.IsLinked() {
			out = append(out, b.Entity.UUID)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
