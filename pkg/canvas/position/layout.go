package position

import (
	"math"
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Style names a multi-block layout strategy.
type Style string

// Supported layout styles.
const (
	StyleOrbital Style = "orbital"
	StyleGrid    Style = "grid"
	StyleRow     Style = "row"
	StyleColumn  Style = "column"
	StyleCascade Style = "cascade"
)

// Styles lists every supported style in display order.
var Styles = []Style{StyleOrbital, StyleGrid, StyleRow, StyleColumn, StyleCascade}

// ParseStyle validates a style name. Matching is case-insensitive and the
// empty string selects orbital.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "orbital", "orbit", "circle", "radial":
		return StyleOrbital, nil
	case "grid":
		return StyleGrid, nil
	case "row", "horizontal":
		return StyleRow, nil
	case "column", "vertical":
		return StyleColumn, nil
	case "cascade", "stack":
		return StyleCascade, nil
	}
	return "", errors.New(errors.ErrCodeInvalidLayout, "unknown layout style %q", s)
}

// Orbital places count points evenly on a circle around center, starting at
// the top (angle -π/2) and proceeding clockwise in screen coordinates.
// A single point sits on center.
func Orbital(count int, center canvas.Point, radius float64) []canvas.Point {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []canvas.Point{center}
	}
	step := 2 * math.Pi / float64(count)
	points := make([]canvas.Point, count)
	for i := range points {
		angle := -math.Pi/2 + float64(i)*step
		points[i] = canvas.Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	return points
}

// Grid places count points row-major. Cell i sits in column i%columns and
// row i/columns; the returned points are cell centers.
func Grid(count int, topLeft canvas.Point, columns int, blockSize canvas.Size, spacing float64) []canvas.Point {
	if count <= 0 {
		return nil
	}
	if columns <= 0 {
		columns = 1
	}
	half := blockSize.Half()
	pitchX := blockSize.Width + spacing
	pitchY := blockSize.Height + spacing
	points := make([]canvas.Point, count)
	for i := range points {
		col, row := i%columns, i/columns
		points[i] = canvas.Point{
			X: topLeft.X + float64(col)*pitchX + half.Width,
			Y: topLeft.Y + float64(row)*pitchY + half.Height,
		}
	}
	return points
}

// Layout generates count positions for style centered on center.
//
// Orbital uses a radius large enough that neighbouring default-size blocks
// do not touch. Grid uses ceil(sqrt(count)) columns. Row and column are
// single-line grids; cascade offsets each block diagonally by the spacing.
func (r *Resolver) Layout(style Style, count int, center canvas.Point) []canvas.Point {
	if count <= 0 {
		return nil
	}
	bs := r.opts.BlockSize
	sp := r.opts.Spacing

	switch style {
	case StyleGrid:
		cols := int(math.Ceil(math.Sqrt(float64(count))))
		return Grid(count, gridOrigin(center, count, cols, bs, sp), cols, bs, sp)
	case StyleRow:
		return Grid(count, gridOrigin(center, count, count, bs, sp), count, bs, sp)
	case StyleColumn:
		return Grid(count, gridOrigin(center, count, 1, bs, sp), 1, bs, sp)
	case StyleCascade:
		points := make([]canvas.Point, count)
		offset := (float64(count) - 1) / 2
		for i := range points {
			d := (float64(i) - offset) * sp
			points[i] = canvas.Point{X: center.X + d, Y: center.Y + d}
		}
		return points
	default:
		return Orbital(count, center, r.orbitRadius(count))
	}
}

// orbitRadius grows the configured radius until the circumference holds
// count default-size blocks, measured by their diagonal, side by side.
func (r *Resolver) orbitRadius(count int) float64 {
	bs := r.opts.BlockSize
	pitch := math.Hypot(bs.Width, bs.Height) + r.opts.Spacing
	needed := float64(count) * pitch / (2 * math.Pi)
	return math.Max(r.opts.OrbitRadius, needed)
}

// gridOrigin returns the top-left corner that centers a grid on center.
func gridOrigin(center canvas.Point, count, cols int, bs canvas.Size, spacing float64) canvas.Point {
	if cols > count {
		cols = count
	}
	rows := (count + cols - 1) / cols
	w := float64(cols)*bs.Width + float64(cols-1)*spacing
	h := float64(rows)*bs.Height + float64(rows-1)*spacing
	return canvas.Point{X: center.X - w/2, Y: center.Y - h/2}
}
