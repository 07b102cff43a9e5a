package position

import (
	"math"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// spiralAngleStep and spiralDistanceFactor shape the search spiral.
const (
	spiralAngleStep      = 0.5
	spiralDistanceFactor = 0.3
)

// Overlaps reports whether a default-size block centered on p would
// intersect any of blocks.
func (r *Resolver) Overlaps(p canvas.Point, blocks []*canvas.Block) bool {
	rect := canvas.RectAround(p, r.opts.BlockSize)
	for _, b := range blocks {
		if rect.Intersects(b.Bounds()) {
			return true
		}
	}
	return false
}

// FindNonOverlapping returns preferred when a default-size block fits there.
// Otherwise it walks a spiral of SearchSteps candidates (angle 0.5·i,
// distance SearchSpacing·i·0.3) and returns the first one that stays inside
// the canvas and clears every block. When none does it returns
// preferred + (FallbackOffset, FallbackOffset), which may still overlap.
func (r *Resolver) FindNonOverlapping(preferred canvas.Point, blocks []*canvas.Block, size canvas.Size) canvas.Point {
	if !r.Overlaps(preferred, blocks) {
		return preferred
	}

	bounds := canvas.Rect{MaxX: size.Width, MaxY: size.Height}
	for i := 1; i <= r.opts.SearchSteps; i++ {
		angle := float64(i) * spiralAngleStep
		dist := r.opts.SearchSpacing * float64(i) * spiralDistanceFactor
		candidate := canvas.Point{
			X: preferred.X + dist*math.Cos(angle),
			Y: preferred.Y + dist*math.Sin(angle),
		}
		if !canvas.RectAround(candidate, r.opts.BlockSize).Within(bounds) {
			continue
		}
		if !r.Overlaps(candidate, blocks) {
			return candidate
		}
	}

	off := r.opts.FallbackOffset
	return canvas.Point{X: preferred.X + off, Y: preferred.Y + off}
}

// PlaceAll resolves a batch of preferred positions one by one, treating
// each accepted position as occupied for the ones after it.
func (r *Resolver) PlaceAll(preferred []canvas.Point, blocks []*canvas.Block, size canvas.Size) []canvas.Point {
	occupied := make([]*canvas.Block, len(blocks), len(blocks)+len(preferred))
	copy(occupied, blocks)

	out := make([]canvas.Point, len(preferred))
	for i, p := range preferred {
		out[i] = r.FindNonOverlapping(p, occupied, size)
		occupied = append(occupied, &canvas.Block{Position: out[i], Size: r.opts.BlockSize, Scale: 1})
	}
	return out
}
