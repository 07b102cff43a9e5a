package canvas

import "math"

// Point is a location on the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vector is a displacement or velocity.
type Vector struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// Size is a width/height pair.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle given by its min and max corners.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Add returns p translated by v.
func (p Point) Add(v Vector) Point { return Point{X: p.X + v.DX, Y: p.Y + v.DY} }

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Vector { return Vector{DX: p.X - q.X, DY: p.Y - q.Y} }

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 { return p.Sub(q).Len() }

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool { return isFinite(p.X) && isFinite(p.Y) }

// Len returns the vector's magnitude.
func (v Vector) Len() float64 { return math.Hypot(v.DX, v.DY) }

// Scale multiplies both components by k.
func (v Vector) Scale(k float64) Vector { return Vector{DX: v.DX * k, DY: v.DY * k} }

// Plus returns the component-wise sum.
func (v Vector) Plus(w Vector) Vector { return Vector{DX: v.DX + w.DX, DY: v.DY + w.DY} }

// Half returns half the size.
func (s Size) Half() Size { return Size{Width: s.Width / 2, Height: s.Height / 2} }

// Center returns the center of a canvas of size s anchored at the origin.
func (s Size) Center() Point { return Point{X: s.Width / 2, Y: s.Height / 2} }

// Scaled multiplies both dimensions by k.
func (s Size) Scaled(k float64) Size { return Size{Width: s.Width * k, Height: s.Height * k} }

// IsFinite reports whether both dimensions are finite numbers.
func (s Size) IsFinite() bool { return isFinite(s.Width) && isFinite(s.Height) }

// RectAround returns the rectangle of size s centered on c.
func RectAround(c Point, s Size) Rect {
	h := s.Half()
	return Rect{MinX: c.X - h.Width, MinY: c.Y - h.Height, MaxX: c.X + h.Width, MaxY: c.Y + h.Height}
}

// Intersects reports whether r and o overlap. Touching edges do not count.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && r.MaxX > o.MinX && r.MinY < o.MaxY && r.MaxY > o.MinY
}

// Within reports whether r lies entirely inside o.
func (r Rect) Within(o Rect) bool {
	return r.MinX >= o.MinX && r.MaxX <= o.MaxX && r.MinY >= o.MinY && r.MaxY <= o.MaxY
}

// Center returns the rectangle's midpoint.
func (r Rect) Center() Point { return Point{X: (r.MinX + r.MaxX) / 2, Y: (r.MinY + r.MaxY) / 2} }

// Size returns the rectangle's dimensions.
func (r Rect) Size() Size { return Size{Width: r.MaxX - r.MinX, Height: r.MaxY - r.MinY} }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
