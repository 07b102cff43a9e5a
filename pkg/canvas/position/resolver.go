package position

import (
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// Default values for [Options].
const (
	DefaultMargin         = 40.0
	DefaultSpacing        = 40.0
	DefaultSearchSpacing  = 240.0
	DefaultSearchSteps    = 20
	DefaultFallbackOffset = 50.0
	DefaultOrbitRadius    = 300.0
)

// Options holds the placement constants.
type Options struct {
	// BlockSize is the footprint assumed for blocks being placed.
	BlockSize canvas.Size
	// Margin separates absolute anchors from the canvas edge.
	Margin float64
	// Spacing is the gap between a block and a block placed next to it.
	Spacing float64
	// SearchSpacing scales the collision search spiral.
	SearchSpacing float64
	// SearchSteps bounds the collision search.
	SearchSteps int
	// FallbackOffset is applied when the search finds nothing.
	FallbackOffset float64
	// OrbitRadius is the minimum radius of orbital layouts.
	OrbitRadius float64
}

// DefaultOptions returns the standard placement constants.
func DefaultOptions() Options {
	return Options{
		BlockSize:      canvas.DefaultBlockSize,
		Margin:         DefaultMargin,
		Spacing:        DefaultSpacing,
		SearchSpacing:  DefaultSearchSpacing,
		SearchSteps:    DefaultSearchSteps,
		FallbackOffset: DefaultFallbackOffset,
		OrbitRadius:    DefaultOrbitRadius,
	}
}

// withDefaults fills zero fields from [DefaultOptions].
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BlockSize.Width <= 0 || o.BlockSize.Height <= 0 {
		o.BlockSize = d.BlockSize
	}
	if o.Margin == 0 {
		o.Margin = d.Margin
	}
	if o.Spacing == 0 {
		o.Spacing = d.Spacing
	}
	if o.SearchSpacing == 0 {
		o.SearchSpacing = d.SearchSpacing
	}
	if o.SearchSteps <= 0 {
		o.SearchSteps = d.SearchSteps
	}
	if o.FallbackOffset == 0 {
		o.FallbackOffset = d.FallbackOffset
	}
	if o.OrbitRadius == 0 {
		o.OrbitRadius = d.OrbitRadius
	}
	return o
}

// Resolver turns placement tokens into coordinates.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	opts Options
}

// New creates a resolver. Zero option fields take their defaults.
func New(opts Options) *Resolver {
	return &Resolver{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (r *Resolver) Options() Options { return r.opts }

type tokenKind int

const (
	tokenSelected tokenKind = iota
	tokenNamed
)

type direction int

const (
	dirRight direction = iota
	dirLeft
	dirAbove
	dirBelow
)

// relative holds the direction for relative tokens.
type relative struct {
	kind tokenKind
	dir  direction
}

var relativeTokens = map[string]relative{
	"right_of_selected": {tokenSelected, dirRight},
	"next_to_selected":  {tokenSelected, dirRight},
	"beside_selected":   {tokenSelected, dirRight},
	"right_of_this":     {tokenSelected, dirRight},
	"next_to_this":      {tokenSelected, dirRight},
	"left_of_selected":  {tokenSelected, dirLeft},
	"left_of_this":      {tokenSelected, dirLeft},
	"above_selected":    {tokenSelected, dirAbove},
	"above_this":        {tokenSelected, dirAbove},
	"below_selected":    {tokenSelected, dirBelow},
	"below_this":        {tokenSelected, dirBelow},
	"under_selected":    {tokenSelected, dirBelow},
	"under_this":        {tokenSelected, dirBelow},

	"right_of": {tokenNamed, dirRight},
	"next_to":  {tokenNamed, dirRight},
	"beside":   {tokenNamed, dirRight},
	"left_of":  {tokenNamed, dirLeft},
	"above":    {tokenNamed, dirAbove},
	"below":    {tokenNamed, dirBelow},
	"under":    {tokenNamed, dirBelow},
}

// NormalizeToken lowercases a token and maps spaces and hyphens to
// underscores, so "Right of selected" and "right-of-selected" match.
func NormalizeToken(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	t = strings.NewReplacer(" ", "_", "-", "_").Replace(t)
	return t
}

// Resolve maps a placement token to a block center.
//
// target is the title query used by the named-block tokens; selected may be
// nil. Resolve never fails: every unmatched case falls back to the canvas
// center.
func (r *Resolver) Resolve(token, target string, size canvas.Size, selected *canvas.Block, blocks []*canvas.Block) canvas.Point {
	t := NormalizeToken(token)
	center := size.Center()

	if p, ok := r.anchor(t, size); ok {
		return p
	}

	rel, ok := relativeTokens[t]
	if !ok {
		return center
	}

	var ref *canvas.Block
	switch rel.kind {
	case tokenSelected:
		ref = selected
	case tokenNamed:
		ref = FindBlock(target, blocks)
	}
	if ref == nil {
		return center
	}
	return r.beside(ref, rel.dir)
}

// anchor resolves the absolute tokens.
func (r *Resolver) anchor(t string, size canvas.Size) (canvas.Point, bool) {
	half := r.opts.BlockSize.Half()
	m := r.opts.Margin
	left := m + half.Width
	right := size.Width - m - half.Width
	top := m + half.Height
	bottom := size.Height - m - half.Height
	cx, cy := size.Width/2, size.Height/2

	switch t {
	case "center", "middle", "centre":
		return canvas.Point{X: cx, Y: cy}, true
	case "top_left", "upper_left":
		return canvas.Point{X: left, Y: top}, true
	case "top_right", "upper_right":
		return canvas.Point{X: right, Y: top}, true
	case "bottom_left", "lower_left":
		return canvas.Point{X: left, Y: bottom}, true
	case "bottom_right", "lower_right":
		return canvas.Point{X: right, Y: bottom}, true
	case "top", "top_center":
		return canvas.Point{X: cx, Y: top}, true
	case "bottom", "bottom_center":
		return canvas.Point{X: cx, Y: bottom}, true
	case "left", "center_left":
		return canvas.Point{X: left, Y: cy}, true
	case "right", "center_right":
		return canvas.Point{X: right, Y: cy}, true
	}
	return canvas.Point{}, false
}

// beside offsets from ref by half its footprint, half the default size and
// the spacing constant along one axis.
func (r *Resolver) beside(ref *canvas.Block, dir direction) canvas.Point {
	refHalf := ref.Footprint().Half()
	half := r.opts.BlockSize.Half()
	p := ref.Position

	switch dir {
	case dirRight:
		p.X += refHalf.Width + half.Width + r.opts.Spacing
	case dirLeft:
		p.X -= refHalf.Width + half.Width + r.opts.Spacing
	case dirAbove:
		p.Y -= refHalf.Height + half.Height + r.opts.Spacing
	case dirBelow:
		p.Y += refHalf.Height + half.Height + r.opts.Spacing
	}
	return p
}

// IsRelative reports whether token needs a reference block.
func IsRelative(token string) bool {
	_, ok := relativeTokens[NormalizeToken(token)]
	return ok
}

// NeedsTarget reports whether token resolves against a block found by title.
func NeedsTarget(token string) bool {
	rel, ok := relativeTokens[NormalizeToken(token)]
	return ok && rel.kind == tokenNamed
}
