// Package canvas defines the block model of the spatial canvas.
//
// A canvas is an unbounded 2D surface holding positioned, resizable [Block]
// values. Each block references a domain entity (a note, a task, a research
// item, ...) through an [EntityRef], or is an unlinked placeholder until the
// entity exists. Blocks are partitioned by [Scope]; a scope's blocks are
// loaded and saved together and never move between scopes implicitly.
//
// # Coordinates
//
// Positions are block centers in canvas units with the origin at the top-left
// corner and y growing downward. [Size] is the unscaled block size; the
// rendered footprint is Size * Scale, see [Block.Bounds].
//
//	b := canvas.NewBlock(canvas.EntityRef{Kind: canvas.KindNote, ID: 7, UUID: "n-7"}, "Reading list")
//	b.Position = canvas.Point{X: 500, Y: 400}
//	r := b.Bounds() // axis-aligned footprint used by collision and edge clipping
//
// # Edges
//
// [Edge] is a typed, weighted relationship between two entity uuids. Edges
// come from an external graph source and are never persisted by this module.
//
// # Subpackages
//
//   - position: placement tokens, layout generators, collision-free search
//   - motion: spring integrator for animated moves
//   - expansion: single-focus expansion state
package canvas
