// Package render exports a canvas snapshot as a diagram.
//
// # Overview
//
// [ToDOT] writes blocks and their rendered connection lines as Graphviz DOT
// source. Every node is pinned at its canvas position, so the drawing
// matches the canvas rather than a computed layout. [RenderSVG] turns that
// source into SVG in-process.
//
//	lines := connections.Render(blocks, edges, connections.DefaultOptions())
//	dot := render.ToDOT(blocks, lines, render.Options{})
//	svg, err := render.RenderSVG(ctx, dot)
//
// # Coordinates
//
// Canvas coordinates are pixels with y pointing down. DOT positions are
// inches with y pointing up, so [ToDOT] divides by [Options.PixelsPerInch]
// and flips the y axis. Node sizes use the scaled block footprint.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] with the neato engine,
// which honours pinned positions.
package render
