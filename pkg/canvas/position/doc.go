// Package position maps placement requests to canvas coordinates.
//
// Everything here is pure: functions take the canvas size and the current
// blocks as arguments and never mutate them.
//
// # Tokens
//
// [Resolver.Resolve] understands three token families:
//
//	center, top_left, top, top_right, left, right, bottom_left, bottom, bottom_right
//	right_of_selected, left_of_selected, above_selected, below_selected
//	right_of, left_of, above, below   (relative to a block found by title)
//
// Unknown tokens, a missing selection, and an unmatched block title all
// resolve to the canvas center. Resolve never fails.
//
// # Layouts
//
// [Orbital] and [Grid] generate positions for several blocks at once;
// [Resolver.Layout] wraps them (and the row, column and cascade variants)
// behind a [Style].
//
// # Collision Search
//
// [Resolver.FindNonOverlapping] nudges a preferred position along a bounded
// spiral until a default-sized block fits without touching existing blocks.
// After 20 steps it gives up and returns preferred + (50, 50) without any
// overlap guarantee.
package position
