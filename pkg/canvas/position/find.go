package position

import (
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// FindBlock finds the block whose title best matches query.
//
// Matching runs in three passes and the first pass with a hit wins:
//  1. exact title, case-insensitive
//  2. title contains query, case-insensitive
//  3. any query word contains, or is contained in, any title word
//
// Within a pass, the first block in slice order wins. Returns nil for an
// empty query or no match.
func FindBlock(query string, blocks []*canvas.Block) *canvas.Block {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	for _, b := range blocks {
		if strings.ToLower(strings.TrimSpace(b.Title)) == q {
			return b
		}
	}

	for _, b := range blocks {
		if strings.Contains(strings.ToLower(b.Title), q) {
			return b
		}
	}

	queryWords := strings.Fields(q)
	for _, b := range blocks {
		for _, tw := range strings.Fields(strings.ToLower(b.Title)) {
			for _, qw := range queryWords {
				if strings.Contains(tw, qw) || strings.Contains(qw, tw) {
					return b
				}
			}
		}
	}
	return nil
}
