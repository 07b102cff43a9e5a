package canvas

// Edge is a typed, weighted relationship between two entities, identified
// by uuid. Direction is informational; the renderer treats A→B and B→A of
// the same kind as one line.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// Key returns the direction-independent identity of the edge: the sorted
// endpoint pair plus the kind.
func (e Edge) Key() string {
	a, b := e.Source, e.Target
	if b < a {
		a, b = b, a
	}
	return a + "|" + b + "|" + e.Kind
}
