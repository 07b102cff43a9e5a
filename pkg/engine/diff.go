package engine

import "slices"

// Diff lists the blocks a mutation touched. A block appears in at most one
// of Added, Removed and Updated. Conflicts lists blocks whose remote change
// was ignored because a local write was still pending.
type Diff struct {
	Added     []string `json:"added,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Empty reports whether the diff carries no change.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0 && len(d.Conflicts) == 0
}

// Len is the number of touched blocks.
func (d Diff) Len() int {
	return len(d.Added) + len(d.Removed) + len(d.Updated)
}

type change uint8

const (
	changeAdded change = iota + 1
	changeRemoved
	changeUpdated
)

// recorder folds a sequence of per-block changes into a [Diff]:
//
//	added   then updated  -> added
//	added   then removed  -> nothing
//	removed then added    -> updated
//	updated then removed  -> removed
type recorder struct {
	order     []string
	kinds     map[string]change
	conflicts []string
}

func newRecorder() *recorder {
	return &recorder{kinds: map[string]change{}}
}

func (r *recorder) record(id string, c change) {
	prev, seen := r.kinds[id]
	if !seen {
		r.order = append(r.order, id)
		r.kinds[id] = c
		return
	}
	switch {
	case prev == changeAdded && c == changeRemoved:
		delete(r.kinds, id)
	case prev == changeAdded:
	case prev == changeRemoved && c == changeAdded:
		r.kinds[id] = changeUpdated
	case c == changeRemoved:
		r.kinds[id] = changeRemoved
	}
}

func (r *recorder) conflict(id string) {
	if !slices.Contains(r.conflicts, id) {
		r.conflicts = append(r.conflicts, id)
	}
}

func (r *recorder) diff() Diff {
	var d Diff
	emitted := make(map[string]bool, len(r.order))
	for _, id := range r.order {
		c, ok := r.kinds[id]
		if !ok || emitted[id] {
			continue
		}
		emitted[id] = true
		switch c {
		case changeAdded:
			d.Added = append(d.Added, id)
		case changeRemoved:
			d.Removed = append(d.Removed, id)
		case changeUpdated:
			d.Updated = append(d.Updated, id)
		}
	}
	d.Conflicts = slices.Clone(r.conflicts)
	return d
}

// =============================================================================
// Observers
// =============================================================================

// Observe registers fn to receive the diff of every mutation. Observers run
// synchronously on the engine's writer, after the mutation, once per
// top-level call or [Engine.Batch].
func (e *Engine) Observe(fn func(Diff)) (cancel func()) {
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() { delete(e.observers, id) }
}

// Batch runs fn and delivers every change it makes as one diff. Nested
// batches fold into the outermost one and return an empty diff.
func (e *Engine) Batch(fn func(*Engine)) Diff {
	e.batchDepth++
	func() {
		defer func() { e.batchDepth-- }()
		fn(e)
	}()
	if e.batchDepth > 0 {
		return Diff{}
	}
	return e.publish()
}

func (e *Engine) changed(id string, c change) {
	e.rec.record(id, c)
	if e.batchDepth == 0 {
		e.publish()
	}
}

func (e *Engine) conflicted(id string) {
	e.rec.conflict(id)
	if e.batchDepth == 0 {
		e.publish()
	}
}

func (e *Engine) publish() Diff {
	d := e.rec.diff()
	e.rec = newRecorder()
	if d.Empty() {
		return d
	}
	ids := make([]int, 0, len(e.observers))
	for id := range e.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if fn, ok := e.observers[id]; ok {
			fn(d)
		}
	}
	return d
}
