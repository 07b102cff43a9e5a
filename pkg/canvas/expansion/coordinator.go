// Package expansion tracks which block, if any, is expanded.
//
// At most one block is expanded at any observable instant. Switching from
// one expanded block to another collapses the first immediately and expands
// the second only after a delay, so the collapse transition can play before
// the next block grows.
package expansion

import (
	"sync"
	"time"
)

// Rendering defaults.
const (
	DefaultCollapseDelay = 250 * time.Millisecond
	DefaultDimOpacity    = 0.35
	DefaultZBoost        = 1000
)

// Scheduler runs f after d and returns a function that cancels the call if
// it has not started yet. [time.AfterFunc] is the production scheduler;
// tests inject a manual one.
type Scheduler func(d time.Duration, f func()) (cancel func())

// AfterFunc is the [Scheduler] backed by the runtime timer.
func AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// Options configures a [Coordinator].
type Options struct {
	Delay      time.Duration
	DimOpacity float64
	ZBoost     int
	Scheduler  Scheduler
}

// Coordinator owns the expanded-block state. It is safe for concurrent use;
// the delayed expansion fires on the scheduler's goroutine.
type Coordinator struct {
	mu       sync.Mutex
	expanded string
	pending  string
	cancel   func()
	opts     Options

	nextObs   int
	observers map[int]func(expanded string)
}

// New creates a coordinator. Zero options take their defaults.
func New(opts Options) *Coordinator {
	if opts.Delay <= 0 {
		opts.Delay = DefaultCollapseDelay
	}
	if opts.DimOpacity <= 0 || opts.DimOpacity > 1 {
		opts.DimOpacity = DefaultDimOpacity
	}
	if opts.ZBoost == 0 {
		opts.ZBoost = DefaultZBoost
	}
	if opts.Scheduler == nil {
		opts.Scheduler = AfterFunc
	}
	return &Coordinator{opts: opts, observers: map[int]func(string){}}
}

// Expand expands id. When another block is expanded it is collapsed now and
// id follows after the configured delay; otherwise id expands immediately.
// A later Expand, Collapse or Toggle supersedes a pending expansion.
func (c *Coordinator) Expand(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	if c.expanded == id {
		c.mu.Unlock()
		return
	}
	c.stopPendingLocked()

	if c.expanded == "" {
		c.expanded = id
		c.mu.Unlock()
		c.notify(id)
		return
	}

	c.expanded = ""
	c.pending = id
	c.cancel = c.opts.Scheduler(c.opts.Delay, func() { c.finish(id) })
	c.mu.Unlock()
	c.notify("")
}

// finish completes a delayed expansion unless it was superseded.
func (c *Coordinator) finish(id string) {
	c.mu.Lock()
	if c.pending != id || c.expanded != "" {
		c.mu.Unlock()
		return
	}
	c.pending = ""
	c.cancel = nil
	c.expanded = id
	c.mu.Unlock()
	c.notify(id)
}

// Collapse clears the expanded block and any pending expansion.
func (c *Coordinator) Collapse() {
	c.mu.Lock()
	c.stopPendingLocked()
	changed := c.expanded != ""
	c.expanded = ""
	c.mu.Unlock()
	if changed {
		c.notify("")
	}
}

// Toggle collapses id when it is expanded or about to be, and expands it
// otherwise.
func (c *Coordinator) Toggle(id string) {
	c.mu.Lock()
	active := c.expanded == id || c.pending == id
	c.mu.Unlock()
	if active {
		c.Collapse()
		return
	}
	c.Expand(id)
}

func (c *Coordinator) stopPendingLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pending = ""
}

// Expanded returns the expanded block id.
func (c *Coordinator) Expanded() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expanded, c.expanded != ""
}

// Pending returns the id waiting for its delayed expansion.
func (c *Coordinator) Pending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.pending != ""
}

// IsExpanded reports whether id is the expanded block.
func (c *Coordinator) IsExpanded(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id != "" && c.expanded == id
}

// IsDimmed reports whether some other block is expanded.
func (c *Coordinator) IsDimmed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expanded != "" && c.expanded != id
}

// Opacity returns the rendering opacity for id given its own base opacity.
func (c *Coordinator) Opacity(id string, base float64) float64 {
	if c.IsDimmed(id) {
		return base * c.opts.DimOpacity
	}
	return base
}

// ZIndex lifts the expanded block above every other block.
func (c *Coordinator) ZIndex(id string, base int) int {
	if c.IsExpanded(id) {
		return base + c.opts.ZBoost
	}
	return base
}

// Forget drops id from the state, used when its block is removed.
func (c *Coordinator) Forget(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	switch id {
	case c.pending:
		c.stopPendingLocked()
		c.mu.Unlock()
	case c.expanded:
		c.mu.Unlock()
		c.Collapse()
	default:
		c.mu.Unlock()
	}
}

// OnChange registers fn to run whenever the expanded id changes, including
// to empty. The returned function unregisters it.
func (c *Coordinator) OnChange(fn func(expanded string)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Coordinator) notify(expanded string) {
	c.mu.Lock()
	fns := make([]func(string), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(expanded)
	}
}
