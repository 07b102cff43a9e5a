package connections

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/observability"
)

// DefaultQueryTimeout bounds one edge query.
const DefaultQueryTimeout = 5 * time.Second

// TrackerOptions configures a [Tracker].
type TrackerOptions struct {
	// Timeout bounds each query. Zero uses DefaultQueryTimeout.
	Timeout time.Duration
	// Render bounds the lines returned by [Tracker.Lines].
	Render Options
	// OnUpdate runs after a query result has been applied. It is called
	// from the query goroutine.
	OnUpdate func()
	Logger   *log.Logger
}

// Tracker keeps the edge set for the currently visible entities.
//
// Every change of the visible uuid set cancels the running query and starts
// a new one. Each query carries a generation number and a result is applied
// only if no newer query has started since, so stale completions are
// discarded. A failed query leaves the previous edges in place.
type Tracker struct {
	src    EdgeSource
	opts   TrackerOptions
	logger *log.Logger
	base   context.Context
	stop   context.CancelFunc

	mu      sync.Mutex
	visible []string
	key     string
	edges   []canvas.Edge
	lastErr error
	gen     uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTracker creates a tracker. Queries run under ctx; cancelling it, or
// calling Close, stops them.
func NewTracker(ctx context.Context, src EdgeSource, opts TrackerOptions) *Tracker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQueryTimeout
	}
	if opts.Render == (Options{}) {
		opts.Render = DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	base, stop := context.WithCancel(ctx)
	return &Tracker{src: src, opts: opts, logger: logger, base: base, stop: stop}
}

// Update records the visible set derived from blocks and starts a query if
// it changed. It reports whether a query was started.
func (t *Tracker) Update(blocks []*canvas.Block) bool {
	uuids := VisibleUUIDs(blocks)
	key := strings.Join(uuids, ",")

	t.mu.Lock()
	defer t.mu.Unlock()
	if key == t.key && t.gen > 0 {
		return false
	}
	t.visible = uuids
	t.key = key
	t.startLocked()
	return true
}

// Invalidate re-queries the current visible set, used when the edge source
// reports a change.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startLocked()
}

// Follow re-queries whenever w reports a change touching a visible entity.
func (t *Tracker) Follow(w Watcher) (cancel func()) {
	return w.WatchEdges(func(changed []string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, u := range changed {
			if _, ok := slices.BinarySearch(t.visible, u); ok {
				t.startLocked()
				return
			}
		}
	})
}

// startLocked supersedes the running query.
func (t *Tracker) startLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
	gen := t.gen

	if len(t.visible) == 0 {
		t.edges = nil
		t.lastErr = nil
		return
	}

	ctx, cancel := context.WithTimeout(t.base, t.opts.Timeout)
	t.cancel = cancel
	uuids := slices.Clone(t.visible)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(ctx, gen, uuids)
	}()
}

func (t *Tracker) run(ctx context.Context, gen uint64, uuids []string) {
	start := time.Now()
	edges, err := t.src.EdgesForNodes(ctx, uuids)
	observability.Edges().OnEdgeQuery(ctx, len(uuids), len(edges), time.Since(start), err)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		observability.Edges().OnEdgeQueryDiscarded(ctx, len(uuids))
		return
	}
	if err != nil {
		t.lastErr = err
		t.mu.Unlock()
		t.logger.Warn("edge query failed, keeping previous edges", "nodes", len(uuids), "err", err)
		return
	}
	t.edges = edges
	t.lastErr = nil
	t.mu.Unlock()

	t.logger.Debug("edges updated", "nodes", len(uuids), "edges", len(edges), "duration", time.Since(start))
	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate()
	}
}

// Edges returns a copy of the last successfully fetched edges.
func (t *Tracker) Edges() []canvas.Edge {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.edges)
}

// Err returns the error of the latest applied query, nil after a success.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Visible returns the uuid set the tracker currently follows.
func (t *Tracker) Visible() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.visible)
}

// Lines renders the current edges against blocks.
func (t *Tracker) Lines(blocks []*canvas.Block) []Line {
	return Render(blocks, t.Edges(), t.opts.Render)
}

// Wait blocks until every started query has finished.
func (t *Tracker) Wait() { t.wg.Wait() }

// Close cancels running queries and waits for them.
func (t *Tracker) Close() {
	t.stop()
	t.wg.Wait()
}
