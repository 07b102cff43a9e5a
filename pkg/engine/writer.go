package engine

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/observability"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// Writer defaults.
const (
	DefaultMaxConcurrentWrites = 4
	DefaultWriteTimeout        = 10 * time.Second
)

// WriteOptions configures background persistence.
type WriteOptions struct {
	// MaxConcurrent bounds store calls in flight across all blocks.
	MaxConcurrent int
	// Timeout bounds one store call including retries.
	Timeout time.Duration
	// Retry enables at-least-once delivery of failed writes. Nil writes
	// once and logs the failure.
	Retry *cache.RetryPolicy
}

// WriteStats counts background writes since the engine started.
type WriteStats struct {
	Pending   int `json:"pending"`
	Written   int `json:"written"`
	Failed    int `json:"failed"`
	Coalesced int `json:"coalesced"`
}

type opKind uint8

const (
	opUpsert opKind = iota + 1
	opDelete
	opPosition
)

func (k opKind) String() string {
	switch k {
	case opUpsert:
		return "upsert"
	case opDelete:
		return "delete"
	case opPosition:
		return "position"
	default:
		return "unknown"
	}
}

type writeOp struct {
	kind opKind
	id   string
	rec  store.Record
	x, y float64
}

// writer runs store calls in the background without making the caller
// wait. Calls for one block id run in the order they were issued; calls
// for different ids run concurrently up to MaxConcurrent. A queued upsert
// or delete replaces every queued call for the same id, and a queued
// position replaces earlier queued positions, since the store keeps only
// the last state.
type writer struct {
	store   store.BlockStore
	sem     *semaphore.Weighted
	timeout time.Duration
	retry   *cache.RetryPolicy
	logger  *log.Logger
	base    context.Context

	mu       sync.Mutex
	queues   map[string][]writeOp
	inflight map[string]bool // a drainer owns the id
	running  map[string]bool // the drainer is inside a store call
	total    int
	idle     []chan struct{}
	stats    WriteStats
}

func newWriter(ctx context.Context, s store.BlockStore, opts WriteOptions, logger *log.Logger) *writer {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrentWrites
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWriteTimeout
	}
	return &writer{
		store:    s,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout:  opts.Timeout,
		retry:    opts.Retry,
		logger:   logger,
		base:     ctx,
		queues:   map[string][]writeOp{},
		inflight: map[string]bool{},
		running:  map[string]bool{},
	}
}

func (w *writer) enqueue(op writeOp) {
	w.mu.Lock()
	defer w.mu.Unlock()

	q := w.queues[op.id]
	kept := q[:0]
	for _, queued := range q {
		if op.kind == opUpsert || op.kind == opDelete || queued.kind == op.kind {
			w.stats.Coalesced++
			w.total--
			continue
		}
		kept = append(kept, queued)
	}
	w.queues[op.id] = append(kept, op)
	w.total++

	if !w.inflight[op.id] {
		w.inflight[op.id] = true
		go w.drain(op.id)
	}
}

// drain runs the queue of id until it is empty.
func (w *writer) drain(id string) {
	for {
		w.mu.Lock()
		q := w.queues[id]
		if len(q) == 0 {
			delete(w.queues, id)
			delete(w.inflight, id)
			w.signalIdleLocked()
			w.mu.Unlock()
			return
		}
		op := q[0]
		w.queues[id] = q[1:]
		w.running[id] = true
		w.mu.Unlock()

		err := w.run(op)

		w.mu.Lock()
		delete(w.running, id)
		w.total--
		if err != nil {
			w.stats.Failed++
		} else {
			w.stats.Written++
		}
		w.mu.Unlock()
	}
}

func (w *writer) run(op writeOp) error {
	ctx, cancel := context.WithTimeout(w.base, w.timeout)
	defer cancel()

	start := time.Now()
	if err := w.sem.Acquire(ctx, 1); err != nil {
		w.logger.Warn("persist failed", "op", op.kind, "block", op.id, "err", err)
		observability.Engine().OnPersist(ctx, op.kind.String(), op.id, time.Since(start), err)
		return err
	}
	defer w.sem.Release(1)

	var err error
	if w.retry != nil {
		err = w.retry.Do(ctx, func() error { return cache.Retryable(w.apply(ctx, op)) })
	} else {
		err = w.apply(ctx, op)
	}
	observability.Engine().OnPersist(ctx, op.kind.String(), op.id, time.Since(start), err)
	if err != nil {
		w.logger.Warn("persist failed", "op", op.kind, "block", op.id, "err", err)
		return err
	}
	w.logger.Debug("persisted", "op", op.kind, "block", op.id, "duration", time.Since(start))
	return nil
}

func (w *writer) apply(ctx context.Context, op writeOp) error {
	switch op.kind {
	case opUpsert:
		return w.store.Upsert(ctx, op.rec)
	case opDelete:
		return w.store.MarkDeleted(ctx, op.id)
	default:
		return w.store.UpdatePosition(ctx, op.id, op.x, op.y)
	}
}

// pending returns the number of queued or running writes for id.
func (w *writer) pending(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.queues[id])
	if w.running[id] {
		n++
	}
	return n
}

func (w *writer) snapshot() WriteStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = w.total
	return s
}

func (w *writer) signalIdleLocked() {
	if w.total != 0 {
		return
	}
	for _, ch := range w.idle {
		close(ch)
	}
	w.idle = nil
}

// flush waits until no write is queued or running.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	if w.total == 0 {
		w.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	w.idle = append(w.idle, ch)
	w.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
