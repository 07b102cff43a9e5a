package engine

import (
	"context"
	"time"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// DefaultTickRate is the frame interval of a [Loop].
const DefaultTickRate = time.Second / 60

// maxFrameDelta caps the dt of a single frame after a stall.
const maxFrameDelta = 0.25

// Loop owns an [Engine] on one goroutine. Commands from other goroutines
// are serialised through [Loop.Do], and the engine is ticked at a fixed
// rate with the measured frame time.
type Loop struct {
	engine *Engine
	rate   time.Duration
	cmds   chan command
	done   chan struct{}
}

type command struct {
	fn    func(*Engine) error
	reply chan error
}

// NewLoop creates a loop for e. A non-positive rate uses DefaultTickRate.
func NewLoop(e *Engine, rate time.Duration) *Loop {
	if rate <= 0 {
		rate = DefaultTickRate
	}
	return &Loop{engine: e, rate: rate, cmds: make(chan command), done: make(chan struct{})}
}

// Run processes commands and ticks until ctx is done. It must be called
// once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	ticker := time.NewTicker(l.rate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.cmds:
			cmd.reply <- cmd.fn(l.engine)
		case <-ticker.C:
			now := time.Now()
			dt := now.Sub(last).Seconds()
			last = now
			if dt > maxFrameDelta {
				dt = maxFrameDelta
			}
			l.engine.Tick(dt)
		}
	}
}

// Do runs fn on the loop goroutine and returns its error. It fails with
// INTERNAL_ERROR once the loop has stopped.
func (l *Loop) Do(ctx context.Context, fn func(*Engine) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return errors.New(errors.ErrCodeInternal, "engine loop stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Follow applies every event of feed on the loop until the feed closes or
// ctx is done. onDiff, if set, receives the diff of each event.
func (l *Loop) Follow(ctx context.Context, feed <-chan store.ChangeEvent, onDiff func(Diff)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-feed:
				if !ok {
					return
				}
				err := l.Do(ctx, func(e *Engine) error {
					d := e.ApplyChange(ev)
					if onDiff != nil {
						onDiff(d)
					}
					return nil
				})
				if err != nil {
					return
				}
			}
		}
	}()
}
