// Package cli implements the canvas command-line interface.
//
// Every command works on one canvas scope. One-shot commands (add, place,
// arrange, move, clear) open the configured store, load the scope into an
// engine, apply the change, let animations settle and flush the queued
// writes before exiting. serve runs the engine on a loop behind the HTTP
// API, and watch drives the same engine from a terminal view.
//
// # Commands
//
//   - serve: Run the HTTP API
//   - blocks: List the blocks of the canvas
//   - add, place: Create blocks at a position token or for matching entities
//   - arrange, move, clear: Rearrange or remove blocks
//   - connections, export: Show relationship lines, export DOT or SVG
//   - watch: Live terminal view of the canvas
//   - cache: Manage the edge and search cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging. Loggers are
// passed through context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger writing to w at level, with "HH:MM:SS.ms"
// timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress logs the completion of an operation with its elapsed time.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg with the elapsed time, e.g. "Placed 4 blocks (12ms)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the logger attached by withLogger, or
// log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}
