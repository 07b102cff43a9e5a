// Package api serves a canvas over HTTP.
//
// The server never touches the engine directly: every handler runs its
// engine work through [engine.Loop.Do], so HTTP requests, change-feed
// merges and animation ticks share one writer. Connection lines come from
// a [connections.Tracker] that is told about every change of the block
// set, and expansion state lives in an [expansion.Coordinator] whose
// opacity and z-index adjustments are applied to the blocks returned.
//
// # Routes
//
//	GET    /healthz
//	GET    /blocks                 all blocks with expansion applied
//	POST   /blocks                 create one block at a position token
//	DELETE /blocks                 clear the canvas
//	DELETE /blocks/{id}
//	PUT    /blocks/{id}/position
//	POST   /blocks/{id}/front
//	POST   /place                  place blocks for matching entities
//	POST   /arrange
//	POST   /move
//	POST   /resolve                resolve a position token
//	GET    /connections            rendered connection lines
//	POST   /expand/{id}
//	POST   /collapse
//	GET    /export.dot
//	GET    /export.svg
//
// Errors use the JSON shape of [httputil.WriteError].
package api

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/httputil"
)

// Options configures a [Server].
type Options struct {
	// Loop owns the engine. It must be running before [New] is called.
	Loop *engine.Loop
	// Tracker supplies connection lines. Nil serves no lines.
	Tracker *connections.Tracker
	// Expansion holds the expanded block. Nil creates a coordinator with
	// default timing.
	Expansion *expansion.Coordinator
	Logger    *log.Logger
}

// Server is the HTTP API for one canvas.
type Server struct {
	loop    *engine.Loop
	tracker *connections.Tracker
	expand  *expansion.Coordinator
	logger  *log.Logger
	router  chi.Router
	detach  func()
}

// New creates the server and subscribes it to engine changes: the tracker
// follows the block set, and removed blocks are dropped from the
// expansion state.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Expansion == nil {
		opts.Expansion = expansion.New(expansion.Options{})
	}
	s := &Server{
		loop:    opts.Loop,
		tracker: opts.Tracker,
		expand:  opts.Expansion,
		logger:  opts.Logger,
	}

	err := s.loop.Do(ctx, func(e *engine.Engine) error {
		if s.tracker != nil {
			s.tracker.Update(e.Blocks())
		}
		s.detach = e.Observe(func(d engine.Diff) {
			for _, id := range d.Removed {
				s.expand.Forget(id)
			}
			if s.tracker != nil && (len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Updated) > 0) {
				s.tracker.Update(e.Blocks())
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Close unsubscribes from the engine.
func (s *Server) Close(ctx context.Context) error {
	return s.loop.Do(ctx, func(*engine.Engine) error {
		if s.detach != nil {
			s.detach()
		}
		return nil
	})
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httputil.Instrument(s.logger))

	r.Get("/healthz", s.health)

	r.Get("/blocks", s.listBlocks)
	r.Post("/blocks", s.createBlock)
	r.Delete("/blocks", s.clearBlocks)
	r.Delete("/blocks/{id}", s.deleteBlock)
	r.Put("/blocks/{id}/position", s.positionBlock)
	r.Post("/blocks/{id}/front", s.bringToFront)

	r.Post("/place", s.place)
	r.Post("/arrange", s.arrange)
	r.Post("/move", s.move)
	r.Post("/resolve", s.resolve)

	r.Get("/connections", s.connections)

	r.Post("/expand/{id}", s.expandBlock)
	r.Post("/collapse", s.collapse)

	r.Get("/export.dot", s.exportDOT)
	r.Get("/export.svg", s.exportSVG)
	return r
}
