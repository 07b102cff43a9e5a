package api

import (
	"cmp"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/spatialcanvas/pkg/buildinfo"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/httputil"
	"github.com/matzehuels/spatialcanvas/pkg/render"
)

// BlockView is a block as drawn: opacity and z-index include the
// expansion state.
type BlockView struct {
	*canvas.Block
	Expanded bool `json:"expanded,omitempty"`
	Dimmed   bool `json:"dimmed,omitempty"`
}

// BlocksResponse is the body of GET /blocks.
type BlocksResponse struct {
	Scope    string            `json:"scope"`
	Blocks   []BlockView       `json:"blocks"`
	Expanded string            `json:"expanded,omitempty"`
	Writes   engine.WriteStats `json:"writes"`
}

// PositionRequest is the body of PUT /blocks/{id}/position.
type PositionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ArrangeRequest is the body of POST /arrange.
type ArrangeRequest struct {
	Layout     position.Style `json:"layout"`
	CanvasSize canvas.Size    `json:"canvas_size"`
}

// MoveRequest is the body of POST /move.
type MoveRequest struct {
	Direction string   `json:"direction"`
	Distance  float64  `json:"distance"`
	IDs       []string `json:"ids,omitempty"`
}

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	Token      string      `json:"token"`
	Target     string      `json:"target,omitempty"`
	CanvasSize canvas.Size `json:"canvas_size"`
}

// ConnectionsResponse is the body of GET /connections.
type ConnectionsResponse struct {
	Lines   []connections.Line `json:"lines"`
	Visible int                `json:"visible"`
	// Error is set while the latest edge query failed; Lines then come
	// from the previous successful query.
	Error string `json:"error,omitempty"`
}

// ExpansionResponse is the body of the expansion routes.
type ExpansionResponse struct {
	Expanded string `json:"expanded,omitempty"`
	Pending  string `json:"pending,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	httputil.WriteError(w, s.logger, err)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Version})
}

// snapshot copies the blocks on the loop.
func (s *Server) snapshot(r *http.Request) ([]*canvas.Block, error) {
	var blocks []*canvas.Block
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		blocks = e.Snapshot()
		return nil
	})
	return blocks, err
}

func (s *Server) view(b *canvas.Block) BlockView {
	v := BlockView{Block: b, Expanded: s.expand.IsExpanded(b.ID), Dimmed: s.expand.IsDimmed(b.ID)}
	b.Opacity = s.expand.Opacity(b.ID, b.Opacity)
	b.ZIndex = s.expand.ZIndex(b.ID, b.ZIndex)
	return v
}

func (s *Server) views(blocks []*canvas.Block) []BlockView {
	out := make([]BlockView, len(blocks))
	for i, b := range blocks {
		out[i] = s.view(b)
	}
	return out
}

func (s *Server) listBlocks(w http.ResponseWriter, r *http.Request) {
	var resp BlocksResponse
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		resp.Scope = e.Scope().Key()
		resp.Blocks = s.views(e.Snapshot())
		// The expansion boost changes z after Snapshot sorted by it.
		slices.SortStableFunc(resp.Blocks, func(a, b BlockView) int {
			return cmp.Compare(a.ZIndex, b.ZIndex)
		})
		resp.Writes = e.WriteStats()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	resp.Expanded, _ = s.expand.Expanded()
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) createBlock(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	var created *canvas.Block
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		b, err := e.CreateBlock(req)
		if err != nil {
			return err
		}
		created = b.Clone()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, s.view(created))
}

func (s *Server) clearBlocks(w http.ResponseWriter, r *http.Request) {
	var d engine.Diff
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		d = e.Clear()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) deleteBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		if _, ok := e.Block(id); !ok {
			return errors.New(errors.ErrCodeBlockNotFound, "block %s not found", id)
		}
		e.RemoveBlock(id)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// editBlock runs fn for the block named in the path and responds with
// its new state.
func (s *Server) editBlock(w http.ResponseWriter, r *http.Request, fn func(e *engine.Engine, id string) error) {
	id := chi.URLParam(r, "id")
	var updated *canvas.Block
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		if err := fn(e, id); err != nil {
			return err
		}
		b, _ := e.Block(id)
		updated = b.Clone()
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.view(updated))
}

func (s *Server) positionBlock(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.editBlock(w, r, func(e *engine.Engine, id string) error {
		return e.UpdateBlockPosition(id, canvas.Point{X: req.X, Y: req.Y})
	})
}

func (s *Server) bringToFront(w http.ResponseWriter, r *http.Request) {
	s.editBlock(w, r, func(e *engine.Engine, id string) error {
		return e.BringToFront(id)
	})
}

func (s *Server) place(w http.ResponseWriter, r *http.Request) {
	var req engine.PlaceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	var placed []*canvas.Block
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		blocks, err := e.PlaceBlocks(r.Context(), req)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			placed = append(placed, b.Clone())
		}
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"blocks": s.views(placed)})
}

func (s *Server) arrange(w http.ResponseWriter, r *http.Request) {
	var req ArrangeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	var d engine.Diff
	err := s.loop.Do(r.Context(), func(e *engine.Engine) (err error) {
		d, err = e.Arrange(req.Layout, req.CanvasSize)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	var d engine.Diff
	err := s.loop.Do(r.Context(), func(e *engine.Engine) (err error) {
		d, err = e.Move(req.Direction, req.Distance, req.IDs...)
		return err
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	var p canvas.Point
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		p = e.Resolve(req.Token, req.Target, req.CanvasSize)
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// lines renders the tracker's current edges against blocks.
func (s *Server) lines(blocks []*canvas.Block) ConnectionsResponse {
	resp := ConnectionsResponse{Lines: []connections.Line{}}
	if s.tracker == nil {
		return resp
	}
	if l := s.tracker.Lines(blocks); l != nil {
		resp.Lines = l
	}
	resp.Visible = len(s.tracker.Visible())
	if err := s.tracker.Err(); err != nil {
		resp.Error = errors.UserMessage(err)
	}
	return resp
}

func (s *Server) connections(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.snapshot(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.lines(blocks))
}

func (s *Server) expansionState() ExpansionResponse {
	var resp ExpansionResponse
	resp.Expanded, _ = s.expand.Expanded()
	resp.Pending, _ = s.expand.Pending()
	return resp
}

func (s *Server) expandBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.loop.Do(r.Context(), func(e *engine.Engine) error {
		if _, ok := e.Block(id); !ok {
			return errors.New(errors.ErrCodeBlockNotFound, "block %s not found", id)
		}
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.expand.Expand(id)
	httputil.WriteJSON(w, http.StatusOK, s.expansionState())
}

func (s *Server) collapse(w http.ResponseWriter, r *http.Request) {
	s.expand.Collapse()
	httputil.WriteJSON(w, http.StatusOK, s.expansionState())
}

func (s *Server) dot(r *http.Request) (string, error) {
	blocks, err := s.snapshot(r)
	if err != nil {
		return "", err
	}
	highlight, _ := s.expand.Expanded()
	opts := render.Options{Detailed: r.URL.Query().Get("detailed") == "true", Highlight: highlight}
	return render.ToDOT(blocks, s.lines(blocks).Lines, opts), nil
}

func (s *Server) exportDOT(w http.ResponseWriter, r *http.Request) {
	dot, err := s.dot(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(dot))
}

func (s *Server) exportSVG(w http.ResponseWriter, r *http.Request) {
	dot, err := s.dot(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	svg, err := render.RenderSVG(r.Context(), dot)
	if err != nil {
		s.fail(w, errors.Wrap(errors.ErrCodeInternal, err, "render svg"))
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}
