package cli

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/spatialcanvas/pkg/api"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	spcerrors "github.com/matzehuels/spatialcanvas/pkg/errors"
)

// readHeaderTimeout bounds slow clients on the API server.
const readHeaderTimeout = 10 * time.Second

// serveCommand runs the HTTP API for one canvas.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the canvas over HTTP",
		Long: `Serve the canvas over HTTP.

The engine runs on a single loop that ticks animations at the configured rate
and applies API requests in order. Changes written by other processes to the
same store are merged as they arrive when the store has a change feed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string) (err error) {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = ws.cfg.Server.Addr
	}
	logger := ws.logger
	loaded := ws.engine.Len()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	loop := engine.NewLoop(ws.engine, ws.cfg.Server.TickRate)
	g.Go(func() error { return loop.Run(gctx) })
	defer func() {
		<-loop.Done()
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()
	defer cancel()

	if feed, ferr := ws.engine.Subscribe(gctx); ferr == nil {
		loop.Follow(gctx, feed, func(d engine.Diff) {
			if len(d.Conflicts) > 0 {
				logger.Debug("kept local state over remote change", "blocks", d.Conflicts)
			}
		})
	} else if spcerrors.Is(ferr, spcerrors.ErrCodeUnsupported) {
		logger.Info("store has no change feed, remote edits appear after restart", "store", ws.cfg.Store.Backend)
	} else {
		logger.Warn("change feed unavailable", "err", ferr)
	}

	tracker := ws.tracker(gctx, nil)
	defer tracker.Close()
	if w, ok := ws.edges.(connections.Watcher); ok {
		defer tracker.Follow(w)()
	}

	srv, err := api.New(gctx, api.Options{
		Loop:      loop,
		Tracker:   tracker,
		Expansion: expansion.New(ws.cfg.ExpansionOptions()),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: readHeaderTimeout}
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		_ = srv.Close(sctx)
		return httpSrv.Shutdown(sctx)
	})

	printSuccess("Serving %s", StyleHighlight.Render(ws.scope.Key()))
	printKeyValue("Address", "http://"+displayAddr(addr))
	printKeyValue("Store", ws.cfg.Store.Backend)
	printKeyValue("Blocks", strconv.Itoa(loaded))

	return g.Wait()
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
