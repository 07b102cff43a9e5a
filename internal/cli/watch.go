package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	spcerrors "github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// watchCommand opens the interactive canvas view.
func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the canvas in an interactive terminal view",
		Long: `Open the canvas in an interactive terminal view.

Blocks are drawn on a map scaled to the canvas with relationship lines between
them. Moves and arrangements animate, and edits made by other processes to the
same store appear as they arrive when the store has a change feed.

Keys: arrows or hjkl move the selected block, tab selects the next block,
enter expands it, a cycles layouts, f brings to front, p pins, x deletes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runWatch(cmd.Context())
		},
	}
}

func (c *CLI) runWatch(ctx context.Context) (err error) {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var feed <-chan store.ChangeEvent
	if ch, ferr := ws.engine.Subscribe(ctx); ferr == nil {
		feed = ch
	} else if !spcerrors.Is(ferr, spcerrors.ErrCodeUnsupported) {
		ws.logger.Warn("change feed unavailable", "err", ferr)
	}

	tracker := ws.tracker(ctx, nil)
	defer tracker.Close()
	if w, ok := ws.edges.(connections.Watcher); ok {
		defer tracker.Follow(w)()
	}

	model := NewWatchModel(ws.engine, tracker, expansion.New(ws.cfg.ExpansionOptions()), feed)
	defer model.Close()

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
