package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
)

func validStyles() []string {
	out := make([]string, len(position.Styles))
	for i, s := range position.Styles {
		out[i] = string(s)
	}
	return out
}

func styleNames() string { return strings.Join(validStyles(), ", ") }

// placeCommand places blocks for the entities matching a query.
func (c *CLI) placeCommand() *cobra.Command {
	var (
		req    engine.PlaceRequest
		layout string
	)

	cmd := &cobra.Command{
		Use:   "place [kind] [query]",
		Short: "Place blocks for entities matching a query",
		Long: `Place blocks for entities matching a query.

Up to --count entities of the given kind whose title or body contains the
query are placed around the canvas center in the chosen layout, avoiding
existing blocks. When fewer entities match, the remaining blocks are
placeholders for which new entities are created.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Kind = canvas.EntityKind(args[0])
			if len(args) == 2 {
				req.Query = args[1]
			}
			style, err := position.ParseStyle(layout)
			if err != nil {
				return err
			}
			req.Layout = style
			return c.runPlace(cmd.Context(), req)
		},
	}

	cmd.Flags().IntVarP(&req.Quantity, "count", "n", 1, fmt.Sprintf("number of blocks (1-%d)", engine.MaxPlaceQuantity))
	cmd.Flags().StringVarP(&layout, "layout", "l", string(position.StyleOrbital), "layout: "+styleNames())
	return cmd
}

func (c *CLI) runPlace(ctx context.Context, req engine.PlaceRequest) (err error) {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	prog := newProgress(ws.logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Searching %s entities...", req.Kind))
	spinner.Start()
	placed, err := ws.engine.PlaceBlocks(ctx, req)
	if err != nil {
		spinner.StopWithError("Placement failed")
		return err
	}
	spinner.Stop()
	prog.done(fmt.Sprintf("Placed %d blocks", len(placed)))

	linked := 0
	for _, b := range placed {
		if b.IsLinked() {
			linked++
		}
	}
	printSuccess("Placed %d blocks in %s layout", len(placed), StyleHighlight.Render(string(req.Layout)))
	if n := len(placed) - linked; n > 0 {
		printDetail("%d matched existing entities, %d new entities created", linked, n)
	}
	return nil
}

// arrangeCommand lays every unpinned block out again.
func (c *CLI) arrangeCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "arrange [layout]",
		Short:     "Arrange the unpinned blocks in a layout",
		Long:      "Arrange the unpinned blocks around the canvas center. Layouts: " + styleNames() + ".",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: validStyles(),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			layout := ""
			if len(args) == 1 {
				layout = args[0]
			}
			style, err := position.ParseStyle(layout)
			if err != nil {
				return err
			}

			ws, err := c.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := ws.Close(cmd.Context()); err == nil {
					err = cerr
				}
			}()

			d, err := ws.engine.Arrange(style, canvas.Size{})
			if err != nil {
				return err
			}
			printSuccess("Arranged %d blocks in %s layout", len(d.Updated), StyleHighlight.Render(string(style)))
			if pinned := ws.engine.Len() - len(d.Updated); pinned > 0 {
				printDetail("%d pinned blocks stayed in place", pinned)
			}
			return nil
		},
	}
}

// moveCommand shifts blocks in a direction.
func (c *CLI) moveCommand() *cobra.Command {
	var (
		distance float64
		ids      []string
	)

	cmd := &cobra.Command{
		Use:   "move [direction]",
		Short: "Move blocks in a direction",
		Long: `Move blocks in a direction: up, down, left, right, up_left, up_right,
down_left or down_right. Without --id every unpinned block moves.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if _, err := engine.ParseDirection(args[0]); err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := ws.Close(cmd.Context()); err == nil {
					err = cerr
				}
			}()

			d, err := ws.engine.Move(args[0], distance, ids...)
			if err != nil {
				return err
			}
			if distance == 0 {
				distance = engine.DefaultMoveDistance
			}
			printSuccess("Moved %d blocks %s by %.0f", len(d.Updated), args[0], distance)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&distance, "distance", "d", 0, fmt.Sprintf("distance (default %.0f)", engine.DefaultMoveDistance))
	cmd.Flags().StringSliceVar(&ids, "id", nil, "only move these blocks (repeatable)")
	return cmd
}
