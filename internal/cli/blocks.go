package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
)

// blocksCommand lists the blocks of the canvas.
func (c *CLI) blocksCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List the blocks of the canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := c.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer ws.close()

			blocks := ws.engine.Snapshot()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(blocks)
			}
			if len(blocks) == 0 {
				printInfo("Canvas %s is empty", StyleHighlight.Render(ws.scope.Key()))
				printNextStep("Add a block", appName+" add note \"First note\"")
				return nil
			}
			fmt.Println(StyleTitle.Render(ws.scope.Key()))
			fmt.Println(blockTable(blocks, ""))
			fmt.Println(statsLine(blocks, 0))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the blocks as JSON")
	return cmd
}

// addCommand creates one block at a position token.
func (c *CLI) addCommand() *cobra.Command {
	var req engine.CreateRequest

	cmd := &cobra.Command{
		Use:   "add [kind] [title]",
		Short: "Add a block at a symbolic position",
		Long: `Add a block at a symbolic position.

The position token is one of the canvas anchors (center, top_left, top,
top_right, left, right, bottom_left, bottom, bottom_right), a position
relative to the selected block (right_of_selected, below_selected, ...),
or relative to a block named with --target (right_of, below, ...).
The block is moved to the nearest free spot if the position is taken.

A new entity of the given kind is created for the block.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Kind = canvas.EntityKind(args[0])
			req.Title = args[1]
			return c.runAdd(cmd.Context(), req)
		},
	}

	cmd.Flags().StringVarP(&req.Token, "at", "a", "center", "position token")
	cmd.Flags().StringVarP(&req.Target, "target", "t", "", "block id or title for relative tokens")
	cmd.Flags().StringVarP(&req.Body, "body", "b", "", "entity body text")
	return cmd
}

func (c *CLI) runAdd(ctx context.Context, req engine.CreateRequest) (err error) {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(ctx); err == nil {
			err = cerr
		}
	}()

	b, err := ws.engine.CreateBlock(req)
	if err != nil {
		return err
	}
	printSuccess("Added %s %s", b.Entity.Kind, StyleHighlight.Render(b.DisplayTitle()))
	printDetail("id %s at %.0f, %.0f", b.ID, b.Position.X, b.Position.Y)
	return nil
}

// clearCommand removes every block of the canvas.
func (c *CLI) clearCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every block of the canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ws, err := c.openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := ws.Close(cmd.Context()); err == nil {
					err = cerr
				}
			}()

			if ws.engine.Len() == 0 {
				printInfo("Canvas is already empty")
				return nil
			}
			if !force {
				printWarning("This removes %d blocks from %s", ws.engine.Len(), ws.scope.Key())
				printNextStep("Run again with --force to confirm", appName+" clear --force")
				return nil
			}
			d := ws.engine.Clear()
			printSuccess("Removed %d blocks", len(d.Removed))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove without confirmation")
	return cmd
}

// connectionsCommand lists the relationship lines between the blocks.
func (c *CLI) connectionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "Show the relationship lines between blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			lines, err := ws.lines(ctx)
			if err != nil {
				return fmt.Errorf("query edges: %w", err)
			}
			blocks := ws.engine.Blocks()
			if len(lines) == 0 {
				printInfo("No connections between the %d blocks", len(blocks))
				return nil
			}
			fmt.Println(lineTable(lines, blocks))
			fmt.Println(statsLine(blocks, len(lines)))
			return nil
		},
	}
}
