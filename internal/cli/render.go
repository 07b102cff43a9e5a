package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/render"
)

const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// validFormats is the set of supported export formats.
var validFormats = map[string]bool{formatDOT: true, formatSVG: true}

// exportOpts holds the flags of the export command.
type exportOpts struct {
	output    string
	formats   []string
	detailed  bool
	highlight string
}

// exportCommand writes the canvas as a Graphviz graph.
func (c *CLI) exportCommand() *cobra.Command {
	var (
		formatsStr string
		opts       exportOpts
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the canvas to DOT or SVG",
		Long: `Export the canvas to DOT or SVG.

Blocks keep their canvas positions and relationship lines are drawn between
them. SVG output is rendered with Graphviz (neato, pinned positions).

Without --output the files are named after the scope, e.g. project-1.svg.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formats = parseFormats(formatsStr)
			if err := validateFormats(opts.formats); err != nil {
				return err
			}
			return c.runExport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (single format) or base path (multiple)")
	cmd.Flags().StringVarP(&formatsStr, "format", "f", "", "output format(s): svg (default), dot (comma-separated)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "label blocks with kind and entity id")
	cmd.Flags().StringVar(&opts.highlight, "highlight", "", "block id drawn with a bold outline")
	return cmd
}

// parseFormats parses the --format flag. Empty selects svg.
func parseFormats(s string) []string {
	if s == "" {
		return []string{formatSVG}
	}
	out := strings.Split(s, ",")
	for i := range out {
		out[i] = strings.ToLower(strings.TrimSpace(out[i]))
	}
	return out
}

func validateFormats(formats []string) error {
	for _, f := range formats {
		if !validFormats[f] {
			return fmt.Errorf("invalid format: %s (must be 'svg' or 'dot')", f)
		}
	}
	return nil
}

// basePath derives the output path without extension. Without output the
// scope key is used with slashes replaced.
func basePath(output string, scope canvas.Scope) string {
	if output == "" {
		return strings.ReplaceAll(scope.Key(), "/", "-")
	}
	ext := filepath.Ext(output)
	if validFormats[strings.TrimPrefix(ext, ".")] {
		return strings.TrimSuffix(output, ext)
	}
	return output
}

func (c *CLI) runExport(ctx context.Context, opts exportOpts) error {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	lines, err := ws.lines(ctx)
	if err != nil {
		ws.logger.Warn("edge query failed, exporting without connections", "err", err)
	}
	blocks := ws.engine.Snapshot()
	dot := render.ToDOT(blocks, lines, render.Options{Detailed: opts.detailed, Highlight: opts.highlight})

	base := basePath(opts.output, ws.scope)
	var written []string
	for _, format := range opts.formats {
		path := base + "." + format
		if len(opts.formats) == 1 && opts.output != "" {
			path = opts.output
		}

		data := []byte(dot)
		if format == formatSVG {
			spinner := newSpinnerWithContext(ctx, "Rendering SVG...")
			spinner.Start()
			data, err = render.RenderSVG(ctx, dot)
			if err != nil {
				spinner.StopWithError("Rendering failed")
				return fmt.Errorf("render svg: %w", err)
			}
			spinner.Stop()
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}

	printSuccess("Exported %d blocks, %d lines", len(blocks), len(lines))
	for _, p := range written {
		printFile(p)
	}
	return nil
}
