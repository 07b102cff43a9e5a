package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/buildinfo"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Canvas arranges entity blocks on a spatial canvas",
		Long: `Canvas manages a 2D canvas of blocks that reference domain entities.

Blocks are placed by symbolic position ("center", "right_of_selected") or by
layout style, animate to their targets with a spring, and persist to the
configured store. Relationships between the entities are drawn as lines.

Configuration is read from $XDG_CONFIG_HOME/spatialcanvas/config.toml and
CANVAS_* environment variables; the flags below override both.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/spatialcanvas/config.toml)")
	flags.StringVarP(&c.scope, "scope", "s", "", "canvas scope, type/id[/space] (default from config)")
	flags.StringVar(&c.backend, "store", "", "block store: "+strings.Join(store.Backends, ", "))
	flags.StringVar(&c.dsn, "dsn", "", "store file path or connection URL")
	flags.BoolVar(&c.noCache, "no-cache", false, "disable the edge and search cache")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.blocksCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.placeCommand())
	root.AddCommand(c.arrangeCommand())
	root.AddCommand(c.moveCommand())
	root.AddCommand(c.clearCommand())
	root.AddCommand(c.connectionsCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
