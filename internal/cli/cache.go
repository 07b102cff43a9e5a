package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the search and edge query cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear all cached search and edge results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			switch cfg.Cache.Backend {
			case config.CacheRedis:
				rc, err := cache.NewRedisCache(cmd.Context(), cfg.Cache.RedisURL, cfg.Cache.Prefix)
				if err != nil {
					return fmt.Errorf("open redis cache: %w", err)
				}
				defer rc.Close()
				if err := rc.Clear(cmd.Context()); err != nil {
					return err
				}
				printSuccess("Cleared redis cache")
				printDetail("Prefix: %s", cfg.Cache.Prefix)
			case config.CacheFile:
				dir, err := cfg.CacheDir()
				if err != nil {
					return fmt.Errorf("get cache dir: %w", err)
				}
				fc, err := cache.NewFileCache(dir)
				if err != nil {
					return err
				}
				if err := fc.Clear(); err != nil {
					return err
				}
				printSuccess("Cleared file cache")
				printDetail("Directory: %s", fc.Dir())
			default:
				printInfo("Cache is disabled")
			}
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the file cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			dir, err := cfg.CacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}
