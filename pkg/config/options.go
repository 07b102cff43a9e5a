package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/expansion"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/motion"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/position"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// Default returns the built-in configuration. Every constant matches the
// default of the component it configures.
func Default() Config {
	return Config{
		Canvas: Canvas{
			Width:          engine.DefaultCanvasSize.Width,
			Height:         engine.DefaultCanvasSize.Height,
			BlockWidth:     canvas.DefaultBlockSize.Width,
			BlockHeight:    canvas.DefaultBlockSize.Height,
			Margin:         position.DefaultMargin,
			Spacing:        position.DefaultSpacing,
			SearchSpacing:  position.DefaultSearchSpacing,
			SearchSteps:    position.DefaultSearchSteps,
			FallbackOffset: position.DefaultFallbackOffset,
			OrbitRadius:    position.DefaultOrbitRadius,
		},
		Motion: Motion{
			Stiffness:    motion.DefaultStiffness,
			Damping:      motion.DefaultDamping,
			SnapDistance: motion.DefaultSnapDistance,
			MaxStep:      motion.DefaultMaxStep,
			MaxSubsteps:  motion.DefaultMaxSubsteps,
		},
		Connections: Connections{
			MaxEdges:     connections.DefaultMaxEdges,
			MinLength:    connections.DefaultMinLength,
			MaxLength:    connections.DefaultMaxLength,
			Padding:      connections.DefaultPadding,
			QueryTimeout: connections.DefaultQueryTimeout,
			CacheTTL:     time.Minute,
		},
		Expansion: Expansion{
			CollapseDelay: expansion.DefaultCollapseDelay,
			DimOpacity:    expansion.DefaultDimOpacity,
		},
		Store: Store{
			Backend:       store.BackendMemory,
			Database:      store.DefaultMongoDatabase,
			PollInterval:  store.DefaultPollInterval,
			RetryAttempts: cache.DefaultRetryPolicy.Attempts,
			RetryDelay:    cache.DefaultRetryPolicy.Delay,
			MaxConcurrent: engine.DefaultMaxConcurrentWrites,
			WriteTimeout:  engine.DefaultWriteTimeout,
		},
		Search: Search{
			HealthInterval: 10 * time.Second,
			CacheTTL:       30 * time.Second,
		},
		Cache: Cache{
			Backend: CacheFile,
			Prefix:  AppName + ":",
		},
		Server: Server{
			Addr:     ":8080",
			TickRate: engine.DefaultTickRate,
			Scope:    "canvas/default",
		},
		Log: Log{Level: "info"},
	}
}

// CanvasSize returns the configured canvas extent.
func (c Config) CanvasSize() canvas.Size {
	return canvas.Size{Width: c.Canvas.Width, Height: c.Canvas.Height}
}

// Placement returns the position resolver options.
func (c Config) Placement() position.Options {
	return position.Options{
		BlockSize:      canvas.Size{Width: c.Canvas.BlockWidth, Height: c.Canvas.BlockHeight},
		Margin:         c.Canvas.Margin,
		Spacing:        c.Canvas.Spacing,
		SearchSpacing:  c.Canvas.SearchSpacing,
		SearchSteps:    c.Canvas.SearchSteps,
		FallbackOffset: c.Canvas.FallbackOffset,
		OrbitRadius:    c.Canvas.OrbitRadius,
	}
}

// Spring returns the motion integrator constants.
func (c Config) Spring() motion.Spring {
	return motion.Spring{
		Stiffness:    c.Motion.Stiffness,
		Damping:      c.Motion.Damping,
		SnapDistance: c.Motion.SnapDistance,
		MaxStep:      c.Motion.MaxStep,
		MaxSubsteps:  c.Motion.MaxSubsteps,
	}
}

// Render returns the connection rendering bounds.
func (c Config) Render() connections.Options {
	o := connections.DefaultOptions()
	o.MaxEdges = c.Connections.MaxEdges
	o.MinLength = c.Connections.MinLength
	o.MaxLength = c.Connections.MaxLength
	o.Padding = c.Connections.Padding
	return o
}

// Tracker returns the edge tracker options.
func (c Config) Tracker(logger *log.Logger, onUpdate func()) connections.TrackerOptions {
	return connections.TrackerOptions{
		Timeout:  c.Connections.QueryTimeout,
		Render:   c.Render(),
		OnUpdate: onUpdate,
		Logger:   logger,
	}
}

// ExpansionOptions returns the expansion coordinator options.
func (c Config) ExpansionOptions() expansion.Options {
	return expansion.Options{
		Delay:      c.Expansion.CollapseDelay,
		DimOpacity: c.Expansion.DimOpacity,
	}
}

// StoreOptions returns the options for [store.Open].
func (c Config) StoreOptions(logger *log.Logger) store.Options {
	return store.Options{
		Backend:      c.Store.Backend,
		DSN:          c.Store.DSN,
		Database:     c.Store.Database,
		PollInterval: c.Store.PollInterval,
		Logger:       logger,
	}
}

// Writes returns the background persistence options.
func (c Config) Writes() engine.WriteOptions {
	w := engine.WriteOptions{
		MaxConcurrent: c.Store.MaxConcurrent,
		Timeout:       c.Store.WriteTimeout,
	}
	if c.Store.Retry {
		w.Retry = &cache.RetryPolicy{Attempts: c.Store.RetryAttempts, Delay: c.Store.RetryDelay}
	}
	return w
}

// EngineOptions assembles the engine options around st and repo.
func (c Config) EngineOptions(st store.BlockStore, repo entity.Repository, logger *log.Logger) engine.Options {
	return engine.Options{
		Store:      st,
		Entities:   repo,
		Placement:  c.Placement(),
		Spring:     c.Spring(),
		CanvasSize: c.CanvasSize(),
		Writes:     c.Writes(),
		Logger:     logger,
	}
}

// CacheDir returns the file cache directory: cache.dir, or
// $XDG_CACHE_HOME/spatialcanvas.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	if home := os.Getenv("XDG_CACHE_HOME"); home != "" {
		return filepath.Join(home, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", AppName), nil
}

// OpenCache opens the configured byte cache. A file cache whose directory
// cannot be resolved degrades to the null cache.
func (c Config) OpenCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case CacheRedis:
		rc, err := cache.NewRedisCache(ctx, c.Cache.RedisURL, c.Cache.Prefix)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "open redis cache")
		}
		return rc, nil
	case CacheFile:
		dir, err := c.CacheDir()
		if err != nil {
			return cache.NewNullCache(), nil
		}
		return cache.NewFileCache(dir)
	default:
		return cache.NewNullCache(), nil
	}
}

// Keyer returns the cache keyer for scope, prefixed so canvases sharing a
// cache do not see each other's entries.
func (c Config) Keyer(scope canvas.Scope) cache.Keyer {
	return cache.NewScopedKeyer(cache.NewDefaultKeyer(), scope.Key()+":")
}
