package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/config"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/engine"
	"github.com/matzehuels/spatialcanvas/pkg/entity"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the binary name used in help and completion scripts.
	appName = "canvas"

	// frameRate is the simulated frame interval used to settle animations
	// in one-shot commands.
	frameRate = time.Second / 60

	// maxSettleFrames bounds settle; a spring that has not converged by
	// then is snapped to its target.
	maxSettleFrames = 2000

	// shutdownTimeout bounds the final flush of queued writes.
	shutdownTimeout = 10 * time.Second
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Persistent flags.
	configPath string
	scope      string
	backend    string
	dsn        string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the config file and applies the persistent flags on top.
func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.backend != "" {
		cfg.Store.Backend = c.backend
	}
	if c.dsn != "" {
		cfg.Store.DSN = c.dsn
	}
	if c.scope != "" {
		cfg.Server.Scope = c.scope
	}
	if c.noCache {
		cfg.Cache.Backend = config.CacheNull
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// =============================================================================
// Workspace
// =============================================================================

// workspace is everything a command needs to work on one canvas: the
// store, the entity repository and its edge source, and an engine loaded
// with the blocks of the scope.
type workspace struct {
	cfg    config.Config
	scope  canvas.Scope
	store  store.BlockStore
	repo   entity.Repository
	edges  connections.EdgeSource
	cache  cache.Cache
	engine *engine.Engine
	logger *log.Logger

	closers []func()
}

// openWorkspace opens the configured backends and loads the canvas.
func (c *CLI) openWorkspace(ctx context.Context) (*workspace, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	scope, err := canvas.ParseScope(cfg.Server.Scope)
	if err != nil {
		return nil, err
	}
	logger := loggerFromContext(ctx)
	ws := &workspace{cfg: cfg, scope: scope, logger: logger}

	ws.store, err = store.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	ws.onClose(func() { _ = ws.store.Close() })

	ws.cache, err = cfg.OpenCache(ctx)
	if err != nil {
		logger.Warn("cache unavailable, continuing without", "backend", cfg.Cache.Backend, "err", err)
		ws.cache = cache.NewNullCache()
	}
	ws.onClose(func() { _ = ws.cache.Close() })

	if err := ws.openRepository(ctx); err != nil {
		ws.close()
		return nil, err
	}

	ws.engine, err = engine.New(ctx, scope, cfg.EngineOptions(ws.store, ws.repo, logger))
	if err != nil {
		ws.close()
		return nil, err
	}
	ws.onClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = ws.engine.Close(ctx)
	})
	if err := ws.engine.Load(ctx); err != nil {
		ws.close()
		return nil, fmt.Errorf("load %s: %w", scope, err)
	}
	logger.Debug("canvas loaded", "scope", scope, "blocks", ws.engine.Len(), "store", cfg.Store.Backend)
	return ws, nil
}

// openRepository picks the entity repository: the SQL repository when the
// block store is SQL so both share one database, otherwise an in-memory
// one. A configured Meilisearch index and the byte cache wrap it.
func (ws *workspace) openRepository(ctx context.Context) error {
	var base interface {
		entity.Repository
		connections.EdgeSource
	}
	if s, ok := ws.store.(*store.SQL); ok {
		repo, err := entity.NewSQL(ctx, s.DB(), s.Dialect())
		if err != nil {
			return err
		}
		base = repo
	} else {
		base = entity.NewMemory()
	}

	var repo entity.Repository = base
	if ws.cfg.Search.MeiliURL != "" {
		idx := entity.NewIndexed(base, ws.cfg.Search.MeiliURL, ws.cfg.Search.MeiliKey, ws.cfg.Search.HealthInterval, ws.logger)
		ws.onClose(idx.Close)
		repo = idx
	}
	ws.repo = entity.NewCached(repo, ws.cache, ws.cfg.Keyer(ws.scope), ws.cfg.Search.CacheTTL)

	src := connections.NewCachedSource(base, ws.cache, ws.cfg.Keyer(ws.scope), ws.cfg.Connections.CacheTTL)
	ws.onClose(src.Close)
	ws.edges = src
	return nil
}

func (ws *workspace) onClose(fn func()) { ws.closers = append(ws.closers, fn) }

func (ws *workspace) close() {
	for i := len(ws.closers) - 1; i >= 0; i-- {
		ws.closers[i]()
	}
	ws.closers = nil
}

// settle runs simulated frames until no block is animating, binding
// entities created in the background along the way.
func (ws *workspace) settle(ctx context.Context) error {
	if err := ws.engine.Flush(ctx); err != nil {
		return err
	}
	dt := frameRate.Seconds()
	ws.engine.Tick(0)
	for i := 0; i < maxSettleFrames && ws.engine.Animating(); i++ {
		ws.engine.Tick(dt)
	}
	for _, b := range ws.engine.Blocks() {
		if b.Animating() {
			if err := ws.engine.UpdateBlockPosition(b.ID, *b.Target); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close settles, flushes every queued write and releases the backends.
func (ws *workspace) Close(ctx context.Context) error {
	defer ws.close()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := ws.settle(ctx); err != nil {
		return err
	}
	if err := ws.engine.Close(ctx); err != nil {
		return err
	}
	if st := ws.engine.WriteStats(); st.Failed > 0 {
		printWarning("%d writes failed, see the log for details", st.Failed)
	}
	return nil
}

// tracker creates a connection tracker over the workspace edge source.
func (ws *workspace) tracker(ctx context.Context, onUpdate func()) *connections.Tracker {
	return connections.NewTracker(ctx, ws.edges, ws.cfg.Tracker(ws.logger, onUpdate))
}

// lines queries the edges between the current blocks once and renders
// them.
func (ws *workspace) lines(ctx context.Context) ([]connections.Line, error) {
	t := ws.tracker(ctx, nil)
	defer t.Close()
	blocks := ws.engine.Blocks()
	t.Update(blocks)
	t.Wait()
	if err := t.Err(); err != nil {
		return nil, err
	}
	return t.Lines(blocks), nil
}
