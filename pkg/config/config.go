// Package config loads the canvas configuration.
//
// Configuration comes from three layers, later ones winning: built-in
// defaults ([Default]), an optional TOML file, and CANVAS_* environment
// variables. The typed sections map onto the option structs of the
// components they configure, so callers never copy fields by hand:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    return err
//	}
//	eng, err := engine.New(ctx, scope, cfg.EngineOptions(st, repo, logger))
package config

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

// AppName names the config and cache directories.
const AppName = "spatialcanvas"

// Cache backends.
const (
	CacheNull  = "null"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config is the full configuration.
type Config struct {
	Canvas      Canvas      `toml:"canvas"`
	Motion      Motion      `toml:"motion"`
	Connections Connections `toml:"connections"`
	Expansion   Expansion   `toml:"expansion"`
	Store       Store       `toml:"store"`
	Search      Search      `toml:"search"`
	Cache       Cache       `toml:"cache"`
	Server      Server      `toml:"server"`
	Log         Log         `toml:"log"`
}

// Canvas holds the placement constants.
type Canvas struct {
	Width          float64 `toml:"width"`
	Height         float64 `toml:"height"`
	BlockWidth     float64 `toml:"block_width"`
	BlockHeight    float64 `toml:"block_height"`
	Margin         float64 `toml:"margin"`
	Spacing        float64 `toml:"spacing"`
	SearchSpacing  float64 `toml:"search_spacing"`
	SearchSteps    int     `toml:"search_steps"`
	FallbackOffset float64 `toml:"fallback_offset"`
	OrbitRadius    float64 `toml:"orbit_radius"`
}

// Motion holds the spring constants.
type Motion struct {
	Stiffness    float64 `toml:"stiffness"`
	Damping      float64 `toml:"damping"`
	SnapDistance float64 `toml:"snap_distance"`
	MaxStep      float64 `toml:"max_step"`
	MaxSubsteps  int     `toml:"max_substeps"`
}

// Connections bounds the connection renderer.
type Connections struct {
	MaxEdges     int           `toml:"max_edges"`
	MinLength    float64       `toml:"min_length"`
	MaxLength    float64       `toml:"max_length"`
	Padding      float64       `toml:"padding"`
	QueryTimeout time.Duration `toml:"query_timeout"`
	CacheTTL     time.Duration `toml:"cache_ttl"`
}

// Expansion configures the expansion coordinator.
type Expansion struct {
	CollapseDelay time.Duration `toml:"collapse_delay"`
	DimOpacity    float64       `toml:"dim_opacity"`
}

// Store selects the block store and tunes background writes.
type Store struct {
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
	// Database names the Mongo database.
	Database      string        `toml:"database"`
	PollInterval  time.Duration `toml:"poll_interval"`
	Retry         bool          `toml:"retry"`
	RetryAttempts int           `toml:"retry_attempts"`
	RetryDelay    time.Duration `toml:"retry_delay"`
	MaxConcurrent int           `toml:"max_concurrent_writes"`
	WriteTimeout  time.Duration `toml:"write_timeout"`
}

// Search configures the Meilisearch entity index. An empty URL disables it.
type Search struct {
	MeiliURL       string        `toml:"meili_url"`
	MeiliKey       string        `toml:"meili_key"`
	HealthInterval time.Duration `toml:"health_interval"`
	CacheTTL       time.Duration `toml:"cache_ttl"`
}

// Cache selects the byte cache in front of edge queries and searches.
type Cache struct {
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir"`
	RedisURL string `toml:"redis_url"`
	Prefix   string `toml:"prefix"`
}

// Server configures the HTTP API.
type Server struct {
	Addr     string        `toml:"addr"`
	TickRate time.Duration `toml:"tick_rate"`
	// Scope is the default canvas scope key, e.g. "project/1".
	Scope string `toml:"scope"`
}

// Log configures the logger.
type Log struct {
	Level string `toml:"level"`
}

// Path returns the default config file path
// ($XDG_CONFIG_HOME/spatialcanvas/config.toml).
func Path() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, AppName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName, "config.toml"), nil
}

// Load builds the configuration from defaults, the TOML file at path and
// the environment. An empty path reads the default path if it exists; an
// explicit path must exist. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := Path(); err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := cfg.decodeFile(path); err != nil {
				return Config{}, err
			}
		}
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults without reading the environment.
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if err := undecoded(md); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	return undecoded(md)
}

// undecoded rejects unknown keys, which are almost always typos.
func undecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(names, ", "))
}

// Environment variables read by [Load].
const (
	EnvStore    = "CANVAS_STORE"
	EnvStoreDSN = "CANVAS_STORE_DSN"
	EnvAddr     = "CANVAS_ADDR"
	EnvMeiliURL = "CANVAS_MEILI_URL"
	EnvMeiliKey = "CANVAS_MEILI_KEY"
	EnvRedisURL = "CANVAS_REDIS_URL"
	EnvLogLevel = "CANVAS_LOG_LEVEL"
)

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Store.Backend, EnvStore)
	set(&c.Store.DSN, EnvStoreDSN)
	set(&c.Server.Addr, EnvAddr)
	set(&c.Search.MeiliURL, EnvMeiliURL)
	set(&c.Search.MeiliKey, EnvMeiliKey)
	set(&c.Log.Level, EnvLogLevel)
	if v := strings.TrimSpace(getenv(EnvRedisURL)); v != "" {
		c.Cache.RedisURL = v
		if c.Cache.Backend == CacheFile {
			c.Cache.Backend = CacheRedis
		}
	}
}

// Validate reports the first invalid setting as an INVALID_CONFIG error.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return errors.New(errors.ErrCodeInvalidConfig, format, args...)
	}
	switch {
	case c.Canvas.Width <= 0 || c.Canvas.Height <= 0:
		return bad("canvas size must be positive, got %vx%v", c.Canvas.Width, c.Canvas.Height)
	case c.Canvas.BlockWidth <= 0 || c.Canvas.BlockHeight <= 0:
		return bad("block size must be positive, got %vx%v", c.Canvas.BlockWidth, c.Canvas.BlockHeight)
	case c.Canvas.Spacing < 0 || c.Canvas.Margin < 0:
		return bad("spacing and margin must not be negative")
	case c.Motion.Stiffness <= 0:
		return bad("motion.stiffness must be positive, got %v", c.Motion.Stiffness)
	case c.Motion.Damping <= 0 || c.Motion.Damping > 1:
		return bad("motion.damping must be in (0, 1], got %v", c.Motion.Damping)
	case c.Motion.SnapDistance <= 0:
		return bad("motion.snap_distance must be positive, got %v", c.Motion.SnapDistance)
	case c.Connections.MaxEdges <= 0:
		return bad("connections.max_edges must be positive, got %d", c.Connections.MaxEdges)
	case c.Connections.MinLength < 0 || c.Connections.MaxLength <= c.Connections.MinLength:
		return bad("connections length bounds [%v, %v] are invalid", c.Connections.MinLength, c.Connections.MaxLength)
	case c.Expansion.CollapseDelay < 0:
		return bad("expansion.collapse_delay must not be negative")
	case c.Server.TickRate <= 0:
		return bad("server.tick_rate must be positive")
	}

	backend := strings.ToLower(c.Store.Backend)
	if !slices.Contains(store.Backends, backend) {
		return bad("unknown store backend %q (want one of %s)", c.Store.Backend, strings.Join(store.Backends, ", "))
	}
	if backend != store.BackendMemory && c.Store.DSN == "" {
		return bad("store backend %q needs store.dsn", backend)
	}
	if c.Store.Retry && c.Store.RetryAttempts < 1 {
		return bad("store.retry_attempts must be at least 1")
	}

	switch c.Cache.Backend {
	case CacheNull, CacheFile:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return bad("cache backend redis needs cache.redis_url")
		}
	default:
		return bad("unknown cache backend %q", c.Cache.Backend)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return bad("log.level: %v", err)
	}
	return nil
}

// LogLevel returns the parsed log level. Invalid levels yield info.
func (c Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
