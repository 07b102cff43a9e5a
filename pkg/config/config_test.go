package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/cache"
	"github.com/matzehuels/spatialcanvas/pkg/canvas/motion"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Spring() != motion.Default() {
		t.Errorf("Spring() = %+v, want motion defaults", cfg.Spring())
	}
	if cfg.Writes().Retry != nil {
		t.Error("retry enabled by default")
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
[canvas]
width = 1600
spacing = 24

[motion]
stiffness = 12.5

[expansion]
collapse_delay = "400ms"

[store]
backend = "sqlite"
dsn = "/tmp/canvas.db"
retry = true
retry_attempts = 5
retry_delay = "250ms"

[log]
level = "debug"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Canvas.Width != 1600 || cfg.Canvas.Height != 800 {
		t.Errorf("canvas = %vx%v, want 1600x800", cfg.Canvas.Width, cfg.Canvas.Height)
	}
	if cfg.Placement().Spacing != 24 || cfg.Spring().Stiffness != 12.5 {
		t.Errorf("placement spacing %v, stiffness %v", cfg.Placement().Spacing, cfg.Spring().Stiffness)
	}
	if cfg.ExpansionOptions().Delay != 400*time.Millisecond {
		t.Errorf("collapse delay = %v", cfg.ExpansionOptions().Delay)
	}
	w := cfg.Writes()
	if w.Retry == nil || w.Retry.Attempts != 5 || w.Retry.Delay != 250*time.Millisecond {
		t.Errorf("retry = %+v", w.Retry)
	}
	if so := cfg.StoreOptions(nil); so.Backend != "sqlite" || so.DSN != "/tmp/canvas.db" {
		t.Errorf("store options = %+v", so)
	}
	if cfg.LogLevel() != log.DebugLevel {
		t.Errorf("LogLevel = %v", cfg.LogLevel())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want string
	}{
		{"syntax", `[canvas`, "parse config"},
		{"unknown key", "[canvas]\nwidht = 3", "canvas.widht"},
		{"bad backend", "[store]\nbackend = \"etcd\"", "unknown store backend"},
		{"missing dsn", "[store]\nbackend = \"postgres\"", "needs store.dsn"},
		{"damping", "[motion]\ndamping = 1.5", "damping"},
		{"lengths", "[connections]\nmin_length = 500\nmax_length = 100", "length bounds"},
		{"redis cache", "[cache]\nbackend = \"redis\"", "redis_url"},
		{"log level", "[log]\nlevel = \"loud\"", "log.level"},
		{"tick rate", "[server]\ntick_rate = \"0s\"", "tick_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			if !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("error = %v, want INVALID_CONFIG", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\naddr = \":9000\"\n[store]\nbackend = \"sqlite\"\ndsn = \"a.db\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvStoreDSN, "b.db")
	t.Setenv(EnvMeiliURL, "http://meili:7700")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q, want file value", cfg.Server.Addr)
	}
	if cfg.Store.DSN != "b.db" {
		t.Errorf("dsn = %q, want env override", cfg.Store.DSN)
	}
	if cfg.Search.MeiliURL != "http://meili:7700" {
		t.Errorf("meili url = %q", cfg.Search.MeiliURL)
	}
	if cfg.Cache.Backend != CacheRedis || cfg.Cache.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("cache = %+v, want redis from env", cfg.Cache)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("explicit missing file: error = %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") without a default file: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("backend = %q, want memory", cfg.Store.Backend)
	}
}

func TestEnvOverridesAreValidated(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvStore, "mongo")
	if _, err := Load(""); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("mongo without dsn: error = %v, want INVALID_CONFIG", err)
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	cfg := Default()
	cfg.Cache.Backend = CacheNull
	c, err := cfg.OpenCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(cache.NullCache); !ok {
		t.Errorf("null backend opened %T", c)
	}

	cfg.Cache.Backend = CacheFile
	cfg.Cache.Dir = t.TempDir()
	c, err = cfg.OpenCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if fc, ok := c.(*cache.FileCache); !ok || fc.Dir() != cfg.Cache.Dir {
		t.Errorf("file backend opened %T", c)
	}

	mr := miniredis.RunT(t)
	cfg.Cache.Backend = CacheRedis
	cfg.Cache.RedisURL = "redis://" + mr.Addr()
	c, err = cfg.OpenCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(AppName + ":k") {
		t.Errorf("redis keys = %v, want prefixed key", mr.Keys())
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	if err := Default().Encode(&buf); err != nil {
		t.Fatal(err)
	}
	for _, section := range []string{"[canvas]", "[motion]", "[store]", "[server]"} {
		if !strings.Contains(buf.String(), section) {
			t.Errorf("encoded config lacks %s", section)
		}
	}
}
