package store

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Backend names accepted by [Open].
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Backends lists every supported backend name.
var Backends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendMongo}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// DSN is a file path for sqlite and a connection URL for the network
	// backends. Ignored for memory.
	DSN string
	// Database names the Mongo database.
	Database     string
	PollInterval time.Duration
	Logger       *log.Logger
}

// Open connects to the configured backend. The result implements
// [ChangeFeed] for every backend.
func Open(ctx context.Context, opts Options) (BlockStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend != BackendMemory && backend != "" && opts.DSN == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "store backend %q needs a dsn", backend)
	}

	switch backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendSQLite:
		db, err := OpenSQLite(opts.DSN)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "open sqlite")
		}
		s, err := NewSQL(ctx, db, DialectSQLite, SQLOptions{PollInterval: opts.PollInterval, Logger: opts.Logger})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case BackendPostgres:
		db, err := OpenPostgres(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		s, err := NewSQL(ctx, db, DialectPostgres, SQLOptions{PollInterval: opts.PollInterval, Logger: opts.Logger})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	case BackendRedis:
		return OpenRedis(ctx, opts.DSN, opts.Logger)
	case BackendMongo:
		return OpenMongo(ctx, opts.DSN, opts.Database)
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown store backend %q (want one of %s)",
			opts.Backend, strings.Join(Backends, ", "))
	}
}
