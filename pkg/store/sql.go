package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/ncruces/go-sqlite3/vfs/memdb"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Dialect selects placeholder syntax and driver for [SQL].
type Dialect string

// Supported SQL dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Rebind rewrites ? placeholders to $1, $2, ... for Postgres. Queries must
// not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OpenSQLite opens a SQLite database file, creating its directory. The path
// ":memory:" opens a private in-memory database that lives until the pool
// is closed.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	var dsn string
	if dbPath == ":memory:" {
		dsn = fmt.Sprintf("file:/%s.db?vfs=memdb&_pragma=busy_timeout=5000", uuid.NewString())
	} else {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", dbPath)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens and pings a Postgres pool through pgx.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "ping postgres")
	}
	return db, nil
}

// DefaultPollInterval is how often the SQL change feed looks for new rows.
const DefaultPollInterval = time.Second

// SQLOptions configures a [SQL] store.
type SQLOptions struct {
	// PollInterval of the change feed. Zero uses DefaultPollInterval.
	PollInterval time.Duration
	Logger       *log.Logger
}

// SQL is a [BlockStore] over database/sql, shared by the SQLite and
// Postgres backends. Its change feed polls for rows written by other
// handles since the subscription started.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	origin  string
	poll    time.Duration
	logger  *log.Logger
}

// NewSQL applies the schema migrations and returns the store. The store
// owns db and closes it on Close.
func NewSQL(ctx context.Context, db *sql.DB, d Dialect, opts SQLOptions) (*SQL, error) {
	if err := ApplyMigrations(ctx, db, d, Migrations()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "migrate block store")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &SQL{db: db, dialect: d, origin: uuid.NewString(), poll: opts.PollInterval, logger: opts.Logger}, nil
}

// DB exposes the underlying pool so related repositories can share it.
func (s *SQL) DB() *sql.DB { return s.db }

// Dialect returns the store's SQL dialect.
func (s *SQL) Dialect() Dialect { return s.dialect }

const blockColumns = `id, scope, x, y, width, height, scale, rotation, z_index, pinned,
	entity_kind, entity_id, entity_uuid, title, subtitle, metadata, deleted, last_op, origin, updated_at`

// FetchAll implements [BlockStore].
func (s *SQL) FetchAll(ctx context.Context, scope canvas.Scope) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`SELECT `+blockColumns+`
		FROM canvas_blocks WHERE scope = ? AND deleted = 0`), scope.Key())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "fetch blocks for %s", scope)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, _, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert implements [BlockStore].
func (s *SQL) Upsert(ctx context.Context, rec Record) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if rec.Metadata == nil {
		meta = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO canvas_blocks (`+blockColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 'upsert', ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			scope = excluded.scope, x = excluded.x, y = excluded.y,
			width = excluded.width, height = excluded.height,
			scale = excluded.scale, rotation = excluded.rotation,
			z_index = excluded.z_index, pinned = excluded.pinned,
			entity_kind = excluded.entity_kind, entity_id = excluded.entity_id,
			entity_uuid = excluded.entity_uuid, title = excluded.title,
			subtitle = excluded.subtitle, metadata = excluded.metadata,
			deleted = 0, last_op = 'upsert', origin = excluded.origin,
			updated_at = excluded.updated_at`),
		rec.ID, rec.Scope, rec.X, rec.Y, rec.Width, rec.Height, rec.Scale, rec.Rotation,
		rec.ZIndex, boolInt(rec.Pinned), rec.EntityKind, rec.EntityID, rec.EntityUUID,
		rec.Title, rec.Subtitle, string(meta), s.origin, time.Now().UnixNano())
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "upsert block %s", rec.ID)
	}
	return nil
}

// MarkDeleted implements [BlockStore].
func (s *SQL) MarkDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE canvas_blocks SET deleted = 1, last_op = 'delete', origin = ?, updated_at = ?
		WHERE id = ?`), s.origin, time.Now().UnixNano(), id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "delete block %s", id)
	}
	return nil
}

// UpdatePosition implements [BlockStore].
func (s *SQL) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE canvas_blocks SET x = ?, y = ?, last_op = 'position', origin = ?, updated_at = ?
		WHERE id = ?`), x, y, s.origin, time.Now().UnixNano(), id)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "update position of %s", id)
	}
	return nil
}

// Subscribe implements [ChangeFeed] by polling. Only rows written after the
// call by other handles are reported. The channel closes when ctx is done.
func (s *SQL) Subscribe(ctx context.Context, scope canvas.Scope) (<-chan ChangeEvent, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COALESCE(MAX(updated_at), 0) FROM canvas_blocks WHERE scope = ?`), scope.Key()).Scan(&cursor)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "start change feed for %s", scope)
	}

	ch := make(chan ChangeEvent, feedBuffer)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			next, err := s.pollOnce(ctx, scope, cursor, ch)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("change feed poll failed", "scope", scope.Key(), "err", err)
				continue
			}
			cursor = next
		}
	}()
	return ch, nil
}

// pollOnce emits rows newer than cursor and returns the new cursor.
func (s *SQL) pollOnce(ctx context.Context, scope canvas.Scope, cursor int64, ch chan<- ChangeEvent) (int64, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`SELECT `+blockColumns+`
		FROM canvas_blocks WHERE scope = ? AND updated_at > ? ORDER BY updated_at`), scope.Key(), cursor)
	if err != nil {
		return cursor, err
	}
	defer rows.Close()

	var events []ChangeEvent
	for rows.Next() {
		rec, op, err := scanRecord(rows)
		if err != nil {
			return cursor, err
		}
		if n := rec.UpdatedAt.UnixNano(); n > cursor {
			cursor = n
		}
		if rec.Origin == s.origin {
			continue
		}
		events = append(events, eventFor(rec, op))
	}
	if err := rows.Err(); err != nil {
		return cursor, err
	}

	for _, ev := range events {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return cursor, ctx.Err()
		}
	}
	return cursor, nil
}

func eventFor(rec Record, op string) ChangeEvent {
	switch {
	case rec.Deleted:
		return ChangeEvent{Kind: ChangeDelete, ID: rec.ID, Origin: rec.Origin}
	case op == string(ChangePosition):
		return ChangeEvent{Kind: ChangePosition, ID: rec.ID, X: rec.X, Y: rec.Y, Origin: rec.Origin}
	default:
		r := rec
		return ChangeEvent{Kind: ChangeUpsert, ID: rec.ID, Record: &r, Origin: rec.Origin}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, string, error) {
	var (
		rec             Record
		pinned, deleted int
		meta, op        string
		updated         int64
	)
	err := row.Scan(&rec.ID, &rec.Scope, &rec.X, &rec.Y, &rec.Width, &rec.Height, &rec.Scale, &rec.Rotation,
		&rec.ZIndex, &pinned, &rec.EntityKind, &rec.EntityID, &rec.EntityUUID, &rec.Title, &rec.Subtitle,
		&meta, &deleted, &op, &rec.Origin, &updated)
	if err != nil {
		return Record{}, "", fmt.Errorf("scan block: %w", err)
	}
	rec.Pinned = pinned != 0
	rec.Deleted = deleted != 0
	rec.UpdatedAt = time.Unix(0, updated)
	if meta != "" && meta != "{}" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return Record{}, "", fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
		}
	}
	return rec, op, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close implements [BlockStore].
func (s *SQL) Close() error { return s.db.Close() }

var (
	_ BlockStore = (*SQL)(nil)
	_ ChangeFeed = (*SQL)(nil)
)
