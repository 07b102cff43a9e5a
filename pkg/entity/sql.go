package entity

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/connections"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
	"github.com/matzehuels/spatialcanvas/pkg/store"
)

//go:embed migrations
var migrations embed.FS

// SQL is a repository over the entities and entity_links tables. It shares
// the database, dialect and migration runner of the SQL block store.
type SQL struct {
	db      *sql.DB
	dialect store.Dialect

	mu       sync.Mutex
	next     int
	watchers map[int]func([]string)
}

// NewSQL applies the entity schema and returns the repository. The caller
// owns db.
func NewSQL(ctx context.Context, db *sql.DB, d store.Dialect) (*SQL, error) {
	dir := "migrations/sqlite"
	if d == store.DialectPostgres {
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrations, dir)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, d, sub); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "migrate entity repository")
	}
	return &SQL{db: db, dialect: d, watchers: map[int]func([]string){}}, nil
}

const entityColumns = `id, uuid, kind, title, body, created_at`

// Search implements [Repository].
func (r *SQL) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	pattern := "%" + likeEscape(strings.ToLower(strings.TrimSpace(query))) + "%"
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT `+entityColumns+` FROM entities
		WHERE (? = '' OR kind = ?)
		  AND (LOWER(title) LIKE ? ESCAPE '\' OR LOWER(body) LIKE ? ESCAPE '\')
		ORDER BY id LIMIT ?`),
		string(kind), string(kind), pattern, pattern, normalizeLimit(limit))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "search entities")
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create implements [Repository].
func (r *SQL) Create(ctx context.Context, kind canvas.EntityKind, title, body string) (Entity, error) {
	e := Entity{
		Ref:       canvas.EntityRef{Kind: kind, UUID: uuid.NewString()},
		Title:     title,
		Body:      body,
		CreatedAt: time.Now(),
	}
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`
		INSERT INTO entities (uuid, kind, title, body, created_at) VALUES (?, ?, ?, ?, ?)
		RETURNING id`), e.Ref.UUID, string(kind), title, body, e.CreatedAt.UnixNano()).Scan(&e.Ref.ID)
	if err != nil {
		return Entity{}, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "create %s entity", kind)
	}
	return e, nil
}

// Fetch implements [Repository].
func (r *SQL) Fetch(ctx context.Context, key string) (Entity, error) {
	id, uid, numeric := parseKey(key)
	var row *sql.Row
	if numeric {
		row = r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+entityColumns+` FROM entities WHERE id = ?`), id)
	} else {
		row = r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+entityColumns+` FROM entities WHERE uuid = ?`), uid)
	}
	e, err := scanEntity(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Entity{}, errors.New(errors.ErrCodeEntityNotFound, "entity %q not found", key)
	}
	if err != nil {
		return Entity{}, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "fetch entity %q", key)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (Entity, error) {
	var (
		e       Entity
		kind    string
		created int64
	)
	if err := row.Scan(&e.Ref.ID, &e.Ref.UUID, &kind, &e.Title, &e.Body, &created); err != nil {
		return Entity{}, err
	}
	e.Ref.Kind = canvas.EntityKind(kind)
	e.CreatedAt = time.Unix(0, created)
	return e, nil
}

func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Link implements [Linker]. Linking an existing pair and kind updates the
// weight.
func (r *SQL) Link(ctx context.Context, edge canvas.Edge) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO entity_links (source, target, kind, weight) VALUES (?, ?, ?, ?)
		ON CONFLICT (source, target, kind) DO UPDATE SET weight = excluded.weight`),
		edge.Source, edge.Target, edge.Kind, edge.Weight)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "link %s", edge.Key())
	}
	r.notify(edge.Source, edge.Target)
	return nil
}

// Unlink implements [Linker]. Both directions of the pair are removed.
func (r *SQL) Unlink(ctx context.Context, edge canvas.Edge) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		DELETE FROM entity_links
		WHERE kind = ? AND ((source = ? AND target = ?) OR (source = ? AND target = ?))`),
		edge.Kind, edge.Source, edge.Target, edge.Target, edge.Source)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "unlink %s", edge.Key())
	}
	r.notify(edge.Source, edge.Target)
	return nil
}

// EdgesForNodes implements [connections.EdgeSource]. It returns every link
// with at least one endpoint in uuids.
func (r *SQL) EdgesForNodes(ctx context.Context, uuids []string) ([]canvas.Edge, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	in := strings.TrimSuffix(strings.Repeat("?, ", len(uuids)), ", ")
	args := make([]any, 0, 2*len(uuids))
	for range 2 {
		for _, u := range uuids {
			args = append(args, u)
		}
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(fmt.Sprintf(`
		SELECT source, target, kind, weight FROM entity_links
		WHERE source IN (%s) OR target IN (%s)
		ORDER BY source, target, kind`, in, in)), args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "query edges for %d nodes", len(uuids))
	}
	defer rows.Close()

	var out []canvas.Edge
	for rows.Next() {
		var e canvas.Edge
		if err := rows.Scan(&e.Source, &e.Target, &e.Kind, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WatchEdges implements [connections.Watcher] for links written through
// this repository.
func (r *SQL) WatchEdges(fn func([]string)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next
	r.next++
	r.watchers[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
	}
}

func (r *SQL) notify(uuids ...string) {
	r.mu.Lock()
	fns := make([]func([]string), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(uuids)
	}
}

var (
	_ Repository             = (*SQL)(nil)
	_ Linker                 = (*SQL)(nil)
	_ connections.EdgeSource = (*SQL)(nil)
	_ connections.Watcher    = (*SQL)(nil)
)
