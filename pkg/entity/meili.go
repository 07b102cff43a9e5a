package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	meili "github.com/meilisearch/meilisearch-go"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// DefaultIndex is the Meilisearch index holding entities.
const DefaultIndex = "canvas_entities"

// document is the indexed form of an entity.
type document struct {
	UUID      string `json:"uuid"`
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// Indexed wraps a repository with a Meilisearch index. Search goes to the
// index while it is healthy and to the inner repository otherwise. Create
// indexes the new entity; indexing failures are logged, not returned.
type Indexed struct {
	Repository
	client  meili.ServiceManager
	index   string
	logger  *log.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewIndexed connects to Meilisearch at url and configures the index. The
// repository is usable even when the first health check fails; a
// background loop re-checks health every interval.
func NewIndexed(inner Repository, url, apiKey string, interval time.Duration, logger *log.Logger) *Indexed {
	return newIndexed(inner, meili.New(url, meili.WithAPIKey(apiKey)), interval, logger)
}

func newIndexed(inner Repository, client meili.ServiceManager, interval time.Duration, logger *log.Logger) *Indexed {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	x := &Indexed{Repository: inner, client: client, index: DefaultIndex, logger: logger, done: make(chan struct{})}
	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable, searching the repository directly", "err", err)
	} else {
		x.healthy.Store(true)
		x.configure()
	}
	go x.healthLoop(interval)
	return x
}

func (x *Indexed) configure() {
	if _, err := x.client.CreateIndex(&meili.IndexConfig{Uid: x.index, PrimaryKey: "uuid"}); err != nil {
		x.logger.Debug("create index (may already exist)", "index", x.index, "err", err)
	}
	idx := x.client.Index(x.index)
	filterable := []interface{}{"kind"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		x.logger.Warn("update filterable attributes", "index", x.index, "err", err)
	}
	searchable := []string{"title", "body"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		x.logger.Warn("update searchable attributes", "index", x.index, "err", err)
	}
	sortable := []string{"id"}
	if _, err := idx.UpdateSortableAttributes(&sortable); err != nil {
		x.logger.Warn("update sortable attributes", "index", x.index, "err", err)
	}
}

func (x *Indexed) healthLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-x.done:
			return
		case <-ticker.C:
			_, err := x.client.Health()
			was := x.healthy.Load()
			x.healthy.Store(err == nil)
			if err == nil && !was {
				x.logger.Info("meilisearch recovered, reconfiguring index")
				x.configure()
			}
		}
	}
}

// Healthy reports whether searches currently go to the index.
func (x *Indexed) Healthy() bool { return x.healthy.Load() }

// Close stops the health loop. The inner repository is not closed.
func (x *Indexed) Close() { close(x.done) }

// Search implements [Repository].
func (x *Indexed) Search(ctx context.Context, query string, kind canvas.EntityKind, limit int) ([]Entity, error) {
	if !x.healthy.Load() {
		return x.Repository.Search(ctx, query, kind, limit)
	}
	req := &meili.SearchRequest{Limit: int64(normalizeLimit(limit)), Sort: []string{"id:asc"}}
	if kind != "" {
		req.Filter = fmt.Sprintf("kind = %q", string(kind))
	}
	resp, err := x.client.Index(x.index).Search(query, req)
	if err != nil {
		x.healthy.Store(false)
		x.logger.Warn("meilisearch search failed, falling back", "err", err)
		return x.Repository.Search(ctx, query, kind, limit)
	}

	out := make([]Entity, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		out = append(out, hitToEntity(hit))
	}
	return out, nil
}

// Create implements [Repository].
func (x *Indexed) Create(ctx context.Context, kind canvas.EntityKind, title, body string) (Entity, error) {
	e, err := x.Repository.Create(ctx, kind, title, body)
	if err != nil {
		return Entity{}, err
	}
	if err := x.Index(e); err != nil {
		x.logger.Warn("index entity failed", "uuid", e.Ref.UUID, "err", err)
	}
	return e, nil
}

// Index adds or replaces entities in the search index.
func (x *Indexed) Index(entities ...Entity) error {
	if len(entities) == 0 || !x.healthy.Load() {
		return nil
	}
	docs := make([]document, len(entities))
	for i, e := range entities {
		docs[i] = document{
			UUID:      e.Ref.UUID,
			ID:        e.Ref.ID,
			Kind:      string(e.Ref.Kind),
			Title:     e.Title,
			Body:      e.Body,
			CreatedAt: e.CreatedAt.UnixNano(),
		}
	}
	_, err := x.client.Index(x.index).AddDocuments(docs, nil)
	return err
}

func hitToEntity(hit meili.Hit) Entity {
	var e Entity
	e.Ref.UUID = decodeString(hit, "uuid")
	e.Ref.Kind = canvas.EntityKind(decodeString(hit, "kind"))
	e.Title = decodeString(hit, "title")
	e.Body = decodeString(hit, "body")
	e.Ref.ID = decodeInt(hit, "id")
	if ns := decodeInt(hit, "created_at"); ns != 0 {
		e.CreatedAt = time.Unix(0, ns)
	}
	return e
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var _ Repository = (*Indexed)(nil)
