package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Default Mongo names.
const (
	DefaultMongoDatabase   = "spatialcanvas"
	DefaultMongoCollection = "canvas_blocks"
)

// mongoDoc is the stored document: the record plus the kind of the last
// write, which the change stream needs to tell moves from edits.
type mongoDoc struct {
	Record `bson:",inline"`
	LastOp string `bson:"last_op"`
}

// Mongo is a [BlockStore] backed by one MongoDB collection. Its
// [ChangeFeed] uses change streams, which need a replica set.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
	origin string
}

// OpenMongo connects to uri and pings the server. An empty database uses
// DefaultMongoDatabase.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "ping mongo")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	coll := client.Database(database).Collection(DefaultMongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "scope", Value: 1}, {Key: "deleted", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "create scope index")
	}
	return &Mongo{client: client, coll: coll, origin: uuid.NewString()}, nil
}

// FetchAll implements [BlockStore].
func (s *Mongo) FetchAll(ctx context.Context, scope canvas.Scope) ([]Record, error) {
	cur, err := s.coll.Find(ctx, bson.M{"scope": scope.Key(), "deleted": false})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "fetch blocks for %s", scope)
	}
	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "decode blocks for %s", scope)
	}
	out := make([]Record, len(docs))
	for i, d := range docs {
		out[i] = d.Record
	}
	return out, nil
}

// Upsert implements [BlockStore].
func (s *Mongo) Upsert(ctx context.Context, rec Record) error {
	rec.Deleted = false
	rec.UpdatedAt = time.Now().UTC()
	rec.Origin = s.origin
	doc := mongoDoc{Record: rec, LastOp: string(ChangeUpsert)}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "upsert block %s", rec.ID)
	}
	return nil
}

// MarkDeleted implements [BlockStore].
func (s *Mongo) MarkDeleted(ctx context.Context, id string) error {
	return s.set(ctx, id, ChangeDelete, bson.M{"deleted": true})
}

// UpdatePosition implements [BlockStore].
func (s *Mongo) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	return s.set(ctx, id, ChangePosition, bson.M{"x": x, "y": y})
}

func (s *Mongo) set(ctx context.Context, id string, op ChangeKind, fields bson.M) error {
	fields["last_op"] = string(op)
	fields["origin"] = s.origin
	fields["updated_at"] = time.Now().UTC()
	if _, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": fields}); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "%s block %s", op, id)
	}
	return nil
}

// Subscribe implements [ChangeFeed] with a change stream filtered to scope
// and to writes from other handles.
func (s *Mongo) Subscribe(ctx context.Context, scope canvas.Scope) (<-chan ChangeEvent, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.D{
		{Key: "fullDocument.scope", Value: scope.Key()},
		{Key: "fullDocument.origin", Value: bson.D{{Key: "$ne", Value: s.origin}}},
	}}}}
	cs, err := s.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnsupported, err, "watch %s", scope)
	}

	ch := make(chan ChangeEvent, feedBuffer)
	go func() {
		defer close(ch)
		defer cs.Close(context.Background())
		for cs.Next(ctx) {
			var change struct {
				FullDocument *mongoDoc `bson:"fullDocument"`
			}
			if err := cs.Decode(&change); err != nil || change.FullDocument == nil {
				continue
			}
			ev := eventFor(change.FullDocument.Record, change.FullDocument.LastOp)
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close implements [BlockStore].
func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var (
	_ BlockStore = (*Mongo)(nil)
	_ ChangeFeed = (*Mongo)(nil)
)
