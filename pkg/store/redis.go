package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Redis key layout:
//
//	canvas:block:<id>        JSON record
//	canvas:scope:<scope>     set of live block ids
//	canvas:changes:<scope>   pub/sub channel of ChangeEvent JSON
const (
	redisBlockPrefix   = "canvas:block:"
	redisScopePrefix   = "canvas:scope:"
	redisChannelPrefix = "canvas:changes:"
)

// Redis is a [BlockStore] and [ChangeFeed] backed by Redis.
type Redis struct {
	client *redis.Client
	origin string
	logger *log.Logger

	// afterRead runs between the read and the commit of modify.
	afterRead func(id string)
}

// OpenRedis connects to url (redis://...) and pings it.
func OpenRedis(ctx context.Context, url string, logger *log.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "ping redis")
	}
	return NewRedis(client, logger), nil
}

// NewRedis wraps an existing client. Closing the store closes the client.
func NewRedis(client *redis.Client, logger *log.Logger) *Redis {
	if logger == nil {
		logger = log.Default()
	}
	return &Redis{client: client, origin: uuid.NewString(), logger: logger}
}

// FetchAll implements [BlockStore].
func (s *Redis) FetchAll(ctx context.Context, scope canvas.Scope) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, redisScopePrefix+scope.Key()).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "list blocks for %s", scope)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisBlockPrefix + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "fetch blocks for %s", scope)
	}

	out := make([]Record, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping undecodable block", "id", ids[i], "err", err)
			continue
		}
		if !rec.Deleted {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Upsert implements [BlockStore].
func (s *Redis) Upsert(ctx context.Context, rec Record) error {
	rec.Deleted = false
	rec.UpdatedAt = time.Now()
	rec.Origin = s.origin
	if err := s.put(ctx, rec, true); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "upsert block %s", rec.ID)
	}
	cp := rec
	return s.publish(ctx, rec.Scope, ChangeEvent{Kind: ChangeUpsert, ID: rec.ID, Record: &cp, Origin: s.origin})
}

// MarkDeleted implements [BlockStore].
func (s *Redis) MarkDeleted(ctx context.Context, id string) error {
	rec, ok, err := s.modify(ctx, id, func(rec *Record) bool {
		rec.Deleted = true
		return false
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "delete block %s", id)
	}
	if !ok {
		return nil
	}
	return s.publish(ctx, rec.Scope, ChangeEvent{Kind: ChangeDelete, ID: id, Origin: s.origin})
}

// UpdatePosition implements [BlockStore].
func (s *Redis) UpdatePosition(ctx context.Context, id string, x, y float64) error {
	rec, ok, err := s.modify(ctx, id, func(rec *Record) bool {
		rec.X, rec.Y = x, y
		return !rec.Deleted
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, err, "update position of %s", id)
	}
	if !ok || rec.Deleted {
		return nil
	}
	return s.publish(ctx, rec.Scope, ChangeEvent{Kind: ChangePosition, ID: id, X: x, Y: y, Origin: s.origin})
}

// redisMaxRetries bounds how often modify restarts after a concurrent write
// to the same block.
const redisMaxRetries = 8

// modify applies fn to the stored record under WATCH, so a write by a peer
// between the read and the commit restarts the update instead of being
// overwritten. fn reports whether the block stays in its scope set.
func (s *Redis) modify(ctx context.Context, id string, fn func(*Record) bool) (Record, bool, error) {
	key := redisBlockPrefix + id
	var (
		rec   Record
		found bool
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		rec = Record{}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode block %s: %w", id, err)
		}
		found = true
		if s.afterRead != nil {
			s.afterRead(id)
		}

		live := fn(&rec)
		rec.UpdatedAt = time.Now()
		rec.Origin = s.origin
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, out, 0)
			if live {
				p.SAdd(ctx, redisScopePrefix+rec.Scope, id)
			} else {
				p.SRem(ctx, redisScopePrefix+rec.Scope, id)
			}
			return nil
		})
		return err
	}

	for range redisMaxRetries {
		err := s.client.Watch(ctx, txf, key)
		if stderrors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("block changed during update, retrying", "id", id)
			continue
		}
		return rec, found, err
	}
	return Record{}, false, fmt.Errorf("block %s: %w", id, redis.TxFailedErr)
}

// put writes the record and its scope membership in one transaction.
func (s *Redis) put(ctx context.Context, rec Record, live bool) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisBlockPrefix+rec.ID, data, 0)
		if live {
			p.SAdd(ctx, redisScopePrefix+rec.Scope, rec.ID)
		} else {
			p.SRem(ctx, redisScopePrefix+rec.Scope, rec.ID)
		}
		return nil
	})
	return err
}

func (s *Redis) publish(ctx context.Context, scope string, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, redisChannelPrefix+scope, data).Err(); err != nil {
		// The write itself landed; peers resync on their next load.
		s.logger.Warn("publish change failed", "scope", scope, "id", ev.ID, "err", err)
	}
	return nil
}

// Subscribe implements [ChangeFeed] over Redis pub/sub.
func (s *Redis) Subscribe(ctx context.Context, scope canvas.Scope) (<-chan ChangeEvent, error) {
	ps := s.client.Subscribe(ctx, redisChannelPrefix+scope.Key())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, err, "subscribe to %s", scope)
	}

	ch := make(chan ChangeEvent, feedBuffer)
	msgs := ps.Channel()
	go func() {
		defer close(ch)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("dropping undecodable change", "err", err)
					continue
				}
				if ev.Origin == s.origin {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close implements [BlockStore].
func (s *Redis) Close() error { return s.client.Close() }

var (
	_ BlockStore = (*Redis)(nil)
	_ ChangeFeed = (*Redis)(nil)
)
