// Package cache provides the byte caches used in front of slow collaborators:
// relationship-graph edge queries and entity search.
//
// Three backends implement [Cache]: [NullCache] (caching disabled),
// [FileCache] (local CLI runs) and [RedisCache] (shared by API servers).
// Keys come from a [Keyer] so that different deployments can namespace them
// with [NewScopedKeyer].
//
// The package also carries the retry helpers used by callers that talk to
// remote services: wrap transient failures with [Retryable] and run the call
// through [RetryWithBackoff] or a custom [RetryPolicy].
package cache

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/spatialcanvas/pkg/observability"
)

// Cache stores opaque byte values with an optional TTL.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// EdgeKey identifies an edge query for a set of entity uuids. The order
	// of uuids does not matter.
	EdgeKey(uuids []string) string
	// SearchKey identifies an entity search.
	SearchKey(kind, query string, limit int) string
}

// DefaultKeyer hashes key components so keys have a fixed length.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// EdgeKey returns "edges:<sha256 of the sorted uuids>".
func (DefaultKeyer) EdgeKey(uuids []string) string {
	sorted := slices.Clone(uuids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return hashKey("edges", sorted)
}

// SearchKey returns "search:<sha256 of kind, query, limit>". The query is
// compared case-insensitively.
func (DefaultKeyer) SearchKey(kind, query string, limit int) string {
	return hashKey("search", kind, strings.ToLower(strings.TrimSpace(query)), limit)
}

// GetJSON reads key and decodes it into a T. Undecodable entries are
// reported as misses. keyType labels the observability events.
func GetJSON[T any](ctx context.Context, c Cache, keyType, key string) (T, bool) {
	var v T
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return v, false
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return v, true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, keyType, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
	return nil
}
