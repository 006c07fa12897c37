// accolade/pkg/cache/cache.go

// Package cache stores the running per-badge, per-identity counters.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CounterTTL keeps a counter for a year after its last write.
const CounterTTL = 365 * 24 * time.Hour

var ErrNotFound = errors.New("cache key not found")

// SeedFunc computes the initial value of a missing key.
type SeedFunc func() (int, error)

type Cache interface {
	// GetOrCreate returns the stored value, or stores and returns the result
	// of seed when the key is missing. When two writers race on a missing
	// key the first stored value wins. Seed errors are returned unchanged.
	GetOrCreate(ctx context.Context, key string, ttl time.Duration, seed SeedFunc) (int, error)
	Set(ctx context.Context, key string, value int, ttl time.Duration) error
	Get(ctx context.Context, key string) (int, error)
	Close() error
}

// Inspector is implemented by caches that can list and drop keys.
type Inspector interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// CounterPrefix starts every counter key.
const CounterPrefix = "messages_count|"

// MessagesCountKey is the counter key for one badge and identity.
func MessagesCountKey(badgeID, candidate string) string {
	return fmt.Sprintf("%s%s|%s", CounterPrefix, badgeID, candidate)
}
