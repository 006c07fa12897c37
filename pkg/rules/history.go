// accolade/pkg/rules/history.go

package rules

import (
	"context"
	"time"

	"rgehrsitz/accolade/pkg/cache"
	"rgehrsitz/accolade/pkg/logging"
)

// PreviousFunc returns a candidate's historical count straight from the
// archive, bypassing the cache.
type PreviousFunc func(ctx context.Context, candidate string) (int, error)

// Counter keeps a running count per badge and candidate. The first event
// seeds the entry from the archive; every later event increments it.
type Counter struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCounter(c cache.Cache) *Counter {
	return &Counter{cache: c, ttl: cache.CounterTTL}
}

// Cache returns the backing cache.
func (c *Counter) Cache() cache.Cache {
	return c.cache
}

// MessagesCount returns the candidate's count including the current event.
// Each event must be presented at most once per badge and candidate.
//
// Errors from previous are returned. Cache failures are logged and the
// count is computed without the cache.
func (c *Counter) MessagesCount(ctx context.Context, badgeID, candidate string, previous PreviousFunc) (int, error) {
	key := cache.MessagesCountKey(badgeID, candidate)

	var (
		seeded  bool
		seed    int
		seedErr error
	)
	value, err := c.cache.GetOrCreate(ctx, key, c.ttl, func() (int, error) {
		n, err := previous(ctx, candidate)
		if err != nil {
			seedErr = err
			return 0, err
		}
		seeded, seed = true, n-1
		return seed, nil
	})
	if seedErr != nil {
		return 0, seedErr
	}
	if err != nil {
		logging.LogError(logging.Logger.With().Str("badge_id", badgeID).Str("candidate", candidate).Logger(),
			logging.NewError(logging.ErrorTypeCache, "counter cache unavailable, counting without it", err, nil))
		if !seeded {
			n, err := previous(ctx, candidate)
			if err != nil {
				return 0, err
			}
			seed = n - 1
		}
		return seed + 1, nil
	}

	value++
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		logging.LogError(logging.Logger.With().Str("badge_id", badgeID).Str("candidate", candidate).Logger(),
			logging.NewError(logging.ErrorTypeCache, "could not store counter", err, map[string]interface{}{"value": value}))
	}
	return value, nil
}
