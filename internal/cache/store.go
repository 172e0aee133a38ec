// Package cache persists the per-repository statistics cache between runs.
package cache

import (
	"context"
	"errors"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

// ErrUnavailable means the persisted cache exists but could not be read right
// now. Saving over it would discard its entries.
var ErrUnavailable = errors.New("cache unavailable")

// Store loads and saves the whole cache. Load always returns a usable cache:
// a missing or corrupt one yields an empty cache and a nil error, a backend
// that cannot be read yields an empty cache and an error wrapping
// ErrUnavailable. Save replaces the previous state atomically.
type Store interface {
	Load(ctx context.Context) (domain.Cache, error)
	Save(ctx context.Context, c domain.Cache) error
}

// normalize guarantees non-nil maps after decoding.
func normalize(c domain.Cache) domain.Cache {
	if c.Repos == nil {
		c.Repos = make(map[string]domain.CacheEntry)
	}
	for name, entry := range c.Repos {
		if entry.Weeks == nil {
			entry.Weeks = make(map[int64]domain.WeekBucket)
			c.Repos[name] = entry
		}
	}
	return c
}
