package domain

import "time"

// WeekBucket holds the change counts for one week of one repository.
type WeekBucket struct {
	Additions int `json:"a"`
	Deletions int `json:"d"`
}

// CacheEntry is the cached state of one repository. It is always replaced as a whole.
type CacheEntry struct {
	ETag        string               `json:"etag,omitempty"`
	Private     bool                 `json:"is_private"`
	Weeks       map[int64]WeekBucket `json:"weeks"`
	LastFetched time.Time            `json:"last_fetched"`
}

// Totals sums every week of the entry.
func (e CacheEntry) Totals() (additions, deletions int) {
	for _, b := range e.Weeks {
		additions += b.Additions
		deletions += b.Deletions
	}
	return additions, deletions
}

// Cache maps repository full names to their cached entries.
type Cache struct {
	Repos       map[string]CacheEntry `json:"repos"`
	LastUpdated time.Time             `json:"last_updated"`
}

// NewCache returns an empty cache.
func NewCache() Cache {
	return Cache{Repos: make(map[string]CacheEntry)}
}

// Clone returns a copy whose repository map can be mutated without touching c.
// Entries are shared; they are replaced, never modified in place.
func (c Cache) Clone() Cache {
	out := Cache{
		Repos:       make(map[string]CacheEntry, len(c.Repos)),
		LastUpdated: c.LastUpdated,
	}
	for name, entry := range c.Repos {
		out.Repos[name] = entry
	}
	return out
}

// BucketsFromWeeks converts source weeks into buckets keyed by week start.
// A later week with the same start replaces an earlier one.
func BucketsFromWeeks(weeks []Week) map[int64]WeekBucket {
	buckets := make(map[int64]WeekBucket, len(weeks))
	for _, w := range weeks {
		buckets[w.Start] = WeekBucket{Additions: w.Additions, Deletions: w.Deletions}
	}
	return buckets
}
