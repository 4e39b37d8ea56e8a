package model

import "time"

// CacheEntry is the metadata row of the content-addressed result cache.
// Key is a pure function of (feature, normalized payload): two
// semantically identical requests hash identically regardless of field
// order or submission time.
type CacheEntry struct {
	Key            string
	ResultLocation string
	Provider       string
	ContentType    string
	SizeBytes      int64
	CostCents      int64
	HitCount       int64
	ExpiresAt      time.Time
	LastAccessAt   time.Time
	CreatedAt      time.Time
}

// Expired reports whether the entry must be treated as a miss.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
