package common

import "time"

// Freshness TTLs for derived data
const (
	// FreshnessUniverse bounds how long a computed metrics snapshot is served before
	// it is rebuilt from storage. Pipeline writes invalidate it earlier.
	FreshnessUniverse = 2 * time.Minute
)

// IsFresh returns true if the given timestamp is within the TTL as of now
func IsFresh(updated, now time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return now.Sub(updated) < ttl
}
