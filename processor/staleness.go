package processor

import (
	"time"

	"cryptolens/models"
)

// LatestUpdate returns the greatest non-zero timestamp. ok is false when
// there is none.
func LatestUpdate(timestamps []time.Time) (latest time.Time, ok bool) {
	for _, ts := range timestamps {
		if ts.IsZero() {
			continue
		}
		if !ok || ts.After(latest) {
			latest = ts
			ok = true
		}
	}
	return latest, ok
}

// IsStale reports whether the newest timestamp is strictly older than
// threshold at now. A collection without timestamps is stale.
func IsStale(timestamps []time.Time, threshold time.Duration, now time.Time) bool {
	latest, ok := LatestUpdate(timestamps)
	if !ok {
		return true
	}
	return now.Sub(latest) > threshold
}

func coinTimestamps(coins []models.CoinRecord) []time.Time {
	out := make([]time.Time, 0, 2*len(coins))
	for _, c := range coins {
		out = append(out, c.UpdateTimes()...)
	}
	return out
}

func categoryTimestamps(categories []models.Category) []time.Time {
	out := make([]time.Time, 0, len(categories))
	for _, c := range categories {
		out = append(out, c.UpdateTimes()...)
	}
	return out
}

// NeedsRefresh decides whether the cached snapshots must be rebuilt. A
// missing or empty snapshot always triggers a refresh; otherwise both the
// coin and the category snapshot have to be stale.
func NeedsRefresh(coins []models.CoinRecord, categories []models.Category, threshold time.Duration, now time.Time) bool {
	if len(coins) == 0 || len(categories) == 0 {
		return true
	}
	return IsStale(coinTimestamps(coins), threshold, now) &&
		IsStale(categoryTimestamps(categories), threshold, now)
}
