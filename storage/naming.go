package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// StampLayout is the minute resolution stamp embedded in snapshot names.
const StampLayout = "200601021504"

const snapshotExt = ".parquet"

// SnapshotName returns "{prefix}_{YYYYMMDDHHMM}.parquet" for stamp in loc.
func SnapshotName(prefix string, stamp time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s_%s%s", prefix, stamp.In(loc).Format(StampLayout), snapshotExt)
}

// ParseSnapshotName extracts the stamp from a "{prefix}_{YYYYMMDDHHMM}.parquet"
// name. Other prefixes, other extensions and malformed stamps are rejected.
func ParseSnapshotName(name, prefix string, loc *time.Location) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return time.Time{}, false
	}
	stamp, ok := strings.CutSuffix(rest, snapshotExt)
	if !ok || len(stamp) != len(StampLayout) {
		return time.Time{}, false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}
	t, err := time.ParseInLocation(StampLayout, stamp, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LatestSnapshot picks the name with the greatest parsed stamp. Names that
// ParseSnapshotName rejects are ignored.
func LatestSnapshot(names []string, prefix string, loc *time.Location) (string, bool) {
	type candidate struct {
		name  string
		stamp time.Time
	}
	var cands []candidate
	for _, n := range names {
		if t, ok := ParseSnapshotName(n, prefix, loc); ok {
			cands = append(cands, candidate{name: n, stamp: t})
		}
	}
	if len(cands) == 0 {
		return "", false
	}
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].stamp.Before(cands[j].stamp)
	})
	return cands[len(cands)-1].name, true
}
