// Package normalizer holds the pure transforms applied to provider records
// before they are merged: symbol descaling, list cleanup, percentage scaling
// and timestamp conversion.
package normalizer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the zone every persisted or displayed timestamp uses.
const DefaultTimezone = "Asia/Tokyo"

const (
	UnitMillis = "ms"
	UnitISO    = "iso"
)

// multiplierRun matches "1" followed by one or more "0"s, e.g. the 1000 in
// 1000PEPE. Every occurrence is removed, not only a leading one.
var multiplierRun = regexp.MustCompile(`10+`)

// DescaleSymbol strips contract multiplier digit runs and lowercases the
// result so Bybit base coins line up with CoinGecko symbols.
func DescaleSymbol(text string) string {
	return strings.ToLower(multiplierRun.ReplaceAllString(text, ""))
}

// CleanList drops empty and whitespace-only entries and trims the rest.
// Order is preserved and the result is never nil.
func CleanList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// TrimPtr trims an optional string. Blank values become nil.
func TrimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ScalePercentage converts a 0-100 percentage into a fraction.
func ScalePercentage(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value / 100
	return &v
}

// Missing reports whether v is nil or not a finite number.
func Missing(v *float64) bool {
	return v == nil || math.IsNaN(*v) || math.IsInf(*v, 0)
}

// LoadLocation resolves a zone name from the embedded tz database. An empty
// name selects DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// EpochMillisToLocal converts a millisecond epoch into loc, truncated to
// whole seconds.
func EpochMillisToLocal(ms int64, loc *time.Location) time.Time {
	return time.UnixMilli(ms).In(loc).Truncate(time.Second)
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ISOToLocal parses an ISO-8601 timestamp into loc, truncated to whole
// seconds. Values without an offset are read as UTC.
func ISOToLocal(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.In(loc).Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ToLocalTime converts either a millisecond epoch (unit "ms") or an ISO-8601
// string (unit "iso") into loc.
func ToLocalTime(raw string, unit string, loc *time.Location) (time.Time, error) {
	switch unit {
	case UnitMillis:
		ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse epoch millis %q: %w", raw, err)
		}
		return EpochMillisToLocal(ms, loc), nil
	case UnitISO:
		return ISOToLocal(raw, loc)
	default:
		return time.Time{}, fmt.Errorf("unsupported time unit %q", unit)
	}
}

// OptionalISO converts an optional ISO timestamp. Blank or unparseable values
// yield nil.
func OptionalISO(raw *string, loc *time.Location) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	t, err := ISOToLocal(*raw, loc)
	if err != nil {
		return nil
	}
	return &t
}

// Naive drops the zone while keeping the wall clock reading, the form
// spreadsheet cells can hold.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
