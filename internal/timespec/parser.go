// Package timespec parses the time arguments accepted by rollback and
// history commands.
package timespec

import (
	"fmt"
	"time"
)

// Parse parses a time specification into a point in time.
// Supports two formats:
//   - Go duration format: "1h", "30m", "1h30m" (that long ago, relative to now)
//   - RFC3339 timestamps: "2026-09-01T13:00:00Z"
func Parse(spec string, now time.Time) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("duration must be positive: %s", spec)
		}
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-09-01T13:00:00Z')", spec)
}

// HoursAgo converts a time specification into hours before now.
func HoursAgo(spec string, now time.Time) (float64, error) {
	t, err := Parse(spec, now)
	if err != nil {
		return 0, err
	}
	hours := now.Sub(t).Hours()
	if hours <= 0 {
		return 0, fmt.Errorf("time specification must be in the past: %s", spec)
	}
	return hours, nil
}
