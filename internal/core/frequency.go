package core

import (
	"time"
)

// LegacyMinInterval is the gap the first releases of this tool enforced no
// matter which --frequency was given. FilterByFrequency honours the
// requested interval instead.
const LegacyMinInterval = 24 * time.Hour

// ParseTimestamp parses a full 14-digit capture timestamp as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil || len(s) != len(TimestampLayout) {
		return time.Time{}, &ParseError{Input: s, What: "timestamp", Err: err}
	}
	return t, nil
}

// DaysToDuration converts a possibly fractional number of days.
func DaysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}

// FilterByFrequency reduces an ascending list of capture timestamps so that
// consecutive retained entries are at least minIntervalDays apart. The first
// timestamp is always kept; every later one is compared with the last
// retained entry, so skipped entries never reset the clock.
func FilterByFrequency(timestamps []string, minIntervalDays float64) ([]string, error) {
	return filterByInterval(timestamps, DaysToDuration(minIntervalDays))
}

func filterByInterval(timestamps []string, gap time.Duration) ([]string, error) {
	if len(timestamps) == 0 {
		return []string{}, nil
	}

	last, err := ParseTimestamp(timestamps[0])
	if err != nil {
		return nil, err
	}
	out := []string{timestamps[0]}

	for _, s := range timestamps[1:] {
		current, err := ParseTimestamp(s)
		if err != nil {
			return nil, err
		}
		if current.Sub(last) >= gap {
			out = append(out, s)
			last = current
		}
	}
	return out, nil
}
