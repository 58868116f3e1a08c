package util

import (
    "strconv"
    "time"
)

// layouts accepted from upstream services, most specific first. The market
// service emits naive ISO timestamps (no zone) and daily candles as plain dates.
var layouts = []string{
    time.RFC3339Nano,
    time.RFC3339,
    "2006-01-02T15:04:05.999999",
    "2006-01-02T15:04:05",
    "2006-01-02 15:04:05",
    time.DateOnly,
}

// ParseTime tries the known layouts and unix seconds. Zone-less inputs are
// read as UTC. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
    if s == "" {
        return time.Time{}, false
    }
    for _, layout := range layouts {
        if t, err := time.Parse(layout, s); err == nil {
            return t, true
        }
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0).UTC(), true
    }
    return time.Time{}, false
}

