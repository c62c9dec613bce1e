package sync

import (
	"time"
)

// cursorLayouts are the timestamp layouts recognized for overlap arithmetic,
// tried in order. Tokens that match none of them are passed through verbatim.
var cursorLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// MaxCursor returns the larger of two cursor tokens. Tokens are compared
// lexicographically, which orders ISO-8601 timestamps chronologically.
// An empty token always loses.
func MaxCursor(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if b > a {
		return b
	}
	return a
}

// ApplyOverlap subtracts the overlap window from a timestamp cursor so that
// records which became visible late at the source are re-fetched (and
// re-applied idempotently) on the next run rather than missed.
//
// Non-timestamp tokens are returned unchanged: the overlap margin only makes
// sense for time-ordered cursors, and an opaque sequence token already has
// exact resumption semantics.
func ApplyOverlap(cursor string, overlap time.Duration) string {
	if cursor == "" || overlap <= 0 {
		return cursor
	}

	for _, layout := range cursorLayouts {
		ts, err := time.Parse(layout, cursor)
		if err != nil {
			continue
		}

		adjusted := ts.Add(-overlap)

		// Date-only cursors stay date-only when the overlap is in whole
		// days; otherwise the result needs sub-day precision.
		if layout == "2006-01-02" && overlap%(24*time.Hour) != 0 {
			layout = time.RFC3339
		}
		return adjusted.Format(layout)
	}

	return cursor
}
