package export

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts accepted inside the leading bracketed token, in order of
// preference. The short forms carry no date and are combined with the last
// seen date header.
const (
	layoutFull  = "2006-01-02 15:04:05"
	layout12h   = "3:04 PM"
	layout24h   = "15:04"
	layoutDate  = "2006-01-02"
	dateHeaderL = "---- "
	dateHeaderR = " ----"
)

// parseDateHeader parses a `---- YYYY-MM-DD ----` line. Returns the zero time
// when the line is not a date header.
func parseDateHeader(line string) (time.Time, bool) {
	if !strings.HasPrefix(line, dateHeaderL) || !strings.HasSuffix(line, dateHeaderR) {
		return time.Time{}, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(line, dateHeaderL), dateHeaderR)
	d, err := time.Parse(layoutDate, strings.TrimSpace(inner))
	if err != nil {
		return time.Time{}, false
	}
	return d.UTC(), true
}

// parseTimestamp parses the contents of a leading bracketed token. The
// authoritative form carries its own date; the clock-only forms borrow the
// date from the last date header. All results are UTC.
func parseTimestamp(token string, date time.Time) (time.Time, error) {
	token = strings.TrimSpace(token)

	if full, ok := strings.CutSuffix(token, " UTC"); ok {
		ts, err := time.Parse(layoutFull, full)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", token)
		}
		return ts.UTC(), nil
	}
	// Some exports omit the UTC suffix on full timestamps.
	if ts, err := time.Parse(layoutFull, token); err == nil {
		return ts.UTC(), nil
	}

	if clock, err := time.Parse(layout12h, strings.ToUpper(token)); err == nil {
		if date.IsZero() {
			return time.Time{}, fmt.Errorf("clock-only timestamp %q before any date header", token)
		}
		return combineClock(date, clock), nil
	}
	if clock, err := time.Parse(layout24h, token); err == nil {
		if date.IsZero() {
			return time.Time{}, fmt.Errorf("clock-only timestamp %q before any date header", token)
		}
		return combineClock(date, clock), nil
	}

	return time.Time{}, fmt.Errorf("invalid timestamp %q", token)
}

func combineClock(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
}
