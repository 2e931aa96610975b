// Package interval encodes event schedules into the date_interval text column
// of task_log. Stored rows look like
//
//	[2024-05-01T09:00:00.000Z,2024-05-01T10:30:00.000Z]
//
// and existing data must keep decoding, so the format is fixed.
package interval

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the bound format: ISO-8601, millisecond precision, UTC.
const Layout = "2006-01-02T15:04:05.000Z"

var ErrMalformedInterval = errors.New("malformed date interval")

// Accepted bound layouts when decoding. Rows written by the web client use
// Layout; rows that went through a Postgres range cast use the space form.
var decodeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05Z07",
}

// Encode packs start and end into the inclusive interval text.
func Encode(start, end time.Time) string {
	return "[" + start.UTC().Format(Layout) + "," + end.UTC().Format(Layout) + "]"
}

// Decode splits interval text on the first top-level comma and strips the
// bracket characters of either bound kind.
func Decode(s string) (start, end time.Time, err error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrMalformedInterval, s)
	}
	if !strings.ContainsRune("[(", rune(s[0])) || !strings.ContainsRune("])", rune(s[len(s)-1])) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: missing brackets in %q", ErrMalformedInterval, s)
	}
	body := s[1 : len(s)-1]

	comma := topLevelComma(body)
	if comma < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: no separator in %q", ErrMalformedInterval, s)
	}

	start, err = parseBound(body[:comma])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err = parseBound(body[comma+1:])
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// topLevelComma returns the index of the first comma outside double quotes.
func topLevelComma(s string) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func parseBound(s string) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty bound", ErrMalformedInterval)
	}
	for _, layout := range decodeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad bound %q", ErrMalformedInterval, s)
}

// CreationTime returns the wall-clock HH:MM:SS of start in UTC, the value
// stored in event_creation_time.
func CreationTime(start time.Time) string {
	return start.UTC().Format("15:04:05")
}
