package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical civil date format spoken between the AI agent
// and this service.
const DateLayout = "2006-01-02"

// ClockLayout is the canonical 24-hour wall-clock format.
const ClockLayout = "15:04"

var (
	// ErrBadDate is returned when a date string matches no known layout.
	ErrBadDate = errors.New("schedule: unrecognized date format")

	// ErrBadClock is returned when a time string matches no known layout.
	ErrBadClock = errors.New("schedule: unrecognized time format")
)

// dateLayouts are tried in order by NormalizeDate. Day-first layouts are
// deliberately absent: "02-01-2006" is ambiguous against US month-first input.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
}

// clockLayouts are tried in order by NormalizeClock.
var clockLayouts = []string{
	"15:04",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15.04",
}

// LocalToUTC interprets a civil date and wall-clock time in the given
// location and returns the equivalent UTC instant.
func LocalToUTC(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrBadDate, date, clock)
	}
	return t.UTC(), nil
}

// UTCToLocal maps an instant back to the civil date and clock strings a
// caller would speak, in the given location.
func UTCToLocal(t time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format(DateLayout), local.Format(ClockLayout)
}

// EndTime returns start plus the given whole-minute duration.
func EndTime(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// IsPast reports whether the localized civil date/time is strictly before now.
func IsPast(date, clock string, loc *time.Location, now time.Time) (bool, error) {
	instant, err := LocalToUTC(date, clock, loc)
	if err != nil {
		return false, err
	}
	return instant.Before(now.UTC()), nil
}

// NormalizeDate converts free-text date input from the AI agent into the
// canonical YYYY-MM-DD form. Relative words resolve against now in loc.
func NormalizeDate(raw string, loc *time.Location, now time.Time) (string, error) {
	if loc == nil {
		loc = time.UTC
	}
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "today":
		return now.In(loc).Format(DateLayout), nil
	case "tomorrow":
		return now.In(loc).AddDate(0, 0, 1).Format(DateLayout), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrBadDate, raw)
}

// NormalizeClock converts free-text time input into canonical 24-hour HH:MM.
func NormalizeClock(raw string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(ClockLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrBadClock, raw)
}
