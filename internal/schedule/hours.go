package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Window is an open/close pair in minutes from midnight, inclusive on both
// ends.
type Window struct {
	OpenMinutes  int
	CloseMinutes int
}

// BusinessHours holds the per-weekday opening windows for one deployment.
// A weekday with no entry is closed.
type BusinessHours struct {
	windows  map[time.Weekday]Window
	location *time.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// weekdayOrder is the Mon-first cycle used for range expressions like
// "Mon-Fri" or "Sat-Sun".
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// ParseBusinessHours builds a BusinessHours from an hours expression such as
// "Mon-Fri=09:00-18:00,Sat=10:00-14:00" and an IANA timezone name.
func ParseBusinessHours(expr, tz string) (*BusinessHours, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("schedule: load business timezone: %w", err)
		}
	}

	windows := make(map[time.Weekday]Window)
	for _, entry := range strings.Split(expr, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		days, window, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("schedule: business hours entry %q missing '='", entry)
		}
		open, close, found := strings.Cut(window, "-")
		if !found {
			return nil, fmt.Errorf("schedule: business hours window %q missing '-'", window)
		}
		openMin, err := parseClockMinutes(open)
		if err != nil {
			return nil, fmt.Errorf("schedule: parse opening time in %q: %w", entry, err)
		}
		closeMin, err := parseClockMinutes(close)
		if err != nil {
			return nil, fmt.Errorf("schedule: parse closing time in %q: %w", entry, err)
		}
		if closeMin <= openMin {
			return nil, fmt.Errorf("schedule: window %q closes before it opens", entry)
		}
		expanded, err := expandDays(days)
		if err != nil {
			return nil, err
		}
		for _, day := range expanded {
			windows[day] = Window{OpenMinutes: openMin, CloseMinutes: closeMin}
		}
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("schedule: business hours %q has no open days", expr)
	}

	return &BusinessHours{windows: windows, location: loc}, nil
}

// Location returns the business timezone.
func (h *BusinessHours) Location() *time.Location {
	return h.location
}

// WindowFor returns the open window for a weekday, if the business opens
// that day.
func (h *BusinessHours) WindowFor(day time.Weekday) (Window, bool) {
	w, ok := h.windows[day]
	return w, ok
}

// Within reports whether the civil date/time falls on an open weekday and
// inside that day's window, inclusive of both bounds.
func (h *BusinessHours) Within(date, clock string) (bool, error) {
	day, err := time.ParseInLocation(DateLayout, date, h.location)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrBadDate, date)
	}
	minutes, err := parseClockMinutes(clock)
	if err != nil {
		return false, err
	}
	window, open := h.windows[day.Weekday()]
	if !open {
		return false, nil
	}
	return minutes >= window.OpenMinutes && minutes <= window.CloseMinutes, nil
}

func parseClockMinutes(v string) (int, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadClock, v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func expandDays(expr string) ([]time.Weekday, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if from, to, found := strings.Cut(expr, "-"); found {
		start, ok := weekdayNames[from]
		if !ok {
			return nil, fmt.Errorf("schedule: unknown weekday %q", from)
		}
		end, ok := weekdayNames[to]
		if !ok {
			return nil, fmt.Errorf("schedule: unknown weekday %q", to)
		}
		var days []time.Weekday
		collecting := false
		// Walk the Mon-first cycle twice so ranges may wrap (e.g. Sat-Sun).
		for i := 0; i < 2*len(weekdayOrder); i++ {
			day := weekdayOrder[i%len(weekdayOrder)]
			if day == start {
				collecting = true
			}
			if collecting {
				days = append(days, day)
				if day == end {
					return days, nil
				}
			}
		}
		return nil, fmt.Errorf("schedule: unresolvable weekday range %q", expr)
	}
	day, ok := weekdayNames[expr]
	if !ok {
		return nil, fmt.Errorf("schedule: unknown weekday %q", expr)
	}
	return []time.Weekday{day}, nil
}
