// Package calendar models a weekly working schedule in a fixed timezone.
// It backs business-hours SLA deadlines and chat operating hours.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

// maxScanDays bounds the forward walk when adding working time.
const maxScanDays = 3660

const dateLayout = "2006-01-02"

// Window is an opening window in minutes after local midnight.
type Window struct {
	Start int
	End   int
}

// Calendar is a weekly schedule with optional holiday dates.
type Calendar struct {
	loc      *time.Location
	days     map[time.Weekday]Window
	holidays map[string]struct{}
}

// New builds a calendar. Windows must have End > Start.
func New(timezone string, days map[time.Weekday]Window, holidays []string) (*Calendar, error) {
	loc := time.UTC
	if strings.TrimSpace(timezone) != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	c := &Calendar{
		loc:      loc,
		days:     make(map[time.Weekday]Window, len(days)),
		holidays: make(map[string]struct{}, len(holidays)),
	}
	for day, w := range days {
		if w.Start < 0 || w.End > 24*60 || w.End <= w.Start {
			return nil, fmt.Errorf("invalid window for %s: %d-%d", day, w.Start, w.End)
		}
		c.days[day] = w
	}
	for _, h := range holidays {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[h] = struct{}{}
	}
	return c, nil
}

// Weekly builds a calendar with the same window on each listed weekday.
func Weekly(timezone string, weekdays []string, start, end string, holidays []string) (*Calendar, error) {
	w, err := ParseWindow(start, end)
	if err != nil {
		return nil, err
	}
	days := make(map[time.Weekday]Window, len(weekdays))
	for _, name := range weekdays {
		if strings.TrimSpace(name) == "" {
			continue
		}
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days[day] = w
	}
	return New(timezone, days, holidays)
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// HasWorkingTime reports whether any weekday is open.
func (c *Calendar) HasWorkingTime() bool {
	return len(c.days) > 0
}

// IsOpen reports whether t falls inside the day's window. Both ends are
// inclusive at minute granularity.
func (c *Calendar) IsOpen(t time.Time) bool {
	local := t.In(c.loc)
	w, ok := c.windowFor(local)
	if !ok {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= w.Start && minute <= w.End
}

// AddWorkingDuration returns the instant at which d of working time has
// elapsed after start. A calendar with no working days adds wall-clock time.
func (c *Calendar) AddWorkingDuration(start time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return start
	}
	if !c.HasWorkingTime() {
		return start.Add(d)
	}
	remaining := d
	t := start.In(c.loc)
	for i := 0; i < maxScanDays; i++ {
		if w, ok := c.windowFor(t); ok {
			open := at(t, w.Start, c.loc)
			closing := at(t, w.End, c.loc)
			if t.Before(open) {
				t = open
			}
			if t.Before(closing) {
				available := closing.Sub(t)
				if remaining <= available {
					return t.Add(remaining)
				}
				remaining -= available
			}
		}
		t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc)
	}
	// every scanned day was a holiday
	return start.Add(d)
}

func (c *Calendar) windowFor(local time.Time) (Window, bool) {
	if _, holiday := c.holidays[local.Format(dateLayout)]; holiday {
		return Window{}, false
	}
	w, ok := c.days[local.Weekday()]
	return w, ok
}

func at(day time.Time, minutes int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc)
}

// ParseClock parses "HH:MM" into minutes after midnight. "24:00" is accepted as end of day.
func ParseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", value)
	}
	return h*60 + m, nil
}

// ParseWindow parses a start/end pair of "HH:MM" values.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return time.Sunday, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}

// FromOperatingHours builds a calendar from a chat channel schedule keyed by weekday name.
func FromOperatingHours(hours domain.OperatingHours) (*Calendar, error) {
	days := make(map[time.Weekday]Window, len(hours.Schedule))
	for name, r := range hours.Schedule {
		day, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		w, err := ParseWindow(r.Start, r.End)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		days[day] = w
	}
	return New(hours.Timezone, days, nil)
}
