// Package schedule translates the backend's job timing fields into cron
// expressions for next-run previews and human summaries. The backend is the
// source of truth for actual next_run stamps, this package only fills the
// gap between a create or edit and the first poll that reports one.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/umputun/syncview/app/backend"
)

// Kind is a recognized job schedule type.
type Kind string

// schedule kinds matching the backend's job type strings
const (
	Interval Kind = "interval"
	Daily    Kind = "daily"
	Weekly   Kind = "weekly"
	Monthly  Kind = "monthly"
	Yearly   Kind = "yearly"
)

// Kinds lists the recognized kinds in form display order.
func Kinds() []Kind {
	return []Kind{Interval, Daily, Weekly, Monthly, Yearly}
}

// ParseKind validates a job type string. Unknown types are an error, the
// caller decides how to render them.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Interval, Daily, Weekly, Monthly, Yearly:
		return k, nil
	}
	return "", fmt.Errorf("unknown schedule kind %q", s)
}

// Spec describes when a job fires. Zero or empty fields fall back to the
// same defaults the backend applies on create, interval 15, time 02:00.
type Spec struct {
	Kind     Kind
	Interval int    // minutes, interval kind only
	Time     string // "HH:MM" for calendar kinds
	Day      string // weekday name for weekly, day of month for monthly
	Date     string // "YYYY-MM-DD" for yearly
}

// FromJob builds a Spec from a backend job record. The error reports an
// unknown type, the remaining fields are still mapped for display.
func FromJob(j backend.Job) (Spec, error) {
	spec := Spec{
		Interval: int(j.Interval),
		Time:     j.Time,
		Day:      string(j.Day),
		Date:     j.Date,
	}
	kind, err := ParseKind(j.Type)
	if err != nil {
		return spec, err
	}
	spec.Kind = kind
	return spec, nil
}

// Cron renders the spec as an expression accepted by cron.ParseStandard.
// Interval kinds use the @every descriptor, calendar kinds a 5-field spec.
func (s Spec) Cron() (string, error) {
	if s.Kind == Interval {
		return "@every " + (time.Duration(s.minutes()) * time.Minute).String(), nil
	}

	hour, minute, err := s.clock()
	if err != nil {
		return "", err
	}

	switch s.Kind {
	case Daily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case Weekly:
		dow, err := parseWeekday(s.Day)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, dow), nil
	case Monthly:
		dom, err := s.monthDay()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, dom), nil
	case Yearly:
		anchor, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			return "", fmt.Errorf("invalid yearly date %q: %w", s.Date, err)
		}
		return fmt.Sprintf("%d %d %d %d *", minute, hour, anchor.Day(), int(anchor.Month())), nil
	}
	return "", fmt.Errorf("unknown schedule kind %q", s.Kind)
}

// Next computes the first occurrence after now. Months without the
// requested day of month are skipped rather than clamped.
func (s Spec) Next(now time.Time) (time.Time, error) {
	expr, err := s.Cron()
	if err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q: %w", expr, err)
	}
	return sched.Next(now), nil
}

// Summary renders a short human description, "every 15m", "daily at 02:00",
// "weekly on Friday at 18:30". Unusable fields degrade to "not scheduled".
func (s Spec) Summary() string {
	switch s.Kind {
	case Interval:
		return "every " + humanMinutes(s.minutes())
	case Daily:
		return "daily at " + s.clockString()
	case Weekly:
		dow, err := parseWeekday(s.Day)
		if err != nil {
			return "not scheduled"
		}
		return fmt.Sprintf("weekly on %s at %s", time.Weekday(dow), s.clockString())
	case Monthly:
		dom, err := s.monthDay()
		if err != nil {
			return "not scheduled"
		}
		return fmt.Sprintf("monthly on day %d at %s", dom, s.clockString())
	case Yearly:
		anchor, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			return "not scheduled"
		}
		return fmt.Sprintf("yearly on %s at %s", anchor.Format("2 Jan"), s.clockString())
	}
	return "not scheduled"
}

func (s Spec) minutes() int {
	if s.Interval <= 0 {
		return 15
	}
	return s.Interval
}

func (s Spec) clock() (hour, minute int, err error) {
	str := s.Time
	if str == "" {
		str = "02:00"
	}
	ts, err := time.Parse("15:04", str)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s.Time, err)
	}
	return ts.Hour(), ts.Minute(), nil
}

func (s Spec) clockString() string {
	hour, minute, err := s.clock()
	if err != nil {
		return "invalid time"
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func (s Spec) monthDay() (int, error) {
	str := s.Day
	if str == "" {
		str = "1"
	}
	dom, err := strconv.Atoi(str)
	if err != nil || dom < 1 || dom > 31 {
		return 0, fmt.Errorf("invalid day of month %q", s.Day)
	}
	return dom, nil
}

// humanMinutes formats a minute count as "15m", "1h" or "1h30m".
func humanMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	if m%60 == 0 {
		return fmt.Sprintf("%dh", m/60)
	}
	return fmt.Sprintf("%dh%dm", m/60, m%60)
}

// parseWeekday accepts full names, 3-letter abbreviations and 0-6 numbers,
// case-insensitive. Empty defaults to Monday to match the create form.
func parseWeekday(s string) (int, error) {
	str := strings.ToLower(strings.TrimSpace(s))
	if str == "" {
		return 1, nil
	}
	if n, err := strconv.Atoi(str); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday number %d out of range", n)
		}
		return n, nil
	}
	names := map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}
	if len(str) >= 3 {
		if n, ok := names[str[:3]]; ok {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
