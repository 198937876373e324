package aggregation

import (
	"fmt"
	"time"
)

// Interval is a time bucket size
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// ParseInterval accepts the known names; an empty string means hour
func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(s); iv {
	case "":
		return IntervalHour, nil
	case IntervalMinute, IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return iv, nil
	default:
		return "", &RuleError{Field: "interval", Reason: fmt.Sprintf("unknown interval %q", s)}
	}
}

// Duration returns the nominal bucket length. Months count as 30 days and
// unknown intervals as one hour.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case IntervalMinute:
		return time.Minute
	case IntervalHour:
		return time.Hour
	case IntervalDay:
		return 24 * time.Hour
	case IntervalWeek:
		return 7 * 24 * time.Hour
	case IntervalMonth:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// Truncate returns the start of the bucket containing t in loc.
// Weeks start on Monday; months are calendar months.
func (iv Interval) Truncate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	switch iv {
	case IntervalMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	case IntervalDay:
		return TruncateToDay(t)
	case IntervalWeek:
		day := TruncateToDay(t)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case IntervalMonth:
		return TruncateToMonth(t)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	}
}

// Next returns the start of the bucket following start
func (iv Interval) Next(start time.Time) time.Time {
	switch iv {
	case IntervalDay:
		return start.AddDate(0, 0, 1)
	case IntervalWeek:
		return start.AddDate(0, 0, 7)
	case IntervalMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start.Add(iv.Duration())
	}
}

// Label formats a bucket start as its period key
func (iv Interval) Label(start time.Time) string {
	switch iv {
	case IntervalMinute:
		return start.Format("2006-01-02T15:04")
	case IntervalDay, IntervalWeek:
		return start.Format("2006-01-02")
	case IntervalMonth:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02T15:00")
	}
}

// TruncateToDay truncates time to midnight in its location
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TruncateToMonth truncates time to the start of the month
func TruncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
