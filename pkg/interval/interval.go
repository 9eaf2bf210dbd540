// Package interval splits date ranges into non-overlapping day, week and month
// buckets. All buckets are half-open [Start, End) and computed in UTC.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// Type is the bucket granularity.
type Type string

const (
	Day      Type = "day"
	Week     Type = "week"
	Month    Type = "month"
	Lifetime Type = "lifetime"

	// DateLayout is the canonical date format used for keys and persistence.
	DateLayout = "2006-01-02"
)

var (
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInvalidType is returned for an unsupported bucket type.
	ErrInvalidType = errors.New("invalid interval type")
)

// Interval is a single bucket.
type Interval struct {
	Type  Type      `json:"type" yaml:"type"`
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// NewDateRange parses two YYYY-MM-DD dates into a validated range.
func NewDateRange(from, to string) (DateRange, error) {
	start, err := ParseDate(from)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing from date: %w", err)
	}
	end, err := ParseDate(to)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing to date: %w", err)
	}
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks the range is not reversed.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if Truncate(r.End).Before(Truncate(r.Start)) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange,
			r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return nil
}

// ParseType converts a string into a bucket Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Day, Week, Month, Lifetime:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// Truncate returns midnight UTC of the calendar date of t in UTC.
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOf returns the canonical bucket start containing d.
func StartOf(t Type, d time.Time) (time.Time, error) {
	day := Truncate(d)
	switch t {
	case Day:
		return day, nil
	case Week:
		return day.AddDate(0, 0, -int(day.Weekday())), nil
	case Month:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
}

// Next returns the start of the bucket following the one starting at start.
func Next(t Type, start time.Time) (time.Time, error) {
	switch t {
	case Day:
		return start.AddDate(0, 0, 1), nil
	case Week:
		return start.AddDate(0, 0, 7), nil
	case Month:
		return start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
}

// Generate returns the ordered buckets of type t that overlap r.
// Adjacent buckets always share a boundary: out[i].End == out[i+1].Start.
func Generate(t Type, r DateRange) ([]Interval, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	start, err := StartOf(t, r.Start)
	if err != nil {
		return nil, err
	}
	last := Truncate(r.End)

	list := make([]Interval, 0)
	for !start.After(last) {
		end, err := Next(t, start)
		if err != nil {
			return nil, err
		}
		list = append(list, Interval{Type: t, Start: start, End: end})
		start = end
	}

	return list, nil
}

// ForDate returns the single bucket of type t containing d.
func ForDate(t Type, d time.Time) (Interval, error) {
	start, err := StartOf(t, d)
	if err != nil {
		return Interval{}, err
	}
	end, err := Next(t, start)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Type: t, Start: start, End: end}, nil
}

// LifetimeAsOf is the open-start bucket covering everything before the day after asOf.
func LifetimeAsOf(asOf time.Time) Interval {
	return Interval{
		Type: Lifetime,
		End:  Truncate(asOf).AddDate(0, 0, 1),
	}
}

// Contains reports whether d falls in [Start, End).
func (i Interval) Contains(d time.Time) bool {
	return !d.Before(i.Start) && d.Before(i.End)
}

// Key is the bucket start date used in persistence keys.
func (i Interval) Key() string {
	if i.Type == Lifetime {
		return i.LastDay().Format(DateLayout)
	}
	return i.Start.Format(DateLayout)
}

// LastDay is the last calendar day inside the bucket.
func (i Interval) LastDay() time.Time {
	return i.End.AddDate(0, 0, -1)
}

func (i Interval) String() string {
	if i.Type == Lifetime {
		return fmt.Sprintf("lifetime[..%s)", i.End.Format(DateLayout))
	}
	return fmt.Sprintf("%s[%s..%s)", i.Type, i.Start.Format(DateLayout), i.End.Format(DateLayout))
}
