package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

const businessDateLayout = "2006-01-02"

// now is swapped in tests that need a fixed clock.
var now = time.Now

// BusinessDate is the logical operating day of a venue.
// It is a plain civil date; it carries no time zone.
type BusinessDate struct {
	Year  int
	Month time.Month
	Day   int
}

// BusinessDateOf returns the calendar date of t in t's own location.
func BusinessDateOf(t time.Time) BusinessDate {
	y, m, d := t.Date()
	return BusinessDate{Year: y, Month: m, Day: d}
}

func ParseBusinessDate(s string) (BusinessDate, error) {
	t, err := time.Parse(businessDateLayout, strings.TrimSpace(s))
	if err != nil {
		return BusinessDate{}, errors.Wrap(err, "parse business date")
	}
	return BusinessDateOf(t), nil
}

func (d BusinessDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d BusinessDate) IsZero() bool { return d == BusinessDate{} }

// Time returns midnight UTC of the date, the form stored in SQL date columns.
func (d BusinessDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d BusinessDate) AddDays(n int) BusinessDate {
	return BusinessDateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d BusinessDate) Compare(o BusinessDate) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d BusinessDate) Before(o BusinessDate) bool { return d.Compare(o) < 0 }
func (d BusinessDate) After(o BusinessDate) bool  { return d.Compare(o) > 0 }

func (d BusinessDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *BusinessDate) UnmarshalText(b []byte) error {
	parsed, err := ParseBusinessDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CalendarSpan lists the two calendar dates a business date can touch.
type CalendarSpan struct {
	Start BusinessDate
	End   BusinessDate
}

// Span returns the calendar dates whose records may belong to d: d itself and the
// following day, where events between midnight and the day switch still count for d.
func (d BusinessDate) Span() CalendarSpan {
	return CalendarSpan{Start: d, End: d.AddDays(1)}
}

// Window returns the instants [d at boundary, d+1 at boundary) in loc.
func (d BusinessDate) Window(b DaySwitchBoundary, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(d.Year, d.Month, d.Day, b.Hour, b.Minute, 0, 0, loc)
	next := d.AddDays(1)
	end := time.Date(next.Year, next.Month, next.Day, b.Hour, b.Minute, 0, 0, loc)
	return start, end
}

// DaySwitchBoundary is the local time of day at which a venue's business day rolls over.
type DaySwitchBoundary struct {
	Hour   int
	Minute int
}

var DefaultDaySwitchBoundary = DaySwitchBoundary{Hour: 5, Minute: 0}

func NewDaySwitchBoundary(hour, minute int) (DaySwitchBoundary, error) {
	if hour < 0 || hour > 23 {
		return DaySwitchBoundary{}, errors.Errorf("day switch hour %d out of range 0-23", hour)
	}
	if minute < 0 || minute > 59 {
		return DaySwitchBoundary{}, errors.Errorf("day switch minute %d out of range 0-59", minute)
	}
	return DaySwitchBoundary{Hour: hour, Minute: minute}, nil
}

// ParseDaySwitchBoundary accepts "HH:MM" and "HH:MM:SS". Seconds are ignored.
func ParseDaySwitchBoundary(s string) (DaySwitchBoundary, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return DaySwitchBoundary{}, errors.Errorf("parse day switch %q: want HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return DaySwitchBoundary{}, errors.Wrapf(err, "parse day switch %q: hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return DaySwitchBoundary{}, errors.Wrapf(err, "parse day switch %q: minute", s)
	}

	return NewDaySwitchBoundary(hour, minute)
}

func (b DaySwitchBoundary) String() string {
	return fmt.Sprintf("%02d:%02d", b.Hour, b.Minute)
}

func (b DaySwitchBoundary) IsMidnight() bool { return b.Hour == 0 && b.Minute == 0 }

// ResolveBusinessDate maps a timestamp to the business date it belongs to.
//
// The timestamp is converted to loc. At or after the boundary the business date is the
// local calendar date; before it, the previous calendar date. A nil loc means UTC.
func ResolveBusinessDate(ts time.Time, b DaySwitchBoundary, loc *time.Location) BusinessDate {
	if loc == nil {
		loc = time.UTC
	}
	local := ts.In(loc)
	date := BusinessDateOf(local)

	if local.Hour() < b.Hour || (local.Hour() == b.Hour && local.Minute() < b.Minute) {
		return date.AddDays(-1)
	}
	return date
}

// CurrentBusinessDate resolves the current instant.
func CurrentBusinessDate(b DaySwitchBoundary, loc *time.Location) BusinessDate {
	return ResolveBusinessDate(now(), b, loc)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
