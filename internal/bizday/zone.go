package bizday

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidFormat = errors.New("invalid time format")

// layouts carrying an explicit offset are taken as absolute instants.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04Z07:00",
}

// layouts without an offset are wall-clock times in the business zone.
var wallLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Zone is the single fixed timezone the business operates in. All business-day
// arithmetic goes through it so results never depend on the host's local zone.
type Zone struct {
	loc *time.Location
}

func NewZone(name string) (*Zone, error) {
	if name == "" {
		return nil, errors.New("timezone name is empty")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// MustZone is NewZone for static names known to exist.
func MustZone(name string) *Zone {
	z, err := NewZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) String() string { return z.loc.String() }

// ParseToInstant accepts a time.Time, an epoch-millisecond number, or a string.
// Strings with an offset are absolute; strings without one are read as wall-clock
// time in the business zone. Result is always UTC.
func (z *Zone) ParseToInstant(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidFormat)
		}
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil time", ErrInvalidFormat)
		}
		return z.ParseToInstant(*v)
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidFormat, v)
		}
		return time.UnixMilli(int64(v)).UTC(), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, v.String())
			}
			return z.ParseToInstant(f)
		}
		return time.UnixMilli(n).UTC(), nil
	case string:
		return z.parseString(v)
	case nil:
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidFormat)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidFormat, raw)
	}
}

func (z *Zone) parseString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidFormat)
	}

	if isInteger(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
		}
		return time.UnixMilli(n).UTC(), nil
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	for _, layout := range wallLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return z.resolve(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
}

// DayBounds returns [start, end) of the business day named by date (YYYY-MM-DD).
func (z *Zone) DayBounds(date string) (time.Time, time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, date)
	}
	start := z.resolve(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0)
	end := z.resolve(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0)
	return start, end, nil
}

// DayString names the business day containing t.
func (z *Zone) DayString(t time.Time) string {
	return t.In(z.loc).Format(DateLayout)
}

// Today is DayString(now).
func (z *Zone) Today(now time.Time) string {
	return z.DayString(now)
}

// AddDays shifts a YYYY-MM-DD day string by n calendar days.
func (z *Zone) AddDays(date string, n int) (string, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, date)
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}

// WeekBounds returns the Monday-start week containing t.
func (z *Zone) WeekBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(z.loc)
	back := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	start := z.resolve(y, m, d-back, 0, 0, 0, 0)
	end := z.resolve(y, m, d-back+7, 0, 0, 0, 0)
	return start, end
}

// MonthBounds returns the calendar month containing t.
func (z *Zone) MonthBounds(t time.Time) (time.Time, time.Time) {
	y, m, _ := t.In(z.loc).Date()
	return z.resolve(y, m, 1, 0, 0, 0, 0), z.resolve(y, m+1, 1, 0, 0, 0, 0)
}

// At returns the instant of minuteOfDay on the given business day. Minutes past
// 1440 roll into the next day.
func (z *Zone) At(date string, minuteOfDay int) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, date)
	}
	return z.resolve(d.Year(), d.Month(), d.Day(), 0, minuteOfDay, 0, 0), nil
}

// MinuteOfDay is the wall-clock minute of t in the business zone.
func (z *Zone) MinuteOfDay(t time.Time) int {
	local := t.In(z.loc)
	return local.Hour()*60 + local.Minute()
}

// resolve maps a wall-clock reading to an instant. Readings inside a DST gap move
// forward by the gap; readings that occur twice resolve to the first occurrence.
func (z *Zone) resolve(y int, mo time.Month, d, h, mi, s, ns int) time.Time {
	wall := time.Date(y, mo, d, h, mi, s, ns, time.UTC)

	_, offBefore := wall.Add(-24 * time.Hour).In(z.loc).Zone()
	_, offAfter := wall.Add(24 * time.Hour).In(z.loc).Zone()

	before := wall.Add(-time.Duration(offBefore) * time.Second)
	after := wall.Add(-time.Duration(offAfter) * time.Second)

	beforeOK := sameWall(before.In(z.loc), wall)
	afterOK := sameWall(after.In(z.loc), wall)

	switch {
	case beforeOK && afterOK:
		if after.Before(before) {
			return after.UTC()
		}
		return before.UTC()
	case beforeOK:
		return before.UTC()
	case afterOK:
		return after.UTC()
	default:
		return before.UTC()
	}
}

func sameWall(local, wall time.Time) bool {
	ly, lm, ld := local.Date()
	wy, wm, wd := wall.Date()
	lh, lmin, ls := local.Clock()
	wh, wmin, ws := wall.Clock()
	return ly == wy && lm == wm && ld == wd &&
		lh == wh && lmin == wmin && ls == ws &&
		local.Nanosecond() == wall.Nanosecond()
}

func isInteger(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
