// Package calendar parses birth dates and times into UTC instants.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // profiles name IANA zones; don't depend on host zoneinfo
)

// DateFormat tags how a stored birth date string is laid out.
type DateFormat string

const (
	// DateFormatISO is YYYY-MM-DD, the only format written going forward.
	DateFormatISO DateFormat = "iso-8601"

	// DateFormatDayMonthYear is DD/MM/YYYY, used by manually entered records.
	DateFormatDayMonthYear DateFormat = "dd/mm/yyyy"

	// DateFormatLegacy marks rows stored before formats were tagged. They must
	// be migrated with DetectLegacyFormat before they can be read.
	DateFormatLegacy DateFormat = "legacy"
)

// ValidDateFormats returns the formats ParseDate understands.
func ValidDateFormats() []DateFormat {
	return []DateFormat{DateFormatISO, DateFormatDayMonthYear}
}

// IsValid checks if a date format can be parsed directly.
func (f DateFormat) IsValid() bool {
	for _, valid := range ValidDateFormats() {
		if f == valid {
			return true
		}
	}
	return false
}

// ErrMalformedDateTime is returned for unparseable or ambiguous date/time input.
var ErrMalformedDateTime = errors.New("malformed date/time")

// DateTimeError carries the rejected input and the specific reason.
type DateTimeError struct {
	Input  string
	Reason string
}

func (e *DateTimeError) Error() string {
	return fmt.Sprintf("malformed date/time %q: %s", e.Input, e.Reason)
}

func (e *DateTimeError) Unwrap() error {
	return ErrMalformedDateTime
}

func malformed(input, format string, args ...any) error {
	return &DateTimeError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// Date is a calendar date without time or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// ParseDate parses s according to an explicit format. No separator sniffing
// is done; use DetectLegacyFormat for untagged historical records.
func ParseDate(s string, format DateFormat) (Date, error) {
	s = strings.TrimSpace(s)

	var sep string
	var yi, mi, di int
	switch format {
	case DateFormatISO:
		sep, yi, mi, di = "-", 0, 1, 2
	case DateFormatDayMonthYear:
		sep, yi, mi, di = "/", 2, 1, 0
	default:
		return Date{}, malformed(s, "unsupported date format %q", format)
	}

	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return Date{}, malformed(s, "expected three %q-separated fields for %s", sep, format)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Date{}, malformed(s, "field %q is not a number", p)
		}
		nums[i] = n
	}

	d := Date{Year: nums[yi], Month: time.Month(nums[mi]), Day: nums[di]}
	if format == DateFormatISO && len(strings.TrimSpace(parts[0])) != 4 {
		return Date{}, malformed(s, "year must have four digits")
	}
	if err := validateDate(s, d); err != nil {
		return Date{}, err
	}
	return d, nil
}

func validateDate(input string, d Date) error {
	if d.Year < 1800 || d.Year > 2100 {
		return malformed(input, "year %d outside supported range 1800–2100", d.Year)
	}
	if d.Month < time.January || d.Month > time.December {
		return malformed(input, "month %d out of range", int(d.Month))
	}
	// time.Date normalises overflow (Feb 30 → Mar 2); reject instead.
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	if d.Day < 1 || t.Month() != d.Month {
		return malformed(input, "day %d does not exist in %s %d", d.Day, d.Month, d.Year)
	}
	return nil
}

// DetectLegacyFormat decides the layout of an untagged historical date:
// dash-separated values are ISO, slash-separated values are DD/MM/YYYY.
// Anything else is rejected rather than guessed.
func DetectLegacyFormat(s string) (DateFormat, error) {
	hasDash := strings.Contains(s, "-")
	hasSlash := strings.Contains(s, "/")

	switch {
	case hasDash && !hasSlash:
		return DateFormatISO, nil
	case hasSlash && !hasDash:
		return DateFormatDayMonthYear, nil
	default:
		return "", malformed(s, "cannot determine date layout")
	}
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// String formats the clock as HH:MM, adding :SS when seconds are set.
func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseTime parses "HH:MM" or "HH:MM:SS" (24-hour). Every field must be
// exactly two ASCII digits.
func ParseTime(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Clock{}, malformed(s, "expected HH:MM or HH:MM:SS")
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, ok := twoDigits(p)
		if !ok {
			return Clock{}, malformed(s, "field %q is not two digits", p)
		}
		nums[i] = n
	}

	c := Clock{Hour: nums[0], Minute: nums[1], Second: nums[2]}
	if c.Hour > 23 {
		return Clock{}, malformed(s, "hour %d out of range", c.Hour)
	}
	if c.Minute > 59 {
		return Clock{}, malformed(s, "minute %d out of range", c.Minute)
	}
	if c.Second > 59 {
		return Clock{}, malformed(s, "second %d out of range", c.Second)
	}
	return c, nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// LoadZone resolves an IANA zone name; empty means UTC.
func LoadZone(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, malformed(name, "unknown time zone")
	}
	return loc, nil
}

// BirthMoment combines a local date and clock in zone into a UTC instant.
//
// Wall times that a daylight-saving transition skips or repeats are
// rejected: the first never happened and the second names two instants an
// hour apart.
func BirthMoment(d Date, c Clock, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}
	input := d.String() + " " + c.String()

	local := time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, c.Second, 0, zone)
	if local.Hour() != c.Hour || local.Minute() != c.Minute {
		return time.Time{}, malformed(input, "local time does not exist in %s", zone)
	}
	if n := len(wallInstants(local, zone)); n > 1 {
		return time.Time{}, malformed(input, "local time is ambiguous in %s", zone)
	}
	return local.UTC(), nil
}

// wallInstants returns the distinct instants that show the same wall clock
// as local in zone, trying the offsets in force a few hours either side.
// Transitions are never closer together than that.
func wallInstants(local time.Time, zone *time.Location) []time.Time {
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, time.UTC)

	var instants []time.Time
	for _, near := range []time.Time{local.Add(-3 * time.Hour), local.Add(3 * time.Hour)} {
		_, offset := near.Zone()
		t := wall.Add(-time.Duration(offset) * time.Second)
		lt := t.In(zone)
		sameWall := lt.Year() == wall.Year() && lt.YearDay() == wall.YearDay() &&
			lt.Hour() == wall.Hour() && lt.Minute() == wall.Minute() && lt.Second() == wall.Second()
		if !sameWall {
			continue
		}
		if len(instants) == 0 || !instants[0].Equal(t) {
			instants = append(instants, t)
		}
	}
	return instants
}
