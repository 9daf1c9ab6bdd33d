// Package localtime provides the clock and the market time zone used by
// date-only business rules.
package localtime

import (
	"fmt"
	"time"
	// Embedded zone database for hosts without zoneinfo.
	_ "time/tzdata"
)

// =============================================================================
// Clock
// =============================================================================

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC instant.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.At
}

// =============================================================================
// Zone
// =============================================================================

// DefaultZoneName is the market time zone used when none is configured.
const DefaultZoneName = "Europe/Copenhagen"

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// DaysSince returns the number of calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	a := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(other.Year, other.Month, other.Day, 0, 0, 0, 0, time.UTC)
	return int((a.Unix() - b.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// Zone converts UTC instants to local calendar dates.
type Zone struct {
	loc *time.Location
}

// NewZone loads the named IANA time zone.
func NewZone(name string) (Zone, error) {
	if name == "" {
		name = DefaultZoneName
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Zone{}, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return Zone{loc: loc}, nil
}

// MustZone is like NewZone but panics on an unknown zone. Intended for tests
// and static wiring.
func MustZone(name string) Zone {
	z, err := NewZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

// Name returns the zone name.
func (z Zone) Name() string {
	if z.loc == nil {
		return "UTC"
	}
	return z.loc.String()
}

// LocalDate returns the calendar date of t in the zone.
func (z Zone) LocalDate(t time.Time) Date {
	loc := z.loc
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}
