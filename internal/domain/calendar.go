package domain

import "time"

// Calendar reconstructs full dates from a sequence of day-of-month values
// that appear in chronological order. A day lower than the previous one
// advances the month.
//
// A Calendar is single-use: create a fresh one for each parsed document.
type Calendar struct {
	loc         *time.Location
	year        int
	month       time.Month
	lastSeenDay int
}

// NewCalendar starts the cursor at now's month and year in loc.
func NewCalendar(now time.Time, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return &Calendar{
		loc:   loc,
		year:  local.Year(),
		month: local.Month(),
	}
}

// Resolve returns the UTC instant of day/hour as civil time in the
// calendar's location, advancing the month cursor on rollover.
// Days past the end of the month normalize into the following month.
func (c *Calendar) Resolve(day, hour int) time.Time {
	if day < c.lastSeenDay {
		c.month++
		if c.month > time.December {
			c.month = time.January
			c.year++
		}
	}
	c.lastSeenDay = day
	return time.Date(c.year, c.month, day, hour, 0, 0, 0, c.loc).UTC()
}
