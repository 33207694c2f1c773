package schedule

import "time"

// Calendar answers working-day questions for a five-day week with an
// injected holiday set. All date math in the service funnels through it.
type Calendar struct {
	holidays map[string]bool
}

const dayKeyFormat = "2006-01-02"

// NewCalendar builds a calendar from the given holiday dates. Times are
// truncated to their calendar day.
func NewCalendar(holidays []time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[h.Format(dayKeyFormat)] = true
	}
	return c
}

// IsWorkingDay reports whether d is a weekday that is not a holiday.
func (c *Calendar) IsWorkingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[d.Format(dayKeyFormat)]
}

// NextWorkingDay returns d if it is a working day, otherwise the first
// working day after it.
func (c *Calendar) NextWorkingDay(d time.Time) time.Time {
	for !c.IsWorkingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddWorkingDays returns the date `days` working days after start. Day 0
// is the first working day at or after start, so the result is suitable
// for mapping CPM day offsets onto calendar dates.
func (c *Calendar) AddWorkingDays(start time.Time, days int) time.Time {
	d := c.NextWorkingDay(start)
	for i := 0; i < days; i++ {
		d = c.NextWorkingDay(d.AddDate(0, 0, 1))
	}
	return d
}

// WorkingDaysBetween counts working days in [start, end). Returns 0 when
// end is not after start.
func (c *Calendar) WorkingDaysBetween(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	count := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}
