package schedule

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_IsWorkingDay(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2026, time.July, 3)}) // observed holiday, a Friday

	tests := []struct {
		name string
		day  time.Time
		want bool
	}{
		{"Monday", date(2026, time.June, 29), true},
		{"Saturday", date(2026, time.July, 4), false},
		{"Sunday", date(2026, time.July, 5), false},
		{"Holiday", date(2026, time.July, 3), false},
		{"DayAfterHoliday", date(2026, time.July, 6), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.IsWorkingDay(tt.day); got != tt.want {
				t.Errorf("IsWorkingDay(%s) = %v, want %v", tt.day.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestCalendar_AddWorkingDays(t *testing.T) {
	cal := NewCalendar(nil)

	tests := []struct {
		name  string
		start time.Time
		days  int
		want  time.Time
	}{
		{"ZeroFromMonday", date(2026, time.June, 1), 0, date(2026, time.June, 1)},
		{"ZeroFromSaturday", date(2026, time.June, 6), 0, date(2026, time.June, 8)},
		{"AcrossWeekend", date(2026, time.June, 4), 2, date(2026, time.June, 8)}, // Thu + 2 -> Mon
		{"FullWeek", date(2026, time.June, 1), 5, date(2026, time.June, 8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cal.AddWorkingDays(tt.start, tt.days); !got.Equal(tt.want) {
				t.Errorf("AddWorkingDays(%s, %d) = %s, want %s",
					tt.start.Format("2006-01-02"), tt.days, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestCalendar_WorkingDaysBetween(t *testing.T) {
	cal := NewCalendar([]time.Time{date(2026, time.June, 3)})

	// Mon Jun 1 .. Mon Jun 8 exclusive: Mon, Tue, (Wed holiday), Thu, Fri = 4.
	got := cal.WorkingDaysBetween(date(2026, time.June, 1), date(2026, time.June, 8))
	if got != 4 {
		t.Errorf("WorkingDaysBetween = %d, want 4", got)
	}

	if got := cal.WorkingDaysBetween(date(2026, time.June, 8), date(2026, time.June, 1)); got != 0 {
		t.Errorf("reversed range = %d, want 0", got)
	}
}
