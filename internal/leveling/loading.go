package leveling

import (
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
	"dpm-server/internal/schedule"
)

// Input is the snapshot the loading and leveling computations work on.
// Everything is in-memory; the algorithms never touch I/O.
type Input struct {
	Network      *schedule.Network
	CPM          *schedule.CPMResult
	Resources    map[uuid.UUID]*domain.Resource
	Assignments  []*domain.Assignment
	Calendar     *schedule.Calendar
	ProgramStart time.Time
}

// DayLoad is one working day of a resource's loading series.
type DayLoad struct {
	Date          time.Time   `json:"date"`
	AssignedHours float64     `json:"assigned_hours"`
	CapacityHours float64     `json:"capacity_hours"`
	ActivityIDs   []uuid.UUID `json:"activity_ids"`
}

// effectiveWindow returns the activity's scheduling window as working-day
// offsets [start, end) from the program start: planned dates when both
// are present, otherwise the CPM early window.
func (in *Input) effectiveWindow(a *domain.Activity) (int, int) {
	if a.PlannedStart != nil && a.PlannedFinish != nil {
		start := in.Calendar.WorkingDaysBetween(in.Calendar.NextWorkingDay(in.ProgramStart), *a.PlannedStart)
		// The planned finish date is inclusive.
		end := in.Calendar.WorkingDaysBetween(in.Calendar.NextWorkingDay(in.ProgramStart), *a.PlannedFinish) + 1
		return start, end
	}
	at, ok := in.CPM.Activities[a.ID]
	if !ok {
		return 0, 0
	}
	return at.EarlyStart, at.EarlyFinish
}

// BuildLoadingSeries walks each working day in [from, to] and sums the
// assigned hours of every non-material assignment on the resource whose
// effective window contains the day. Material assignments consume
// inventory, not capacity, and contribute nothing.
func BuildLoadingSeries(in *Input, resourceID uuid.UUID, from, to time.Time) []DayLoad {
	res, ok := in.Resources[resourceID]
	if !ok || res.Type == domain.ResourceMaterial {
		return nil
	}

	type window struct {
		activityID uuid.UUID
		start, end int
		hours      float64
	}
	var windows []window
	for _, as := range in.Assignments {
		if as.ResourceID != resourceID || as.DeletedAt != nil {
			continue
		}
		a, ok := in.Network.Activities[as.ActivityID]
		if !ok {
			continue
		}
		start, end := in.effectiveWindow(a)
		if end <= start {
			continue
		}
		windows = append(windows, window{
			activityID: as.ActivityID,
			start:      start,
			end:        end,
			hours:      as.Units * res.CapacityPerDay,
		})
	}

	anchor := in.Calendar.NextWorkingDay(in.ProgramStart)
	var series []DayLoad
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !in.Calendar.IsWorkingDay(d) {
			continue
		}
		dayIndex := in.Calendar.WorkingDaysBetween(anchor, d)
		if d.Before(anchor) {
			continue
		}
		load := DayLoad{Date: d, CapacityHours: res.CapacityPerDay}
		for _, w := range windows {
			if dayIndex >= w.start && dayIndex < w.end {
				load.AssignedHours += w.hours
				load.ActivityIDs = append(load.ActivityIDs, w.activityID)
			}
		}
		series = append(series, load)
	}
	return series
}
