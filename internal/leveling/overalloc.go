package leveling

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// Severity buckets a conflict by its peak excess hours.
type Severity string

const (
	SeverityLow    Severity = "low"    // peak excess <= 2h
	SeverityMedium Severity = "medium" // peak excess <= 4h
	SeverityHigh   Severity = "high"
)

func severityFor(peakExcess float64) Severity {
	switch {
	case peakExcess <= 2:
		return SeverityLow
	case peakExcess <= 4:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// OverallocationPeriod is a maximal run of consecutive over-allocated
// working days on one resource.
type OverallocationPeriod struct {
	ResourceID         uuid.UUID   `json:"resource_id"`
	Start              time.Time   `json:"start"`
	End                time.Time   `json:"end"`
	PeakExcess         float64     `json:"peak_excess"`
	PeakDate           time.Time   `json:"peak_date"`
	AffectedActivities []uuid.UUID `json:"affected_activities"`
	Severity           Severity    `json:"severity"`
}

// ProgramOverallocationReport aggregates conflict periods across every
// resource assigned in the program.
type ProgramOverallocationReport struct {
	ProgramID            uuid.UUID                            `json:"program_id"`
	Periods              map[uuid.UUID][]OverallocationPeriod `json:"periods"`
	TotalPeriods         int                                  `json:"total_periods"`
	CriticalPathAffected bool                                 `json:"critical_path_affected"`
}

// DetectOverallocations coalesces the resource's loading series into
// conflict periods. A day counts only when assigned exceeds capacity AND
// at least two distinct activities contribute; a single oversized
// assignment is a capacity-planning problem, not a leveling conflict.
func DetectOverallocations(in *Input, resourceID uuid.UUID, from, to time.Time) []OverallocationPeriod {
	series := BuildLoadingSeries(in, resourceID, from, to)

	var periods []OverallocationPeriod
	var current *OverallocationPeriod
	affected := make(map[uuid.UUID]bool)

	flush := func() {
		if current == nil {
			return
		}
		for id := range affected {
			current.AffectedActivities = append(current.AffectedActivities, id)
		}
		sort.Slice(current.AffectedActivities, func(i, j int) bool {
			return current.AffectedActivities[i].String() < current.AffectedActivities[j].String()
		})
		current.Severity = severityFor(current.PeakExcess)
		periods = append(periods, *current)
		current = nil
		affected = make(map[uuid.UUID]bool)
	}

	for _, day := range series {
		excess := day.AssignedHours - day.CapacityHours
		over := excess > 0 && len(day.ActivityIDs) >= 2
		if !over {
			flush()
			continue
		}
		if current == nil {
			current = &OverallocationPeriod{
				ResourceID: resourceID,
				Start:      day.Date,
				PeakExcess: excess,
				PeakDate:   day.Date,
			}
		}
		current.End = day.Date
		if excess > current.PeakExcess {
			current.PeakExcess = excess
			current.PeakDate = day.Date
		}
		for _, id := range day.ActivityIDs {
			affected[id] = true
		}
	}
	flush()

	return periods
}

// BuildProgramReport runs detection over every non-material resource and
// flags whether any affected activity sits on the critical path.
func BuildProgramReport(in *Input, from, to time.Time) *ProgramOverallocationReport {
	report := &ProgramOverallocationReport{
		ProgramID: in.Network.ProgramID,
		Periods:   make(map[uuid.UUID][]OverallocationPeriod),
	}

	for id, res := range in.Resources {
		if res.Type == domain.ResourceMaterial {
			continue
		}
		periods := DetectOverallocations(in, id, from, to)
		if len(periods) == 0 {
			continue
		}
		report.Periods[id] = periods
		report.TotalPeriods += len(periods)
		for _, p := range periods {
			for _, actID := range p.AffectedActivities {
				if at, ok := in.CPM.Activities[actID]; ok && at.IsCritical {
					report.CriticalPathAffected = true
				}
			}
		}
	}
	return report
}
