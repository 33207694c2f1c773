package leveling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// Options controls both leveling algorithms.
type Options struct {
	MaxIterations        int  `json:"max_iterations"`
	PreserveCriticalPath bool `json:"preserve_critical_path"`
	LevelWithinFloat     bool `json:"level_within_float"`
	// MaxSearchDays bounds the forward slot search per activity.
	MaxSearchDays int `json:"max_search_days"`
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 100
	}
	if o.MaxSearchDays <= 0 {
		o.MaxSearchDays = 365
	}
	return o
}

// Shift records one applied delay.
type Shift struct {
	ActivityID   uuid.UUID `json:"activity_id"`
	ActivityCode string    `json:"activity_code"`
	OldStart     int       `json:"old_start"`
	OldFinish    int       `json:"old_finish"`
	NewStart     int       `json:"new_start"`
	NewFinish    int       `json:"new_finish"`
	DelayDays    int       `json:"delay_days"`
	Reason       string    `json:"reason"`
}

// Result is the outcome of a leveling run. The parallel-only extension
// metrics stay zero for serial runs.
type Result struct {
	Algorithm          string                 `json:"algorithm"`
	Success            bool                   `json:"success"`
	OriginalFinish     int                    `json:"original_finish"`
	NewFinish          int                    `json:"new_finish"`
	OriginalFinishDate time.Time              `json:"original_finish_date"`
	NewFinishDate      time.Time              `json:"new_finish_date"`
	Shifts             []Shift                `json:"shifts"`
	Unresolved         []OverallocationPeriod `json:"unresolved"`
	Warnings           []string               `json:"warnings"`
	Iterations         int                    `json:"iterations"`
	ConflictsResolved  int                    `json:"conflicts_resolved"`
	ResourcesProcessed int                    `json:"resources_processed"`
	// NewStarts carries the leveled start day per shifted activity so the
	// apply path can write planned dates in a single transaction.
	NewStarts map[uuid.UUID]int `json:"new_starts"`
}

// ExtensionDays is how far the project finish moved.
func (r *Result) ExtensionDays() int {
	return r.NewFinish - r.OriginalFinish
}

// state is the mutable working copy both algorithms level against. All
// values are working-day offsets from the program start; weekends and
// holidays do not exist in this index space.
type state struct {
	in       *Input
	opts     Options
	starts   map[uuid.UUID]int
	original map[uuid.UUID]int
	// demand maps resource -> activity -> hours per day of that
	// activity's assignments on the resource. Material resources are
	// excluded when the state is built.
	demand  map[uuid.UUID]map[uuid.UUID]float64
	actRes  map[uuid.UUID][]uuid.UUID // resources each activity draws on
	horizon int
}

const hoursEpsilon = 1e-9

func newState(in *Input, opts Options) *state {
	s := &state{
		in:       in,
		opts:     opts,
		starts:   make(map[uuid.UUID]int),
		original: make(map[uuid.UUID]int),
		demand:   make(map[uuid.UUID]map[uuid.UUID]float64),
		actRes:   make(map[uuid.UUID][]uuid.UUID),
	}

	for id, at := range in.CPM.Activities {
		s.starts[id] = at.EarlyStart
		s.original[id] = at.EarlyStart
	}

	for _, as := range in.Assignments {
		if as.DeletedAt != nil {
			continue
		}
		res, ok := in.Resources[as.ResourceID]
		if !ok || res.Type == domain.ResourceMaterial {
			continue
		}
		if _, ok := in.Network.Activities[as.ActivityID]; !ok {
			continue
		}
		byAct := s.demand[as.ResourceID]
		if byAct == nil {
			byAct = make(map[uuid.UUID]float64)
			s.demand[as.ResourceID] = byAct
		}
		if byAct[as.ActivityID] == 0 {
			s.actRes[as.ActivityID] = append(s.actRes[as.ActivityID], as.ResourceID)
		}
		byAct[as.ActivityID] += as.Units * res.CapacityPerDay
	}

	for _, resources := range s.actRes {
		sort.Slice(resources, func(i, j int) bool { return resources[i].String() < resources[j].String() })
	}

	s.horizon = in.CPM.ProjectDuration + opts.MaxSearchDays + 1
	return s
}

func (s *state) duration(id uuid.UUID) int {
	return s.in.Network.Activities[id].Duration
}

func (s *state) finish(id uuid.UUID) int {
	return s.starts[id] + s.duration(id)
}

// occupies reports whether the activity spans the given day at its
// current placement, with an optional hypothetical start override.
func (s *state) occupies(id uuid.UUID, day int, startOverride int) bool {
	start := s.starts[id]
	if startOverride >= 0 {
		start = startOverride
	}
	return day >= start && day < start+s.duration(id)
}

// demandOn sums hours demanded from a resource on a day and returns the
// contributing activities. exclude is skipped (used when probing a move).
func (s *state) demandOn(resourceID uuid.UUID, day int, exclude uuid.UUID) (float64, []uuid.UUID) {
	var total float64
	var contributors []uuid.UUID
	for actID, hours := range s.demand[resourceID] {
		if actID == exclude {
			continue
		}
		if s.occupies(actID, day, -1) {
			total += hours
			contributors = append(contributors, actID)
		}
	}
	sort.Slice(contributors, func(i, j int) bool { return contributors[i].String() < contributors[j].String() })
	return total, contributors
}

// conflictOn reports whether the resource is over-allocated on a day:
// demand above capacity with at least two contributing activities.
func (s *state) conflictOn(resourceID uuid.UUID, day int) (float64, []uuid.UUID, bool) {
	capacity := s.in.Resources[resourceID].CapacityPerDay
	total, contributors := s.demandOn(resourceID, day, uuid.Nil)
	over := total-capacity > hoursEpsilon && len(contributors) >= 2
	return total - capacity, contributors, over
}

// conflictFor finds the first resource over-allocated anywhere inside the
// activity's current window.
func (s *state) conflictFor(actID uuid.UUID) (uuid.UUID, bool) {
	for _, resourceID := range s.actRes[actID] {
		for day := s.starts[actID]; day < s.finish(actID); day++ {
			if _, _, over := s.conflictOn(resourceID, day); over {
				return resourceID, true
			}
		}
	}
	return uuid.Nil, false
}

// nextAvailableSlot searches forward for the smallest delay after which
// the activity's full window fits under the resource's capacity. The
// search is bounded by MaxSearchDays.
func (s *state) nextAvailableSlot(actID, resourceID uuid.UUID) (int, bool) {
	capacity := s.in.Resources[resourceID].CapacityPerDay
	hours := s.demand[resourceID][actID]
	dur := s.duration(actID)

	for delay := 1; delay <= s.opts.MaxSearchDays; delay++ {
		start := s.starts[actID] + delay
		fits := true
		for day := start; day < start+dur; day++ {
			others, _ := s.demandOn(resourceID, day, actID)
			if others+hours-capacity > hoursEpsilon {
				fits = false
				break
			}
		}
		if fits {
			return delay, true
		}
	}
	return 0, false
}

// propagate pushes the move through the dependency graph with a worklist.
// A successor moves only when its required start is later than its
// current start, which makes repeated visits idempotent. Returns every
// activity whose start changed, the mover included.
func (s *state) propagate(actID uuid.UUID, newStart int) map[uuid.UUID]int {
	moved := make(map[uuid.UUID]int)
	if newStart <= s.starts[actID] {
		return moved
	}
	moved[actID] = newStart
	s.starts[actID] = newStart

	worklist := []uuid.UUID{actID}
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		for _, edge := range s.in.Network.Successors(id) {
			succ := edge.SuccessorID
			required := s.requiredStart(edge)
			if required > s.starts[succ] {
				s.starts[succ] = required
				moved[succ] = required
				worklist = append(worklist, succ)
			}
		}
	}
	return moved
}

// requiredStart is the successor's earliest start implied by one edge at
// the predecessor's current placement.
func (s *state) requiredStart(edge *domain.Dependency) int {
	predStart := s.starts[edge.PredecessorID]
	predDur := s.duration(edge.PredecessorID)
	succDur := s.duration(edge.SuccessorID)
	switch edge.Type {
	case domain.StartToStart:
		return predStart + edge.Lag
	case domain.FinishToFinish:
		return predStart + predDur + edge.Lag - succDur
	case domain.StartToFinish:
		return predStart + edge.Lag - succDur
	default: // FS
		return predStart + predDur + edge.Lag
	}
}

// previewPropagation computes which activities a delay would move without
// mutating the state.
func (s *state) previewPropagation(actID uuid.UUID, newStart int) map[uuid.UUID]int {
	saved := make(map[uuid.UUID]int, len(s.starts))
	for id, start := range s.starts {
		saved[id] = start
	}
	moved := s.propagate(actID, newStart)
	s.starts = saved
	return moved
}

// admissible checks a proposed delay against the option gates. It returns
// a warning string when the shift must be rejected.
func (s *state) admissible(actID uuid.UUID, delay int) (string, bool) {
	at := s.in.CPM.Activities[actID]
	code := s.in.Network.Activities[actID].Code

	if s.opts.PreserveCriticalPath {
		if at.IsCritical {
			return fmt.Sprintf("cannot delay critical activity %s", code), false
		}
		for movedID := range s.previewPropagation(actID, s.starts[actID]+delay) {
			if movedID == actID {
				continue
			}
			if s.in.CPM.Activities[movedID].IsCritical {
				return fmt.Sprintf("delaying %s would move critical activity %s", code, s.in.Network.Activities[movedID].Code), false
			}
		}
	}

	if s.opts.LevelWithinFloat {
		used := s.starts[actID] + delay - s.original[actID]
		if used > at.TotalFloat {
			return fmt.Sprintf("delaying %s by %d days would exceed its total float of %d", code, delay, at.TotalFloat), false
		}
	}

	return "", true
}

// applyShift performs the delay, propagates, and records the shift. Every
// successor the propagation moves lands in NewStarts too, so the apply
// path rewrites all affected planned dates in one transaction.
func (s *state) applyShift(actID, resourceID uuid.UUID, delay int, result *Result) {
	oldStart := s.starts[actID]
	dur := s.duration(actID)
	newStart := oldStart + delay
	resCode := s.in.Resources[resourceID].Code

	for id, start := range s.propagate(actID, newStart) {
		result.NewStarts[id] = start
	}

	result.Shifts = append(result.Shifts, Shift{
		ActivityID:   actID,
		ActivityCode: s.in.Network.Activities[actID].Code,
		OldStart:     oldStart,
		OldFinish:    oldStart + dur,
		NewStart:     newStart,
		NewFinish:    newStart + dur,
		DelayDays:    delay,
		Reason:       fmt.Sprintf("resource %s over-allocated during days %d-%d", resCode, oldStart, oldStart+dur-1),
	})
}

// projectFinish is the latest finish across all activities at the current
// placements.
func (s *state) projectFinish() int {
	finish := 0
	for id := range s.starts {
		if f := s.finish(id); f > finish {
			finish = f
		}
	}
	return finish
}

// remainingConflicts coalesces the still-conflicting days per resource
// into periods, mapped back onto calendar dates.
func (s *state) remainingConflicts() []OverallocationPeriod {
	anchor := s.in.Calendar.NextWorkingDay(s.in.ProgramStart)
	resourceIDs := make([]uuid.UUID, 0, len(s.demand))
	for id := range s.demand {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Slice(resourceIDs, func(i, j int) bool { return resourceIDs[i].String() < resourceIDs[j].String() })

	var periods []OverallocationPeriod
	for _, resourceID := range resourceIDs {
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

		for day := 0; day < s.horizon; day++ {
			excess, contributors, over := s.conflictOn(resourceID, day)
			if !over {
				flush()
				continue
			}
			dayDate := s.in.Calendar.AddWorkingDays(anchor, day)
			if current == nil {
				current = &OverallocationPeriod{
					ResourceID: resourceID,
					Start:      dayDate,
					PeakExcess: excess,
					PeakDate:   dayDate,
				}
			}
			current.End = dayDate
			if excess > current.PeakExcess {
				current.PeakExcess = excess
				current.PeakDate = dayDate
			}
			for _, id := range contributors {
				affected[id] = true
			}
		}
		flush()
	}
	return periods
}
