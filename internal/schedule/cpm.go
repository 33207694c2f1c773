package schedule

import (
	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// ActivityTimes is the CPM output for one activity, in working-day
// offsets from the project start.
type ActivityTimes struct {
	EarlyStart  int  `json:"early_start"`
	EarlyFinish int  `json:"early_finish"`
	LateStart   int  `json:"late_start"`
	LateFinish  int  `json:"late_finish"`
	TotalFloat  int  `json:"total_float"`
	FreeFloat   int  `json:"free_float"`
	IsCritical  bool `json:"is_critical"`
	// ConstraintBound marks activities whose natural early dates exceed a
	// start/finish-no-later-than constraint. The forward pass records the
	// violation but does not move dates backward; the constraint binds in
	// the backward pass only.
	ConstraintBound bool `json:"constraint_bound,omitempty"`
}

// CPMResult is the full forward/backward pass output for a network.
type CPMResult struct {
	ProjectStart    int                          `json:"project_start"`
	ProjectDuration int                          `json:"project_duration"`
	Activities      map[uuid.UUID]*ActivityTimes `json:"activities"`
	CriticalPath    []uuid.UUID                  `json:"critical_path"`
}

// CalculateCPM runs the critical path method over the network. O(V+E).
// The network must be acyclic; a surviving cycle surfaces as a
// CyclicNetwork error from the topological sort.
//
// Constraint behavior: snet/fnet push early dates forward in the forward
// pass; snlt/fnlt cap late dates in the backward pass and are only
// recorded (ConstraintBound) when the forward pass would violate them.
// alap leaves early dates at their natural values and lets float absorb
// the gap — flagged for review, see DESIGN.md.
func CalculateCPM(n *Network, projectStart int) (*CPMResult, error) {
	order, err := n.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	res := &CPMResult{
		ProjectStart: projectStart,
		Activities:   make(map[uuid.UUID]*ActivityTimes, len(order)),
	}

	// Forward pass.
	for _, id := range order {
		a := n.Activities[id]
		at := &ActivityTimes{}
		res.Activities[id] = at

		es := projectStart
		for _, edge := range n.Predecessors(id) {
			p := res.Activities[edge.PredecessorID]
			var candidate int
			switch edge.Type {
			case domain.StartToStart:
				candidate = p.EarlyStart + edge.Lag
			case domain.FinishToFinish:
				candidate = p.EarlyFinish + edge.Lag - a.Duration
			case domain.StartToFinish:
				candidate = p.EarlyStart + edge.Lag - a.Duration
			default: // FS
				candidate = p.EarlyFinish + edge.Lag
			}
			if candidate > es {
				es = candidate
			}
		}

		if day, ok := n.ConstraintDays[id]; ok {
			switch a.Constraint {
			case domain.ConstraintSNET:
				if day > es {
					es = day
				}
			case domain.ConstraintFNET:
				if day-a.Duration > es {
					es = day - a.Duration
				}
			case domain.ConstraintSNLT:
				if es > day {
					at.ConstraintBound = true
				}
			case domain.ConstraintFNLT:
				if es+a.Duration > day {
					at.ConstraintBound = true
				}
			}
		}

		at.EarlyStart = es
		at.EarlyFinish = es + a.Duration
		if at.EarlyFinish > res.ProjectDuration {
			res.ProjectDuration = at.EarlyFinish
		}
	}

	// Backward pass.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		a := n.Activities[id]
		at := res.Activities[id]

		lf := res.ProjectDuration
		for _, edge := range n.Successors(id) {
			s := res.Activities[edge.SuccessorID]
			var candidate int
			switch edge.Type {
			case domain.StartToStart:
				candidate = s.LateStart - edge.Lag + a.Duration
			case domain.FinishToFinish:
				candidate = s.LateFinish - edge.Lag
			case domain.StartToFinish:
				candidate = s.LateFinish - edge.Lag + a.Duration
			default: // FS
				candidate = s.LateStart - edge.Lag
			}
			if candidate < lf {
				lf = candidate
			}
		}

		if day, ok := n.ConstraintDays[id]; ok {
			switch a.Constraint {
			case domain.ConstraintFNLT:
				if day < lf {
					lf = day
				}
			case domain.ConstraintSNLT:
				if day+a.Duration < lf {
					lf = day + a.Duration
				}
			}
		}

		at.LateFinish = lf
		at.LateStart = lf - a.Duration
		at.TotalFloat = at.LateStart - at.EarlyStart
		at.IsCritical = at.TotalFloat == 0
	}

	// Free float: slack to the earliest-pressing successor, clamped at 0.
	// Sinks take their total float.
	for _, id := range order {
		at := res.Activities[id]
		successors := n.Successors(id)
		if len(successors) == 0 {
			at.FreeFloat = at.TotalFloat
			continue
		}
		ff := at.TotalFloat
		for _, edge := range successors {
			s := res.Activities[edge.SuccessorID]
			var slack int
			switch edge.Type {
			case domain.StartToStart:
				slack = s.EarlyStart - at.EarlyStart - edge.Lag
			case domain.FinishToFinish:
				slack = s.EarlyFinish - at.EarlyFinish - edge.Lag
			case domain.StartToFinish:
				slack = s.EarlyFinish - at.EarlyStart - edge.Lag
			default: // FS
				slack = s.EarlyStart - at.EarlyFinish - edge.Lag
			}
			if slack < ff {
				ff = slack
			}
		}
		if ff < 0 {
			ff = 0
		}
		at.FreeFloat = ff
	}

	// Critical path in topological order, so it reads start-to-finish.
	for _, id := range order {
		if res.Activities[id].IsCritical {
			res.CriticalPath = append(res.CriticalPath, id)
		}
	}

	return res, nil
}

// ApplyResult writes CPM output back onto the activity structs. Callers
// persist the whole batch in one transaction per program.
func ApplyResult(n *Network, res *CPMResult) {
	for id, at := range res.Activities {
		a := n.Activities[id]
		a.EarlyStart = at.EarlyStart
		a.EarlyFinish = at.EarlyFinish
		a.LateStart = at.LateStart
		a.LateFinish = at.LateFinish
		a.TotalFloat = at.TotalFloat
		a.FreeFloat = at.FreeFloat
		a.IsCritical = at.IsCritical
	}
}
