package leveling

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LevelSerial resolves over-allocations one activity at a time in
// priority order: earliest start first, then least total float, then ID.
// After each successful shift the sweep restarts, which keeps progress
// monotonic. Terminates when a full sweep makes no change or the
// iteration budget runs out.
func LevelSerial(ctx context.Context, in *Input, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	s := newState(in, opts)

	result := &Result{
		Algorithm:      "serial",
		OriginalFinish: in.CPM.ProjectDuration,
		NewStarts:      make(map[uuid.UUID]int),
	}

	order := priorityOrder(in)
	warned := make(map[string]bool)
	warn := func(msg string) {
		if !warned[msg] {
			warned[msg] = true
			result.Warnings = append(result.Warnings, msg)
		}
	}

	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations = iter + 1

		changed := false
		for _, actID := range order {
			resourceID, conflicted := s.conflictFor(actID)
			if !conflicted {
				continue
			}

			delay, found := s.nextAvailableSlot(actID, resourceID)
			if !found {
				warn("no available slot within search horizon for activity " + in.Network.Activities[actID].Code)
				continue
			}
			if msg, ok := s.admissible(actID, delay); !ok {
				warn(msg)
				continue
			}

			s.applyShift(actID, resourceID, delay, result)
			log.Debug().
				Str("activity", in.Network.Activities[actID].Code).
				Int("delay", delay).
				Msg("Serial leveling shifted activity")
			changed = true
			break // restart the sweep from the top of the priority order
		}

		if !changed {
			break
		}
	}

	result.Unresolved = s.remainingConflicts()
	result.Success = len(result.Unresolved) == 0
	finalize(s, result)
	return result, nil
}

// priorityOrder sorts activities by (early start asc, total float asc,
// id asc) so earlier, more-constrained work levels first.
func priorityOrder(in *Input) []uuid.UUID {
	ids := append([]uuid.UUID(nil), in.Network.IDs()...)
	sort.Slice(ids, func(i, j int) bool {
		a, b := in.CPM.Activities[ids[i]], in.CPM.Activities[ids[j]]
		if a.EarlyStart != b.EarlyStart {
			return a.EarlyStart < b.EarlyStart
		}
		if a.TotalFloat != b.TotalFloat {
			return a.TotalFloat < b.TotalFloat
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}

func finalize(s *state, result *Result) {
	result.NewFinish = s.projectFinish()
	anchor := s.in.Calendar.NextWorkingDay(s.in.ProgramStart)
	if result.OriginalFinish > 0 {
		result.OriginalFinishDate = s.in.Calendar.AddWorkingDays(anchor, result.OriginalFinish-1)
	} else {
		result.OriginalFinishDate = anchor
	}
	if result.NewFinish > 0 {
		result.NewFinishDate = s.in.Calendar.AddWorkingDays(anchor, result.NewFinish-1)
	} else {
		result.NewFinishDate = anchor
	}
}
