package leveling

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// conflict is one (resource, day) over-allocation in the heap.
type conflict struct {
	day        int
	excess     float64
	resourceID uuid.UUID
}

// conflictHeap orders by day ascending, then peak excess descending: the
// earliest, worst conflict pops first.
type conflictHeap []conflict

func (h conflictHeap) Len() int { return len(h) }
func (h conflictHeap) Less(i, j int) bool {
	if h[i].day != h[j].day {
		return h[i].day < h[j].day
	}
	if h[i].excess != h[j].excess {
		return h[i].excess > h[j].excess
	}
	return h[i].resourceID.String() < h[j].resourceID.String()
}
func (h conflictHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *conflictHeap) Push(x any)   { *h = append(*h, x.(conflict)) }
func (h *conflictHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LevelParallel resolves over-allocations through a min-heap of conflicts
// considering all resources jointly. Each iteration pops the most urgent
// conflict, delays its lowest-priority contributor, propagates, and
// rebuilds the heap from the current placements.
func LevelParallel(ctx context.Context, in *Input, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	s := newState(in, opts)

	result := &Result{
		Algorithm:      "parallel",
		OriginalFinish: in.CPM.ProjectDuration,
		NewStarts:      make(map[uuid.UUID]int),
	}

	// skipped keys (resource:day) are conflicts proven unresolvable under
	// the current options; they are withheld from rebuilds so the loop
	// cannot spin on them.
	skipped := make(map[string]bool)
	seenResources := make(map[uuid.UUID]bool)
	warned := make(map[string]bool)
	warn := func(msg string) {
		if !warned[msg] {
			warned[msg] = true
			result.Warnings = append(result.Warnings, msg)
		}
	}

	h := buildConflictHeap(s, skipped)
	initialCount := h.Len()

	for iter := 0; iter < opts.MaxIterations && h.Len() > 0; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations = iter + 1

		c := heap.Pop(&h).(conflict)
		seenResources[c.resourceID] = true

		_, contributors, over := s.conflictOn(c.resourceID, c.day)
		if !over {
			continue // resolved as a side effect of an earlier move
		}

		candidate, delay, msg := pickCandidate(s, c, contributors)
		if candidate == uuid.Nil {
			warn(msg)
			skipped[fmt.Sprintf("%s:%d", c.resourceID, c.day)] = true
			h = buildConflictHeap(s, skipped)
			continue
		}

		s.applyShift(candidate, c.resourceID, delay, result)
		log.Debug().
			Str("activity", in.Network.Activities[candidate].Code).
			Int("day", c.day).
			Int("delay", delay).
			Msg("Parallel leveling shifted activity")

		h = buildConflictHeap(s, skipped)
	}

	result.Unresolved = s.remainingConflicts()
	result.Success = len(result.Unresolved) == 0
	remaining := countConflictDays(s)
	result.ConflictsResolved = initialCount - remaining
	if result.ConflictsResolved < 0 {
		result.ConflictsResolved = 0
	}
	result.ResourcesProcessed = len(seenResources)
	finalize(s, result)
	return result, nil
}

// buildConflictHeap scans every resource and day and rebuilds the heap
// from scratch. O(R*D) per call; fine at typical program sizes.
func buildConflictHeap(s *state, skipped map[string]bool) conflictHeap {
	var h conflictHeap
	resourceIDs := make([]uuid.UUID, 0, len(s.demand))
	for id := range s.demand {
		resourceIDs = append(resourceIDs, id)
	}
	sort.Slice(resourceIDs, func(i, j int) bool { return resourceIDs[i].String() < resourceIDs[j].String() })

	for _, resourceID := range resourceIDs {
		for day := 0; day < s.horizon; day++ {
			if skipped[fmt.Sprintf("%s:%d", resourceID, day)] {
				continue
			}
			excess, _, over := s.conflictOn(resourceID, day)
			if over {
				h = append(h, conflict{day: day, excess: excess, resourceID: resourceID})
			}
		}
	}
	heap.Init(&h)
	return h
}

func countConflictDays(s *state) int {
	count := 0
	for resourceID := range s.demand {
		for day := 0; day < s.horizon; day++ {
			if _, _, over := s.conflictOn(resourceID, day); over {
				count++
			}
		}
	}
	return count
}

// pickCandidate chooses the contributor with the lowest scheduling
// priority (critical ranks highest, then earliest start, then least
// float, then most resources) that admits a feasible, rule-compliant
// delay. Returns uuid.Nil with a warning when none qualifies.
func pickCandidate(s *state, c conflict, contributors []uuid.UUID) (uuid.UUID, int, string) {
	ranked := append([]uuid.UUID(nil), contributors...)
	sort.Slice(ranked, func(i, j int) bool {
		return priorityScore(s, ranked[i]) < priorityScore(s, ranked[j])
	})

	lastMsg := fmt.Sprintf("no delayable activity for resource %s conflict on day %d", s.in.Resources[c.resourceID].Code, c.day)
	for _, actID := range ranked {
		delay, found := s.minDelayToClear(actID, c.resourceID)
		if !found {
			lastMsg = "no available slot within search horizon for activity " + s.in.Network.Activities[actID].Code
			continue
		}
		if msg, ok := s.admissible(actID, delay); !ok {
			lastMsg = msg
			continue
		}
		return actID, delay, ""
	}
	return uuid.Nil, 0, lastMsg
}

// priorityScore ranks how strongly an activity resists being delayed;
// lower scores get delayed first. Critical activities dominate, then
// earlier starts, then smaller float, then broader resource usage.
func priorityScore(s *state, actID uuid.UUID) float64 {
	at := s.in.CPM.Activities[actID]
	score := 0.0
	if at.IsCritical {
		score += 1_000_000
	}
	// Later starts and larger floats lower the score.
	score -= float64(s.starts[actID]) * 1000
	score -= float64(at.TotalFloat) * 10
	score += float64(len(s.actRes[actID]))
	return score
}

// minDelayToClear finds the minimum delay after which adding the
// activity's units across its full duration no longer exceeds the
// resource's capacity.
func (s *state) minDelayToClear(actID, resourceID uuid.UUID) (int, bool) {
	return s.nextAvailableSlot(actID, resourceID)
}
