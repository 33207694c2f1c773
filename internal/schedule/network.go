package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// Network is the in-memory dependency graph for one program: activities
// keyed by ID plus forward and reverse adjacency indices. It assumes the
// write path has kept the graph acyclic; TopologicalOrder fails loudly if
// that assumption is violated.
type Network struct {
	ProgramID  uuid.UUID
	Activities map[uuid.UUID]*domain.Activity

	// ConstraintDays maps an activity to its constraint date expressed as
	// a working-day offset from the program start. Populated by
	// ConstraintOffsets; CPM ignores constraints for activities absent
	// from the map.
	ConstraintDays map[uuid.UUID]int

	forward map[uuid.UUID][]*domain.Dependency // keyed by predecessor
	reverse map[uuid.UUID][]*domain.Dependency // keyed by successor
	ids     []uuid.UUID                        // sorted for deterministic iteration
}

// NewNetwork indexes the given activities and dependencies. Edges whose
// endpoints are unknown are rejected.
func NewNetwork(programID uuid.UUID, activities []*domain.Activity, deps []*domain.Dependency) (*Network, error) {
	n := &Network{
		ProgramID:      programID,
		Activities:     make(map[uuid.UUID]*domain.Activity, len(activities)),
		ConstraintDays: make(map[uuid.UUID]int),
		forward:        make(map[uuid.UUID][]*domain.Dependency),
		reverse:        make(map[uuid.UUID][]*domain.Dependency),
	}

	for _, a := range activities {
		if a.Duration < 0 {
			return nil, domain.Validation("negative_duration", "activity %s has negative duration %d", a.Code, a.Duration)
		}
		if a.Milestone && a.Duration != 0 {
			return nil, domain.Validation("milestone_duration", "milestone %s must have duration 0", a.Code)
		}
		n.Activities[a.ID] = a
		n.ids = append(n.ids, a.ID)
	}
	sort.Slice(n.ids, func(i, j int) bool { return n.ids[i].String() < n.ids[j].String() })

	for _, d := range deps {
		if d.PredecessorID == d.SuccessorID {
			return nil, domain.Validation("self_dependency", "dependency %s links an activity to itself", d.ID)
		}
		if _, ok := n.Activities[d.PredecessorID]; !ok {
			return nil, domain.Validation("unknown_predecessor", "dependency %s references unknown predecessor %s", d.ID, d.PredecessorID)
		}
		if _, ok := n.Activities[d.SuccessorID]; !ok {
			return nil, domain.Validation("unknown_successor", "dependency %s references unknown successor %s", d.ID, d.SuccessorID)
		}
		n.forward[d.PredecessorID] = append(n.forward[d.PredecessorID], d)
		n.reverse[d.SuccessorID] = append(n.reverse[d.SuccessorID], d)
	}

	// Deterministic adjacency order keeps CPM tie-breaks reproducible.
	for _, edges := range n.forward {
		sortEdges(edges)
	}
	for _, edges := range n.reverse {
		sortEdges(edges)
	}

	return n, nil
}

func sortEdges(edges []*domain.Dependency) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].PredecessorID != edges[j].PredecessorID {
			return edges[i].PredecessorID.String() < edges[j].PredecessorID.String()
		}
		return edges[i].SuccessorID.String() < edges[j].SuccessorID.String()
	})
}

// IDs returns the activity IDs in sorted order.
func (n *Network) IDs() []uuid.UUID {
	return n.ids
}

// Successors returns the outgoing edges of the given activity.
func (n *Network) Successors(id uuid.UUID) []*domain.Dependency {
	return n.forward[id]
}

// Predecessors returns the incoming edges of the given activity.
func (n *Network) Predecessors(id uuid.UUID) []*domain.Dependency {
	return n.reverse[id]
}

// TopologicalOrder runs Kahn's algorithm over the network. Any node left
// unemitted means a cycle survived the write-path check, which is a hard
// failure.
func (n *Network) TopologicalOrder() ([]uuid.UUID, error) {
	inDegree := make(map[uuid.UUID]int, len(n.Activities))
	for _, id := range n.ids {
		inDegree[id] = len(n.reverse[id])
	}

	// Seed in sorted ID order so equal-rank nodes always emit the same way.
	var queue []uuid.UUID
	for _, id := range n.ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]uuid.UUID, 0, len(n.Activities))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, edge := range n.forward[id] {
			inDegree[edge.SuccessorID]--
			if inDegree[edge.SuccessorID] == 0 {
				queue = append(queue, edge.SuccessorID)
			}
		}
	}

	if len(order) != len(n.Activities) {
		var remaining []string
		for _, id := range n.ids {
			if inDegree[id] > 0 {
				remaining = append(remaining, n.Activities[id].Code)
			}
		}
		return nil, domain.CyclicNetwork(remaining)
	}

	return order, nil
}

// ConstraintOffsets converts each activity's constraint date into a
// working-day offset from programStart and stores it on the network.
func (n *Network) ConstraintOffsets(cal *Calendar, programStart time.Time) {
	for _, id := range n.ids {
		a := n.Activities[id]
		if a.Constraint == "" || a.Constraint == domain.ConstraintASAP || a.Constraint == domain.ConstraintALAP {
			continue
		}
		if a.ConstraintDate == nil {
			continue
		}
		n.ConstraintDays[id] = cal.WorkingDaysBetween(cal.NextWorkingDay(programStart), *a.ConstraintDate)
	}
}

// WouldCreateCycle reports whether adding an edge predecessor -> successor
// would close a cycle. This is the write-path check: a DFS from the
// successor looking for the predecessor.
func (n *Network) WouldCreateCycle(predecessorID, successorID uuid.UUID) bool {
	if predecessorID == successorID {
		return true
	}
	seen := make(map[uuid.UUID]bool)
	stack := []uuid.UUID{successorID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == predecessorID {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edge := range n.forward[id] {
			stack = append(stack, edge.SuccessorID)
		}
	}
	return false
}
