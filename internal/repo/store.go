// Package repo is the in-memory persistence layer. One Store holds every
// aggregate, guarded by a single RWMutex; writes validate the structural
// invariants (WBS path uniqueness, dependency acyclicity, the MR chain)
// so the engines above it can assume well-formed data.
package repo

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

type Store struct {
	mu sync.RWMutex

	programs     map[uuid.UUID]*domain.Program
	wbs          map[uuid.UUID]*domain.WBSElement
	activities   map[uuid.UUID]*domain.Activity
	dependencies map[uuid.UUID]*domain.Dependency
	resources    map[uuid.UUID]*domain.Resource
	assignments  map[uuid.UUID]*domain.Assignment
	periods      map[uuid.UUID]*domain.EVMSPeriod
	periodData   map[uuid.UUID]*domain.PeriodData
	mrLogs       map[uuid.UUID][]*domain.MRLogEntry
	integrations map[uuid.UUID]*domain.JiraIntegration
	mappings     map[uuid.UUID]*domain.JiraMapping

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		programs:     make(map[uuid.UUID]*domain.Program),
		wbs:          make(map[uuid.UUID]*domain.WBSElement),
		activities:   make(map[uuid.UUID]*domain.Activity),
		dependencies: make(map[uuid.UUID]*domain.Dependency),
		resources:    make(map[uuid.UUID]*domain.Resource),
		assignments:  make(map[uuid.UUID]*domain.Assignment),
		periods:      make(map[uuid.UUID]*domain.EVMSPeriod),
		periodData:   make(map[uuid.UUID]*domain.PeriodData),
		mrLogs:       make(map[uuid.UUID][]*domain.MRLogEntry),
		integrations: make(map[uuid.UUID]*domain.JiraIntegration),
		mappings:     make(map[uuid.UUID]*domain.JiraMapping),
		now:          time.Now,
	}
}

// --- Programs ---

func (s *Store) SaveProgram(p *domain.Program) error {
	if p.Name == "" {
		return domain.Validation("program_name_required", "program name must not be empty")
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return domain.Validation("program_dates_invalid", "end date %s precedes start date %s", p.EndDate.Format("2006-01-02"), p.StartDate.Format("2006-01-02"))
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	s.mu.Lock()
	s.programs[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Store) Program(id uuid.UUID) (*domain.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[id]
	if !ok || p.DeletedAt != nil {
		return nil, domain.NotFound("program", id)
	}
	return p, nil
}

// DeleteProgram soft-deletes the program and everything it owns. Jira
// mappings have no tombstone and are removed outright; the sync audit
// log is append-only and untouched.
func (s *Store) DeleteProgram(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[id]
	if !ok || p.DeletedAt != nil {
		return domain.NotFound("program", id)
	}
	ts := s.now()
	p.DeletedAt = &ts

	for _, el := range s.wbs {
		if el.ProgramID == id && el.DeletedAt == nil {
			el.DeletedAt = &ts
		}
	}
	for _, a := range s.activities {
		if a.ProgramID == id && a.DeletedAt == nil {
			a.DeletedAt = &ts
			s.deleteActivityEdgesLocked(a.ID, ts)
		}
	}
	for _, d := range s.dependencies {
		if d.ProgramID == id && d.DeletedAt == nil {
			d.DeletedAt = &ts
		}
	}
	for _, per := range s.periods {
		if per.ProgramID == id && per.DeletedAt == nil {
			per.DeletedAt = &ts
		}
	}
	for _, integ := range s.integrations {
		if integ.ProgramID == id && integ.DeletedAt == nil {
			integ.DeletedAt = &ts
			for mid, m := range s.mappings {
				if m.IntegrationID == integ.ID {
					delete(s.mappings, mid)
				}
			}
		}
	}
	return nil
}

// --- WBS ---

// CreateWBS inserts one WBS element. Path and Level are derived here
// from the parent chain, never trusted from the caller.
func (s *Store) CreateWBS(el *domain.WBSElement) error {
	if el.WBSCode == "" {
		return domain.Validation("wbs_code_required", "wbs_code must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[el.ProgramID]
	if !ok || p.DeletedAt != nil {
		return domain.NotFound("program", el.ProgramID)
	}

	if el.ParentID == nil {
		el.Path = el.WBSCode
		el.Level = 1
	} else {
		parent, ok := s.wbs[*el.ParentID]
		if !ok || parent.DeletedAt != nil {
			return domain.NotFound("wbs_element", *el.ParentID)
		}
		if parent.ProgramID != el.ProgramID {
			return domain.Validation("wbs_parent_foreign", "parent %s belongs to another program", parent.Path)
		}
		el.Path = parent.Path + "." + el.WBSCode
		el.Level = parent.Level + 1
	}

	for _, existing := range s.wbs {
		if existing.ProgramID == el.ProgramID && existing.DeletedAt == nil && existing.Path == el.Path {
			return domain.Validation("wbs_path_duplicate", "path %s already exists in program", el.Path)
		}
	}

	if el.ID == uuid.Nil {
		el.ID = uuid.New()
	}
	s.wbs[el.ID] = el
	return nil
}

func (s *Store) WBS(id uuid.UUID) (*domain.WBSElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.wbs[id]
	if !ok || el.DeletedAt != nil {
		return nil, domain.NotFound("wbs_element", id)
	}
	return el, nil
}

// WBSByProgram returns the live WBS tree sorted by path.
func (s *Store) WBSByProgram(programID uuid.UUID) []*domain.WBSElement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WBSElement
	for _, el := range s.wbs {
		if el.ProgramID == programID && el.DeletedAt == nil {
			result = append(result, el)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result
}

// DeleteWBS soft-deletes the element, its descendants (by path prefix)
// and the activities attached to any of them.
func (s *Store) DeleteWBS(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, ok := s.wbs[id]
	if !ok || root.DeletedAt != nil {
		return domain.NotFound("wbs_element", id)
	}
	ts := s.now()
	prefix := root.Path + "."

	deleted := map[uuid.UUID]bool{}
	for _, el := range s.wbs {
		if el.ProgramID != root.ProgramID || el.DeletedAt != nil {
			continue
		}
		if el.ID == id || strings.HasPrefix(el.Path, prefix) {
			el.DeletedAt = &ts
			deleted[el.ID] = true
		}
	}
	for _, a := range s.activities {
		if a.DeletedAt == nil && deleted[a.WBSID] {
			a.DeletedAt = &ts
			s.deleteActivityEdgesLocked(a.ID, ts)
		}
	}
	return nil
}

// --- Activities ---

func (s *Store) CreateActivity(a *domain.Activity) error {
	if a.Duration < 0 {
		return domain.Validation("activity_duration_negative", "duration %d must not be negative", a.Duration)
	}
	if a.Milestone && a.Duration != 0 {
		return domain.Validation("milestone_duration_nonzero", "milestone %s must have duration 0", a.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.wbs[a.WBSID]
	if !ok || el.DeletedAt != nil {
		return domain.NotFound("wbs_element", a.WBSID)
	}
	a.ProgramID = el.ProgramID
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.activities[a.ID] = a
	return nil
}

func (s *Store) Activity(id uuid.UUID) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[id]
	if !ok || a.DeletedAt != nil {
		return nil, domain.NotFound("activity", id)
	}
	return a, nil
}

func (s *Store) ActivitiesByProgram(programID uuid.UUID) []*domain.Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Activity
	for _, a := range s.activities {
		if a.ProgramID == programID && a.DeletedAt == nil {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

func (s *Store) DeleteActivity(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok || a.DeletedAt != nil {
		return domain.NotFound("activity", id)
	}
	ts := s.now()
	a.DeletedAt = &ts
	s.deleteActivityEdgesLocked(id, ts)
	return nil
}

// deleteActivityEdgesLocked soft-deletes the dependencies and
// assignments referencing an activity. Caller holds the write lock.
func (s *Store) deleteActivityEdgesLocked(id uuid.UUID, ts time.Time) {
	for _, d := range s.dependencies {
		if d.DeletedAt == nil && (d.PredecessorID == id || d.SuccessorID == id) {
			d.DeletedAt = &ts
		}
	}
	for _, as := range s.assignments {
		if as.DeletedAt == nil && as.ActivityID == id {
			as.DeletedAt = &ts
		}
	}
}

// --- Dependencies ---

// CreateDependency inserts one edge. The cycle check lives here, on the
// write path; the CPM engine assumes acyclic input.
func (s *Store) CreateDependency(d *domain.Dependency) error {
	if d.PredecessorID == d.SuccessorID {
		return domain.Validation("dependency_self_loop", "an activity cannot depend on itself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pred, ok := s.activities[d.PredecessorID]
	if !ok || pred.DeletedAt != nil {
		return domain.NotFound("activity", d.PredecessorID)
	}
	succ, ok := s.activities[d.SuccessorID]
	if !ok || succ.DeletedAt != nil {
		return domain.NotFound("activity", d.SuccessorID)
	}
	if pred.ProgramID != succ.ProgramID {
		return domain.Validation("dependency_cross_program", "%s and %s belong to different programs", pred.Code, succ.Code)
	}

	for _, existing := range s.dependencies {
		if existing.DeletedAt == nil &&
			existing.PredecessorID == d.PredecessorID &&
			existing.SuccessorID == d.SuccessorID {
			return domain.Validation("dependency_duplicate", "edge %s -> %s already exists", pred.Code, succ.Code)
		}
	}

	if s.wouldCreateCycleLocked(pred.ProgramID, d.PredecessorID, d.SuccessorID) {
		return domain.Validation("dependency_cycle", "edge %s -> %s would create a cycle", pred.Code, succ.Code)
	}

	d.ProgramID = pred.ProgramID
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.dependencies[d.ID] = d
	return nil
}

// wouldCreateCycleLocked reports whether the predecessor is already
// reachable from the successor, which would close a loop. Iterative DFS
// over the live edges; caller holds a lock.
func (s *Store) wouldCreateCycleLocked(programID, predecessorID, successorID uuid.UUID) bool {
	next := make(map[uuid.UUID][]uuid.UUID)
	for _, d := range s.dependencies {
		if d.ProgramID == programID && d.DeletedAt == nil {
			next[d.PredecessorID] = append(next[d.PredecessorID], d.SuccessorID)
		}
	}

	visited := map[uuid.UUID]bool{}
	stack := []uuid.UUID{successorID}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == predecessorID {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, next[node]...)
	}
	return false
}

func (s *Store) DependenciesByProgram(programID uuid.UUID) []*domain.Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Dependency
	for _, d := range s.dependencies {
		if d.ProgramID == programID && d.DeletedAt == nil {
			result = append(result, d)
		}
	}
	return result
}

func (s *Store) DeleteDependency(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dependencies[id]
	if !ok || d.DeletedAt != nil {
		return domain.NotFound("dependency", id)
	}
	ts := s.now()
	d.DeletedAt = &ts
	return nil
}
