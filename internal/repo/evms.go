package repo

import (
	"sort"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// --- Resources and assignments ---

func (s *Store) SaveResource(r *domain.Resource) error {
	if r.CapacityPerDay < 0 {
		return domain.Validation("resource_capacity_negative", "capacity %.2f must not be negative", r.CapacityPerDay)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	s.mu.Lock()
	s.resources[r.ID] = r
	s.mu.Unlock()
	return nil
}

func (s *Store) Resource(id uuid.UUID) (*domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok || r.DeletedAt != nil {
		return nil, domain.NotFound("resource", id)
	}
	return r, nil
}

func (s *Store) Resources() []*domain.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Resource
	for _, r := range s.resources {
		if r.DeletedAt == nil {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

func (s *Store) CreateAssignment(a *domain.Assignment) error {
	if a.Units < 0 {
		return domain.Validation("assignment_units_negative", "units %.2f must not be negative", a.Units)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	activity, ok := s.activities[a.ActivityID]
	if !ok || activity.DeletedAt != nil {
		return domain.NotFound("activity", a.ActivityID)
	}
	if r, ok := s.resources[a.ResourceID]; !ok || r.DeletedAt != nil {
		return domain.NotFound("resource", a.ResourceID)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.assignments[a.ID] = a
	return nil
}

// AssignmentsByProgram returns the live assignments whose activity
// belongs to the program.
func (s *Store) AssignmentsByProgram(programID uuid.UUID) []*domain.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Assignment
	for _, a := range s.assignments {
		if a.DeletedAt != nil {
			continue
		}
		if activity, ok := s.activities[a.ActivityID]; ok && activity.DeletedAt == nil && activity.ProgramID == programID {
			result = append(result, a)
		}
	}
	return result
}

// --- EVMS periods ---

func (s *Store) SavePeriod(p *domain.EVMSPeriod) error {
	if p.EndDate.Before(p.StartDate) {
		return domain.Validation("period_dates_invalid", "period %s ends before it starts", p.Label)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prog, ok := s.programs[p.ProgramID]; !ok || prog.DeletedAt != nil {
		return domain.NotFound("program", p.ProgramID)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.periods[p.ID] = p
	return nil
}

func (s *Store) Period(id uuid.UUID) (*domain.EVMSPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.periods[id]
	if !ok || p.DeletedAt != nil {
		return nil, domain.NotFound("evms_period", id)
	}
	return p, nil
}

// PeriodsByProgram returns the live periods in chronological order.
func (s *Store) PeriodsByProgram(programID uuid.UUID) []*domain.EVMSPeriod {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EVMSPeriod
	for _, p := range s.periods {
		if p.ProgramID == programID && p.DeletedAt == nil {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result
}

func (s *Store) SavePeriodData(d *domain.PeriodData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.periods[d.PeriodID]; !ok || p.DeletedAt != nil {
		return domain.NotFound("evms_period", d.PeriodID)
	}
	if el, ok := s.wbs[d.WBSID]; !ok || el.DeletedAt != nil {
		return domain.NotFound("wbs_element", d.WBSID)
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.periodData[d.ID] = d
	return nil
}

// PeriodCells returns the (period x WBS) cells recorded for one period.
func (s *Store) PeriodCells(periodID uuid.UUID) []*domain.PeriodData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PeriodData
	for _, d := range s.periodData {
		if d.PeriodID == periodID {
			result = append(result, d)
		}
	}
	return result
}

// --- Management-reserve log ---

// AppendMR appends one ledger row, enforcing the chain: the entry's
// ending equals beginning + in - out, the beginning equals the previous
// ending, and the balance never goes negative. Sequence and CreatedAt
// are assigned here.
func (s *Store) AppendMR(entry *domain.MRLogEntry) error {
	ending := entry.BeginningMR.Add(entry.ChangesIn).Sub(entry.ChangesOut)
	if !entry.EndingMR.Equal(ending) {
		return domain.Validation("mr_chain_broken", "ending MR %s does not equal %s + %s - %s",
			entry.EndingMR, entry.BeginningMR, entry.ChangesIn, entry.ChangesOut)
	}
	if entry.EndingMR.IsNegative() {
		return domain.Validation("mr_negative", "ending MR %s must not be negative", entry.EndingMR)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prog, ok := s.programs[entry.ProgramID]; !ok || prog.DeletedAt != nil {
		return domain.NotFound("program", entry.ProgramID)
	}

	log := s.mrLogs[entry.ProgramID]
	if n := len(log); n > 0 {
		prev := log[n-1]
		if !entry.BeginningMR.Equal(prev.EndingMR) {
			return domain.Validation("mr_chain_broken", "beginning MR %s does not equal previous ending %s",
				entry.BeginningMR, prev.EndingMR)
		}
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.Sequence = len(log) + 1
	entry.CreatedAt = s.now()
	s.mrLogs[entry.ProgramID] = append(log, entry)
	return nil
}

// MRLog returns the program's ledger in sequence order.
func (s *Store) MRLog(programID uuid.UUID) []domain.MRLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.mrLogs[programID]
	result := make([]domain.MRLogEntry, len(log))
	for i, e := range log {
		result[i] = *e
	}
	return result
}
