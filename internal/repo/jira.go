package repo

import (
	"github.com/google/uuid"

	"dpm-server/internal/domain"
)

// The Store satisfies both persistence surfaces the sync engine needs
// (sync.Mappings and sync.Directory); the compile-time assertions live
// in the sync-facing tests.

// --- Integrations ---

func (s *Store) SaveIntegration(i *domain.JiraIntegration) error {
	if i.ProjectKey == "" {
		return domain.Validation("integration_project_key_required", "project key must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prog, ok := s.programs[i.ProgramID]; !ok || prog.DeletedAt != nil {
		return domain.NotFound("program", i.ProgramID)
	}
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	s.integrations[i.ID] = i
	return nil
}

func (s *Store) Integration(id uuid.UUID) (*domain.JiraIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.integrations[id]
	if !ok || i.DeletedAt != nil {
		return nil, domain.NotFound("jira_integration", id)
	}
	return i, nil
}

// IntegrationForProgram returns the program's integration; at most one
// is live per program.
func (s *Store) IntegrationForProgram(programID uuid.UUID) (*domain.JiraIntegration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, i := range s.integrations {
		if i.ProgramID == programID && i.DeletedAt == nil {
			return i, nil
		}
	}
	return nil, &domain.Error{
		Kind:    domain.KindIntegrationNotFound,
		Code:    "integration_not_found",
		Message: "program " + programID.String() + " has no Jira integration",
	}
}

// IntegrationByProjectKey resolves a webhook's project key to its
// integration.
func (s *Store) IntegrationByProjectKey(projectKey string) (*domain.JiraIntegration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, i := range s.integrations {
		if i.ProjectKey == projectKey && i.DeletedAt == nil {
			return i, true
		}
	}
	return nil, false
}

// --- Mappings ---

func (s *Store) ForWBS(wbsID uuid.UUID) (*domain.JiraMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.mappings {
		if m.WBSID != nil && *m.WBSID == wbsID {
			return m, true
		}
	}
	return nil, false
}

func (s *Store) ForActivity(activityID uuid.UUID) (*domain.JiraMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.mappings {
		if m.ActivityID != nil && *m.ActivityID == activityID {
			return m, true
		}
	}
	return nil, false
}

func (s *Store) ByIssueKey(issueKey string) (*domain.JiraMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.mappings {
		if m.JiraIssueKey == issueKey {
			return m, true
		}
	}
	return nil, false
}

func (s *Store) Save(m *domain.JiraMapping) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.mu.Lock()
	s.mappings[m.ID] = m
	s.mu.Unlock()
}

// DeleteByIssueKey hard-deletes the mapping; there is no tombstone for
// mappings whose Jira issue is gone.
func (s *Store) DeleteByIssueKey(issueKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.mappings {
		if m.JiraIssueKey == issueKey {
			delete(s.mappings, id)
		}
	}
}

func (s *Store) MappingsByIntegration(integrationID uuid.UUID) []*domain.JiraMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JiraMapping
	for _, m := range s.mappings {
		if m.IntegrationID == integrationID {
			result = append(result, m)
		}
	}
	return result
}

// --- Directory lookups ---

// WBSByID is the directory lookup used when applying remote edits.
func (s *Store) WBSByID(id uuid.UUID) (*domain.WBSElement, bool) {
	el, err := s.WBS(id)
	return el, err == nil
}

func (s *Store) ActivityByID(id uuid.UUID) (*domain.Activity, bool) {
	a, err := s.Activity(id)
	return a, err == nil
}
