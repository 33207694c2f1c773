package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/schedule"
	"dpm-server/internal/visuals"
)

// loadNetwork assembles the program's live activity network.
func (s *Server) loadNetwork(programID string, r *http.Request) (*domain.Program, *schedule.Network, error) {
	id, err := urlUUID(r, programID)
	if err != nil {
		return nil, nil, err
	}
	program, err := s.store.Program(id)
	if err != nil {
		return nil, nil, err
	}
	network, err := schedule.NewNetwork(program.ID, s.store.ActivitiesByProgram(program.ID), s.store.DependenciesByProgram(program.ID))
	if err != nil {
		return nil, nil, err
	}
	network.ConstraintOffsets(s.calendar, program.StartDate)
	return program, network, nil
}

// computeCPM runs CPM through the cache. force bypasses a cached result
// and recomputes.
func (s *Server) computeCPM(network *schedule.Network, force bool) (*schedule.CPMResult, error) {
	return s.schedCache.Compute(network.Fingerprint(), force, func() (*schedule.CPMResult, error) {
		return schedule.CalculateCPM(network, 0)
	})
}

func (s *Server) handleCalculateSchedule(w http.ResponseWriter, r *http.Request) {
	program, network, err := s.loadNetwork("id", r)
	if err != nil {
		writeError(w, err)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	result, err := s.computeCPM(network, force)
	if err != nil {
		writeError(w, err)
		return
	}
	schedule.ApplyResult(network, result)

	log.Info().
		Str("program_id", program.ID.String()).
		Int("activities", len(result.Activities)).
		Int("duration", result.ProjectDuration).
		Msg("Schedule calculated")
	writeJSON(w, http.StatusOK, result)
}

type criticalPathResponse struct {
	ProgramID       string             `json:"program_id"`
	ProjectDuration int                `json:"project_duration"`
	CriticalPath    []criticalActivity `json:"critical_path"`
}

type criticalActivity struct {
	ActivityID  string `json:"activity_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Duration    int    `json:"duration"`
	EarlyStart  int    `json:"early_start"`
	EarlyFinish int    `json:"early_finish"`
}

func (s *Server) handleCriticalPath(w http.ResponseWriter, r *http.Request) {
	program, network, err := s.loadNetwork("id", r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.computeCPM(network, false)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := criticalPathResponse{
		ProgramID:       program.ID.String(),
		ProjectDuration: result.ProjectDuration,
	}
	for _, id := range result.CriticalPath {
		a := network.Activities[id]
		at := result.Activities[id]
		resp.CriticalPath = append(resp.CriticalPath, criticalActivity{
			ActivityID:  id.String(),
			Code:        a.Code,
			Name:        a.Name,
			Duration:    a.Duration,
			EarlyStart:  at.EarlyStart,
			EarlyFinish: at.EarlyFinish,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGantt renders the computed schedule as a Mermaid gantt chart in a
// fenced markdown block, suitable for pasting into a status report.
func (s *Server) handleGantt(w http.ResponseWriter, r *http.Request) {
	program, network, err := s.loadNetwork("id", r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.computeCPM(network, false)
	if err != nil {
		writeError(w, err)
		return
	}

	activities := make([]*domain.Activity, 0, len(network.Activities))
	for _, a := range network.Activities {
		activities = append(activities, a)
	}
	chart := visuals.GenerateGanttChart(program.Name, program.StartDate, s.calendar, activities, result)
	if chart == "" {
		writeError(w, domain.Validation("no_activities", "program %s has no scheduled activities", program.ID))
		return
	}
	writeMarkdown(w, chart)
}

// handleImportMSProject decodes an MS Project XML body into activities
// and dependencies under the WBS element named in the query string.
func (s *Server) handleImportMSProject(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	program, err := s.store.Program(programID)
	if err != nil {
		writeError(w, err)
		return
	}

	wbsID, err := parseQueryUUID(r, "wbs_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.WBS(wbsID); err != nil {
		writeError(w, err)
		return
	}

	imported, err := schedule.ImportMSProject(r.Body, program.ID, wbsID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, a := range imported.Activities {
		if err := s.store.CreateActivity(a); err != nil {
			writeError(w, err)
			return
		}
	}
	for _, d := range imported.Dependencies {
		if err := s.store.CreateDependency(d); err != nil {
			writeError(w, err)
			return
		}
	}

	log.Info().
		Str("program_id", program.ID.String()).
		Int("activities", len(imported.Activities)).
		Int("dependencies", len(imported.Dependencies)).
		Int("skipped", imported.Skipped).
		Msg("MS Project import complete")
	writeJSON(w, http.StatusCreated, imported)
}
