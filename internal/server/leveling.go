package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/leveling"
)

// levelingInput assembles the in-memory snapshot both leveling
// algorithms run against.
func (s *Server) levelingInput(r *http.Request) (*leveling.Input, error) {
	program, network, err := s.loadNetwork("id", r)
	if err != nil {
		return nil, err
	}
	cpm, err := s.computeCPM(network, false)
	if err != nil {
		return nil, err
	}

	resources := make(map[uuid.UUID]*domain.Resource)
	for _, res := range s.store.Resources() {
		resources[res.ID] = res
	}

	return &leveling.Input{
		Network:      network,
		CPM:          cpm,
		Resources:    resources,
		Assignments:  s.store.AssignmentsByProgram(program.ID),
		Calendar:     s.calendar,
		ProgramStart: program.StartDate,
	}, nil
}

func (s *Server) handleLevelSerial(w http.ResponseWriter, r *http.Request) {
	s.runLeveling(w, r, leveling.LevelSerial)
}

func (s *Server) handleLevelParallel(w http.ResponseWriter, r *http.Request) {
	s.runLeveling(w, r, leveling.LevelParallel)
}

func (s *Server) runLeveling(w http.ResponseWriter, r *http.Request, level func(context.Context, *leveling.Input, leveling.Options) (*leveling.Result, error)) {
	var opts leveling.Options
	if err := decodeBody(r, &opts); err != nil {
		writeError(w, err)
		return
	}
	in, err := s.levelingInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := level(r.Context(), in, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLevelCompare(w http.ResponseWriter, r *http.Request) {
	var opts leveling.Options
	if err := decodeBody(r, &opts); err != nil {
		writeError(w, err)
		return
	}
	in, err := s.levelingInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cmp, err := leveling.Compare(r.Context(), in, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type applyRequest struct {
	Algorithm string           `json:"algorithm"`
	Options   leveling.Options `json:"options"`
}

type applyResponse struct {
	Result  *leveling.Result `json:"result"`
	Applied int              `json:"applied"`
}

// handleLevelApply runs the chosen algorithm and writes the proposed
// starts into the activities' planned dates in one store pass.
func (s *Server) handleLevelApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	level := leveling.LevelSerial
	switch req.Algorithm {
	case "", "serial":
	case "parallel":
		level = leveling.LevelParallel
	default:
		writeError(w, domain.Validation("algorithm_unknown", "unknown leveling algorithm %q", req.Algorithm))
		return
	}

	in, err := s.levelingInput(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := level(r.Context(), in, req.Options)
	if err != nil {
		writeError(w, err)
		return
	}

	applied := 0
	base := s.calendar.NextWorkingDay(in.ProgramStart)
	for id, newStart := range result.NewStarts {
		activity, err := s.store.Activity(id)
		if err != nil {
			continue
		}
		start := s.calendar.AddWorkingDays(base, newStart)
		finish := start
		if activity.Duration > 0 {
			finish = s.calendar.AddWorkingDays(base, newStart+activity.Duration-1)
		}
		activity.PlannedStart = &start
		activity.PlannedFinish = &finish
		applied++
	}

	log.Info().
		Str("algorithm", result.Algorithm).
		Int("applied", applied).
		Int("extension_days", result.ExtensionDays()).
		Msg("Leveling applied to planned dates")
	writeJSON(w, http.StatusOK, applyResponse{Result: result, Applied: applied})
}

func (s *Server) handleOverallocations(w http.ResponseWriter, r *http.Request) {
	in, err := s.levelingInput(r)
	if err != nil {
		writeError(w, err)
		return
	}

	from := in.ProgramStart
	to := s.calendar.AddWorkingDays(s.calendar.NextWorkingDay(from), in.CPM.ProjectDuration)
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, domain.Validation("to_invalid", "%q is not a YYYY-MM-DD date", raw))
			return
		}
		to = parsed
	}

	report := leveling.BuildProgramReport(in, from, to)
	writeJSON(w, http.StatusOK, report)
}
