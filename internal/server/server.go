// Package server is the HTTP surface. Handlers stay thin: load the
// aggregate from the store, call the engine, translate the domain error
// kind to a status code.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/jira"
	"dpm-server/internal/repo"
	"dpm-server/internal/schedule"
	"dpm-server/internal/simulation"
	dpmsync "dpm-server/internal/sync"
)

type Server struct {
	store      *repo.Store
	calendar   *schedule.Calendar
	schedCache *schedule.Cache
	simCache   *simulation.Cache
	sims       *simStore
	engine     *dpmsync.Engine
	audit      *dpmsync.AuditLog
}

func NewServer(store *repo.Store, client jira.Client, calendar *schedule.Calendar) *Server {
	audit := dpmsync.NewAuditLog()
	return &Server{
		store:      store,
		calendar:   calendar,
		schedCache: schedule.NewCache(),
		simCache:   simulation.NewCache(),
		sims:       newSimStore(),
		engine:     dpmsync.NewEngine(client, store, audit),
		audit:      audit,
	}
}

func (s *Server) Audit() *dpmsync.AuditLog { return s.audit }

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/programs/{id}", func(r chi.Router) {
		r.Post("/schedule/calculate", s.handleCalculateSchedule)
		r.Get("/critical-path", s.handleCriticalPath)
		r.Get("/schedule/gantt", s.handleGantt)
		r.Post("/schedule/import", s.handleImportMSProject)

		r.Post("/level", s.handleLevelSerial)
		r.Post("/level/parallel", s.handleLevelParallel)
		r.Post("/level/compare", s.handleLevelCompare)
		r.Post("/level/apply", s.handleLevelApply)
		r.Get("/overallocations", s.handleOverallocations)

		r.Get("/variance/{period_id}", s.handleVariance)
		r.Post("/mr-log", s.handleAppendMR)
		r.Get("/mr-log", s.handleMRLog)

		r.Post("/jira/push-wbs", s.handlePushWBS)
		r.Post("/jira/push-activities", s.handlePushActivities)
		r.Post("/jira/pull", s.handlePull)
	})

	r.Get("/reports/cpr-format1/{program_id}", s.handleFormat1)
	r.Get("/reports/cpr-format3/{program_id}", s.handleFormat3)
	r.Get("/reports/cpr-format5/{program_id}", s.handleFormat5)

	r.Post("/simulations", s.handleCreateSimulation)
	r.Post("/simulations/{cfg}/run", s.handleRunSimulation)
	r.Post("/simulations/{cfg}/run-network", s.handleRunSimulationNetwork)
	r.Get("/simulations/{cfg}/chart", s.handleSimulationChart)

	r.Post("/activities/{id}/sync-progress", s.handleSyncProgress)
	r.Get("/integrations/{id}/sync-log", s.handleSyncLog)

	r.Post("/webhooks/jira", s.handleWebhook)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("Request handled")
	})
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindIntegrationNotFound:
		return http.StatusNotFound
	case domain.KindValidation, domain.KindCyclicNetwork:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusUnauthorized
	case domain.KindConflict, domain.KindSyncDisabled:
		return http.StatusConflict
	case domain.KindJiraTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body.Code = de.Code
		body.Error = de.Message
	}
	writeJSON(w, statusFor(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeMarkdown(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.Validation("body_malformed", "request body is not valid JSON: %v", err)
	}
	return nil
}

// urlUUID parses a path parameter as a UUID.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Validation(name+"_invalid", "%q is not a valid UUID", raw)
	}
	return id, nil
}

func parseQueryUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, domain.Validation(name+"_required", "query parameter %s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.Validation(name+"_invalid", "%q is not a valid UUID", raw)
	}
	return id, nil
}
