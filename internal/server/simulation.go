package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/simulation"
	"dpm-server/internal/visuals"
)

// simStore holds saved simulation configurations.
type simStore struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]simulation.Config
}

func newSimStore() *simStore {
	return &simStore{configs: make(map[uuid.UUID]simulation.Config)}
}

func (s *simStore) put(cfg simulation.Config) {
	s.mu.Lock()
	s.configs[cfg.ID] = cfg
	s.mu.Unlock()
}

func (s *simStore) get(id uuid.UUID) (simulation.Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	return cfg, ok
}

// simulationRequest is the wire shape for creating a configuration. It
// is validated against its derived JSON schema before decoding.
type simulationRequest struct {
	ProgramID     string                         `json:"program_id" jsonschema:"UUID of the program whose network to simulate"`
	Mode          string                         `json:"mode,omitempty" jsonschema:"quick or network"`
	Iterations    int                            `json:"iterations" jsonschema:"number of Monte Carlo iterations"`
	Seed          *int64                         `json:"seed,omitempty" jsonschema:"optional PRNG seed for reproducible runs"`
	Distributions map[string]distributionRequest `json:"distributions,omitempty" jsonschema:"per-activity duration distributions keyed by activity UUID"`
}

type distributionRequest struct {
	Kind   string  `json:"kind" jsonschema:"triangular, pert, normal or uniform"`
	Min    float64 `json:"min,omitempty"`
	Mode   float64 `json:"mode,omitempty"`
	Max    float64 `json:"max,omitempty"`
	Mean   float64 `json:"mean,omitempty"`
	StdDev float64 `json:"std_dev,omitempty"`
}

var (
	simSchemaOnce sync.Once
	simSchema     *jsonschema.Resolved
	simSchemaErr  error
)

func simulationRequestSchema() (*jsonschema.Resolved, error) {
	simSchemaOnce.Do(func() {
		schema, err := jsonschema.For[simulationRequest](nil)
		if err != nil {
			simSchemaErr = err
			return
		}
		simSchema, simSchemaErr = schema.Resolve(nil)
	})
	return simSchema, simSchemaErr
}

// handleCreateSimulation validates the request body against the JSON
// schema, converts it into a Config, and stores it for later runs.
func (s *Server) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, domain.Transient("read request body", err))
		return
	}

	schema, err := simulationRequestSchema()
	if err != nil {
		writeError(w, err)
		return
	}
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		writeError(w, domain.Validation("body_malformed", "request body is not valid JSON: %v", err))
		return
	}
	if err := schema.Validate(instance); err != nil {
		writeError(w, domain.Validation("simulation_schema", "%v", err))
		return
	}

	var req simulationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, domain.Validation("body_malformed", "request body is not valid JSON: %v", err))
		return
	}

	cfg, err := s.configFromRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	s.sims.put(cfg)
	log.Info().
		Str("config_id", cfg.ID.String()).
		Str("mode", string(cfg.Mode)).
		Int("iterations", cfg.Iterations).
		Msg("Simulation configuration created")
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) configFromRequest(req simulationRequest) (simulation.Config, error) {
	programID, err := uuid.Parse(req.ProgramID)
	if err != nil {
		return simulation.Config{}, domain.Validation("program_id_invalid", "%q is not a valid UUID", req.ProgramID)
	}
	if _, err := s.store.Program(programID); err != nil {
		return simulation.Config{}, err
	}

	mode := simulation.Mode(req.Mode)
	if mode == "" {
		mode = simulation.ModeQuick
	}

	cfg := simulation.Config{
		ID:            uuid.New(),
		ProgramID:     programID,
		Mode:          mode,
		Iterations:    req.Iterations,
		Seed:          req.Seed,
		Distributions: make(map[uuid.UUID]simulation.Distribution, len(req.Distributions)),
	}
	for key, d := range req.Distributions {
		activityID, err := uuid.Parse(key)
		if err != nil {
			return simulation.Config{}, domain.Validation("activity_id_invalid", "distribution key %q is not a valid UUID", key)
		}
		cfg.Distributions[activityID] = simulation.Distribution{
			Kind:   simulation.DistributionKind(d.Kind),
			Min:    d.Min,
			Mode:   d.Mode,
			Max:    d.Max,
			Mean:   d.Mean,
			StdDev: d.StdDev,
		}
	}
	return cfg, nil
}

func (s *Server) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	s.runSimulation(w, r, simulation.ModeQuick)
}

func (s *Server) handleRunSimulationNetwork(w http.ResponseWriter, r *http.Request) {
	s.runSimulation(w, r, simulation.ModeNetwork)
}

// runSimulation executes a stored configuration in the requested mode.
// The cache key covers both the configuration and the current network
// snapshot, so a result is only reused while neither has changed;
// bypass_cache=true forces a rerun regardless.
func (s *Server) runSimulation(w http.ResponseWriter, r *http.Request, mode simulation.Mode) {
	cfgID, err := urlUUID(r, "cfg")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, ok := s.sims.get(cfgID)
	if !ok {
		writeError(w, domain.NotFound("simulation_config", cfgID))
		return
	}
	cfg.Mode = mode

	in := &simulation.Input{
		ProgramID:    cfg.ProgramID,
		Activities:   s.store.ActivitiesByProgram(cfg.ProgramID),
		Dependencies: s.store.DependenciesByProgram(cfg.ProgramID),
	}

	bypass := r.URL.Query().Get("bypass_cache") == "true"
	result, err := s.simCache.Compute(cfg.CacheKey(in), bypass, func() (*simulation.Result, error) {
		return simulation.Run(r.Context(), in, cfg)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSimulationChart renders the run's percentile distribution (and, for
// network mode, criticality indices) as Mermaid charts. Cached results are
// reused, so charting after a run does not resimulate.
func (s *Server) handleSimulationChart(w http.ResponseWriter, r *http.Request) {
	cfgID, err := urlUUID(r, "cfg")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, ok := s.sims.get(cfgID)
	if !ok {
		writeError(w, domain.NotFound("simulation_config", cfgID))
		return
	}

	activities := s.store.ActivitiesByProgram(cfg.ProgramID)
	in := &simulation.Input{
		ProgramID:    cfg.ProgramID,
		Activities:   activities,
		Dependencies: s.store.DependenciesByProgram(cfg.ProgramID),
	}
	result, err := s.simCache.Compute(cfg.CacheKey(in), false, func() (*simulation.Result, error) {
		return simulation.Run(r.Context(), in, cfg)
	})
	if err != nil {
		writeError(w, err)
		return
	}

	sections := []string{visuals.GenerateSimulationCDF(result.Percentiles)}
	if crit := visuals.GenerateCriticalityChart(result, activities); crit != "" {
		sections = append(sections, crit)
	}
	writeMarkdown(w, strings.Join(sections, "\n\n"))
}
