// Package simulation runs Monte Carlo schedule-risk analysis over an
// activity network. Quick mode samples durations and measures the
// longest path; network mode additionally runs a full CPM per iteration
// to produce criticality and sensitivity per activity.
package simulation

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dpm-server/internal/domain"
	"dpm-server/internal/schedule"
)

// Mode selects how much work each iteration does.
type Mode string

const (
	ModeQuick   Mode = "quick"
	ModeNetwork Mode = "network"
)

// Config is one saved simulation setup. Activities absent from
// Distributions keep their deterministic duration.
type Config struct {
	ID            uuid.UUID                  `json:"id"`
	ProgramID     uuid.UUID                  `json:"program_id"`
	Mode          Mode                       `json:"mode"`
	Iterations    int                        `json:"iterations"`
	Seed          *int64                     `json:"seed,omitempty"`
	Distributions map[uuid.UUID]Distribution `json:"distributions"`
}

// Validate checks the run parameters and every distribution.
func (c Config) Validate() error {
	if c.Iterations <= 0 {
		return domain.Validation("iterations", "iterations must be positive, got %d", c.Iterations)
	}
	if c.Mode != ModeQuick && c.Mode != ModeNetwork {
		return domain.Validation("simulation_mode", "unknown mode %q", c.Mode)
	}
	for id, d := range c.Distributions {
		if err := d.Validate(); err != nil {
			return domain.Validation("distribution", "activity %s: %v", id, err)
		}
	}
	return nil
}

// ActivityStats is the per-activity network-mode output. Criticality is
// the fraction of iterations the activity sat on the critical path;
// Sensitivity is the Pearson correlation between its sampled duration
// and the total duration.
type ActivityStats struct {
	CriticalityIndex float64 `json:"criticality_index"`
	Sensitivity      float64 `json:"sensitivity"`
}

// Percentiles of the total-duration sample.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P50 float64 `json:"p50"`
	P80 float64 `json:"p80"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// Result is the output of one simulation run.
type Result struct {
	ConfigID    uuid.UUID                    `json:"config_id"`
	ProgramID   uuid.UUID                    `json:"program_id"`
	Mode        Mode                         `json:"mode"`
	Iterations  int                          `json:"iterations"`
	Seed        int64                        `json:"seed"`
	Mean        float64                      `json:"mean"`
	StdDev      float64                      `json:"std_dev"`
	MinDuration float64                      `json:"min_duration"`
	MaxDuration float64                      `json:"max_duration"`
	Percentiles Percentiles                  `json:"percentiles"`
	Activities  map[uuid.UUID]*ActivityStats `json:"activities,omitempty"`
}

// Input is the network snapshot the run operates on.
type Input struct {
	ProgramID    uuid.UUID
	Activities   []*domain.Activity
	Dependencies []*domain.Dependency
}

// Run executes the configured simulation. The run is deterministic given
// the same seed and config; without a caller seed a cryptographically
// strong one is drawn and recorded on the result. Cancellation is
// checked between iterations.
func Run(ctx context.Context, in *Input, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := effectiveSeed(cfg.Seed)
	rng := rand.New(rand.NewSource(seed))

	result := &Result{
		ConfigID:   cfg.ID,
		ProgramID:  cfg.ProgramID,
		Mode:       cfg.Mode,
		Iterations: cfg.Iterations,
		Seed:       seed,
	}

	var totals []float64
	var err error
	switch cfg.Mode {
	case ModeQuick:
		totals, err = runQuick(ctx, in, cfg, rng)
	case ModeNetwork:
		totals, err = runNetwork(ctx, in, cfg, rng, result)
	}
	if err != nil {
		return nil, err
	}

	summarize(result, totals)

	log.Info().
		Str("program_id", in.ProgramID.String()).
		Str("mode", string(cfg.Mode)).
		Int("iterations", cfg.Iterations).
		Float64("p50", result.Percentiles.P50).
		Float64("p90", result.Percentiles.P90).
		Msg("Simulation complete")

	return result, nil
}

func effectiveSeed(caller *int64) int64 {
	if caller != nil {
		return *caller
	}
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; a zero
		// seed still yields a valid (if predictable) run.
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// runQuick samples durations and measures the longest path with a
// single forward pass per iteration, honoring dependency types and lags.
func runQuick(ctx context.Context, in *Input, cfg Config, rng *rand.Rand) ([]float64, error) {
	network, err := schedule.NewNetwork(in.ProgramID, in.Activities, in.Dependencies)
	if err != nil {
		return nil, err
	}
	order, err := network.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	totals := make([]float64, 0, cfg.Iterations)
	finish := make(map[uuid.UUID]float64, len(order))
	start := make(map[uuid.UUID]float64, len(order))

	for iter := 0; iter < cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		total := 0.0
		for _, id := range order {
			duration := sampleDuration(rng, cfg, network.Activities[id])

			es := 0.0
			for _, edge := range network.Predecessors(id) {
				var candidate float64
				lag := float64(edge.Lag)
				switch edge.Type {
				case domain.StartToStart:
					candidate = start[edge.PredecessorID] + lag
				case domain.FinishToFinish:
					candidate = finish[edge.PredecessorID] + lag - duration
				case domain.StartToFinish:
					candidate = start[edge.PredecessorID] + lag - duration
				default: // FS
					candidate = finish[edge.PredecessorID] + lag
				}
				if candidate > es {
					es = candidate
				}
			}
			start[id] = es
			finish[id] = es + duration
			if finish[id] > total {
				total = finish[id]
			}
		}
		totals = append(totals, total)
	}
	return totals, nil
}

// runNetwork runs a full CPM per iteration over a cloned network whose
// durations are rewritten from the samples each time.
func runNetwork(ctx context.Context, in *Input, cfg Config, rng *rand.Rand, result *Result) ([]float64, error) {
	clones := make([]*domain.Activity, len(in.Activities))
	for i, a := range in.Activities {
		copied := *a
		clones[i] = &copied
	}
	network, err := schedule.NewNetwork(in.ProgramID, clones, in.Dependencies)
	if err != nil {
		return nil, err
	}
	if _, err := network.TopologicalOrder(); err != nil {
		return nil, err
	}

	totals := make([]float64, 0, cfg.Iterations)
	criticalHits := make(map[uuid.UUID]int, len(clones))
	samples := make(map[uuid.UUID][]float64, len(clones))

	for iter := 0; iter < cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, a := range clones {
			sampled := sampleDuration(rng, cfg, a)
			if !a.Milestone {
				a.Duration = int(math.Round(sampled))
			}
			samples[a.ID] = append(samples[a.ID], sampled)
		}

		res, err := schedule.CalculateCPM(network, 0)
		if err != nil {
			return nil, err
		}
		totals = append(totals, float64(res.ProjectDuration))
		for id, at := range res.Activities {
			if at.IsCritical {
				criticalHits[id]++
			}
		}
	}

	result.Activities = make(map[uuid.UUID]*ActivityStats, len(clones))
	for _, a := range clones {
		result.Activities[a.ID] = &ActivityStats{
			CriticalityIndex: float64(criticalHits[a.ID]) / float64(cfg.Iterations),
			Sensitivity:      pearson(samples[a.ID], totals),
		}
	}
	return totals, nil
}

// sampleDuration draws from the activity's configured distribution, or
// falls back to its deterministic duration. Milestones stay at zero.
func sampleDuration(rng *rand.Rand, cfg Config, a *domain.Activity) float64 {
	if a.Milestone {
		return 0
	}
	d, ok := cfg.Distributions[a.ID]
	if !ok {
		return float64(a.Duration)
	}
	v := d.Sample(rng)
	if v < 0 {
		return 0
	}
	return v
}

func summarize(result *Result, totals []float64) {
	if len(totals) == 0 {
		return
	}
	sorted := append([]float64(nil), totals...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))
	variance := 0.0
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}

	result.Mean = mean
	result.StdDev = math.Sqrt(variance / float64(len(sorted)))
	result.MinDuration = sorted[0]
	result.MaxDuration = sorted[len(sorted)-1]
	result.Percentiles = Percentiles{
		P10: percentile(sorted, 0.10),
		P50: percentile(sorted, 0.50),
		P80: percentile(sorted, 0.80),
		P90: percentile(sorted, 0.90),
		P95: percentile(sorted, 0.95),
	}
}

func percentile(sorted []float64, q float64) float64 {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// pearson computes the correlation between an activity's sampled
// durations and the total durations across iterations.
func pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	n := float64(len(a))
	sumA, sumB := 0.0, 0.0
	sumA2, sumB2 := 0.0, 0.0
	sumAB := 0.0

	for i := 0; i < len(a); i++ {
		sumA += a[i]
		sumB += b[i]
		sumA2 += a[i] * a[i]
		sumB2 += b[i] * b[i]
		sumAB += a[i] * b[i]
	}

	num := (n * sumAB) - (sumA * sumB)
	den := math.Sqrt((n*sumA2 - sumA*sumA) * (n*sumB2 - sumB*sumB))
	if den == 0 {
		return 0
	}
	return num / den
}
