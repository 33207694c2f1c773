package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
)

type GeneratorConfig struct {
	Scenario string // "pipeline", "layered" or "contention"
	Count    int
	Seed     int64
	Start    time.Time
}

// Fixture is a complete synthetic program ready to be loaded into a store
// or replayed against the HTTP API.
type Fixture struct {
	Program      *domain.Program      `json:"program"`
	WBS          []*domain.WBSElement `json:"wbs"`
	Resources    []*domain.Resource   `json:"resources,omitempty"`
	Assignments  []*domain.Assignment `json:"assignments,omitempty"`
	Activities   []*domain.Activity   `json:"-"`
	Dependencies []*domain.Dependency `json:"dependencies"`
}

// Generate builds a synthetic program network.
//
// pipeline: one serial chain, every activity critical.
// layered: three parallel branches that fan out of a kickoff milestone and
// merge at a closing one, so the shorter branches carry float.
// contention: layered topology with every activity assigned full-time to a
// single resource, so leveling always has work to do.
func Generate(cfg GeneratorConfig) *Fixture {
	if cfg.Start.IsZero() {
		cfg.Start = time.Now()
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	program := &domain.Program{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("Synthetic Program (%s)", cfg.Scenario),
		Code:      "SYN-1",
		Status:    domain.ProgramActive,
		StartDate: cfg.Start,
		EndDate:   cfg.Start.AddDate(2, 0, 0),
		BAC:       decimal.NewFromInt(int64(cfg.Count) * 50000),
	}

	f := &Fixture{Program: program}

	root := wbs(program.ID, nil, "1", "Program", "1", 1)
	f.WBS = append(f.WBS, root)

	switch cfg.Scenario {
	case "layered", "contention":
		f.generateLayered(cfg, rng, root)
	default:
		f.generatePipeline(cfg, rng, root)
	}

	if cfg.Scenario == "contention" {
		f.assignSharedResource()
	}

	return f
}

func (f *Fixture) generatePipeline(cfg GeneratorConfig, rng *rand.Rand, root *domain.WBSElement) {
	var prev *domain.Activity
	for i := 0; i < cfg.Count; i++ {
		a := f.activity(root, fmt.Sprintf("A%03d", i+1), sampleDuration(rng))
		if prev != nil {
			f.dependency(prev, a, 0)
		}
		prev = a
	}
}

func (f *Fixture) generateLayered(cfg GeneratorConfig, rng *rand.Rand, root *domain.WBSElement) {
	branches := 3
	perBranch := cfg.Count / branches
	if perBranch < 1 {
		perBranch = 1
	}

	kickoff := f.activity(root, "M000", 0)
	kickoff.Milestone = true

	var branchTails []*domain.Activity
	for b := 0; b < branches; b++ {
		code := fmt.Sprintf("%d", b+1)
		leg := wbs(root.ProgramID, &root.ID, code, fmt.Sprintf("Leg %d", b+1), root.Path+"."+code, 2)
		f.WBS = append(f.WBS, leg)

		prev := kickoff
		for i := 0; i < perBranch; i++ {
			a := f.activity(leg, fmt.Sprintf("B%d%03d", b+1, i+1), sampleDuration(rng))
			f.dependency(prev, a, rng.Intn(3))
			prev = a
		}
		branchTails = append(branchTails, prev)
	}

	closeout := f.activity(root, "M999", 0)
	closeout.Milestone = true
	for _, tail := range branchTails {
		f.dependency(tail, closeout, 0)
	}
}

func (f *Fixture) assignSharedResource() {
	res := &domain.Resource{
		ID:             uuid.New(),
		Code:           "LAB-1",
		Name:           "Integration Lab",
		Type:           domain.ResourceEquipment,
		CapacityPerDay: 8,
		CostRate:       decimal.NewFromInt(250),
	}
	f.Resources = append(f.Resources, res)
	for _, a := range f.Activities {
		if a.Milestone {
			continue
		}
		f.Assignments = append(f.Assignments, &domain.Assignment{
			ID:         uuid.New(),
			ActivityID: a.ID,
			ResourceID: res.ID,
			Units:      1.0,
		})
	}
}

func (f *Fixture) activity(parent *domain.WBSElement, code string, duration int) *domain.Activity {
	a := &domain.Activity{
		ID:             uuid.New(),
		ProgramID:      parent.ProgramID,
		WBSID:          parent.ID,
		Code:           code,
		Name:           code,
		Duration:       duration,
		BCWSAtComplete: decimal.NewFromInt(int64(duration) * 5000),
	}
	f.Activities = append(f.Activities, a)
	return a
}

func (f *Fixture) dependency(pred, succ *domain.Activity, lag int) {
	f.Dependencies = append(f.Dependencies, &domain.Dependency{
		ID:            uuid.New(),
		ProgramID:     pred.ProgramID,
		PredecessorID: pred.ID,
		SuccessorID:   succ.ID,
		Type:          domain.FinishToStart,
		Lag:           lag,
	})
}

func wbs(programID uuid.UUID, parentID *uuid.UUID, code, name, path string, level int) *domain.WBSElement {
	return &domain.WBSElement{
		ID:        uuid.New(),
		ProgramID: programID,
		ParentID:  parentID,
		WBSCode:   code,
		Name:      name,
		Path:      path,
		Level:     level,
	}
}

// sampleDuration draws a rough triangular duration between 3 and 20 working
// days with a mode near 8.
func sampleDuration(rng *rand.Rand) int {
	a, m, b := 3.0, 8.0, 20.0
	u := rng.Float64()
	var d float64
	if u < (m-a)/(b-a) {
		d = a + math.Sqrt(u*(b-a)*(m-a))
	} else {
		d = b - math.Sqrt((1-u)*(b-a)*(b-m))
	}
	return int(d + 0.5)
}

// Save writes the fixture to outDir: activities as JSONL, one per line,
// plus a program.json with the program, WBS, resources and dependencies.
func Save(outDir string, f *Fixture) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	af, err := os.Create(filepath.Join(outDir, "activities.jsonl"))
	if err != nil {
		return err
	}
	defer af.Close()

	w := bufio.NewWriter(af)
	enc := json.NewEncoder(w)
	for _, a := range f.Activities {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	pf, err := os.Create(filepath.Join(outDir, "program.json"))
	if err != nil {
		return err
	}
	defer pf.Close()

	encP := json.NewEncoder(pf)
	encP.SetIndent("", "  ")
	return encP.Encode(f)
}
