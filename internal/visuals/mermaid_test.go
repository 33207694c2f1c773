package visuals

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"dpm-server/internal/domain"
	"dpm-server/internal/schedule"
	"dpm-server/internal/simulation"
)

func chainNetwork(t *testing.T) ([]*domain.Activity, *schedule.CPMResult) {
	t.Helper()

	programID := uuid.New()
	a := &domain.Activity{ID: uuid.New(), ProgramID: programID, Code: "A", Name: "Design", Duration: 5}
	b := &domain.Activity{ID: uuid.New(), ProgramID: programID, Code: "B", Name: "Build", Duration: 10}
	m := &domain.Activity{ID: uuid.New(), ProgramID: programID, Code: "M", Name: "CDR", Duration: 0, Milestone: true}

	deps := []*domain.Dependency{
		{ID: uuid.New(), ProgramID: programID, PredecessorID: a.ID, SuccessorID: b.ID, Type: domain.FinishToStart},
		{ID: uuid.New(), ProgramID: programID, PredecessorID: b.ID, SuccessorID: m.ID, Type: domain.FinishToStart},
	}

	net, err := schedule.NewNetwork(programID, []*domain.Activity{a, b, m}, deps)
	if err != nil {
		t.Fatalf("NewNetwork: %v", err)
	}
	res, err := schedule.CalculateCPM(net, 0)
	if err != nil {
		t.Fatalf("CalculateCPM: %v", err)
	}
	return []*domain.Activity{a, b, m}, res
}

func TestGenerateGanttChart(t *testing.T) {
	activities, res := chainNetwork(t)
	cal := schedule.NewCalendar(nil)
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC) // Monday

	chart := GenerateGanttChart("Sensor Upgrade", start, cal, activities, res)

	if !strings.HasPrefix(chart, "```mermaid\ngantt\n") {
		t.Fatalf("missing gantt header:\n%s", chart)
	}
	if !strings.Contains(chart, "title Sensor Upgrade") {
		t.Errorf("missing title:\n%s", chart)
	}
	// Everything on a single chain is critical.
	if !strings.Contains(chart, "Design :crit, A, 2026-01-05, 2026-01-09") {
		t.Errorf("Design task wrong:\n%s", chart)
	}
	// B starts the working day after A finishes (skipping the weekend).
	if !strings.Contains(chart, "Build :crit, B, 2026-01-12, 2026-01-23") {
		t.Errorf("Build task wrong:\n%s", chart)
	}
	if !strings.Contains(chart, "CDR :milestone, M, 2026-01-26, 0d") {
		t.Errorf("milestone wrong:\n%s", chart)
	}
}

func TestGenerateGanttChartEmpty(t *testing.T) {
	cal := schedule.NewCalendar(nil)
	if got := GenerateGanttChart("P", time.Now(), cal, nil, nil); got != "" {
		t.Errorf("expected empty chart, got %q", got)
	}
}

func TestGenerateGanttChartSanitizesLabels(t *testing.T) {
	activities, res := chainNetwork(t)
	activities[0].Name = "Design: phase #1"
	cal := schedule.NewCalendar(nil)
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	chart := GenerateGanttChart("X", start, cal, activities, res)
	if strings.Contains(chart, "Design:") || strings.Contains(chart, "#1") {
		t.Errorf("label not sanitized:\n%s", chart)
	}
}

func TestGenerateSimulationCDF(t *testing.T) {
	chart := GenerateSimulationCDF(simulation.Percentiles{P10: 80, P50: 85, P80: 90, P90: 93, P95: 96})
	if !strings.Contains(chart, "xychart-beta") {
		t.Fatalf("missing chart body:\n%s", chart)
	}
	if !strings.Contains(chart, "bar [80, 85, 90, 93, 96]") {
		t.Errorf("bar values wrong:\n%s", chart)
	}
	if got := GenerateSimulationCDF(simulation.Percentiles{}); got != "" {
		t.Errorf("expected empty chart for zero percentiles, got %q", got)
	}
}

func TestGenerateCriticalityChart(t *testing.T) {
	a := &domain.Activity{ID: uuid.New(), Code: "A", Name: "Design"}
	b := &domain.Activity{ID: uuid.New(), Code: "B", Name: "Build"}
	res := &simulation.Result{
		Activities: map[uuid.UUID]*simulation.ActivityStats{
			a.ID: {CriticalityIndex: 0.25},
			b.ID: {CriticalityIndex: 0.95},
		},
	}

	chart := GenerateCriticalityChart(res, []*domain.Activity{a, b})
	if !strings.Contains(chart, `x-axis ["B", "A"]`) {
		t.Errorf("activities not sorted by criticality:\n%s", chart)
	}
	if !strings.Contains(chart, "bar [0.95, 0.25]") {
		t.Errorf("bar values wrong:\n%s", chart)
	}
}
