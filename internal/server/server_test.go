package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/jira"
	"dpm-server/internal/repo"
	"dpm-server/internal/schedule"
	dpmsync "dpm-server/internal/sync"
)

// stubJira answers every call with canned data; the sync engine's own
// behavior is covered in its package tests.
type stubJira struct {
	issues map[string]*jira.Issue
}

func (s *stubJira) CreateEpic(ctx context.Context, in jira.CreateEpicInput) (*jira.Issue, error) {
	key := fmt.Sprintf("DPM-%d", len(s.issues)+1)
	issue := &jira.Issue{ID: key, Key: key, Fields: jira.IssueFields{
		Summary: in.Summary,
		Status:  jira.StatusField{Name: "To Do"},
		Project: jira.ProjectField{Key: in.ProjectKey},
		Updated: "2026-08-20T10:00:00.000+0000",
	}}
	s.issues[key] = issue
	return issue, nil
}

func (s *stubJira) CreateIssue(ctx context.Context, in jira.CreateIssueInput) (*jira.Issue, error) {
	return s.CreateEpic(ctx, jira.CreateEpicInput{ProjectKey: in.ProjectKey, Summary: in.Summary})
}

func (s *stubJira) UpdateIssue(ctx context.Context, key, summary, description string) error {
	return nil
}

func (s *stubJira) GetIssue(ctx context.Context, key string) (*jira.Issue, error) {
	issue, ok := s.issues[key]
	if !ok {
		return nil, domain.NotFound("jira_issue", key)
	}
	return issue, nil
}

func (s *stubJira) GetTransitions(ctx context.Context, key string) ([]jira.Transition, error) {
	return nil, nil
}

func (s *stubJira) TransitionIssue(ctx context.Context, key, transitionID string) error {
	return nil
}

type fixture struct {
	server  *Server
	store   *repo.Store
	handler http.Handler
	program *domain.Program
	root    *domain.WBSElement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repo.NewStore()
	srv := NewServer(store, &stubJira{issues: make(map[string]*jira.Issue)}, schedule.NewCalendar(nil))

	program := &domain.Program{
		Name:      "Unmanned Air Vehicle",
		Code:      "UAV-1",
		Status:    domain.ProgramActive,
		StartDate: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		BAC:       decimal.NewFromInt(1000000),
	}
	if err := store.SaveProgram(program); err != nil {
		t.Fatalf("SaveProgram: %v", err)
	}
	root := &domain.WBSElement{ProgramID: program.ID, WBSCode: "1", Name: "Program"}
	if err := store.CreateWBS(root); err != nil {
		t.Fatalf("CreateWBS: %v", err)
	}

	return &fixture{server: srv, store: store, handler: srv.Router(), program: program, root: root}
}

func (f *fixture) addActivity(t *testing.T, code string, duration int) *domain.Activity {
	t.Helper()
	a := &domain.Activity{WBSID: f.root.ID, Code: code, Name: code, Duration: duration}
	if err := f.store.CreateActivity(a); err != nil {
		t.Fatalf("CreateActivity(%s): %v", code, err)
	}
	return a
}

func (f *fixture) addEdge(t *testing.T, pred, succ *domain.Activity) {
	t.Helper()
	err := f.store.CreateDependency(&domain.Dependency{
		PredecessorID: pred.ID, SuccessorID: succ.ID, Type: domain.FinishToStart,
	})
	if err != nil {
		t.Fatalf("CreateDependency(%s->%s): %v", pred.Code, succ.Code, err)
	}
}

// buildChainNetwork loads A(10)->B(15)->{C(30),D(25)}->E(20)->F(10).
func (f *fixture) buildChainNetwork(t *testing.T) map[string]*domain.Activity {
	t.Helper()
	durations := map[string]int{"A": 10, "B": 15, "C": 30, "D": 25, "E": 20, "F": 10}
	acts := make(map[string]*domain.Activity, len(durations))
	for _, code := range []string{"A", "B", "C", "D", "E", "F"} {
		acts[code] = f.addActivity(t, code, durations[code])
	}
	f.addEdge(t, acts["A"], acts["B"])
	f.addEdge(t, acts["B"], acts["C"])
	f.addEdge(t, acts["B"], acts["D"])
	f.addEdge(t, acts["C"], acts["E"])
	f.addEdge(t, acts["D"], acts["E"])
	f.addEdge(t, acts["E"], acts["F"])
	return acts
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCalculateScheduleEndpoint(t *testing.T) {
	f := newFixture(t)
	f.buildChainNetwork(t)

	rec := f.do(t, http.MethodPost, "/programs/"+f.program.ID.String()+"/schedule/calculate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result schedule.CPMResult
	decodeInto(t, rec, &result)
	if result.ProjectDuration != 85 {
		t.Errorf("project duration = %d, want 85", result.ProjectDuration)
	}
	if len(result.CriticalPath) != 5 {
		t.Errorf("critical path length = %d, want 5", len(result.CriticalPath))
	}
}

func TestCriticalPathEndpoint(t *testing.T) {
	f := newFixture(t)
	f.buildChainNetwork(t)

	rec := f.do(t, http.MethodGet, "/programs/"+f.program.ID.String()+"/critical-path", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp criticalPathResponse
	decodeInto(t, rec, &resp)
	var codes []string
	for _, a := range resp.CriticalPath {
		codes = append(codes, a.Code)
	}
	if got := strings.Join(codes, ","); got != "A,B,C,E,F" {
		t.Errorf("critical path = %s, want A,B,C,E,F", got)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)

	// Unknown program: 404.
	rec := f.do(t, http.MethodPost, "/programs/"+uuid.New().String()+"/schedule/calculate", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown program status = %d, want 404", rec.Code)
	}

	// Malformed UUID: 400.
	rec = f.do(t, http.MethodPost, "/programs/not-a-uuid/schedule/calculate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad uuid status = %d, want 400", rec.Code)
	}

	var body errorBody
	decodeInto(t, rec, &body)
	if body.Code == "" {
		t.Error("error body should carry a machine-readable code")
	}
}

func TestFormat1Endpoint(t *testing.T) {
	f := newFixture(t)
	child := &domain.WBSElement{
		ProgramID: f.program.ID, ParentID: &f.root.ID,
		WBSCode: "1", Name: "Air Vehicle", BAC: decimal.NewFromInt(600000),
	}
	if err := f.store.CreateWBS(child); err != nil {
		t.Fatalf("CreateWBS: %v", err)
	}

	period := &domain.EVMSPeriod{
		ProgramID: f.program.ID, Label: "2026-01",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := f.store.SavePeriod(period); err != nil {
		t.Fatalf("SavePeriod: %v", err)
	}
	if err := f.store.SavePeriodData(&domain.PeriodData{
		PeriodID: period.ID, WBSID: child.ID,
		BCWS: decimal.NewFromInt(250000), BCWP: decimal.NewFromInt(200000), ACWP: decimal.NewFromInt(220000),
	}); err != nil {
		t.Fatalf("SavePeriodData: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/reports/cpr-format1/"+f.program.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Rows []struct {
			WBSCode string `json:"wbs_code"`
			BCWP    string `json:"bcwp"`
		} `json:"rows"`
		Totals struct {
			BCWP string `json:"bcwp"`
		} `json:"totals"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(resp.Rows))
	}
	if resp.Totals.BCWP != "200000" {
		t.Errorf("totals BCWP = %s, want 200000", resp.Totals.BCWP)
	}

	// No periods at all: 400 with a validation code.
	empty := newFixture(t)
	rec = empty.do(t, http.MethodGet, "/reports/cpr-format1/"+empty.program.ID.String(), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no-period status = %d, want 400", rec.Code)
	}
}

func TestSimulationEndpoints(t *testing.T) {
	f := newFixture(t)
	f.buildChainNetwork(t)

	seed := int64(42)
	create := f.do(t, http.MethodPost, "/simulations", map[string]any{
		"program_id": f.program.ID.String(),
		"mode":       "quick",
		"iterations": 200,
		"seed":       seed,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", create.Code, create.Body.String())
	}
	var cfg struct {
		ID string `json:"id"`
	}
	decodeInto(t, create, &cfg)

	run := f.do(t, http.MethodPost, "/simulations/"+cfg.ID+"/run", nil)
	if run.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", run.Code, run.Body.String())
	}
	var result struct {
		Seed        int64   `json:"seed"`
		Iterations  int     `json:"iterations"`
		Percentiles struct {
			P50 float64 `json:"p50"`
		} `json:"percentiles"`
	}
	decodeInto(t, run, &result)
	if result.Seed != seed || result.Iterations != 200 {
		t.Errorf("result seed/iterations = %d/%d, want %d/200", result.Seed, result.Iterations, seed)
	}
	// No distributions: every iteration reproduces the deterministic 85.
	if result.Percentiles.P50 != 85 {
		t.Errorf("p50 = %v, want 85", result.Percentiles.P50)
	}

	// Unknown config: 404.
	missing := f.do(t, http.MethodPost, "/simulations/"+uuid.New().String()+"/run-network", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("unknown config status = %d, want 404", missing.Code)
	}
}

func TestSimulationSchemaRejectsBadBody(t *testing.T) {
	f := newFixture(t)

	// iterations as a string violates the derived schema.
	req := httptest.NewRequest(http.MethodPost, "/simulations",
		strings.NewReader(`{"program_id":"`+f.program.ID.String()+`","iterations":"many"}`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookSignature(t *testing.T) {
	f := newFixture(t)
	integ := &domain.JiraIntegration{
		ProgramID: f.program.ID, ProjectKey: "DPM", Enabled: true, WebhookSecret: "s3cret",
	}
	if err := f.store.SaveIntegration(integ); err != nil {
		t.Fatalf("SaveIntegration: %v", err)
	}

	body := []byte(`{"webhookEvent":"comment_created","issue":{"key":"DPM-1","fields":{"project":{"key":"DPM"}}}}`)

	// Wrong signature: the only 401 path.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/jira", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature status = %d, want 401", rec.Code)
	}

	// Correct signature, unsupported event: 200 with the reason.
	req = httptest.NewRequest(http.MethodPost, "/webhooks/jira", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature", dpmsync.Signature("s3cret", body))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good signature status = %d, want 200", rec.Code)
	}
	var resp dpmsync.WebhookResponse
	decodeInto(t, rec, &resp)
	if !resp.Success || resp.Action != "ignored_unsupported_event" {
		t.Errorf("response = %+v", resp)
	}
}

func TestPushWBSEndpoint(t *testing.T) {
	f := newFixture(t)
	integ := &domain.JiraIntegration{ProgramID: f.program.ID, ProjectKey: "DPM", Enabled: true}
	if err := f.store.SaveIntegration(integ); err != nil {
		t.Fatalf("SaveIntegration: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/programs/"+f.program.ID.String()+"/jira/push-wbs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result dpmsync.BatchResult
	decodeInto(t, rec, &result)
	if !result.Success || result.ItemsSynced != 1 {
		t.Errorf("result = %+v, want one synced item", result)
	}
	if _, ok := f.store.ForWBS(f.root.ID); !ok {
		t.Error("push should create a mapping")
	}

	// Program without an integration: 404.
	other := newFixture(t)
	rec = other.do(t, http.MethodPost, "/programs/"+other.program.ID.String()+"/jira/push-wbs", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("no-integration status = %d, want 404", rec.Code)
	}
}

func TestLevelingEndpointRuns(t *testing.T) {
	f := newFixture(t)
	a := f.addActivity(t, "A", 10)
	b := f.addActivity(t, "B", 10)

	resource := &domain.Resource{Code: "ENG", Name: "Engineer", Type: domain.ResourceLabor, CapacityPerDay: 8}
	if err := f.store.SaveResource(resource); err != nil {
		t.Fatalf("SaveResource: %v", err)
	}
	for _, act := range []*domain.Activity{a, b} {
		if err := f.store.CreateAssignment(&domain.Assignment{ActivityID: act.ID, ResourceID: resource.ID, Units: 1.0}); err != nil {
			t.Fatalf("CreateAssignment: %v", err)
		}
	}

	rec := f.do(t, http.MethodPost, "/programs/"+f.program.ID.String()+"/level", map[string]any{
		"max_iterations": 50,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Algorithm string `json:"algorithm"`
		Success   bool   `json:"success"`
		Shifts    []any  `json:"shifts"`
	}
	decodeInto(t, rec, &result)
	if result.Algorithm != "serial" {
		t.Errorf("algorithm = %s, want serial", result.Algorithm)
	}
	if !result.Success || len(result.Shifts) == 0 {
		t.Errorf("two parallel full-time activities should force a shift: %+v", result)
	}
}

func TestMRLogEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/programs/"+f.program.ID.String()+"/mr-log", map[string]any{
		"beginning_mr": "50000",
		"changes_in":   "0",
		"changes_out":  "5000",
		"ending_mr":    "45000",
		"reason":       "Baseline change request 12",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("append status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Broken chain: 400.
	rec = f.do(t, http.MethodPost, "/programs/"+f.program.ID.String()+"/mr-log", map[string]any{
		"beginning_mr": "99999",
		"changes_in":   "0",
		"changes_out":  "0",
		"ending_mr":    "99999",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken chain status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/programs/"+f.program.ID.String()+"/mr-log", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var entries []domain.MRLogEntry
	decodeInto(t, rec, &entries)
	if len(entries) != 1 || entries[0].Sequence != 1 {
		t.Errorf("entries = %+v, want the single valid row", entries)
	}
}

func TestGanttEndpoint(t *testing.T) {
	f := newFixture(t)
	f.buildChainNetwork(t)

	rec := f.do(t, http.MethodGet, "/programs/"+f.program.ID.String()+"/schedule/gantt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "```mermaid\ngantt\n") {
		t.Fatalf("missing gantt block:\n%s", body)
	}
	if !strings.Contains(body, "title Unmanned Air Vehicle") {
		t.Errorf("missing program title:\n%s", body)
	}
	// A(10) anchored at the program start on Mon 2026-01-05 spans two weeks.
	if !strings.Contains(body, "A :crit, A, 2026-01-05, 2026-01-16") {
		t.Errorf("critical chain head wrong:\n%s", body)
	}
	// D has float, so no crit tag.
	if !strings.Contains(body, "D :D,") {
		t.Errorf("non-critical task wrong:\n%s", body)
	}

	// Program with no activities: 400.
	empty := &domain.Program{
		Name:      "Empty",
		Code:      "E-1",
		Status:    domain.ProgramActive,
		StartDate: f.program.StartDate,
		EndDate:   f.program.EndDate,
	}
	if err := f.store.SaveProgram(empty); err != nil {
		t.Fatalf("SaveProgram: %v", err)
	}
	rec = f.do(t, http.MethodGet, "/programs/"+empty.ID.String()+"/schedule/gantt", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty program status = %d, want 400", rec.Code)
	}
}

func TestSimulationChartEndpoint(t *testing.T) {
	f := newFixture(t)
	f.buildChainNetwork(t)

	seed := int64(7)
	create := f.do(t, http.MethodPost, "/simulations", map[string]any{
		"program_id": f.program.ID.String(),
		"mode":       "network",
		"iterations": 100,
		"seed":       seed,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", create.Code, create.Body.String())
	}
	var cfg struct {
		ID string `json:"id"`
	}
	decodeInto(t, create, &cfg)

	rec := f.do(t, http.MethodGet, "/simulations/"+cfg.ID+"/chart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("chart status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Schedule Risk (Cumulative Probability)") {
		t.Errorf("missing CDF chart:\n%s", body)
	}
	// Network mode carries criticality indices, so the second chart renders.
	if !strings.Contains(body, "Criticality Index") {
		t.Errorf("missing criticality chart:\n%s", body)
	}

	missing := f.do(t, http.MethodGet, "/simulations/"+uuid.New().String()+"/chart", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("unknown config status = %d, want 404", missing.Code)
	}
}

func TestSimulationRerunsAfterNetworkEdit(t *testing.T) {
	f := newFixture(t)
	acts := f.buildChainNetwork(t)

	seed := int64(42)
	create := f.do(t, http.MethodPost, "/simulations", map[string]any{
		"program_id": f.program.ID.String(),
		"iterations": 100,
		"seed":       seed,
	})
	if create.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", create.Code, create.Body.String())
	}
	var cfg struct {
		ID string `json:"id"`
	}
	decodeInto(t, create, &cfg)

	var result struct {
		Percentiles struct {
			P50 float64 `json:"p50"`
		} `json:"percentiles"`
	}
	run := f.do(t, http.MethodPost, "/simulations/"+cfg.ID+"/run", nil)
	if run.Code != http.StatusOK {
		t.Fatalf("run status = %d, body %s", run.Code, run.Body.String())
	}
	decodeInto(t, run, &result)
	if result.Percentiles.P50 != 85 {
		t.Fatalf("p50 = %v, want 85", result.Percentiles.P50)
	}

	// Extending the chain must miss the cache without bypass_cache.
	g := f.addActivity(t, "G", 10)
	f.addEdge(t, acts["F"], g)

	rerun := f.do(t, http.MethodPost, "/simulations/"+cfg.ID+"/run", nil)
	if rerun.Code != http.StatusOK {
		t.Fatalf("rerun status = %d, body %s", rerun.Code, rerun.Body.String())
	}
	decodeInto(t, rerun, &result)
	if result.Percentiles.P50 != 95 {
		t.Errorf("p50 after network edit = %v, want 95 (stale cached result served)", result.Percentiles.P50)
	}
}
