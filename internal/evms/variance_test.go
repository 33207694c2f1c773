package evms

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func decs(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = dec(v)
	}
	return out
}

func TestAnalyzeCell(t *testing.T) {
	wbsID, periodID := uuid.New(), uuid.New()

	variances := AnalyzeCell(wbsID, periodID, dec("250000"), dec("200000"), dec("220000"), VarianceOptions{})
	if len(variances) != 2 {
		t.Fatalf("got %d variances, want 2", len(variances))
	}

	sv := variances[0]
	if sv.Type != VarianceSchedule {
		t.Fatalf("first variance type = %s, want schedule", sv.Type)
	}
	assertDec(t, "SV amount", sv.Amount, dec("-50000"))
	assertDec(t, "SV percent", sv.Percent, dec("-20"))
	if sv.Severity != SeverityCritical {
		t.Errorf("SV severity = %s, want critical", sv.Severity)
	}
	if !sv.ExplanationRequired {
		t.Error("a -20%% schedule variance must require an explanation")
	}

	cv := variances[1]
	if cv.Type != VarianceCost {
		t.Fatalf("second variance type = %s, want cost", cv.Type)
	}
	assertDec(t, "CV amount", cv.Amount, dec("-20000"))
	assertDec(t, "CV percent", cv.Percent, dec("-8"))
	if cv.Severity != SeverityModerate {
		t.Errorf("CV severity = %s, want moderate", cv.Severity)
	}
	if cv.ExplanationRequired {
		t.Error("an -8%% cost variance is under the default threshold")
	}
}

func TestAnalyzeCellZeroBCWS(t *testing.T) {
	got := AnalyzeCell(uuid.New(), uuid.New(), decimal.Zero, dec("100"), dec("100"), VarianceOptions{})
	if got != nil {
		t.Errorf("zero cumulative BCWS should yield no variances, got %d", len(got))
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		pct  string
		want VarianceSeverity
	}{
		{"0", SeverityMinor},
		{"-4.99", SeverityMinor},
		{"5", SeverityModerate},
		{"-9.99", SeverityModerate},
		{"10", SeveritySignificant},
		{"14.99", SeveritySignificant},
		{"-15", SeverityCritical},
		{"42", SeverityCritical},
	}
	for _, tc := range tests {
		if got := ClassifySeverity(dec(tc.pct)); got != tc.want {
			t.Errorf("ClassifySeverity(%s) = %s, want %s", tc.pct, got, tc.want)
		}
	}
}

func TestCustomExplanationThreshold(t *testing.T) {
	opts := VarianceOptions{ExplanationThresholdPct: dec("5")}
	variances := AnalyzeCell(uuid.New(), uuid.New(), dec("250000"), dec("200000"), dec("220000"), opts)
	// -8% cost variance clears a 5% threshold.
	if !variances[1].ExplanationRequired {
		t.Error("cost variance should require an explanation at a 5%% threshold")
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		history []decimal.Decimal
		want    TrendDirection
	}{
		{"shrinking magnitude", decs("-12", "-9", "-5"), TrendImproving},
		{"growing magnitude", decs("3", "6", "9"), TrendWorsening},
		{"flat", decs("5", "5", "5"), TrendStable},
		{"mixed", decs("5", "9", "4"), TrendStable},
		{"single point", decs("7"), TrendStable},
		{"empty", nil, TrendStable},
		{"sign flip with shrinking magnitude", decs("-10", "6", "-2"), TrendImproving},
		// Only the last four points count: the early spike is outside the window.
		{"windowed", decs("50", "8", "6", "4", "2"), TrendImproving},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Trend(tc.history, 4); got != tc.want {
				t.Errorf("Trend = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestAnalyzeProgram(t *testing.T) {
	programID, periodID := uuid.New(), uuid.New()
	cells := []CellInput{
		{
			WBSID:      uuid.New(),
			BCWSCum:    dec("250000"),
			BCWPCum:    dec("200000"),
			ACWPCum:    dec("220000"),
			SVPctPrior: decs("-10", "-15"),
			CVPctPrior: decs("-12", "-10"),
		},
		{
			WBSID:   uuid.New(),
			BCWSCum: dec("100000"),
			BCWPCum: dec("98000"),
			ACWPCum: dec("99000"),
		},
	}

	report := AnalyzeProgram(programID, periodID, cells, VarianceOptions{})
	if len(report.Alerts) != 4 {
		t.Fatalf("got %d alerts, want 4", len(report.Alerts))
	}
	if report.CountByType[VarianceSchedule] != 2 || report.CountByType[VarianceCost] != 2 {
		t.Errorf("count by type = %v", report.CountByType)
	}
	if report.CountBySeverity[SeverityCritical] != 1 {
		t.Errorf("critical count = %d, want 1", report.CountBySeverity[SeverityCritical])
	}
	if report.CountBySeverity[SeverityMinor] != 2 {
		t.Errorf("minor count = %d, want 2", report.CountBySeverity[SeverityMinor])
	}

	// Worst first: the -20% schedule variance leads.
	worst := report.Alerts[0]
	if worst.Severity != SeverityCritical || worst.Type != VarianceSchedule {
		t.Errorf("first alert = %s/%s, want critical schedule", worst.Severity, worst.Type)
	}
	for i := 1; i < len(report.Alerts); i++ {
		if severityRank[report.Alerts[i].Severity] > severityRank[report.Alerts[i-1].Severity] {
			t.Error("alerts not sorted by severity descending")
		}
	}

	// History -10, -15, then -20 keeps worsening.
	if worst.Trend != TrendWorsening {
		t.Errorf("schedule trend = %s, want worsening", worst.Trend)
	}
	// Cost history -12, -10, then -8 keeps improving.
	var cost *Variance
	for i := range report.Alerts {
		if report.Alerts[i].Type == VarianceCost && report.Alerts[i].Severity == SeverityModerate {
			cost = &report.Alerts[i]
		}
	}
	if cost == nil {
		t.Fatal("moderate cost alert missing")
	}
	if cost.Trend != TrendImproving {
		t.Errorf("cost trend = %s, want improving", cost.Trend)
	}
}
