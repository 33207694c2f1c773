package evms

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VarianceType distinguishes schedule from cost variance rows.
type VarianceType string

const (
	VarianceSchedule VarianceType = "schedule"
	VarianceCost     VarianceType = "cost"
)

// VarianceSeverity buckets a variance by its absolute percentage.
type VarianceSeverity string

const (
	SeverityMinor       VarianceSeverity = "minor"       // < 5%
	SeverityModerate    VarianceSeverity = "moderate"    // < 10%
	SeveritySignificant VarianceSeverity = "significant" // < 15%
	SeverityCritical    VarianceSeverity = "critical"
)

var severityRank = map[VarianceSeverity]int{
	SeverityMinor:       0,
	SeverityModerate:    1,
	SeveritySignificant: 2,
	SeverityCritical:    3,
}

// TrendDirection summarizes how a variance has developed over the recent
// history window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// VarianceOptions tunes thresholds; zero values take the defaults.
type VarianceOptions struct {
	ExplanationThresholdPct decimal.Decimal
	TrendWindow             int
}

func (o VarianceOptions) withDefaults() VarianceOptions {
	if o.ExplanationThresholdPct.IsZero() {
		o.ExplanationThresholdPct = decimal.NewFromInt(10)
	}
	if o.TrendWindow <= 0 {
		o.TrendWindow = 4
	}
	return o
}

// Variance is one analyzed (WBS, period, type) cell.
type Variance struct {
	WBSID               uuid.UUID        `json:"wbs_id"`
	PeriodID            uuid.UUID        `json:"period_id"`
	Type                VarianceType     `json:"type"`
	Amount              decimal.Decimal  `json:"amount"`
	Percent             decimal.Decimal  `json:"percent"`
	Severity            VarianceSeverity `json:"severity"`
	ExplanationRequired bool             `json:"explanation_required"`
	Trend               TrendDirection   `json:"trend,omitempty"`
}

// ClassifySeverity buckets a signed percentage by magnitude.
func ClassifySeverity(pct decimal.Decimal) VarianceSeverity {
	abs := pct.Abs()
	switch {
	case abs.LessThan(decimal.NewFromInt(5)):
		return SeverityMinor
	case abs.LessThan(decimal.NewFromInt(10)):
		return SeverityModerate
	case abs.LessThan(decimal.NewFromInt(15)):
		return SeveritySignificant
	default:
		return SeverityCritical
	}
}

// AnalyzeCell computes both variance rows for one (WBS, period) pair from
// its cumulative values. Returns nothing when cumulative BCWS is zero,
// since the percentages would be meaningless.
func AnalyzeCell(wbsID, periodID uuid.UUID, bcwsCum, bcwpCum, acwpCum decimal.Decimal, opts VarianceOptions) []Variance {
	opts = opts.withDefaults()
	if bcwsCum.IsZero() {
		return nil
	}

	hundred := decimal.NewFromInt(100)
	sv := ScheduleVariance(bcwpCum, bcwsCum)
	cv := CostVariance(bcwpCum, acwpCum)
	svPct := sv.Div(bcwsCum).Mul(hundred).Round(2)
	cvPct := cv.Div(bcwsCum).Mul(hundred).Round(2)

	build := func(vt VarianceType, amount, pct decimal.Decimal) Variance {
		return Variance{
			WBSID:               wbsID,
			PeriodID:            periodID,
			Type:                vt,
			Amount:              amount,
			Percent:             pct,
			Severity:            ClassifySeverity(pct),
			ExplanationRequired: pct.Abs().GreaterThanOrEqual(opts.ExplanationThresholdPct),
			Trend:               TrendStable,
		}
	}

	return []Variance{
		build(VarianceSchedule, sv, svPct),
		build(VarianceCost, cv, cvPct),
	}
}

// Trend computes the direction over the last window of percentage values
// in chronological order: strictly shrinking magnitudes improve, strictly
// growing magnitudes worsen, anything else is stable.
func Trend(history []decimal.Decimal, window int) TrendDirection {
	if window <= 0 {
		window = 4
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	if len(history) < 2 {
		return TrendStable
	}

	decreasing, increasing := true, true
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1].Abs(), history[i].Abs()
		if !cur.LessThan(prev) {
			decreasing = false
		}
		if !cur.GreaterThan(prev) {
			increasing = false
		}
	}
	switch {
	case decreasing:
		return TrendImproving
	case increasing:
		return TrendWorsening
	default:
		return TrendStable
	}
}

// ProgramVarianceReport aggregates the analyzed cells for one program
// and period.
type ProgramVarianceReport struct {
	ProgramID       uuid.UUID                `json:"program_id"`
	PeriodID        uuid.UUID                `json:"period_id"`
	Alerts          []Variance               `json:"alerts"`
	CountBySeverity map[VarianceSeverity]int `json:"count_by_severity"`
	CountByType     map[VarianceType]int     `json:"count_by_type"`
}

// CellInput is one WBS element's cumulative values plus its percentage
// history (oldest first) for trend computation.
type CellInput struct {
	WBSID      uuid.UUID
	BCWSCum    decimal.Decimal
	BCWPCum    decimal.Decimal
	ACWPCum    decimal.Decimal
	SVPctPrior []decimal.Decimal
	CVPctPrior []decimal.Decimal
}

// AnalyzeProgram runs the cell analysis across a program's WBS elements
// for one period. Alerts are sorted by severity descending, then by
// absolute percentage descending.
func AnalyzeProgram(programID, periodID uuid.UUID, cells []CellInput, opts VarianceOptions) *ProgramVarianceReport {
	opts = opts.withDefaults()
	report := &ProgramVarianceReport{
		ProgramID:       programID,
		PeriodID:        periodID,
		CountBySeverity: make(map[VarianceSeverity]int),
		CountByType:     make(map[VarianceType]int),
	}

	for _, cell := range cells {
		variances := AnalyzeCell(cell.WBSID, periodID, cell.BCWSCum, cell.BCWPCum, cell.ACWPCum, opts)
		for i := range variances {
			v := &variances[i]
			var history []decimal.Decimal
			if v.Type == VarianceSchedule {
				history = append(append([]decimal.Decimal(nil), cell.SVPctPrior...), v.Percent)
			} else {
				history = append(append([]decimal.Decimal(nil), cell.CVPctPrior...), v.Percent)
			}
			v.Trend = Trend(history, opts.TrendWindow)
			report.CountBySeverity[v.Severity]++
			report.CountByType[v.Type]++
			report.Alerts = append(report.Alerts, *v)
		}
	}

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		a, b := report.Alerts[i], report.Alerts[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] > severityRank[b.Severity]
		}
		return a.Percent.Abs().GreaterThan(b.Percent.Abs())
	})

	return report
}
