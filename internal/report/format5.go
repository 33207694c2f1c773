package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/evms"
)

// EACRow is one estimate-at-completion method's result; Value is nil
// when the method is undefined for the current position.
type EACRow struct {
	Method   evms.EACMethod   `json:"method"`
	Value    *decimal.Decimal `json:"value,omitempty"`
	Selected bool             `json:"selected"`
}

// MRRow is one management-reserve ledger line.
type MRRow struct {
	Sequence    int             `json:"sequence"`
	BeginningMR decimal.Decimal `json:"beginning_mr"`
	ChangesIn   decimal.Decimal `json:"changes_in"`
	ChangesOut  decimal.Decimal `json:"changes_out"`
	EndingMR    decimal.Decimal `json:"ending_mr"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PeriodVarianceRow carries one period's cumulative variance
// percentages, signed against cumulative BCWS.
type PeriodVarianceRow struct {
	PeriodID uuid.UUID        `json:"period_id"`
	Label    string           `json:"label"`
	SVPct    *decimal.Decimal `json:"sv_pct,omitempty"`
	CVPct    *decimal.Decimal `json:"cv_pct,omitempty"`
}

// VarianceExplanation is one row of the Format 5 variance narrative
// section, kept only when the magnitude crosses the threshold.
type VarianceExplanation struct {
	PeriodID uuid.UUID             `json:"period_id"`
	Label    string                `json:"label"`
	Type     evms.VarianceType     `json:"type"`
	Amount   decimal.Decimal       `json:"amount"`
	Percent  decimal.Decimal       `json:"percent"`
	Severity evms.VarianceSeverity `json:"severity"`
}

// Format5Report is the EVMS summary CPR: EAC spread, MR ledger, and the
// variance explanations that cross the reporting threshold.
type Format5Report struct {
	ProgramID       uuid.UUID             `json:"program_id"`
	BAC             decimal.Decimal       `json:"bac"`
	Metrics         evms.Metrics          `json:"metrics"`
	EACs            []EACRow              `json:"eacs"`
	SelectedMethod  evms.EACMethod        `json:"selected_method"`
	PeriodVariances []PeriodVarianceRow   `json:"period_variances"`
	MRTable         []MRRow               `json:"mr_table"`
	Explanations    []VarianceExplanation `json:"explanations"`
}

// Format5Input supplies the period series, the MR ledger, and an
// optional management estimate-to-complete.
type Format5Input struct {
	Program    *domain.Program
	Periods    []*domain.EVMSPeriod
	MRLog      []*domain.MRLogEntry
	ManagerETC *decimal.Decimal
	Options    Options
}

// GenerateFormat5 computes all six EAC methods from the latest
// cumulative position, marks the one picked by the selection rule, and
// assembles the MR and variance sections.
func GenerateFormat5(in Format5Input) (*Format5Report, error) {
	if in.Program == nil {
		return nil, domain.Validation("report_input", "program is required")
	}
	if len(in.Periods) == 0 {
		return nil, domain.Validation("report_input", "at least one reporting period is required")
	}
	opts := in.Options.withDefaults()

	periods := make([]*domain.EVMSPeriod, 0, len(in.Periods))
	for _, p := range in.Periods {
		if p.DeletedAt == nil {
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })
	last := periods[len(periods)-1]

	metrics := evms.Calculate(in.Program.BAC, last.BCWSCum, last.BCWPCum, last.ACWPCum)
	selected := evms.SelectEACMethod(metrics.CPI, metrics.SPI)

	eacIn := evms.EACInput{
		BAC:        in.Program.BAC,
		BCWS:       last.BCWSCum,
		BCWP:       last.BCWPCum,
		ACWP:       last.ACWPCum,
		ManagerETC: in.ManagerETC,
	}
	report := &Format5Report{
		ProgramID:      in.Program.ID,
		BAC:            in.Program.BAC,
		Metrics:        metrics,
		SelectedMethod: selected,
	}
	for _, method := range []evms.EACMethod{
		evms.EACByCPI, evms.EACBySPI, evms.EACComposite,
		evms.EACTypical, evms.EACAtypical, evms.EACManagement,
	} {
		report.EACs = append(report.EACs, EACRow{
			Method:   method,
			Value:    evms.EAC(method, eacIn),
			Selected: method == selected,
		})
	}

	hundred := decimal.NewFromInt(100)
	for _, p := range periods {
		row := PeriodVarianceRow{PeriodID: p.ID, Label: p.Label}
		if !p.BCWSCum.IsZero() {
			svPct := evms.ScheduleVariance(p.BCWPCum, p.BCWSCum).Div(p.BCWSCum).Mul(hundred).Round(2)
			cvPct := evms.CostVariance(p.BCWPCum, p.ACWPCum).Div(p.BCWSCum).Mul(hundred).Round(2)
			row.SVPct, row.CVPct = &svPct, &cvPct

			appendExplanation(report, p, evms.VarianceSchedule,
				evms.ScheduleVariance(p.BCWPCum, p.BCWSCum), svPct, opts.VarianceThresholdPct)
			appendExplanation(report, p, evms.VarianceCost,
				evms.CostVariance(p.BCWPCum, p.ACWPCum), cvPct, opts.VarianceThresholdPct)
		}
		report.PeriodVariances = append(report.PeriodVariances, row)
	}

	sort.SliceStable(report.Explanations, func(i, j int) bool {
		return report.Explanations[i].Percent.Abs().GreaterThan(report.Explanations[j].Percent.Abs())
	})

	entries := make([]*domain.MRLogEntry, 0, len(in.MRLog))
	entries = append(entries, in.MRLog...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	for _, e := range entries {
		report.MRTable = append(report.MRTable, MRRow{
			Sequence:    e.Sequence,
			BeginningMR: e.BeginningMR,
			ChangesIn:   e.ChangesIn,
			ChangesOut:  e.ChangesOut,
			EndingMR:    e.EndingMR,
			Reason:      e.Reason,
			CreatedAt:   e.CreatedAt,
		})
	}

	log.Debug().
		Str("program_id", in.Program.ID.String()).
		Str("selected_eac", string(selected)).
		Int("explanations", len(report.Explanations)).
		Msg("Generated CPR Format 5")

	return report, nil
}

func appendExplanation(report *Format5Report, p *domain.EVMSPeriod, vt evms.VarianceType, amount, pct, threshold decimal.Decimal) {
	if pct.Abs().LessThan(threshold) {
		return
	}
	report.Explanations = append(report.Explanations, VarianceExplanation{
		PeriodID: p.ID,
		Label:    p.Label,
		Type:     vt,
		Amount:   amount,
		Percent:  pct,
		Severity: evms.ClassifySeverity(pct),
	})
}
