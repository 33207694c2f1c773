// Package report generates the three CPR formats from EVMS period data:
// Format 1 (WBS rollup), Format 3 (time-phased), and Format 5 (EAC,
// management reserve, variance explanations).
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/evms"
)

// Options tunes report thresholds; zero values take the defaults.
type Options struct {
	VarianceThresholdPct decimal.Decimal
}

func (o Options) withDefaults() Options {
	if o.VarianceThresholdPct.IsZero() {
		o.VarianceThresholdPct = decimal.NewFromInt(10)
	}
	return o
}

// CumulativeValues is one WBS element's cumulative position as of a
// period end.
type CumulativeValues struct {
	BCWS decimal.Decimal `json:"bcws"`
	BCWP decimal.Decimal `json:"bcwp"`
	ACWP decimal.Decimal `json:"acwp"`
}

// Format1Row is one WBS line of the rollup. Parent rows carry the sums
// of their descendant leaves, including BAC.
type Format1Row struct {
	WBSID          uuid.UUID        `json:"wbs_id"`
	WBSCode        string           `json:"wbs_code"`
	Name           string           `json:"name"`
	Level          int              `json:"level"`
	Indented       string           `json:"indented_name"`
	ControlAccount bool             `json:"control_account"`
	BAC            decimal.Decimal  `json:"bac"`
	BCWS           decimal.Decimal  `json:"bcws"`
	BCWP           decimal.Decimal  `json:"bcwp"`
	ACWP           decimal.Decimal  `json:"acwp"`
	CV             decimal.Decimal  `json:"cv"`
	SV             decimal.Decimal  `json:"sv"`
	CPI            *decimal.Decimal `json:"cpi,omitempty"`
	SPI            *decimal.Decimal `json:"spi,omitempty"`
	EAC            *decimal.Decimal `json:"eac,omitempty"`
	VAC            *decimal.Decimal `json:"vac,omitempty"`
}

// VarianceNote flags one WBS row whose schedule or cost variance
// percentage crossed the reporting threshold.
type VarianceNote struct {
	WBSID   uuid.UUID       `json:"wbs_id"`
	WBSCode string          `json:"wbs_code"`
	SVPct   decimal.Decimal `json:"sv_pct"`
	CVPct   decimal.Decimal `json:"cv_pct"`
	Note    string          `json:"note"`
}

// Format1Report is the WBS-rollup CPR.
type Format1Report struct {
	ProgramID     uuid.UUID      `json:"program_id"`
	PeriodID      uuid.UUID      `json:"period_id"`
	PeriodLabel   string         `json:"period_label"`
	Rows          []Format1Row   `json:"rows"`
	Totals        Format1Row     `json:"totals"`
	VarianceNotes []VarianceNote `json:"variance_notes"`
}

// Format1Input carries everything Format 1 needs. LeafValues holds the
// cumulative position of each leaf WBS element; BAC is read from the
// leaf elements themselves and rolled up.
type Format1Input struct {
	Program    *domain.Program
	Period     *domain.EVMSPeriod
	WBS        []*domain.WBSElement
	LeafValues map[uuid.UUID]CumulativeValues
	Options    Options
}

// GenerateFormat1 builds the WBS rollup. Every parent row equals the
// column sums of its descendant leaves, and the totals row equals the
// sum of the top-level rows.
func GenerateFormat1(in Format1Input) (*Format1Report, error) {
	if in.Program == nil || in.Period == nil {
		return nil, domain.Validation("report_input", "program and period are required")
	}
	opts := in.Options.withDefaults()

	elements := make([]*domain.WBSElement, 0, len(in.WBS))
	for _, el := range in.WBS {
		if el.DeletedAt == nil {
			elements = append(elements, el)
		}
	}
	sort.Slice(elements, func(i, j int) bool { return elements[i].Path < elements[j].Path })

	hasChildren := make(map[uuid.UUID]bool)
	for _, el := range elements {
		if el.ParentID != nil {
			hasChildren[*el.ParentID] = true
		}
	}

	// Accumulate each leaf into itself and every ancestor.
	byID := make(map[uuid.UUID]*domain.WBSElement, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}
	type rollup struct {
		bac, bcws, bcwp, acwp decimal.Decimal
	}
	sums := make(map[uuid.UUID]*rollup, len(elements))
	for _, el := range elements {
		sums[el.ID] = &rollup{}
	}
	for _, el := range elements {
		if hasChildren[el.ID] {
			continue
		}
		vals := in.LeafValues[el.ID]
		for node := el; node != nil; {
			r := sums[node.ID]
			r.bac = r.bac.Add(el.BAC)
			r.bcws = r.bcws.Add(vals.BCWS)
			r.bcwp = r.bcwp.Add(vals.BCWP)
			r.acwp = r.acwp.Add(vals.ACWP)
			if node.ParentID == nil {
				break
			}
			node = byID[*node.ParentID]
		}
	}

	report := &Format1Report{
		ProgramID:   in.Program.ID,
		PeriodID:    in.Period.ID,
		PeriodLabel: in.Period.Label,
	}
	hundred := decimal.NewFromInt(100)

	for _, el := range elements {
		r := sums[el.ID]
		row := buildFormat1Row(el, r.bac, r.bcws, r.bcwp, r.acwp)
		report.Rows = append(report.Rows, row)

		if el.Level == 1 {
			report.Totals.BAC = report.Totals.BAC.Add(r.bac)
			report.Totals.BCWS = report.Totals.BCWS.Add(r.bcws)
			report.Totals.BCWP = report.Totals.BCWP.Add(r.bcwp)
			report.Totals.ACWP = report.Totals.ACWP.Add(r.acwp)
		}

		if r.bcws.IsZero() {
			continue
		}
		svPct := row.SV.Div(r.bcws).Mul(hundred).Round(2)
		cvPct := row.CV.Div(r.bcws).Mul(hundred).Round(2)
		if svPct.Abs().GreaterThanOrEqual(opts.VarianceThresholdPct) ||
			cvPct.Abs().GreaterThanOrEqual(opts.VarianceThresholdPct) {
			report.VarianceNotes = append(report.VarianceNotes, VarianceNote{
				WBSID:   el.ID,
				WBSCode: el.WBSCode,
				SVPct:   svPct,
				CVPct:   cvPct,
				Note:    fmt.Sprintf("%s %s: SV %s%%, CV %s%%", el.WBSCode, el.Name, svPct, cvPct),
			})
		}
	}

	report.Totals.Name = "TOTAL"
	report.Totals.CV = evms.CostVariance(report.Totals.BCWP, report.Totals.ACWP)
	report.Totals.SV = evms.ScheduleVariance(report.Totals.BCWP, report.Totals.BCWS)
	report.Totals.CPI = evms.CPI(report.Totals.BCWP, report.Totals.ACWP)
	report.Totals.SPI = evms.SPI(report.Totals.BCWP, report.Totals.BCWS)
	totalEAC := evms.EAC(evms.EACByCPI, evms.EACInput{
		BAC: report.Totals.BAC, BCWS: report.Totals.BCWS,
		BCWP: report.Totals.BCWP, ACWP: report.Totals.ACWP,
	})
	report.Totals.EAC = totalEAC
	report.Totals.VAC = evms.VAC(report.Totals.BAC, totalEAC)

	log.Debug().
		Str("program_id", in.Program.ID.String()).
		Str("period", in.Period.Label).
		Int("rows", len(report.Rows)).
		Int("variance_notes", len(report.VarianceNotes)).
		Msg("Generated CPR Format 1")

	return report, nil
}

func buildFormat1Row(el *domain.WBSElement, bac, bcws, bcwp, acwp decimal.Decimal) Format1Row {
	eac := evms.EAC(evms.EACByCPI, evms.EACInput{BAC: bac, BCWS: bcws, BCWP: bcwp, ACWP: acwp})
	return Format1Row{
		WBSID:          el.ID,
		WBSCode:        el.WBSCode,
		Name:           el.Name,
		Level:          el.Level,
		Indented:       strings.Repeat("  ", el.Level-1) + el.Name,
		ControlAccount: el.ControlAccount,
		BAC:            bac,
		BCWS:           bcws,
		BCWP:           bcwp,
		ACWP:           acwp,
		CV:             evms.CostVariance(bcwp, acwp),
		SV:             evms.ScheduleVariance(bcwp, bcws),
		CPI:            evms.CPI(bcwp, acwp),
		SPI:            evms.SPI(bcwp, bcws),
		EAC:            eac,
		VAC:            evms.VAC(bac, eac),
	}
}
