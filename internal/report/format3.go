package report

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/evms"
)

// StatusColor is the Format 3 stoplight derived from cumulative indices.
type StatusColor string

const (
	StatusGreen  StatusColor = "green"
	StatusYellow StatusColor = "yellow"
	StatusRed    StatusColor = "red"
)

// Format3Row is one reporting period: incremental values differenced
// from the cumulative series, plus the cumulative position and the
// period's own variances and indices.
type Format3Row struct {
	PeriodID    uuid.UUID        `json:"period_id"`
	Label       string           `json:"label"`
	StartDate   time.Time        `json:"start_date"`
	EndDate     time.Time        `json:"end_date"`
	BCWS        decimal.Decimal  `json:"bcws"`
	BCWP        decimal.Decimal  `json:"bcwp"`
	ACWP        decimal.Decimal  `json:"acwp"`
	BCWSCum     decimal.Decimal  `json:"bcws_cum"`
	BCWPCum     decimal.Decimal  `json:"bcwp_cum"`
	ACWPCum     decimal.Decimal  `json:"acwp_cum"`
	SV          decimal.Decimal  `json:"sv"`
	CV          decimal.Decimal  `json:"cv"`
	SPI         *decimal.Decimal `json:"spi,omitempty"`
	CPI         *decimal.Decimal `json:"cpi,omitempty"`
}

// Format3Report is the time-phased baseline-versus-performance CPR.
type Format3Report struct {
	ProgramID            uuid.UUID    `json:"program_id"`
	Rows                 []Format3Row `json:"rows"`
	BaselineStartDate    time.Time    `json:"baseline_start_date"`
	BaselineFinishDate   time.Time    `json:"baseline_finish_date"`
	ForecastFinishDate   *time.Time   `json:"forecast_finish_date,omitempty"`
	ScheduleVarianceDays *int         `json:"schedule_variance_days,omitempty"`
	Status               StatusColor  `json:"status"`
}

// Format3Input supplies the cumulative period series plus the baseline
// window the forecast is measured against.
type Format3Input struct {
	Program              *domain.Program
	Periods              []*domain.EVMSPeriod
	BaselineStart        time.Time
	BaselineFinish       time.Time
	BaselineDurationDays int
}

// GenerateFormat3 differences the cumulative series into per-period
// values, derives period indices, and forecasts the finish from the
// cumulative SPI. A negative schedule_variance_days means ahead of
// baseline.
func GenerateFormat3(in Format3Input) (*Format3Report, error) {
	if in.Program == nil {
		return nil, domain.Validation("report_input", "program is required")
	}
	if len(in.Periods) == 0 {
		return nil, domain.Validation("report_input", "at least one reporting period is required")
	}

	periods := make([]*domain.EVMSPeriod, 0, len(in.Periods))
	for _, p := range in.Periods {
		if p.DeletedAt == nil {
			periods = append(periods, p)
		}
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].StartDate.Before(periods[j].StartDate) })

	report := &Format3Report{
		ProgramID:          in.Program.ID,
		BaselineStartDate:  in.BaselineStart,
		BaselineFinishDate: in.BaselineFinish,
	}

	var prevBCWS, prevBCWP, prevACWP decimal.Decimal
	for _, p := range periods {
		row := Format3Row{
			PeriodID:  p.ID,
			Label:     p.Label,
			StartDate: p.StartDate,
			EndDate:   p.EndDate,
			BCWS:      p.BCWSCum.Sub(prevBCWS),
			BCWP:      p.BCWPCum.Sub(prevBCWP),
			ACWP:      p.ACWPCum.Sub(prevACWP),
			BCWSCum:   p.BCWSCum,
			BCWPCum:   p.BCWPCum,
			ACWPCum:   p.ACWPCum,
		}
		row.SV = evms.ScheduleVariance(row.BCWP, row.BCWS)
		row.CV = evms.CostVariance(row.BCWP, row.ACWP)
		row.SPI = evms.SPI(row.BCWP, row.BCWS)
		row.CPI = evms.CPI(row.BCWP, row.ACWP)
		report.Rows = append(report.Rows, row)

		prevBCWS, prevBCWP, prevACWP = p.BCWSCum, p.BCWPCum, p.ACWPCum
	}

	last := periods[len(periods)-1]
	spiCum := evms.SPI(last.BCWPCum, last.BCWSCum)
	cpiCum := evms.CPI(last.BCWPCum, last.ACWPCum)

	if spiCum != nil && spiCum.IsPositive() && in.BaselineDurationDays > 0 {
		spi, _ := spiCum.Float64()
		forecastDays := int(math.Round(float64(in.BaselineDurationDays) / spi))
		forecast := in.BaselineStart.AddDate(0, 0, forecastDays)
		report.ForecastFinishDate = &forecast
		varianceDays := int(math.Round(forecast.Sub(in.BaselineFinish).Hours() / 24))
		report.ScheduleVarianceDays = &varianceDays
	}

	report.Status = statusColor(spiCum, cpiCum)

	log.Debug().
		Str("program_id", in.Program.ID.String()).
		Int("periods", len(report.Rows)).
		Str("status", string(report.Status)).
		Msg("Generated CPR Format 3")

	return report, nil
}

// statusColor applies the stoplight rule to the cumulative indices. An
// undefined index counts as healthy: nothing measured means nothing
// demonstrably off plan.
func statusColor(spi, cpi *decimal.Decimal) StatusColor {
	threshold := decimal.NewFromFloat(0.9)
	spiPoor := spi != nil && spi.LessThan(threshold)
	cpiPoor := cpi != nil && cpi.LessThan(threshold)
	switch {
	case spiPoor && cpiPoor:
		return StatusRed
	case spiPoor || cpiPoor:
		return StatusYellow
	default:
		return StatusGreen
	}
}
