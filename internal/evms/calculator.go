package evms

import (
	"github.com/shopspring/decimal"
)

// EACMethod names one of the six estimate-at-completion formulas.
type EACMethod string

const (
	EACByCPI      EACMethod = "cpi"
	EACBySPI      EACMethod = "spi"
	EACComposite  EACMethod = "composite"
	EACTypical    EACMethod = "typical"
	EACAtypical   EACMethod = "atypical"
	EACManagement EACMethod = "management"
)

// round applies the service-wide money rounding: two fractional digits.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	r := round(d)
	return &r
}

// CostVariance is BCWP - ACWP. Always defined.
func CostVariance(bcwp, acwp decimal.Decimal) decimal.Decimal {
	return round(bcwp.Sub(acwp))
}

// ScheduleVariance is BCWP - BCWS. Always defined.
func ScheduleVariance(bcwp, bcws decimal.Decimal) decimal.Decimal {
	return round(bcwp.Sub(bcws))
}

// rawCPI keeps full precision for use inside other formulas; rounding
// happens only at the output edge.
func rawCPI(bcwp, acwp decimal.Decimal) (decimal.Decimal, bool) {
	if acwp.IsZero() {
		return decimal.Zero, false
	}
	return bcwp.Div(acwp), true
}

func rawSPI(bcwp, bcws decimal.Decimal) (decimal.Decimal, bool) {
	if bcws.IsZero() {
		return decimal.Zero, false
	}
	return bcwp.Div(bcws), true
}

// CPI is BCWP / ACWP; nil when no actuals have been booked.
func CPI(bcwp, acwp decimal.Decimal) *decimal.Decimal {
	raw, ok := rawCPI(bcwp, acwp)
	if !ok {
		return nil
	}
	return ptr(raw)
}

// SPI is BCWP / BCWS; nil when nothing was scheduled.
func SPI(bcwp, bcws decimal.Decimal) *decimal.Decimal {
	raw, ok := rawSPI(bcwp, bcws)
	if !ok {
		return nil
	}
	return ptr(raw)
}

// EACInput carries everything the six EAC methods may need. ManagerETC
// is the management method's externally supplied estimate-to-complete.
type EACInput struct {
	BAC        decimal.Decimal
	BCWS       decimal.Decimal
	BCWP       decimal.Decimal
	ACWP       decimal.Decimal
	ManagerETC *decimal.Decimal
}

// EAC computes the requested estimate at completion; nil when the method
// is undefined for the inputs (zero-division or missing manager ETC).
func EAC(method EACMethod, in EACInput) *decimal.Decimal {
	cpi, cpiOK := rawCPI(in.BCWP, in.ACWP)
	spi, spiOK := rawSPI(in.BCWP, in.BCWS)

	switch method {
	case EACByCPI:
		if !cpiOK || cpi.IsZero() {
			return nil
		}
		return ptr(in.BAC.Div(cpi))
	case EACBySPI:
		if !spiOK || spi.IsZero() {
			return nil
		}
		return ptr(in.BAC.Div(spi))
	case EACComposite:
		if !cpiOK || !spiOK {
			return nil
		}
		denom := cpi.Mul(spi)
		if denom.IsZero() {
			return nil
		}
		return ptr(in.ACWP.Add(in.BAC.Sub(in.BCWP).Div(denom)))
	case EACTypical:
		return ptr(in.ACWP.Add(in.BAC.Sub(in.BCWP)))
	case EACAtypical:
		if !cpiOK || cpi.IsZero() {
			return nil
		}
		return ptr(in.ACWP.Add(in.BAC.Sub(in.BCWP).Div(cpi)))
	case EACManagement:
		if in.ManagerETC == nil {
			return nil
		}
		return ptr(in.ACWP.Add(*in.ManagerETC))
	}
	return nil
}

// ETC is EAC - ACWP; undefined when EAC is.
func ETC(eac *decimal.Decimal, acwp decimal.Decimal) *decimal.Decimal {
	if eac == nil {
		return nil
	}
	return ptr(eac.Sub(acwp))
}

// VAC is BAC - EAC; undefined when EAC is.
func VAC(bac decimal.Decimal, eac *decimal.Decimal) *decimal.Decimal {
	if eac == nil {
		return nil
	}
	return ptr(bac.Sub(*eac))
}

// TCPI is (BAC - BCWP) / (BAC - ACWP). A zero denominator yields 0 when
// the numerator is also zero (nothing left to do with nothing left to
// spend) and is otherwise undefined.
func TCPI(bac, bcwp, acwp decimal.Decimal) *decimal.Decimal {
	numerator := bac.Sub(bcwp)
	denominator := bac.Sub(acwp)
	if denominator.IsZero() {
		if numerator.IsZero() {
			zero := decimal.Zero
			return &zero
		}
		return nil
	}
	return ptr(numerator.Div(denominator))
}

// Metrics is the full scalar set for one (scope, as-of) pair.
type Metrics struct {
	BCWS decimal.Decimal  `json:"bcws"`
	BCWP decimal.Decimal  `json:"bcwp"`
	ACWP decimal.Decimal  `json:"acwp"`
	BAC  decimal.Decimal  `json:"bac"`
	CV   decimal.Decimal  `json:"cv"`
	SV   decimal.Decimal  `json:"sv"`
	CPI  *decimal.Decimal `json:"cpi,omitempty"`
	SPI  *decimal.Decimal `json:"spi,omitempty"`
	EAC  *decimal.Decimal `json:"eac,omitempty"`
	ETC  *decimal.Decimal `json:"etc,omitempty"`
	VAC  *decimal.Decimal `json:"vac,omitempty"`
	TCPI *decimal.Decimal `json:"tcpi,omitempty"`
}

// Calculate derives the standard metric set using the CPI-based EAC.
func Calculate(bac, bcws, bcwp, acwp decimal.Decimal) Metrics {
	in := EACInput{BAC: bac, BCWS: bcws, BCWP: bcwp, ACWP: acwp}
	eac := EAC(EACByCPI, in)
	return Metrics{
		BCWS: bcws,
		BCWP: bcwp,
		ACWP: acwp,
		BAC:  bac,
		CV:   CostVariance(bcwp, acwp),
		SV:   ScheduleVariance(bcwp, bcws),
		CPI:  CPI(bcwp, acwp),
		SPI:  SPI(bcwp, bcws),
		EAC:  eac,
		ETC:  ETC(eac, acwp),
		VAC:  VAC(bac, eac),
		TCPI: TCPI(bac, bcwp, acwp),
	}
}

// SelectEACMethod applies the Format 5 selection rule: composite when
// both indices run poor, atypical when only cost runs poor, else CPI.
func SelectEACMethod(cpi, spi *decimal.Decimal) EACMethod {
	threshold := decimal.NewFromFloat(0.90)
	cpiPoor := cpi != nil && cpi.LessThan(threshold)
	spiPoor := spi != nil && spi.LessThan(threshold)
	switch {
	case cpiPoor && spiPoor:
		return EACComposite
	case cpiPoor:
		return EACAtypical
	default:
		return EACByCPI
	}
}
