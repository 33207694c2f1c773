package evms

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertDec(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func assertDecPtr(t *testing.T, name string, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %s", name, want)
	}
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

// A program one quarter in: behind schedule and over cost.
func behindProgram() (bac, bcws, bcwp, acwp decimal.Decimal) {
	return dec("1000000"), dec("250000"), dec("200000"), dec("220000")
}

func TestCalculateBehindProgram(t *testing.T) {
	bac, bcws, bcwp, acwp := behindProgram()
	m := Calculate(bac, bcws, bcwp, acwp)

	assertDec(t, "CV", m.CV, dec("-20000"))
	assertDec(t, "SV", m.SV, dec("-50000"))
	assertDecPtr(t, "CPI", m.CPI, "0.91")
	assertDecPtr(t, "SPI", m.SPI, "0.80")
	assertDecPtr(t, "EAC", m.EAC, "1100000")
	assertDecPtr(t, "ETC", m.ETC, "880000")
	assertDecPtr(t, "VAC", m.VAC, "-100000")
	assertDecPtr(t, "TCPI", m.TCPI, "1.03")
}

// EAC must divide by the unrounded indices: BAC / (200000/220000) is
// exactly 1,100,000, which a pre-rounded CPI of 0.91 would miss.
func TestEACUsesUnroundedIndices(t *testing.T) {
	bac, bcws, bcwp, acwp := behindProgram()
	in := EACInput{BAC: bac, BCWS: bcws, BCWP: bcwp, ACWP: acwp}

	tests := []struct {
		method EACMethod
		want   string
	}{
		{EACByCPI, "1100000"},
		{EACBySPI, "1250000"},
		{EACComposite, "1320000"},
		{EACTypical, "1020000"},
		{EACAtypical, "1100000"},
	}
	for _, tc := range tests {
		got := EAC(tc.method, in)
		assertDecPtr(t, "EAC("+string(tc.method)+")", got, tc.want)
	}
}

func TestEACManagement(t *testing.T) {
	bac, bcws, bcwp, acwp := behindProgram()
	in := EACInput{BAC: bac, BCWS: bcws, BCWP: bcwp, ACWP: acwp}

	if got := EAC(EACManagement, in); got != nil {
		t.Errorf("EAC(management) without a manager ETC = %s, want nil", got)
	}

	etc := dec("900000")
	in.ManagerETC = &etc
	assertDecPtr(t, "EAC(management)", EAC(EACManagement, in), "1120000")
}

func TestUndefinedIndices(t *testing.T) {
	if got := CPI(dec("100"), decimal.Zero); got != nil {
		t.Errorf("CPI with zero ACWP = %s, want nil", got)
	}
	if got := SPI(dec("100"), decimal.Zero); got != nil {
		t.Errorf("SPI with zero BCWS = %s, want nil", got)
	}

	// Zero actuals make every cost-index derived figure undefined.
	m := Calculate(dec("1000"), dec("100"), dec("100"), decimal.Zero)
	if m.CPI != nil || m.EAC != nil || m.ETC != nil || m.VAC != nil {
		t.Errorf("zero-ACWP metrics should leave CPI/EAC/ETC/VAC nil, got %+v", m)
	}
	assertDec(t, "CV", m.CV, dec("100"))
}

func TestTCPIEdgeCases(t *testing.T) {
	tests := []struct {
		name            string
		bac, bcwp, acwp string
		want            *string
	}{
		{"normal", "1000", "400", "500", strPtr("1.20")},
		{"spent budget with work remaining", "1000", "400", "1000", nil},
		{"complete at budget", "1000", "1000", "1000", strPtr("0")},
		{"overrun already", "1000", "900", "1200", strPtr("0.50")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TCPI(dec(tc.bac), dec(tc.bcwp), dec(tc.acwp))
			if tc.want == nil {
				if got != nil {
					t.Fatalf("TCPI = %s, want nil", got)
				}
				return
			}
			assertDecPtr(t, "TCPI", got, *tc.want)
		})
	}
}

func strPtr(s string) *string { return &s }

func TestSelectEACMethod(t *testing.T) {
	tests := []struct {
		name     string
		cpi, spi *decimal.Decimal
		want     EACMethod
	}{
		{"both healthy", ptr(dec("1.05")), ptr(dec("0.98")), EACByCPI},
		{"cost poor only", ptr(dec("0.85")), ptr(dec("0.95")), EACAtypical},
		{"both poor", ptr(dec("0.85")), ptr(dec("0.80")), EACComposite},
		{"schedule poor only", ptr(dec("0.95")), ptr(dec("0.80")), EACByCPI},
		{"no indices yet", nil, nil, EACByCPI},
		{"exactly at threshold", ptr(dec("0.90")), ptr(dec("0.90")), EACByCPI},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SelectEACMethod(tc.cpi, tc.spi); got != tc.want {
				t.Errorf("SelectEACMethod = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestVarianceSigns(t *testing.T) {
	// Ahead of schedule and under cost comes out positive on both.
	assertDec(t, "CV", CostVariance(dec("500"), dec("450")), dec("50"))
	assertDec(t, "SV", ScheduleVariance(dec("500"), dec("400")), dec("100"))
}
