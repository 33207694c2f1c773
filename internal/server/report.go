package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dpm-server/internal/domain"
	"dpm-server/internal/evms"
	"dpm-server/internal/report"
)

// cumulativeByWBS sums the per-period cells into cumulative values per
// WBS element, across every period up to and including the given one.
func (s *Server) cumulativeByWBS(programID uuid.UUID, upTo *domain.EVMSPeriod) map[uuid.UUID]report.CumulativeValues {
	values := make(map[uuid.UUID]report.CumulativeValues)
	for _, period := range s.store.PeriodsByProgram(programID) {
		if period.StartDate.After(upTo.StartDate) {
			break
		}
		for _, cell := range s.store.PeriodCells(period.ID) {
			cum := values[cell.WBSID]
			cum.BCWS = cum.BCWS.Add(cell.BCWS)
			cum.BCWP = cum.BCWP.Add(cell.BCWP)
			cum.ACWP = cum.ACWP.Add(cell.ACWP)
			values[cell.WBSID] = cum
		}
	}
	return values
}

// reportPeriod resolves the period for a report: the period_id query
// parameter when present, otherwise the latest period.
func (s *Server) reportPeriod(r *http.Request, programID uuid.UUID) (*domain.EVMSPeriod, error) {
	if raw := r.URL.Query().Get("period_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, domain.Validation("period_id_invalid", "%q is not a valid UUID", raw)
		}
		return s.store.Period(id)
	}
	periods := s.store.PeriodsByProgram(programID)
	if len(periods) == 0 {
		return nil, domain.Validation("no_periods", "program has no reporting periods")
	}
	return periods[len(periods)-1], nil
}

func reportOptions(r *http.Request) (report.Options, error) {
	var opts report.Options
	if raw := r.URL.Query().Get("variance_threshold_pct"); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			return opts, domain.Validation("variance_threshold_invalid", "%q is not a decimal", raw)
		}
		opts.VarianceThresholdPct = threshold
	}
	return opts, nil
}

func (s *Server) handleFormat1(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "program_id")
	if err != nil {
		writeError(w, err)
		return
	}
	program, err := s.store.Program(programID)
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := s.reportPeriod(r, programID)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := reportOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := report.GenerateFormat1(report.Format1Input{
		Program:    program,
		Period:     period,
		WBS:        s.store.WBSByProgram(programID),
		LeafValues: s.cumulativeByWBS(programID, period),
		Options:    opts,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFormat3(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "program_id")
	if err != nil {
		writeError(w, err)
		return
	}
	program, err := s.store.Program(programID)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := report.GenerateFormat3(report.Format3Input{
		Program:              program,
		Periods:              s.store.PeriodsByProgram(programID),
		BaselineStart:        program.StartDate,
		BaselineFinish:       program.EndDate,
		BaselineDurationDays: int(program.EndDate.Sub(program.StartDate).Hours() / 24),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFormat5(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "program_id")
	if err != nil {
		writeError(w, err)
		return
	}
	program, err := s.store.Program(programID)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := reportOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var managerETC *decimal.Decimal
	if raw := r.URL.Query().Get("manager_etc"); raw != "" {
		etc, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, domain.Validation("manager_etc_invalid", "%q is not a decimal", raw))
			return
		}
		managerETC = &etc
	}

	mrLog := s.store.MRLog(programID)
	entries := make([]*domain.MRLogEntry, len(mrLog))
	for i := range mrLog {
		entries[i] = &mrLog[i]
	}

	out, err := report.GenerateFormat5(report.Format5Input{
		Program:    program,
		Periods:    s.store.PeriodsByProgram(programID),
		MRLog:      entries,
		ManagerETC: managerETC,
		Options:    opts,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleVariance analyzes every WBS element's cumulative position for
// the period, with prior-period history feeding the trend.
func (s *Server) handleVariance(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Program(programID); err != nil {
		writeError(w, err)
		return
	}
	periodID, err := urlUUID(r, "period_id")
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := s.store.Period(periodID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Walk periods chronologically, accumulating each WBS element's
	// cumulative position and the pct history the trend rule needs.
	type runningCell struct {
		cum     report.CumulativeValues
		svPrior []decimal.Decimal
		cvPrior []decimal.Decimal
	}
	running := make(map[uuid.UUID]*runningCell)

	for _, period := range s.store.PeriodsByProgram(programID) {
		if period.StartDate.After(target.StartDate) {
			break
		}
		last := period.ID == target.ID
		for _, cell := range s.store.PeriodCells(period.ID) {
			rc := running[cell.WBSID]
			if rc == nil {
				rc = &runningCell{}
				running[cell.WBSID] = rc
			}
			rc.cum.BCWS = rc.cum.BCWS.Add(cell.BCWS)
			rc.cum.BCWP = rc.cum.BCWP.Add(cell.BCWP)
			rc.cum.ACWP = rc.cum.ACWP.Add(cell.ACWP)

			if !last && !rc.cum.BCWS.IsZero() {
				hundred := decimal.NewFromInt(100)
				sv := rc.cum.BCWP.Sub(rc.cum.BCWS).Div(rc.cum.BCWS).Mul(hundred).Round(2)
				cv := rc.cum.BCWP.Sub(rc.cum.ACWP).Div(rc.cum.BCWS).Mul(hundred).Round(2)
				rc.svPrior = append(rc.svPrior, sv)
				rc.cvPrior = append(rc.cvPrior, cv)
			}
		}
	}

	var cells []evms.CellInput
	for wbsID, rc := range running {
		cells = append(cells, evms.CellInput{
			WBSID:      wbsID,
			BCWSCum:    rc.cum.BCWS,
			BCWPCum:    rc.cum.BCWP,
			ACWPCum:    rc.cum.ACWP,
			SVPctPrior: rc.svPrior,
			CVPctPrior: rc.cvPrior,
		})
	}

	out := evms.AnalyzeProgram(programID, periodID, cells, evms.VarianceOptions{})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendMR(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var entry domain.MRLogEntry
	if err := decodeBody(r, &entry); err != nil {
		writeError(w, err)
		return
	}
	entry.ProgramID = programID

	if err := s.store.AppendMR(&entry); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleMRLog(w http.ResponseWriter, r *http.Request) {
	programID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.Program(programID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.MRLog(programID))
}
