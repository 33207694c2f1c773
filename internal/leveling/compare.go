package leveling

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Comparison holds both algorithm outcomes and a recommendation.
type Comparison struct {
	Serial      *Result `json:"serial"`
	Parallel    *Result `json:"parallel"`
	Recommended string  `json:"recommended"`
	Rationale   string  `json:"rationale"`
}

// Compare runs serial and parallel leveling with identical options
// against independent copies of the state and recommends one. On full
// success the shorter schedule extension wins (ties go to fewer shifts);
// on partial failure the fewer remaining conflicts win (ties go to the
// shorter extension).
func Compare(ctx context.Context, in *Input, opts Options) (*Comparison, error) {
	serial, err := LevelSerial(ctx, in, opts)
	if err != nil {
		return nil, err
	}
	parallel, err := LevelParallel(ctx, in, opts)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Serial: serial, Parallel: parallel}

	switch {
	case serial.Success && parallel.Success:
		switch {
		case parallel.ExtensionDays() < serial.ExtensionDays():
			cmp.Recommended, cmp.Rationale = "parallel", "shorter schedule extension"
		case serial.ExtensionDays() < parallel.ExtensionDays():
			cmp.Recommended, cmp.Rationale = "serial", "shorter schedule extension"
		case len(parallel.Shifts) < len(serial.Shifts):
			cmp.Recommended, cmp.Rationale = "parallel", "equal extension, fewer shifts"
		default:
			cmp.Recommended, cmp.Rationale = "serial", "equal extension, fewer or equal shifts"
		}
	case serial.Success:
		cmp.Recommended, cmp.Rationale = "serial", "only serial resolved every conflict"
	case parallel.Success:
		cmp.Recommended, cmp.Rationale = "parallel", "only parallel resolved every conflict"
	default:
		switch {
		case len(parallel.Unresolved) < len(serial.Unresolved):
			cmp.Recommended, cmp.Rationale = "parallel", "fewer remaining conflicts"
		case len(serial.Unresolved) < len(parallel.Unresolved):
			cmp.Recommended, cmp.Rationale = "serial", "fewer remaining conflicts"
		case parallel.ExtensionDays() < serial.ExtensionDays():
			cmp.Recommended, cmp.Rationale = "parallel", "equal conflicts, shorter extension"
		default:
			cmp.Recommended, cmp.Rationale = "serial", "equal conflicts, shorter or equal extension"
		}
	}

	log.Info().
		Str("recommended", cmp.Recommended).
		Int("serial_extension", serial.ExtensionDays()).
		Int("parallel_extension", parallel.ExtensionDays()).
		Msg("Leveling comparison complete")

	return cmp, nil
}
