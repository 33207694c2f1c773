package simulation

import (
	"math"
	"math/rand"

	"dpm-server/internal/domain"
)

// DistributionKind names a supported duration distribution.
type DistributionKind string

const (
	DistTriangular DistributionKind = "triangular"
	DistPERT       DistributionKind = "pert"
	DistNormal     DistributionKind = "normal"
	DistUniform    DistributionKind = "uniform"
)

// Distribution parameterizes one activity's duration uncertainty. Min,
// Mode, and Max apply to triangular/pert/uniform; Mean and StdDev to
// normal.
type Distribution struct {
	Kind   DistributionKind `json:"kind"`
	Min    float64          `json:"min,omitempty"`
	Mode   float64          `json:"mode,omitempty"`
	Max    float64          `json:"max,omitempty"`
	Mean   float64          `json:"mean,omitempty"`
	StdDev float64          `json:"std_dev,omitempty"`
}

// Validate rejects parameter sets the sampler cannot honor.
func (d Distribution) Validate() error {
	switch d.Kind {
	case DistTriangular, DistPERT:
		if !(d.Min <= d.Mode && d.Mode <= d.Max) {
			return domain.Validation("distribution_params", "%s requires min <= mode <= max, got %v/%v/%v", d.Kind, d.Min, d.Mode, d.Max)
		}
		if d.Min == d.Max && d.Kind == DistPERT {
			return nil // degenerate but samplable as a constant
		}
	case DistNormal:
		if d.StdDev < 0 {
			return domain.Validation("distribution_params", "normal requires std_dev >= 0, got %v", d.StdDev)
		}
	case DistUniform:
		if d.Min > d.Max {
			return domain.Validation("distribution_params", "uniform requires min <= max, got %v/%v", d.Min, d.Max)
		}
	default:
		return domain.Validation("distribution_kind", "unknown distribution kind %q", d.Kind)
	}
	return nil
}

// Sample draws one duration. Durations never go below zero; normal draws
// are additionally clamped to at least one day since a zero-length
// activity is a milestone, not a risk.
func (d Distribution) Sample(rng *rand.Rand) float64 {
	switch d.Kind {
	case DistTriangular:
		return sampleTriangular(rng, d.Min, d.Mode, d.Max)
	case DistPERT:
		return samplePERT(rng, d.Min, d.Mode, d.Max)
	case DistNormal:
		// NormFloat64 (ziggurat) draws from the same N(0,1) a Box-Muller
		// transform would; scale and shift give N(mean, stddev).
		v := rng.NormFloat64()*d.StdDev + d.Mean
		if v < 1 {
			return 1
		}
		return v
	case DistUniform:
		return d.Min + rng.Float64()*(d.Max-d.Min)
	}
	return 0
}

// sampleTriangular uses the inverse CDF.
func sampleTriangular(rng *rand.Rand, min, mode, max float64) float64 {
	if max == min {
		return min
	}
	u := rng.Float64()
	fc := (mode - min) / (max - min)
	if u < fc {
		return min + math.Sqrt(u*(max-min)*(mode-min))
	}
	return max - math.Sqrt((1-u)*(max-min)*(max-mode))
}

// samplePERT draws from the PERT Beta: alpha = 1 + 4(mode-min)/(max-min),
// beta = 1 + 4(max-mode)/(max-min), scaled back to [min, max].
func samplePERT(rng *rand.Rand, min, mode, max float64) float64 {
	if max == min {
		return min
	}
	alpha := 1 + 4*(mode-min)/(max-min)
	beta := 1 + 4*(max-mode)/(max-min)
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	return min + (max-min)*x/(x+y)
}

// sampleGamma draws Gamma(shape, 1) via Marsaglia-Tsang. Shapes below 1
// use the boost Gamma(shape+1) * U^(1/shape).
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
