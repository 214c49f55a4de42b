package disease

import (
	"fmt"
	"math"

	"github.com/abmlux/episim/sim"
)

// Duration samples how many days an agent spends in one position of a
// disease profile.
type Duration interface {
	// SampleDays returns a duration in days, or false for a terminal
	// position that only ends through an external event.
	SampleDays(rng *sim.RNG) (float64, bool)
}

// GammaDuration is Gamma(shape, scale) days.
type GammaDuration struct {
	shape, scale float64
}

func (d GammaDuration) SampleDays(rng *sim.RNG) (float64, bool) {
	return rng.Gamma(d.shape, d.scale), true
}

// UniformDuration is a whole number of days drawn uniformly from [lo, hi).
type UniformDuration struct {
	lo, hi int
}

func (d UniformDuration) SampleDays(rng *sim.RNG) (float64, bool) {
	return float64(d.lo + rng.IntN(d.hi-d.lo)), true
}

// ConstantDuration is always the same number of days.
type ConstantDuration struct {
	days float64
}

func (d ConstantDuration) SampleDays(*sim.RNG) (float64, bool) { return d.days, true }

// ExponentialDuration is exponentially distributed with the given mean.
type ExponentialDuration struct {
	mean float64
}

func (d ExponentialDuration) SampleDays(rng *sim.RNG) (float64, bool) {
	return rng.Exponential(d.mean), true
}

// NoDuration marks a terminal position.
type NoDuration struct{}

func (NoDuration) SampleDays(*sim.RNG) (float64, bool) { return 0, false }

// Valid duration type tags.
const (
	DurationGamma       = "gamma"
	DurationUniform     = "uniform"
	DurationConstant    = "constant"
	DurationExponential = "exponential"
	DurationNone        = "none"
)

// DurationSpec configures a Duration in days.
//
//	gamma:       params [shape, scale]
//	uniform:     params [low, high), whole days
//	constant:    params [days]
//	exponential: params [mean]
//	none:        no params
type DurationSpec struct {
	Type   string    `yaml:"type"`
	Params []float64 `yaml:"params,omitempty"`
}

// NewDuration builds the Duration described by spec.
func NewDuration(spec DurationSpec) (Duration, error) {
	want := map[string]int{
		DurationGamma: 2, DurationUniform: 2, DurationConstant: 1, DurationExponential: 1, DurationNone: 0,
	}
	n, ok := want[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown duration type %q; valid: gamma, uniform, constant, exponential, none", spec.Type)
	}
	if len(spec.Params) != n {
		return nil, fmt.Errorf("%s duration needs %d params, got %d", spec.Type, n, len(spec.Params))
	}
	for i, p := range spec.Params {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return nil, fmt.Errorf("%s duration param %d must be finite and non-negative, got %v", spec.Type, i, p)
		}
	}

	switch spec.Type {
	case DurationGamma:
		if spec.Params[0] <= 0 || spec.Params[1] <= 0 {
			return nil, fmt.Errorf("gamma shape and scale must be positive, got %v", spec.Params)
		}
		return GammaDuration{shape: spec.Params[0], scale: spec.Params[1]}, nil
	case DurationUniform:
		lo, hi := int(spec.Params[0]), int(spec.Params[1])
		if hi <= lo {
			return nil, fmt.Errorf("uniform range [%d, %d) is empty", lo, hi)
		}
		return UniformDuration{lo: lo, hi: hi}, nil
	case DurationConstant:
		return ConstantDuration{days: spec.Params[0]}, nil
	case DurationExponential:
		if spec.Params[0] <= 0 {
			return nil, fmt.Errorf("exponential mean must be positive, got %v", spec.Params[0])
		}
		return ExponentialDuration{mean: spec.Params[0]}, nil
	default:
		return NoDuration{}, nil
	}
}
