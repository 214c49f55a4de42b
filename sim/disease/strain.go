package disease

import (
	"fmt"

	"github.com/abmlux/episim/sim"
)

// Profile is one possible trajectory of an infection: the health state at
// each position and how long each position lasts.
type Profile struct {
	Letters   string
	States    []sim.HealthState
	Durations []Duration
}

// Strain is an immutable strain definition.
type Strain struct {
	Name  string
	Index int

	transmission map[sim.HealthState]float64
	profiles     []Profile
	weightsByAge map[int][]float64
	stepSize     int
	maxAge       int
}

func newStrain(index int, cfg StrainConfig, stateForLetter map[byte]sim.HealthState) (*Strain, error) {
	s := &Strain{
		Name:         cfg.Name,
		Index:        index,
		transmission: make(map[sim.HealthState]float64, len(cfg.TransmissionProbability)),
		weightsByAge: cfg.DiseaseProfileDistributionByAge,
		stepSize:     cfg.StepSize,
	}
	for h, p := range cfg.TransmissionProbability {
		s.transmission[sim.HealthState(h)] = p
	}
	for age := range cfg.DiseaseProfileDistributionByAge {
		s.maxAge = max(s.maxAge, age)
	}
	for _, letters := range cfg.DiseaseProfileList {
		p := Profile{Letters: letters}
		for i := 0; i < len(letters); i++ {
			p.States = append(p.States, stateForLetter[letters[i]])
		}
		for i, spec := range cfg.DurationsByProfile[letters] {
			d, err := NewDuration(spec)
			if err != nil {
				return nil, fmt.Errorf("profile %s position %d: %w", letters, i, err)
			}
			p.Durations = append(p.Durations, d)
		}
		s.profiles = append(s.profiles, p)
	}
	return s, nil
}

// TransmissionProbability returns the per-tick transmission probability of
// an agent carrying this strain in state h.
func (s *Strain) TransmissionProbability(h sim.HealthState) float64 {
	return s.transmission[h]
}

// Profiles returns the strain's profiles in configuration order.
func (s *Strain) Profiles() []Profile { return s.profiles }

// ageBracket rounds age down to its bracket, capped at the oldest bracket.
func (s *Strain) ageBracket(age int) int {
	return min((age/s.stepSize)*s.stepSize, s.maxAge)
}

// ChooseProfile draws a profile for an agent of the given age.
func (s *Strain) ChooseProfile(rng *sim.RNG, age int) *Profile {
	weights := s.weightsByAge[s.ageBracket(max(age, 0))]
	i, ok := rng.WeightedIndex(weights)
	if !ok {
		panic(fmt.Sprintf("strain %s: no profile weight for age %d", s.Name, age))
	}
	return &s.profiles[i]
}
