package disease

import (
	"fmt"
	"math"
	"slices"
)

// StrainConfig describes one strain.
type StrainConfig struct {
	Name string `yaml:"name"`
	// TransmissionProbability maps health states to the probability that an
	// agent in that state infects one susceptible co-attendee per tick.
	TransmissionProbability map[string]float64 `yaml:"transmission_probability"`
	// DiseaseProfileList lists the possible trajectories as strings of
	// health-state letters, e.g. "SEIRS".
	DiseaseProfileList []string `yaml:"disease_profile_list"`
	// DiseaseProfileDistributionByAge maps the lower bound of each age
	// bracket to weights over DiseaseProfileList.
	DiseaseProfileDistributionByAge map[int][]float64 `yaml:"disease_profile_distribution_by_age"`
	// StepSize is the width of the age brackets, in years.
	StepSize int `yaml:"step_size"`
	// DurationsByProfile gives one duration per profile position. The last
	// entry is the immunity duration after recovery.
	DurationsByProfile map[string][]DurationSpec `yaml:"durations_by_profile"`
	NumInitialCases    float64                   `yaml:"num_initial_cases"`
}

// Config configures the multi-strain disease model.
type Config struct {
	HealthStates                 []string                      `yaml:"health_states"`
	SusceptibleState             string                        `yaml:"susceptible_state"`
	DeadState                    string                        `yaml:"dead_state"`
	InfectedStates               []string                      `yaml:"infected_states"`
	Strains                      []StrainConfig                `yaml:"strains"`
	MutationMatrix               map[string]map[string]float64 `yaml:"mutation_matrix"`
	ImmunityMatrix               map[string]map[string]float64 `yaml:"immunity_matrix"`
	NoTransmissionLocations      []string                      `yaml:"no_transmission_locations"`
	ReducedTransmissionLocations []string                      `yaml:"reduced_transmission_locations"`
	ReducedTransmissionFactor    float64                       `yaml:"reduced_transmission_factor"`
}

func validProbability(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}

// Validate checks the configuration for missing or inconsistent entries.
func (c *Config) Validate() error {
	if len(c.HealthStates) == 0 {
		return fmt.Errorf("health_states must not be empty")
	}
	letters := make(map[byte]string, len(c.HealthStates))
	for _, h := range c.HealthStates {
		if h == "" {
			return fmt.Errorf("health_states: empty state name")
		}
		if prev, dup := letters[h[0]]; dup {
			return fmt.Errorf("health_states: %q and %q share the letter %q", prev, h, h[0])
		}
		letters[h[0]] = h
	}
	if !slices.Contains(c.HealthStates, c.SusceptibleState) {
		return fmt.Errorf("susceptible_state %q is not a health state", c.SusceptibleState)
	}
	if !slices.Contains(c.HealthStates, c.DeadState) {
		return fmt.Errorf("dead_state %q is not a health state", c.DeadState)
	}
	if len(c.InfectedStates) == 0 {
		return fmt.Errorf("infected_states must not be empty")
	}
	for _, h := range c.InfectedStates {
		if !slices.Contains(c.HealthStates, h) {
			return fmt.Errorf("infected_states: %q is not a health state", h)
		}
		if h == c.SusceptibleState || h == c.DeadState {
			return fmt.Errorf("infected_states: %q cannot be infected", h)
		}
	}
	if !validProbability(c.ReducedTransmissionFactor) {
		return fmt.Errorf("reduced_transmission_factor must be in [0, 1], got %v", c.ReducedTransmissionFactor)
	}

	if len(c.Strains) == 0 {
		return fmt.Errorf("at least one strain is required")
	}
	names := make([]string, 0, len(c.Strains))
	for i := range c.Strains {
		s := &c.Strains[i]
		if s.Name == "" {
			return fmt.Errorf("strains[%d]: name is required", i)
		}
		if slices.Contains(names, s.Name) {
			return fmt.Errorf("strains[%d]: duplicate strain %q", i, s.Name)
		}
		names = append(names, s.Name)
		if err := c.validateStrain(s, letters); err != nil {
			return fmt.Errorf("strains[%s]: %w", s.Name, err)
		}
	}

	if err := validateMatrix("mutation_matrix", c.MutationMatrix, names, true); err != nil {
		return err
	}
	return validateMatrix("immunity_matrix", c.ImmunityMatrix, names, false)
}

func (c *Config) validateStrain(s *StrainConfig, letters map[byte]string) error {
	for _, h := range c.HealthStates {
		p, ok := s.TransmissionProbability[h]
		if !ok {
			return fmt.Errorf("transmission_probability: missing state %q", h)
		}
		if !validProbability(p) {
			return fmt.Errorf("transmission_probability[%s] must be in [0, 1], got %v", h, p)
		}
	}
	for h := range s.TransmissionProbability {
		if !slices.Contains(c.HealthStates, h) {
			return fmt.Errorf("transmission_probability: unknown state %q", h)
		}
	}

	if len(s.DiseaseProfileList) == 0 {
		return fmt.Errorf("disease_profile_list must not be empty")
	}
	for _, p := range s.DiseaseProfileList {
		if len(p) < 2 {
			return fmt.Errorf("profile %q must have at least two positions", p)
		}
		for i := 0; i < len(p); i++ {
			if _, ok := letters[p[i]]; !ok {
				return fmt.Errorf("profile %q: letter %q is not a health state", p, p[i])
			}
		}
		durations, ok := s.DurationsByProfile[p]
		if !ok {
			return fmt.Errorf("durations_by_profile: missing profile %q", p)
		}
		if len(durations) != len(p) {
			return fmt.Errorf("durations_by_profile[%s]: need %d durations, got %d", p, len(p), len(durations))
		}
		for i, d := range durations {
			if _, err := NewDuration(d); err != nil {
				return fmt.Errorf("durations_by_profile[%s][%d]: %w", p, i, err)
			}
		}
	}

	if s.StepSize <= 0 {
		return fmt.Errorf("step_size must be positive, got %d", s.StepSize)
	}
	if len(s.DiseaseProfileDistributionByAge) == 0 {
		return fmt.Errorf("disease_profile_distribution_by_age must not be empty")
	}
	maxAge := 0
	for age, weights := range s.DiseaseProfileDistributionByAge {
		if age < 0 || age%s.StepSize != 0 {
			return fmt.Errorf("disease_profile_distribution_by_age: age %d is not a multiple of step_size %d", age, s.StepSize)
		}
		if len(weights) != len(s.DiseaseProfileList) {
			return fmt.Errorf("disease_profile_distribution_by_age[%d]: need %d weights, got %d", age, len(s.DiseaseProfileList), len(weights))
		}
		total := 0.0
		for _, w := range weights {
			if w < 0 || math.IsNaN(w) {
				return fmt.Errorf("disease_profile_distribution_by_age[%d]: negative weight %v", age, w)
			}
			total += w
		}
		if total <= 0 {
			return fmt.Errorf("disease_profile_distribution_by_age[%d]: weights sum to zero", age)
		}
		maxAge = max(maxAge, age)
	}
	for age := 0; age <= maxAge; age += s.StepSize {
		if _, ok := s.DiseaseProfileDistributionByAge[age]; !ok {
			return fmt.Errorf("disease_profile_distribution_by_age: missing age bracket %d", age)
		}
	}

	if s.NumInitialCases < 0 || math.IsNaN(s.NumInitialCases) {
		return fmt.Errorf("num_initial_cases must be non-negative, got %v", s.NumInitialCases)
	}
	if s.NumInitialCases > 0 {
		// Seeded cases start past the first position and before the last.
		for _, p := range s.DiseaseProfileList {
			if len(p) < 3 {
				return fmt.Errorf("profile %q: strains with initial cases need profiles of at least three positions", p)
			}
		}
	}
	return nil
}

func validateMatrix(name string, m map[string]map[string]float64, strains []string, rowsNeedMass bool) error {
	for from, row := range m {
		if !slices.Contains(strains, from) {
			return fmt.Errorf("%s: unknown strain %q", name, from)
		}
		for to := range row {
			if !slices.Contains(strains, to) {
				return fmt.Errorf("%s[%s]: unknown strain %q", name, from, to)
			}
		}
	}
	for _, from := range strains {
		row, ok := m[from]
		if !ok {
			return fmt.Errorf("%s: missing row for strain %q", name, from)
		}
		total := 0.0
		for _, to := range strains {
			p, ok := row[to]
			if !ok {
				return fmt.Errorf("%s[%s]: missing entry for strain %q", name, from, to)
			}
			if !validProbability(p) {
				return fmt.Errorf("%s[%s][%s] must be in [0, 1], got %v", name, from, to, p)
			}
			total += p
		}
		if rowsNeedMass && total <= 0 {
			return fmt.Errorf("%s[%s]: row sums to zero", name, from)
		}
	}
	return nil
}
