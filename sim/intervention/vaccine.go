package intervention

import (
	"fmt"
	"slices"

	"github.com/abmlux/episim/sim"
)

// VaccineConfig describes one vaccine.
type VaccineConfig struct {
	Name                     string   `yaml:"name"`
	SecondDoseNeeded         bool     `yaml:"second_dose_needed"`
	TimeBetweenDosesDays     float64  `yaml:"time_between_doses"`
	ProbFirstDoseSuccessful  float64  `yaml:"prob_first_dose_successful"`
	ProbSecondDoseSuccessful float64  `yaml:"prob_second_dose_successful"`
	TargetedStrains          []string `yaml:"targeted_strains"`
	DurationDays             float64  `yaml:"duration"`
	// MaxFirstDosesPerDay is the daily capacity for the real population; it
	// is scaled by the world's scale factor.
	MaxFirstDosesPerDay float64 `yaml:"max_first_doses_per_day"`
}

// Validate checks the vaccine against the known strain names.
func (c VaccineConfig) Validate(strains []string) error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.SecondDoseNeeded && c.TimeBetweenDosesDays <= 0 {
		return fmt.Errorf("time_between_doses must be positive, got %v", c.TimeBetweenDosesDays)
	}
	for _, p := range []float64{c.ProbFirstDoseSuccessful, c.ProbSecondDoseSuccessful} {
		if p < 0 || p > 1 {
			return fmt.Errorf("dose success probabilities must be in [0, 1], got %v", p)
		}
	}
	if len(c.TargetedStrains) == 0 {
		return fmt.Errorf("targeted_strains must not be empty")
	}
	for _, s := range c.TargetedStrains {
		if !slices.Contains(strains, s) {
			return fmt.Errorf("targeted_strains: unknown strain %q", s)
		}
	}
	if c.DurationDays <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.DurationDays)
	}
	if c.MaxFirstDosesPerDay < 0 {
		return fmt.Errorf("max_first_doses_per_day must be non-negative, got %v", c.MaxFirstDosesPerDay)
	}
	return nil
}

// Vaccine is a VaccineConfig resolved against the run's clock and world.
type Vaccine struct {
	Name                     string
	SecondDoseNeeded         bool
	TimeBetweenDoses         int64 // ticks
	ProbFirstDoseSuccessful  float64
	ProbSecondDoseSuccessful float64
	TargetedStrains          []string
	Duration                 int64 // ticks
	DailyCapacity            int
}

func newVaccine(c VaccineConfig, clock *sim.Clock, scaleFactor float64) (*Vaccine, error) {
	v := &Vaccine{
		Name:                     c.Name,
		SecondDoseNeeded:         c.SecondDoseNeeded,
		TimeBetweenDoses:         clock.DaysToTicks(c.TimeBetweenDosesDays),
		ProbFirstDoseSuccessful:  c.ProbFirstDoseSuccessful,
		ProbSecondDoseSuccessful: c.ProbSecondDoseSuccessful,
		TargetedStrains:          c.TargetedStrains,
		Duration:                 clock.DaysToTicks(c.DurationDays),
		DailyCapacity:            scaledCount(scaleFactor, c.MaxFirstDosesPerDay),
	}
	if v.Duration < 1 {
		return nil, fmt.Errorf("vaccine %s: duration %v days is shorter than one tick", c.Name, c.DurationDays)
	}
	if v.SecondDoseNeeded && v.TimeBetweenDoses < 1 {
		return nil, fmt.Errorf("vaccine %s: time_between_doses %v days is shorter than one tick", c.Name, c.TimeBetweenDosesDays)
	}
	return v, nil
}

func (v *Vaccine) immunity(id sim.AgentID) sim.GainImmunityRequest {
	return sim.GainImmunityRequest{Agent: id, Strains: v.TargetedStrains, Duration: v.Duration}
}
