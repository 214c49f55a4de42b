// Package scenario loads a run description from YAML and wires the
// simulator, world, disease model, routine and interventions it describes.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/disease"
	"github.com/abmlux/episim/sim/intervention"
	"github.com/abmlux/episim/sim/routine"
	"github.com/abmlux/episim/sim/trace"
)

// Intervention names used in schedules.
const (
	QuarantineName  = "quarantine"
	VaccinationName = "vaccination"
)

// Config is a whole scenario file.
// All top-level sections must be listed to satisfy KnownFields(true).
type Config struct {
	Seed            int64           `yaml:"seed"`
	Region          string          `yaml:"region"`
	ScaleFactor     float64         `yaml:"scale_factor"`
	CheckInvariants bool            `yaml:"check_invariants"`
	TraceLevel      string          `yaml:"trace_level"`
	Clock           sim.ClockConfig `yaml:"clock"`
	World           WorldConfig     `yaml:"world"`
	Disease         disease.Config  `yaml:"disease"`

	Routine   *routine.Config          `yaml:"routine"`
	Movement  *routine.MovementConfig  `yaml:"movement"`
	Transport *routine.TransportConfig `yaml:"transport"`

	Interventions InterventionsConfig `yaml:"interventions"`
}

// InterventionsConfig holds the optional interventions.
type InterventionsConfig struct {
	Quarantine  *QuarantineSection  `yaml:"quarantine"`
	Vaccination *VaccinationSection `yaml:"vaccination"`
}

// QuarantineSection is a quarantine configuration with its initial state
// and activation schedule.
type QuarantineSection struct {
	Enabled                       bool                `yaml:"enabled"`
	Schedule                      []sim.ScheduleEntry `yaml:"schedule"`
	intervention.QuarantineConfig `yaml:",inline"`
}

// VaccinationSection is a vaccination configuration with its initial state
// and activation schedule.
type VaccinationSection struct {
	Enabled                        bool                `yaml:"enabled"`
	Schedule                       []sim.ScheduleEntry `yaml:"schedule"`
	intervention.VaccinationConfig `yaml:",inline"`
}

// Load reads and parses a scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse parses a scenario from YAML and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ScaleFactor == 0 {
		c.ScaleFactor = 1
	}
	if c.TraceLevel == "" {
		c.TraceLevel = string(trace.LevelNone)
	}
	if c.World.HomeActivity == "" {
		c.World.HomeActivity = "house"
	}
	if c.World.HomeLocationType == "" {
		c.World.HomeLocationType = "House"
	}
	if c.World.ExtentMetres == 0 {
		c.World.ExtentMetres = 10_000
	}
	for i := range c.World.Sites {
		c.World.Sites[i].applyDefaults()
	}
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.ScaleFactor <= 0 || c.ScaleFactor > 1 {
		return fmt.Errorf("scale_factor must be in (0, 1], got %v", c.ScaleFactor)
	}
	if _, err := trace.ParseLevel(c.TraceLevel); err != nil {
		return fmt.Errorf("trace_level: %w", err)
	}
	if err := c.Clock.Validate(); err != nil {
		return fmt.Errorf("clock: %w", err)
	}
	if err := c.World.Validate(); err != nil {
		return fmt.Errorf("world: %w", err)
	}
	if err := c.Disease.Validate(); err != nil {
		return fmt.Errorf("disease: %w", err)
	}

	states := make([]sim.HealthState, len(c.Disease.HealthStates))
	for i, h := range c.Disease.HealthStates {
		states[i] = sim.HealthState(h)
	}
	activities := c.World.activities()
	if c.Movement != nil && c.Movement.TransportActivity != "" {
		activities = append(activities, c.Movement.TransportActivity)
	}
	locationTypes := c.World.locationTypes()

	if c.Routine != nil {
		if err := c.Routine.Validate(); err != nil {
			return fmt.Errorf("routine: %w", err)
		}
		for _, w := range c.Routine.Routines {
			if !slices.Contains(activities, w.DefaultActivity) {
				return fmt.Errorf("routine %s: unknown activity %q", w.Name, w.DefaultActivity)
			}
			for _, b := range w.Blocks {
				if !slices.Contains(activities, b.Activity) {
					return fmt.Errorf("routine %s: unknown activity %q", w.Name, b.Activity)
				}
			}
		}
	}
	if m := c.Movement; m != nil {
		for _, h := range m.NoMoveHealthStates {
			if !slices.Contains(c.Disease.HealthStates, h) {
				return fmt.Errorf("movement: unknown health state %q", h)
			}
		}
		if m.TransportLocationType != "" && !slices.Contains(locationTypes, m.TransportLocationType) {
			return fmt.Errorf("movement: no locations of type %q", m.TransportLocationType)
		}
	}
	if t := c.Transport; t != nil {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		if !slices.Contains(locationTypes, t.LocationType) {
			return fmt.Errorf("transport: no locations of type %q", t.LocationType)
		}
	}

	if q := c.Interventions.Quarantine; q != nil {
		if err := q.QuarantineConfig.Validate(states); err != nil {
			return fmt.Errorf("interventions.quarantine: %w", err)
		}
		if err := validateSchedule(q.Schedule); err != nil {
			return fmt.Errorf("interventions.quarantine: %w", err)
		}
	}
	if v := c.Interventions.Vaccination; v != nil {
		strains := make([]string, len(c.Disease.Strains))
		for i, s := range c.Disease.Strains {
			strains[i] = s.Name
		}
		if err := v.VaccinationConfig.Validate(strains); err != nil {
			return fmt.Errorf("interventions.vaccination: %w", err)
		}
		if err := validateSchedule(v.Schedule); err != nil {
			return fmt.Errorf("interventions.vaccination: %w", err)
		}
	}
	return nil
}

func validateSchedule(entries []sim.ScheduleEntry) error {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("schedule[%d]: %w", i, err)
		}
	}
	return nil
}
