// Package intervention provides the public-health interventions that can be
// scheduled on and off during a run.
package intervention

import (
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
)

// MetricQuarantineCount is reported at midnight with the number of agents in
// quarantine.
const MetricQuarantineCount = "quarantine.count"

// QuarantineConfig configures symptomatic quarantine.
type QuarantineConfig struct {
	DefaultDurationDays float64 `yaml:"default_duration_days"`
	// LocationBlacklist lists location types a quarantined agent may still
	// go to, e.g. hospitals.
	LocationBlacklist          []string `yaml:"location_blacklist"`
	HomeActivity               string   `yaml:"home_activity_type"`
	SymptomaticStates          []string `yaml:"symptomatic_states"`
	AsymptomaticStates         []string `yaml:"asymptomatic_states"`
	ProbQuarantineSymptomatic  float64  `yaml:"prob_quarantine_symptomatic"`
	ProbQuarantineAsymptomatic float64  `yaml:"prob_quarantine_asymptomatic"`
}

// Validate checks the configuration. states is the disease model's list of
// health states.
func (c QuarantineConfig) Validate(states []sim.HealthState) error {
	if c.DefaultDurationDays <= 0 {
		return fmt.Errorf("default_duration_days must be positive, got %v", c.DefaultDurationDays)
	}
	if c.HomeActivity == "" {
		return fmt.Errorf("home_activity_type is required")
	}
	for _, list := range [][]string{c.SymptomaticStates, c.AsymptomaticStates} {
		for _, h := range list {
			if !slices.Contains(states, sim.HealthState(h)) {
				return fmt.Errorf("unknown health state %q", h)
			}
		}
	}
	if c.ProbQuarantineSymptomatic < 0 || c.ProbQuarantineSymptomatic > 1 {
		return fmt.Errorf("prob_quarantine_symptomatic must be in [0, 1], got %v", c.ProbQuarantineSymptomatic)
	}
	if c.ProbQuarantineAsymptomatic < 0 || c.ProbQuarantineAsymptomatic > 1 {
		return fmt.Errorf("prob_quarantine_asymptomatic must be in [0, 1], got %v", c.ProbQuarantineAsymptomatic)
	}
	return nil
}

// Quarantine sends agents home when they become symptomatic (or, with a
// separate probability, asymptomatic) and keeps them there for a fixed
// number of days. Location requests to blacklisted location types are let
// through.
//
// Disabling the intervention stops new quarantines; agents already in
// quarantine stay until their stop request fires.
type Quarantine struct {
	sim.Toggle

	name string
	cfg  QuarantineConfig

	sim         *sim.Simulator
	rng         *sim.RNG
	stops       *sim.DeferredEventPool
	duration    int64
	quarantined []bool
	count       int

	home         sim.Activity
	blacklist    map[string]bool
	symptomatic  map[sim.HealthState]bool
	asymptomatic map[sim.HealthState]bool
}

// NewQuarantine creates a quarantine intervention.
func NewQuarantine(name string, cfg QuarantineConfig, enabled bool) *Quarantine {
	q := &Quarantine{
		Toggle:       sim.NewToggle(enabled),
		name:         name,
		cfg:          cfg,
		home:         sim.Activity(cfg.HomeActivity),
		blacklist:    make(map[string]bool),
		symptomatic:  make(map[sim.HealthState]bool),
		asymptomatic: make(map[sim.HealthState]bool),
	}
	for _, t := range cfg.LocationBlacklist {
		q.blacklist[t] = true
	}
	for _, h := range cfg.SymptomaticStates {
		q.symptomatic[sim.HealthState(h)] = true
	}
	for _, h := range cfg.AsymptomaticStates {
		q.asymptomatic[sim.HealthState(h)] = true
	}
	return q
}

func (q *Quarantine) Name() string { return q.name }

func (q *Quarantine) InitSim(s *sim.Simulator) error {
	q.sim = s
	q.rng = s.RNG()
	q.duration = s.Clock().DaysToTicks(q.cfg.DefaultDurationDays)
	q.quarantined = make([]bool, s.World().NumAgents())
	q.stops = sim.NewDeferredEventPool(s.Bus(), s.Clock(), q.name)

	bus := s.Bus()
	sim.Subscribe(bus, q.name, q.onStop)
	sim.Subscribe(bus, q.name, q.onLocationRequest)
	sim.Listen(bus, q.name, q.onHealthChanged)
	sim.Listen(bus, q.name, func(sim.Midnight) {
		s.Report(MetricQuarantineCount, map[string]int64{"quarantined": int64(q.count)})
	})
	return nil
}

func (q *Quarantine) onHealthChanged(ev sim.HealthChanged) {
	if !q.Enabled() {
		return
	}
	h := q.sim.World().Agent(ev.Agent).Health()
	if h == ev.Old {
		return
	}
	if !q.symptomatic[ev.Old] && q.symptomatic[h] && q.rng.Boolean(q.cfg.ProbQuarantineSymptomatic) {
		q.start(ev.Agent)
	}
	if !q.asymptomatic[ev.Old] && q.asymptomatic[h] && q.rng.Boolean(q.cfg.ProbQuarantineAsymptomatic) {
		q.start(ev.Agent)
	}
}

func (q *Quarantine) start(id sim.AgentID) {
	if !q.quarantined[id] {
		q.count++
	}
	q.quarantined[id] = true
	q.stops.Add(q.duration, sim.QuarantineStopRequest{Agent: id})
	logrus.Debugf("[tick %07d] agent %d quarantined", q.sim.Clock().T(), id)
}

// onStop ends a quarantine. A later quarantine of the same agent is ended
// by the earliest outstanding stop request.
func (q *Quarantine) onStop(ev sim.QuarantineStopRequest) sim.Result {
	if q.quarantined[ev.Agent] {
		q.quarantined[ev.Agent] = false
		q.count--
	}
	return sim.Consume
}

// onLocationRequest replaces a quarantined agent's move with a move home.
func (q *Quarantine) onLocationRequest(ev sim.LocationRequest) sim.Result {
	if !q.quarantined[ev.Agent] {
		return sim.Continue
	}
	homes := q.sim.World().Agent(ev.Agent).LocationsFor(q.home)
	if len(homes) == 0 || ev.Location == homes[0] {
		return sim.Continue
	}
	if q.blacklist[q.sim.World().Location(ev.Location).Type] {
		return sim.Continue
	}
	q.sim.Bus().Publish(sim.LocationRequest{Agent: ev.Agent, Location: homes[0]})
	return sim.Consume
}

// InQuarantine reports whether id is currently quarantined.
func (q *Quarantine) InQuarantine(id sim.AgentID) bool { return q.quarantined[id] }

// Count returns the number of agents currently quarantined.
func (q *Quarantine) Count() int { return q.count }
