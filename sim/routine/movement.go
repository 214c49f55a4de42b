package routine

import (
	"github.com/abmlux/episim/sim"
)

// MovementConfig configures the movement model.
type MovementConfig struct {
	// NoMoveHealthStates are health states in which agents stay where they
	// are whatever their activity, e.g. hospitalised or dead.
	NoMoveHealthStates []string `yaml:"no_move_health_states"`
	// TransportActivity is the public transport activity. Agents starting
	// it board one of the currently available units of TransportLocationType.
	TransportActivity     string `yaml:"pt_activity_type"`
	TransportLocationType string `yaml:"pt_location_type"`
}

// Movement sends each agent to a random location for its new activity.
type Movement struct {
	cfg    MovementConfig
	sim    *sim.Simulator
	noMove map[sim.HealthState]bool

	units     []sim.LocationID
	available map[sim.LocationID]bool
}

// NewMovement creates the movement model.
func NewMovement(cfg MovementConfig) *Movement {
	m := &Movement{
		cfg:       cfg,
		noMove:    make(map[sim.HealthState]bool),
		available: make(map[sim.LocationID]bool),
	}
	for _, h := range cfg.NoMoveHealthStates {
		m.noMove[sim.HealthState(h)] = true
	}
	return m
}

func (m *Movement) Name() string { return "movement" }

func (m *Movement) InitSim(s *sim.Simulator) error {
	m.sim = s
	if m.cfg.TransportLocationType != "" {
		m.units = s.World().LocationsOfType(m.cfg.TransportLocationType)
		for _, u := range m.units {
			m.available[u] = true
		}
	}
	sim.Listen(s.Bus(), m.Name(), m.onActivityChanged)
	sim.Listen(s.Bus(), m.Name(), m.onTransportAvailability)
	return nil
}

func (m *Movement) onTransportAvailability(ev sim.TransportAvailability) {
	m.available[ev.Location] = ev.Available
}

func (m *Movement) onActivityChanged(ev sim.ActivityChanged) {
	a := m.sim.World().Agent(ev.Agent)
	if m.noMove[a.Health()] {
		return
	}

	var choices []sim.LocationID
	if m.cfg.TransportActivity != "" && a.Activity() == sim.Activity(m.cfg.TransportActivity) && len(m.units) > 0 {
		for _, u := range m.units {
			if m.available[u] {
				choices = append(choices, u)
			}
		}
	} else {
		choices = a.LocationsFor(a.Activity())
	}
	if len(choices) == 0 {
		return
	}
	m.sim.Bus().Publish(sim.LocationRequest{Agent: ev.Agent, Location: sim.ChoiceOf(m.sim.RNG(), choices)})
}

// Available returns the public transport units currently in service.
func (m *Movement) Available() []sim.LocationID {
	var out []sim.LocationID
	for _, u := range m.units {
		if m.available[u] {
			out = append(out, u)
		}
	}
	return out
}
