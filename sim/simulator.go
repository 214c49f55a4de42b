// sim/simulator.go
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const kernelOwner = "simulator"

// Component is a part of the model that hooks onto the bus when a run
// starts. InitSim is called once, before the health index is built, so a
// component may still set initial agent state through the World.
type Component interface {
	Name() string
	InitSim(s *Simulator) error
}

// HealthModel is the disease model as seen by the simulator: a component
// that also defines the set of health states agents can be in.
type HealthModel interface {
	Component
	States() []HealthState
}

// InterventionComponent is a component that can be scheduled on and off.
type InterventionComponent interface {
	Component
	Intervention
}

// Config holds the simulator's own settings.
type Config struct {
	// Region is the resident region; health counts are kept for its agents.
	Region string `yaml:"region"`
	// CheckInvariants verifies the health index and resident counts after
	// every commit. Slow; meant for tests and debugging.
	CheckInvariants bool `yaml:"check_invariants"`
}

// Setup collects everything a Simulator is built from.
type Setup struct {
	Config    Config
	World     *World
	Clock     *Clock
	RNG       *RNG
	Telemetry TelemetrySink
	Disease   HealthModel
	// Components are initialised in order before the disease model, so
	// their handlers run first on shared topics.
	Components []Component
	// Interventions are initialised after the disease model, in order.
	Interventions []InterventionComponent
	// Schedules maps intervention names to their activation schedules.
	Schedules map[string][]ScheduleEntry
}

type pendingUpdate struct {
	activity    Activity
	location    LocationID
	health      HealthState
	hasActivity bool
	hasLocation bool
	hasHealth   bool
}

// Simulator owns the tick loop. All agent state changes requested during a
// tick are buffered and applied together at the end of the tick, so every
// handler observes the state as it was when the tick began.
type Simulator struct {
	cfg       Config
	runID     string
	createdAt time.Time

	clock         *Clock
	bus           *Bus
	rng           *RNG
	world         *World
	telemetry     TelemetrySink
	disease       HealthModel
	components    []Component
	interventions []InterventionComponent
	scheduler     *InterventionScheduler

	index          *HealthIndex
	updates        map[AgentID]*pendingUpdate
	updateOrder    []AgentID
	residentCounts map[HealthState]int
	numResidents   int
	ran            bool
}

// NewSimulator validates setup and creates a simulator with a fresh bus.
func NewSimulator(setup Setup) (*Simulator, error) {
	switch {
	case setup.World == nil:
		return nil, errors.New("no world defined")
	case setup.Clock == nil:
		return nil, errors.New("no clock defined")
	case setup.RNG == nil:
		return nil, errors.New("no random source defined")
	case setup.Disease == nil:
		return nil, errors.New("no disease model defined")
	}
	if setup.Telemetry == nil {
		setup.Telemetry = NopSink{}
	}

	byName := make(map[string]Intervention, len(setup.Interventions))
	for _, iv := range setup.Interventions {
		if _, dup := byName[iv.Name()]; dup {
			return nil, fmt.Errorf("duplicate intervention %q", iv.Name())
		}
		byName[iv.Name()] = iv
	}
	schedules := make(map[Intervention][]ScheduleEntry, len(setup.Schedules))
	for name, entries := range setup.Schedules {
		iv, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("schedule for unknown intervention %q", name)
		}
		schedules[iv] = entries
	}
	scheduler, err := NewInterventionScheduler(setup.Clock, schedules)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:           setup.Config,
		runID:         uuid.NewString(),
		createdAt:     time.Now(),
		clock:         setup.Clock,
		bus:           NewBus(),
		rng:           setup.RNG,
		world:         setup.World,
		telemetry:     setup.Telemetry,
		disease:       setup.Disease,
		components:    setup.Components,
		interventions: setup.Interventions,
		scheduler:     scheduler,
		updates:       make(map[AgentID]*pendingUpdate),
	}
	logrus.Infof("Simulation created at %s with ID=%s", s.createdAt.Format(time.RFC3339), s.runID)
	return s, nil
}

func (s *Simulator) RunID() string                     { return s.runID }
func (s *Simulator) Config() Config                    { return s.cfg }
func (s *Simulator) Region() string                    { return s.cfg.Region }
func (s *Simulator) Clock() *Clock                     { return s.clock }
func (s *Simulator) Bus() *Bus                         { return s.bus }
func (s *Simulator) RNG() *RNG                         { return s.rng }
func (s *Simulator) World() *World                     { return s.world }
func (s *Simulator) Telemetry() TelemetrySink          { return s.telemetry }
func (s *Simulator) Scheduler() *InterventionScheduler { return s.scheduler }

// Index returns the (location, health) index. It is nil until Run has
// built it.
func (s *Simulator) Index() *HealthIndex { return s.index }

// IsResident reports whether the agent belongs to the resident region.
func (s *Simulator) IsResident(a *Agent) bool { return a.Region() == s.cfg.Region }

// ResidentCounts returns a copy of the resident agents-by-health counts.
func (s *Simulator) ResidentCounts() map[HealthState]int {
	out := make(map[HealthState]int, len(s.residentCounts))
	for h, n := range s.residentCounts {
		out[h] = n
	}
	return out
}

// Report sends a metric stamped with the current tick to the telemetry sink.
func (s *Simulator) Report(name string, values map[string]int64) {
	s.telemetry.Record(Metric{Name: name, Tick: s.clock.T(), Time: s.clock.Now(), Values: values})
}

func (s *Simulator) initComponents() error {
	for _, c := range s.components {
		logrus.Infof("Initialising component '%s'...", c.Name())
		if err := c.InitSim(s); err != nil {
			return fmt.Errorf("initialising %s: %w", c.Name(), err)
		}
	}
	logrus.Infof("Initialising disease model '%s'...", s.disease.Name())
	if err := s.disease.InitSim(s); err != nil {
		return fmt.Errorf("initialising %s: %w", s.disease.Name(), err)
	}
	for _, iv := range s.interventions {
		logrus.Infof("Initialising intervention '%s'...", iv.Name())
		if err := iv.InitSim(s); err != nil {
			return fmt.Errorf("initialising %s: %w", iv.Name(), err)
		}
	}

	// Registered last so that every other component sees requests first and
	// may consume them.
	Subscribe(s.bus, kernelOwner, s.recordActivityChange)
	Subscribe(s.bus, kernelOwner, s.recordLocationChange)
	Subscribe(s.bus, kernelOwner, s.recordHealthChange)
	return nil
}

func (s *Simulator) pending(id AgentID) *pendingUpdate {
	u, ok := s.updates[id]
	if !ok {
		s.world.Agent(id) // panics on unknown IDs
		u = &pendingUpdate{}
		s.updates[id] = u
		s.updateOrder = append(s.updateOrder, id)
	}
	return u
}

func (s *Simulator) recordActivityChange(ev ActivityRequest) Result {
	u := s.pending(ev.Agent)
	u.activity, u.hasActivity = ev.Activity, true
	return Consume
}

func (s *Simulator) recordLocationChange(ev LocationRequest) Result {
	s.world.Location(ev.Location) // panics on unknown IDs
	u := s.pending(ev.Agent)
	u.location, u.hasLocation = ev.Location, true
	return Consume
}

func (s *Simulator) recordHealthChange(ev HealthRequest) Result {
	if s.index != nil && !s.index.HasState(ev.Health) {
		panic(fmt.Sprintf("health change to unknown state %q requested for agent %d", ev.Health, ev.Agent))
	}
	u := s.pending(ev.Agent)
	u.health, u.hasHealth = ev.Health, true
	return Consume
}

func (s *Simulator) buildIndex() error {
	states := s.disease.States()
	known := make(map[HealthState]bool, len(states))
	for _, h := range states {
		known[h] = true
	}
	for _, a := range s.world.Agents() {
		if a.Location() == NoLocation {
			return fmt.Errorf("agent %d has no initial location", a.ID())
		}
		if !known[a.Health()] {
			return fmt.Errorf("agent %d has unknown health state %q", a.ID(), a.Health())
		}
	}

	logrus.Info("Creating agent location indices...")
	s.index = NewHealthIndex(s.world, states)

	s.residentCounts = make(map[HealthState]int, len(states))
	for _, h := range states {
		s.residentCounts[h] = 0
	}
	s.numResidents = 0
	for _, a := range s.world.Agents() {
		if s.IsResident(a) {
			s.residentCounts[a.Health()]++
			s.numResidents++
		}
	}
	return nil
}

// Run executes the whole simulation. A Simulator can run only once.
func (s *Simulator) Run() error {
	if s.ran {
		return errors.New("simulation has already been run")
	}
	s.ran = true

	logrus.Info("Simulating outbreak...")
	s.clock.Reset()

	if err := s.initComponents(); err != nil {
		return err
	}

	s.bus.Publish(SimulationStarted{Sim: s})
	s.Report(MetricSimulationStart, nil)

	s.world.seal()
	if err := s.buildIndex(); err != nil {
		return err
	}
	s.Report(MetricHealthCountsInitial, s.countsMetric())

	day := s.clock.Day()
	var notifications []Event
	for t := range s.clock.Ticks() {
		s.scheduler.Tick(t)

		// Changes committed last tick are announced before anything else
		// happens this tick.
		for _, ev := range notifications {
			s.bus.Publish(ev)
		}

		s.bus.Publish(Tick{Clock: s.clock, T: t})

		if d := s.clock.Day(); d != day {
			day = d
			logrus.Infof("[tick %07d] midnight, day %d (%s)", t, d, s.clock.Now().Format(time.DateOnly))
			s.bus.Publish(Midnight{Clock: s.clock, T: t})
			s.Report(MetricMidnight, nil)
		}

		notifications = s.commit()

		if s.cfg.CheckInvariants {
			if err := s.CheckInvariants(); err != nil {
				panic(fmt.Sprintf("[tick %07d] invariant violated: %v", t, err))
			}
		}
	}

	s.Report(MetricSimulationEnd, nil)
	s.bus.Publish(SimulationEnded{Sim: s})
	logrus.Infof("[tick %07d] Simulation ended", s.clock.T())
	return nil
}

// commit applies every buffered update, keeps the index and resident counts
// in step, and returns the notifications to publish at the start of the
// next tick. Updates apply in the order agents were first requested.
func (s *Simulator) commit() []Event {
	notifications := make([]Event, 0, len(s.updateOrder))

	for _, id := range s.updateOrder {
		u := s.updates[id]
		a := s.world.Agent(id)
		resident := s.IsResident(a)

		s.index.remove(id, a.location, a.health)

		if u.hasActivity {
			old := a.activity
			a.setActivity(u.activity)
			notifications = append(notifications, ActivityChanged{Agent: id, Old: old})
		}

		if u.hasHealth {
			old := a.health
			if resident {
				s.residentCounts[old]--
			}
			a.setHealth(u.health)
			if resident {
				s.residentCounts[a.health]++
			}
			notifications = append(notifications, HealthChanged{Agent: id, Old: old})
		}

		if u.hasLocation {
			old := a.location
			a.setLocation(u.location)
			notifications = append(notifications, LocationChanged{Agent: id, Old: old})
		}

		s.index.insert(id, a.location, a.health)
	}

	s.Report(MetricHealthCountsUpdate, s.countsMetric())

	clear(s.updates)
	s.updateOrder = s.updateOrder[:0]
	return notifications
}

func (s *Simulator) countsMetric() map[string]int64 {
	out := make(map[string]int64, len(s.residentCounts))
	for h, n := range s.residentCounts {
		out[string(h)] = int64(n)
	}
	return out
}

// PendingUpdates returns the number of agents with buffered changes.
func (s *Simulator) PendingUpdates() int { return len(s.updateOrder) }

// CheckInvariants verifies the health index against the world and the
// incrementally maintained resident counts against a full recount.
func (s *Simulator) CheckInvariants() error {
	if s.index == nil {
		return errors.New("index not built")
	}
	if err := s.index.Check(s.world); err != nil {
		return err
	}
	recount := make(map[HealthState]int, len(s.residentCounts))
	for _, a := range s.world.Agents() {
		if s.IsResident(a) {
			recount[a.Health()]++
		}
	}
	sum := 0
	for h, n := range s.residentCounts {
		if recount[h] != n {
			return fmt.Errorf("resident count for %s is %d, recount gives %d", h, n, recount[h])
		}
		sum += n
	}
	if sum != s.numResidents {
		return fmt.Errorf("resident counts sum to %d, want %d", sum, s.numResidents)
	}
	return nil
}
