// Package testutil provides shared test fixtures for the simulator: clocks,
// small synthetic worlds and scripted components used across sim/ and its
// sub-package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/abmlux/episim/sim"
)

// Region is the resident region of every fixture world.
const Region = "Test Region"

// HomeActivity is the activity fixture agents start in.
const HomeActivity sim.Activity = "house"

// Epoch is a Monday at midnight.
var Epoch = time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)

// NewClock returns a clock with 10-minute ticks starting at Epoch.
func NewClock(t testing.TB, days float64) *sim.Clock {
	t.Helper()
	c, err := sim.NewClock(sim.ClockConfig{TickLengthSeconds: 600, SimulationLengthDays: days, Epoch: Epoch})
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	return c
}

// Households builds a world of homes residents, each home housing perHome
// agents of the given age. Every agent starts at home.
func Households(homes, perHome, age int) *sim.World {
	w := sim.NewWorld(1)
	for h := 0; h < homes; h++ {
		loc := w.AddLocation("House", sim.Coord{X: float64(h), Y: 0})
		for i := 0; i < perHome; i++ {
			id := w.AddAgent(age, Region)
			w.AddActivityLocation(id, HomeActivity, loc)
			w.Place(id, HomeActivity, loc)
		}
	}
	return w
}

// SetHealthAll sets the initial health of every agent in w.
func SetHealthAll(w *sim.World, h sim.HealthState) {
	for _, a := range w.Agents() {
		w.SetInitialHealth(a.ID(), h)
	}
}

// StaticModel is a health model with a fixed state list and no behaviour.
type StaticModel struct {
	Labels []sim.HealthState
	// Init runs during InitSim when set.
	Init func(s *sim.Simulator) error
}

func (m *StaticModel) Name() string              { return "static" }
func (m *StaticModel) States() []sim.HealthState { return m.Labels }

func (m *StaticModel) InitSim(s *sim.Simulator) error {
	if m.Init != nil {
		return m.Init(s)
	}
	return nil
}

// Setup returns a simulator setup over world with a recording telemetry
// sink, invariant checking and a fixed seed.
func Setup(t testing.TB, world *sim.World, model sim.HealthModel, days float64) sim.Setup {
	t.Helper()
	return sim.Setup{
		Config:    sim.Config{Region: Region, CheckInvariants: true},
		World:     world,
		Clock:     NewClock(t, days),
		RNG:       sim.NewRNG(sim.NewSimulationKey(42)),
		Telemetry: sim.NewRecorder(),
		Disease:   model,
	}
}

// Script is a component that runs callbacks on the ticks they are keyed by.
type Script struct {
	At map[int64]func(s *sim.Simulator)
}

func (sc *Script) Name() string { return "script" }

func (sc *Script) InitSim(s *sim.Simulator) error {
	sim.Listen(s.Bus(), sc.Name(), func(ev sim.Tick) {
		if f := sc.At[ev.T]; f != nil {
			f(s)
		}
	})
	return nil
}
