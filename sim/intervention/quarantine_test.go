package intervention_test

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/intervention"
	"github.com/abmlux/episim/sim/internal/testutil"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

const (
	healthy     sim.HealthState = "HEALTHY"
	symptomatic sim.HealthState = "SYMPTOMATIC"
)

func staticModel() *testutil.StaticModel {
	return &testutil.StaticModel{Labels: []sim.HealthState{healthy, symptomatic}}
}

type town struct {
	world                  *sim.World
	home, office, hospital sim.LocationID
}

func newTown() town {
	w := sim.NewWorld(1)
	tw := town{
		world:    w,
		home:     w.AddLocation("House", sim.Coord{}),
		office:   w.AddLocation("Office", sim.Coord{X: 1}),
		hospital: w.AddLocation("Hospital", sim.Coord{X: 2}),
	}
	id := w.AddAgent(40, testutil.Region)
	w.AddActivityLocation(id, testutil.HomeActivity, tw.home)
	w.Place(id, testutil.HomeActivity, tw.home)
	testutil.SetHealthAll(w, healthy)
	return tw
}

func quarantineConfig() intervention.QuarantineConfig {
	return intervention.QuarantineConfig{
		DefaultDurationDays:       1,
		LocationBlacklist:         []string{"Hospital"},
		HomeActivity:              string(testutil.HomeActivity),
		SymptomaticStates:         []string{string(symptomatic)},
		ProbQuarantineSymptomatic: 1,
	}
}

func move(to sim.LocationID) func(s *sim.Simulator) {
	return func(s *sim.Simulator) {
		s.Bus().Publish(sim.LocationRequest{Agent: 0, Location: to})
	}
}

func TestQuarantine_RedirectsSymptomaticAgentsHome(t *testing.T) {
	// GIVEN an agent who becomes symptomatic at tick 1
	tw := newTown()
	q := intervention.NewQuarantine("quarantine", quarantineConfig(), true)
	var observed []sim.LocationID
	look := func(s *sim.Simulator) { observed = append(observed, s.World().Agent(0).Location()) }
	script := &testutil.Script{At: map[int64]func(*sim.Simulator){
		1: func(s *sim.Simulator) {
			s.Bus().Publish(sim.HealthRequest{Agent: 0, Health: symptomatic})
		},
		5:   move(tw.office),
		6:   look,
		7:   move(tw.hospital),
		8:   look,
		9:   move(tw.office),
		10:  look,
		150: move(tw.office),
	}}
	setup := testutil.Setup(t, tw.world, staticModel(), 2)
	setup.Components = []sim.Component{script}
	setup.Interventions = []sim.InterventionComponent{q}
	s, err := sim.NewSimulator(setup)
	require.NoError(t, err)

	// WHEN the agent tries to move while quarantined and after it ends
	require.NoError(t, s.Run())

	// THEN moves are redirected home except to blacklisted locations,
	// and the quarantine lifts after one day
	assert.Equal(t, []sim.LocationID{tw.home, tw.hospital, tw.home}, observed)
	assert.Equal(t, tw.office, s.World().Agent(0).Location())
	assert.False(t, q.InQuarantine(0))
	assert.Equal(t, 0, q.Count())
}

func TestQuarantine_DisabledStartsNoQuarantine(t *testing.T) {
	tw := newTown()
	q := intervention.NewQuarantine("quarantine", quarantineConfig(), false)
	script := &testutil.Script{At: map[int64]func(*sim.Simulator){
		1: func(s *sim.Simulator) {
			s.Bus().Publish(sim.HealthRequest{Agent: 0, Health: symptomatic})
		},
		5: move(tw.office),
	}}
	setup := testutil.Setup(t, tw.world, staticModel(), 0.1)
	setup.Components = []sim.Component{script}
	setup.Interventions = []sim.InterventionComponent{q}
	s, err := sim.NewSimulator(setup)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	assert.False(t, q.InQuarantine(0))
	assert.Equal(t, tw.office, s.World().Agent(0).Location())
}

func TestQuarantine_ScheduledOnMidRun(t *testing.T) {
	// GIVEN quarantine disabled until tick 3 and an agent turning symptomatic twice
	tw := newTown()
	q := intervention.NewQuarantine("quarantine", quarantineConfig(), false)
	script := &testutil.Script{At: map[int64]func(*sim.Simulator){
		0: func(s *sim.Simulator) {
			s.Bus().Publish(sim.HealthRequest{Agent: 0, Health: symptomatic})
		},
		3: func(s *sim.Simulator) {
			s.Bus().Publish(sim.HealthRequest{Agent: 0, Health: healthy})
		},
		5: func(s *sim.Simulator) {
			s.Bus().Publish(sim.HealthRequest{Agent: 0, Health: symptomatic})
		},
	}}
	three := int64(3)
	setup := testutil.Setup(t, tw.world, staticModel(), 0.1)
	setup.Components = []sim.Component{script}
	setup.Interventions = []sim.InterventionComponent{q}
	setup.Schedules = map[string][]sim.ScheduleEntry{"quarantine": {{Tick: &three, Action: sim.ActionEnable}}}
	s, err := sim.NewSimulator(setup)
	require.NoError(t, err)

	// WHEN the agent becomes symptomatic once before and once after enabling
	require.NoError(t, s.Run())

	// THEN only the second onset starts a quarantine
	assert.True(t, q.Enabled())
	assert.True(t, q.InQuarantine(0))
	assert.Equal(t, 1, q.Count())
}

func TestQuarantineConfig_Validate(t *testing.T) {
	states := []sim.HealthState{healthy, symptomatic}
	tests := []struct {
		name    string
		mutate  func(c *intervention.QuarantineConfig)
		wantErr string
	}{
		{"valid", func(*intervention.QuarantineConfig) {}, ""},
		{"zero duration", func(c *intervention.QuarantineConfig) { c.DefaultDurationDays = 0 }, "default_duration_days"},
		{"no home activity", func(c *intervention.QuarantineConfig) { c.HomeActivity = "" }, "home_activity_type"},
		{"unknown state", func(c *intervention.QuarantineConfig) { c.AsymptomaticStates = []string{"ZOMBIE"} }, "unknown health state"},
		{"bad probability", func(c *intervention.QuarantineConfig) { c.ProbQuarantineSymptomatic = 2 }, "prob_quarantine_symptomatic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := quarantineConfig()
			tt.mutate(&cfg)
			err := cfg.Validate(states)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
