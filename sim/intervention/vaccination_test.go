package intervention_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/intervention"
	"github.com/abmlux/episim/sim/internal/testutil"
)

const workActivity sim.Activity = "work"

// careTown has a care home resident (90), a care home worker (40), a
// hospital worker (50), an office worker (70) and a child (10).
func careTown() *sim.World {
	w := sim.NewWorld(1)
	careHome := w.AddLocation("CareHome", sim.Coord{})
	house := w.AddLocation("House", sim.Coord{X: 1})
	hospital := w.AddLocation("Hospital", sim.Coord{X: 2})
	office := w.AddLocation("Office", sim.Coord{X: 3})

	add := func(age int, home, work sim.LocationID) {
		id := w.AddAgent(age, testutil.Region)
		w.AddActivityLocation(id, testutil.HomeActivity, home)
		w.AddActivityLocation(id, workActivity, work)
		w.Place(id, testutil.HomeActivity, home)
	}
	add(90, careHome, office)
	add(50, house, hospital)
	add(70, house, office)
	add(10, house, office)
	add(40, house, careHome)
	testutil.SetHealthAll(w, healthy)
	return w
}

func vaccinationConfig(capacity float64, secondDose bool) intervention.VaccinationConfig {
	return intervention.VaccinationConfig{
		Vaccines: []intervention.VaccineConfig{{
			Name:                     "mRNA",
			SecondDoseNeeded:         secondDose,
			TimeBetweenDosesDays:     2,
			ProbFirstDoseSuccessful:  1,
			ProbSecondDoseSuccessful: 1,
			TargetedStrains:          []string{"alpha"},
			DurationDays:             180,
			MaxFirstDosesPerDay:      capacity,
		}},
		CareHomeLocationTypes: []string{"CareHome"},
		HospitalLocationTypes: []string{"Hospital"},
		HomeActivity:          string(testutil.HomeActivity),
		WorkActivity:          string(workActivity),
		MinAge:                18,
		Hesitancy:             intervention.HesitancyConfig{AgeLow: 30, AgeHigh: 80, ProbLow: 1, ProbMed: 1, ProbHigh: 1},
	}
}

// immunityLog records every immunity request published on the bus.
type immunityLog struct {
	agents []sim.AgentID
	ticks  []int64
}

func (l *immunityLog) Name() string { return "immunity-log" }

func (l *immunityLog) InitSim(s *sim.Simulator) error {
	sim.Listen(s.Bus(), l.Name(), func(ev sim.GainImmunityRequest) {
		l.agents = append(l.agents, ev.Agent)
		l.ticks = append(l.ticks, s.Clock().T())
	})
	return nil
}

func runVaccination(t *testing.T, v *intervention.Vaccination, days float64, schedules map[string][]sim.ScheduleEntry) *immunityLog {
	t.Helper()
	log := &immunityLog{}
	setup := testutil.Setup(t, careTown(), staticModel(), days)
	setup.Components = []sim.Component{log}
	setup.Interventions = []sim.InterventionComponent{v}
	setup.Schedules = schedules
	s, err := sim.NewSimulator(setup)
	require.NoError(t, err)
	require.NoError(t, s.Run())
	return log
}

func TestVaccination_PriorityList(t *testing.T) {
	// GIVEN a disabled campaign
	v := intervention.NewVaccination("vaccination", vaccinationConfig(1, false), false)

	// WHEN the simulation initialises it
	runVaccination(t, v, 0.1, nil)

	// THEN care homes come first, then hospital workers, then the rest,
	// oldest first, with children left out
	assert.Equal(t, []sim.AgentID{0, 4, 1, 2}, v.PriorityList())
}

func TestVaccination_DailyCapacityAndSecondDoses(t *testing.T) {
	// GIVEN one first dose per day and a second dose two days later
	v := intervention.NewVaccination("vaccination", vaccinationConfig(1, true), true)

	// WHEN the simulation runs for four days
	log := runVaccination(t, v, 4, nil)

	// THEN one agent is vaccinated each midnight, and the first agent's
	// second dose arrives on day three
	assert.Equal(t, []sim.AgentID{0, 4, 0, 1}, log.agents)
	assert.Equal(t, []int64{144, 288, 432, 432}, log.ticks)
	first, second := v.Doses()
	assert.Equal(t, int64(3), first)
	assert.Equal(t, int64(1), second)
	assert.Equal(t, []sim.AgentID{2}, v.PriorityList())
}

func TestVaccination_HesitantAgentsRefuse(t *testing.T) {
	// GIVEN everyone 80 or older refuses
	cfg := vaccinationConfig(10, false)
	cfg.Hesitancy.ProbHigh = 0
	v := intervention.NewVaccination("vaccination", cfg, true)

	// WHEN the first midnight passes
	log := runVaccination(t, v, 1.5, nil)

	// THEN every eligible agent is offered a dose and the oldest refuses
	assert.ElementsMatch(t, []sim.AgentID{4, 1, 2}, log.agents)
	assert.Equal(t, int64(1), v.Refused())
	assert.Empty(t, v.PriorityList())
}

func TestVaccination_OnlyActsWhileEnabled(t *testing.T) {
	// GIVEN a campaign switched on at day 1.5
	v := intervention.NewVaccination("vaccination", vaccinationConfig(1, false), false)
	day := 1.5
	schedules := map[string][]sim.ScheduleEntry{"vaccination": {{Day: &day, Action: sim.ActionEnable}}}

	// WHEN the simulation runs for three days
	log := runVaccination(t, v, 3, schedules)

	// THEN the first midnight is skipped
	assert.Equal(t, []int64{288}, log.ticks)
}

func TestVaccination_RejectsDurationShorterThanATick(t *testing.T) {
	// GIVEN a vaccine whose immunity lasts less than one 10-minute tick
	cfg := vaccinationConfig(1, false)
	cfg.Vaccines[0].DurationDays = 0.001
	require.NoError(t, cfg.Validate([]string{"alpha"}))
	v := intervention.NewVaccination("vaccination", cfg, true)

	setup := testutil.Setup(t, careTown(), staticModel(), 1)
	setup.Interventions = []sim.InterventionComponent{v}
	s, err := sim.NewSimulator(setup)
	require.NoError(t, err)

	// WHEN the simulation starts
	err = s.Run()

	// THEN initialisation fails instead of granting immunity that never expires
	assert.ErrorContains(t, err, "shorter than one tick")
}

func TestVaccinationConfig_Validate(t *testing.T) {
	strains := []string{"alpha"}
	tests := []struct {
		name    string
		mutate  func(c *intervention.VaccinationConfig)
		wantErr string
	}{
		{"valid", func(*intervention.VaccinationConfig) {}, ""},
		{"no vaccines", func(c *intervention.VaccinationConfig) { c.Vaccines = nil }, "at least one vaccine"},
		{"unknown strain", func(c *intervention.VaccinationConfig) {
			c.Vaccines[0].TargetedStrains = []string{"omega"}
		}, "unknown strain"},
		{"duplicate vaccine", func(c *intervention.VaccinationConfig) {
			c.Vaccines = append(c.Vaccines, c.Vaccines[0])
		}, "duplicate vaccine"},
		{"bad dose probability", func(c *intervention.VaccinationConfig) {
			c.Vaccines[0].ProbFirstDoseSuccessful = 1.2
		}, "dose success"},
		{"hesitancy ages reversed", func(c *intervention.VaccinationConfig) { c.Hesitancy.AgeHigh = 10 }, "age_high"},
		{"missing activities", func(c *intervention.VaccinationConfig) { c.WorkActivity = "" }, "work_activity_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := vaccinationConfig(1, true)
			tt.mutate(&cfg)
			err := cfg.Validate(strains)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
