package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim"
)

type switchable struct {
	sim.Toggle
	name string
}

func (s *switchable) Name() string                 { return s.name }
func (s *switchable) InitSim(*sim.Simulator) error { return nil }

func tickPtr(v int64) *int64     { return &v }
func dayPtr(v float64) *float64 { return &v }

func TestScheduleEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   sim.ScheduleEntry
		wantErr string
	}{
		{"tick", sim.ScheduleEntry{Tick: tickPtr(5), Action: sim.ActionEnable}, ""},
		{"day", sim.ScheduleEntry{Day: dayPtr(1.5), Action: sim.ActionDisable}, ""},
		{"date", sim.ScheduleEntry{Date: "2020-03-03", Action: sim.ActionEnable}, ""},
		{"no time", sim.ScheduleEntry{Action: sim.ActionEnable}, "exactly one"},
		{"two times", sim.ScheduleEntry{Tick: tickPtr(1), Day: dayPtr(1), Action: sim.ActionEnable}, "exactly one"},
		{"bad date", sim.ScheduleEntry{Date: "03/03/2020", Action: sim.ActionEnable}, "invalid date"},
		{"bad action", sim.ScheduleEntry{Tick: tickPtr(1), Action: "toggle"}, "unknown action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestInterventionScheduler_AppliesEntriesInTimeOrder(t *testing.T) {
	// GIVEN two interventions with tick, day and date boundaries
	clock := newClock(t, monday, 3)
	q := &switchable{Toggle: sim.NewToggle(false), name: "quarantine"}
	v := &switchable{Toggle: sim.NewToggle(true), name: "vaccination"}
	s, err := sim.NewInterventionScheduler(clock, map[sim.Intervention][]sim.ScheduleEntry{
		q: {
			{Tick: tickPtr(10), Action: sim.ActionEnable},
			{Day: dayPtr(1), Action: sim.ActionDisable},
		},
		v: {
			{Date: "2020-03-03", Action: sim.ActionDisable},
			{Date: "2020-03-03", Action: sim.ActionEnable},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, s.Pending())

	type state struct{ q, v bool }
	seen := make(map[int64]state)

	// WHEN the clock runs
	for tick := range clock.Ticks() {
		s.Tick(tick)
		seen[tick] = state{q.Enabled(), v.Enabled()}
	}

	// THEN each boundary applies on its tick; same-tick entries apply in
	// the order given
	assert.Equal(t, state{false, true}, seen[9])
	assert.Equal(t, state{true, true}, seen[10])
	assert.Equal(t, state{true, true}, seen[143])
	assert.Equal(t, state{false, true}, seen[144])
	assert.Equal(t, 0, s.Pending())
}

func TestInterventionScheduler_PastEntriesApplyAtStart(t *testing.T) {
	clock := newClock(t, monday, 1)
	q := &switchable{name: "quarantine"}
	s, err := sim.NewInterventionScheduler(clock, map[sim.Intervention][]sim.ScheduleEntry{
		q: {{Date: "2020-02-01", Action: sim.ActionEnable}},
	})
	require.NoError(t, err)

	s.Tick(0)

	assert.True(t, q.Enabled())
}

func TestInterventionScheduler_RejectsInvalidEntry(t *testing.T) {
	clock := newClock(t, monday, 1)
	q := &switchable{name: "quarantine"}
	_, err := sim.NewInterventionScheduler(clock, map[sim.Intervention][]sim.ScheduleEntry{
		q: {{Action: sim.ActionEnable}},
	})
	assert.ErrorContains(t, err, "schedule for quarantine, entry 0")
}
