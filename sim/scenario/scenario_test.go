package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/scenario"
	"github.com/abmlux/episim/sim/snapshot"
	"github.com/abmlux/episim/sim/trace"
)

const townPath = "testdata/town.yaml"

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func loadTown(t *testing.T) *scenario.Config {
	t.Helper()
	cfg, err := scenario.Load(townPath)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Town(t *testing.T) {
	cfg := loadTown(t)

	assert.Equal(t, "Town", cfg.Region)
	assert.Equal(t, 0.01, cfg.ScaleFactor)
	assert.Equal(t, 600, cfg.Clock.TickLengthSeconds)
	assert.Len(t, cfg.Disease.Strains, 2)
	assert.Equal(t, 10_000.0, cfg.World.ExtentMetres, "defaulted")
	assert.Equal(t, 1, cfg.World.Sites[3].PerAgent, "defaulted")
	assert.Equal(t, 1.0, cfg.World.Sites[3].Share, "defaulted")
	require.NotNil(t, cfg.Interventions.Quarantine)
	assert.Equal(t, "house", cfg.Interventions.Quarantine.HomeActivity, "inline fields")
	require.NotNil(t, cfg.Interventions.Vaccination)
	assert.Equal(t, "2020-03-07", cfg.Interventions.Vaccination.Schedule[0].Date)
	assert.NoError(t, cfg.Validate())
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := scenario.Parse([]byte("region: Town\nregoin: typo\n"))
	assert.ErrorContains(t, err, "regoin")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *scenario.Config)
		wantErr string
	}{
		{"no region", func(c *scenario.Config) { c.Region = "" }, "region is required"},
		{"scale factor", func(c *scenario.Config) { c.ScaleFactor = 2 }, "scale_factor"},
		{"trace level", func(c *scenario.Config) { c.TraceLevel = "verbose" }, "trace_level"},
		{"clock", func(c *scenario.Config) { c.Clock.TickLengthSeconds = 7 }, "clock:"},
		{"world", func(c *scenario.Config) { c.World.AgentsPerHome = 0 }, "world: agents_per_home"},
		{"site share", func(c *scenario.Config) { c.World.Sites[0].Share = 1.5 }, "sites[0]: share"},
		{"disease", func(c *scenario.Config) { c.Disease.DeadState = "GONE" }, "disease: dead_state"},
		{"routine activity", func(c *scenario.Config) {
			c.Routine.Routines[0].Blocks[0].Activity = "sleep"
		}, `unknown activity "sleep"`},
		{"movement state", func(c *scenario.Config) {
			c.Movement.NoMoveHealthStates = []string{"ASLEEP"}
		}, "movement: unknown health state"},
		{"transport type", func(c *scenario.Config) { c.Transport.LocationType = "Tram" }, `no locations of type "Tram"`},
		{"quarantine state", func(c *scenario.Config) {
			c.Interventions.Quarantine.SymptomaticStates = []string{"COUGHING"}
		}, "interventions.quarantine"},
		{"quarantine schedule", func(c *scenario.Config) {
			c.Interventions.Quarantine.Schedule[0].Action = "pause"
		}, "schedule[0]"},
		{"vaccine strain", func(c *scenario.Config) {
			c.Interventions.Vaccination.Vaccines[0].TargetedStrains = []string{"gamma"}
		}, "interventions.vaccination"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadTown(t)
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestWorldConfig_Build(t *testing.T) {
	// GIVEN the town population
	cfg := loadTown(t)
	rng := sim.NewRNG(sim.NewSimulationKey(cfg.Seed))

	// WHEN it is built
	w := cfg.World.Build(cfg.Region, cfg.ScaleFactor, rng)

	// THEN every agent has a home and starts there, households are capped,
	// and only the commuters are non-residents
	require.Equal(t, 420, w.NumAgents())
	assert.Equal(t, 0.01, w.ScaleFactor())
	assert.Len(t, w.LocationsOfType("Bus"), 4)

	perHome := make(map[sim.LocationID]int)
	outsiders := 0
	for _, a := range w.Agents() {
		homes := a.LocationsFor("house")
		require.Len(t, homes, 1)
		assert.Equal(t, homes[0], a.Location())
		assert.Equal(t, sim.Activity("house"), a.Activity())

		switch w.Location(homes[0]).Type {
		case "House":
			perHome[homes[0]]++
		case "CareHome":
			assert.GreaterOrEqual(t, a.Age(), 80)
		default:
			t.Fatalf("agent %d lives at %s", a.ID(), w.Location(homes[0]))
		}
		if a.Region() == scenario.NonResidentRegion {
			outsiders++
		}
		if work := a.LocationsFor("work"); len(work) > 0 {
			assert.True(t, a.Age() >= 18 && a.Age() <= 65)
			assert.Len(t, work, 1)
		}
	}
	assert.Equal(t, 20, outsiders)
	for loc, n := range perHome {
		assert.LessOrEqual(t, n, 3, "household %d", loc)
	}
}

func TestBuild_RunsTown(t *testing.T) {
	// GIVEN the town scenario with telemetry and a snapshot
	cfg := loadTown(t)
	rec := sim.NewRecorder()
	path := filepath.Join(t.TempDir(), "final.jsonl.zst")
	run, err := scenario.Build(cfg, scenario.Options{Telemetry: rec, SnapshotPath: path})
	require.NoError(t, err)

	// WHEN it runs for a week
	require.NoError(t, run.Simulator.Run())

	// THEN the seeded cases are traced, both interventions switched on as
	// scheduled and vaccination started
	summary := trace.Summarize(run.Trace)
	assert.Equal(t, 7, summary.SeededCount)
	total, resident := run.Disease.CumulativeCases("alpha")
	assert.GreaterOrEqual(t, total, int64(5))
	assert.LessOrEqual(t, resident, total)

	assert.True(t, run.Quarantine.Enabled())
	assert.True(t, run.Vaccination.Enabled())
	first, second := run.Vaccination.Doses()
	assert.Positive(t, first)
	assert.Zero(t, second, "second doses are 21 days out")

	strains, ok := rec.Last(sim.MetricStrainsList)
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"alpha": 0, "beta": 1}, strains.Values)
	assert.Len(t, rec.Named(sim.MetricMidnight), 6)

	require.NoError(t, run.Snapshot.Err())
	snap, err := snapshot.Read(path)
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 420)
	assert.Equal(t, run.Simulator.RunID(), snap.Header.RunID)
}

func TestBuild_SameSeedSameOutbreak(t *testing.T) {
	outcome := func() (map[sim.HealthState]int, int) {
		cfg := loadTown(t)
		cfg.Clock.SimulationLengthDays = 3
		run, err := scenario.Build(cfg, scenario.Options{})
		require.NoError(t, err)
		require.NoError(t, run.Simulator.Run())
		return run.Simulator.ResidentCounts(), len(run.Trace.Infections)
	}
	counts1, infections1 := outcome()
	counts2, infections2 := outcome()
	assert.Equal(t, counts1, counts2)
	assert.Equal(t, infections1, infections2)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := loadTown(t)
	cfg.Region = ""
	_, err := scenario.Build(cfg, scenario.Options{})
	assert.Error(t, err)
}
