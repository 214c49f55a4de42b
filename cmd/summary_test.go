package cmd

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim/scenario"
)

const townScenario = "../sim/scenario/testdata/town.yaml"

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func TestPrintSummary_ReportsRun(t *testing.T) {
	// GIVEN a one-day run of the town scenario with tracing on
	cfg, err := scenario.Load(townScenario)
	require.NoError(t, err)
	cfg.Clock.SimulationLengthDays = 1
	run, err := scenario.Build(cfg, scenario.Options{})
	require.NoError(t, err)
	require.NoError(t, run.Simulator.Run())

	// WHEN the summary is printed
	var buf bytes.Buffer
	PrintSummary(&buf, run, 1500*time.Millisecond)
	out := buf.String()

	// THEN it covers health counts, strains, interventions and the trace
	assert.Contains(t, out, "=== Simulation Summary ===")
	assert.Contains(t, out, run.Simulator.RunID())
	assert.Contains(t, out, "144 ticks, 2020-03-02 to 2020-03-02")
	assert.Contains(t, out, "Wall time       : 1.5s")
	assert.Contains(t, out, "SUSCEPTIBLE")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "Vaccine doses    : 0 first, 0 second, 0 refused")
	assert.Contains(t, out, "=== Transmission Trace ===")
	assert.Contains(t, out, "Longest chain")
	assert.Contains(t, out, "7 seeded")
}

func TestPrintScenario(t *testing.T) {
	cfg, err := scenario.Load(townScenario)
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintScenario(&buf, cfg)

	out := buf.String()
	assert.Contains(t, out, "Town (scale 0.01)")
	assert.Contains(t, out, "400 residents, 20 non-residents")
	assert.Contains(t, out, "7 days from 2020-03-02")
	assert.Contains(t, out, "[alpha beta]")
}

func TestCommands_Flags(t *testing.T) {
	// Flags shared by run and validate have the same defaults on both.
	for _, c := range rootCmd.Commands() {
		if c.Name() != "run" && c.Name() != "validate" {
			continue
		}
		for flag, def := range map[string]string{"config": "", "log": "warn", "seed": "42", "trace-level": "none"} {
			f := c.Flags().Lookup(flag)
			require.NotNil(t, f, "%s --%s", c.Name(), flag)
			assert.Equal(t, def, f.DefValue, "%s --%s", c.Name(), flag)
		}
	}
	assert.NotNil(t, runCmd.Flags().Lookup("telemetry-db"))
	assert.NotNil(t, runCmd.Flags().Lookup("snapshot"))
	assert.Nil(t, validateCmd.Flags().Lookup("snapshot"))
}
