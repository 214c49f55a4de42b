package cmd

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/abmlux/episim/sim/scenario"
	"github.com/abmlux/episim/sim/telemetry"
	"github.com/abmlux/episim/sim/trace"
)

var (
	configPath   string // Scenario YAML file
	seed         int64  // Overrides the scenario seed when set
	logLevel     string // Log verbosity level
	telemetryDB  string // SQLite file receiving every metric
	snapshotPath string // Final agent states, zstd-compressed JSON lines
	traceLevel   string // Overrides the scenario trace level when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "episim",
	Short: "Agent-based simulator for multi-strain epidemics",
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// loadScenario reads the scenario and applies the flags given explicitly.
func loadScenario(cmd *cobra.Command) *scenario.Config {
	if configPath == "" {
		logrus.Fatalf("No scenario given; use --config")
	}
	cfg, err := scenario.Load(configPath)
	if err != nil {
		logrus.Fatalf("%v", err)
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("trace-level") {
		if _, err := trace.ParseLevel(traceLevel); err != nil {
			logrus.Fatalf("Invalid --trace-level: %v", err)
		}
		cfg.TraceLevel = traceLevel
	}
	return cfg
}

// runCmd executes a scenario
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadScenario(cmd)

		opts := scenario.Options{SnapshotPath: snapshotPath}
		var sink *telemetry.SQLiteSink
		if telemetryDB != "" {
			var err error
			if sink, err = telemetry.Open(telemetryDB, ""); err != nil {
				logrus.Fatalf("%v", err)
			}
			opts.Telemetry = sink
		}

		run, err := scenario.Build(cfg, opts)
		if err != nil {
			logrus.Fatalf("Invalid scenario %s: %v", configPath, err)
		}
		if sink != nil {
			sink.SetRunID(run.Simulator.RunID())
		}

		startTime := time.Now()
		if err := run.Simulator.Run(); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		elapsed := time.Since(startTime)

		if sink != nil {
			if err := sink.Close(); err != nil {
				logrus.Fatalf("Writing telemetry to %s: %v", telemetryDB, err)
			}
			logrus.Infof("Telemetry written to %s", telemetryDB)
		}
		if run.Snapshot != nil && run.Snapshot.Err() != nil {
			logrus.Fatalf("Writing snapshot: %v", run.Snapshot.Err())
		}

		PrintSummary(os.Stdout, run, elapsed)
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario file",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadScenario(cmd)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("Invalid scenario %s: %v", configPath, err)
		}
		PrintScenario(os.Stdout, cfg)
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&configPath, "config", "", "Scenario YAML file")
		c.Flags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().Int64Var(&seed, "seed", 42, "Seed for the run's random source (overrides the scenario)")
		c.Flags().StringVar(&traceLevel, "trace-level", "none", "Infection trace level: none, infections (overrides the scenario)")
	}
	runCmd.Flags().StringVar(&telemetryDB, "telemetry-db", "", "SQLite database receiving every metric")
	runCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Write the final agent states to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
