package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/disease"
	"github.com/abmlux/episim/sim/intervention"
	"github.com/abmlux/episim/sim/routine"
	"github.com/abmlux/episim/sim/snapshot"
	"github.com/abmlux/episim/sim/trace"
)

// Options are run settings that do not belong in the scenario file.
type Options struct {
	// Telemetry receives every metric. Nil discards them.
	Telemetry sim.TelemetrySink
	// SnapshotPath, when set, is where the final agent states are written.
	SnapshotPath string
}

// Run is a wired simulation ready to start, with handles on the parts the
// caller may want to inspect afterwards.
type Run struct {
	Simulator   *sim.Simulator
	Disease     *disease.Model
	Trace       *trace.Log // nil unless tracing is on
	Snapshot    *snapshot.Writer       // nil unless requested
	Quarantine  *intervention.Quarantine
	Vaccination *intervention.Vaccination
}

// Build validates cfg and wires a simulation from it. The world, the model
// and every component draw from one RNG seeded with cfg.Seed.
func Build(cfg *Config, opts Options) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock, err := sim.NewClock(cfg.Clock)
	if err != nil {
		return nil, err
	}
	rng := sim.NewRNG(sim.NewSimulationKey(cfg.Seed))
	world := cfg.World.Build(cfg.Region, cfg.ScaleFactor, rng)

	model, err := disease.New(cfg.Disease, world)
	if err != nil {
		return nil, fmt.Errorf("disease: %w", err)
	}
	run := &Run{Disease: model}
	if level, _ := trace.ParseLevel(cfg.TraceLevel); level == trace.LevelInfections {
		run.Trace = trace.NewLog()
		model.SetTrace(run.Trace)
	}

	var components []sim.Component
	if cfg.Transport != nil {
		components = append(components, routine.NewTransport(*cfg.Transport))
	}
	if cfg.Routine != nil {
		components = append(components, routine.New(*cfg.Routine))
	}
	if cfg.Movement != nil {
		components = append(components, routine.NewMovement(*cfg.Movement))
	}
	if opts.SnapshotPath != "" {
		run.Snapshot = snapshot.NewWriter(opts.SnapshotPath, model.Infection)
		components = append(components, run.Snapshot)
	}

	var interventions []sim.InterventionComponent
	schedules := make(map[string][]sim.ScheduleEntry)
	if q := cfg.Interventions.Quarantine; q != nil {
		run.Quarantine = intervention.NewQuarantine(QuarantineName, q.QuarantineConfig, q.Enabled)
		interventions = append(interventions, run.Quarantine)
		schedules[QuarantineName] = q.Schedule
	}
	if v := cfg.Interventions.Vaccination; v != nil {
		run.Vaccination = intervention.NewVaccination(VaccinationName, v.VaccinationConfig, v.Enabled)
		interventions = append(interventions, run.Vaccination)
		schedules[VaccinationName] = v.Schedule
	}

	run.Simulator, err = sim.NewSimulator(sim.Setup{
		Config:        sim.Config{Region: cfg.Region, CheckInvariants: cfg.CheckInvariants},
		World:         world,
		Clock:         clock,
		RNG:           rng,
		Telemetry:     opts.Telemetry,
		Disease:       model,
		Components:    components,
		Interventions: interventions,
		Schedules:     schedules,
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("Scenario built: %d components, %d interventions, %d ticks",
		len(components), len(interventions), clock.Length())
	return run, nil
}
