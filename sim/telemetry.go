package sim

import "time"

// Metric is a named, timestamped measurement sent to a TelemetrySink.
type Metric struct {
	Name   string
	Tick   int64
	Time   time.Time
	Values map[string]int64
}

// TelemetrySink receives metrics emitted during a run. Sinks must not call
// back into the simulation.
type TelemetrySink interface {
	Record(m Metric)
}

// NopSink discards every metric.
type NopSink struct{}

func (NopSink) Record(Metric) {}

// Recorder keeps every metric in memory.
type Recorder struct {
	Metrics []Metric
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Metrics: make([]Metric, 0)}
}

// Record appends m.
func (r *Recorder) Record(m Metric) {
	r.Metrics = append(r.Metrics, m)
}

// Named returns the recorded metrics called name, in order.
func (r *Recorder) Named(name string) []Metric {
	var out []Metric
	for _, m := range r.Metrics {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the most recent metric called name.
func (r *Recorder) Last(name string) (Metric, bool) {
	for i := len(r.Metrics) - 1; i >= 0; i-- {
		if r.Metrics[i].Name == name {
			return r.Metrics[i], true
		}
	}
	return Metric{}, false
}

// Metric names emitted by the simulator and the disease model.
const (
	MetricSimulationStart       = "simulation.start"
	MetricSimulationEnd         = "simulation.end"
	MetricMidnight              = "notify.time.midnight"
	MetricHealthCountsInitial   = "agents_by_health_state_counts.initial"
	MetricHealthCountsUpdate    = "agents_by_health_state_counts.update"
	MetricStrainsList           = "strains.list"
	MetricStrainCountsUpdate    = "strain_counts.update"
	MetricCumulativeCasesUpdate = "cumulative_cases_by_strain.update"
)
