package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/abmlux/episim/sim/scenario"
	"github.com/abmlux/episim/sim/trace"
)

// PrintSummary writes the end-of-run report: resident health counts,
// cumulative cases per strain, intervention totals and, when tracing was
// on, transmission statistics.
func PrintSummary(w io.Writer, run *scenario.Run, elapsed time.Duration) {
	s := run.Simulator
	clock := s.Clock()
	fmt.Fprintf(w, "=== Simulation Summary ===\n")
	fmt.Fprintf(w, "Run ID          : %s\n", s.RunID())
	fmt.Fprintf(w, "Simulated       : %s ticks, %s to %s\n",
		humanize.Comma(clock.Length()), clock.Epoch().Format(time.DateOnly), clock.Now().Format(time.DateOnly))
	fmt.Fprintf(w, "Wall time       : %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Agents          : %s\n", humanize.Comma(int64(s.World().NumAgents())))

	fmt.Fprintf(w, "\nResidents by health state:\n")
	counts := s.ResidentCounts()
	for _, h := range run.Disease.States() {
		fmt.Fprintf(w, "  %-16s %s\n", h, humanize.Comma(int64(counts[h])))
	}

	fmt.Fprintf(w, "\nCumulative cases (all / resident):\n")
	for _, name := range run.Disease.StrainNames() {
		total, resident := run.Disease.CumulativeCases(name)
		fmt.Fprintf(w, "  %-16s %s / %s\n", name, humanize.Comma(total), humanize.Comma(resident))
	}

	if q := run.Quarantine; q != nil {
		fmt.Fprintf(w, "\nIn quarantine    : %s\n", humanize.Comma(int64(q.Count())))
	}
	if v := run.Vaccination; v != nil {
		first, second := v.Doses()
		fmt.Fprintf(w, "Vaccine doses    : %s first, %s second, %s refused\n",
			humanize.Comma(first), humanize.Comma(second), humanize.Comma(v.Refused()))
	}

	if run.Trace != nil {
		printTraceSummary(w, trace.Summarize(run.Trace))
	}
}

func printTraceSummary(w io.Writer, ts *trace.Summary) {
	fmt.Fprintf(w, "\n=== Transmission Trace ===\n")
	fmt.Fprintf(w, "Infections      : %s (%s seeded, %s mutated)\n",
		humanize.Comma(int64(ts.TotalInfections)), humanize.Comma(int64(ts.SeededCount)), humanize.Comma(int64(ts.MutationCount)))
	fmt.Fprintf(w, "Outcomes        : %s recovered, %s died\n",
		humanize.Comma(int64(ts.Recovered)), humanize.Comma(int64(ts.Died)))
	fmt.Fprintf(w, "Secondary cases : mean %s, max %d\n",
		humanize.FtoaWithDigits(ts.MeanSecondaryCases, 3), ts.MaxSecondaryCases)
	fmt.Fprintf(w, "Longest chain   : %d generations\n", ts.MaxGeneration)
	if len(ts.ByLocationType) == 0 {
		return
	}
	types := make([]string, 0, len(ts.ByLocationType))
	for t := range ts.ByLocationType {
		types = append(types, t)
	}
	sort.Strings(types)
	fmt.Fprintf(w, "Transmissions by location type:\n")
	for _, t := range types {
		fmt.Fprintf(w, "  %-16s %s\n", t, humanize.Comma(int64(ts.ByLocationType[t])))
	}
}

// PrintScenario writes a one-screen description of a valid scenario.
func PrintScenario(w io.Writer, cfg *scenario.Config) {
	fmt.Fprintf(w, "Scenario OK\n")
	fmt.Fprintf(w, "  region        : %s (scale %s)\n", cfg.Region, humanize.FtoaWithDigits(cfg.ScaleFactor, 4))
	fmt.Fprintf(w, "  agents        : %s residents, %s non-residents\n",
		humanize.Comma(int64(cfg.World.Agents)), humanize.Comma(int64(cfg.World.NonResidents)))
	fmt.Fprintf(w, "  length        : %s days from %s\n",
		humanize.FtoaWithDigits(cfg.Clock.SimulationLengthDays, 2), cfg.Clock.Epoch.Format(time.DateOnly))
	names := make([]string, len(cfg.Disease.Strains))
	for i, s := range cfg.Disease.Strains {
		names[i] = s.Name
	}
	fmt.Fprintf(w, "  strains       : %v\n", names)
	fmt.Fprintf(w, "  quarantine    : %t\n", cfg.Interventions.Quarantine != nil)
	fmt.Fprintf(w, "  vaccination   : %t\n", cfg.Interventions.Vaccination != nil)
}
