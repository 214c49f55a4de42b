package trace

// Summary aggregates statistics from a Log.
type Summary struct {
	TotalInfections    int
	SeededCount        int
	MutationCount      int
	Recovered          int
	Died               int
	MeanSecondaryCases float64        // transmissions per infected agent
	MaxSecondaryCases  int            // most transmissions by a single infection
	MaxGeneration      int            // longest chain of transmissions from a seed
	ByStrain           map[string]int // strain → infections
	ByLocationType     map[string]int // location type → transmissions
}

// Summarize computes aggregate statistics from a Log.
// Safe for nil or empty logs (returns zero-value fields).
func Summarize(st *Log) *Summary {
	summary := &Summary{
		ByStrain:       make(map[string]int),
		ByLocationType: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalInfections = len(st.Infections)
	secondary := make(map[int]int)
	transmissions := 0
	for _, r := range st.Infections {
		summary.ByStrain[r.Strain]++
		summary.MaxGeneration = max(summary.MaxGeneration, r.Generation)
		if r.Infector == Seeded {
			summary.SeededCount++
			continue
		}
		transmissions++
		secondary[r.Infector]++
		summary.ByLocationType[r.LocationType]++
		if r.Mutated() {
			summary.MutationCount++
		}
	}
	for _, n := range secondary {
		if n > summary.MaxSecondaryCases {
			summary.MaxSecondaryCases = n
		}
	}
	if summary.TotalInfections > 0 {
		summary.MeanSecondaryCases = float64(transmissions) / float64(summary.TotalInfections)
	}

	for _, o := range st.Outcomes {
		switch o.Outcome {
		case OutcomeRecovered:
			summary.Recovered++
		case OutcomeDied:
			summary.Died++
		}
	}

	return summary
}
