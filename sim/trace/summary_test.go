package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewLog()

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.TotalInfections != 0 || summary.SeededCount != 0 {
		t.Errorf("expected 0 infections, got %d (%d seeded)", summary.TotalInfections, summary.SeededCount)
	}
	if summary.MeanSecondaryCases != 0 || summary.MaxSecondaryCases != 0 {
		t.Error("expected 0 secondary cases")
	}
	if len(summary.ByStrain) != 0 || len(summary.ByLocationType) != 0 {
		t.Error("expected empty distributions")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN two seeded cases, one of which infects three others (one by mutation)
	st := NewLog()
	st.Infected(InfectionRecord{Agent: 0, Infector: Seeded, Strain: "a", SourceStrain: "a"})
	st.Infected(InfectionRecord{Agent: 1, Infector: Seeded, Strain: "a", SourceStrain: "a"})
	st.Infected(InfectionRecord{Agent: 2, Infector: 0, LocationType: "House", Strain: "a", SourceStrain: "a"})
	st.Infected(InfectionRecord{Agent: 3, Infector: 0, LocationType: "Office", Strain: "a", SourceStrain: "a"})
	st.Infected(InfectionRecord{Agent: 4, Infector: 0, LocationType: "House", Strain: "b", SourceStrain: "a"})
	st.Ended(OutcomeRecord{Agent: 0, Outcome: OutcomeRecovered})
	st.Ended(OutcomeRecord{Agent: 1, Outcome: OutcomeDied})

	// WHEN summarized
	summary := Summarize(st)

	// THEN counts match
	if summary.TotalInfections != 5 {
		t.Errorf("expected 5 infections, got %d", summary.TotalInfections)
	}
	if summary.SeededCount != 2 {
		t.Errorf("expected 2 seeded, got %d", summary.SeededCount)
	}
	if summary.MutationCount != 1 {
		t.Errorf("expected 1 mutation, got %d", summary.MutationCount)
	}
	if summary.MaxSecondaryCases != 3 {
		t.Errorf("expected max secondary cases 3, got %d", summary.MaxSecondaryCases)
	}
	if summary.MeanSecondaryCases != 0.6 {
		t.Errorf("expected mean secondary cases 0.6, got %v", summary.MeanSecondaryCases)
	}
	if summary.MaxGeneration != 1 {
		t.Errorf("expected max generation 1, got %d", summary.MaxGeneration)
	}
	if summary.ByStrain["a"] != 4 || summary.ByStrain["b"] != 1 {
		t.Errorf("unexpected strain distribution %v", summary.ByStrain)
	}
	if summary.ByLocationType["House"] != 2 || summary.ByLocationType["Office"] != 1 {
		t.Errorf("unexpected location distribution %v", summary.ByLocationType)
	}
	if summary.Recovered != 1 || summary.Died != 1 {
		t.Errorf("expected 1 recovered and 1 died, got %d/%d", summary.Recovered, summary.Died)
	}
}

func TestSummarize_NilTrace_SafeZeroValues(t *testing.T) {
	// GIVEN a nil trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN it returns zero values without panicking
	if summary.TotalInfections != 0 {
		t.Errorf("expected 0, got %d", summary.TotalInfections)
	}
	if summary.ByStrain == nil {
		t.Error("expected non-nil ByStrain map")
	}
}
