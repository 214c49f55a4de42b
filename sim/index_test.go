package sim

import (
	"strings"
	"testing"
)

func indexedWorld() (*World, *HealthIndex) {
	w := NewWorld(1)
	a := w.AddLocation("House", Coord{})
	b := w.AddLocation("Office", Coord{X: 1})
	for i := 0; i < 3; i++ {
		id := w.AddAgent(30, "R")
		w.Place(id, "house", a)
		w.SetInitialHealth(id, "S")
	}
	w.Place(2, "work", b)
	w.SetInitialHealth(2, "I")
	return w, NewHealthIndex(w, []HealthState{"S", "I"})
}

func TestHealthIndex_Buckets(t *testing.T) {
	w, idx := indexedWorld()

	if got := idx.Count(0, "S"); got != 2 {
		t.Errorf("Count(0, S) = %d, want 2", got)
	}
	if got := idx.Attendees(1, "I"); len(got) != 1 || got[0] != 2 {
		t.Errorf("Attendees(1, I) = %v, want [2]", got)
	}
	if !idx.Contains(2, 1, "I") || idx.Contains(2, 0, "I") {
		t.Error("Contains disagrees with the world")
	}
	if !idx.HasState("I") || idx.HasState("D") {
		t.Error("HasState disagrees with the state list")
	}
	if err := idx.Check(w); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestHealthIndex_MoveKeepsOrderDeterministic(t *testing.T) {
	w, idx := indexedWorld()

	// Removing the first agent swaps the last one into its place.
	idx.remove(0, 0, "S")
	w.agents[0].setLocation(1)
	idx.insert(0, 1, "S")

	if got := idx.Attendees(0, "S"); len(got) != 1 || got[0] != 1 {
		t.Errorf("Attendees(0, S) = %v, want [1]", got)
	}
	if err := idx.Check(w); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestHealthIndex_RemoveMissingAgentPanics(t *testing.T) {
	_, idx := indexedWorld()
	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "agent 2 not found") {
			t.Errorf("recover() = %v, want a not-found panic", r)
		}
	}()
	idx.remove(2, 0, "S")
}

func TestHealthIndex_CheckDetectsDivergence(t *testing.T) {
	w, idx := indexedWorld()
	w.agents[1].setHealth("I")

	err := idx.Check(w)
	if err == nil || !strings.Contains(err.Error(), "agent 1 indexed at (0, S)") {
		t.Errorf("Check = %v, want a divergence error", err)
	}
}

func TestHealthIndex_UnknownStatePanics(t *testing.T) {
	_, idx := indexedWorld()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown state")
		}
	}()
	idx.Count(0, "D")
}
