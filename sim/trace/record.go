// Package trace records who infected whom during a run, for transmission-chain
// analysis. It holds plain data and does not import sim/ or its sub-packages.
package trace

import (
	"fmt"
	"slices"
)

// Level selects whether infections are traced.
type Level string

const (
	LevelNone       Level = "none"
	LevelInfections Level = "infections"
)

// ParseLevel accepts the level names used in scenarios and on the command
// line. An empty string means LevelNone.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelNone:
		return LevelNone, nil
	case LevelInfections:
		return LevelInfections, nil
	}
	return "", fmt.Errorf("unknown trace level %q; valid: none, infections", s)
}

// Seeded is the infector of an initial case.
const Seeded = -1

// InfectionRecord captures a single successful infection.
type InfectionRecord struct {
	Tick         int64
	Agent        int
	Infector     int // Seeded for initial cases
	Location     int
	LocationType string
	Strain       string // strain the agent caught
	SourceStrain string // strain the infector carried; differs from Strain after a mutation

	// Parent indexes the infector's infection in Log.Infections, or is -1
	// for seeded cases. Generation counts transmissions back to a seed.
	Parent     int
	Generation int
}

// Mutated reports whether the strain changed on transmission.
func (r InfectionRecord) Mutated() bool { return r.Strain != r.SourceStrain }

// Outcome is how an infection ended.
type Outcome string

const (
	OutcomeRecovered Outcome = "recovered"
	OutcomeDied      Outcome = "died"
)

// OutcomeRecord captures the end of an infection.
type OutcomeRecord struct {
	Tick    int64
	Agent   int
	Strain  string
	Outcome Outcome
}

// Log is the infection trace of one run. Records are kept in the order they
// happened.
type Log struct {
	Infections []InfectionRecord
	Outcomes   []OutcomeRecord

	latest map[int]int // agent -> index of its latest infection
}

// NewLog returns an empty trace.
func NewLog() *Log {
	return &Log{latest: make(map[int]int)}
}

// Infected appends r, linking it to the infector's most recent infection.
func (l *Log) Infected(r InfectionRecord) {
	r.Parent = -1
	r.Generation = 0
	if r.Infector != Seeded {
		if i, ok := l.latest[r.Infector]; ok {
			r.Parent = i
			r.Generation = l.Infections[i].Generation + 1
		}
	}
	l.latest[r.Agent] = len(l.Infections)
	l.Infections = append(l.Infections, r)
}

// Ended appends an outcome record.
func (l *Log) Ended(r OutcomeRecord) {
	l.Outcomes = append(l.Outcomes, r)
}

// Chain returns the transmission chain ending in the agent's latest
// infection, seed first. It is empty when the agent was never infected.
func (l *Log) Chain(agent int) []InfectionRecord {
	i, ok := l.latest[agent]
	if !ok {
		return nil
	}
	var chain []InfectionRecord
	for ; i >= 0; i = l.Infections[i].Parent {
		chain = append(chain, l.Infections[i])
	}
	slices.Reverse(chain)
	return chain
}
