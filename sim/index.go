package sim

import "fmt"

// agentSet is a set of agents with deterministic iteration order.
// Removal swaps the last element into the hole.
type agentSet struct {
	items []AgentID
	pos   map[AgentID]int
}

func newAgentSet() *agentSet {
	return &agentSet{pos: make(map[AgentID]int)}
}

func (s *agentSet) add(id AgentID) {
	if _, ok := s.pos[id]; ok {
		return
	}
	s.pos[id] = len(s.items)
	s.items = append(s.items, id)
}

func (s *agentSet) remove(id AgentID) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.pos[moved] = i
	}
	s.items = s.items[:last]
	delete(s.pos, id)
	return true
}

// HealthIndex partitions agents by (location, health state). Outside the
// commit step every agent sits in exactly the bucket matching its current
// location and health.
type HealthIndex struct {
	states     []HealthState
	stateIndex map[HealthState]int
	buckets    [][]*agentSet // [location][state]
}

// NewHealthIndex builds the index from the current state of world.
// It panics if an agent is unplaced or in a health state not in states.
func NewHealthIndex(world *World, states []HealthState) *HealthIndex {
	idx := &HealthIndex{
		states:     append([]HealthState(nil), states...),
		stateIndex: make(map[HealthState]int, len(states)),
		buckets:    make([][]*agentSet, world.NumLocations()),
	}
	for i, h := range states {
		idx.stateIndex[h] = i
	}
	for l := range idx.buckets {
		row := make([]*agentSet, len(states))
		for h := range row {
			row[h] = newAgentSet()
		}
		idx.buckets[l] = row
	}
	for _, a := range world.Agents() {
		idx.insert(a.ID(), a.Location(), a.Health())
	}
	return idx
}

func (idx *HealthIndex) bucket(loc LocationID, h HealthState) *agentSet {
	if loc < 0 || int(loc) >= len(idx.buckets) {
		panic(fmt.Sprintf("health index: unknown location %d", loc))
	}
	s, ok := idx.stateIndex[h]
	if !ok {
		panic(fmt.Sprintf("health index: unknown health state %q", h))
	}
	return idx.buckets[loc][s]
}

func (idx *HealthIndex) insert(id AgentID, loc LocationID, h HealthState) {
	idx.bucket(loc, h).add(id)
}

// remove takes id out of its bucket. A missing agent means the index and
// the world have diverged, so it panics.
func (idx *HealthIndex) remove(id AgentID, loc LocationID, h HealthState) {
	if !idx.bucket(loc, h).remove(id) {
		panic(fmt.Sprintf("health index: agent %d not found at location %d in state %q", id, loc, h))
	}
}

// States returns the health states known to the index.
func (idx *HealthIndex) States() []HealthState { return idx.states }

// HasState reports whether h is a known health state.
func (idx *HealthIndex) HasState(h HealthState) bool {
	_, ok := idx.stateIndex[h]
	return ok
}

// Attendees returns the agents at loc in state h. The slice is owned by the
// index and is only valid until the next commit.
func (idx *HealthIndex) Attendees(loc LocationID, h HealthState) []AgentID {
	return idx.bucket(loc, h).items
}

// Count returns the number of agents at loc in state h.
func (idx *HealthIndex) Count(loc LocationID, h HealthState) int {
	return len(idx.bucket(loc, h).items)
}

// Contains reports whether id is in the (loc, h) bucket.
func (idx *HealthIndex) Contains(id AgentID, loc LocationID, h HealthState) bool {
	_, ok := idx.bucket(loc, h).pos[id]
	return ok
}

// Check verifies that every agent of world is in exactly the bucket matching
// its fields and that no bucket holds a stray agent.
func (idx *HealthIndex) Check(world *World) error {
	total := 0
	for l, row := range idx.buckets {
		for s, set := range row {
			for _, id := range set.items {
				a := world.Agent(id)
				if a.Location() != LocationID(l) || a.Health() != idx.states[s] {
					return fmt.Errorf("agent %d indexed at (%d, %s) but is at (%d, %s)",
						id, l, idx.states[s], a.Location(), a.Health())
				}
			}
			total += len(set.items)
		}
	}
	if total != world.NumAgents() {
		return fmt.Errorf("index holds %d entries for %d agents", total, world.NumAgents())
	}
	return nil
}
