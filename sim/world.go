package sim

import (
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"
)

// AgentID addresses an agent in the World arena.
type AgentID int

// LocationID addresses a location in the World arena.
type LocationID int

// NoLocation marks an agent that has not been placed.
const NoLocation LocationID = -1

// HealthState is a label from the disease model's list of health states.
type HealthState string

// Activity names what an agent is currently doing, e.g. "House" or "Work".
type Activity string

// Coord is a position on the map, in metres.
type Coord struct {
	X, Y float64
}

// Location is a place agents can attend.
type Location struct {
	ID    LocationID
	Type  string
	Coord Coord
}

// DistanceTo returns the euclidean distance between two locations in metres.
func (l *Location) DistanceTo(other *Location) float64 {
	return math.Hypot(l.Coord.X-other.Coord.X, l.Coord.Y-other.Coord.Y)
}

func (l *Location) String() string {
	return fmt.Sprintf("%s[%d]", l.Type, l.ID)
}

// Agent is a member of the synthetic population.
//
// The mutable fields (health, activity, location) are written only by the
// simulator's commit step. Other packages read them through accessors and
// request changes over the bus.
type Agent struct {
	id         AgentID
	age        int
	region     string
	activities map[Activity][]LocationID

	health     HealthState
	activity   Activity
	location   LocationID
	employment string
}

func (a *Agent) ID() AgentID          { return a.id }
func (a *Agent) Age() int             { return a.age }
func (a *Agent) Region() string       { return a.region }
func (a *Agent) Health() HealthState  { return a.health }
func (a *Agent) Activity() Activity   { return a.activity }
func (a *Agent) Location() LocationID { return a.location }
func (a *Agent) Employment() string   { return a.employment }

// LocationsFor returns the locations where the agent may perform activity.
// The returned slice must not be modified.
func (a *Agent) LocationsFor(activity Activity) []LocationID {
	return a.activities[activity]
}

// Activities returns the activities the agent has locations for, sorted.
func (a *Agent) Activities() []Activity {
	out := make([]Activity, 0, len(a.activities))
	for act := range a.activities {
		out = append(out, act)
	}
	slices.Sort(out)
	return out
}

func (a *Agent) setHealth(h HealthState) {
	logrus.Debugf("agent %d: health %s -> %s", a.id, a.health, h)
	a.health = h
}

func (a *Agent) setActivity(act Activity) {
	logrus.Debugf("agent %d: activity %s -> %s", a.id, a.activity, act)
	a.activity = act
}

func (a *Agent) setLocation(l LocationID) {
	logrus.Debugf("agent %d: location %d -> %d", a.id, a.location, l)
	a.location = l
}

// World owns every agent and location of a run. Agents and locations are
// built before the run starts; once the simulator seals the world only the
// commit step may change agent state.
type World struct {
	agents          []*Agent
	locations       []*Location
	locationsByType map[string][]LocationID
	scaleFactor     float64
	sealed          bool
}

// NewWorld creates an empty world. scaleFactor is the ratio of modelled
// agents to the real population and is used to scale absolute counts such
// as initial cases and daily vaccine capacity.
func NewWorld(scaleFactor float64) *World {
	if scaleFactor <= 0 {
		scaleFactor = 1
	}
	return &World{
		locationsByType: make(map[string][]LocationID),
		scaleFactor:     scaleFactor,
	}
}

func (w *World) mustBeOpen(op string) {
	if w.sealed {
		panic(fmt.Sprintf("World.%s called after the simulation started", op))
	}
}

// AddLocation registers a location and returns its ID.
func (w *World) AddLocation(typ string, coord Coord) LocationID {
	w.mustBeOpen("AddLocation")
	id := LocationID(len(w.locations))
	w.locations = append(w.locations, &Location{ID: id, Type: typ, Coord: coord})
	w.locationsByType[typ] = append(w.locationsByType[typ], id)
	return id
}

// AddAgent registers an unplaced agent and returns its ID.
func (w *World) AddAgent(age int, region string) AgentID {
	w.mustBeOpen("AddAgent")
	id := AgentID(len(w.agents))
	w.agents = append(w.agents, &Agent{
		id:         id,
		age:        age,
		region:     region,
		activities: make(map[Activity][]LocationID),
		location:   NoLocation,
	})
	return id
}

// AddActivityLocation allows agent to perform activity at loc.
func (w *World) AddActivityLocation(agent AgentID, activity Activity, loc ...LocationID) {
	w.mustBeOpen("AddActivityLocation")
	a := w.Agent(agent)
	a.activities[activity] = append(a.activities[activity], loc...)
}

// Place sets the initial activity and location of an agent.
func (w *World) Place(agent AgentID, activity Activity, loc LocationID) {
	w.mustBeOpen("Place")
	a := w.Agent(agent)
	a.activity = activity
	a.location = loc
}

// SetInitialHealth sets an agent's health before the run starts.
func (w *World) SetInitialHealth(agent AgentID, h HealthState) {
	w.mustBeOpen("SetInitialHealth")
	w.Agent(agent).health = h
}

// SetEmployment records an agent's employment status.
func (w *World) SetEmployment(agent AgentID, employment string) {
	w.mustBeOpen("SetEmployment")
	w.Agent(agent).employment = employment
}

func (w *World) seal() { w.sealed = true }

// Sealed reports whether the simulation has taken ownership of agent state.
func (w *World) Sealed() bool { return w.sealed }

// Agent returns the agent with the given ID. It panics on an unknown ID.
func (w *World) Agent(id AgentID) *Agent {
	if id < 0 || int(id) >= len(w.agents) {
		panic(fmt.Sprintf("unknown agent %d", id))
	}
	return w.agents[id]
}

// Location returns the location with the given ID. It panics on an unknown ID.
func (w *World) Location(id LocationID) *Location {
	if id < 0 || int(id) >= len(w.locations) {
		panic(fmt.Sprintf("unknown location %d", id))
	}
	return w.locations[id]
}

// Agents returns all agents in ID order. The slice must not be modified.
func (w *World) Agents() []*Agent { return w.agents }

// Locations returns all locations in ID order. The slice must not be modified.
func (w *World) Locations() []*Location { return w.locations }

// NumAgents returns the number of agents.
func (w *World) NumAgents() int { return len(w.agents) }

// NumLocations returns the number of locations.
func (w *World) NumLocations() int { return len(w.locations) }

// LocationsOfType returns the IDs of all locations of type typ.
func (w *World) LocationsOfType(typ string) []LocationID {
	return w.locationsByType[typ]
}

// ScaleFactor returns the ratio of modelled to real population.
func (w *World) ScaleFactor() float64 { return w.scaleFactor }
