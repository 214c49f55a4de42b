// Package disease implements the multi-strain transmission, progression and
// immunity model.
//
// Each tick the model reads the simulator's (location, health) index to
// draw new exposures per location, advances infected agents along their
// sampled profile, and expires immunity. All health changes go through
// sim.HealthRequest and are committed by the simulator at the end of the tick.
package disease

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
	"github.com/abmlux/episim/sim/trace"
)

const (
	noStrain  = -1
	permanent = -1
	// initialProfilePosition is where seeded cases start on their profile,
	// clamped short of the terminal position. Config.Validate guarantees
	// seeded profiles have at least three positions.
	initialProfilePosition = 2
)

type agentState struct {
	strain       int
	profile      *Profile
	durations    []int64 // ticks per position; -1 for a terminal position
	position     int
	transmission float64
	changedAt    int64
	immune       []bool
	immuneUntil  []int64 // tick immunity ends, or permanent
}

type immunityLoss struct {
	agent  sim.AgentID
	strain int
}

// Model is the multi-strain disease model.
type Model struct {
	cfg Config

	states         []sim.HealthState
	susceptible    sim.HealthState
	dead           sim.HealthState
	infectedStates []sim.HealthState
	infected       map[sim.HealthState]bool

	strains       []*Strain
	strainsByName map[string]*Strain
	mutation      [][]float64 // [from][to]
	immunity      [][]float64 // [from][to]

	noTransmission      map[string]bool
	reducedTransmission map[string]bool

	numInitialCases []int

	sim    *sim.Simulator
	world  *sim.World
	clock  *sim.Clock
	rng    *sim.RNG
	agents []agentState
	losses map[int64][]immunityLoss

	cumulative         []int64
	cumulativeResident []int64

	trace *trace.Log
}

// New validates cfg, builds the strains and marks every agent of world
// susceptible.
func New(cfg Config, world *sim.World) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("disease config: %w", err)
	}

	m := &Model{
		cfg:                 cfg,
		susceptible:         sim.HealthState(cfg.SusceptibleState),
		dead:                sim.HealthState(cfg.DeadState),
		infected:            make(map[sim.HealthState]bool),
		strainsByName:       make(map[string]*Strain),
		noTransmission:      make(map[string]bool),
		reducedTransmission: make(map[string]bool),
		world:               world,
		losses:              make(map[int64][]immunityLoss),
	}

	stateForLetter := make(map[byte]sim.HealthState, len(cfg.HealthStates))
	for _, h := range cfg.HealthStates {
		m.states = append(m.states, sim.HealthState(h))
		stateForLetter[h[0]] = sim.HealthState(h)
	}
	for _, h := range cfg.InfectedStates {
		m.infectedStates = append(m.infectedStates, sim.HealthState(h))
		m.infected[sim.HealthState(h)] = true
	}
	for _, t := range cfg.NoTransmissionLocations {
		m.noTransmission[t] = true
	}
	for _, t := range cfg.ReducedTransmissionLocations {
		m.reducedTransmission[t] = true
	}

	for i, sc := range cfg.Strains {
		s, err := newStrain(i, sc, stateForLetter)
		if err != nil {
			return nil, fmt.Errorf("strain %s: %w", sc.Name, err)
		}
		m.strains = append(m.strains, s)
		m.strainsByName[s.Name] = s
		m.numInitialCases = append(m.numInitialCases,
			int(math.Ceil(world.ScaleFactor()*sc.NumInitialCases)))
	}

	n := len(m.strains)
	m.mutation = make([][]float64, n)
	m.immunity = make([][]float64, n)
	for i, from := range m.strains {
		m.mutation[i] = make([]float64, n)
		m.immunity[i] = make([]float64, n)
		for j, to := range m.strains {
			m.mutation[i][j] = cfg.MutationMatrix[from.Name][to.Name]
			m.immunity[i][j] = cfg.ImmunityMatrix[from.Name][to.Name]
		}
	}

	m.agents = make([]agentState, world.NumAgents())
	for i := range m.agents {
		m.agents[i] = agentState{
			strain:      noStrain,
			immune:      make([]bool, n),
			immuneUntil: make([]int64, n),
		}
		world.SetInitialHealth(sim.AgentID(i), m.susceptible)
	}
	return m, nil
}

func (m *Model) Name() string { return "disease" }

// SetTrace records every infection and its outcome into st. A nil trace
// disables recording.
func (m *Model) SetTrace(l *trace.Log) { m.trace = l }

// States returns every health state, in configuration order.
func (m *Model) States() []sim.HealthState { return m.states }

// InitSim subscribes the model and seeds the initial infections.
func (m *Model) InitSim(s *sim.Simulator) error {
	if s.World() != m.world {
		return fmt.Errorf("disease model was built for a different world")
	}
	m.sim = s
	m.clock = s.Clock()
	m.rng = s.RNG()

	bus := s.Bus()
	sim.Listen(bus, m.Name(), m.onTick)
	sim.Listen(bus, m.Name(), m.onHealthChanged)
	sim.Listen(bus, m.Name(), m.onGainImmunity)

	names := make(map[string]int64, len(m.strains))
	for _, st := range m.strains {
		names[st.Name] = int64(st.Index)
	}
	s.Report(sim.MetricStrainsList, names)

	m.cumulative = make([]int64, len(m.strains))
	m.cumulativeResident = make([]int64, len(m.strains))

	m.seedInitialCases()
	return nil
}

func (m *Model) seedInitialCases() {
	total := 0
	for _, n := range m.numInitialCases {
		total += n
	}
	var residents []sim.AgentID
	for _, a := range m.world.Agents() {
		if m.sim.IsResident(a) {
			residents = append(residents, a.ID())
		}
	}
	if total > len(residents) {
		logrus.Warnf("%d initial cases requested but only %d residents; infecting all", total, len(residents))
	}
	pool := sim.SampleOf(m.rng, residents, total)

	logrus.Infof("Infecting %d agents...", total)
	for _, strain := range m.strains {
		chosen := sim.SampleOf(m.rng, pool, m.numInitialCases[strain.Index])
		infected := make(map[sim.AgentID]bool, len(chosen))
		for _, id := range chosen {
			st := &m.agents[id]
			if st.immune[strain.Index] {
				continue
			}
			m.assignInfection(id, strain)
			pos := min(initialProfilePosition, len(st.profile.States)-2)
			st.position = pos
			h := st.profile.States[pos]
			st.transmission = strain.TransmissionProbability(h)
			m.world.SetInitialHealth(id, h)
			infected[id] = true
			m.recordInfection(id, trace.Seeded, strain.Index, strain.Index)
		}
		remaining := pool[:0:0]
		for _, id := range pool {
			if !infected[id] {
				remaining = append(remaining, id)
			}
		}
		pool = remaining
	}
}

// assignInfection records that id now carries strain, samples its profile
// and durations, and counts the case.
func (m *Model) assignInfection(id sim.AgentID, strain *Strain) {
	a := m.world.Agent(id)
	st := &m.agents[id]
	st.strain = strain.Index
	st.profile = strain.ChooseProfile(m.rng, a.Age())
	st.durations = m.sampleDurations(st.profile)
	st.position = 0
	st.transmission = 0

	m.cumulative[strain.Index]++
	if m.sim.IsResident(a) {
		m.cumulativeResident[strain.Index]++
	}
}

func (m *Model) sampleDurations(p *Profile) []int64 {
	out := make([]int64, len(p.Durations))
	for i, d := range p.Durations {
		days, ok := d.SampleDays(m.rng)
		if !ok {
			out[i] = permanent
			continue
		}
		out[i] = m.clock.DaysToTicks(days)
	}
	return out
}

func (m *Model) onTick(ev sim.Tick) {
	m.reportCounts()
	m.spread()
	m.expireImmunity(ev.T)
	m.progress(ev.T)
}

func (m *Model) reportCounts() {
	counts := make(map[string]int64, 2*len(m.strains))
	for _, st := range m.strains {
		counts[st.Name] = 0
		counts[st.Name+".resident"] = 0
	}
	for _, a := range m.world.Agents() {
		if !m.infected[a.Health()] {
			continue
		}
		st := m.agents[a.ID()]
		if st.strain == noStrain {
			continue
		}
		name := m.strains[st.strain].Name
		counts[name]++
		if m.sim.IsResident(a) {
			counts[name+".resident"]++
		}
	}
	m.sim.Report(sim.MetricStrainCountsUpdate, counts)

	cumulative := make(map[string]int64, 2*len(m.strains))
	for _, st := range m.strains {
		cumulative[st.Name] = m.cumulative[st.Index]
		cumulative[st.Name+".resident"] = m.cumulativeResident[st.Index]
	}
	m.sim.Report(sim.MetricCumulativeCasesUpdate, cumulative)
}

// spread draws new exposures at every location where transmission happens.
func (m *Model) spread() {
	index := m.sim.Index()
	var infectious []sim.AgentID
	var weights []float64

	for _, loc := range m.world.Locations() {
		if m.noTransmission[loc.Type] {
			continue
		}
		infectious = infectious[:0]
		for _, h := range m.infectedStates {
			infectious = append(infectious, index.Attendees(loc.ID, h)...)
		}
		if len(infectious) == 0 {
			continue
		}
		susceptibles := index.Attendees(loc.ID, m.susceptible)
		if len(susceptibles) == 0 {
			continue
		}

		factor := 1.0
		if m.reducedTransmission[loc.Type] {
			factor = m.cfg.ReducedTransmissionFactor
		}
		weights = weights[:0]
		escape := 1.0
		for _, id := range infectious {
			p := m.agents[id].transmission
			weights = append(weights, p)
			escape *= 1 - factor*p
		}
		probability := 1 - escape

		n := m.rng.Binomial(len(susceptibles), probability)
		if n == 0 {
			continue
		}
		for _, target := range sim.SampleOf(m.rng, susceptibles, n) {
			i, ok := m.rng.WeightedIndex(weights)
			if !ok {
				break
			}
			m.infect(target, int(infectious[i]), m.agents[infectious[i]].strain)
		}
	}
}

// infect attempts to infect id with the strain carried by an infector.
// The strain may mutate on the way; an immune target is left alone.
func (m *Model) infect(id sim.AgentID, infector, infectorStrain int) {
	if infectorStrain == noStrain {
		return
	}
	to, ok := m.rng.WeightedIndex(m.mutation[infectorStrain])
	if !ok {
		to = infectorStrain
	}
	st := &m.agents[id]
	if st.immune[to] {
		return
	}
	m.assignInfection(id, m.strains[to])
	m.recordInfection(id, infector, infectorStrain, to)
	m.sim.Bus().Publish(sim.HealthRequest{Agent: id, Health: st.profile.States[1]})
}

func (m *Model) recordInfection(id sim.AgentID, infector, from, to int) {
	if m.trace == nil {
		return
	}
	loc := m.world.Location(m.world.Agent(id).Location())
	m.trace.Infected(trace.InfectionRecord{
		Tick:         m.clock.T(),
		Agent:        int(id),
		Infector:     infector,
		Location:     int(loc.ID),
		LocationType: loc.Type,
		Strain:       m.strains[to].Name,
		SourceStrain: m.strains[from].Name,
	})
}

func (m *Model) recordOutcome(id sim.AgentID, strain *Strain, outcome trace.Outcome) {
	if m.trace == nil {
		return
	}
	m.trace.Ended(trace.OutcomeRecord{Tick: m.clock.T(), Agent: int(id), Strain: strain.Name, Outcome: outcome})
}

// Infect attempts to infect id with the named strain, applying mutation and
// immunity exactly as a transmission would. The infection is traced as a
// seeded case.
func (m *Model) Infect(id sim.AgentID, strain string) {
	m.infect(id, trace.Seeded, m.strain(strain).Index)
}

func (m *Model) expireImmunity(t int64) {
	due, ok := m.losses[t]
	if !ok {
		return
	}
	delete(m.losses, t)
	for _, l := range due {
		st := &m.agents[l.agent]
		// Immunity renewed since this loss was scheduled is left alone.
		if st.immune[l.strain] && st.immuneUntil[l.strain] == t {
			st.immune[l.strain] = false
			st.immuneUntil[l.strain] = 0
		}
	}
}

// progress requests the next profile state for every infected agent whose
// current position has run its course.
func (m *Model) progress(t int64) {
	for _, a := range m.world.Agents() {
		if !m.infected[a.Health()] {
			continue
		}
		st := &m.agents[a.ID()]
		if st.strain == noStrain || st.position+1 >= len(st.profile.States) {
			continue
		}
		d := st.durations[st.position]
		if d == permanent {
			continue
		}
		if t-st.changedAt > d {
			m.sim.Bus().Publish(sim.HealthRequest{Agent: a.ID(), Health: st.profile.States[st.position+1]})
		}
	}
}

func (m *Model) onHealthChanged(ev sim.HealthChanged) {
	st := &m.agents[ev.Agent]
	st.changedAt = m.clock.T()
	if st.strain == noStrain {
		return
	}
	strain := m.strains[st.strain]

	switch h := m.world.Agent(ev.Agent).Health(); h {
	case m.susceptible:
		last := st.durations[len(st.durations)-1]
		m.gainImmunity(ev.Agent, strain, last, last == permanent)
		m.recordOutcome(ev.Agent, strain, trace.OutcomeRecovered)
		m.clearInfection(st)
	case m.dead:
		m.recordOutcome(ev.Agent, strain, trace.OutcomeDied)
		m.clearInfection(st)
	default:
		st.position++
		st.transmission = strain.TransmissionProbability(h)
	}
}

func (m *Model) clearInfection(st *agentState) {
	st.strain = noStrain
	st.profile = nil
	st.durations = nil
	st.position = 0
	st.transmission = 0
}

func (m *Model) onGainImmunity(ev sim.GainImmunityRequest) {
	for _, name := range ev.Strains {
		m.gainImmunity(ev.Agent, m.strain(name), ev.Duration, ev.Permanent)
	}
}

// gainImmunity grants immunity to every strain with the probability given
// by the immunity matrix row of target.
func (m *Model) gainImmunity(id sim.AgentID, target *Strain, duration int64, forever bool) {
	st := &m.agents[id]
	now := m.clock.T()
	for _, other := range m.strains {
		if !m.rng.Boolean(m.immunity[target.Index][other.Index]) {
			continue
		}
		st.immune[other.Index] = true
		if forever {
			st.immuneUntil[other.Index] = permanent
			continue
		}
		// Expiry for the current tick may already have run.
		until := now + max(duration, 1)
		st.immuneUntil[other.Index] = until
		m.losses[until] = append(m.losses[until], immunityLoss{agent: id, strain: other.Index})
	}
}

func (m *Model) strain(name string) *Strain {
	s, ok := m.strainsByName[name]
	if !ok {
		panic(fmt.Sprintf("unknown strain %q", name))
	}
	return s
}

// Strains returns the strains in configuration order.
func (m *Model) Strains() []*Strain { return m.strains }

// StrainNames returns the strain names in configuration order.
func (m *Model) StrainNames() []string {
	out := make([]string, len(m.strains))
	for i, s := range m.strains {
		out[i] = s.Name
	}
	return out
}

// Infection returns the strain id currently carries, if any.
func (m *Model) Infection(id sim.AgentID) (string, bool) {
	st := m.agents[id]
	if st.strain == noStrain {
		return "", false
	}
	return m.strains[st.strain].Name, true
}

// IsImmune reports whether id is currently immune to strain.
func (m *Model) IsImmune(id sim.AgentID, strain string) bool {
	return m.agents[id].immune[m.strain(strain).Index]
}

// ImmunityLossTick returns the tick at which id loses immunity to strain,
// and false if the immunity is permanent or absent.
func (m *Model) ImmunityLossTick(id sim.AgentID, strain string) (int64, bool) {
	st := m.agents[id]
	i := m.strain(strain).Index
	if !st.immune[i] || st.immuneUntil[i] == permanent {
		return 0, false
	}
	return st.immuneUntil[i], true
}

// ProfilePosition returns id's position on its current profile.
func (m *Model) ProfilePosition(id sim.AgentID) int { return m.agents[id].position }

// TransmissionProbability returns id's current per-tick transmission
// probability.
func (m *Model) TransmissionProbability(id sim.AgentID) float64 {
	return m.agents[id].transmission
}

// CumulativeCases returns the total and resident case counts for strain.
func (m *Model) CumulativeCases(strain string) (total, resident int64) {
	i := m.strain(strain).Index
	return m.cumulative[i], m.cumulativeResident[i]
}

// IsInfected reports whether h is one of the infected states.
func (m *Model) IsInfected(h sim.HealthState) bool { return m.infected[h] }

// SusceptibleState returns the susceptible state label.
func (m *Model) SusceptibleState() sim.HealthState { return m.susceptible }

// DeadState returns the dead state label.
func (m *Model) DeadState() sim.HealthState { return m.dead }
