package intervention

import (
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
)

// MetricVaccinationDoses is reported every midnight the campaign runs.
const MetricVaccinationDoses = "vaccination.doses"

// HesitancyConfig gives the probability that an agent accepts a vaccine,
// by age band: below AgeLow, in [AgeLow, AgeHigh), and AgeHigh or older.
type HesitancyConfig struct {
	AgeLow   int     `yaml:"age_low"`
	AgeHigh  int     `yaml:"age_high"`
	ProbLow  float64 `yaml:"prob_low"`
	ProbMed  float64 `yaml:"prob_med"`
	ProbHigh float64 `yaml:"prob_high"`
}

// VaccinationConfig configures a vaccination campaign.
type VaccinationConfig struct {
	Vaccines              []VaccineConfig `yaml:"vaccines"`
	CareHomeLocationTypes []string        `yaml:"care_home_location_types"`
	HospitalLocationTypes []string        `yaml:"hospital_location_types"`
	HomeActivity          string          `yaml:"home_activity_type"`
	WorkActivity          string          `yaml:"work_activity_type"`
	MinAge                int             `yaml:"min_age"`
	Hesitancy             HesitancyConfig `yaml:"hesitancy"`
}

// Validate checks the configuration against the disease model's strains.
func (c VaccinationConfig) Validate(strains []string) error {
	if len(c.Vaccines) == 0 {
		return fmt.Errorf("at least one vaccine is required")
	}
	seen := make(map[string]bool, len(c.Vaccines))
	for i, v := range c.Vaccines {
		if err := v.Validate(strains); err != nil {
			return fmt.Errorf("vaccines[%d]: %w", i, err)
		}
		if seen[v.Name] {
			return fmt.Errorf("vaccines[%d]: duplicate vaccine %q", i, v.Name)
		}
		seen[v.Name] = true
	}
	if c.HomeActivity == "" || c.WorkActivity == "" {
		return fmt.Errorf("home_activity_type and work_activity_type are required")
	}
	h := c.Hesitancy
	if h.AgeHigh < h.AgeLow {
		return fmt.Errorf("hesitancy: age_high %d is below age_low %d", h.AgeHigh, h.AgeLow)
	}
	for _, p := range []float64{h.ProbLow, h.ProbMed, h.ProbHigh} {
		if p < 0 || p > 1 {
			return fmt.Errorf("hesitancy: probabilities must be in [0, 1], got %v", p)
		}
	}
	return nil
}

// Vaccination offers first doses every midnight to the next agents on a
// priority list: care home residents and workers, then hospital workers,
// then everyone else, oldest first within each group. Agents decide up
// front whether they will accept. Second doses follow after the vaccine's
// spacing and are given even if the campaign has since been disabled.
type Vaccination struct {
	sim.Toggle

	name string
	cfg  VaccinationConfig

	sim        *sim.Simulator
	rng        *sim.RNG
	secondDose *sim.DeferredEventPool
	vaccines   []*Vaccine
	byName     map[string]*Vaccine
	priority   []sim.AgentID
	accepts    []bool

	firstDoses  int64
	secondDoses int64
	refused     int64
}

// NewVaccination creates a vaccination intervention.
func NewVaccination(name string, cfg VaccinationConfig, enabled bool) *Vaccination {
	return &Vaccination{
		Toggle: sim.NewToggle(enabled),
		name:   name,
		cfg:    cfg,
		byName: make(map[string]*Vaccine),
	}
}

func (v *Vaccination) Name() string { return v.name }

func (v *Vaccination) InitSim(s *sim.Simulator) error {
	v.sim = s
	v.rng = s.RNG()
	for _, vc := range v.cfg.Vaccines {
		vaccine, err := newVaccine(vc, s.Clock(), s.World().ScaleFactor())
		if err != nil {
			return err
		}
		v.vaccines = append(v.vaccines, vaccine)
		v.byName[vaccine.Name] = vaccine
		logrus.Infof("Vaccine %s: %d first doses per day", vaccine.Name, vaccine.DailyCapacity)
	}
	v.priority = v.priorityList(s.World())
	v.accepts = v.hesitancy(s.World())
	v.secondDose = sim.NewDeferredEventPool(s.Bus(), s.Clock(), v.name)

	sim.Listen(s.Bus(), v.name, v.onMidnight)
	sim.Subscribe(s.Bus(), v.name, v.onSecondDose)
	return nil
}

func (v *Vaccination) priorityList(w *sim.World) []sim.AgentID {
	careHome := func(id sim.LocationID) bool {
		return slices.Contains(v.cfg.CareHomeLocationTypes, w.Location(id).Type)
	}
	hospital := func(id sim.LocationID) bool {
		return slices.Contains(v.cfg.HospitalLocationTypes, w.Location(id).Type)
	}

	var careHomes, hospitals, others []*sim.Agent
	for _, a := range w.Agents() {
		if a.Age() < v.cfg.MinAge {
			continue
		}
		homes := a.LocationsFor(sim.Activity(v.cfg.HomeActivity))
		works := a.LocationsFor(sim.Activity(v.cfg.WorkActivity))
		switch {
		case len(homes) > 0 && careHome(homes[0]), len(works) > 0 && careHome(works[0]):
			careHomes = append(careHomes, a)
		case len(works) > 0 && hospital(works[0]):
			hospitals = append(hospitals, a)
		default:
			others = append(others, a)
		}
	}

	var out []sim.AgentID
	for _, group := range [][]*sim.Agent{careHomes, hospitals, others} {
		slices.SortStableFunc(group, func(a, b *sim.Agent) int { return b.Age() - a.Age() })
		for _, a := range group {
			out = append(out, a.ID())
		}
	}
	return out
}

func (v *Vaccination) hesitancy(w *sim.World) []bool {
	h := v.cfg.Hesitancy
	out := make([]bool, w.NumAgents())
	for _, a := range w.Agents() {
		p := h.ProbMed
		switch {
		case a.Age() < h.AgeLow:
			p = h.ProbLow
		case a.Age() >= h.AgeHigh:
			p = h.ProbHigh
		}
		out[a.ID()] = v.rng.Boolean(p)
	}
	return out
}

// onMidnight takes today's agents off the front of the priority list and
// shares them out between the vaccines.
func (v *Vaccination) onMidnight(ev sim.Midnight) {
	if !v.Enabled() || len(v.priority) == 0 {
		return
	}

	counts := make([]int, len(v.vaccines))
	total := 0
	for i, vaccine := range v.vaccines {
		counts[i] = min(vaccine.DailyCapacity, len(v.priority)-total)
		total += counts[i]
	}
	today := slices.Clone(v.priority[:total])
	v.priority = v.priority[total:]
	v.rng.Shuffle(len(today), func(i, j int) { today[i], today[j] = today[j], today[i] })

	var first, refused int64
	for i, vaccine := range v.vaccines {
		batch := today[:counts[i]]
		today = today[counts[i]:]
		for _, id := range batch {
			if !v.accepts[id] {
				refused++
				continue
			}
			first++
			if v.rng.Boolean(vaccine.ProbFirstDoseSuccessful) {
				v.sim.Bus().Publish(vaccine.immunity(id))
			}
			if vaccine.SecondDoseNeeded {
				v.secondDose.Add(vaccine.TimeBetweenDoses, sim.SecondDoseRequest{Agent: id, Vaccine: vaccine.Name})
			}
		}
	}
	v.firstDoses += first
	v.refused += refused

	logrus.Infof("[tick %07d] vaccination: %d first doses, %d refused, %d left on priority list",
		ev.T, first, refused, len(v.priority))
	v.sim.Report(MetricVaccinationDoses, map[string]int64{
		"first":   v.firstDoses,
		"second":  v.secondDoses,
		"refused": v.refused,
	})
}

func (v *Vaccination) onSecondDose(ev sim.SecondDoseRequest) sim.Result {
	vaccine, ok := v.byName[ev.Vaccine]
	if !ok {
		panic(fmt.Sprintf("second dose of unknown vaccine %q", ev.Vaccine))
	}
	v.secondDoses++
	if v.rng.Boolean(vaccine.ProbSecondDoseSuccessful) {
		v.sim.Bus().Publish(vaccine.immunity(ev.Agent))
	}
	return sim.Consume
}

// PriorityList returns the agents still waiting for a first dose, in order.
func (v *Vaccination) PriorityList() []sim.AgentID { return v.priority }

// Doses returns the number of first and second doses given so far.
func (v *Vaccination) Doses() (first, second int64) { return v.firstDoses, v.secondDoses }

// Refused returns the number of offered first doses that were refused.
func (v *Vaccination) Refused() int64 { return v.refused }

func scaledCount(scaleFactor, n float64) int {
	return int(math.Ceil(scaleFactor * n))
}
