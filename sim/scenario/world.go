package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
)

// NonResidentRegion is the region of agents that live outside the
// simulated region.
const NonResidentRegion = "elsewhere"

// WorldConfig describes a small synthetic population. Agents are grouped
// into households unless a site gives them a home; every other activity
// draws locations uniformly from the sites offering it. The map is not
// spatial: coordinates are random and unused by the model.
type WorldConfig struct {
	Agents           int          `yaml:"agents"`
	NonResidents     int          `yaml:"non_residents"`
	AgentsPerHome    int          `yaml:"agents_per_home"`
	MinAge           int          `yaml:"min_age"`
	MaxAge           int          `yaml:"max_age"`
	HomeActivity     string       `yaml:"home_activity"`
	HomeLocationType string       `yaml:"home_location_type"`
	ExtentMetres     float64      `yaml:"extent_m"`
	Sites            []SiteConfig `yaml:"sites"`
}

// SiteConfig adds Count locations of LocationType. When Activity is set, a
// Share of the agents aged [MinAge, MaxAge] (MaxAge 0 is unbounded) that
// no earlier site gave Activity get PerAgent of these locations for it.
type SiteConfig struct {
	LocationType string  `yaml:"location_type"`
	Count        int     `yaml:"count"`
	Activity     string  `yaml:"activity"`
	PerAgent     int     `yaml:"per_agent"`
	Share        float64 `yaml:"share"`
	MinAge       int     `yaml:"min_age"`
	MaxAge       int     `yaml:"max_age"`
}

func (s SiteConfig) covers(age int) bool {
	return age >= s.MinAge && (s.MaxAge == 0 || age <= s.MaxAge)
}

func (s *SiteConfig) applyDefaults() {
	if s.Activity == "" {
		return
	}
	if s.PerAgent == 0 {
		s.PerAgent = 1
	}
	if s.Share == 0 {
		s.Share = 1
	}
}

// Validate checks the population description.
func (wc WorldConfig) Validate() error {
	if wc.Agents <= 0 {
		return fmt.Errorf("agents must be positive, got %d", wc.Agents)
	}
	if wc.NonResidents < 0 {
		return fmt.Errorf("non_residents must be non-negative, got %d", wc.NonResidents)
	}
	if wc.AgentsPerHome <= 0 {
		return fmt.Errorf("agents_per_home must be positive, got %d", wc.AgentsPerHome)
	}
	if wc.MinAge < 0 || wc.MaxAge < wc.MinAge {
		return fmt.Errorf("age range [%d, %d] is invalid", wc.MinAge, wc.MaxAge)
	}
	if wc.ExtentMetres < 0 {
		return fmt.Errorf("extent_m must be non-negative, got %v", wc.ExtentMetres)
	}
	for i, s := range wc.Sites {
		if s.LocationType == "" {
			return fmt.Errorf("sites[%d]: location_type is required", i)
		}
		if s.Count <= 0 {
			return fmt.Errorf("sites[%d]: count must be positive, got %d", i, s.Count)
		}
		if s.Activity == "" {
			continue
		}
		if s.PerAgent < 1 || s.PerAgent > s.Count {
			return fmt.Errorf("sites[%d]: per_agent must be in [1, %d], got %d", i, s.Count, s.PerAgent)
		}
		if s.Share <= 0 || s.Share > 1 {
			return fmt.Errorf("sites[%d]: share must be in (0, 1], got %v", i, s.Share)
		}
		if s.MinAge < 0 || (s.MaxAge != 0 && s.MaxAge < s.MinAge) {
			return fmt.Errorf("sites[%d]: age range [%d, %d] is invalid", i, s.MinAge, s.MaxAge)
		}
	}
	return nil
}

func (wc WorldConfig) activities() []string {
	out := []string{wc.HomeActivity}
	for _, s := range wc.Sites {
		if s.Activity != "" {
			out = append(out, s.Activity)
		}
	}
	return out
}

func (wc WorldConfig) locationTypes() []string {
	out := []string{wc.HomeLocationType}
	for _, s := range wc.Sites {
		out = append(out, s.LocationType)
	}
	return out
}

func (wc WorldConfig) coord(rng *sim.RNG) sim.Coord {
	return sim.Coord{X: rng.Float64() * wc.ExtentMetres, Y: rng.Float64() * wc.ExtentMetres}
}

// Build creates the world. Residents belong to region; every agent starts
// at home.
func (wc WorldConfig) Build(region string, scaleFactor float64, rng *sim.RNG) *sim.World {
	w := sim.NewWorld(scaleFactor)
	home := sim.Activity(wc.HomeActivity)

	ids := make([]sim.AgentID, 0, wc.Agents+wc.NonResidents)
	for i := 0; i < wc.Agents+wc.NonResidents; i++ {
		r := region
		if i >= wc.Agents {
			r = NonResidentRegion
		}
		ids = append(ids, w.AddAgent(wc.MinAge+rng.IntN(wc.MaxAge-wc.MinAge+1), r))
	}

	sites := make([][]sim.LocationID, len(wc.Sites))
	for i, s := range wc.Sites {
		for j := 0; j < s.Count; j++ {
			sites[i] = append(sites[i], w.AddLocation(s.LocationType, wc.coord(rng)))
		}
	}

	assigned := make(map[sim.Activity][]bool)
	for i, s := range wc.Sites {
		if s.Activity == "" {
			continue
		}
		act := sim.Activity(s.Activity)
		if assigned[act] == nil {
			assigned[act] = make([]bool, len(ids))
		}
		n := 0
		for _, id := range ids {
			if assigned[act][id] || !s.covers(w.Agent(id).Age()) || !rng.Boolean(s.Share) {
				continue
			}
			assigned[act][id] = true
			w.AddActivityLocation(id, act, sim.SampleOf(rng, sites[i], s.PerAgent)...)
			n++
		}
		logrus.Debugf("world: %d agents do %s at %s", n, act, s.LocationType)
	}

	// Everyone without a home from a site is put into households.
	var homeless []sim.AgentID
	for _, id := range ids {
		if a := assigned[home]; a == nil || !a[id] {
			homeless = append(homeless, id)
		}
	}
	households := 0
	for start := 0; start < len(homeless); start += wc.AgentsPerHome {
		loc := w.AddLocation(wc.HomeLocationType, wc.coord(rng))
		for _, id := range homeless[start:min(start+wc.AgentsPerHome, len(homeless))] {
			w.AddActivityLocation(id, home, loc)
		}
		households++
	}

	for _, id := range ids {
		w.Place(id, home, sim.ChoiceOf(rng, w.Agent(id).LocationsFor(home)))
	}
	logrus.Infof("World built: %d agents (%d non-resident), %d households, %d locations",
		w.NumAgents(), wc.NonResidents, households, w.NumLocations())
	return w
}
