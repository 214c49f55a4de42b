// Package routine drives agent activities and movement: a weekly timetable
// of activities, a movement model that sends agents to a location for each
// new activity, and a public transport timetable.
package routine

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
)

var weekdays = map[string]int{"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6}

// Block sets Activity on the listed days between Start and End ("HH:MM",
// End may be "24:00").
type Block struct {
	Days     []string `yaml:"days"`
	Start    string   `yaml:"start"`
	End      string   `yaml:"end"`
	Activity string   `yaml:"activity"`
}

func parseTimeOfDay(s string) (int, error) {
	if s == "24:00" {
		return 24 * 3600, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*3600 + t.Minute()*60, nil
}

func (b Block) bounds() (start, end int, err error) {
	if start, err = parseTimeOfDay(b.Start); err != nil {
		return 0, 0, err
	}
	if end, err = parseTimeOfDay(b.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Validate checks the block.
func (b Block) Validate() error {
	if b.Activity == "" {
		return fmt.Errorf("activity is required")
	}
	if len(b.Days) == 0 {
		return fmt.Errorf("days must not be empty")
	}
	for _, d := range b.Days {
		if _, ok := weekdays[strings.ToLower(d)]; !ok {
			return fmt.Errorf("unknown day %q; valid: mon, tue, wed, thu, fri, sat, sun", d)
		}
	}
	start, end, err := b.bounds()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start %s is not before end %s", b.Start, b.End)
	}
	return nil
}

// Weekly is the routine followed by agents aged [MinAge, MaxAge]. A MaxAge of
// zero means no upper bound. Later blocks take precedence over earlier ones.
type Weekly struct {
	Name            string  `yaml:"name"`
	MinAge          int     `yaml:"min_age"`
	MaxAge          int     `yaml:"max_age"`
	DefaultActivity string  `yaml:"default_activity"`
	Blocks          []Block `yaml:"blocks"`
}

func (w Weekly) covers(age int) bool {
	return age >= w.MinAge && (w.MaxAge == 0 || age <= w.MaxAge)
}

// Config lists the weekly routines. Each agent follows the first routine
// that covers its age; agents no routine covers keep their activity.
type Config struct {
	Routines []Weekly `yaml:"routines"`
}

// Validate checks every routine.
func (c Config) Validate() error {
	for i, w := range c.Routines {
		if w.DefaultActivity == "" {
			return fmt.Errorf("routines[%d]: default_activity is required", i)
		}
		if w.MaxAge != 0 && w.MaxAge < w.MinAge {
			return fmt.Errorf("routines[%d]: max_age %d is below min_age %d", i, w.MaxAge, w.MinAge)
		}
		for j, b := range w.Blocks {
			if err := b.Validate(); err != nil {
				return fmt.Errorf("routines[%d].blocks[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// timetable is a routine expanded to one activity per tick of the week.
type timetable struct {
	name     string
	activity []sim.Activity
	changes  []bool
	agents   []sim.AgentID
}

func newTimetable(w Weekly, clock *sim.Clock) *timetable {
	perDay := clock.TicksInDay()
	n := clock.TicksInWeek()
	tl := clock.TickLengthSeconds()
	tt := &timetable{
		name:     w.Name,
		activity: make([]sim.Activity, n),
		changes:  make([]bool, n),
	}
	for i := range tt.activity {
		tt.activity[i] = sim.Activity(w.DefaultActivity)
	}
	for _, b := range w.Blocks {
		start, end, _ := b.bounds()
		for _, d := range b.Days {
			day := int64(weekdays[strings.ToLower(d)])
			for i := int64(0); i < perDay; i++ {
				if s := int(i) * tl; s >= start && s < end {
					tt.activity[day*perDay+i] = sim.Activity(b.Activity)
				}
			}
		}
	}
	for i := range tt.activity {
		prev := (int64(i) - 1 + n) % n
		tt.changes[i] = tt.activity[i] != tt.activity[prev]
	}
	return tt
}

// Routine requests activity changes as agents' weekly timetables move on.
type Routine struct {
	cfg        Config
	sim        *sim.Simulator
	timetables []*timetable
}

// New creates the activity routine component.
func New(cfg Config) *Routine {
	return &Routine{cfg: cfg}
}

func (r *Routine) Name() string { return "routine" }

// InitSim assigns agents to routines and places each at a location for the
// activity its routine gives at the start of the run.
func (r *Routine) InitSim(s *sim.Simulator) error {
	r.sim = s
	clock := s.Clock()
	for _, w := range r.cfg.Routines {
		r.timetables = append(r.timetables, newTimetable(w, clock))
	}

	world := s.World()
	now := clock.TicksThroughWeek()
	for _, a := range world.Agents() {
		i := r.routineFor(a)
		if i < 0 {
			continue
		}
		tt := r.timetables[i]
		tt.agents = append(tt.agents, a.ID())

		act := tt.activity[now]
		if locs := a.LocationsFor(act); len(locs) > 0 {
			world.Place(a.ID(), act, sim.ChoiceOf(s.RNG(), locs))
		} else if a.Location() != sim.NoLocation {
			world.Place(a.ID(), act, a.Location())
		}
	}
	for _, tt := range r.timetables {
		logrus.Infof("Routine %s: %d agents", tt.name, len(tt.agents))
	}

	sim.Listen(s.Bus(), r.Name(), r.onTick)
	return nil
}

func (r *Routine) routineFor(a *sim.Agent) int {
	for i, w := range r.cfg.Routines {
		if w.covers(a.Age()) {
			return i
		}
	}
	return -1
}

func (r *Routine) onTick(ev sim.Tick) {
	now := ev.Clock.TicksThroughWeek()
	world := r.sim.World()
	for _, tt := range r.timetables {
		if !tt.changes[now] {
			continue
		}
		act := tt.activity[now]
		for _, id := range tt.agents {
			if world.Agent(id).Activity() != act {
				r.sim.Bus().Publish(sim.ActivityRequest{Agent: id, Activity: act})
			}
		}
	}
}

// ActivityAt returns the activity the named routine gives at tick-of-week i.
func (r *Routine) ActivityAt(name string, i int64) (sim.Activity, bool) {
	for _, tt := range r.timetables {
		if tt.name == name {
			return tt.activity[i], true
		}
	}
	return "", false
}
