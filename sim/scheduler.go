package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Intervention is a component that can be switched on and off while the
// simulation runs. A disabled intervention stays subscribed to the bus and
// its handlers do nothing.
type Intervention interface {
	Name() string
	Enabled() bool
	SetEnabled(enabled bool)
}

// Toggle implements the enabled flag of an Intervention.
type Toggle struct {
	enabled bool
}

// NewToggle returns a toggle in the given initial state.
func NewToggle(enabled bool) Toggle { return Toggle{enabled: enabled} }

func (t *Toggle) Enabled() bool           { return t.enabled }
func (t *Toggle) SetEnabled(enabled bool) { t.enabled = enabled }

const (
	ActionEnable  = "enable"
	ActionDisable = "disable"
)

// ScheduleEntry switches an intervention on or off at a point in time given
// as exactly one of a tick, a day offset from the epoch, or a calendar date
// (YYYY-MM-DD, midnight in the epoch's location).
type ScheduleEntry struct {
	Tick   *int64   `yaml:"tick,omitempty"`
	Day    *float64 `yaml:"day,omitempty"`
	Date   string   `yaml:"date,omitempty"`
	Action string   `yaml:"action"`
}

// Validate checks that the entry names one time key and a known action.
func (e ScheduleEntry) Validate() error {
	keys := 0
	if e.Tick != nil {
		keys++
	}
	if e.Day != nil {
		keys++
	}
	if e.Date != "" {
		keys++
		if _, err := time.Parse(time.DateOnly, e.Date); err != nil {
			return fmt.Errorf("invalid date %q: %w", e.Date, err)
		}
	}
	if keys != 1 {
		return fmt.Errorf("exactly one of tick, day or date must be set, got %d", keys)
	}
	if e.Action != ActionEnable && e.Action != ActionDisable {
		return fmt.Errorf("unknown action %q; valid: enable, disable", e.Action)
	}
	return nil
}

func (e ScheduleEntry) tick(clock *Clock) int64 {
	switch {
	case e.Tick != nil:
		return *e.Tick
	case e.Day != nil:
		return clock.DaysToTicks(*e.Day)
	default:
		d, _ := time.ParseInLocation(time.DateOnly, e.Date, clock.Epoch().Location())
		return clock.TickForTime(d)
	}
}

type scheduledToggle struct {
	at           int64
	seq          int
	intervention Intervention
	enable       bool
}

// InterventionScheduler enables and disables interventions as the clock
// crosses their scheduled boundaries.
type InterventionScheduler struct {
	entries []scheduledToggle
	next    int
}

// NewInterventionScheduler resolves every schedule against clock. Entries at
// the same tick apply in the order they were given, interventions taken in
// name order.
func NewInterventionScheduler(clock *Clock, schedules map[Intervention][]ScheduleEntry) (*InterventionScheduler, error) {
	owners := make([]Intervention, 0, len(schedules))
	for iv := range schedules {
		owners = append(owners, iv)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].Name() < owners[j].Name() })

	s := &InterventionScheduler{}
	for _, iv := range owners {
		for i, e := range schedules[iv] {
			if err := e.Validate(); err != nil {
				return nil, fmt.Errorf("schedule for %s, entry %d: %w", iv.Name(), i, err)
			}
			s.entries = append(s.entries, scheduledToggle{
				at:           e.tick(clock),
				seq:          len(s.entries),
				intervention: iv,
				enable:       e.Action == ActionEnable,
			})
		}
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		if s.entries[i].at != s.entries[j].at {
			return s.entries[i].at < s.entries[j].at
		}
		return s.entries[i].seq < s.entries[j].seq
	})
	return s, nil
}

// Tick applies every pending entry due at or before t.
func (s *InterventionScheduler) Tick(t int64) {
	for s.next < len(s.entries) && s.entries[s.next].at <= t {
		e := s.entries[s.next]
		s.next++
		if e.intervention.Enabled() != e.enable {
			logrus.Infof("[tick %07d] intervention %s enabled=%t", t, e.intervention.Name(), e.enable)
		}
		e.intervention.SetEnabled(e.enable)
	}
}

// Pending returns the number of entries not yet applied.
func (s *InterventionScheduler) Pending() int { return len(s.entries) - s.next }
