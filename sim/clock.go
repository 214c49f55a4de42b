package sim

import (
	"fmt"
	"iter"
	"math"
	"time"
)

const (
	secondsPerDay  = 24 * 60 * 60
	secondsPerWeek = 7 * secondsPerDay
)

// ClockConfig describes the discrete time base of a run.
type ClockConfig struct {
	TickLengthSeconds    int       `yaml:"tick_length_s"`
	SimulationLengthDays float64   `yaml:"simulation_length_days"`
	Epoch                time.Time `yaml:"epoch"`
}

// Validate checks the clock configuration.
func (c ClockConfig) Validate() error {
	if c.TickLengthSeconds <= 0 {
		return fmt.Errorf("tick_length_s must be positive, got %d", c.TickLengthSeconds)
	}
	if secondsPerDay%c.TickLengthSeconds != 0 {
		return fmt.Errorf("tick_length_s must divide a day evenly, got %d", c.TickLengthSeconds)
	}
	if c.SimulationLengthDays <= 0 || math.IsNaN(c.SimulationLengthDays) || math.IsInf(c.SimulationLengthDays, 0) {
		return fmt.Errorf("simulation_length_days must be positive, got %v", c.SimulationLengthDays)
	}
	if int64(c.SimulationLengthDays*float64(secondsPerDay/c.TickLengthSeconds)) < 1 {
		return fmt.Errorf("simulation_length_days %v is shorter than one tick", c.SimulationLengthDays)
	}
	return nil
}

// Clock is the logical time source of a simulation. It holds no reference to
// wall-clock time; Now is derived from the epoch and the elapsed ticks.
type Clock struct {
	cfg             ClockConfig
	ticksInDay      int64
	length          int64
	epochWeekOffset int64
	epochDayOffset  int64 // seconds between the epoch's midnight and the epoch

	t    int64
	next int64
}

// NewClock validates cfg and returns a clock positioned at tick 0.
func NewClock(cfg ClockConfig) (*Clock, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tl := int64(cfg.TickLengthSeconds)
	e := cfg.Epoch
	secondsIntoDay := int64(e.Hour()*3600 + e.Minute()*60 + e.Second())
	// Weeks start on Monday.
	weekday := int64((int(e.Weekday()) + 6) % 7)

	c := &Clock{
		cfg:             cfg,
		ticksInDay:      secondsPerDay / tl,
		length:          int64(cfg.SimulationLengthDays * float64(secondsPerDay/tl)),
		epochWeekOffset: (weekday*secondsPerDay + secondsIntoDay) / tl,
		epochDayOffset:  secondsIntoDay,
	}
	c.Reset()
	return c, nil
}

// Clone returns an independent clock with the same configuration, reset to
// tick 0. Used for one-off iterations that must not disturb the run clock.
func (c *Clock) Clone() *Clock {
	cp := *c
	cp.Reset()
	return &cp
}

// Reset rewinds the clock so the next Advance yields tick 0.
func (c *Clock) Reset() {
	c.t = 0
	c.next = 0
}

// Advance moves to the next tick. It returns false once the simulation
// length has been exhausted.
func (c *Clock) Advance() bool {
	if c.next >= c.length {
		return false
	}
	c.t = c.next
	c.next++
	return true
}

// Ticks resets the clock and yields every tick of the run in order.
func (c *Clock) Ticks() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		c.Reset()
		for c.Advance() {
			if !yield(c.t) {
				return
			}
		}
	}
}

// T returns the current tick.
func (c *Clock) T() int64 { return c.t }

// Length returns the number of ticks in the run.
func (c *Clock) Length() int64 { return c.length }

// TickLengthSeconds returns the duration of one tick.
func (c *Clock) TickLengthSeconds() int { return c.cfg.TickLengthSeconds }

// Epoch returns the calendar time of tick 0.
func (c *Clock) Epoch() time.Time { return c.cfg.Epoch }

// TicksInDay returns the number of ticks in one day.
func (c *Clock) TicksInDay() int64 { return c.ticksInDay }

// TicksInWeek returns the number of ticks in one week.
func (c *Clock) TicksInWeek() int64 { return 7 * c.ticksInDay }

// DaysToTicks converts a duration in days to whole ticks, truncating.
func (c *Clock) DaysToTicks(days float64) int64 {
	return int64(days * float64(c.ticksInDay))
}

// TicksThroughWeek returns the offset of the current tick from Monday 00:00.
func (c *Clock) TicksThroughWeek() int64 {
	return (c.epochWeekOffset + c.t) % c.TicksInWeek()
}

// SecondsElapsed returns the simulated seconds since the epoch.
func (c *Clock) SecondsElapsed() int64 {
	return c.t * int64(c.cfg.TickLengthSeconds)
}

// Now returns the calendar time of the current tick.
func (c *Clock) Now() time.Time {
	return c.cfg.Epoch.Add(time.Duration(c.SecondsElapsed()) * time.Second)
}

// Day returns the number of calendar midnights crossed since the epoch.
func (c *Clock) Day() int64 {
	return (c.epochDayOffset + c.SecondsElapsed()) / secondsPerDay
}

// TickForTime returns the tick at which ts falls, which may be negative or
// beyond the run length.
func (c *Clock) TickForTime(ts time.Time) int64 {
	secs := int64(ts.Sub(c.cfg.Epoch) / time.Second)
	return int64(math.Floor(float64(secs) / float64(c.cfg.TickLengthSeconds)))
}
