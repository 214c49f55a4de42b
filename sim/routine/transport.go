package routine

import (
	"fmt"
	"math"
	"time"

	"github.com/abmlux/episim/sim"
)

const hoursInDay = 24

// TransportConfig is the public transport timetable: the number of units in
// service in each hour of a week day and of a weekend day, for the real
// population. Counts are scaled by the world's scale factor and clamped to
// at least one unit.
type TransportConfig struct {
	LocationType    string    `yaml:"pt_location_type"`
	UnitsWeekDay    []float64 `yaml:"units_available_week_day"`
	UnitsWeekendDay []float64 `yaml:"units_available_weekend_day"`
}

// Validate checks the timetable.
func (c TransportConfig) Validate() error {
	if c.LocationType == "" {
		return fmt.Errorf("pt_location_type is required")
	}
	for name, units := range map[string][]float64{
		"units_available_week_day":    c.UnitsWeekDay,
		"units_available_weekend_day": c.UnitsWeekendDay,
	} {
		if len(units) != hoursInDay {
			return fmt.Errorf("%s needs %d hourly entries, got %d", name, hoursInDay, len(units))
		}
		for _, u := range units {
			if u < 0 {
				return fmt.Errorf("%s: negative unit count %v", name, u)
			}
		}
	}
	return nil
}

// Transport puts public transport units in and out of service through the
// day and announces each change with a TransportAvailability event. Units
// are brought into service in location ID order.
type Transport struct {
	cfg         TransportConfig
	sim         *sim.Simulator
	units       []sim.LocationID
	inService   int
	scaleFactor float64
}

// NewTransport creates the public transport timetable component.
func NewTransport(cfg TransportConfig) *Transport {
	return &Transport{cfg: cfg}
}

func (tr *Transport) Name() string { return "transport" }

func (tr *Transport) InitSim(s *sim.Simulator) error {
	tr.sim = s
	tr.units = s.World().LocationsOfType(tr.cfg.LocationType)
	tr.inService = len(tr.units)
	tr.scaleFactor = s.World().ScaleFactor()
	sim.Listen(s.Bus(), tr.Name(), tr.onTick)
	return nil
}

func (tr *Transport) wanted(now time.Time) int {
	units := tr.cfg.UnitsWeekDay
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		units = tr.cfg.UnitsWeekendDay
	}
	n := int(math.Ceil(units[now.Hour()] * tr.scaleFactor))
	return min(max(n, 1), len(tr.units))
}

func (tr *Transport) onTick(ev sim.Tick) {
	if len(tr.units) == 0 {
		return
	}
	n := tr.wanted(ev.Clock.Now())
	for i := n; i < tr.inService; i++ {
		tr.sim.Bus().Publish(sim.TransportAvailability{Location: tr.units[i], Available: false})
	}
	for i := tr.inService; i < n; i++ {
		tr.sim.Bus().Publish(sim.TransportAvailability{Location: tr.units[i], Available: true})
	}
	tr.inService = n
}

// InService returns the number of units currently in service.
func (tr *Transport) InService() int { return tr.inService }
