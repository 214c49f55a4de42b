package sim

import "github.com/sirupsen/logrus"

// DeferredEventPool publishes events a fixed number of ticks in the future.
// Entries due on the same tick fire in the order they were added. There is
// no cancellation: consumers check state when the event fires.
type DeferredEventPool struct {
	bus     *Bus
	clock   *Clock
	pending map[int64][]Event
	size    int
}

// NewDeferredEventPool creates a pool that fires on every Tick published on
// bus. owner names the pool's tick subscription.
func NewDeferredEventPool(bus *Bus, clock *Clock, owner string) *DeferredEventPool {
	p := &DeferredEventPool{
		bus:     bus,
		clock:   clock,
		pending: make(map[int64][]Event),
	}
	Listen(bus, owner, func(ev Tick) { p.Fire(ev.T) })
	return p
}

// Add schedules ev to be published once, on tick T()+ticksFromNow. A delay
// below one tick cannot fire on the tick being dispatched, so it is clamped:
// the event fires on tick T()+1 and a warning is logged.
func (p *DeferredEventPool) Add(ticksFromNow int64, ev Event) {
	if ticksFromNow < 1 {
		logrus.Warnf("deferred %s with delay %d ticks moved to next tick", ev.Topic(), ticksFromNow)
		ticksFromNow = 1
	}
	at := p.clock.T() + ticksFromNow
	p.pending[at] = append(p.pending[at], ev)
	p.size++
}

// Fire publishes and discards every entry due at tick t.
func (p *DeferredEventPool) Fire(t int64) {
	due, ok := p.pending[t]
	if !ok {
		return
	}
	delete(p.pending, t)
	p.size -= len(due)
	for _, ev := range due {
		p.bus.Publish(ev)
	}
}

// Len returns the number of events still waiting to fire.
func (p *DeferredEventPool) Len() int { return p.size }
