package sim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abmlux/episim/sim"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := sim.NewBus()
	var calls []string
	sim.Listen(bus, "first", func(sim.Tick) { calls = append(calls, "first") })
	sim.Listen(bus, "second", func(sim.Tick) { calls = append(calls, "second") })
	sim.Listen(bus, "other", func(sim.Midnight) { calls = append(calls, "other") })

	consumed := bus.Publish(sim.Tick{T: 3})

	assert.False(t, consumed)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, []string{"first", "second"}, bus.Subscribers(sim.TopicTick))
}

func TestBus_ConsumeStopsPropagation(t *testing.T) {
	bus := sim.NewBus()
	var reached []string
	sim.Subscribe(bus, "filter", func(ev sim.LocationRequest) sim.Result {
		reached = append(reached, "filter")
		if ev.Location == 0 {
			return sim.Consume
		}
		return sim.Continue
	})
	sim.Subscribe(bus, "sink", func(sim.LocationRequest) sim.Result {
		reached = append(reached, "sink")
		return sim.Consume
	})

	assert.True(t, bus.Publish(sim.LocationRequest{Agent: 1, Location: 0}))
	assert.Equal(t, []string{"filter"}, reached)

	reached = nil
	assert.True(t, bus.Publish(sim.LocationRequest{Agent: 1, Location: 2}))
	assert.Equal(t, []string{"filter", "sink"}, reached)
}

func TestBus_HandlersMayPublish(t *testing.T) {
	// GIVEN a handler that rewrites a request and republishes it
	bus := sim.NewBus()
	var delivered []sim.LocationID
	sim.Subscribe(bus, "redirect", func(ev sim.LocationRequest) sim.Result {
		if ev.Location == 9 {
			bus.Publish(sim.LocationRequest{Agent: ev.Agent, Location: 1})
			return sim.Consume
		}
		return sim.Continue
	})
	sim.Listen(bus, "record", func(ev sim.LocationRequest) { delivered = append(delivered, ev.Location) })

	// WHEN the rewritten request is published
	bus.Publish(sim.LocationRequest{Agent: 0, Location: 9})

	// THEN only the replacement reaches later subscribers
	assert.Equal(t, []sim.LocationID{1}, delivered)
}

func TestBus_SubscribingDuringDispatch(t *testing.T) {
	bus := sim.NewBus()
	late := 0
	sim.Listen(bus, "early", func(sim.Tick) {
		sim.Listen(bus, "late", func(sim.Tick) { late++ })
	})

	bus.Publish(sim.Tick{})
	assert.Equal(t, 0, late, "added during dispatch")
	bus.Publish(sim.Tick{})
	assert.Equal(t, 1, late)
}

func TestBus_UnknownTopicPanics(t *testing.T) {
	bus := sim.NewBus()
	require.Panics(t, func() {
		bus.Subscribe(sim.Topic(99), "x", func(sim.Event) sim.Result { return sim.Continue })
	})
}

func TestTopic_Families(t *testing.T) {
	for _, ev := range []sim.Event{
		sim.ActivityRequest{}, sim.LocationRequest{}, sim.HealthRequest{},
		sim.GainImmunityRequest{}, sim.QuarantineStopRequest{}, sim.SecondDoseRequest{},
	} {
		assert.True(t, ev.Topic().IsRequest(), ev.Topic().String())
	}
	for _, ev := range []sim.Event{
		sim.ActivityChanged{}, sim.LocationChanged{}, sim.HealthChanged{}, sim.Tick{},
		sim.Midnight{}, sim.SimulationStarted{}, sim.SimulationEnded{}, sim.TransportAvailability{},
	} {
		assert.False(t, ev.Topic().IsRequest(), ev.Topic().String())
	}
	assert.Equal(t, "notify.time.midnight", sim.TopicMidnight.String())
	assert.Equal(t, "unknown", sim.Topic(-1).String())
}
