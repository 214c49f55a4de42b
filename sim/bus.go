package sim

import "github.com/sirupsen/logrus"

// Result is returned by a bus handler.
type Result int

const (
	// Continue lets the publication reach the next subscriber.
	Continue Result = iota
	// Consume stops the publication; later subscribers do not see it.
	Consume
)

// Handler reacts to a published event.
type Handler func(Event) Result

type subscription struct {
	owner   string
	handler Handler
}

// Bus is a synchronous, single-threaded publish/subscribe router. Handlers
// for a topic run in subscription order on the publisher's call stack and
// may themselves publish.
type Bus struct {
	subs [numTopics][]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for topic. owner names the subscriber in logs.
func (b *Bus) Subscribe(topic Topic, owner string, handler Handler) {
	if topic < 0 || topic >= numTopics {
		panic("Bus.Subscribe: unknown topic")
	}
	logrus.Debugf("bus: %s subscribed to %s", owner, topic)
	b.subs[topic] = append(b.subs[topic], subscription{owner: owner, handler: handler})
}

// Publish delivers ev to every subscriber of its topic until one consumes
// it. It reports whether the event was consumed.
func (b *Bus) Publish(ev Event) bool {
	// Subscriptions added during dispatch only see later publications.
	subs := b.subs[ev.Topic()]
	for _, s := range subs {
		if s.handler(ev) == Consume {
			return true
		}
	}
	return false
}

// Subscribers returns the owners subscribed to topic, in dispatch order.
func (b *Bus) Subscribers(topic Topic) []string {
	out := make([]string, len(b.subs[topic]))
	for i, s := range b.subs[topic] {
		out[i] = s.owner
	}
	return out
}

// Subscribe registers a handler typed on the concrete event E.
func Subscribe[E Event](b *Bus, owner string, handler func(E) Result) {
	var zero E
	b.Subscribe(zero.Topic(), owner, func(ev Event) Result {
		return handler(ev.(E))
	})
}

// Listen registers a typed handler that never consumes.
func Listen[E Event](b *Bus, owner string, handler func(E)) {
	Subscribe(b, owner, func(ev E) Result {
		handler(ev)
		return Continue
	})
}
