package sim

// Topic identifies a class of bus event. Topics fall into two families:
// requests (a component asking for a state change) and notifications (a
// component announcing a change that already happened).
type Topic int

const (
	TopicActivityRequest Topic = iota
	TopicLocationRequest
	TopicHealthRequest
	TopicGainImmunityRequest
	TopicQuarantineStopRequest
	TopicSecondDoseRequest

	TopicActivityChanged
	TopicLocationChanged
	TopicHealthChanged
	TopicTick
	TopicMidnight
	TopicSimulationStarted
	TopicSimulationEnded
	TopicTransportAvailability

	numTopics
)

var topicNames = [numTopics]string{
	TopicActivityRequest:       "request.agent.activity",
	TopicLocationRequest:       "request.agent.location",
	TopicHealthRequest:         "request.agent.health",
	TopicGainImmunityRequest:   "request.agent.gain_immunity",
	TopicQuarantineStopRequest: "request.quarantine.stop",
	TopicSecondDoseRequest:     "request.vaccination.second_dose",
	TopicActivityChanged:       "notify.agent.activity",
	TopicLocationChanged:       "notify.agent.location",
	TopicHealthChanged:         "notify.agent.health",
	TopicTick:                  "notify.time.tick",
	TopicMidnight:              "notify.time.midnight",
	TopicSimulationStarted:     "notify.time.start_simulation",
	TopicSimulationEnded:       "notify.time.end_simulation",
	TopicTransportAvailability: "notify.pt.availability",
}

func (t Topic) String() string {
	if t < 0 || t >= numTopics {
		return "unknown"
	}
	return topicNames[t]
}

// IsRequest reports whether t belongs to the request family.
func (t Topic) IsRequest() bool { return t >= TopicActivityRequest && t <= TopicSecondDoseRequest }

// Event is the payload of a bus publication. The set of implementations is
// closed: every topic has exactly one event type.
type Event interface {
	Topic() Topic
}

// ActivityRequest asks the simulator to change an agent's activity.
type ActivityRequest struct {
	Agent    AgentID
	Activity Activity
}

// LocationRequest asks the simulator to move an agent.
type LocationRequest struct {
	Agent    AgentID
	Location LocationID
}

// HealthRequest asks the simulator to change an agent's health state.
type HealthRequest struct {
	Agent  AgentID
	Health HealthState
}

// GainImmunityRequest asks the disease model to grant immunity against
// Strains (and, via the immunity matrix, possibly others). Immunity lasts
// Duration ticks unless Permanent is set.
type GainImmunityRequest struct {
	Agent     AgentID
	Strains   []string
	Duration  int64
	Permanent bool
}

// QuarantineStopRequest ends an agent's quarantine if it is still in force.
type QuarantineStopRequest struct {
	Agent AgentID
}

// SecondDoseRequest administers the second dose of Vaccine to Agent.
type SecondDoseRequest struct {
	Agent   AgentID
	Vaccine string
}

// ActivityChanged announces a committed activity change. The new value is
// read from the agent.
type ActivityChanged struct {
	Agent AgentID
	Old   Activity
}

// LocationChanged announces a committed move.
type LocationChanged struct {
	Agent AgentID
	Old   LocationID
}

// HealthChanged announces a committed health state change.
type HealthChanged struct {
	Agent AgentID
	Old   HealthState
}

// Tick is published once per tick after the previous tick's notifications.
type Tick struct {
	Clock *Clock
	T     int64
}

// Midnight is published once per calendar-day boundary.
type Midnight struct {
	Clock *Clock
	T     int64
}

// SimulationStarted is published before the first tick.
type SimulationStarted struct {
	Sim *Simulator
}

// SimulationEnded is published after the last tick.
type SimulationEnded struct {
	Sim *Simulator
}

// TransportAvailability announces that public transport at Location has
// become available or unavailable.
type TransportAvailability struct {
	Location  LocationID
	Available bool
}

func (ActivityRequest) Topic() Topic       { return TopicActivityRequest }
func (LocationRequest) Topic() Topic       { return TopicLocationRequest }
func (HealthRequest) Topic() Topic         { return TopicHealthRequest }
func (GainImmunityRequest) Topic() Topic   { return TopicGainImmunityRequest }
func (QuarantineStopRequest) Topic() Topic { return TopicQuarantineStopRequest }
func (SecondDoseRequest) Topic() Topic     { return TopicSecondDoseRequest }
func (ActivityChanged) Topic() Topic       { return TopicActivityChanged }
func (LocationChanged) Topic() Topic       { return TopicLocationChanged }
func (HealthChanged) Topic() Topic         { return TopicHealthChanged }
func (Tick) Topic() Topic                  { return TopicTick }
func (Midnight) Topic() Topic              { return TopicMidnight }
func (SimulationStarted) Topic() Topic     { return TopicSimulationStarted }
func (SimulationEnded) Topic() Topic       { return TopicSimulationEnded }
func (TransportAvailability) Topic() Topic { return TopicTransportAvailability }
