// Package sim provides the core of the agent-based epidemic simulator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - event.go: the bus topics and their event types (requests and notifications)
//   - bus.go: the synchronous publish/subscribe router every component talks through
//   - simulator.go: the tick loop, request buffering and the atomic commit step
//
// # Architecture
//
// The sim package owns time, the world and the commit step; the model lives
// in sub-packages that hook onto the bus:
//   - sim/disease/: multi-strain transmission, progression, mutation and immunity
//   - sim/intervention/: quarantine and vaccination, switched by the scheduler
//   - sim/routine/: weekly activity timetables, movement and public transport
//   - sim/scenario/: YAML scenarios, synthetic worlds and wiring
//   - sim/telemetry/: SQLite metric storage
//   - sim/snapshot/: end-of-run agent state files
//   - sim/trace/: infection trace recording and summaries
//
// # Key Invariants
//
// Components never write agent state. They publish requests; the simulator
// buffers them (last write wins per agent and field) and applies them all at
// the end of the tick, keeping the (location, health) index and resident
// counts in step. The resulting notifications are published at the start of
// the next tick, before Tick.
//
// Handlers are registered in a fixed order: components, then the disease
// model, then interventions, then the simulator itself. An intervention can
// therefore consume a request before it is recorded.
package sim
