// Package finny is a hierarchical statechart execution engine for reactive
// software. Machines are described ahead of time through the Builder (or a
// YAML Config), validated, and frozen into an immutable TransitionTable.
// A Dispatcher executes events against that table with run-to-completion
// semantics: orthogonal regions, submachines, guards, actions, entry/exit
// hooks, state-local timers and a bounded event queue.
//
// The runtime performs no allocation on the dispatch path: the StateStore
// and EventQueue are pre-sized at assembly time.
package finny

// StateID indexes a state within the TransitionTable's state list.
// IDs are assigned deterministically by the Builder in declaration order.
type StateID int

// RegionID indexes an orthogonal region. A machine with one region is a
// flat FSM.
type RegionID int

// EventID identifies an event type. Payloads carry no identity beyond
// their type and fields.
type EventID int

const (
	// StateNone marks "no state": the transient instant during a
	// transition, and the target of internal transitions.
	StateNone StateID = -1

	// RegionNone is used in Inspector notifications that concern the
	// machine as a whole rather than a single region.
	RegionNone RegionID = -1

	// EventNone is the zero event type. Entry hooks run during Start
	// receive an event with this ID.
	EventNone EventID = 0
)

// Guard is a boolean predicate deciding whether a transition candidate
// applies. Guards must not mutate machine state; they may read the shared
// Context and the active configuration through the HookContext.
type Guard func(hc *HookContext, evt Event, from, to StateID) (bool, error)

// Action is a side-effecting routine run as part of a transition, or as a
// state's entry/exit hook. Actions may post follow-up events via
// HookContext.Post; those are appended to the machine's queue and
// processed after the current event's cascade completes.
type Action func(hc *HookContext, evt Event, from, to StateID) error
