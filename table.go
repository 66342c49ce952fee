package finny

import "time"

// TimerSpec binds a state to a one-shot duration. The timer is armed on
// entry into the state and disarmed on exit; expiry synthesizes an event
// of type Event carrying a Timeout payload.
type TimerSpec struct {
	Duration time.Duration
	Event    EventID
}

// SubmachineSpec associates a host state with a fully independent child
// machine. The child owns its own StateStore and regions but shares the
// parent's Context by reference. When the child's Terminal state becomes
// active, the engine posts an event of type Completion into the parent's
// queue so the parent can transition out of the host state.
type SubmachineSpec struct {
	Table      *TransitionTable
	Terminal   StateID
	Completion EventID
}

// StateSpec is the static description of one state. States are enumerated
// at assembly time and never created or destroyed at runtime; they are
// only active or inactive per region.
type StateSpec struct {
	ID         StateID
	Name       string
	Region     RegionID
	Entry      Action
	Exit       Action
	Timer      *TimerSpec
	Submachine *SubmachineSpec
}

// Candidate is one (guard, action, target) alternative of a transition.
// A nil Guard is unconditional. Target == StateNone marks an internal
// transition: the action runs but no exit/entry hooks fire and the state
// does not change.
type Candidate struct {
	Guard  Guard
	Action Action
	Target StateID
}

// TransitionSpec describes the ordered candidate list for one
// (source state, event type) pair. The first candidate whose guard
// evaluates true wins; if none do, the event is unhandled for the
// source's region.
type TransitionSpec struct {
	Source     StateID
	Event      EventID
	Candidates []Candidate
}

// RegionSpec is an ordered set of mutually exclusive states. Exactly one
// is active at any observation point between dispatches.
type RegionSpec struct {
	ID      RegionID
	Name    string
	Initial StateID
	States  []StateID
}

type transitionKey struct {
	source StateID
	event  EventID
}

// TransitionTable is the immutable, validated description of a machine:
// states, regions, transitions, timers and submachine bindings. It is
// produced by Builder.Build (or Config.Build) and consumed read-only by
// the Dispatcher for the lifetime of the engine instance.
type TransitionTable struct {
	name        string
	states      []StateSpec
	regions     []RegionSpec
	transitions []TransitionSpec

	byStateEvent map[transitionKey]int
	eventNames   map[string]EventID
	eventByID    []string
	stateByName  map[string]StateID
}

// Name returns the machine name given to the Builder.
func (t *TransitionTable) Name() string { return t.name }

// States returns the number of states in the table.
func (t *TransitionTable) States() int { return len(t.states) }

// Regions returns the number of orthogonal regions.
func (t *TransitionTable) Regions() int { return len(t.regions) }

// State returns the spec for id, or nil if out of range.
func (t *TransitionTable) State(id StateID) *StateSpec {
	if id < 0 || int(id) >= len(t.states) {
		return nil
	}
	return &t.states[id]
}

// Region returns the spec for id, or nil if out of range.
func (t *TransitionTable) Region(id RegionID) *RegionSpec {
	if id < 0 || int(id) >= len(t.regions) {
		return nil
	}
	return &t.regions[id]
}

// StateName resolves an ID back to its declared name for diagnostics.
func (t *TransitionTable) StateName(id StateID) string {
	if s := t.State(id); s != nil {
		return s.Name
	}
	return ""
}

// StateID resolves a declared state name.
func (t *TransitionTable) StateID(name string) (StateID, bool) {
	id, ok := t.stateByName[name]
	return id, ok
}

// RegionID resolves a declared region name.
func (t *TransitionTable) RegionID(name string) (RegionID, bool) {
	for i := range t.regions {
		if t.regions[i].Name == name {
			return t.regions[i].ID, true
		}
	}
	return RegionNone, false
}

// EventID resolves a declared event name.
func (t *TransitionTable) EventID(name string) (EventID, bool) {
	id, ok := t.eventNames[name]
	return id, ok
}

// EventName resolves an event ID back to its declared name.
func (t *TransitionTable) EventName(id EventID) string {
	if id <= 0 || int(id) >= len(t.eventByID) {
		return ""
	}
	return t.eventByID[id]
}

// Event constructs an Event by declared name. Unknown names yield the
// zero Event, which no transition matches.
func (t *TransitionTable) Event(name string, payload any) Event {
	id, ok := t.eventNames[name]
	if !ok {
		return Event{}
	}
	return Event{ID: id, Payload: payload}
}

// Lookup returns the transition declared for (source, event), or nil.
func (t *TransitionTable) Lookup(source StateID, event EventID) *TransitionSpec {
	idx, ok := t.byStateEvent[transitionKey{source, event}]
	if !ok {
		return nil
	}
	return &t.transitions[idx]
}

// Declares reports whether state has any transition for event.
func (t *TransitionTable) Declares(state StateID, event EventID) bool {
	_, ok := t.byStateEvent[transitionKey{state, event}]
	return ok
}
