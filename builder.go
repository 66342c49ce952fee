package finny

import (
	"fmt"
	"log/slog"
	"time"
)

// Builder is the fluent authoring front-end for a machine. It assigns
// state and event IDs deterministically in declaration order and runs a
// validation pass when Build is called, so the resulting TransitionTable
// is statically checked before any Dispatcher is constructed.
type Builder struct {
	name   string
	logger *slog.Logger

	states  []StateSpec
	regions []RegionSpec

	stateByName map[string]StateID
	eventNames  map[string]EventID
	eventByID   []string

	pending    []pendingTransition
	pendingIdx map[transitionKey]int

	initialNames []string // per region, resolved at Build
	warnings     []string
	errs         []error
}

type pendingCandidate struct {
	guard    Guard
	action   Action
	target   string // "" for internal transitions
	internal bool
}

type pendingTransition struct {
	source     StateID
	event      EventID
	candidates []pendingCandidate
}

// RegionBuilder scopes state declarations to one orthogonal region.
type RegionBuilder struct {
	b  *Builder
	id RegionID
}

// StateBuilder configures a single state.
type StateBuilder struct {
	rb *RegionBuilder
	id StateID
}

// NewBuilder creates a builder for a machine with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:        name,
		logger:      slog.Default(),
		stateByName: make(map[string]StateID),
		eventNames:  make(map[string]EventID),
		eventByID:   []string{""}, // EventID 0 is EventNone
		pendingIdx:  make(map[transitionKey]int),
	}
}

// Logger sets the logger used for validation warnings. Defaults to
// slog.Default().
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Event pre-declares an event name, assigning its ID. Required only for
// events the machine never consumes itself but forwards into hosted
// submachines; events mentioned in transitions are registered implicitly.
func (b *Builder) Event(name string) *Builder {
	b.eventID(name)
	return b
}

// Region declares an orthogonal region with its initial state name. The
// initial state may be declared afterwards; it is resolved at Build time.
// Regions are evaluated in declaration order during dispatch.
func (b *Builder) Region(name, initial string) *RegionBuilder {
	id := RegionID(len(b.regions))
	b.regions = append(b.regions, RegionSpec{ID: id, Name: name, Initial: StateNone})
	b.initialNames = append(b.initialNames, initial)
	return &RegionBuilder{b: b, id: id}
}

// State declares a state within the region. State names are unique across
// the whole machine.
func (rb *RegionBuilder) State(name string) *StateBuilder {
	b := rb.b
	if id, exists := b.stateByName[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate state %q", name))
		return &StateBuilder{rb: rb, id: id}
	}
	id := StateID(len(b.states))
	b.stateByName[name] = id
	b.states = append(b.states, StateSpec{ID: id, Name: name, Region: rb.id})
	b.regions[rb.id].States = append(b.regions[rb.id].States, id)
	return &StateBuilder{rb: rb, id: id}
}

// eventID returns the existing ID for an event name or assigns the next
// sequential one. Deterministic: IDs follow first-mention order.
func (b *Builder) eventID(name string) EventID {
	if id, ok := b.eventNames[name]; ok {
		return id
	}
	id := EventID(len(b.eventByID))
	b.eventNames[name] = id
	b.eventByID = append(b.eventByID, name)
	return id
}

func (b *Builder) addCandidate(source StateID, event EventID, c pendingCandidate) {
	key := transitionKey{source, event}
	idx, ok := b.pendingIdx[key]
	if !ok {
		idx = len(b.pending)
		b.pendingIdx[key] = idx
		b.pending = append(b.pending, pendingTransition{source: source, event: event})
	}
	b.pending[idx].candidates = append(b.pending[idx].candidates, c)
}

// Entry sets the state's entry hook.
func (sb *StateBuilder) Entry(action Action) *StateBuilder {
	sb.rb.b.states[sb.id].Entry = action
	return sb
}

// Exit sets the state's exit hook.
func (sb *StateBuilder) Exit(action Action) *StateBuilder {
	sb.rb.b.states[sb.id].Exit = action
	return sb
}

// Timer binds a one-shot timer to the state. It is armed on entry and
// disarmed on exit; expiry posts the state's timeout event, consumed by
// transitions declared with OnTimeout.
func (sb *StateBuilder) Timer(d time.Duration) *StateBuilder {
	b := sb.rb.b
	state := &b.states[sb.id]
	if state.Timer != nil {
		b.errs = append(b.errs, fmt.Errorf("state %q declares two timers", state.Name))
		return sb
	}
	if d <= 0 {
		b.errs = append(b.errs, fmt.Errorf("state %q timer duration must be positive", state.Name))
		return sb
	}
	state.Timer = &TimerSpec{
		Duration: d,
		Event:    b.eventID("timeout:" + state.Name),
	}
	return sb
}

// On adds a transition candidate for the event, in declaration order.
// Repeated calls for the same event append further candidates; the first
// whose guard evaluates true wins. A nil guard is unconditional.
func (sb *StateBuilder) On(event, target string, guard Guard, action Action) *StateBuilder {
	b := sb.rb.b
	b.addCandidate(sb.id, b.eventID(event), pendingCandidate{
		guard:  guard,
		action: action,
		target: target,
	})
	return sb
}

// OnInternal adds an internal transition candidate: the action runs but
// no exit/entry hooks fire and the region's state is unchanged.
func (sb *StateBuilder) OnInternal(event string, guard Guard, action Action) *StateBuilder {
	b := sb.rb.b
	b.addCandidate(sb.id, b.eventID(event), pendingCandidate{
		guard:    guard,
		action:   action,
		internal: true,
	})
	return sb
}

// OnTimeout adds a transition candidate for the state's timeout event.
// The state must also declare a Timer; Build rejects the table otherwise.
func (sb *StateBuilder) OnTimeout(target string, guard Guard, action Action) *StateBuilder {
	b := sb.rb.b
	state := &b.states[sb.id]
	b.addCandidate(sb.id, b.eventID("timeout:"+state.Name), pendingCandidate{
		guard:  guard,
		action: action,
		target: target,
	})
	return sb
}

// Submachine binds an independently built child machine to this state.
// terminal names the child state whose activation signals completion;
// completion names the event posted into the parent when it does. The
// child is constructed on entry into this state and torn down on exit.
func (sb *StateBuilder) Submachine(child *TransitionTable, terminal, completion string) *StateBuilder {
	b := sb.rb.b
	state := &b.states[sb.id]
	if state.Submachine != nil {
		b.errs = append(b.errs, fmt.Errorf("state %q binds two submachines", state.Name))
		return sb
	}
	if child == nil {
		b.errs = append(b.errs, fmt.Errorf("state %q binds a nil submachine", state.Name))
		return sb
	}
	term, ok := child.StateID(terminal)
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("state %q: submachine %q has no terminal state %q",
			state.Name, child.Name(), terminal))
		return sb
	}
	state.Submachine = &SubmachineSpec{
		Table:      child,
		Terminal:   term,
		Completion: b.eventID(completion),
	}
	return sb
}

// Warnings returns static-analysis findings from the last Build call:
// dead guard candidates after an unconditional one, and timers whose
// timeout event no transition consumes.
func (b *Builder) Warnings() []string {
	return b.warnings
}

// Build runs the validation pass and freezes the table. The table is
// immutable afterwards; no transition, guard or action can be added or
// removed at runtime.
func (b *Builder) Build() (*TransitionTable, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.regions) == 0 {
		return nil, fmt.Errorf("machine %q declares no regions", b.name)
	}
	b.warnings = b.warnings[:0]

	// Resolve per-region initial states.
	for i := range b.regions {
		region := &b.regions[i]
		if len(region.States) == 0 {
			return nil, fmt.Errorf("region %q declares no states", region.Name)
		}
		id, ok := b.stateByName[b.initialNames[i]]
		if !ok || b.states[id].Region != region.ID {
			return nil, fmt.Errorf("region %q: initial state %q not declared in region",
				region.Name, b.initialNames[i])
		}
		region.Initial = id
	}

	// Resolve transition targets and flatten candidates.
	transitions := make([]TransitionSpec, 0, len(b.pending))
	index := make(map[transitionKey]int, len(b.pending))
	for _, p := range b.pending {
		spec := TransitionSpec{Source: p.source, Event: p.event}
		source := &b.states[p.source]
		unconditionalAt := -1
		for i, c := range p.candidates {
			target := StateNone
			if !c.internal {
				id, ok := b.stateByName[c.target]
				if !ok {
					return nil, fmt.Errorf("%w: state %q, event %q -> %q",
						ErrUnknownTransitionTarget, source.Name, b.eventByID[p.event], c.target)
				}
				if b.states[id].Region != source.Region {
					return nil, fmt.Errorf("state %q, event %q: target %q crosses into another region",
						source.Name, b.eventByID[p.event], c.target)
				}
				target = id
			}
			if unconditionalAt >= 0 {
				b.warnings = append(b.warnings, fmt.Sprintf(
					"state %q, event %q: candidate %d is dead code after unconditional candidate %d",
					source.Name, b.eventByID[p.event], i, unconditionalAt))
			}
			if c.guard == nil && unconditionalAt < 0 {
				unconditionalAt = i
			}
			spec.Candidates = append(spec.Candidates, Candidate{
				Guard:  c.guard,
				Action: c.action,
				Target: target,
			})
		}
		index[transitionKey{p.source, p.event}] = len(transitions)
		transitions = append(transitions, spec)
	}

	// Timer/timeout pairing.
	for i := range b.states {
		state := &b.states[i]
		timeoutEvent, hasTimeout := b.eventNames["timeout:"+state.Name]
		declared := false
		if hasTimeout {
			_, declared = index[transitionKey{state.ID, timeoutEvent}]
		}
		if declared && state.Timer == nil {
			return nil, fmt.Errorf("state %q declares a timeout transition but no timer", state.Name)
		}
		if state.Timer != nil && !declared {
			b.warnings = append(b.warnings, fmt.Sprintf(
				"state %q arms a timer but declares no timeout transition", state.Name))
		}
	}

	// Reachability per region, following external transition targets.
	for i := range b.regions {
		region := &b.regions[i]
		visited := make(map[StateID]bool, len(region.States))
		stack := []StateID{region.Initial}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[id] {
				continue
			}
			visited[id] = true
			for _, t := range transitions {
				if t.Source != id {
					continue
				}
				for _, c := range t.Candidates {
					if c.Target != StateNone && !visited[c.Target] {
						stack = append(stack, c.Target)
					}
				}
			}
		}
		for _, id := range region.States {
			if !visited[id] {
				return nil, fmt.Errorf("region %q: state %q is unreachable from initial %q",
					region.Name, b.states[id].Name, b.states[region.Initial].Name)
			}
		}
	}

	for _, w := range b.warnings {
		b.logger.Warn("table validation", "machine", b.name, "finding", w)
	}

	return &TransitionTable{
		name:         b.name,
		states:       b.states,
		regions:      b.regions,
		transitions:  transitions,
		byStateEvent: index,
		eventNames:   b.eventNames,
		eventByID:    b.eventByID,
		stateByName:  b.stateByName,
	}, nil
}
