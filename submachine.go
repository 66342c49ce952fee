package finny

// SubmachineSignal is the result of forwarding an event into a hosted
// child machine.
type SubmachineSignal int

const (
	// SignalUnhandled: the child's active configuration did not consume
	// the event; the host state's own transitions may still apply.
	SignalUnhandled SubmachineSignal = iota

	// SignalHandled: the child consumed the event.
	SignalHandled

	// SignalCompleted: the child reached its designated terminal state.
	// The parent posts the binding's completion event to its own queue.
	SignalCompleted
)

// SubmachineHost owns a nested machine instance for the duration of one
// occupancy of the hosting state: entering the state constructs and
// starts the child, exiting stops and discards it. The child shares the
// parent's Context by reference and the parent's Inspector and logger,
// but runs its own StateStore, regions, queue and timers.
//
// Parent and child tables assign event IDs independently, so events are
// matched across the boundary by declared name.
type SubmachineHost struct {
	parent    *Dispatcher
	owner     StateID
	spec      *SubmachineSpec
	child     *Dispatcher
	completed bool
}

func newSubmachineHost(parent *Dispatcher, owner StateID, spec *SubmachineSpec) *SubmachineHost {
	child := New(spec.Table, parent.ctx,
		WithLogger(parent.logger),
		WithInspector(parent.inspector),
		WithQueueCapacity(parent.queue.Cap()),
	)
	return &SubmachineHost{parent: parent, owner: owner, spec: spec, child: child}
}

// Start enters the child's initial configuration. The composite's entry
// hook has already run at this point, giving composite-first entry order.
func (h *SubmachineHost) Start() error {
	return h.child.Start()
}

// Stop exits the child's active configuration, innermost first, releasing
// its timers. Called before the composite's own exit hook runs.
func (h *SubmachineHost) Stop() error {
	return h.child.Stop()
}

// Child exposes the hosted machine, for assertions and state inspection.
func (h *SubmachineHost) Child() *Dispatcher {
	return h.child
}

// translate maps a parent event type onto the child's namespace by name.
func (h *SubmachineHost) translate(event EventID) (EventID, bool) {
	name := h.parent.table.EventName(event)
	if name == "" {
		return EventNone, false
	}
	return h.child.table.EventID(name)
}

// Declares reports whether the child's active configuration (recursively)
// declares a transition for the parent event type.
func (h *SubmachineHost) Declares(event EventID) bool {
	childID, ok := h.translate(event)
	if !ok {
		return false
	}
	return h.child.declaresAnywhere(childID)
}

// Forward routes the event into the child exactly as a top-level dispatch
// would, then inspects whether the child reached its terminal state.
// Completion is signalled at most once per occupancy. The child's
// DispatchOutcome is returned so the parent can aggregate it.
//
// Events already sitting in the child's queue, such as expired state
// timers, are flushed first so the handled signal reflects the forwarded
// event itself and not whatever the flush consumed. A forwarded event the
// child's active configuration rejects stays available to the host state's
// own transitions.
func (h *SubmachineHost) Forward(evt Event) (SubmachineSignal, DispatchOutcome, error) {
	childID, ok := h.translate(evt.ID)
	if !ok {
		return SignalUnhandled, DispatchOutcome{}, nil
	}
	flushed, err := h.child.Drain()
	if err != nil {
		return SignalUnhandled, flushed, err
	}
	consumed, outcome, err := h.child.dispatchForwarded(Event{ID: childID, Payload: evt.Payload})
	outcome.Events += flushed.Events
	outcome.Transitions += flushed.Transitions
	outcome.Handled += flushed.Handled
	outcome.Unhandled += flushed.Unhandled
	if err != nil {
		return SignalUnhandled, outcome, err
	}
	if h.terminalReached() {
		return SignalCompleted, outcome, nil
	}
	if consumed {
		return SignalHandled, outcome, nil
	}
	return SignalUnhandled, outcome, nil
}

// terminalReached checks the terminal state's region once; repeat checks
// within the same occupancy stay false so completion fires exactly once.
func (h *SubmachineHost) terminalReached() bool {
	if h.completed {
		return false
	}
	terminal := h.child.table.State(h.spec.Terminal)
	if terminal == nil {
		return false
	}
	active, ok := h.child.store.Active(terminal.Region)
	if !ok || active != h.spec.Terminal {
		return false
	}
	h.completed = true
	return true
}
