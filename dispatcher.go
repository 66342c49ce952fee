package finny

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Dispatcher lifecycle: Uninitialized → Started (Idle ⇄ Dispatching) →
// Stopped. Dispatching is re-entered only through the event queue, never
// through recursive calls, which bounds execution depth.
const (
	statusUninitialized int32 = iota
	statusIdle
	statusDispatching
	statusStopped
)

// DispatchOutcome summarizes one draining call.
type DispatchOutcome struct {
	// Events is the number of events drained, including events posted
	// by hooks and timer expiries processed in the same call.
	Events int
	// Transitions counts committed external transitions across all
	// regions and submachine levels dispatched from this machine.
	Transitions int
	// Handled counts selected candidates, including internal
	// transitions which change no state.
	Handled int
	// Unhandled counts events that were a no-op for at least the whole
	// machine or one routed region.
	Unhandled int
}

// HookContext is the handle passed to every guard, action, entry and exit
// hook. It exposes the shared Context, a read-only view of the active
// configuration, and event posting for run-to-completion cascades.
type HookContext struct {
	d *Dispatcher
}

// Context returns the machine tree's shared mutable record.
func (hc *HookContext) Context() *Context {
	return hc.d.ctx
}

// Table returns the immutable transition table of the hook's machine.
func (hc *HookContext) Table() *TransitionTable {
	return hc.d.table
}

// Active returns the current state of a region of the hook's machine.
// During a transition the region being switched reports no active state.
func (hc *HookContext) Active(region RegionID) (StateID, bool) {
	return hc.d.store.Active(region)
}

// Post appends an event to the machine's queue. The event is processed
// after the current event's entire cascade finishes. Hooks must never
// call Dispatch directly.
func (hc *HookContext) Post(evt Event) error {
	return hc.d.post(evt)
}

// Dispatcher orchestrates event resolution against an immutable
// TransitionTable: it routes events to affected regions, evaluates guards
// in declaration order, executes exit/action/entry sequences, updates the
// StateStore, recurses into submachines and drains the queue to
// completion before returning.
//
// Dispatch itself is single-threaded: only one event cascade executes at
// a time (concurrent callers serialize). Event production is the only
// admitted concurrency; Post and the TimerService hand events over
// through the synchronized queue.
type Dispatcher struct {
	id        string
	table     *TransitionTable
	ctx       *Context
	logger    *slog.Logger
	inspector Inspector

	queue   *EventQueue
	store   *StateStore
	timers  *TimerService
	regions *RegionManager
	hosts   []*SubmachineHost // indexed by StateID, set while the host state is occupied

	status   atomic.Int32
	overflow atomic.Bool
	runMu    sync.Mutex
	hookCtx  HookContext
	out      DispatchOutcome
}

// Option configures a Dispatcher at assembly time.
type Option func(*Dispatcher)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithInspector registers the observability hook. Registered once at
// assembly time; it receives the notification stream but can never
// influence dispatch decisions.
func WithInspector(inspector Inspector) Option {
	return func(d *Dispatcher) {
		if inspector != nil {
			d.inspector = inspector
		}
	}
}

// WithQueueCapacity sets the fixed event queue capacity. Defaults to
// DefaultQueueCapacity.
func WithQueueCapacity(capacity int) Option {
	return func(d *Dispatcher) {
		d.queue = NewEventQueue(capacity)
	}
}

// New assembles a Dispatcher for the table. ctx may be nil, in which case
// a fresh Context is created. The table must come from Builder.Build (or
// Config.Build) and is treated as immutable.
func New(table *TransitionTable, ctx *Context, opts ...Option) *Dispatcher {
	if ctx == nil {
		ctx = NewContext()
	}
	d := &Dispatcher{
		id:        uuid.NewString(),
		table:     table,
		ctx:       ctx,
		logger:    slog.Default(),
		inspector: NopInspector{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.queue == nil {
		d.queue = NewEventQueue(DefaultQueueCapacity)
	}
	d.store = NewStateStore(table.Regions())
	d.timers = newTimerService(table.Name(), table, d.queue, d.inspector)
	d.hosts = make([]*SubmachineHost, table.States())
	d.regions = newRegionManager(table, d.store, d.hostFor)
	d.hookCtx = HookContext{d: d}
	return d
}

func (d *Dispatcher) hostFor(state StateID) *SubmachineHost {
	if state < 0 || int(state) >= len(d.hosts) {
		return nil
	}
	return d.hosts[state]
}

// ID returns the unique instance identifier, for log correlation.
func (d *Dispatcher) ID() string { return d.id }

// Table returns the dispatcher's immutable table.
func (d *Dispatcher) Table() *TransitionTable { return d.table }

// Context returns the shared mutable record.
func (d *Dispatcher) Context() *Context { return d.ctx }

// Active returns the current state of a region. Between dispatches
// exactly one state is active per region.
func (d *Dispatcher) Active(region RegionID) (StateID, bool) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.store.Active(region)
}

// ActiveName returns the current state's declared name, or "".
func (d *Dispatcher) ActiveName(region RegionID) string {
	id, ok := d.Active(region)
	if !ok {
		return ""
	}
	return d.table.StateName(id)
}

// Start establishes the initial configuration: per region, in declaration
// order, the initial state is entered (entry hook, timer arming,
// submachine start) and any events posted by entry hooks are drained.
// Must be called exactly once before Dispatch.
func (d *Dispatcher) Start() error {
	d.runMu.Lock()
	if !d.status.CompareAndSwap(statusUninitialized, statusDispatching) {
		d.runMu.Unlock()
		return ErrAlreadyStarted
	}
	d.logger.Debug("machine starting", "machine", d.table.Name(), "instance", d.id)
	var firstErr error
	for i := 0; i < d.table.Regions(); i++ {
		region := d.table.Region(RegionID(i))
		if err := d.enterState(region.ID, region.Initial, StateNone, Event{}); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.store.Set(region.ID, region.Initial)
	}
	d.status.Store(statusIdle)
	d.runMu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	_, err := d.drain()
	return err
}

// Dispatch enqueues the event and drains the queue to completion before
// returning. Any event posted by a hook during the drain, or by a timer
// expiry racing it, is processed strictly after the currently draining
// event's entire cascade, in FIFO order.
func (d *Dispatcher) Dispatch(evt Event) (DispatchOutcome, error) {
	switch d.status.Load() {
	case statusUninitialized, statusStopped:
		return DispatchOutcome{}, ErrNotStarted
	}
	if err := d.post(evt); err != nil {
		return DispatchOutcome{}, err
	}
	return d.drain()
}

// Drain processes pending events without a new stimulus, e.g. timeout
// events synthesized since the last dispatch.
func (d *Dispatcher) Drain() (DispatchOutcome, error) {
	switch d.status.Load() {
	case statusUninitialized, statusStopped:
		return DispatchOutcome{}, ErrNotStarted
	}
	return d.drain()
}

// Stop exits the active configuration (submachines innermost first),
// disarms all timers and clears the queue. After Stop, Dispatch returns
// ErrNotStarted. Stopping twice is a no-op.
func (d *Dispatcher) Stop() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	switch d.status.Load() {
	case statusUninitialized:
		return ErrNotStarted
	case statusStopped:
		return nil
	}
	var firstErr error
	for i := d.table.Regions() - 1; i >= 0; i-- {
		region := RegionID(i)
		state, ok := d.store.Active(region)
		if !ok {
			continue
		}
		if err := d.exitState(region, state, StateNone, Event{}); err != nil && firstErr == nil {
			firstErr = err
		}
		d.store.Clear(region)
	}
	d.timers.DisarmAll()
	d.queue.Clear()
	d.status.Store(statusStopped)
	d.logger.Debug("machine stopped", "machine", d.table.Name(), "instance", d.id)
	return firstErr
}

// post enqueues an event and notifies the inspector. An overflow while a
// drain is in progress marks the whole dispatch call as failed.
func (d *Dispatcher) post(evt Event) error {
	if err := d.queue.Push(evt); err != nil {
		if d.status.Load() == statusDispatching {
			d.overflow.Store(true)
		}
		return err
	}
	d.inspector.QueuePushed(d.table.Name(), evt)
	return nil
}

// drain is the run-to-completion loop: it pops and fully processes events
// until the queue is empty. A hook failure aborts the failing event's
// remaining cascade but later queued events are still attempted; a queue
// overflow is fatal to the call and clears the queue.
func (d *Dispatcher) drain() (DispatchOutcome, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.status.Store(statusDispatching)
	defer d.status.CompareAndSwap(statusDispatching, statusIdle)

	d.out = DispatchOutcome{}
	d.overflow.Store(false)
	err := d.drainLoop(nil)
	return d.out, err
}

// dispatchForwarded delivers one parent-originated event and reports
// whether that event itself was consumed, as distinct from anything else
// handled while its cascade drained. The caller flushes any events already
// pending so the answer is attributable to the forwarded event alone.
func (d *Dispatcher) dispatchForwarded(evt Event) (bool, DispatchOutcome, error) {
	switch d.status.Load() {
	case statusUninitialized, statusStopped:
		return false, DispatchOutcome{}, ErrNotStarted
	}
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.status.Store(statusDispatching)
	defer d.status.CompareAndSwap(statusDispatching, statusIdle)

	d.out = DispatchOutcome{}
	d.overflow.Store(false)
	d.inspector.QueuePushed(d.table.Name(), evt)
	d.out.Events++
	consumed, hookErr := d.processEvent(evt)
	if hookErr != nil {
		if errors.Is(hookErr, ErrQueueOverflow) || errors.Is(hookErr, ErrTimerAlreadyArmed) {
			d.queue.Clear()
			return consumed, d.out, hookErr
		}
	}
	if d.overflow.Load() {
		d.queue.Clear()
		return consumed, d.out, ErrQueueOverflow
	}
	err := d.drainLoop(hookErr)
	return consumed, d.out, err
}

// drainLoop pops and fully processes events until the queue and all hosted
// children are quiet. Caller holds runMu and has reset the outcome; hookErr
// carries over a failure already recorded for this call.
func (d *Dispatcher) drainLoop(hookErr error) error {
	for {
		evt, ok := d.queue.Pop()
		if !ok {
			progress, err := d.drainHosts()
			if err != nil {
				if errors.Is(err, ErrQueueOverflow) || errors.Is(err, ErrTimerAlreadyArmed) {
					d.queue.Clear()
					return err
				}
				if hookErr == nil {
					hookErr = err
				}
			}
			if progress {
				continue
			}
			break
		}
		d.out.Events++
		if _, err := d.processEvent(evt); err != nil {
			if errors.Is(err, ErrQueueOverflow) || errors.Is(err, ErrTimerAlreadyArmed) {
				d.queue.Clear()
				return err
			}
			if hookErr == nil {
				hookErr = err
			}
		}
		if d.overflow.Load() {
			d.queue.Clear()
			return ErrQueueOverflow
		}
	}
	return hookErr
}

// drainHosts flushes events sitting in hosted children's queues, e.g.
// timeouts of child-state timers that expired since the last forward.
// Reports whether any child made progress or posted a completion; the
// caller loops until everything is quiet.
func (d *Dispatcher) drainHosts() (bool, error) {
	progress := false
	for state, host := range d.hosts {
		if host == nil {
			continue
		}
		childOutcome, err := host.child.Drain()
		d.out.Transitions += childOutcome.Transitions
		d.out.Handled += childOutcome.Handled
		if childOutcome.Events > 0 {
			progress = true
		}
		if err != nil {
			return progress, err
		}
		if host.terminalReached() {
			completion := Event{
				ID:      host.spec.Completion,
				Payload: Completion{Host: StateID(state)},
			}
			if err := d.post(completion); err != nil {
				return progress, err
			}
			progress = true
		}
	}
	return progress, nil
}

// processEvent resolves one event against the current configuration and
// reports whether any routed region consumed it.
func (d *Dispatcher) processEvent(evt Event) (bool, error) {
	affected := d.regions.Route(evt.ID)
	if len(affected) == 0 {
		d.inspector.EventUnhandled(d.table.Name(), RegionNone, evt, UnhandledNoTransition)
		d.out.Unhandled++
		return false, nil
	}
	consumed := false
	for _, region := range affected {
		regionConsumed, err := d.resolveRegion(region, evt)
		if regionConsumed {
			consumed = true
		}
		if err != nil {
			// Remaining regions of this event's cascade are abandoned;
			// the target state of the failing region is not committed.
			return consumed, err
		}
	}
	return consumed, nil
}

// resolveRegion applies the event to one region: the hosted submachine
// gets it first (innermost-first), then the region's own transition
// candidates in declaration order. Reports whether the event was consumed
// at this level or below.
func (d *Dispatcher) resolveRegion(region RegionID, evt Event) (bool, error) {
	state, ok := d.store.Active(region)
	if !ok {
		return false, nil
	}
	if host := d.hosts[state]; host != nil {
		signal, childOutcome, err := host.Forward(evt)
		d.out.Transitions += childOutcome.Transitions
		d.out.Handled += childOutcome.Handled
		if err != nil {
			return false, err
		}
		switch signal {
		case SignalCompleted:
			completion := Event{
				ID:      host.spec.Completion,
				Payload: Completion{Host: state},
			}
			return true, d.post(completion)
		case SignalHandled:
			return true, nil
		}
	}

	trans := d.table.Lookup(state, evt.ID)
	if trans == nil {
		d.inspector.EventUnhandled(d.table.Name(), region, evt, UnhandledNoTransition)
		d.out.Unhandled++
		return false, nil
	}
	for i := range trans.Candidates {
		cand := &trans.Candidates[i]
		if cand.Guard != nil {
			ok, err := cand.Guard(&d.hookCtx, evt, state, cand.Target)
			if err != nil {
				return false, &HookError{Stage: StageGuard, Region: region, State: state, Event: evt.ID, Err: err}
			}
			d.inspector.GuardEvaluated(d.table.Name(), region, evt, state, cand.Target, ok)
			if !ok {
				continue
			}
		} else {
			// An unconditional candidate is a guard that always passes;
			// it appears in the notification stream like any other.
			d.inspector.GuardEvaluated(d.table.Name(), region, evt, state, cand.Target, true)
		}
		return true, d.fire(region, state, cand, evt)
	}
	d.inspector.EventUnhandled(d.table.Name(), region, evt, UnhandledGuardsRejected)
	d.out.Unhandled++
	return false, nil
}

// fire executes the selected candidate inside one uninterrupted dispatch
// step: exit (innermost first), transition action, entry (outermost
// first). Self-transitions re-run exit and entry; internal transitions
// run only the action.
func (d *Dispatcher) fire(region RegionID, from StateID, cand *Candidate, evt Event) error {
	if cand.Target == StateNone {
		if cand.Action != nil {
			if err := cand.Action(&d.hookCtx, evt, from, StateNone); err != nil {
				return &HookError{Stage: StageAction, Region: region, State: from, Event: evt.ID, Err: err}
			}
			d.inspector.ActionExecuted(d.table.Name(), region, evt, from, StateNone)
		}
		d.out.Handled++
		return nil
	}

	if err := d.exitState(region, from, cand.Target, evt); err != nil {
		return err
	}
	d.store.Clear(region)
	if cand.Action != nil {
		if err := cand.Action(&d.hookCtx, evt, from, cand.Target); err != nil {
			return &HookError{Stage: StageAction, Region: region, State: from, Event: evt.ID, Err: err}
		}
		d.inspector.ActionExecuted(d.table.Name(), region, evt, from, cand.Target)
	}
	if err := d.enterState(region, cand.Target, from, evt); err != nil {
		return err
	}
	d.store.Set(region, cand.Target)
	d.out.Handled++
	d.out.Transitions++
	d.logger.Debug("transition",
		"machine", d.table.Name(), "instance", d.id,
		"region", d.table.Region(region).Name,
		"from", d.table.StateName(from), "to", d.table.StateName(cand.Target),
		"event", d.table.EventName(evt.ID))
	return nil
}

// exitState leaves a state: hosted child first (its active leaves exit
// before the composite), then timer disarm, then the exit hook.
func (d *Dispatcher) exitState(region RegionID, state, to StateID, evt Event) error {
	if host := d.hosts[state]; host != nil {
		d.hosts[state] = nil
		if err := host.Stop(); err != nil {
			return err
		}
	}
	d.timers.Disarm(state)
	spec := d.table.State(state)
	if spec.Exit != nil {
		if err := spec.Exit(&d.hookCtx, evt, state, to); err != nil {
			return &HookError{Stage: StageExit, Region: region, State: state, Event: evt.ID, Err: err}
		}
	}
	d.inspector.StateExited(d.table.Name(), region, state, evt)
	return nil
}

// enterState enters a state: entry hook first (composite before child),
// then timer arming, then submachine construction and start.
func (d *Dispatcher) enterState(region RegionID, state, from StateID, evt Event) error {
	spec := d.table.State(state)
	if spec.Entry != nil {
		if err := spec.Entry(&d.hookCtx, evt, from, state); err != nil {
			return &HookError{Stage: StageEntry, Region: region, State: state, Event: evt.ID, Err: err}
		}
	}
	d.inspector.StateEntered(d.table.Name(), region, state, evt)
	if err := d.timers.Arm(state); err != nil {
		return err
	}
	if spec.Submachine != nil {
		host := newSubmachineHost(d, state, spec.Submachine)
		if err := host.Start(); err != nil {
			return err
		}
		d.hosts[state] = host
		if host.terminalReached() {
			// Child completed during its own start.
			return d.post(Event{ID: spec.Submachine.Completion, Payload: Completion{Host: state}})
		}
	}
	return nil
}

// declaresAnywhere reports whether any region's active state, hosted
// submachines included, declares the event type. Used when routing parent
// events across the submachine boundary.
func (d *Dispatcher) declaresAnywhere(event EventID) bool {
	for i := 0; i < d.table.Regions(); i++ {
		state, ok := d.store.Active(RegionID(i))
		if !ok {
			continue
		}
		if d.regions.declares(state, event) {
			return true
		}
	}
	return false
}

