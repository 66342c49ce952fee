package finny

import (
	"log/slog"
	"time"
)

// UnhandledReason distinguishes the two ways an event can be a no-op.
type UnhandledReason int

const (
	// UnhandledNoTransition: no active state declared any transition
	// for the event type.
	UnhandledNoTransition UnhandledReason = iota

	// UnhandledGuardsRejected: a transition was declared but every
	// candidate guard evaluated false.
	UnhandledGuardsRejected
)

func (r UnhandledReason) String() string {
	switch r {
	case UnhandledNoTransition:
		return "no_transition"
	case UnhandledGuardsRejected:
		return "guards_rejected"
	}
	return "unknown"
}

// Inspector receives dispatch notifications for observability. It is a
// pure observer: every method is invoked after the corresponding decision
// is finalized and cannot influence the dispatch outcome. Notifications
// arrive in dispatch order on the dispatching goroutine (queue pushes may
// arrive from event producers). The machine label is the table name;
// submachines share the parent's inspector but report under their own
// table name.
//
// GuardEvaluated fires once per evaluated candidate, in declaration order.
// A candidate with no guard function counts as a guard that always passes
// and reports result true when selected.
type Inspector interface {
	QueuePushed(machine string, evt Event)
	GuardEvaluated(machine string, region RegionID, evt Event, from, to StateID, result bool)
	ActionExecuted(machine string, region RegionID, evt Event, from, to StateID)
	StateExited(machine string, region RegionID, state StateID, evt Event)
	StateEntered(machine string, region RegionID, state StateID, evt Event)
	TimerArmed(machine string, state StateID, d time.Duration)
	TimerDisarmed(machine string, state StateID)
	EventUnhandled(machine string, region RegionID, evt Event, reason UnhandledReason)
}

// NopInspector implements Inspector with no-ops. Embed it to implement
// only the notifications you care about.
type NopInspector struct{}

func (NopInspector) QueuePushed(string, Event)                                       {}
func (NopInspector) GuardEvaluated(string, RegionID, Event, StateID, StateID, bool)  {}
func (NopInspector) ActionExecuted(string, RegionID, Event, StateID, StateID)        {}
func (NopInspector) StateExited(string, RegionID, StateID, Event)                    {}
func (NopInspector) StateEntered(string, RegionID, StateID, Event)                   {}
func (NopInspector) TimerArmed(string, StateID, time.Duration)                       {}
func (NopInspector) TimerDisarmed(string, StateID)                                   {}
func (NopInspector) EventUnhandled(string, RegionID, Event, UnhandledReason)         {}

// MultiInspector fans every notification out to each member in order.
type MultiInspector []Inspector

func (m MultiInspector) QueuePushed(machine string, evt Event) {
	for _, i := range m {
		i.QueuePushed(machine, evt)
	}
}

func (m MultiInspector) GuardEvaluated(machine string, region RegionID, evt Event, from, to StateID, result bool) {
	for _, i := range m {
		i.GuardEvaluated(machine, region, evt, from, to, result)
	}
}

func (m MultiInspector) ActionExecuted(machine string, region RegionID, evt Event, from, to StateID) {
	for _, i := range m {
		i.ActionExecuted(machine, region, evt, from, to)
	}
}

func (m MultiInspector) StateExited(machine string, region RegionID, state StateID, evt Event) {
	for _, i := range m {
		i.StateExited(machine, region, state, evt)
	}
}

func (m MultiInspector) StateEntered(machine string, region RegionID, state StateID, evt Event) {
	for _, i := range m {
		i.StateEntered(machine, region, state, evt)
	}
}

func (m MultiInspector) TimerArmed(machine string, state StateID, d time.Duration) {
	for _, i := range m {
		i.TimerArmed(machine, state, d)
	}
}

func (m MultiInspector) TimerDisarmed(machine string, state StateID) {
	for _, i := range m {
		i.TimerDisarmed(machine, state)
	}
}

func (m MultiInspector) EventUnhandled(machine string, region RegionID, evt Event, reason UnhandledReason) {
	for _, i := range m {
		i.EventUnhandled(machine, region, evt, reason)
	}
}

// SlogInspector logs every notification at debug level.
type SlogInspector struct {
	logger *slog.Logger
}

// NewSlogInspector creates an Inspector writing to the given logger.
// A nil logger falls back to slog.Default().
func NewSlogInspector(logger *slog.Logger) *SlogInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogInspector{logger: logger}
}

func (i *SlogInspector) QueuePushed(machine string, evt Event) {
	i.logger.Debug("queue push", "machine", machine, "event", evt.ID)
}

func (i *SlogInspector) GuardEvaluated(machine string, region RegionID, evt Event, from, to StateID, result bool) {
	i.logger.Debug("guard evaluated", "machine", machine, "region", region,
		"event", evt.ID, "from", from, "to", to, "result", result)
}

func (i *SlogInspector) ActionExecuted(machine string, region RegionID, evt Event, from, to StateID) {
	i.logger.Debug("action executed", "machine", machine, "region", region,
		"event", evt.ID, "from", from, "to", to)
}

func (i *SlogInspector) StateExited(machine string, region RegionID, state StateID, evt Event) {
	i.logger.Debug("state exited", "machine", machine, "region", region,
		"state", state, "event", evt.ID)
}

func (i *SlogInspector) StateEntered(machine string, region RegionID, state StateID, evt Event) {
	i.logger.Debug("state entered", "machine", machine, "region", region,
		"state", state, "event", evt.ID)
}

func (i *SlogInspector) TimerArmed(machine string, state StateID, d time.Duration) {
	i.logger.Debug("timer armed", "machine", machine, "state", state, "duration", d)
}

func (i *SlogInspector) TimerDisarmed(machine string, state StateID) {
	i.logger.Debug("timer disarmed", "machine", machine, "state", state)
}

func (i *SlogInspector) EventUnhandled(machine string, region RegionID, evt Event, reason UnhandledReason) {
	i.logger.Debug("event unhandled", "machine", machine, "region", region,
		"event", evt.ID, "reason", reason.String())
}
