package finny

import (
	"errors"
	"fmt"
)

// Structural errors. These indicate a violated invariant and are always
// surfaced to the caller of Start/Dispatch, never silently ignored.
var (
	// ErrNotStarted is returned by Dispatch before Start, or after Stop.
	ErrNotStarted = errors.New("finny: machine not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("finny: machine already started")

	// ErrQueueOverflow is returned when the event queue capacity is
	// exceeded. When it happens while draining, the dispatch call is
	// aborted and the queue is cleared.
	ErrQueueOverflow = errors.New("finny: event queue overflow")

	// ErrTimerAlreadyArmed is returned when a state's timer is armed
	// twice within the same occupancy.
	ErrTimerAlreadyArmed = errors.New("finny: timer already armed")

	// ErrHookFailed wraps a guard, action, entry or exit hook error.
	// It aborts the remaining cascade for the current event only;
	// subsequent queued events are still attempted.
	ErrHookFailed = errors.New("finny: hook failed")

	// ErrUnknownTransitionTarget is an assembly-time error reported by
	// Builder.Build for transitions naming states that do not exist.
	ErrUnknownTransitionTarget = errors.New("finny: unknown transition target")
)

// HookStage names the hook kind that failed.
type HookStage int

const (
	StageGuard HookStage = iota
	StageAction
	StageEntry
	StageExit
)

func (s HookStage) String() string {
	switch s {
	case StageGuard:
		return "guard"
	case StageAction:
		return "action"
	case StageEntry:
		return "entry"
	case StageExit:
		return "exit"
	}
	return "unknown"
}

// HookError reports a failing hook together with where it fired.
// errors.Is(err, ErrHookFailed) holds for every HookError.
type HookError struct {
	Stage  HookStage
	Region RegionID
	State  StateID
	Event  EventID
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("finny: %s hook failed in state %d (region %d, event %d): %v",
		e.Stage, e.State, e.Region, e.Event, e.Err)
}

func (e *HookError) Unwrap() []error {
	return []error{ErrHookFailed, e.Err}
}
