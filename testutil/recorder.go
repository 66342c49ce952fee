// Package testutil provides test doubles for machine observability.
package testutil

import (
	"fmt"
	"time"

	"github.com/asytsai/finny"
)

// Recorder is an Inspector that appends every notification to exported
// slices, for asserting on dispatch order and reasons. Trace captures the
// full stream across all notification kinds in arrival order, for
// comparing two runs. Not safe for concurrent machines; use one Recorder
// per machine under test.
type Recorder struct {
	finny.NopInspector

	Pushed    []finny.Event
	Entered   []finny.StateID
	Exited    []finny.StateID
	Guards    []bool
	Actions   int
	Armed     []finny.StateID
	Disarmed  []finny.StateID
	Unhandled []finny.UnhandledReason
	Trace     []string
}

func (r *Recorder) QueuePushed(machine string, evt finny.Event) {
	r.Pushed = append(r.Pushed, evt)
	r.trace("push %s %d", machine, evt.ID)
}

func (r *Recorder) GuardEvaluated(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID, result bool) {
	r.Guards = append(r.Guards, result)
	r.trace("guard %s r%d e%d %d->%d %t", machine, region, evt.ID, from, to, result)
}

func (r *Recorder) ActionExecuted(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID) {
	r.Actions++
	r.trace("action %s r%d e%d %d->%d", machine, region, evt.ID, from, to)
}

func (r *Recorder) StateExited(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	r.Exited = append(r.Exited, state)
	r.trace("exit %s r%d s%d e%d", machine, region, state, evt.ID)
}

func (r *Recorder) StateEntered(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	r.Entered = append(r.Entered, state)
	r.trace("enter %s r%d s%d e%d", machine, region, state, evt.ID)
}

func (r *Recorder) TimerArmed(machine string, state finny.StateID, d time.Duration) {
	r.Armed = append(r.Armed, state)
	r.trace("arm %s s%d %s", machine, state, d)
}

func (r *Recorder) TimerDisarmed(machine string, state finny.StateID) {
	r.Disarmed = append(r.Disarmed, state)
	r.trace("disarm %s s%d", machine, state)
}

func (r *Recorder) EventUnhandled(machine string, region finny.RegionID, evt finny.Event, reason finny.UnhandledReason) {
	r.Unhandled = append(r.Unhandled, reason)
	r.trace("unhandled %s r%d e%d %s", machine, region, evt.ID, reason)
}

func (r *Recorder) trace(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}

// Reset clears all recorded notifications.
func (r *Recorder) Reset() {
	r.Pushed = nil
	r.Entered = nil
	r.Exited = nil
	r.Guards = nil
	r.Actions = 0
	r.Armed = nil
	r.Disarmed = nil
	r.Unhandled = nil
	r.Trace = nil
}
