package finny_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	. "github.com/asytsai/finny"
	"github.com/asytsai/finny/testutil"
)

// buildSwitch is the two-state machine used across lifecycle tests:
// off --toggle--> on --toggle--> off.
func buildSwitch(t *testing.T) *TransitionTable {
	t.Helper()
	b := NewBuilder("switch").Logger(slogt.New(t))
	r := b.Region("main", "off")
	r.State("off").On("toggle", "on", nil, nil)
	r.State("on").On("toggle", "off", nil, nil)
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func TestDispatchBeforeStartFails(t *testing.T) {
	m := New(buildSwitch(t), nil)
	_, err := m.Dispatch(m.Table().Event("toggle", nil))
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	m := New(buildSwitch(t), nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestDispatchAfterStopFails(t *testing.T) {
	m := New(buildSwitch(t), nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	_, err := m.Dispatch(m.Table().Event("toggle", nil))
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted after Stop, got %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("expected second Stop to be a no-op, got %v", err)
	}
}

func TestStartEntersInitialState(t *testing.T) {
	var entryCalled int

	b := NewBuilder("m").Logger(slogt.New(t))
	r := b.Region("main", "a")
	r.State("a").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			entryCalled++
			if evt.ID != EventNone {
				t.Errorf("expected EventNone in initial entry, got %d", evt.ID)
			}
			if from != StateNone {
				t.Errorf("expected from StateNone in initial entry, got %d", from)
			}
			return nil
		}).
		On("go", "b", nil, nil)
	r.State("b")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if entryCalled != 1 {
		t.Errorf("expected entry called 1 time, got %d", entryCalled)
	}
	region, _ := table.RegionID("main")
	if got := m.ActiveName(region); got != "a" {
		t.Errorf("expected active state a, got %q", got)
	}
}

func TestExternalTransitionOrder(t *testing.T) {
	var order []string

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		Exit(func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "exit:a")
			return nil
		}).
		On("go", "b", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "action")
			return nil
		})
	r.State("b").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "entry:b")
			return nil
		})
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	out, err := m.Dispatch(table.Event("go", nil))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"exit:a", "action", "entry:b"}
	if len(order) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, order)
		}
	}
	if out.Transitions != 1 || out.Handled != 1 {
		t.Errorf("expected 1 transition 1 handled, got %+v", out)
	}
}

func TestSelfTransitionRunsExitAndEntry(t *testing.T) {
	var entryCalled, exitCalled int

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			entryCalled++
			return nil
		}).
		Exit(func(hc *HookContext, evt Event, from, to StateID) error {
			exitCalled++
			return nil
		}).
		On("again", "a", nil, nil)
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(table.Event("again", nil)); err != nil {
		t.Fatal(err)
	}
	if entryCalled != 2 {
		t.Errorf("expected entry called 2 times (start + self), got %d", entryCalled)
	}
	if exitCalled != 1 {
		t.Errorf("expected exit called 1 time, got %d", exitCalled)
	}
}

func TestInternalTransitionKeepsState(t *testing.T) {
	var actionCalled, entryCalled, exitCalled int

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			entryCalled++
			return nil
		}).
		Exit(func(hc *HookContext, evt Event, from, to StateID) error {
			exitCalled++
			return nil
		}).
		OnInternal("tick", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			actionCalled++
			if to != StateNone {
				t.Errorf("expected StateNone target for internal transition, got %d", to)
			}
			return nil
		})
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	out, err := m.Dispatch(table.Event("tick", nil))
	if err != nil {
		t.Fatal(err)
	}
	if actionCalled != 1 {
		t.Errorf("expected action called 1 time, got %d", actionCalled)
	}
	if entryCalled != 1 || exitCalled != 0 {
		t.Errorf("expected no re-entry/exit, got entry=%d exit=%d", entryCalled, exitCalled)
	}
	if out.Transitions != 0 || out.Handled != 1 {
		t.Errorf("expected 0 transitions 1 handled, got %+v", out)
	}
}

func TestGuardOrderFirstTrueWins(t *testing.T) {
	var pickedB, pickedC int

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		On("go", "b",
			func(hc *HookContext, evt Event, from, to StateID) (bool, error) { return false, nil },
			func(hc *HookContext, evt Event, from, to StateID) error { pickedB++; return nil }).
		On("go", "c",
			func(hc *HookContext, evt Event, from, to StateID) (bool, error) { return true, nil },
			func(hc *HookContext, evt Event, from, to StateID) error { pickedC++; return nil })
	r.State("b")
	r.State("c")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(table.Event("go", nil)); err != nil {
		t.Fatal(err)
	}
	if pickedB != 0 || pickedC != 1 {
		t.Errorf("expected second candidate to win, got b=%d c=%d", pickedB, pickedC)
	}
	region, _ := table.RegionID("main")
	if got := m.ActiveName(region); got != "c" {
		t.Errorf("expected active state c, got %q", got)
	}
}

func TestUnconditionalCandidateReportsGuardResult(t *testing.T) {
	rec := &testutil.Recorder{}

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").On("go", "b", nil, nil)
	r.State("b")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil, WithInspector(rec))
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if _, err := m.Dispatch(table.Event("go", nil)); err != nil {
		t.Fatal(err)
	}
	// A candidate without a guard function counts as a guard that always
	// passes and appears in the notification stream with result true.
	if len(rec.Guards) != 1 || !rec.Guards[0] {
		t.Errorf("expected one passing guard notification, got %v", rec.Guards)
	}
}

func TestUnhandledReasonsAreDistinct(t *testing.T) {
	rec := &testutil.Recorder{}

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		On("guarded", "b",
			func(hc *HookContext, evt Event, from, to StateID) (bool, error) { return false, nil },
			nil).
		On("go", "b", nil, nil)
	r.State("b")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil, WithInspector(rec))
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	out, err := m.Dispatch(Event{ID: 999})
	if err != nil {
		t.Fatal(err)
	}
	if out.Unhandled != 1 {
		t.Errorf("expected 1 unhandled for unknown event, got %d", out.Unhandled)
	}

	out, err = m.Dispatch(table.Event("guarded", nil))
	if err != nil {
		t.Fatal(err)
	}
	if out.Unhandled != 1 {
		t.Errorf("expected 1 unhandled for rejected guards, got %d", out.Unhandled)
	}

	want := []UnhandledReason{UnhandledNoTransition, UnhandledGuardsRejected}
	if len(rec.Unhandled) != 2 || rec.Unhandled[0] != want[0] || rec.Unhandled[1] != want[1] {
		t.Errorf("expected reasons %v, got %v", want, rec.Unhandled)
	}
}

func TestOrthogonalRegionsResolveIndependently(t *testing.T) {
	b := NewBuilder("m")
	left := b.Region("left", "l1")
	left.State("l1").On("shared", "l2", nil, nil)
	left.State("l2")
	right := b.Region("right", "r1")
	right.State("r1").On("shared", "r2", nil, nil).On("only-right", "r2", nil, nil)
	right.State("r2")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	out, err := m.Dispatch(table.Event("shared", nil))
	if err != nil {
		t.Fatal(err)
	}
	if out.Transitions != 2 {
		t.Errorf("expected both regions to transition, got %d", out.Transitions)
	}
	leftID, _ := table.RegionID("left")
	rightID, _ := table.RegionID("right")
	if m.ActiveName(leftID) != "l2" || m.ActiveName(rightID) != "r2" {
		t.Errorf("expected l2/r2, got %s/%s", m.ActiveName(leftID), m.ActiveName(rightID))
	}
}

func TestUntouchedRegionKeepsState(t *testing.T) {
	b := NewBuilder("m")
	left := b.Region("left", "l1")
	left.State("l1").On("left-only", "l2", nil, nil)
	left.State("l2")
	right := b.Region("right", "r1")
	right.State("r1").On("right-only", "r2", nil, nil)
	right.State("r2")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(table.Event("left-only", nil)); err != nil {
		t.Fatal(err)
	}
	leftID, _ := table.RegionID("left")
	rightID, _ := table.RegionID("right")
	if m.ActiveName(leftID) != "l2" {
		t.Errorf("expected left region in l2, got %q", m.ActiveName(leftID))
	}
	if m.ActiveName(rightID) != "r1" {
		t.Errorf("expected right region untouched in r1, got %q", m.ActiveName(rightID))
	}
}

func TestRunToCompletionCascadeIsFIFO(t *testing.T) {
	var order []string

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").On("go", "b", nil, nil)
	r.State("b").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "entry:b")
			if err := hc.Post(hc.Table().Event("next", nil)); err != nil {
				return err
			}
			return hc.Post(hc.Table().Event("last", nil))
		}).
		On("next", "c", nil, nil)
	r.State("c").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "entry:c")
			return nil
		}).
		On("last", "d", nil, nil)
	r.State("d").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "entry:d")
			return nil
		})
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	out, err := m.Dispatch(table.Event("go", nil))
	if err != nil {
		t.Fatal(err)
	}
	if out.Events != 3 {
		t.Errorf("expected 3 events drained in one call, got %d", out.Events)
	}
	want := []string{"entry:b", "entry:c", "entry:d"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
	region, _ := table.RegionID("main")
	if got := m.ActiveName(region); got != "d" {
		t.Errorf("expected active state d, got %q", got)
	}
}

func TestHookFailureAbortsCascadeOnly(t *testing.T) {
	boom := errors.New("boom")
	var laterHandled int

	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").
		On("fail", "b",
			func(hc *HookContext, evt Event, from, to StateID) (bool, error) {
				return false, boom
			},
			nil).
		On("go", "b", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			laterHandled++
			return nil
		})
	r.State("b")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	_, err = m.Dispatch(table.Event("fail", nil))
	if !errors.Is(err, ErrHookFailed) {
		t.Fatalf("expected ErrHookFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause to survive, got %v", err)
	}
	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Stage != StageGuard {
		t.Errorf("expected guard-stage hook error, got %v", err)
	}

	// The failing transition is not committed and the machine stays usable.
	region, _ := table.RegionID("main")
	if got := m.ActiveName(region); got != "a" {
		t.Errorf("expected machine still in a, got %q", got)
	}
	if _, err := m.Dispatch(table.Event("go", nil)); err != nil {
		t.Fatalf("expected machine usable after hook failure, got %v", err)
	}
	if laterHandled != 1 {
		t.Errorf("expected later event handled, got %d", laterHandled)
	}
	if got := m.ActiveName(region); got != "b" {
		t.Errorf("expected b after recovery, got %q", got)
	}
}

func TestQueueOverflowAbortsAndClears(t *testing.T) {
	b := NewBuilder("m")
	r := b.Region("main", "a")
	r.State("a").On("go", "b", nil, nil)
	r.State("b").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			for i := 0; i < 10; i++ {
				if err := hc.Post(hc.Table().Event("noise", nil)); err != nil {
					return err
				}
			}
			return nil
		}).
		OnInternal("noise", nil, nil)
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil, WithQueueCapacity(4))
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}

	_, err = m.Dispatch(table.Event("go", nil))
	if !errors.Is(err, ErrQueueOverflow) {
		t.Fatalf("expected ErrQueueOverflow, got %v", err)
	}

	// The queue was cleared; the machine accepts new events.
	out, err := m.Dispatch(table.Event("noise", nil))
	if err != nil {
		t.Fatal(err)
	}
	if out.Events != 1 {
		t.Errorf("expected a single fresh event after clear, got %d", out.Events)
	}
}

func TestSharedContextAcrossHooks(t *testing.T) {
	b := NewBuilder("m")
	r := b.Region("main", "idle")
	r.State("idle").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			hc.Context().Add("idle_entries", 1)
			return nil
		}).
		On("start", "running", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			hc.Context().Add("starts", 1)
			return nil
		})
	r.State("running").
		Entry(func(hc *HookContext, evt Event, from, to StateID) error {
			hc.Context().Add("running_entries", 1)
			return nil
		}).
		On("stop", "idle", nil, nil)
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	ctx := NewContext()
	m := New(table, ctx)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Dispatch(table.Event("start", nil)); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Dispatch(table.Event("stop", nil)); err != nil {
			t.Fatal(err)
		}
	}

	if got := ctx.GetInt("idle_entries"); got != 4 {
		t.Errorf("expected 4 idle entries (start + 3 returns), got %d", got)
	}
	if got := ctx.GetInt("running_entries"); got != 3 {
		t.Errorf("expected 3 running entries, got %d", got)
	}
	if got := ctx.GetInt("starts"); got != 3 {
		t.Errorf("expected 3 start actions, got %d", got)
	}
}

func TestDeterministicReplay(t *testing.T) {
	build := func() *TransitionTable {
		b := NewBuilder("m")
		r := b.Region("main", "a")
		r.State("a").On("x", "b", nil, nil).On("y", "c", nil, nil)
		r.State("b").On("x", "c", nil, nil).On("y", "a", nil, nil)
		r.State("c").On("x", "a", nil, nil).On("y", "b", nil, nil)
		table, err := b.Build()
		if err != nil {
			t.Fatal(err)
		}
		return table
	}

	run := func(table *TransitionTable) (string, DispatchOutcome, []string) {
		rec := &testutil.Recorder{}
		m := New(table, nil, WithInspector(rec))
		if err := m.Start(); err != nil {
			t.Fatal(err)
		}
		var total DispatchOutcome
		for _, name := range []string{"x", "x", "y", "x", "y", "y", "x"} {
			out, err := m.Dispatch(table.Event(name, nil))
			if err != nil {
				t.Fatal(err)
			}
			total.Events += out.Events
			total.Transitions += out.Transitions
			total.Handled += out.Handled
			total.Unhandled += out.Unhandled
		}
		region, _ := table.RegionID("main")
		return m.ActiveName(region), total, rec.Trace
	}

	state1, out1, trace1 := run(build())
	state2, out2, trace2 := run(build())
	if state1 != state2 {
		t.Errorf("expected identical final state, got %q and %q", state1, state2)
	}
	if out1 != out2 {
		t.Errorf("expected identical outcome, got %+v and %+v", out1, out2)
	}
	if len(trace1) != len(trace2) {
		t.Fatalf("expected identical notification streams, got %d and %d entries", len(trace1), len(trace2))
	}
	for i := range trace1 {
		if trace1[i] != trace2[i] {
			t.Errorf("notification %d differs: %q vs %q", i, trace1[i], trace2[i])
		}
	}
}

func TestStopExitsActiveStates(t *testing.T) {
	rec := &testutil.Recorder{}

	b := NewBuilder("m")
	left := b.Region("left", "l1")
	left.State("l1").OnInternal("ping", nil, nil)
	right := b.Region("right", "r1")
	right.State("r1").OnInternal("ping", nil, nil)
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil, WithInspector(rec))
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}

	if len(rec.Exited) != 2 {
		t.Fatalf("expected 2 exits on stop, got %d", len(rec.Exited))
	}
	// Regions exit in reverse declaration order.
	r1, _ := table.StateID("r1")
	l1, _ := table.StateID("l1")
	if rec.Exited[0] != r1 || rec.Exited[1] != l1 {
		t.Errorf("expected exit order [r1 l1], got %v", rec.Exited)
	}
}

func TestTimerExpiryDuringDispatchKeepsFIFO(t *testing.T) {
	// A timeout event that lands mid-drain is processed after the events
	// already queued, never before.
	var order []string

	b := NewBuilder("m")
	r := b.Region("main", "wait")
	r.State("wait").
		Timer(20 * time.Millisecond).
		OnTimeout("late", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "timeout")
			return nil
		}).
		OnInternal("slow", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "slow")
			if err := hc.Post(hc.Table().Event("after", nil)); err != nil {
				return err
			}
			time.Sleep(60 * time.Millisecond)
			return nil
		}).
		OnInternal("after", nil, func(hc *HookContext, evt Event, from, to StateID) error {
			order = append(order, "after")
			return nil
		})
	r.State("late")
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	m := New(table, nil)
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Dispatch(table.Event("slow", nil)); err != nil {
		t.Fatal(err)
	}

	want := []string{"slow", "after", "timeout"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}
