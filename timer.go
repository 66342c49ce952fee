package finny

import (
	"sync"
	"time"
)

// TimerService arms and disarms the one-shot timers bound to states.
// A timer is armed on entry into its state and disarmed on exit, so it is
// armed for at most one occupancy interval at a time; re-entering the
// state re-arms it. Expiry may fire on a runtime timer goroutine, so the
// handoff into the event queue goes through the queue's synchronized Push.
type TimerService struct {
	machine   string
	table     *TransitionTable
	queue     *EventQueue
	inspector Inspector

	mu    sync.Mutex
	armed []*time.Timer // indexed by StateID, nil when idle
}

func newTimerService(machine string, table *TransitionTable, queue *EventQueue, inspector Inspector) *TimerService {
	return &TimerService{
		machine:   machine,
		table:     table,
		queue:     queue,
		inspector: inspector,
		armed:     make([]*time.Timer, table.States()),
	}
}

// Arm schedules the expiry for a state's declared timer. Arming a state
// whose timer is already pending within the same occupancy returns
// ErrTimerAlreadyArmed. States without a timer spec are a no-op here;
// the Builder guarantees timeout transitions only exist alongside specs.
func (s *TimerService) Arm(state StateID) error {
	spec := s.table.State(state)
	if spec == nil || spec.Timer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed[state] != nil {
		return ErrTimerAlreadyArmed
	}
	event := spec.Timer.Event
	s.armed[state] = time.AfterFunc(spec.Timer.Duration, func() {
		s.fire(state, event)
	})
	s.inspector.TimerArmed(s.machine, state, spec.Timer.Duration)
	return nil
}

// fire synthesizes the timeout event. The armed check under the mutex
// makes Disarm authoritative: a timer stopped after its goroutine was
// scheduled but before it acquired the lock produces no event.
func (s *TimerService) fire(state StateID, event EventID) {
	s.mu.Lock()
	if s.armed[state] == nil {
		s.mu.Unlock()
		return
	}
	s.armed[state] = nil
	s.mu.Unlock()

	evt := Event{ID: event, Payload: Timeout{State: state}}
	if err := s.queue.Push(evt); err != nil {
		return // queue full; the next dispatch surfaces the overflow
	}
	s.inspector.QueuePushed(s.machine, evt)
}

// Disarm cancels a pending expiry, if any. Safe to call for states with
// no timer or no pending expiry.
func (s *TimerService) Disarm(state StateID) {
	s.mu.Lock()
	timer := s.armed[state]
	s.armed[state] = nil
	s.mu.Unlock()
	if timer == nil {
		return
	}
	timer.Stop()
	s.inspector.TimerDisarmed(s.machine, state)
}

// DisarmAll cancels every pending expiry. Called on Stop.
func (s *TimerService) DisarmAll() {
	for id := range s.armed {
		s.Disarm(StateID(id))
	}
}

// Armed reports whether the state's timer is pending.
func (s *TimerService) Armed(state StateID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(state) < len(s.armed) && state >= 0 && s.armed[state] != nil
}
