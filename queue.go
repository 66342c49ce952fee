package finny

import "sync"

// DefaultQueueCapacity is used when no WithQueueCapacity option is given.
const DefaultQueueCapacity = 64

// EventQueue is a bounded FIFO of pending events backed by a fixed ring
// buffer: no allocation after construction. Push is safe under concurrent
// producers (external callers, the TimerService); the single consumer is
// the Dispatcher's drain loop. No priority reordering is performed;
// events are processed strictly in post order.
type EventQueue struct {
	mu   sync.Mutex
	buf  []Event
	head int
	size int
}

// NewEventQueue creates a queue with the given fixed capacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{buf: make([]Event, capacity)}
}

// Push appends an event. Returns ErrQueueOverflow when full.
func (q *EventQueue) Push(evt Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == len(q.buf) {
		return ErrQueueOverflow
	}
	q.buf[(q.head+q.size)%len(q.buf)] = evt
	q.size++
	return nil
}

// Pop removes and returns the oldest event. The second result is false
// when the queue is empty.
func (q *EventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return Event{}, false
	}
	evt := q.buf[q.head]
	q.buf[q.head] = Event{} // release payload reference
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return evt, true
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the fixed capacity.
func (q *EventQueue) Cap() int {
	return len(q.buf)
}

// Clear drops all pending events. Called when a drain aborts on overflow.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buf {
		q.buf[i] = Event{}
	}
	q.head = 0
	q.size = 0
}
