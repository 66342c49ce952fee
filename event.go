package finny

// Event is a typed, immutable payload posted into the event queue.
// Events are value types; once constructed they must not be mutated.
type Event struct {
	ID      EventID
	Payload any
}

// NewEvent creates an immutable Event. Returned by value for stack
// allocation and copy elision.
func NewEvent(id EventID, payload any) Event {
	return Event{ID: id, Payload: payload}
}

// Timeout is the payload of a synthesized timeout event. It names the
// state whose timer expired.
type Timeout struct {
	State StateID
}

// Completion is the payload of a synthesized submachine completion event.
// It names the parent state hosting the child machine that finished.
type Completion struct {
	Host StateID
}
