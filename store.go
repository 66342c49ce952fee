package finny

// StateStore holds the currently active state per region as an index into
// the TransitionTable's state list. Fixed capacity, sized to the region
// count at construction; no allocation afterwards.
type StateStore struct {
	active []StateID
}

// NewStateStore creates a store for the given region count. All regions
// start with no active state until the Dispatcher enters the initial
// configuration.
func NewStateStore(regions int) *StateStore {
	store := &StateStore{active: make([]StateID, regions)}
	for i := range store.active {
		store.active[i] = StateNone
	}
	return store
}

// Active returns the active state of a region. The second result is false
// for out-of-range regions and during the transient instant of a
// transition when no state is active.
func (s *StateStore) Active(region RegionID) (StateID, bool) {
	if region < 0 || int(region) >= len(s.active) {
		return StateNone, false
	}
	id := s.active[region]
	return id, id != StateNone
}

// Set records the active state of a region.
func (s *StateStore) Set(region RegionID, state StateID) {
	if region < 0 || int(region) >= len(s.active) {
		return
	}
	s.active[region] = state
}

// Clear marks a region as having no active state (the transient instant
// between exit and entry).
func (s *StateStore) Clear(region RegionID) {
	s.Set(region, StateNone)
}

// Regions returns the fixed region count.
func (s *StateStore) Regions() int {
	return len(s.active)
}
