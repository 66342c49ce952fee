package finny

// RegionManager enumerates the machine's orthogonal regions and routes an
// event to the regions whose current state declares it, either directly
// or through a hosted submachine. Regions with no matching transition are
// left untouched.
type RegionManager struct {
	table   *TransitionTable
	store   *StateStore
	hostFor func(StateID) *SubmachineHost
	scratch []RegionID
}

func newRegionManager(table *TransitionTable, store *StateStore, hostFor func(StateID) *SubmachineHost) *RegionManager {
	return &RegionManager{
		table:   table,
		store:   store,
		hostFor: hostFor,
		scratch: make([]RegionID, 0, table.Regions()),
	}
}

// Route returns the regions affected by the event, in region declaration
// order. The returned slice is reused across calls; callers must not
// retain it.
func (rm *RegionManager) Route(event EventID) []RegionID {
	rm.scratch = rm.scratch[:0]
	for i := 0; i < rm.table.Regions(); i++ {
		region := RegionID(i)
		state, ok := rm.store.Active(region)
		if !ok {
			continue
		}
		if rm.declares(state, event) {
			rm.scratch = append(rm.scratch, region)
		}
	}
	return rm.scratch
}

// declares reports whether the state handles the event type, consulting
// the hosted submachine's active configuration first (innermost-first
// routing) and then the state's own transitions.
func (rm *RegionManager) declares(state StateID, event EventID) bool {
	if host := rm.hostFor(state); host != nil && host.Declares(event) {
		return true
	}
	return rm.table.Declares(state, event)
}
