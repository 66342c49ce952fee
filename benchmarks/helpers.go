// Package benchmarks measures dispatch throughput, transition latency and
// queue behavior of the engine.
package benchmarks

import (
	"fmt"

	"github.com/asytsai/finny"
)

// flipFlop builds the minimal two-state machine: a <-> b on "flip".
func flipFlop() (*finny.TransitionTable, error) {
	b := finny.NewBuilder("flipflop")
	r := b.Region("main", "a")
	r.State("a").On("flip", "b", nil, nil)
	r.State("b").On("flip", "a", nil, nil)
	return b.Build()
}

// selfLoop builds a one-state machine with an internal transition, the
// cheapest possible dispatch.
func selfLoop(action finny.Action) (*finny.TransitionTable, error) {
	b := finny.NewBuilder("selfloop")
	r := b.Region("main", "idle")
	r.State("idle").OnInternal("tick", nil, action)
	return b.Build()
}

// ring builds a single region of n states connected in a cycle, all
// reacting to the same event.
func ring(n int) (*finny.TransitionTable, error) {
	b := finny.NewBuilder("ring")
	r := b.Region("main", "s0")
	for i := 0; i < n; i++ {
		r.State(fmt.Sprintf("s%d", i)).
			On("advance", fmt.Sprintf("s%d", (i+1)%n), nil, nil)
	}
	return b.Build()
}

// orthogonal builds n regions that all consume the same event.
func orthogonal(n int) (*finny.TransitionTable, error) {
	b := finny.NewBuilder("orthogonal")
	for i := 0; i < n; i++ {
		r := b.Region(fmt.Sprintf("r%d", i), fmt.Sprintf("a%d", i))
		r.State(fmt.Sprintf("a%d", i)).On("flip", fmt.Sprintf("b%d", i), nil, nil)
		r.State(fmt.Sprintf("b%d", i)).On("flip", fmt.Sprintf("a%d", i), nil, nil)
	}
	return b.Build()
}
