package asm

import "github.com/bits-and-blooms/bitset"

// cycleGuard detects re-entrancy into a set of integer-identified
// "currently active" items: include paths, macro call sites, and
// equate names under resolution all reduce to the same "is this ID
// already on the active stack" question. go-corset carries
// bits-and-blooms/bitset as a transitive dependency (its own
// pkg/util/collection/bit.Set is a hand-rolled []uint64, not a wrapper
// around it); this package imports it directly, since a bitset is a
// better fit here than a map[int]bool once IDs are dense small
// integers assigned at first sight, which is true for all three call
// sites (include path table index, macro call-site counter, equate
// registration order).
type cycleGuard struct {
	active *bitset.BitSet
	stack  []uint // active IDs, in push order, for building a cycle message
	names  map[uint]string
}

func newCycleGuard() *cycleGuard {
	return &cycleGuard{active: bitset.New(64), names: make(map[uint]string)}
}

// enter pushes id onto the active set. It reports whether id was
// already active (a cycle).
func (g *cycleGuard) enter(id uint, name string) bool {
	if g.active.Test(id) {
		return true
	}
	g.active.Set(id)
	g.stack = append(g.stack, id)
	g.names[id] = name
	return false
}

// leave pops the most recently entered id.
func (g *cycleGuard) leave(id uint) {
	g.active.Clear(id)
	if n := len(g.stack); n > 0 && g.stack[n-1] == id {
		g.stack = g.stack[:n-1]
	}
}

// chain renders the current active stack as a human-readable cycle
// description, e.g. "a -> b -> c -> a".
func (g *cycleGuard) chain(closingID uint) string {
	s := ""
	for _, id := range g.stack {
		if s != "" {
			s += " -> "
		}
		s += g.names[id]
	}
	if s != "" {
		s += " -> "
	}
	return s + g.names[closingID]
}
