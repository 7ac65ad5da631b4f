package heap

// RootSource is implemented by whatever owns the live frames (the
// callstack package) so the collector can walk every ref-typed slot
// currently reachable from an operand stack or a locals area without the
// heap package depending on callstack (which would be a cycle, since
// callstack frames are windows over an arena the interpreter also hands to
// natives that allocate on the heap).
//
// WalkRoots must call visit once for every ref-typed slot's current value,
// across every live frame, per spec.md §4.4 step 2: "conservative scanning
// of ref-typed slots only" — the compiler emits *_REF opcodes distinctly
// from *_Q_WORD so the interpreter (and hence callstack) can track which
// slots are references.
type RootSource interface {
	WalkRoots(visit func(Ref))
}

// Run performs one mark-sweep cycle:
//  1. bump the cycle tag (objects marked this cycle carry it; anything
//     else is garbage),
//  2. walk every live root and transitively mark reachable objects,
//  3. sweep: free any non-sentinel object whose mark does not match the
//     new cycle tag.
//
// Run never runs mid-opcode: callers (the `std::memory::gc` native, or the
// interpreter's optional heap-growth trigger) only ever call it between
// dispatch steps, per spec.md §4.4 and §5.
func (h *Heap) Run(roots RootSource) Stats {
	cycle := h.nextCycle()

	var toVisit []Ref
	mark := func(r Ref) {
		if r == 0 || int(r) >= len(h.objects) {
			return
		}
		obj := &h.objects[r]
		if obj.freed() || obj.mark == cycle {
			return
		}
		obj.mark = cycle
		toVisit = append(toVisit, r)
	}

	roots.WalkRoots(mark)

	for len(toVisit) > 0 {
		r := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		obj := &h.objects[r]
		if obj.Kind == KindVector {
			for _, child := range obj.Vec {
				mark(child)
			}
		}
	}

	stats := Stats{ScannedBefore: h.LiveCount()}
	for i := 1; i < len(h.objects); i++ {
		obj := &h.objects[i]
		if obj.freed() {
			continue
		}
		if obj.mark != cycle {
			*obj = Object{mark: freedMark}
			stats.Freed++
		}
	}
	stats.ScannedAfter = stats.ScannedBefore - stats.Freed
	return stats
}

// Stats summarizes one collection cycle, used by vmlog to report GC
// activity.
type Stats struct {
	ScannedBefore int
	ScannedAfter  int
	Freed         int
}
