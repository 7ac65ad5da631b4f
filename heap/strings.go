package heap

// StringTable interns runtime strings produced by the READ opcode and the
// constant pool's PUSH_STRING resolution, mirroring the original VM's split
// between a dedicated `StringsHeap` and the generic object heap (see
// SPEC_FULL.md §9.5). Interning means two `READ`s that happen to produce the
// same bytes, or the same pool string pushed twice, share one heap object —
// exercising the same object identity tests assert on for constant-pool
// strings.
type StringTable struct {
	h       *Heap
	interned map[string]Ref
}

// NewStringTable creates a table backed by h.
func NewStringTable(h *Heap) *StringTable {
	return &StringTable{h: h, interned: make(map[string]Ref)}
}

// Intern returns the Ref of the heap string object for s, allocating one on
// first use and reusing it afterward.
func (t *StringTable) Intern(s string) Ref {
	if ref, ok := t.interned[s]; ok {
		if obj, err := t.h.Get(ref); err == nil && obj.Kind == KindString {
			return ref
		}
		// The previous interned object was swept; fall through and
		// re-allocate so interning survives a GC cycle.
	}
	ref := t.h.EmplaceString(s)
	t.interned[s] = ref
	return ref
}
