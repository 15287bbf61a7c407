package heap

// Value is the runtime's tagged-value representation: either an
// inline scalar or a pointer into the managed heap. It stands in for
// the object model's real tagged value (out of scope per spec.md
// §1); the collector only needs to know whether a Value carries a
// heap pointer, and if so, what it points at.
type Value struct {
	Ptr *HeapItem
}

// IsPointer reports whether v carries a live heap reference.
func (v Value) IsPointer() bool { return v.Ptr != nil }
