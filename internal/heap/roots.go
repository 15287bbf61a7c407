package heap

// RootsProvider is the engine-internal root enumeration contract.
// spec.md §1 treats the runtime object model as an external
// collaborator; CollectorCore only needs this hook plus the stack and
// persistent-value roots it owns directly.
type RootsProvider interface {
	VisitRoots(mark func(*HeapItem))
}

// StackRootProvider supplies the execution-stack root range
// [StackBase, StackTop).
type StackRootProvider interface {
	VisitStackRoots(mark func(*HeapItem))
}

// WeakEntry is one slot of the weak table: an external host object
// that keeps a heap reference alive only conditionally.
type WeakEntry struct {
	Target *HeapItem

	// Essential reports whether the host considers this entry
	// essential on its own, independent of any parent chain.
	Essential func() bool

	// Parent returns the entry's parent in the host's object tree,
	// or nil if this entry is a root of that tree.
	Parent func() *WeakEntry

	// Destroy runs when this entry's target turns out to be
	// unreachable at sweep time.
	Destroy func()
}

// WeakTable holds host-originated weak references together with the
// keep-alive rule from spec.md §4.5 step 3: an entry is kept alive if
// it is essential, or if any ancestor in its parent chain is.
type WeakTable struct {
	entries []*WeakEntry
}

// Add registers a new weak entry.
func (w *WeakTable) Add(e *WeakEntry) { w.entries = append(w.entries, e) }

// Entries returns the live (non-nil) entries, in registration order.
func (w *WeakTable) Entries() []*WeakEntry {
	out := make([]*WeakEntry, 0, len(w.entries))
	for _, e := range w.entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (w *WeakTable) keepAlive(e *WeakEntry) bool {
	for cur := e; cur != nil; cur = cur.Parent() {
		if cur.Essential != nil && cur.Essential() {
			return true
		}
	}
	return false
}

// visitMarkRoots marks every entry the keep-alive rule covers.
func (w *WeakTable) visitMarkRoots(mark func(*HeapItem)) {
	for _, e := range w.entries {
		if e == nil || e.Target == nil {
			continue
		}
		if w.keepAlive(e) {
			mark(e.Target)
		}
	}
}

// sweep runs the two-pass pre-sweep described in spec.md §4.5/§5: each
// pass destroys entries whose target did not end up black and nils
// the slot, run twice because destruction hooks may reassign other
// weak slots.
func (w *WeakTable) sweep(isBlack func(*HeapItem) bool) {
	for pass := 0; pass < 2; pass++ {
		for i, e := range w.entries {
			if e == nil || e.Target == nil {
				continue
			}
			if !isBlack(e.Target) {
				if e.Destroy != nil {
					e.Destroy()
				}
				w.entries[i] = nil
			}
		}
	}
}
