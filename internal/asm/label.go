package asm

// Label names a position in the emitted code buffer. It starts
// unresolved; Bind fixes its Offset once the target block has been
// emitted. jump/CJump calls made against an unresolved label record a
// pending patch instead of writing a final branch target, per
// spec.md §4.6's "deferred patching" requirement.
type Label struct {
	resolved bool
	offset   int
}

// Resolved reports whether Bind has been called.
func (l *Label) Resolved() bool { return l.resolved }

// Offset returns l's bound position. Panics if l is not yet resolved.
func (l *Label) Offset() int {
	if !l.resolved {
		panic("asm: Offset() called on an unresolved Label")
	}
	return l.offset
}

type pendingPatch struct {
	at    int // offset of the patch site's 8-byte operand
	label *Label
}
