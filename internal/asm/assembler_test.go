package asm

import "testing"

func TestJumpToBoundLabelIsResolvedImmediately(t *testing.T) {
	m := NewMacroAssembler(AMD64)
	target := m.NewLabel()
	m.Bind(target)
	wantOffset := target.Offset()
	m.Jump(target)

	if len(m.patches) != 0 {
		t.Fatalf("len(patches) = %d, want 0 for a jump to an already-bound label", len(m.patches))
	}
	off := operandOffset(len(m.code)-9, 0) // Jump instr is 1 tag byte + 1 int64 arg
	got := int64(le64(m.code[off : off+8]))
	if got != int64(wantOffset) {
		t.Errorf("jump target = %d, want %d", got, wantOffset)
	}
}

func TestJumpToUnboundLabelIsPatchedOnFinalize(t *testing.T) {
	m := NewMacroAssembler(AMD64)
	target := m.NewLabel()
	m.Jump(target)
	if len(m.patches) != 1 {
		t.Fatalf("len(patches) = %d, want 1 for a jump to an unbound label", len(m.patches))
	}

	m.MoveImmToReg(0, AMD64_AX) // filler so the label binds somewhere else
	m.Bind(target)

	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(m.patches) != 0 {
		t.Errorf("patches not cleared after Finalize")
	}
}

func TestFinalizeFailsOnUnresolvedLabel(t *testing.T) {
	m := NewMacroAssembler(AMD64)
	target := m.NewLabel()
	m.Jump(target)
	if err := m.Finalize(); err == nil {
		t.Fatalf("Finalize() = nil, want an error for a never-bound jump target")
	}
}

func TestCompareAndBranchRecordsPatchForThenTarget(t *testing.T) {
	m := NewMacroAssembler(AMD64)
	then := m.NewLabel()
	m.CompareAndBranch(CondEqual, AMD64_AX, AMD64_CX, then)
	if len(m.patches) != 1 {
		t.Fatalf("len(patches) = %d, want 1", len(m.patches))
	}
	m.Bind(then)
	if err := m.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestPrologueEpilogueAMD64NoCalleeSaved(t *testing.T) {
	m := NewMacroAssembler(AMD64)
	m.Prologue(4, 16)
	m.Epilogue()

	var pushes, pops int
	for _, in := range m.instrs {
		switch in.Op {
		case OpPush:
			pushes++
		case OpPop:
			pops++
		}
	}
	if pushes != pops {
		t.Errorf("pushes = %d, pops = %d, want equal (balanced prologue/epilogue)", pushes, pops)
	}
	if AMD64.HasCalleeSaved() {
		t.Fatalf("AMD64.HasCalleeSaved() = true, want false (sysv gives the JIT enough caller-saved scratch)")
	}
}

func TestPrologueEpilogueARMPushesLinkRegister(t *testing.T) {
	m := NewMacroAssembler(ARM)
	m.Prologue(2, 16)
	m.Epilogue()

	if m.instrs[0].Op != OpPush || Register(m.instrs[0].Args[0]) != ARM_LR {
		t.Fatalf("first instruction = %+v, want Push(LR)", m.instrs[0])
	}
	last := m.instrs[len(m.instrs)-2] // Ret is last; Pop(LR) precedes it
	if last.Op != OpPop || Register(last.Args[0]) != ARM_LR {
		t.Fatalf("second-to-last instruction = %+v, want Pop(LR)", last)
	}
}

func TestRegisterForArgument(t *testing.T) {
	if _, ok := X86.RegisterForArgument(0); ok {
		t.Errorf("X86.RegisterForArgument(0) ok = true, want false (cdecl passes every argument on the stack)")
	}
	if r, ok := AMD64.RegisterForArgument(0); !ok || r != AMD64_DI {
		t.Errorf("AMD64.RegisterForArgument(0) = (%v, %v), want (rdi, true)", r, ok)
	}
	if _, ok := AMD64.RegisterForArgument(6); ok {
		t.Errorf("AMD64.RegisterForArgument(6) ok = true, want false (only 6 argument registers)")
	}
	if r, ok := ARM.RegisterForArgument(3); !ok || r != ARM_R3 {
		t.Errorf("ARM.RegisterForArgument(3) = (%v, %v), want (r3, true)", r, ok)
	}
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
