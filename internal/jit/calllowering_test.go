package jit

import (
	"testing"

	"github.com/qmlcore/runtime/internal/asm"
)

// TestLowerCallAMD64ThreeArgs covers seed scenario S4: a helper call
// with three explicit arguments on amd64 must target rsi, rdx and rcx
// with them (rdi carries the implicit context argument) and store a
// register-wide return value into a chosen destination register.
func TestLowerCallAMD64ThreeArgs(t *testing.T) {
	m := asm.NewMacroAssembler(asm.AMD64)
	cl := NewCallLowering(m)
	ctx := asm.AMD64.Register(asm.RoleContext)

	helper := Helper{Name: "add3", Addr: 0x1000, ReturnSize: ValueSize}
	args := []Expr{
		TrustedImm32Expr{Value: 0},
		ImmExpr{Value: 7},
		ImmExpr{Value: 9},
	}
	if err := cl.LowerCall(helper, ctx, args, RegDest{Reg: asm.AMD64_BX}); err != nil {
		t.Fatalf("LowerCall: %v", err)
	}

	var moves []asm.Instruction
	for _, in := range m.Instructions() {
		if in.Op == asm.OpMoveRegReg || in.Op == asm.OpMoveImmReg || in.Op == asm.OpZeroExtend {
			moves = append(moves, in)
		}
	}

	// rdi gets the context (a register move from r14), rsi gets a
	// zero-extended TrustedImm32(0), rdx gets 7, rcx gets 9.
	wantRegArgs := []asm.Register{asm.AMD64_SI, asm.AMD64_DX, asm.AMD64_CX}
	argRegsSeen := map[asm.Register]bool{}
	for _, in := range m.Instructions() {
		switch in.Op {
		case asm.OpMoveImmReg, asm.OpZeroExtend:
			argRegsSeen[asm.Register(in.Args[len(in.Args)-1])] = true
		}
	}
	for _, r := range wantRegArgs {
		if !argRegsSeen[r] {
			t.Errorf("argument register %s never targeted by a move", asm.AMD64.RegisterName(r))
		}
	}

	foundCall := false
	for _, in := range m.Instructions() {
		if in.Op == asm.OpCall && in.Args[0] == 0x1000 {
			foundCall = true
		}
	}
	if !foundCall {
		t.Errorf("no Call instruction emitted to the helper's address")
	}

	foundReturnMove := false
	for _, in := range m.Instructions() {
		if in.Op == asm.OpMoveRegReg && asm.Register(in.Args[0]) == asm.AMD64_AX && asm.Register(in.Args[1]) == asm.AMD64_BX {
			foundReturnMove = true
		}
	}
	if !foundReturnMove {
		t.Errorf("return value not copied from rax into the destination register")
	}
}

func TestLowerCallNoStackAdjustmentWhenAllArgsFitRegisters(t *testing.T) {
	m := asm.NewMacroAssembler(asm.AMD64)
	cl := NewCallLowering(m)
	ctx := asm.AMD64.Register(asm.RoleContext)
	helper := Helper{Addr: 0x2000, ReturnSize: ValueSize}
	if err := cl.LowerCall(helper, ctx, []Expr{ImmExpr{Value: 1}}, nil); err != nil {
		t.Fatalf("LowerCall: %v", err)
	}
	for _, in := range m.Instructions() {
		if in.Op == asm.OpLea {
			if r := asm.Register(in.Args[0]); r == asm.AMD64.Register(asm.RoleStackPointer) {
				t.Errorf("unexpected stack-pointer adjustment when every argument fit in registers")
			}
		}
	}
}

func TestLowerCallX86PushesEverythingOnStack(t *testing.T) {
	m := asm.NewMacroAssembler(asm.X86)
	cl := NewCallLowering(m)
	ctx := asm.X86.Register(asm.RoleContext)
	helper := Helper{Addr: 0x3000, ReturnSize: ValueSize}
	if err := cl.LowerCall(helper, ctx, []Expr{ImmExpr{Value: 5}}, RegDest{Reg: asm.X86_AX}); err != nil {
		t.Fatalf("LowerCall: %v", err)
	}
	pushes := 0
	for _, in := range m.Instructions() {
		if in.Op == asm.OpPush {
			pushes++
		}
	}
	// One save-push of the context (x86-32 only) plus two argument
	// pushes (ctx, then the single explicit int arg).
	if pushes != 3 {
		t.Errorf("pushes = %d, want 3 (1 context save + 2 stack arguments)", pushes)
	}
}

func TestLowerCallIndirectReturn(t *testing.T) {
	m := asm.NewMacroAssembler(asm.AMD64)
	cl := NewCallLowering(m)
	ctx := asm.AMD64.Register(asm.RoleContext)
	helper := Helper{Addr: 0x4000, ReturnSize: 32} // bigger than a register
	if err := cl.LowerCall(helper, ctx, nil, MemDest{Base: asm.AMD64_BX, Offset: 0}); err != nil {
		t.Fatalf("LowerCall: %v", err)
	}
	leaCount := 0
	for _, in := range m.Instructions() {
		if in.Op == asm.OpLea {
			leaCount++
		}
	}
	if leaCount < 2 {
		t.Errorf("lea count = %d, want >= 2 (hidden return slot address computed at least twice)", leaCount)
	}
}
