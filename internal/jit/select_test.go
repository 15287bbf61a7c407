package jit

import (
	"testing"

	"github.com/qmlcore/runtime/internal/asm"
)

// TestSelectResolvesAllJumpPatches covers seed scenario S7 (projected
// onto the selector): after Select runs over a function with forward
// and backward jumps, Finalize (called by Select) must leave no
// pending patch unresolved, and every Jump/CJump target must land
// within the emitted code's bounds.
func TestSelectResolvesAllJumpPatches(t *testing.T) {
	entry := &BasicBlock{Name: "entry"}
	loop := &BasicBlock{Name: "loop"}
	exit := &BasicBlock{Name: "exit"}

	t0 := &Temp{Index: 0, StackOffset: -8}
	t1 := &Temp{Index: 1, StackOffset: -16}

	entry.Stmts = []Stmt{
		MoveStmt{Dst: t0, Expr: ImmExpr{Value: 0}},
		JumpStmt{Target: loop},
	}
	loop.Stmts = []Stmt{
		CJumpStmt{Cond: asm.CondLess, Left: t0, Right: t1, Then: loop, Else: exit},
	}
	exit.Stmts = []Stmt{
		RetStmt{Expr: TempExpr{Temp: t0}},
	}

	fn := &Function{
		Temps:       []*Temp{t0, t1},
		Blocks:      []*BasicBlock{entry, loop, exit},
		MaxCallArgs: 0,
	}

	m := asm.NewMacroAssembler(asm.AMD64)
	sel := NewInstructionSelector(m, nil, fn)
	if err := sel.Select(); err != nil {
		t.Fatalf("Select: %v", err)
	}

	codeLen := m.Len()
	for _, in := range m.Instructions() {
		if in.Op != asm.OpJump && in.Op != asm.OpCompareBranch {
			continue
		}
		target := in.Args[len(in.Args)-1]
		if target < 0 || int(target) > codeLen {
			t.Errorf("branch target %d out of code bounds [0,%d]", target, codeLen)
		}
	}
}

// TestSelectCallEmitsExceptionCheck covers the InstructionSelector
// side of spec.md §4.8's "after each call, a fast-path checkExceptions
// branches to the enclosing catch scope" rule.
func TestSelectCallEmitsExceptionCheck(t *testing.T) {
	body := &BasicBlock{Name: "body"}
	catch := &BasicBlock{Name: "catch"}
	after := &BasicBlock{Name: "after"}

	dst := &Temp{Index: 0, StackOffset: -8}
	body.Stmts = []Stmt{
		CallStmt{
			Kind:        CallValue,
			Callee:      ImmExpr{Value: 0x1234},
			Args:        []Expr{ImmExpr{Value: 1}},
			Dst:         dst,
			CatchTarget: catch,
		},
		JumpStmt{Target: after},
	}
	catch.Stmts = []Stmt{RetStmt{Expr: ImmExpr{Value: -1}}}
	after.Stmts = []Stmt{RetStmt{Expr: TempExpr{Temp: dst}}}

	fn := &Function{
		Temps:       []*Temp{dst},
		Blocks:      []*BasicBlock{body, catch, after},
		MaxCallArgs: 4,
	}

	helpers := &HelperTable{
		Value:        Helper{Name: "callValue", Addr: 0x9000, ReturnSize: ValueSize},
		GetException: Helper{Name: "getException", Addr: 0x9100, ReturnSize: ValueSize},
	}

	m := asm.NewMacroAssembler(asm.AMD64)
	sel := NewInstructionSelector(m, helpers, fn)
	if err := sel.Select(); err != nil {
		t.Fatalf("Select: %v", err)
	}

	foundCallValue, foundGetException, foundBranch := false, false, false
	for _, in := range m.Instructions() {
		if in.Op == asm.OpCall {
			switch in.Args[0] {
			case 0x9000:
				foundCallValue = true
			case 0x9100:
				foundGetException = true
			}
		}
		if in.Op == asm.OpCompareBranch && asm.Cond(in.Args[0]) == asm.CondNotEqual {
			foundBranch = true
		}
	}
	if !foundCallValue {
		t.Errorf("no call emitted to the Value helper")
	}
	if !foundGetException {
		t.Errorf("no call emitted to GetException after the helper call")
	}
	if !foundBranch {
		t.Errorf("no not-equal branch emitted to the catch target")
	}
}

// TestArgumentAddressForCallOrdering covers spec.md §4.8's scratch
// argument area layout: increasing index must move toward FP (less
// negative / larger offsets), and consecutive slots are one Value
// apart.
func TestArgumentAddressForCallOrdering(t *testing.T) {
	fn := &Function{MaxCallArgs: 3}
	m := asm.NewMacroAssembler(asm.AMD64)
	sel := NewInstructionSelector(m, nil, fn)

	a0 := sel.argumentAddressForCall(0)
	a1 := sel.argumentAddressForCall(1)
	a2 := sel.argumentAddressForCall(2)

	if a1-a0 != ValueSize || a2-a1 != ValueSize {
		t.Errorf("argument slots not evenly spaced by ValueSize: a0=%d a1=%d a2=%d", a0, a1, a2)
	}
	if a2 >= 0 {
		t.Errorf("argument slots must live below the frame pointer, got a2=%d", a2)
	}
}
