package jit

import (
	"fmt"

	"github.com/qmlcore/runtime/internal/asm"
)

// HelperTable resolves the CallKind-specific helper for a Call
// statement, plus the exception-check helper every call site consults
// afterward, per spec.md §6/§4.8.
type HelperTable struct {
	ActivationProperty Helper
	Property           Helper
	Value              Helper
	Element            Helper

	// GetException returns the engine's current exception slot value
	// (zero/null means no pending exception); checkExceptions calls it
	// and compares the result against zero.
	GetException Helper
}

func (h *HelperTable) forKind(kind CallKind) (Helper, error) {
	switch kind {
	case CallActivationProperty:
		return h.ActivationProperty, nil
	case CallProperty:
		return h.Property, nil
	case CallValue:
		return h.Value, nil
	case CallElement:
		return h.Element, nil
	default:
		return Helper{}, fmt.Errorf("jit: unknown call kind %d", kind)
	}
}

// InstructionSelector lowers a Function's basic blocks to native code
// via a MacroAssembler, per spec.md §4.8. One instance serves one
// Function.
type InstructionSelector struct {
	m       *asm.MacroAssembler
	cl      *CallLowering
	helpers *HelperTable
	fn      *Function

	labels map[*BasicBlock]*asm.Label
}

// NewInstructionSelector returns a selector emitting fn's blocks into m
// via helpers.
func NewInstructionSelector(m *asm.MacroAssembler, helpers *HelperTable, fn *Function) *InstructionSelector {
	return &InstructionSelector{
		m:       m,
		cl:      NewCallLowering(m),
		helpers: helpers,
		fn:      fn,
		labels:  make(map[*BasicBlock]*asm.Label, len(fn.Blocks)),
	}
}

// argumentAddressForCall returns the frame-pointer-relative offset of
// the i'th slot of the per-call argument scratch area, per spec.md
// §4.8: the scratch area sits immediately above the locals, and SP is
// lowered by MaxCallArgs*sizeof(Value) once in the prologue so every
// call site can address into it without further adjusting SP.
func (s *InstructionSelector) argumentAddressForCall(i int) int64 {
	return -int64(s.fn.MaxCallArgs-i) * ValueSize
}

func (s *InstructionSelector) labelFor(bb *BasicBlock) *asm.Label {
	if l, ok := s.labels[bb]; ok {
		return l
	}
	l := s.m.NewLabel()
	s.labels[bb] = l
	return l
}

// Select lowers every block of the function, then finalizes the
// assembler so inter-block jump patches resolve.
func (s *InstructionSelector) Select() error {
	a := s.m.Arch()
	s.m.Prologue(len(s.fn.Temps), int(ValueSize))
	if s.fn.MaxCallArgs > 0 {
		sp := a.Register(asm.RoleStackPointer)
		s.m.Lea(sp, -int64(s.fn.MaxCallArgs)*ValueSize, sp)
	}

	for _, bb := range s.fn.Blocks {
		s.m.Bind(s.labelFor(bb))
		for _, st := range bb.Stmts {
			if err := s.visit(st, bb); err != nil {
				return fmt.Errorf("jit: block %s: %w", bb.Name, err)
			}
		}
	}
	return s.m.Finalize()
}

func (s *InstructionSelector) visit(st Stmt, bb *BasicBlock) error {
	switch v := st.(type) {
	case MoveStmt:
		return s.visitMove(v)
	case ExpStmt:
		return s.visitExp(v)
	case JumpStmt:
		s.visitJump(v)
		return nil
	case CJumpStmt:
		s.visitCJump(v)
		return nil
	case RetStmt:
		return s.visitRet(v)
	case EnterStmt:
		return s.visitEnter(v)
	case LeaveStmt:
		s.visitLeave(v)
		return nil
	case CallStmt:
		return s.visitCall(v)
	default:
		return fmt.Errorf("unhandled statement %T", st)
	}
}

// visitMove materializes expr into a register (or the FP scratch
// register for a known-double temp) and stores it to dst's fixed stack
// offset, per spec.md §4.8.
func (s *InstructionSelector) visitMove(v MoveStmt) error {
	a := s.m.Arch()
	fp := a.Register(asm.RoleStackFrame)
	if v.Dst.IsDouble {
		if err := s.materializeDouble(v.Expr); err != nil {
			return err
		}
		s.m.StoreDouble(a.Register(asm.RoleFPScratch), fp, v.Dst.StackOffset)
		return nil
	}
	scratch := a.Register(asm.RoleScratch)
	if err := s.cl.materializeInto(v.Expr, scratch); err != nil {
		return err
	}
	s.m.Store64(scratch, fp, v.Dst.StackOffset)
	return nil
}

func (s *InstructionSelector) materializeDouble(e Expr) error {
	a := s.m.Arch()
	fp := a.Register(asm.RoleStackFrame)
	fpScratch := a.Register(asm.RoleFPScratch)
	t, ok := e.(TempExpr)
	if !ok {
		return fmt.Errorf("double move from non-temp expr %T", e)
	}
	s.m.LoadDouble(fp, t.Temp.StackOffset, fpScratch)
	return nil
}

// visitExp emits expr purely for its side effects; any materialized
// value is discarded.
func (s *InstructionSelector) visitExp(v ExpStmt) error {
	a := s.m.Arch()
	scratch := a.Register(asm.RoleScratch)
	return s.cl.materializeInto(v.Expr, scratch)
}

// visitJump emits a direct branch when the target's label is already
// bound, otherwise records a pending patch (both paths go through
// MacroAssembler.Jump, which does this itself).
func (s *InstructionSelector) visitJump(v JumpStmt) {
	s.m.Jump(s.labelFor(v.Target))
}

// visitCJump compares the two temps and branches to Then on Cond,
// then emits an unconditional jump to Else, even when Else is the
// next block in emission order.
func (s *InstructionSelector) visitCJump(v CJumpStmt) {
	a := s.m.Arch()
	fp := a.Register(asm.RoleStackFrame)
	lhs, rhs := a.Register(asm.RoleScratch), a.Register(asm.RoleReturnValue)
	s.m.Load64(fp, v.Left.StackOffset, lhs)
	s.m.Load64(fp, v.Right.StackOffset, rhs)
	s.m.CompareAndBranch(v.Cond, lhs, rhs, s.labelFor(v.Then))
	s.m.Jump(s.labelFor(v.Else))
}

// visitRet loads expr into the return register (by ABI convention the
// destination is always a register here; an indirect-return helper's
// hidden slot is handled by CallLowering on the caller side) and emits
// the epilogue.
func (s *InstructionSelector) visitRet(v RetStmt) error {
	a := s.m.Arch()
	retReg := a.Register(asm.RoleReturnValue)
	if err := s.cl.materializeInto(v.Expr, retReg); err != nil {
		return err
	}
	s.m.Epilogue()
	return nil
}

func (s *InstructionSelector) visitEnter(v EnterStmt) error {
	a := s.m.Arch()
	ctx := a.Register(asm.RoleContext)
	args := []Expr{}
	if v.Arg != nil {
		args = append(args, v.Arg)
	}
	return s.cl.LowerCall(Helper{Name: "enterScope", Addr: v.HelperAddr, ReturnSize: 0}, ctx, args, nil)
}

func (s *InstructionSelector) visitLeave(v LeaveStmt) {
	a := s.m.Arch()
	ctx := a.Register(asm.RoleContext)
	_ = s.cl.LowerCall(Helper{Name: "leaveScope", Addr: v.HelperAddr, ReturnSize: 0}, ctx, nil, nil)
}

// visitCall classifies the statement by CallKind, materializes its
// arguments into the per-call scratch area starting at
// argumentAddressForCall(0), and emits the helper call described by
// spec.md §4.8. A non-nil CatchTarget emits the fast-path
// checkExceptions branch afterward.
func (s *InstructionSelector) visitCall(v CallStmt) error {
	if s.helpers == nil {
		return fmt.Errorf("jit: call statement with no helper table")
	}
	a := s.m.Arch()
	fp := a.Register(asm.RoleStackFrame)
	scratch := a.Register(asm.RoleScratch)

	argvBase := s.argumentAddressForCall(0)
	for i, arg := range v.Args {
		if err := s.cl.materializeInto(arg, scratch); err != nil {
			return fmt.Errorf("call argument %d: %w", i, err)
		}
		s.m.Store64(scratch, fp, argvBase+int64(i)*ValueSize)
	}
	argv := PointerExpr{Base: fp, Offset: argvBase}
	argc := ImmExpr{Value: int64(len(v.Args))}

	helper, err := s.helpers.forKind(v.Kind)
	if err != nil {
		return err
	}

	var callArgs []Expr
	switch v.Kind {
	case CallActivationProperty:
		callArgs = []Expr{v.Name, argv, argc}
	case CallProperty:
		callArgs = []Expr{v.Base, v.Name, argv, argc}
	case CallValue:
		this := v.This
		if this == nil {
			this = ImmExpr{Value: 0}
		}
		callArgs = []Expr{this, v.Callee, argv, argc}
	case CallElement:
		callArgs = []Expr{v.Base, v.Index, argv, argc}
	}

	ctx := a.Register(asm.RoleContext)
	var dest Dest
	if v.Dst != nil {
		fpReg := a.Register(asm.RoleStackFrame)
		dest = MemDest{Base: fpReg, Offset: v.Dst.StackOffset}
	}
	if err := s.cl.LowerCall(helper, ctx, callArgs, dest); err != nil {
		return err
	}

	if v.CatchTarget != nil {
		s.emitCheckExceptions(v.CatchTarget)
	}
	return nil
}

// emitCheckExceptions emits the fast path spec.md §4.8 requires after
// every call: fetch the engine's exception slot and branch to
// catchTarget if it is non-empty.
func (s *InstructionSelector) emitCheckExceptions(catchTarget *BasicBlock) {
	a := s.m.Arch()
	ctx := a.Register(asm.RoleContext)
	scratch := a.Register(asm.RoleScratch)
	_ = s.cl.LowerCall(s.helpers.GetException, ctx, nil, RegDest{Reg: scratch})
	zero := a.Register(asm.RoleReturnValue)
	s.m.ZeroExtend(zero)
	s.m.CompareAndBranch(asm.CondNotEqual, scratch, zero, s.labelFor(catchTarget))
}
