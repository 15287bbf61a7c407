package jit

import (
	"fmt"

	"github.com/qmlcore/runtime/internal/asm"
)

// ValueSize is the size in bytes of the VM's tagged value
// representation when it fits a single machine register (NaN-boxed
// double or a pointer-width scalar).
const ValueSize = 8

// Helper describes one runtime helper per spec.md §6: a fixed-address,
// C-linkage function taking the execution context as its first
// argument.
type Helper struct {
	Name       string
	Addr       uintptr
	ReturnSize int // 0 for void, else bytes; > RegisterSize means an
	// indirect (hidden first argument) return.
}

// Dest is where CallLowering stores a helper's return value.
type Dest interface{ isDest() }

// RegDest stores the return value directly into a register.
type RegDest struct{ Reg asm.Register }

// MemDest stores the return value into *(Base+Offset).
type MemDest struct {
	Base   asm.Register
	Offset int64
}

func (RegDest) isDest() {}
func (MemDest) isDest() {}

// CallLowering emits the argument-marshalling sequence for a call to a
// runtime helper, per spec.md §4.7.
type CallLowering struct {
	m    *asm.MacroAssembler
	arch *asm.Architecture
}

// NewCallLowering returns a CallLowering emitting into m.
func NewCallLowering(m *asm.MacroAssembler) *CallLowering {
	return &CallLowering{m: m, arch: m.Arch()}
}

// LowerCall emits a call to helper with the given context-register and
// args (not including the implicit context argument, which is always
// argument 0), storing the result (if any) at dest.
//
// Per spec.md §4.7:
//  1. On x86-32, the Context register is caller-saved across calls, so
//     it is pushed before argument setup and restored after.
//  2. If the return type doesn't fit a register, a stack-allocated
//     return slot becomes a synthetic hidden first argument.
//  3. Arguments are assigned right-to-left so the leftmost ends up
//     topmost on the stack; Void args consume no space but still step
//     the register index.
func (cl *CallLowering) LowerCall(helper Helper, ctx asm.Register, args []Expr, dest Dest) error {
	m, a := cl.m, cl.arch

	savedContext := a.Name == "386"
	if savedContext {
		m.Push(ctx)
	}

	indirectReturn := helper.ReturnSize > ValueSize
	var returnSlotOffset int64
	if indirectReturn {
		returnSlotOffset = -int64(helper.ReturnSize)
		m.Lea(a.Register(asm.RoleStackFrame), returnSlotOffset, a.Register(asm.RoleScratch))
	}

	full := make([]Expr, 0, len(args)+2)
	full = append(full, regExpr{reg: ctx}) // the context is always argument 0
	if indirectReturn {
		full = append(full, PointerExpr{Base: a.Register(asm.RoleStackFrame), Offset: returnSlotOffset})
	}
	full = append(full, args...)

	// Assign right-to-left: the stack-bound tail is pushed first so
	// the leftmost stack argument ends up topmost.
	stackArgs := 0
	type assignment struct {
		reg   asm.Register
		onReg bool
	}
	assigns := make([]assignment, len(full))
	regIdx := 0
	for i := range full {
		if _, isVoid := full[i].(voidExpr); isVoid {
			regIdx++
			continue
		}
		if reg, ok := a.RegisterForArgument(regIdx); ok {
			assigns[i] = assignment{reg: reg, onReg: true}
		} else {
			stackArgs++
		}
		regIdx++
	}

	for i := len(full) - 1; i >= 0; i-- {
		if _, isVoid := full[i].(voidExpr); isVoid {
			continue
		}
		as := assigns[i]
		if as.onReg {
			if err := cl.materializeInto(full[i], as.reg); err != nil {
				return fmt.Errorf("jit: argument %d: %w", i, err)
			}
			continue
		}
		if err := cl.pushArg(full[i]); err != nil {
			return fmt.Errorf("jit: argument %d: %w", i, err)
		}
	}

	m.Call(helper.Addr)

	if stackArgs > 0 {
		m.Lea(a.Register(asm.RoleStackPointer), int64(stackArgs)*ValueSize, a.Register(asm.RoleStackPointer))
	}

	if err := cl.storeResult(helper, dest, indirectReturn, returnSlotOffset); err != nil {
		return err
	}

	if savedContext {
		m.Pop(ctx)
	}
	return nil
}

// voidExpr marks an argument slot that consumes an index but no
// register or stack space, per spec.md §4.7 step 3.
type voidExpr struct{}

func (voidExpr) isExpr() {}

// Void is the Void-typed argument placeholder.
var Void Expr = voidExpr{}

// regExpr reads directly from a register (used for the implicit
// context argument).
type regExpr struct{ reg asm.Register }

func (regExpr) isExpr() {}

func (cl *CallLowering) materializeInto(e Expr, dst asm.Register) error {
	m, a := cl.m, cl.arch
	switch v := e.(type) {
	case regExpr:
		if v.reg != dst {
			m.MoveRegToReg(v.reg, dst)
		}
	case ImmExpr:
		m.MoveImmToReg(v.Value, dst)
	case TrustedImm32Expr:
		m.ZeroExtend(dst)
		if v.Value != 0 {
			m.MoveImmToReg(int64(v.Value), dst)
		}
	case TempExpr:
		if v.Temp.IsDouble {
			return fmt.Errorf("double temp %d passed through an integer argument register", v.Temp.Index)
		}
		m.Load64(a.Register(asm.RoleStackFrame), v.Temp.StackOffset, dst)
	case PointerExpr:
		m.Lea(v.Base, v.Offset, dst)
	default:
		return fmt.Errorf("unsupported argument expr %T", e)
	}
	return nil
}

func (cl *CallLowering) pushArg(e Expr) error {
	m, a := cl.m, cl.arch
	scratch := a.Register(asm.RoleScratch)
	if err := cl.materializeInto(e, scratch); err != nil {
		return err
	}
	m.Push(scratch)
	return nil
}

func (cl *CallLowering) storeResult(helper Helper, dest Dest, indirectReturn bool, returnSlotOffset int64) error {
	m, a := cl.m, cl.arch
	if dest == nil || helper.ReturnSize == 0 {
		return nil
	}
	retReg := a.Register(asm.RoleReturnValue)
	if indirectReturn {
		// The callee wrote into the hidden return slot directly; copy
		// it to dest.
		scratch := a.Register(asm.RoleScratch)
		m.Lea(a.Register(asm.RoleStackFrame), returnSlotOffset, scratch)
		switch d := dest.(type) {
		case RegDest:
			m.MoveRegToReg(scratch, d.Reg)
		case MemDest:
			m.MoveRegToMem(scratch, d.Base, d.Offset)
		default:
			return fmt.Errorf("unsupported dest %T", dest)
		}
		return nil
	}
	switch d := dest.(type) {
	case RegDest:
		m.MoveRegToReg(retReg, d.Reg)
	case MemDest:
		m.Store64(retReg, d.Base, d.Offset)
	default:
		return fmt.Errorf("unsupported dest %T", dest)
	}
	return nil
}
