package asm

import (
	"encoding/binary"
	"fmt"
)

// Op is a MacroAssembler pseudo-opcode. The assembler does not emit
// literal x86/ARM machine code bytes — see DESIGN.md — it emits a
// tag-prefixed record stream recording exactly the operation and
// operands spec.md §4.6 requires, which is what InstructionSelector,
// CallLowering and their tests reason about.
type Op byte

const (
	OpMoveRegReg Op = iota
	OpMoveImmReg
	OpMoveMemReg
	OpMoveRegMem
	OpLea // pointer arithmetic: dst = base + offset
	OpCompareBranch
	OpCall
	OpPush
	OpPop
	OpLoad64
	OpStore64
	OpLoadDouble
	OpStoreDouble
	OpZeroExtend // dst = dst ^ dst
	OpJump
	OpRet
	OpLabel // a no-op marker recording a bound label's position, for disassembly
)

// Instruction is one emitted pseudo-instruction.
type Instruction struct {
	Op   Op
	Args []int64
}

// MacroAssembler accumulates a code buffer and resolves cross-block
// jumps once every block has been emitted, per spec.md §4.6. One
// instance serves one compiled function.
type MacroAssembler struct {
	arch *Architecture

	code    []byte
	instrs  []Instruction
	patches []pendingPatch
}

// NewMacroAssembler returns an assembler targeting arch.
func NewMacroAssembler(arch *Architecture) *MacroAssembler {
	return &MacroAssembler{arch: arch}
}

// Arch returns the target architecture.
func (m *MacroAssembler) Arch() *Architecture { return m.arch }

// Code returns the emitted byte stream. Only meaningful after Finalize.
func (m *MacroAssembler) Code() []byte { return m.code }

// Instructions returns the emitted pseudo-instruction stream, for
// disassembly and tests.
func (m *MacroAssembler) Instructions() []Instruction { return m.instrs }

// Len returns the current length of the code buffer, i.e. the offset
// the next emitted instruction will land at.
func (m *MacroAssembler) Len() int { return len(m.code) }

func (m *MacroAssembler) emit(op Op, args ...int64) int {
	at := len(m.code)
	m.instrs = append(m.instrs, Instruction{Op: op, Args: append([]int64(nil), args...)})
	m.code = append(m.code, byte(op))
	for _, a := range args {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(a))
		m.code = append(m.code, b[:]...)
	}
	return at
}

// operandOffset returns the byte offset of the i'th 8-byte operand of
// the instruction emitted starting at instrStart (1 tag byte, then
// 8 bytes per argument).
func operandOffset(instrStart, i int) int { return instrStart + 1 + i*8 }

func (m *MacroAssembler) patchOperand(offset int, value int64) {
	binary.LittleEndian.PutUint64(m.code[offset:offset+8], uint64(value))
}

// MoveRegToReg emits dst = src.
func (m *MacroAssembler) MoveRegToReg(src, dst Register) {
	m.emit(OpMoveRegReg, int64(src), int64(dst))
}

// MoveImmToReg emits dst = imm.
func (m *MacroAssembler) MoveImmToReg(imm int64, dst Register) {
	m.emit(OpMoveImmReg, imm, int64(dst))
}

// MoveMemToReg emits dst = *(base + offset).
func (m *MacroAssembler) MoveMemToReg(base Register, offset int64, dst Register) {
	m.emit(OpMoveMemReg, int64(base), offset, int64(dst))
}

// MoveRegToMem emits *(base + offset) = src.
func (m *MacroAssembler) MoveRegToMem(src Register, base Register, offset int64) {
	m.emit(OpMoveRegMem, int64(src), int64(base), offset)
}

// Lea emits dst = base + offset (pointer arithmetic, no dereference).
func (m *MacroAssembler) Lea(base Register, offset int64, dst Register) {
	m.emit(OpLea, int64(base), offset, int64(dst))
}

// Cond is an integer comparison used by CompareAndBranch.
type Cond int

const (
	CondEqual Cond = iota
	CondNotEqual
	CondLess
	CondLessEqual
	CondGreater
	CondGreaterEqual
)

// CompareAndBranch emits: compare lhs to rhs under cond, then jump to
// target if true.
func (m *MacroAssembler) CompareAndBranch(cond Cond, lhs, rhs Register, target *Label) {
	at := m.emit(OpCompareBranch, int64(cond), int64(lhs), int64(rhs), 0)
	m.resolveOrPatch(at, 3, target)
}

// Call emits an absolute call to addr (a runtime helper's address).
func (m *MacroAssembler) Call(addr uintptr) {
	m.emit(OpCall, int64(addr))
}

// Push and Pop emit stack push/pop of a single register-wide value.
func (m *MacroAssembler) Push(r Register) { m.emit(OpPush, int64(r)) }
func (m *MacroAssembler) Pop(r Register)  { m.emit(OpPop, int64(r)) }

// Load64 and Store64 move a 64-bit tagged value between memory and a
// register, used when the VM's tagged value fits one machine register.
func (m *MacroAssembler) Load64(base Register, offset int64, dst Register) {
	m.emit(OpLoad64, int64(base), offset, int64(dst))
}
func (m *MacroAssembler) Store64(src Register, base Register, offset int64) {
	m.emit(OpStore64, int64(src), int64(base), offset)
}

// LoadDouble and StoreDouble move a double between memory and the FP
// scratch register.
func (m *MacroAssembler) LoadDouble(base Register, offset int64, dst Register) {
	m.emit(OpLoadDouble, int64(base), offset, int64(dst))
}
func (m *MacroAssembler) StoreDouble(src Register, base Register, offset int64) {
	m.emit(OpStoreDouble, int64(src), int64(base), offset)
}

// ZeroExtend emits dst = dst ^ dst, the self-xor idiom spec.md §4.6
// names for zeroing a register before loading a small immediate (cheaper
// than a full-width immediate move on some architectures).
func (m *MacroAssembler) ZeroExtend(dst Register) {
	m.emit(OpZeroExtend, int64(dst))
}

// Jump emits an unconditional branch to target: a direct branch if
// target is already bound, or a recorded pending patch otherwise.
func (m *MacroAssembler) Jump(target *Label) {
	at := m.emit(OpJump, 0)
	m.resolveOrPatch(at, 0, target)
}

// Ret emits a function return.
func (m *MacroAssembler) Ret() { m.emit(OpRet) }

func (m *MacroAssembler) resolveOrPatch(instrStart, argIndex int, target *Label) {
	off := operandOffset(instrStart, argIndex)
	if target.resolved {
		m.patchOperand(off, int64(target.offset))
		return
	}
	m.patches = append(m.patches, pendingPatch{at: off, label: target})
}

// NewLabel returns a fresh, unresolved label.
func (m *MacroAssembler) NewLabel() *Label { return &Label{} }

// Bind fixes label's offset to the assembler's current position and
// records an OpLabel marker instruction for disassembly.
func (m *MacroAssembler) Bind(label *Label) {
	label.offset = len(m.code)
	label.resolved = true
	m.instrs = append(m.instrs, Instruction{Op: OpLabel, Args: []int64{int64(label.offset)}})
}

// Finalize resolves every pending patch against its now-bound label.
// It is an error for any patch's label to still be unresolved.
func (m *MacroAssembler) Finalize() error {
	for _, p := range m.patches {
		if !p.label.resolved {
			return fmt.Errorf("asm: unresolved jump patch at offset %d", p.at)
		}
		m.patchOperand(p.at, int64(p.label.offset))
	}
	m.patches = nil
	return nil
}

// frameSize returns the prologue's SP adjustment for locals local
// stack slots of sizeof(Value) bytes each (valueSize), per spec.md
// §4.6's frame-shape description.
func frameSize(locals int, valueSize int) int64 {
	return int64(locals) * int64(valueSize)
}

// Prologue emits the standard function entry sequence: push the link
// register (ARM only), push the caller's frame pointer, copy SP into
// FP, reserve locals*valueSize bytes of locals, then save any
// callee-saved scratch registers this architecture's role assignment
// overlaps with the JIT's own scratch usage.
func (m *MacroAssembler) Prologue(locals, valueSize int) {
	a := m.arch
	if a.UsesLinkRegister {
		m.Push(ARM_LR)
	}
	fp := a.Register(RoleStackFrame)
	sp := a.Register(RoleStackPointer)
	m.Push(fp)
	m.MoveRegToReg(sp, fp)
	if size := frameSize(locals, valueSize); size > 0 {
		m.Lea(sp, -size, sp)
	}
	if a.HasCalleeSaved() {
		for r := a.CalleeSavedFirst(); r <= a.CalleeSavedLast(); r++ {
			m.Push(r)
		}
	}
}

// Epilogue reverses Prologue.
func (m *MacroAssembler) Epilogue() {
	a := m.arch
	if a.HasCalleeSaved() {
		for r := a.CalleeSavedLast(); r >= a.CalleeSavedFirst(); r-- {
			m.Pop(r)
		}
	}
	fp := a.Register(RoleStackFrame)
	sp := a.Register(RoleStackPointer)
	m.MoveRegToReg(fp, sp)
	m.Pop(fp)
	if a.UsesLinkRegister {
		m.Pop(ARM_LR)
	}
	m.Ret()
}
