package asm

import "encoding/binary"

// x86-64 sysv general-purpose registers.
const (
	AMD64_AX Register = iota
	AMD64_CX
	AMD64_DX
	AMD64_BX
	AMD64_SP
	AMD64_BP
	AMD64_SI
	AMD64_DI
	AMD64_R8
	AMD64_R9
	AMD64_R10
	AMD64_R11
	AMD64_R12
	AMD64_R13
	AMD64_R14
	AMD64_R15
	AMD64_XMM0
)

// AMD64 is the x86-64 sysv calling-convention Architecture: 6 integer
// argument registers, return value in rax, r14 reserved for the
// engine's Context pointer, r10/xmm0 as scratch. sysv's caller-saved
// set is generous enough that the JIT needs no callee-saved range.
var AMD64 = &Architecture{
	Name:                  "amd64",
	IntSize:               8,
	PointerSize:           8,
	RegisterArgumentCount: 6,
	ByteOrder:             binary.LittleEndian,
	roles: [numRoles]Register{
		RoleStackFrame:   AMD64_BP,
		RoleStackPointer: AMD64_SP,
		RoleContext:      AMD64_R14,
		RoleReturnValue:  AMD64_AX,
		RoleScratch:      AMD64_R10,
		RoleFPScratch:    AMD64_XMM0,
	},
	argRegs: []Register{AMD64_DI, AMD64_SI, AMD64_DX, AMD64_CX, AMD64_R8, AMD64_R9},
	names: map[Register]string{
		AMD64_AX: "rax", AMD64_CX: "rcx", AMD64_DX: "rdx", AMD64_BX: "rbx",
		AMD64_SP: "rsp", AMD64_BP: "rbp", AMD64_SI: "rsi", AMD64_DI: "rdi",
		AMD64_R8: "r8", AMD64_R9: "r9", AMD64_R10: "r10", AMD64_R11: "r11",
		AMD64_R12: "r12", AMD64_R13: "r13", AMD64_R14: "r14", AMD64_R15: "r15",
		AMD64_XMM0: "xmm0",
	},
}
