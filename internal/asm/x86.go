package asm

import "encoding/binary"

// x86-32 general-purpose registers.
const (
	X86_AX Register = iota
	X86_CX
	X86_DX
	X86_BX
	X86_SP
	X86_BP
	X86_SI
	X86_DI
	X86_XMM0
)

// X86 is the 32-bit cdecl Architecture: no register-passed arguments
// (RegisterArgumentCount is 0, every helper argument goes on the
// stack), return value in eax, esi reserved for Context, edi scratch.
// cdecl callee-saved registers (ebx, esi, edi, ebp) must be preserved
// by the prologue/epilogue, per spec.md §4.6's "x86-32, ARM" callee-save
// step — esi/edi here double as Context/scratch, so only ebx is an
// extra callee-saved register the JIT must actually push/pop.
var X86 = &Architecture{
	Name:                  "386",
	IntSize:               4,
	PointerSize:           4,
	RegisterArgumentCount: 0,
	ByteOrder:             binary.LittleEndian,
	roles: [numRoles]Register{
		RoleStackFrame:   X86_BP,
		RoleStackPointer: X86_SP,
		RoleContext:      X86_SI,
		RoleReturnValue:  X86_AX,
		RoleScratch:      X86_DI,
		RoleFPScratch:    X86_XMM0,
	},
	argRegs:          nil,
	calleeSavedFirst: X86_BX,
	calleeSavedLast:  X86_BX,
	hasCalleeSaved:   true,
	names: map[Register]string{
		X86_AX: "eax", X86_CX: "ecx", X86_DX: "edx", X86_BX: "ebx",
		X86_SP: "esp", X86_BP: "ebp", X86_SI: "esi", X86_DI: "edi",
		X86_XMM0: "xmm0",
	},
}
