package asm

import "encoding/binary"

// ARM32 general-purpose registers (AAPCS).
const (
	ARM_R0 Register = iota
	ARM_R1
	ARM_R2
	ARM_R3
	ARM_R4
	ARM_R5
	ARM_R6
	ARM_R7
	ARM_R8
	ARM_R9
	ARM_R10
	ARM_R11 // frame pointer
	ARM_R12
	ARM_SP
	ARM_LR
	ARM_PC
	ARM_D0 // double scratch
)

// ARM is the ARM32 AAPCS Architecture: 4 integer argument registers,
// return value in r0, r9 reserved for Context, r4 scratch, r11 as the
// frame pointer. The prologue additionally pushes the link register
// (UsesLinkRegister) before the frame-pointer push spec.md §4.6
// describes for every architecture.
var ARM = &Architecture{
	Name:                  "arm",
	IntSize:               4,
	PointerSize:           4,
	RegisterArgumentCount: 4,
	ByteOrder:             binary.LittleEndian,
	UsesLinkRegister:      true,
	roles: [numRoles]Register{
		RoleStackFrame:   ARM_R11,
		RoleStackPointer: ARM_SP,
		RoleContext:      ARM_R9,
		RoleReturnValue:  ARM_R0,
		RoleScratch:      ARM_R4,
		RoleFPScratch:    ARM_D0,
	},
	argRegs:          []Register{ARM_R0, ARM_R1, ARM_R2, ARM_R3},
	calleeSavedFirst: ARM_R4,
	calleeSavedLast:  ARM_R10,
	hasCalleeSaved:   true,
	names: map[Register]string{
		ARM_R0: "r0", ARM_R1: "r1", ARM_R2: "r2", ARM_R3: "r3",
		ARM_R4: "r4", ARM_R5: "r5", ARM_R6: "r6", ARM_R7: "r7",
		ARM_R8: "r8", ARM_R9: "r9", ARM_R10: "r10", ARM_R11: "r11",
		ARM_R12: "r12", ARM_SP: "sp", ARM_LR: "lr", ARM_PC: "pc",
		ARM_D0: "d0",
	},
}
