package back

import "github.com/managarm/lewis/compiler/set"

// x86-64 integer GPR indices, SysV encoding order.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15

	NumGPR = 16
)

// ArgRegs is the SysV AMD64 integer argument order.
var ArgRegs = [6]int{RDI, RSI, RDX, RCX, R8, R9}

// ReturnReg is the SysV AMD64 integer return register.
const ReturnReg = RAX

// ReturnRegs is the order additional return values occupy when a
// function returns more than one integer result.
var ReturnRegs = [2]int{RAX, RDX}

// ScratchRegs are caller-saved registers never used to pass arguments
// or results, available to the allocator but pinned empty across a
// call site's clobber intervals.
var ScratchRegs = [2]int{R10, R11}

// CalleeSavedRegs must be preserved across a call if used; the
// prologue pushes, the epilogue pops, exactly those actually touched.
var CalleeSavedRegs = [6]int{RBX, RBP, R12, R13, R14, R15}

// singleRegisterMask builds a mask with exactly reg set.
func singleRegisterMask(reg int) set.Bitmap {
	m := set.MakeBitmap(NumGPR)
	m.Set(reg)

	return m
}

// gprMask returns every GPR except RSP, which is never allocatable.
func gprMask() set.Bitmap {
	m := set.MakeBitmap(NumGPR)

	for r := 0; r < NumGPR; r++ {
		if r == RSP {
			continue
		}

		m.Set(r)
	}

	return m
}

// calleeSavedMask is CalleeSavedRegs as a mask, used to size the
// prologue against usedRegisters.
func calleeSavedMask() set.Bitmap {
	m := set.MakeBitmap(NumGPR)

	for _, r := range CalleeSavedRegs {
		m.Set(r)
	}

	return m
}

// isHighRegister reports whether reg needs the REX.B/R/X extension
// bit to be addressed (R8..R15).
func isHighRegister(reg int) bool { return reg >= R8 }
