package back

import (
	"github.com/managarm/lewis/compiler/ir"
)

// usedCalleeSaved returns CalleeSavedRegs actually touched by the
// allocation, in ABI order.
func usedCalleeSaved(used uint16) []int {
	var saved []int

	for _, r := range CalleeSavedRegs {
		if used&(1<<uint(r)) != 0 {
			saved = append(saved, r)
		}
	}

	return saved
}

// stackAlignment computes how many bytes the prologue must additionally
// reserve so that RSP is 16-byte aligned at every internal call site.
// The caller's `call` already pushed one 8-byte return address onto a
// 16-aligned stack, so entry RSP sits at 8 mod 16; each callee-saved
// push consumes another 8 bytes, so an even number of pushes needs one
// more 8-byte adjustment to restore alignment, an odd number does not.
func stackAlignment(savedCount int) int64 {
	if savedCount%2 == 0 {
		return 8
	}

	return 0
}

// hasCall reports whether fn contains any internal call site. A
// call-free function never needs its stack realigned for one, so the
// alignment adjustment only applies to functions that call out, and a
// call-free function that saves no callee-saved register gets no
// prologue or epilogue at all.
func hasCall(fn *ir.Function) bool {
	found := false

	fn.AllInstructions(func(_ *ir.BasicBlock, inst *ir.Instruction) {
		if inst.Kind == ir.InstCall {
			found = true
		}
	})

	return found
}

// addPrologueEpilogue implements the final paragraph of spec §4.2.6:
// the prologue saves every callee-saved register the allocator used
// and aligns the stack, the epilogue undoes both immediately before
// every Ret.
func addPrologueEpilogue(fn *ir.Function, used uint16) {
	saved := usedCalleeSaved(used)
	calls := hasCall(fn)

	if len(saved) == 0 && !calls {
		return
	}

	var adj int64
	if calls {
		adj = stackAlignment(len(saved))
	}

	entry := fn.Entry()
	at := entry.Begin()

	for _, r := range saved {
		push := ir.NewInstruction(ir.InstPushSave)
		push.Const = int64(r)
		at = entry.InsertBefore(at, push)
		at = at.Next()
	}

	if adj > 0 {
		dec := ir.NewInstruction(ir.InstDecrementStack)
		dec.StackAdj = adj
		entry.InsertBefore(at, dec)
	}

	for _, block := range fn.Blocks {
		if block.Branch == nil || block.Branch.Kind != ir.BranchRet {
			continue
		}

		if adj > 0 {
			inc := ir.NewInstruction(ir.InstIncrementStack)
			inc.StackAdj = adj
			block.InsertBefore(block.End(), inc)
		}

		for i := len(saved) - 1; i >= 0; i-- {
			pop := ir.NewInstruction(ir.InstPopRestore)
			pop.Const = int64(saved[i])
			block.InsertBefore(block.End(), pop)
		}
	}
}
