package back

import (
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/tlog/tlwire"
)

// SubBlock places a ProgramCounter relative to a block's own body.
type SubBlock int

const (
	BeforeBlock SubBlock = iota
	InBlock
	AfterBlock
)

// SubInstruction places a ProgramCounter relative to one instruction.
type SubInstruction int

const (
	BeforeInstruction SubInstruction = iota
	AtInstruction
	AfterInstruction
)

// ProgramCounter is a totally ordered tuple (block, subBlock,
// instruction, subInstruction). Ordering within a block uses the
// block's fractional instruction order key; between blocks it falls
// back to block creation order, which is stable but not CFG-aware -
// sufficient for the lattice of lifetimes this allocator reasons
// about, since every comparison it performs is between PCs that are
// already known to share a block or to be connected by a def-use or
// predecessor/successor relationship resolved separately.
type ProgramCounter struct {
	Block   *ir.BasicBlock
	Sub     SubBlock
	Inst    *ir.Instruction
	InstSub SubInstruction
}

func BeforeBlockPC(b *ir.BasicBlock) ProgramCounter { return ProgramCounter{Block: b, Sub: BeforeBlock} }
func AfterBlockPC(b *ir.BasicBlock) ProgramCounter  { return ProgramCounter{Block: b, Sub: AfterBlock} }

func instPC(b *ir.BasicBlock, inst *ir.Instruction, sub SubInstruction) ProgramCounter {
	return ProgramCounter{Block: b, Sub: InBlock, Inst: inst, InstSub: sub}
}

func BeforeInstPC(b *ir.BasicBlock, inst *ir.Instruction) ProgramCounter {
	return instPC(b, inst, BeforeInstruction)
}

func AtInstPC(b *ir.BasicBlock, inst *ir.Instruction) ProgramCounter {
	return instPC(b, inst, AtInstruction)
}

func AfterInstPC(b *ir.BasicBlock, inst *ir.Instruction) ProgramCounter {
	return instPC(b, inst, AfterInstruction)
}

// Compare totally orders two ProgramCounters. It assumes a and b are
// comparable (belong to blocks from the same function).
func Compare(a, b ProgramCounter) int {
	if a.Block != b.Block {
		if a.Block.ID() < b.Block.ID() {
			return -1
		}

		return 1
	}

	if a.Sub != b.Sub {
		return int(a.Sub) - int(b.Sub)
	}

	if a.Sub != InBlock {
		return 0
	}

	if c := ir.CompareInstructions(a.Inst, b.Inst); c != 0 {
		return c
	}

	return int(a.InstSub) - int(b.InstSub)
}

func Less(a, b ProgramCounter) bool { return Compare(a, b) < 0 }

// Overlaps reports whether half-open ranges [aLo,aHi) and [bLo,bHi)
// intersect.
func Overlaps(aLo, aHi, bLo, bHi ProgramCounter) bool {
	return Less(aLo, bHi) && Less(bLo, aHi)
}

func (p ProgramCounter) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	name := "?"
	if p.Block != nil {
		name = p.Block.Name
	}

	sub := [...]string{"before", "in", "after"}[p.Sub]

	return e.AppendFormat(b, "%s:%s", name, sub)
}
