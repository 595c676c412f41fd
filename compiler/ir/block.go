package ir

import "sort"

// Iterator positions a cursor within a BasicBlock's instruction list.
// It stays valid across InsertBefore/Remove calls made through it
// according to the usual "next-iterator-before-erase" discipline.
type Iterator struct {
	block *BasicBlock
	idx   int
}

func (it Iterator) Valid() bool { return it.idx < len(it.block.instructions) }

func (it Iterator) Instruction() *Instruction { return it.block.instructions[it.idx] }

func (it Iterator) Next() Iterator { return Iterator{it.block, it.idx + 1} }

// BasicBlock owns an ordered, positionally-indexed collection of
// Instructions, a set of PhiNodes, an optional terminating Branch, and
// the DataFlowSource aggregating its outgoing data-flow edges.
type BasicBlock struct {
	id   int
	Name string

	// instructions is kept sorted by Instruction.order at all times;
	// order keys are fractional so a new instruction can be spliced
	// in between two neighbors without renumbering the block, giving
	// O(1) total-order comparison and O(log n) position lookup by
	// binary search, at the cost of an O(n) slice shift on insertion
	// (no true order-maintenance tree is implemented here).
	instructions []*Instruction
	nextOrder    float64

	Phis   []*PhiNode
	Branch *Branch

	outgoing DataFlowSource
}

// NewBasicBlock constructs an empty block. id must be unique within
// the owning Function and monotonically reflect creation order: block
// comparison for ProgramCounter purposes uses it directly.
func NewBasicBlock(id int, name string) *BasicBlock {
	return &BasicBlock{id: id, Name: name, nextOrder: 1}
}

func (b *BasicBlock) ID() int { return b.id }

// Instructions returns the block's instructions in program order. The
// returned slice must not be mutated directly; use Append/InsertBefore/Remove.
func (b *BasicBlock) Instructions() []*Instruction { return b.instructions }

func (b *BasicBlock) Len() int { return len(b.instructions) }

func (b *BasicBlock) Begin() Iterator { return Iterator{b, 0} }

func (b *BasicBlock) End() Iterator { return Iterator{b, len(b.instructions)} }

// Outgoing returns the DataFlowSource aggregating edges this block
// contributes to successor phis.
func (b *BasicBlock) Outgoing() *DataFlowSource { return &b.outgoing }

// Append adds inst at the end of the block.
func (b *BasicBlock) Append(inst *Instruction) Iterator {
	inst.order = b.nextOrder
	b.nextOrder++

	b.instructions = append(b.instructions, inst)

	return Iterator{b, len(b.instructions) - 1}
}

// InsertBefore splices inst into the block immediately before it,
// returning an iterator to the newly inserted instruction. it.Next()
// still refers to the instruction originally at that position.
func (b *BasicBlock) InsertBefore(it Iterator, inst *Instruction) Iterator {
	var lo, hi float64

	if it.idx > 0 {
		lo = b.instructions[it.idx-1].order
	} else {
		lo = 0
	}

	if it.idx < len(b.instructions) {
		hi = b.instructions[it.idx].order
	} else {
		hi = lo + 2
	}

	inst.order = (lo + hi) / 2

	b.instructions = append(b.instructions, nil)
	copy(b.instructions[it.idx+1:], b.instructions[it.idx:])
	b.instructions[it.idx] = inst

	return Iterator{b, it.idx}
}

// Remove erases the instruction at it, returning an iterator to the
// instruction that followed it (now at the same index).
func (b *BasicBlock) Remove(it Iterator) Iterator {
	copy(b.instructions[it.idx:], b.instructions[it.idx+1:])
	b.instructions[len(b.instructions)-1] = nil
	b.instructions = b.instructions[:len(b.instructions)-1]

	return it
}

// IndexOf locates inst's position via binary search over the order
// keys, returning false if inst is not (or no longer) in this block.
func (b *BasicBlock) IndexOf(inst *Instruction) (int, bool) {
	i := sort.Search(len(b.instructions), func(i int) bool {
		return b.instructions[i].order >= inst.order
	})

	if i < len(b.instructions) && b.instructions[i] == inst {
		return i, true
	}

	return 0, false
}

// CompareInstructions totally orders two instructions known to belong
// to the same block.
func CompareInstructions(a, b *Instruction) int {
	switch {
	case a.order < b.order:
		return -1
	case a.order > b.order:
		return 1
	default:
		return 0
	}
}
