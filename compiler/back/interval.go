package back

import (
	"github.com/managarm/lewis/compiler/ir"
	"github.com/managarm/lewis/compiler/set"
)

type (
	// LiveInterval is a half-open range [Origin, Final) optionally
	// tied to a Value. Equivalence identifies intervals that may
	// share a register because they originate from the same source
	// (e.g. a fused PseudoMoveSingle's operand and result): two
	// overlapping intervals only conflict when their Equivalence
	// pointers differ.
	LiveInterval struct {
		Origin ProgramCounter
		Final  ProgramCounter

		Value       *ir.Value
		Equivalence any

		Compound *LiveCompound
	}

	// LiveCompound is a set of LiveIntervals that must all receive
	// the same physical register.
	LiveCompound struct {
		Intervals []*LiveInterval

		PossibleRegisters set.Bitmap
		AllocatedRegister int

		// Penalties biases allocation toward registers already
		// chosen for compounds this one should fuse with (the copy
		// inserted by an in-place op's PseudoMoveSingle and the
		// op's own result compound, or a call or return operand and
		// its copy into the ABI register).
		Penalties []*LiveCompound

		// seq orders compounds for FIFO queue processing.
		seq int
	}
)

// NewCompound creates a compound with the given candidate registers.
func NewCompound(possible set.Bitmap) *LiveCompound {
	return &LiveCompound{PossibleRegisters: possible, AllocatedRegister: -1}
}

// AddInterval appends an interval to the compound and back-links it.
func (c *LiveCompound) AddInterval(iv *LiveInterval) {
	iv.Compound = c
	c.Intervals = append(c.Intervals, iv)
}

// Restricted reports whether the compound has exactly one candidate
// register, i.e. belongs in the restricted queue.
func (c *LiveCompound) Restricted() bool { return c.PossibleRegisters.Size() == 1 }

// AddPenalty records a bidirectional fusion preference between c and
// peer.
func AddPenalty(c, peer *LiveCompound) {
	c.Penalties = append(c.Penalties, peer)
	peer.Penalties = append(peer.Penalties, c)
}
