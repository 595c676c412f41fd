package back

import (
	"tlog.app/go/errors"
)

// ErrRegisterAllocationInfeasible is returned when a compound has no
// remaining candidate register once every overlap in the interval
// index has been accounted for.
var ErrRegisterAllocationInfeasible = errors.New("register allocation infeasible")

// assignment is the result of running the allocator's two FIFO passes
// over a function: every compound has AllocatedRegister set, the
// interval tree holds every interval that was assigned, and
// usedRegisters records which physical registers the prologue and
// epilogue must account for.
type assignment struct {
	tree          IntervalTree
	usedRegisters uint16 // bit i set iff register i was assigned to some compound
}

// allocate runs the two-queue assignment algorithm from spec §4.2.5:
// the restricted queue (compounds with exactly one candidate register)
// is drained first and must succeed outright, then the unrestricted
// queue picks the lowest-cost remaining candidate per compound.
func allocate(compounds []*LiveCompound) (*assignment, error) {
	restricted := newCompoundQueue()
	unrestricted := newCompoundQueue()

	for _, c := range compounds {
		if c.Restricted() {
			restricted.Push(c)
		} else {
			unrestricted.Push(c)
		}
	}

	a := &assignment{}

	for restricted.Len() > 0 {
		c := restricted.Pop()
		if err := a.assignCompound(c); err != nil {
			return nil, errors.Wrap(err, "restricted compound")
		}
	}

	for unrestricted.Len() > 0 {
		c := unrestricted.Pop()
		if err := a.assignCompound(c); err != nil {
			return nil, errors.Wrap(err, "compound")
		}
	}

	return a, nil
}

// assignCompound picks a physical register for c, records its
// intervals in the tree, and propagates the choice to every interval's
// Value.
func (a *assignment) assignCompound(c *LiveCompound) error {
	possible := c.PossibleRegisters.Copy()

	cost := map[int]int{}

	for _, iv := range c.Intervals {
		a.tree.Overlapping(iv.Origin, iv.Final, func(other *LiveInterval) {
			if other.Equivalence == iv.Equivalence {
				return
			}

			if other.Compound != nil && other.Compound.AllocatedRegister >= 0 {
				possible.Clear(other.Compound.AllocatedRegister)
			}
		})
	}

	for _, peer := range c.Penalties {
		if peer.AllocatedRegister < 0 {
			continue
		}

		cost[peer.AllocatedRegister]--
	}

	reg := -1
	best := 0

	possible.Range(func(r int) bool {
		c := cost[r] + 1

		if reg == -1 || c < best {
			reg, best = r, c
		}

		return true
	})

	if reg == -1 {
		return errors.Wrap(ErrRegisterAllocationInfeasible, "no candidate register free for compound spanning %d intervals (live range splitting not implemented)", len(c.Intervals))
	}

	c.AllocatedRegister = reg
	a.usedRegisters |= 1 << uint(reg)

	for _, iv := range c.Intervals {
		a.tree.Insert(iv)

		if iv.Value == nil {
			continue // clobber interval: a reservation, not a physical value
		}

		if err := iv.Value.SetRegister(reg); err != nil {
			return errors.Wrap(err, "assign r%d", reg)
		}
	}

	return nil
}
