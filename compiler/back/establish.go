package back

import (
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

// ErrUnsupportedEncoding is returned for a legal allocation this back
// end's code generator cannot yet turn into machine code.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

// establish is the second walk of spec §4.2.6: it rewrites every
// pseudo-move left behind by allocation into either a Nop (the
// operand and result landed in the same register, so the copy fused
// away) or real move/exchange instructions.
func establish(fn *ir.Function) error {
	for _, block := range fn.Blocks {
		if err := establishBlock(block); err != nil {
			return errors.Wrap(err, "block %v", block.Name)
		}
	}

	return nil
}

func establishBlock(block *ir.BasicBlock) error {
	it := block.Begin()

	for it.Valid() {
		inst := it.Instruction()

		switch inst.Kind {
		case ir.InstPseudoMoveSingle:
			if err := establishSingle(inst); err != nil {
				return err
			}

			it = it.Next()

		case ir.InstPseudoMoveMultiple:
			replacement, err := resolveMultiple(inst)
			if err != nil {
				return err
			}

			at := block.Remove(it)

			for _, r := range replacement {
				at = block.InsertBefore(at, r)
				at = at.Next()
			}

			it = at

		default:
			it = it.Next()
		}
	}

	return nil
}

// establishSingle fuses a PseudoMoveSingle to a Nop when allocation
// already placed the operand and result in the same register,
// otherwise turns it into a concrete register move.
func establishSingle(inst *ir.Instruction) error {
	operand := inst.Operand.Value()
	result := inst.Result.Value()

	src, err := operand.Register()
	if err != nil {
		return errors.Wrap(err, "pseudo-move operand")
	}

	dst, err := result.Register()
	if err != nil {
		return errors.Wrap(err, "pseudo-move result")
	}

	if src == dst {
		inst.Kind = ir.InstNop

		return nil
	}

	inst.Kind = ir.InstMovMR
	inst.M.Set(result)
	inst.R.Set(operand)

	return nil
}

// regPair is one (source register, destination register) obligation
// extracted from a PseudoMoveMultiple; src == dst pairs are already
// fused and dropped before the move-chain solver sees them.
type regPair struct {
	src, dst int
}

// resolveMultiple turns one PseudoMoveMultiple into a sequence of
// concrete Mov/Xchg instructions implementing the parallel copy it
// describes, per the move-chain decomposition of spec §4.2.6: chains
// of moves are peeled off as their destination frees up, and whatever
// remains is pure cycles, which length-2 resolves via an exchange.
func resolveMultiple(inst *ir.Instruction) ([]*ir.Instruction, error) {
	pairs, err := multiplePairs(inst)
	if err != nil {
		return nil, err
	}

	var edgeSrc [NumGPR]int

	var hasEdge [NumGPR]bool

	for _, p := range pairs {
		if p.src == p.dst {
			continue
		}

		if hasEdge[p.dst] {
			return nil, errors.New("register r%d targeted by more than one move in the same parallel copy", p.dst)
		}

		edgeSrc[p.dst] = p.src
		hasEdge[p.dst] = true
	}

	var usedAsSrc [NumGPR]int

	for dst := 0; dst < NumGPR; dst++ {
		if hasEdge[dst] {
			usedAsSrc[edgeSrc[dst]]++
		}
	}

	var queue []int

	for dst := 0; dst < NumGPR; dst++ {
		if hasEdge[dst] && usedAsSrc[dst] == 0 {
			queue = append(queue, dst)
		}
	}

	var out []*ir.Instruction

	for len(queue) > 0 {
		dst := queue[0]
		queue = queue[1:]

		if !hasEdge[dst] {
			continue
		}

		src := edgeSrc[dst]
		hasEdge[dst] = false

		out = append(out, regMove(dst, src))

		usedAsSrc[src]--

		if usedAsSrc[src] == 0 && hasEdge[src] {
			queue = append(queue, src)
		}
	}

	for dst := 0; dst < NumGPR; dst++ {
		if !hasEdge[dst] {
			continue
		}

		cycle := []int{dst}

		for cur := edgeSrc[dst]; cur != dst; cur = edgeSrc[cur] {
			cycle = append(cycle, cur)
		}

		if len(cycle) != 2 {
			return nil, errors.Wrap(ErrUnsupportedEncoding, "move-chain cycle of length %d has no scratch register to break it", len(cycle))
		}

		out = append(out, regExchange(cycle[0], cycle[1]))

		for _, r := range cycle {
			hasEdge[r] = false
		}
	}

	return out, nil
}

// multiplePairs reads the already-allocated registers out of a
// PseudoMoveMultiple's operand/result pairs. Pairs that already agree
// (fused, nothing to emit) are kept; resolveMultiple skips them.
func multiplePairs(inst *ir.Instruction) ([]regPair, error) {
	if len(inst.MoveOperands) != len(inst.MoveResults) {
		return nil, errors.New("parallel copy has %d operands but %d results", len(inst.MoveOperands), len(inst.MoveResults))
	}

	pairs := make([]regPair, 0, len(inst.MoveOperands))

	for i := range inst.MoveOperands {
		operand := inst.MoveOperands[i].Value()
		result := inst.MoveResults[i].Value()

		src, err := operand.Register()
		if err != nil {
			return nil, errors.Wrap(err, "parallel copy operand %d", i)
		}

		dst, err := result.Register()
		if err != nil {
			return nil, errors.Wrap(err, "parallel copy result %d", i)
		}

		pairs = append(pairs, regPair{src: src, dst: dst})
	}

	return pairs, nil
}

// regMove and regExchange build instructions addressed purely by
// physical register, via placeholder Values bound to no origin: by
// this point allocation is finished and nothing consults def-use
// information again before encoding.
func regMove(dst, src int) *ir.Instruction {
	i := ir.NewInstruction(ir.InstMovMR)
	i.M.Set(registerPlaceholder(dst))
	i.R.Set(registerPlaceholder(src))

	return i
}

func regExchange(a, b int) *ir.Instruction {
	i := ir.NewInstruction(ir.InstXchgMR)
	i.M.Set(registerPlaceholder(a))
	i.R.Set(registerPlaceholder(b))

	return i
}

func registerPlaceholder(reg int) *ir.Value {
	v := ir.NewValue(ir.RegisterMode, ir.Int64Type)

	_ = v.SetRegister(reg)

	return v
}
