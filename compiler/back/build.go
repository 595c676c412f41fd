package back

import (
	"github.com/managarm/lewis/compiler/ir"
	"github.com/managarm/lewis/compiler/set"
	"tlog.app/go/errors"
)

// edgeCopyInfo remembers which DataFlowEdge a PseudoMoveMultiple's
// result feeds, so its interval can be folded into the consuming
// phi's compound instead of getting an ordinary standalone one.
type edgeCopyInfo struct {
	edge   *ir.DataFlowEdge
	block  *ir.BasicBlock
	pseudo *ir.Instruction
}

// buildState accumulates everything the pseudo-move insertion pass
// (pass 1) learns that the interval-construction pass (pass 2) needs:
// which values are pinned to a single ABI register, which pairs of
// values should be penalised toward sharing a register, which values
// are data-flow edge copies handled specially, and the already
// fully-built clobber compounds.
type buildState struct {
	pinned    map[*ir.Value]set.Bitmap
	penalties [][2]*ir.Value
	edgeCopy  map[*ir.Value]edgeCopyInfo

	clobbers []*LiveCompound
}

func newBuildState() *buildState {
	return &buildState{
		pinned:   map[*ir.Value]set.Bitmap{},
		edgeCopy: map[*ir.Value]edgeCopyInfo{},
	}
}

func (s *buildState) pin(v *ir.Value, reg int) {
	s.pinned[v] = singleRegisterMask(reg)
}

func (s *buildState) penalize(a, b *ir.Value) {
	s.penalties = append(s.penalties, [2]*ir.Value{a, b})
}

// redirectUse moves use from whatever value it currently points at
// onto a freshly created copy of the same kind/type, returning the
// original value and the copy. Only this one use is affected; every
// other consumer of the original value is untouched.
func redirectUse(use *ir.ValueUse) (original, copy *ir.Value) {
	original = use.Value()
	copy = ir.NewValue(original.Kind, original.Type)
	use.Set(copy)

	return original, copy
}

// insertPseudoMoves is pass 1: it walks the already-lowered function
// once, inserting PseudoMoveSingle/PseudoMoveMultiple instructions at
// every coalescing site named in spec §4.2.4 and recording the
// bookkeeping pass 2 needs.
func insertPseudoMoves(fn *ir.Function) (*buildState, error) {
	st := newBuildState()

	for _, block := range fn.Blocks {
		if err := insertArgumentPhiMoves(block, st); err != nil {
			return nil, errors.Wrap(err, "block %v: argument phis", block.Name)
		}

		if err := insertInPlaceMoves(block, st); err != nil {
			return nil, errors.Wrap(err, "block %v: in-place ops", block.Name)
		}

		if err := insertCallMoves(block, st); err != nil {
			return nil, errors.Wrap(err, "block %v: calls", block.Name)
		}

		if err := insertBranchMoves(block, st); err != nil {
			return nil, errors.Wrap(err, "block %v: branch", block.Name)
		}

		insertOutgoingDataFlowMoves(block, st)
	}

	return st, nil
}

// insertArgumentPhiMoves handles "PseudoMoveSingle is inserted in
// front of every ArgumentPhi"; all real consumers of the argument are
// rewired onto the copy since the raw ABI register may be clobbered
// by the first call.
func insertArgumentPhiMoves(block *ir.BasicBlock, st *buildState) error {
	at := block.Begin()

	for _, phi := range block.Phis {
		if phi.Kind != ir.ArgumentPhi {
			continue
		}

		v := phi.Result.Value()
		if v == nil {
			return errors.New("argument phi %d has no result", phi.ArgIndex)
		}

		if phi.ArgIndex >= len(ArgRegs) {
			return errors.New("argument phi %d: no more than %d integer arguments supported", phi.ArgIndex, len(ArgRegs))
		}

		copy := ir.NewValue(v.Kind, v.Type)
		v.ReplaceAllUses(copy)

		pseudo := ir.NewInstruction(ir.InstPseudoMoveSingle)
		pseudo.Operand.Set(v)
		pseudo.Result.Set(copy)

		at = block.InsertBefore(at, pseudo)
		at = at.Next()

		st.pin(v, ArgRegs[phi.ArgIndex])
	}

	return nil
}

// inPlaceOperandSlot returns the use slot an in-place instruction
// reads and overwrites.
func inPlaceOperandSlot(inst *ir.Instruction) (*ir.ValueUse, error) {
	switch inst.Kind {
	case ir.InstNegM, ir.InstAddMR, ir.InstAndMR:
		return &inst.M, nil
	case ir.InstDefineOffset:
		return &inst.Base, nil
	default:
		return nil, errors.New("instruction kind %v is not in-place", inst.Kind)
	}
}

// insertInPlaceMoves handles "PseudoMoveSingle is inserted in front
// of every in-place instruction", plus the penalty edge biasing the
// copy toward the instruction's own result register.
func insertInPlaceMoves(block *ir.BasicBlock, st *buildState) error {
	it := block.Begin()

	for it.Valid() {
		inst := it.Instruction()

		if !inst.IsInPlace() {
			it = it.Next()
			continue
		}

		slot, err := inPlaceOperandSlot(inst)
		if err != nil {
			return err
		}

		x, copy := redirectUse(slot)

		pseudo := ir.NewInstruction(ir.InstPseudoMoveSingle)
		pseudo.Operand.Set(x)
		pseudo.Result.Set(copy)

		inserted := block.InsertBefore(it, pseudo)

		if result := inst.Result.Value(); result != nil {
			st.penalize(copy, result)
		}

		it = inserted.Next().Next()
	}

	return nil
}

// insertCallMoves handles the argument-register PseudoMoveMultiple in
// front of every Call, pins the call's own result to RAX per spec
// §4.2.1/§4.1, and synthesises the clobber compounds for every
// caller-saved register the call does not otherwise pin.
func insertCallMoves(block *ir.BasicBlock, st *buildState) error {
	it := block.Begin()

	for it.Valid() {
		inst := it.Instruction()

		if inst.Kind != ir.InstCall {
			it = it.Next()
			continue
		}

		if len(inst.Operands) > len(ArgRegs) {
			return errors.New("call %v: no more than %d integer arguments supported", inst.Callee, len(ArgRegs))
		}

		if len(inst.Operands) > 0 {
			pseudo := ir.NewInstruction(ir.InstPseudoMoveMultiple)

			for i := range inst.Operands {
				v, copy := redirectUse(&inst.Operands[i])

				pseudo.MoveOperands = append(pseudo.MoveOperands, ir.ValueUse{})
				pseudo.MoveOperands[len(pseudo.MoveOperands)-1].Set(v)

				pseudo.MoveResults = append(pseudo.MoveResults, ir.ValueOrigin{})
				pseudo.MoveResults[len(pseudo.MoveResults)-1].Set(copy)

				st.pin(copy, ArgRegs[i])
				st.penalize(v, copy)
			}

			it = block.InsertBefore(it, pseudo).Next()
			inst = it.Instruction()
		}

		if result := inst.Result.Value(); result != nil {
			st.pin(result, ReturnReg)
		}

		for _, reg := range ArgRegs[len(inst.Operands):] {
			st.clobbers = append(st.clobbers, clobberCompound(block, inst, reg))
		}

		for _, reg := range ScratchRegs {
			st.clobbers = append(st.clobbers, clobberCompound(block, inst, reg))
		}

		it = it.Next()
	}

	return nil
}

func clobberCompound(block *ir.BasicBlock, inst *ir.Instruction, reg int) *LiveCompound {
	c := NewCompound(singleRegisterMask(reg))
	pc := AtInstPC(block, inst)
	c.AddInterval(&LiveInterval{Origin: pc, Final: pc, Equivalence: c})
	c.AllocatedRegister = -1

	return c
}

// insertBranchMoves handles the Jnz-operand PseudoMoveSingle and the
// Ret-operands PseudoMoveMultiple.
func insertBranchMoves(block *ir.BasicBlock, st *buildState) error {
	if block.Branch == nil {
		return nil
	}

	switch block.Branch.Kind {
	case ir.BranchJnz:
		x, copy := redirectUse(&block.Branch.Operand)

		pseudo := ir.NewInstruction(ir.InstPseudoMoveSingle)
		pseudo.Operand.Set(x)
		pseudo.Result.Set(copy)

		block.InsertBefore(block.End(), pseudo)

	case ir.BranchRet:
		if len(block.Branch.ReturnOperands) > len(ReturnRegs) {
			return errors.New("ret: no more than %d return values supported", len(ReturnRegs))
		}

		if len(block.Branch.ReturnOperands) == 0 {
			return nil
		}

		pseudo := ir.NewInstruction(ir.InstPseudoMoveMultiple)

		for i := range block.Branch.ReturnOperands {
			v, copy := redirectUse(&block.Branch.ReturnOperands[i])

			pseudo.MoveOperands = append(pseudo.MoveOperands, ir.ValueUse{})
			pseudo.MoveOperands[len(pseudo.MoveOperands)-1].Set(v)

			pseudo.MoveResults = append(pseudo.MoveResults, ir.ValueOrigin{})
			pseudo.MoveResults[len(pseudo.MoveResults)-1].Set(copy)

			st.pin(copy, ReturnRegs[i])
			st.penalize(v, copy)
		}

		block.InsertBefore(block.End(), pseudo)
	}

	return nil
}

// insertOutgoingDataFlowMoves handles "PseudoMoveMultiple is inserted
// at the end of every block that has data-flow edges to successors".
func insertOutgoingDataFlowMoves(block *ir.BasicBlock, st *buildState) {
	edges := block.Outgoing().Edges()
	if len(edges) == 0 {
		return
	}

	pseudo := ir.NewInstruction(ir.InstPseudoMoveMultiple)

	for _, e := range edges {
		v, copy := redirectUse(&e.Alias)

		pseudo.MoveOperands = append(pseudo.MoveOperands, ir.ValueUse{})
		pseudo.MoveOperands[len(pseudo.MoveOperands)-1].Set(v)

		result := ir.ValueOrigin{}
		result.Set(copy)
		pseudo.MoveResults = append(pseudo.MoveResults, result)

		st.edgeCopy[copy] = edgeCopyInfo{edge: e, block: block, pseudo: pseudo}
	}

	block.InsertBefore(block.End(), pseudo)
}
