// Package lower implements the lowering pass: generic IR to x86 IR,
// per basic block, following the rewrite table in spec §4.1.
package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/managarm/lewis/compiler/ir"
)

// Function lowers every block of fn in place.
func Function(ctx context.Context, fn *ir.Function) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower: function", "name", fn.Name)
	defer tr.Finish("err", &err)

	for _, b := range fn.Blocks {
		if err := Block(ctx, b); err != nil {
			return errors.Wrap(err, "block %v", b.Name)
		}
	}

	return nil
}

// Block rewrites every generic Instruction in b by its x86 IR
// counterpart(s), rewrites b's Branch, and retypes every PhiNode's
// result as an x86-mode Value. Every surviving Value in the block is
// an x86-mode value once this returns.
func Block(ctx context.Context, b *ir.BasicBlock) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lower: block", "name", b.Name)
	defer tr.Finish("err", &err)

	for _, phi := range b.Phis {
		if err := lowerPhiResult(phi); err != nil {
			return errors.Wrap(err, "phi")
		}
	}

	it := b.Begin()

	for it.Valid() {
		inst := it.Instruction()

		if inst.Kind.IsX86() {
			it = it.Next()
			continue
		}

		replacement, extra, err := lowerInstruction(inst)
		if err != nil {
			return errors.Wrap(err, "instruction %v", inst.Kind)
		}

		at := b.Remove(it)

		for _, x := range extra {
			at = b.InsertBefore(at, x)
			at = at.Next()
		}

		at = b.InsertBefore(at, replacement)

		it = at.Next()
	}

	if b.Branch != nil && !b.Branch.Kind.IsX86() {
		if err := lowerBranch(b.Branch); err != nil {
			return errors.Wrap(err, "branch")
		}
	}

	return nil
}

// operandSize picks qword/dword from a Value's Type, rejecting any
// other type as malformed IR.
func operandSize(v *ir.Value) (ir.OperandSize, error) {
	size, err := v.Type.OperandSize()
	if err != nil {
		return 0, errors.Wrap(err, "value %v", v)
	}

	return size, nil
}

func lowerPhiResult(phi *ir.PhiNode) error {
	v := phi.Result.Value()
	if v == nil {
		return errors.New("phi has no result value")
	}

	if v.Kind == ir.RegisterMode || v.Kind == ir.BaseDispMemoryMode {
		return nil // already lowered (shared phi across passes, or re-entrant call)
	}

	if _, err := operandSize(v); err != nil {
		return err
	}

	v.Kind = ir.RegisterMode

	return nil
}

// lowerInstruction produces the x86 instruction that replaces inst,
// plus any additional instructions that must precede it (only
// LoadOffset needs one: the DefineOffset naming instruction).
func lowerInstruction(inst *ir.Instruction) (replacement *ir.Instruction, extra []*ir.Instruction, err error) {
	switch inst.Kind {
	case ir.InstLoadConst:
		return lowerLoadConst(inst)
	case ir.InstLoadOffset:
		return lowerLoadOffset(inst)
	case ir.InstUnaryMathNegate:
		return lowerNegate(inst)
	case ir.InstBinaryMathAdd:
		return lowerBinary(inst, ir.InstAddMR)
	case ir.InstBinaryMathAnd:
		return lowerBinary(inst, ir.InstAndMR)
	case ir.InstInvoke:
		return lowerInvoke(inst)
	default:
		return nil, nil, errors.New("unknown generic instruction kind %v", inst.Kind)
	}
}

func lowerLoadConst(inst *ir.Instruction) (*ir.Instruction, []*ir.Instruction, error) {
	old := inst.Result.Value()

	size, err := operandSize(old)
	if err != nil {
		return nil, nil, err
	}

	nv := ir.NewValue(ir.RegisterMode, old.Type)
	_ = size

	x86 := ir.NewInstruction(ir.InstMovMC)
	x86.Const = inst.Const
	x86.Result.Set(nv)

	old.ReplaceAllUses(nv)

	return x86, nil, nil
}

func lowerLoadOffset(inst *ir.Instruction) (*ir.Instruction, []*ir.Instruction, error) {
	old := inst.Result.Value()

	size, err := operandSize(old)
	if err != nil {
		return nil, nil, err
	}

	base := inst.Base.Value()
	if base == nil {
		return nil, nil, errors.New("LoadOffset: missing base operand")
	}

	mem := ir.NewValue(ir.BaseDispMemoryMode, ir.PointerType)
	mem.Displacement = int32(inst.Offset)

	defineOffset := ir.NewInstruction(ir.InstDefineOffset)
	defineOffset.Base.Set(base)
	defineOffset.Disp = int32(inst.Offset)
	defineOffset.Result.Set(mem)

	nv := ir.NewValue(ir.RegisterMode, old.Type)
	_ = size

	movRM := ir.NewInstruction(ir.InstMovRM)
	movRM.M.Set(mem)
	movRM.Result.Set(nv)

	old.ReplaceAllUses(nv)

	return movRM, []*ir.Instruction{defineOffset}, nil
}

func lowerNegate(inst *ir.Instruction) (*ir.Instruction, []*ir.Instruction, error) {
	old := inst.Result.Value()

	if _, err := operandSize(old); err != nil {
		return nil, nil, err
	}

	x := inst.Operand.Value()
	if x == nil {
		return nil, nil, errors.New("UnaryMath{negate}: missing operand")
	}

	nv := ir.NewValue(ir.RegisterMode, old.Type)

	negM := ir.NewInstruction(ir.InstNegM)
	negM.M.Set(x)
	negM.Result.Set(nv)

	old.ReplaceAllUses(nv)

	return negM, nil, nil
}

func lowerBinary(inst *ir.Instruction, kind ir.InstructionKind) (*ir.Instruction, []*ir.Instruction, error) {
	old := inst.Result.Value()

	if _, err := operandSize(old); err != nil {
		return nil, nil, err
	}

	l := inst.Left.Value()
	r := inst.Right.Value()

	if l == nil || r == nil {
		return nil, nil, errors.New("BinaryMath: missing operand")
	}

	nv := ir.NewValue(ir.RegisterMode, old.Type)

	x86 := ir.NewInstruction(kind)
	x86.M.Set(l)
	x86.R.Set(r)
	x86.Result.Set(nv)

	old.ReplaceAllUses(nv)

	return x86, nil, nil
}

func lowerInvoke(inst *ir.Instruction) (*ir.Instruction, []*ir.Instruction, error) {
	old := inst.Result.Value()

	if _, err := operandSize(old); err != nil {
		return nil, nil, err
	}

	nv := ir.NewValue(ir.RegisterMode, old.Type)

	call := ir.NewInstruction(ir.InstCall)
	call.Callee = inst.Callee
	call.Operands = make([]ir.ValueUse, len(inst.Operands))

	for i := range inst.Operands {
		v := inst.Operands[i].Value()
		if v == nil {
			return nil, nil, errors.New("Invoke: missing operand %d", i)
		}

		call.Operands[i].Set(v)
	}

	call.Result.Set(nv)

	old.ReplaceAllUses(nv)

	return call, nil, nil
}

func lowerBranch(b *ir.Branch) error {
	switch b.Kind {
	case ir.BranchFunctionReturn:
		b.Kind = ir.BranchRet
	case ir.BranchUnconditional:
		b.Kind = ir.BranchJmp
	case ir.BranchConditional:
		b.Kind = ir.BranchJnz
	default:
		return errors.New("unknown generic branch kind %v", b.Kind)
	}

	return nil
}
