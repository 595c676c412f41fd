package ir

// This file collects small constructors a driver uses to assemble
// generic IR by hand; the back end never calls these itself, only the
// lowering pass that reads the instructions they build.

// NewLoadConst builds a LoadConst instruction producing result.
func NewLoadConst(k int64, result *Value) *Instruction {
	inst := NewInstruction(InstLoadConst)
	inst.Const = k
	inst.Result.Set(result)

	return inst
}

// NewLoadOffset builds a LoadOffset instruction reading base+off.
func NewLoadOffset(base *Value, off int64, result *Value) *Instruction {
	inst := NewInstruction(InstLoadOffset)
	inst.Base.Set(base)
	inst.Offset = off
	inst.Result.Set(result)

	return inst
}

// NewNegate builds a UnaryMath{negate} instruction.
func NewNegate(x *Value, result *Value) *Instruction {
	inst := NewInstruction(InstUnaryMathNegate)
	inst.Operand.Set(x)
	inst.Result.Set(result)

	return inst
}

// NewAdd builds a BinaryMath{add} instruction.
func NewAdd(l, r *Value, result *Value) *Instruction {
	inst := NewInstruction(InstBinaryMathAdd)
	inst.Left.Set(l)
	inst.Right.Set(r)
	inst.Result.Set(result)

	return inst
}

// NewBitwiseAnd builds a BinaryMath{bitwiseAnd} instruction.
func NewBitwiseAnd(l, r *Value, result *Value) *Instruction {
	inst := NewInstruction(InstBinaryMathAnd)
	inst.Left.Set(l)
	inst.Right.Set(r)
	inst.Result.Set(result)

	return inst
}

// NewInvoke builds an Invoke instruction calling name with operands.
func NewInvoke(name string, operands []*Value, result *Value) *Instruction {
	inst := NewInstruction(InstInvoke)
	inst.Callee = name
	inst.Operands = make([]ValueUse, len(operands))

	for i, v := range operands {
		inst.Operands[i].Set(v)
	}

	inst.Result.Set(result)

	return inst
}

// NewFunctionReturn builds a FunctionReturn(n) terminator.
func NewFunctionReturn(operands []*Value) *Branch {
	b := &Branch{Kind: BranchFunctionReturn}
	b.ReturnOperands = make([]ValueUse, len(operands))

	for i, v := range operands {
		b.ReturnOperands[i].Set(v)
	}

	return b
}

// NewUnconditional builds an Unconditional(target) terminator.
func NewUnconditional(target *BasicBlock) *Branch {
	return &Branch{Kind: BranchUnconditional, Target: target}
}

// NewConditional builds a Conditional(operand, ifTarget, elseTarget) terminator.
func NewConditional(operand *Value, ifTarget, elseTarget *BasicBlock) *Branch {
	b := &Branch{Kind: BranchConditional, IfTarget: ifTarget, ElseTarget: elseTarget}
	b.Operand.Set(operand)

	return b
}
