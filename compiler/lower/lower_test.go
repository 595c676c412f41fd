package lower

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/managarm/lewis/compiler/ir"
)

func TestLowerLoadConstAndReturn(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	result := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(7, result))
	entry.Branch = ir.NewFunctionReturn([]*ir.Value{result})

	require.NoError(t, Function(context.Background(), fn))

	require.Len(t, entry.Instructions(), 1)
	inst := entry.Instructions()[0]
	require.Equal(t, ir.InstMovMC, inst.Kind)
	require.Equal(t, int64(7), inst.Const)
	require.Equal(t, ir.RegisterMode, inst.Result.Value().Kind)

	require.Equal(t, ir.BranchRet, entry.Branch.Kind)
	require.Equal(t, inst.Result.Value(), entry.Branch.ReturnOperands[0].Value())
}

func TestLowerInvokeProducesCall(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	code := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(0, code))

	discard := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewInvoke("exit", []*ir.Value{code}, discard))
	entry.Branch = ir.NewFunctionReturn(nil)

	require.NoError(t, Function(context.Background(), fn))

	insts := entry.Instructions()
	require.Len(t, insts, 2)
	require.Equal(t, ir.InstMovMC, insts[0].Kind)
	require.Equal(t, ir.InstCall, insts[1].Kind)
	require.Equal(t, "exit", insts[1].Callee)
	require.Equal(t, insts[0].Result.Value(), insts[1].Operands[0].Value())
}

func TestLowerBinaryAdd(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	l := ir.NewValue(ir.LocalValue, ir.Int64Type)
	r := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(1, l))
	entry.Append(ir.NewLoadConst(2, r))

	sum := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewAdd(l, r, sum))
	entry.Branch = ir.NewFunctionReturn([]*ir.Value{sum})

	require.NoError(t, Function(context.Background(), fn))

	insts := entry.Instructions()
	require.Len(t, insts, 3)
	require.Equal(t, ir.InstAddMR, insts[2].Kind)
}

func TestLowerUnknownBranchKindErrors(t *testing.T) {
	b := &ir.Branch{Kind: ir.BranchInvalid}
	require.Error(t, lowerBranch(b))
}
