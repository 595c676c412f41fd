package back

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/managarm/lewis/compiler/ir"
	"github.com/managarm/lewis/compiler/lower"
)

// buildReturnConst builds `func main() { return k }` in generic IR and
// lowers it, the smallest function Allocate has to handle.
func buildReturnConst(t *testing.T, k int64) *ir.Function {
	t.Helper()

	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	result := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(k, result))
	entry.Branch = ir.NewFunctionReturn([]*ir.Value{result})

	require.NoError(t, lower.Function(context.Background(), fn))

	return fn
}

func TestAllocateAssignsEveryValueARegister(t *testing.T) {
	fn := buildReturnConst(t, 42)

	stats, err := Allocate(context.Background(), fn)
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.Equal(t, 1, stats.Compounds)

	entry := fn.Entry()
	for _, inst := range entry.Instructions() {
		if v := inst.Result.Value(); v != nil {
			_, err := v.Register()
			require.NoError(t, err, "every surviving value must carry a register after allocation")
		}
	}
}

func TestAllocateSkipsPrologueForCallFreeFunction(t *testing.T) {
	fn := buildReturnConst(t, 1)

	_, err := Allocate(context.Background(), fn)
	require.NoError(t, err)

	entry := fn.Entry()
	for _, inst := range entry.Instructions() {
		require.NotEqual(t, ir.InstDecrementStack, inst.Kind, "a call-free function needs no stack realignment")
	}
}

func TestAllocateAddsPrologueEpilogueAroundCall(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	code := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(7, code))

	discard := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewInvoke("exit", []*ir.Value{code}, discard))
	entry.Branch = ir.NewFunctionReturn(nil)

	require.NoError(t, lower.Function(context.Background(), fn))

	_, err := Allocate(context.Background(), fn)
	require.NoError(t, err)

	var sawAdj bool
	for _, inst := range fn.Entry().Instructions() {
		if inst.Kind == ir.InstDecrementStack {
			sawAdj = true
		}
	}
	require.True(t, sawAdj, "a function with an internal call site aligns its stack")
}

func TestAllocateBinaryOpSharesRegisters(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")

	l := ir.NewValue(ir.LocalValue, ir.Int64Type)
	r := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewLoadConst(1, l))
	entry.Append(ir.NewLoadConst(2, r))

	sum := ir.NewValue(ir.LocalValue, ir.Int64Type)
	entry.Append(ir.NewAdd(l, r, sum))
	entry.Branch = ir.NewFunctionReturn([]*ir.Value{sum})

	require.NoError(t, lower.Function(context.Background(), fn))

	stats, err := Allocate(context.Background(), fn)
	require.NoError(t, err)
	require.NotNil(t, stats)
}
