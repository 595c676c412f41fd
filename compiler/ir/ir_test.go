package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueUseTracking(t *testing.T) {
	v := NewValue(LocalValue, Int64Type)
	require.Empty(t, v.Uses())

	inst := NewAdd(v, v, NewValue(LocalValue, Int64Type))
	require.Len(t, v.Uses(), 2, "v is used twice, as both operands")

	w := NewValue(LocalValue, Int64Type)
	v.ReplaceAllUses(w)
	require.Empty(t, v.Uses())
	require.Len(t, w.Uses(), 2)
	require.Equal(t, w, inst.Left.Value())
	require.Equal(t, w, inst.Right.Value())
}

func TestBasicBlockOrdering(t *testing.T) {
	b := NewBasicBlock(0, "entry")

	a := NewLoadConst(1, NewValue(LocalValue, Int64Type))
	c := NewLoadConst(2, NewValue(LocalValue, Int64Type))
	b.Append(a)
	b.Append(c)

	mid := NewLoadConst(3, NewValue(LocalValue, Int64Type))
	b.InsertBefore(Iterator{b, 1}, mid)

	require.Equal(t, []*Instruction{a, mid, c}, b.Instructions())

	idx, ok := b.IndexOf(mid)
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestFunctionEntry(t *testing.T) {
	fn := NewFunction("main")
	require.Nil(t, fn.Entry())

	entry := fn.AddBlock("entry")
	require.Same(t, entry, fn.Entry())

	var visited []string
	fn.AllInstructions(func(block *BasicBlock, inst *Instruction) {
		visited = append(visited, block.Name)
	})
	require.Empty(t, visited)
}

func TestOperandSize(t *testing.T) {
	size, err := Int64Type.OperandSize()
	require.NoError(t, err)
	require.Equal(t, Qword, size)

	size, err = Int32Type.OperandSize()
	require.NoError(t, err)
	require.Equal(t, Dword, size)

	voidType := &Type{name: "void"}
	_, err = voidType.OperandSize()
	require.Error(t, err)
}
