package elfpipe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/managarm/lewis/compiler/elfobj"
)

func TestCreateHeadersPrependsFixedFragments(t *testing.T) {
	obj := elfobj.NewObject()
	text := obj.AddFragment(&elfobj.Fragment{Kind: elfobj.ByteSection, Name: ".text"})
	text.Buffer = []byte{0xc3}

	require.NoError(t, CreateHeaders(context.Background(), obj))

	require.Len(t, obj.Fragments, 8)
	kinds := make([]elfobj.FragmentKind, len(obj.Fragments))
	for i, f := range obj.Fragments {
		kinds[i] = f.Kind
	}

	require.Equal(t, []elfobj.FragmentKind{
		elfobj.Phdrs, elfobj.Shdrs, elfobj.DynamicSection,
		elfobj.StringTableSection, elfobj.SymbolTableSection,
		elfobj.RelocationSection, elfobj.HashSection, elfobj.ByteSection,
	}, kinds)
	require.Same(t, text, obj.Fragments[7])
}

func TestCreateHeadersRejectsDoubleCall(t *testing.T) {
	obj := elfobj.NewObject()
	require.NoError(t, CreateHeaders(context.Background(), obj))
	require.Error(t, CreateHeaders(context.Background(), obj))
}

func TestLayoutAssignsIncreasingOffsets(t *testing.T) {
	obj := elfobj.NewObject()
	text := obj.AddFragment(&elfobj.Fragment{Kind: elfobj.ByteSection, Name: ".text"})
	text.Buffer = make([]byte, 13)

	require.NoError(t, CreateHeaders(context.Background(), obj))
	require.NoError(t, Layout(context.Background(), obj))

	require.Equal(t, int64(ehdrSize), obj.PhdrsFragment.FileOffset)

	var last int64 = -1
	for _, f := range obj.Fragments {
		require.GreaterOrEqual(t, f.FileOffset, last)
		require.Zero(t, f.FileOffset%8)
		last = f.FileOffset
	}

	require.Equal(t, int64(13), text.ComputedSize)
	for _, sect := range obj.Sections() {
		require.GreaterOrEqual(t, sect.DesignatedIndex, 1)
	}
}

func TestSysvHashMatchesHandComputedValues(t *testing.T) {
	// Single byte: h = (0<<4)+'a', no fold, no mask effect.
	require.Equal(t, uint32('a'), sysvHash("a"))

	// Two bytes, still below the fold threshold: h = ('a'<<4)+'b'.
	require.Equal(t, (uint32('a')<<4)+uint32('b'), sysvHash("ab"))
}

func TestCeil2Power(t *testing.T) {
	require.Equal(t, 1, ceil2Power(0))
	require.Equal(t, 1, ceil2Power(1))
	require.Equal(t, 2, ceil2Power(2))
	require.Equal(t, 4, ceil2Power(3))
	require.Equal(t, 8, ceil2Power(5))
}

func TestInternalLinkResolvesRelativeDisplacement(t *testing.T) {
	obj := elfobj.NewObject()
	text := obj.AddFragment(&elfobj.Fragment{Kind: elfobj.ByteSection, Name: ".text"})
	text.Buffer = make([]byte, 16)

	target := obj.AddSymbol("target", text, 10)
	obj.AddRelocation(elfobj.InternalRelocation, text, 2, target, -4)

	require.NoError(t, CreateHeaders(context.Background(), obj))
	require.NoError(t, Layout(context.Background(), obj))
	require.NoError(t, InternalLink(context.Background(), obj))

	// relocationAddr = text.VirtualAddress+2, symbolAddr = text.VirtualAddress+10
	// value = 10 - 2 - 4 = 4
	got := int32(uint32(text.Buffer[2]) | uint32(text.Buffer[3])<<8 | uint32(text.Buffer[4])<<16 | uint32(text.Buffer[5])<<24)
	require.Equal(t, int32(4), got)
}

func TestInternalLinkRejectsExternalSymbol(t *testing.T) {
	obj := elfobj.NewObject()
	text := obj.AddFragment(&elfobj.Fragment{Kind: elfobj.ByteSection, Name: ".text"})
	text.Buffer = make([]byte, 8)

	external := obj.AddSymbol("exit", nil, 0)
	obj.AddRelocation(elfobj.InternalRelocation, text, 0, external, -4)

	require.NoError(t, CreateHeaders(context.Background(), obj))
	require.NoError(t, Layout(context.Background(), obj))

	require.Error(t, InternalLink(context.Background(), obj))
}
