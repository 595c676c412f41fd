package elfobj

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternDeduplicates(t *testing.T) {
	o := NewObject()
	a := o.Intern("foo")
	b := o.Intern("foo")
	c := o.Intern("bar")

	require.Same(t, a, b)
	require.NotSame(t, a, c)
	require.Len(t, o.Strings, 2)
}

func TestSectionsFiltersByKind(t *testing.T) {
	o := NewObject()
	o.AddFragment(NewFragment(Phdrs, ""))
	o.AddFragment(NewFragment(Shdrs, ""))
	text := NewFragment(ByteSection, ".text")
	o.AddFragment(text)

	sections := o.Sections()
	require.Len(t, sections, 1)
	require.Same(t, text, sections[0])
}

func TestAddSymbolAndRelocation(t *testing.T) {
	o := NewObject()
	text := o.AddFragment(NewFragment(ByteSection, ".text"))
	text.Buffer = make([]byte, 8)

	sym := o.AddSymbol("main", text, 0)
	require.Equal(t, "main", sym.Name.Value)
	require.Same(t, text, sym.Section.Fragment())

	r := o.AddRelocation(InternalRelocation, text, 4, sym, -4)
	require.Same(t, text, r.Section.Fragment())
	require.Len(t, o.InternalRelocations, 1)
	require.Empty(t, o.ExternalRelocations)
}

// layoutFragments assigns just enough of Layout's bookkeeping by hand
// so Validate can run without pulling in compiler/elfpipe.
func layoutFragments(o *Object) {
	var offset int64

	for i, f := range o.Fragments {
		f.FileOffset = offset
		f.VirtualAddress = uint64(offset)
		f.ComputedSize = int64(len(f.Buffer))

		if f.Kind.IsSection() {
			f.DesignatedIndex = i + 1
		}

		offset += (f.ComputedSize + 7) &^ 7
	}

	for i, s := range o.Strings {
		s.DesignatedOffset = int64(i + 1)
	}

	for i, sym := range o.Symbols {
		sym.DesignatedIndex = i + 1
	}
}

func TestValidatePassesOnWellFormedObject(t *testing.T) {
	o := NewObject()
	text := o.AddFragment(&Fragment{Kind: ByteSection, Name: ".text", Type: elf.SHT_PROGBITS})
	text.Buffer = make([]byte, 8)

	o.AddSymbol("main", text, 0)
	layoutFragments(o)

	require.NoError(t, o.Validate())
}

func TestValidateCatchesMisalignedOffset(t *testing.T) {
	o := NewObject()
	text := o.AddFragment(&Fragment{Kind: ByteSection, Name: ".text"})
	text.Buffer = make([]byte, 8)
	layoutFragments(o)

	text.FileOffset = 3

	require.Error(t, o.Validate())
}

func TestValidateCatchesKindOrderViolation(t *testing.T) {
	o := NewObject()
	o.AddFragment(NewFragment(ByteSection, ".text"))
	o.AddFragment(NewFragment(Shdrs, ""))
	layoutFragments(o)

	require.Error(t, o.Validate())
}

func TestValidateCatchesIncongruentVirtualAddress(t *testing.T) {
	o := NewObject()
	text := o.AddFragment(&Fragment{Kind: ByteSection, Name: ".text"})
	text.Buffer = make([]byte, 8)
	layoutFragments(o)

	text.VirtualAddress += 1

	require.Error(t, o.Validate())
}
