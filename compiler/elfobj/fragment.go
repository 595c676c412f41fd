// Package elfobj models the pieces of an ELF64 object file as a
// mutable graph of Fragments, Strings, Symbols and Relocations, the
// way compiler/ir models a function as a graph of Values and
// Instructions. compiler/emit populates an Object per function;
// compiler/elfpipe lays it out and serialises it.
package elfobj

import "debug/elf"

// FragmentKind classifies a Fragment. Kind ordering is fixed: Phdrs
// and Shdrs lead, then every kind from DynamicSection through
// ByteSection is a "section" and gets a section-header-table index.
type FragmentKind int

const (
	FragmentInvalid FragmentKind = iota
	Phdrs
	Shdrs
	DynamicSection
	StringTableSection
	SymbolTableSection
	RelocationSection
	HashSection
	ByteSection
)

// IsSection reports whether fragments of this kind occupy a
// section-header-table slot.
func (k FragmentKind) IsSection() bool { return k >= DynamicSection }

// Fragment is anything that occupies space in the final file.
type Fragment struct {
	Kind FragmentKind

	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag

	// DesignatedIndex is the 1-based section-header-table index,
	// assigned during Layout. 0 means "not a section" or "not laid
	// out yet".
	DesignatedIndex int

	FileOffset     int64
	VirtualAddress uint64
	ComputedSize   int64

	SectionLink FragmentUse
	SectionInfo uint32
	EntrySize   uint64

	// Buffer is the fragment's raw bytes for ByteSection fragments
	// (e.g. .text, .got, .plt); other kinds compute their bytes from
	// Object state during FileEmitter.
	Buffer []byte
}

// FragmentUse is a ValueUse-shaped reference to a Fragment, letting a
// fragment (e.g. a relocation section) name another (its symbol
// table) without a direct unmanaged pointer, and supporting
// whole-object fragment replacement the way ir.ValueUse supports
// whole-value replacement.
type FragmentUse struct {
	fragment *Fragment
}

func (u *FragmentUse) Set(f *Fragment) { u.fragment = f }
func (u *FragmentUse) Fragment() *Fragment { return u.fragment }

// NewFragment constructs a fragment of the given kind and name, not
// yet attached to an Object.
func NewFragment(kind FragmentKind, name string) *Fragment {
	return &Fragment{Kind: kind, Name: name}
}
