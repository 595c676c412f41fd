package elfobj

import "tlog.app/go/errors"

type (
	// String is a pooled, deduplicated entry in the string table; its
	// offset within the string table is unknown until Layout visits
	// the pool.
	String struct {
		Value            string
		DesignatedOffset int64
	}

	// Symbol names a location inside a section-kind Fragment.
	Symbol struct {
		Name            *String
		Section         FragmentUse
		Value           uint64
		DesignatedIndex int
	}

	// RelocationKind distinguishes relocations the dynamic linker
	// resolves from relocations the back end resolves itself.
	RelocationKind int

	// Relocation names a field inside Section's buffer at Offset. An
	// External one is resolved at load time: it is emitted into
	// .rela.plt as a jump-slot entry for the 8-byte GOT slot there. An
	// Internal one is resolved at link-pass time: InternalLink writes
	// a 32-bit little-endian PC-relative value there.
	Relocation struct {
		Kind            RelocationKind
		Section         FragmentUse
		Offset          int64
		Symbol          *Symbol
		Addend          int64
		DesignatedIndex int
	}
)

const (
	RelocationInvalid RelocationKind = iota
	ExternalRelocation
	InternalRelocation
)

// Object owns every fragment, string, symbol and relocation belonging
// to one output file, plus named slots for the fragments every object
// carries regardless of how many functions it contains.
type Object struct {
	Fragments []*Fragment
	Strings   []*String
	Symbols   []*Symbol

	ExternalRelocations []*Relocation
	InternalRelocations []*Relocation

	PhdrsFragment        *Fragment
	ShdrsFragment        *Fragment
	DynamicFragment      *Fragment
	StringTableFragment  *Fragment
	SymbolTableFragment  *Fragment
	PltRelocFragment     *Fragment
	HashFragment         *Fragment

	TextFragment *Fragment
	GotFragment  *Fragment
	PltFragment  *Fragment

	// HashBuckets/HashChains are the SysV hash table arrays computed
	// by elfpipe.Layout; FileEmitter serializes them verbatim.
	HashBuckets []int
	HashChains  []int
}

// NewObject constructs an empty object. CreateHeaders (in
// compiler/elfpipe) prepends the fixed header fragments ahead of any
// function output already added, and must run before Layout.
func NewObject() *Object {
	return &Object{}
}

// AddFragment appends f to the object's fragment list, which is also
// the fragment's emission and layout order.
func (o *Object) AddFragment(f *Fragment) *Fragment {
	o.Fragments = append(o.Fragments, f)

	return f
}

// Intern returns the pooled String for s, creating it on first use.
func (o *Object) Intern(s string) *String {
	for _, existing := range o.Strings {
		if existing.Value == s {
			return existing
		}
	}

	str := &String{Value: s}
	o.Strings = append(o.Strings, str)

	return str
}

// AddSymbol creates a symbol named name pointing into section at the
// given value.
func (o *Object) AddSymbol(name string, section *Fragment, value uint64) *Symbol {
	sym := &Symbol{Name: o.Intern(name), Value: value}
	sym.Section.Set(section)

	o.Symbols = append(o.Symbols, sym)

	return sym
}

// AddRelocation registers a relocation of the given kind against
// section's buffer.
func (o *Object) AddRelocation(kind RelocationKind, section *Fragment, offset int64, sym *Symbol, addend int64) *Relocation {
	r := &Relocation{Kind: kind, Offset: offset, Symbol: sym, Addend: addend}
	r.Section.Set(section)

	switch kind {
	case ExternalRelocation:
		o.ExternalRelocations = append(o.ExternalRelocations, r)
	case InternalRelocation:
		o.InternalRelocations = append(o.InternalRelocations, r)
	}

	return r
}

// Sections returns every fragment that occupies a section-header-table
// slot, in emission order.
func (o *Object) Sections() []*Fragment {
	var sections []*Fragment

	for _, f := range o.Fragments {
		if f.Kind.IsSection() {
			sections = append(sections, f)
		}
	}

	return sections
}

// Validate checks the invariants of spec §3.3 that Layout and
// FileEmitter otherwise assume silently: fragment kind ordering,
// 1-based and unique section indices, 8-byte-aligned file offsets,
// virtual addresses congruent to file offsets mod 0x1000, that every
// string but the first and every symbol has been assigned its
// designated position, and that every relocation names a section.
// Intended to run after Layout, as a cheap sanity check before
// FileEmitter.
func (o *Object) Validate() error {
	lastKind := FragmentInvalid
	sectionIndices := map[int]bool{}

	for i, f := range o.Fragments {
		if f.Kind < lastKind {
			return errors.New("fragment %d (%v) violates kind ordering after %v", i, f.Kind, lastKind)
		}

		lastKind = f.Kind

		if f.Kind.IsSection() && f.DesignatedIndex < 1 {
			return errors.New("fragment %d (%v) has no section index", i, f.Name)
		}

		if f.Kind.IsSection() {
			if sectionIndices[f.DesignatedIndex] {
				return errors.New("fragment %d (%v) reuses section index %d", i, f.Name, f.DesignatedIndex)
			}

			sectionIndices[f.DesignatedIndex] = true
		}

		if f.ComputedSize < 0 {
			return errors.New("fragment %d (%v) has negative size", i, f.Name)
		}

		if f.FileOffset%8 != 0 {
			return errors.New("fragment %d (%v) file offset %d is not 8-byte aligned", i, f.Name, f.FileOffset)
		}

		if f.VirtualAddress%0x1000 != uint64(f.FileOffset)%0x1000 {
			return errors.New("fragment %d (%v) virtual address %#x is not congruent to its file offset mod 0x1000", i, f.Name, f.VirtualAddress)
		}
	}

	for i, s := range o.Strings {
		if i == 0 {
			continue
		}

		if s.DesignatedOffset <= 0 {
			return errors.New("string %q has no offset", s.Value)
		}
	}

	for _, sym := range o.Symbols {
		if sym.DesignatedIndex < 1 {
			return errors.New("symbol %q has no index", sym.Name.Value)
		}
	}

	for _, pool := range [][]*Relocation{o.ExternalRelocations, o.InternalRelocations} {
		for _, r := range pool {
			if r.Section.Fragment() == nil {
				return errors.New("relocation at offset %d has no section", r.Offset)
			}
		}
	}

	return nil
}
