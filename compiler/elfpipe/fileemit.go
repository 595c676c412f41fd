package elfpipe

import (
	"context"
	"debug/elf"
	"encoding/binary"

	"github.com/managarm/lewis/compiler/elfobj"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

const (
	dtStrtab  = int64(elf.DT_STRTAB)
	dtSymtab  = int64(elf.DT_SYMTAB)
	dtHash    = int64(elf.DT_HASH)
	dtJmprel  = int64(elf.DT_JMPREL)
	dtPltrelsz = int64(elf.DT_PLTRELSZ)
	dtNull    = int64(elf.DT_NULL)
)

func put8(buf *[]byte, v uint8)   { *buf = append(*buf, v) }
func put16(buf *[]byte, v uint16) { *buf = append(*buf, byte(v), byte(v>>8)) }

func put32(buf *[]byte, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	*buf = append(*buf, tmp[:]...)
}

func put64(buf *[]byte, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	*buf = append(*buf, tmp[:]...)
}

// FileEmitter serialises the fully laid-out and linked Object into
// its final byte image in one forward pass, per spec §4.4.4.
func FileEmitter(ctx context.Context, obj *elfobj.Object) (out []byte, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "elfpipe: file emitter")
	defer tr.Finish("err", &err)

	sections := obj.Sections()

	emitEhdr(&out, obj, len(sections))

	for _, f := range obj.Fragments {
		if int64(len(out)) > f.FileOffset {
			return nil, errors.New("fragment %v: layout invariant violated, offset %d already passed at %d", f.Name, f.FileOffset, len(out))
		}

		for int64(len(out)) < f.FileOffset {
			out = append(out, 0)
		}

		if err := emitFragment(&out, obj, f); err != nil {
			return nil, errors.Wrap(err, "fragment %v", f.Name)
		}
	}

	tr.Printw("file emitted", "bytes", len(out))

	return out, nil
}

func emitEhdr(out *[]byte, obj *elfobj.Object, numSections int) {
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	*out = append(*out, ident[:]...)

	put16(out, uint16(elf.ET_DYN))
	put16(out, uint16(elf.EM_X86_64))
	put32(out, 1)
	put64(out, 0) // e_entry: no fixed entry point is mandated by this object model
	put64(out, uint64(obj.PhdrsFragment.FileOffset))
	put64(out, uint64(obj.ShdrsFragment.FileOffset))
	put32(out, 0)
	put16(out, ehdrSize)
	put16(out, phdrSize)
	put16(out, uint16(len(obj.Fragments)+1))
	put16(out, shdrSize)
	put16(out, uint16(1+numSections))
	put16(out, uint16(obj.StringTableFragment.DesignatedIndex))
}

func emitFragment(out *[]byte, obj *elfobj.Object, f *elfobj.Fragment) error {
	switch f.Kind {
	case elfobj.Phdrs:
		emitPhdrs(out, obj)
	case elfobj.Shdrs:
		emitShdrs(out, obj)
	case elfobj.DynamicSection:
		emitDynamic(out, obj)
	case elfobj.StringTableSection:
		emitStrtab(out, obj)
	case elfobj.SymbolTableSection:
		emitSymtab(out, obj)
	case elfobj.RelocationSection:
		emitRelocations(out, obj)
	case elfobj.HashSection:
		emitHash(out, obj)
	case elfobj.ByteSection:
		*out = append(*out, f.Buffer...)
	default:
		return errors.New("fragment kind %v has no emission rule", f.Kind)
	}

	return nil
}

func phdrFlags(f *elfobj.Fragment) uint32 {
	flags := uint32(elf.PF_R)

	if f.Flags&elf.SHF_WRITE != 0 {
		flags |= uint32(elf.PF_W)
	}

	if f.Flags&elf.SHF_EXECINSTR != 0 {
		flags |= uint32(elf.PF_X)
	}

	return flags
}

func emitPhdrEntry(out *[]byte, typ elf.ProgType, flags uint32, offset int64, vaddr uint64, size int64, align uint64) {
	put32(out, uint32(typ))
	put32(out, flags)
	put64(out, uint64(offset))
	put64(out, vaddr)
	put64(out, vaddr)
	put64(out, uint64(size))
	put64(out, uint64(size))
	put64(out, align)
}

func emitPhdrs(out *[]byte, obj *elfobj.Object) {
	for _, f := range obj.Fragments {
		emitPhdrEntry(out, elf.PT_LOAD, phdrFlags(f), f.FileOffset, f.VirtualAddress, f.ComputedSize, pageSize)
	}

	d := obj.DynamicFragment
	emitPhdrEntry(out, elf.PT_DYNAMIC, uint32(elf.PF_R|elf.PF_W), d.FileOffset, d.VirtualAddress, d.ComputedSize, 8)
}

func emitShdrs(out *[]byte, obj *elfobj.Object) {
	put32(out, 0)
	put32(out, 0)
	put64(out, 0)
	put64(out, 0)
	put64(out, 0)
	put64(out, 0)
	put32(out, 0)
	put32(out, 0)
	put64(out, 0)
	put64(out, 0)

	for _, f := range obj.Sections() {
		var link uint32
		if linked := f.SectionLink.Fragment(); linked != nil {
			link = uint32(linked.DesignatedIndex)
		}

		put32(out, 0) // sh_name: section-name strings are not modelled
		put32(out, uint32(f.Type))
		put64(out, uint64(f.Flags))
		put64(out, f.VirtualAddress)
		put64(out, uint64(f.FileOffset))
		put64(out, uint64(f.ComputedSize))
		put32(out, link)
		put32(out, f.SectionInfo)
		put64(out, 8)
		put64(out, f.EntrySize)
	}
}

func emitDynamic(out *[]byte, obj *elfobj.Object) {
	entry := func(tag int64, val uint64) {
		put64(out, uint64(tag))
		put64(out, val)
	}

	entry(dtStrtab, obj.StringTableFragment.VirtualAddress)
	entry(dtSymtab, obj.SymbolTableFragment.VirtualAddress)
	entry(dtHash, obj.HashFragment.VirtualAddress)
	entry(dtJmprel, obj.PltRelocFragment.VirtualAddress)
	entry(dtPltrelsz, uint64(obj.PltRelocFragment.ComputedSize))
	entry(dtNull, 0)
}

func emitStrtab(out *[]byte, obj *elfobj.Object) {
	put8(out, 0)

	for _, s := range obj.Strings {
		*out = append(*out, s.Value...)
		put8(out, 0)
	}
}

func emitSymtab(out *[]byte, obj *elfobj.Object) {
	for i := 0; i < 24; i++ {
		put8(out, 0)
	}

	for _, sym := range obj.Symbols {
		var shndx uint16
		var value uint64

		if section := sym.Section.Fragment(); section != nil {
			shndx = uint16(section.DesignatedIndex)
			value = section.VirtualAddress + sym.Value
		}

		put32(out, uint32(sym.Name.DesignatedOffset))
		put8(out, (1<<4)|2) // STB_GLOBAL<<4 | STT_FUNC
		put8(out, 0)
		put16(out, shndx)
		put64(out, value)
		put64(out, 0)
	}
}

func emitRelocations(out *[]byte, obj *elfobj.Object) {
	for _, r := range obj.ExternalRelocations {
		addr := r.Section.Fragment().VirtualAddress + uint64(r.Offset)
		info := uint64(r.Symbol.DesignatedIndex)<<32 | uint64(elf.R_X86_64_JMP_SLOT)

		put64(out, addr)
		put64(out, info)
		put64(out, 0)
	}
}

func emitHash(out *[]byte, obj *elfobj.Object) {
	put32(out, uint32(len(obj.HashBuckets)))
	put32(out, uint32(len(obj.HashChains)))

	for _, b := range obj.HashBuckets {
		put32(out, uint32(b))
	}

	for _, c := range obj.HashChains {
		put32(out, uint32(c))
	}
}
