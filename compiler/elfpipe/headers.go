// Package elfpipe turns a populated compiler/elfobj.Object into the
// finished ELF64 byte image: header synthesis, layout, internal
// relocation resolution, and serialization, in that fixed order.
package elfpipe

import (
	"context"
	"debug/elf"

	"github.com/managarm/lewis/compiler/elfobj"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// CreateHeaders prepends the fixed leading fragments spec §4.4.1
// requires, in kind order, ahead of whatever byte sections the
// emitter already added. Layout depends on seeing them first.
func CreateHeaders(ctx context.Context, obj *elfobj.Object) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "elfpipe: create headers")
	defer tr.Finish("err", &err)

	if obj.PhdrsFragment != nil {
		return errors.New("headers already created")
	}

	phdrs := elfobj.NewFragment(elfobj.Phdrs, "")
	shdrs := elfobj.NewFragment(elfobj.Shdrs, "")

	dynamic := elfobj.NewFragment(elfobj.DynamicSection, ".dynamic")
	dynamic.Type = elf.SHT_DYNAMIC
	dynamic.Flags = elf.SHF_ALLOC | elf.SHF_WRITE

	strtab := elfobj.NewFragment(elfobj.StringTableSection, ".strtab")
	strtab.Type = elf.SHT_STRTAB

	symtab := elfobj.NewFragment(elfobj.SymbolTableSection, ".symtab")
	symtab.Type = elf.SHT_SYMTAB
	symtab.SectionLink.Set(strtab)
	symtab.SectionInfo = 1
	symtab.EntrySize = 24

	relaplt := elfobj.NewFragment(elfobj.RelocationSection, ".rela.plt")
	relaplt.Type = elf.SHT_RELA
	relaplt.Flags = elf.SHF_ALLOC
	relaplt.SectionLink.Set(symtab)
	relaplt.EntrySize = 24

	hash := elfobj.NewFragment(elfobj.HashSection, ".hash")
	hash.Type = elf.SHT_HASH
	hash.Flags = elf.SHF_ALLOC
	hash.SectionLink.Set(symtab)

	leading := []*elfobj.Fragment{phdrs, shdrs, dynamic, strtab, symtab, relaplt, hash}
	obj.Fragments = append(leading, obj.Fragments...)

	obj.PhdrsFragment = phdrs
	obj.ShdrsFragment = shdrs
	obj.DynamicFragment = dynamic
	obj.StringTableFragment = strtab
	obj.SymbolTableFragment = symtab
	obj.PltRelocFragment = relaplt
	obj.HashFragment = hash

	return nil
}
