package elfpipe

import (
	"context"

	"github.com/managarm/lewis/compiler/elfobj"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

const (
	ehdrSize  = 64
	pageSize  = 0x1000
	phdrSize  = 56
	shdrSize  = 64
	dynEntSize = 16
	dynEntries = 6
)

// pageAlign rounds v up to the next page boundary.
func pageAlign(v int64) int64 { return (v + pageSize - 1) &^ (pageSize - 1) }

// Layout walks obj's fragments in insertion order, computing each
// one's size, 8-byte-aligned file offset, and virtual address (on a
// fresh page, congruent to its file offset mod 0x1000), per spec §4.4.2.
func Layout(ctx context.Context, obj *elfobj.Object) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "elfpipe: layout")
	defer tr.Finish("err", &err)

	if obj.PhdrsFragment == nil {
		return errors.New("CreateHeaders must run before Layout")
	}

	sections := obj.Sections()

	var offset int64 = ehdrSize
	var address int64

	sectionIndex := 1

	for _, f := range obj.Fragments {
		offset = (offset + 7) &^ 7
		address = pageAlign(address) | (offset & (pageSize - 1))

		size, err := fragmentSize(obj, f, len(sections))
		if err != nil {
			return errors.Wrap(err, "fragment %v", f.Name)
		}

		f.FileOffset = offset
		f.VirtualAddress = uint64(address)
		f.ComputedSize = size

		if f.Kind.IsSection() {
			f.DesignatedIndex = sectionIndex
			sectionIndex++
		}

		offset += size
		address += size
	}

	tr.Printw("layout done", "fragments", len(obj.Fragments), "sections", len(sections), "end_offset", offset)

	return nil
}

// fragmentSize computes one fragment's size, assigning any
// layout-dependent bookkeeping (string offsets, symbol/relocation
// indices, hash buckets) as a side effect of visiting it, mirroring
// the single forward pass spec §4.4.2 describes.
func fragmentSize(obj *elfobj.Object, f *elfobj.Fragment, numSections int) (int64, error) {
	switch f.Kind {
	case elfobj.Phdrs:
		return int64(len(obj.Fragments)+1) * phdrSize, nil

	case elfobj.Shdrs:
		return int64(1+numSections) * shdrSize, nil

	case elfobj.DynamicSection:
		return dynEntries * dynEntSize, nil

	case elfobj.StringTableSection:
		return layoutStrings(obj), nil

	case elfobj.SymbolTableSection:
		return layoutSymbols(obj), nil

	case elfobj.RelocationSection:
		return layoutRelocations(obj), nil

	case elfobj.HashSection:
		return layoutHash(obj), nil

	case elfobj.ByteSection:
		return int64(len(f.Buffer)), nil

	default:
		return 0, errors.New("fragment kind %v has no size rule", f.Kind)
	}
}

func layoutStrings(obj *elfobj.Object) int64 {
	offset := int64(1)

	for _, s := range obj.Strings {
		s.DesignatedOffset = offset
		offset += int64(len(s.Value)) + 1
	}

	return offset
}

func layoutSymbols(obj *elfobj.Object) int64 {
	for i, sym := range obj.Symbols {
		sym.DesignatedIndex = i + 1
	}

	return int64(1+len(obj.Symbols)) * 24
}

func layoutRelocations(obj *elfobj.Object) int64 {
	for i, r := range obj.ExternalRelocations {
		r.DesignatedIndex = i
	}

	for i, r := range obj.InternalRelocations {
		r.DesignatedIndex = i
	}

	return int64(len(obj.ExternalRelocations)) * 24
}
