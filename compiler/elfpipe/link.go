package elfpipe

import (
	"context"
	"encoding/binary"

	"github.com/managarm/lewis/compiler/elfobj"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// symbolAddress returns a symbol's virtual address: its section's
// base plus its own value. A symbol with no section (the dynamic
// external placeholder synthesised for a Call's callee) has no
// virtual address and must never reach InternalLink.
func symbolAddress(sym *elfobj.Symbol) (uint64, error) {
	section := sym.Section.Fragment()
	if section == nil {
		return 0, errors.New("symbol %v has no section, cannot be internally linked", sym.Name.Value)
	}

	return section.VirtualAddress + sym.Value, nil
}

// InternalLink resolves every internal relocation by patching its
// 32-bit PC-relative displacement in place, per spec §4.4.3. Layout
// must already have assigned every fragment's VirtualAddress.
func InternalLink(ctx context.Context, obj *elfobj.Object) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "elfpipe: internal link")
	defer tr.Finish("err", &err)

	for _, r := range obj.InternalRelocations {
		section := r.Section.Fragment()
		if section == nil {
			return errors.New("internal relocation at offset %d has no section", r.Offset)
		}

		symAddr, err := symbolAddress(r.Symbol)
		if err != nil {
			return errors.Wrap(err, "relocation at %v+%d", section.Name, r.Offset)
		}

		relocAddr := section.VirtualAddress + uint64(r.Offset)
		value := int64(symAddr) - int64(relocAddr) + r.Addend

		if value < -(1<<31) || value >= (1<<31) {
			return errors.New("relocation at %v+%d overflows 32 bits: %d", section.Name, r.Offset, value)
		}

		if int(r.Offset)+4 > len(section.Buffer) {
			return errors.New("relocation at %v+%d falls outside its section buffer", section.Name, r.Offset)
		}

		binary.LittleEndian.PutUint32(section.Buffer[r.Offset:], uint32(int32(value)))
	}

	tr.Printw("internal link done", "relocations", len(obj.InternalRelocations))

	return nil
}
