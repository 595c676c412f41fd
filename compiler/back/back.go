// Package back implements the x86-64 register allocator: it turns the
// x86 IR produced by compiler/lower into the same IR with every Value
// carrying a concrete register, pseudo-moves resolved to real move or
// exchange instructions, and a prologue/epilogue fitted around the
// callee-saved registers it actually used.
package back

import (
	"context"

	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Stats summarizes one function's allocation run, reported back to
// the driver the way compiler/back's older passes reported job
// counts through tlog.
type Stats struct {
	Compounds     int
	UsedRegisters uint16
	CalleeSaved   int
}

// Allocate runs the whole register allocation pipeline over fn, which
// must already be in x86 IR form (see compiler/lower). It mutates fn
// in place: every surviving Value gets a register, PseudoMoveSingle
// and PseudoMoveMultiple instructions are replaced by concrete moves
// or removed as Nop, and a prologue/epilogue is installed.
func Allocate(ctx context.Context, fn *ir.Function) (stats *Stats, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "back: allocate", "func", fn.Name)
	defer tr.Finish("err", &err)

	st, err := insertPseudoMoves(fn)
	if err != nil {
		return nil, errors.Wrap(err, "insert pseudo-moves")
	}

	compounds, err := buildCompounds(fn, st)
	if err != nil {
		return nil, errors.Wrap(err, "build intervals")
	}

	if tr.If("dump_compounds") {
		for i, c := range compounds {
			tr.Printw("compound", "i", i, "restricted", c.Restricted(), "intervals", len(c.Intervals))
		}
	}

	a, err := allocate(compounds)
	if err != nil {
		return nil, errors.Wrap(err, "assign registers")
	}

	if err := establish(fn); err != nil {
		return nil, errors.Wrap(err, "establish moves")
	}

	addPrologueEpilogue(fn, a.usedRegisters)

	stats = &Stats{
		Compounds:     len(compounds),
		UsedRegisters: a.usedRegisters,
		CalleeSaved:   len(usedCalleeSaved(a.usedRegisters)),
	}

	tr.Printw("allocation done", "compounds", stats.Compounds, "used_registers", stats.UsedRegisters, "callee_saved", stats.CalleeSaved)

	return stats, nil
}
