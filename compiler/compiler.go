// Package compiler wires the pipeline stages (lowering, register
// allocation, machine-code emission, ELF layout) into the single
// entry point a driver calls once per package of functions.
package compiler

import (
	"context"

	"github.com/managarm/lewis/compiler/back"
	"github.com/managarm/lewis/compiler/elfobj"
	"github.com/managarm/lewis/compiler/elfpipe"
	"github.com/managarm/lewis/compiler/emit"
	"github.com/managarm/lewis/compiler/ir"
	"github.com/managarm/lewis/compiler/lower"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// CompilePackage runs every function through lowering, register
// allocation and machine-code emission into a shared Object, then
// lays the Object out, resolves its internal relocations, and
// serialises it to an ELF64 byte image.
func CompilePackage(ctx context.Context, fns []*ir.Function) (buf []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compiler: compile package", "functions", len(fns))
	defer tr.Finish("err", &err)

	obj := elfobj.NewObject()
	st := emit.NewState(obj)

	for _, fn := range fns {
		if err := compileFunc(ctx, st, fn); err != nil {
			return nil, errors.Wrap(err, "function %v", fn.Name)
		}
	}

	if err := elfpipe.CreateHeaders(ctx, obj); err != nil {
		return nil, errors.Wrap(err, "create headers")
	}

	if err := elfpipe.Layout(ctx, obj); err != nil {
		return nil, errors.Wrap(err, "layout")
	}

	if err := elfpipe.InternalLink(ctx, obj); err != nil {
		return nil, errors.Wrap(err, "internal link")
	}

	if err := obj.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	buf, err = elfpipe.FileEmitter(ctx, obj)
	if err != nil {
		return nil, errors.Wrap(err, "file emitter")
	}

	tr.Printw("compile package done", "bytes", len(buf))

	return buf, nil
}

func compileFunc(ctx context.Context, st *emit.State, fn *ir.Function) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compiler: compile func", "name", fn.Name)
	defer tr.Finish("err", &err)

	if err := lower.Function(ctx, fn); err != nil {
		return errors.Wrap(err, "lower")
	}

	stats, err := back.Allocate(ctx, fn)
	if err != nil {
		return errors.Wrap(err, "allocate")
	}

	if tr.If("dump_func_before") {
		tr.Printw("allocation stats", "compounds", stats.Compounds, "used_registers", stats.UsedRegisters, "callee_saved", stats.CalleeSaved)
	}

	if err := emit.Function(ctx, st, fn); err != nil {
		return errors.Wrap(err, "emit")
	}

	return nil
}
