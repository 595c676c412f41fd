package emit

import (
	"context"
	"debug/elf"

	"github.com/managarm/lewis/compiler/elfobj"
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// state is shared across every function emitted into one Object: the
// three well-known code/data sections and the GOT/PLT cache keyed by
// external callee name.
type State struct {
	obj *elfobj.Object

	text *elfobj.Fragment
	got  *elfobj.Fragment
	plt  *elfobj.Fragment

	callees map[string]*calleeSite
}

// NewState prepares obj's .text/.got/.plt fragments (creating them on
// first use, per spec §4.3.1) and returns a state ready to emit any
// number of functions into it.
func NewState(obj *elfobj.Object) *State {
	st := &State{obj: obj, callees: map[string]*calleeSite{}}

	if obj.TextFragment == nil {
		obj.TextFragment = obj.AddFragment(&elfobj.Fragment{
			Kind: elfobj.ByteSection, Name: ".text",
			Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		})
	}

	if obj.GotFragment == nil {
		obj.GotFragment = obj.AddFragment(&elfobj.Fragment{
			Kind: elfobj.ByteSection, Name: ".got",
			Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC,
		})
	}

	if obj.PltFragment == nil {
		obj.PltFragment = obj.AddFragment(&elfobj.Fragment{
			Kind: elfobj.ByteSection, Name: ".plt",
			Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		})
	}

	st.text = obj.TextFragment
	st.got = obj.GotFragment
	st.plt = obj.PltFragment

	return st
}

// funcState tracks the per-function bookkeeping needed while
// emitting: the reserved symbol for every basic block, so forward
// jumps can be relocated before the target block's address is known.
type funcState struct {
	st           *State
	blockSymbols map[*ir.BasicBlock]*elfobj.Symbol
}

// Function implements spec §4.3: it appends fn's machine code to
// st's .text fragment, synthesising GOT/PLT entries for any external
// callee it calls for the first time, and emits one symbol per basic
// block: the entry block's symbol carries the function's name, every
// other block's is named "<function>.<block>".
func Function(ctx context.Context, st *State, fn *ir.Function) (err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "emit: function", "name", fn.Name)
	defer tr.Finish("err", &err)

	fs := &funcState{st: st, blockSymbols: map[*ir.BasicBlock]*elfobj.Symbol{}}

	for _, block := range fn.Blocks {
		fs.blockSymbols[block] = st.obj.AddSymbol(fn.Name+"."+block.Name, st.text, 0)
	}

	entry := fn.Entry()
	if entry == nil {
		return errors.New("function %v has no entry block", fn.Name)
	}

	entrySym := fs.blockSymbols[entry]
	entrySym.Name = st.obj.Intern(fn.Name)

	for _, block := range fn.Blocks {
		sym := fs.blockSymbols[block]
		sym.Value = uint64(len(st.text.Buffer))

		for _, inst := range block.Instructions() {
			if inst.Kind == ir.InstCall {
				if err := fs.emitCall(inst); err != nil {
					return errors.Wrap(err, "block %v: call", block.Name)
				}

				continue
			}

			if err := fs.emitInstruction(inst); err != nil {
				return errors.Wrap(err, "block %v: instruction %v", block.Name, inst.Kind)
			}
		}

		if err := fs.emitBranch(block); err != nil {
			return errors.Wrap(err, "block %v", block.Name)
		}
	}

	return nil
}
