package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/managarm/lewis/compiler/back"
	"github.com/managarm/lewis/compiler/elfobj"
	"github.com/managarm/lewis/compiler/ir"
	"github.com/managarm/lewis/compiler/lower"
	"github.com/managarm/lewis/compiler/x86enc"
)

// compileToText runs fn through the full lower/allocate/emit pipeline
// and returns the resulting .text bytes, for asserting the literal
// byte-level scenarios documented for this pipeline.
func compileToText(t *testing.T, fn *ir.Function) []byte {
	t.Helper()

	require.NoError(t, lower.Function(context.Background(), fn))
	_, err := back.Allocate(context.Background(), fn)
	require.NoError(t, err)

	obj := elfobj.NewObject()
	st := NewState(obj)
	require.NoError(t, Function(context.Background(), st, fn))

	return st.text.Buffer
}

func TestScenarioMinimalRetNeedsNoPrologue(t *testing.T) {
	fn := ir.NewFunction("f")
	entry := fn.AddBlock("entry")
	entry.Branch = ir.NewFunctionReturn(nil)

	require.Equal(t, []byte{0xc3}, compileToText(t, fn))
}

func TestScenarioConstantReturn(t *testing.T) {
	fn := ir.NewFunction("f")
	entry := fn.AddBlock("entry")

	k := ir.NewValue(ir.LocalValue, ir.Int32Type)
	entry.Append(ir.NewLoadConst(42, k))
	entry.Branch = ir.NewFunctionReturn([]*ir.Value{k})

	require.Equal(t, []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}, compileToText(t, fn))
}

func mustSetRegister(t *testing.T, v *ir.Value, reg int) {
	t.Helper()
	require.NoError(t, v.SetRegister(reg))
}

func TestEmitMovRegImm32MatchesIndependentEncoder(t *testing.T) {
	dst := ir.NewValue(ir.RegisterMode, ir.Int64Type)
	mustSetRegister(t, dst, back.R8)

	inst := ir.NewInstruction(ir.InstMovMC)
	inst.Const = 0x1234
	inst.Result.Set(dst)

	var buf []byte
	require.NoError(t, emitMovMC(&buf, inst))

	expected := x86enc.MovRegImm32(back.R8, 0x1234)
	require.Equal(t, expected, buf)
}

func TestEmitMovRegImm32OnLowRegisterNeedsNoRex(t *testing.T) {
	dst := ir.NewValue(ir.RegisterMode, ir.Int64Type)
	mustSetRegister(t, dst, back.RAX)

	inst := ir.NewInstruction(ir.InstMovMC)
	inst.Const = 0x2a
	inst.Result.Set(dst)

	var buf []byte
	require.NoError(t, emitMovMC(&buf, inst))

	require.Equal(t, []byte{0xb8, 0x2a, 0, 0, 0}, buf, "small registers get B8+reg plus imm32, no REX prefix")
}

func TestModRmEncodingRegisterOperand(t *testing.T) {
	m := ir.NewValue(ir.RegisterMode, ir.Int64Type)
	mustSetRegister(t, m, back.RAX)
	r := ir.NewValue(ir.RegisterMode, ir.Int64Type)
	mustSetRegister(t, r, back.R12)

	var buf []byte
	require.NoError(t, modRmEncoding(&buf, ir.Qword, m, r, 0))

	require.Equal(t, x86enc.RegisterOperand(true, back.R12, back.RAX), buf)
}

func TestModRmEncodingUsesDisp8ForZeroRbpBase(t *testing.T) {
	m := ir.NewValue(ir.BaseDispMemoryMode, ir.PointerType)
	mustSetRegister(t, m, back.RBP)
	m.Displacement = 0

	var buf []byte
	require.NoError(t, modRmEncoding(&buf, ir.Qword, m, nil, 3))

	require.Equal(t, x86enc.BaseDispOperand(true, 3, back.RBP, 0), buf)
}

func TestModRmEncodingInsertsSibForRspBase(t *testing.T) {
	m := ir.NewValue(ir.BaseDispMemoryMode, ir.PointerType)
	mustSetRegister(t, m, back.RSP)
	m.Displacement = 16

	var buf []byte
	require.NoError(t, modRmEncoding(&buf, ir.Qword, m, nil, 0))

	require.Equal(t, x86enc.BaseDispOperand(true, 0, back.RSP, 16), buf)
}

func TestEmitBranchRet(t *testing.T) {
	obj := elfobj.NewObject()
	st := NewState(obj)
	fs := &funcState{st: st, blockSymbols: map[*ir.BasicBlock]*elfobj.Symbol{}}

	block := ir.NewBasicBlock(0, "entry")
	block.Branch = &ir.Branch{Kind: ir.BranchRet}

	require.NoError(t, fs.emitBranch(block))
	require.Equal(t, []byte{0xc3}, st.text.Buffer)
}

func TestEmitRel32JumpRecordsInternalRelocation(t *testing.T) {
	obj := elfobj.NewObject()
	st := NewState(obj)

	target := ir.NewBasicBlock(1, "loop")
	sym := obj.AddSymbol("main.loop", st.text, 0)

	fs := &funcState{st: st, blockSymbols: map[*ir.BasicBlock]*elfobj.Symbol{target: sym}}

	require.NoError(t, fs.emitRel32Jump(0xe9, nil, target))

	require.Equal(t, []byte{0xe9, 0, 0, 0, 0}, st.text.Buffer)
	require.Len(t, obj.InternalRelocations, 1)

	r := obj.InternalRelocations[0]
	require.Equal(t, int64(1), r.Offset)
	require.Equal(t, int64(-4), r.Addend)
	require.Same(t, sym, r.Symbol)
}

func TestCalleeSiteCachesPerName(t *testing.T) {
	obj := elfobj.NewObject()
	st := NewState(obj)

	first, err := st.calleeSite("exit")
	require.NoError(t, err)

	second, err := st.calleeSite("exit")
	require.NoError(t, err)
	require.Same(t, first, second)

	other, err := st.calleeSite("write")
	require.NoError(t, err)
	require.NotSame(t, first, other)

	require.Len(t, obj.ExternalRelocations, 2, "one GOT relocation per distinct callee")
	require.Len(t, obj.InternalRelocations, 2, "one PLT-stub relocation per distinct callee")
}

func TestFunctionEmitsEntrySymbolAndBlockSymbols(t *testing.T) {
	fn := ir.NewFunction("main")
	entry := fn.AddBlock("entry")
	entry.Branch = &ir.Branch{Kind: ir.BranchRet}

	obj := elfobj.NewObject()
	st := NewState(obj)

	require.NoError(t, Function(context.Background(), st, fn))

	var entrySym *elfobj.Symbol
	for _, sym := range obj.Symbols {
		if sym.Name.Value == "main" {
			entrySym = sym
		}
	}

	require.NotNil(t, entrySym, "function entry must be named after the function itself")
	require.Same(t, st.text, entrySym.Section.Fragment())
	require.Equal(t, []byte{0xc3}, st.text.Buffer)
}
