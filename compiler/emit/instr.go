package emit

import (
	"github.com/managarm/lewis/compiler/back"
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

// emitInstruction appends inst's machine code to the function's .text
// buffer. Call, and the three branch kinds, are handled by their own
// callers (emitCall, emitBranch) since they need access to the
// function's symbol table and the Object's GOT/PLT state; this
// dispatch covers every other x86 instruction kind.
func (fs *funcState) emitInstruction(inst *ir.Instruction) error {
	text := &fs.st.text.Buffer

	switch inst.Kind {
	case ir.InstNop, ir.InstDefineOffset:
		return nil

	case ir.InstMovMC:
		return emitMovMC(text, inst)

	case ir.InstMovMR:
		return emitRegMemOp(text, inst.M.Value(), inst.R.Value(), 0x89)

	case ir.InstMovRM:
		return emitRegMemOp(text, inst.M.Value(), inst.Result.Value(), 0x8b)

	case ir.InstXchgMR:
		return emitRegMemOp(text, inst.M.Value(), inst.R.Value(), 0x87)

	case ir.InstAddMR:
		return emitRegMemOp(text, inst.M.Value(), inst.R.Value(), 0x01)

	case ir.InstAndMR:
		return emitRegMemOp(text, inst.M.Value(), inst.R.Value(), 0x21)

	case ir.InstNegM:
		return emitUnaryM(text, inst.M.Value(), 0xf7, 3)

	case ir.InstPushSave:
		return emitPushPop(text, int(inst.Const), true)

	case ir.InstPopRestore:
		return emitPushPop(text, int(inst.Const), false)

	case ir.InstDecrementStack:
		return emitStackAdj(text, inst.StackAdj, 5)

	case ir.InstIncrementStack:
		return emitStackAdj(text, inst.StackAdj, 0)

	default:
		return errors.New("instruction kind %v cannot be emitted directly", inst.Kind)
	}
}

// emitMovMC emits MovMC: B8+reg imm32 for a register destination
// (a bare REX.B prefix when the register needs one, no REX.W), C7 /0
// imm32 for a memory destination.
func emitMovMC(buf *[]byte, inst *ir.Instruction) error {
	dst := inst.Result.Value()

	size, err := operandSize(dst)
	if err != nil {
		return err
	}

	switch dst.Kind {
	case ir.RegisterMode:
		reg, err := regField(dst)
		if err != nil {
			return err
		}

		if highReg(reg) {
			encode8(buf, rex(false, false, false, true))
		}

		encode8(buf, 0xb8+byte(reg&7))
		encode32(buf, uint32(inst.Const))

		return nil

	case ir.BaseDispMemoryMode:
		var operand []byte
		if err := modRmEncoding(&operand, size, dst, nil, 0); err != nil {
			return err
		}

		// The REX prefix leading operand goes ahead of the opcode.
		encode8(buf, operand[0])
		encode8(buf, 0xc7)
		*buf = append(*buf, operand[1:]...)
		encode32(buf, uint32(inst.Const))

		return nil

	default:
		return errors.New("MovMC: result kind %v is not addressable", dst.Kind)
	}
}

// emitRegMemOp emits a reg/mem opcode with ModRmEncoding: m supplies
// the addressed r/m operand, r supplies the reg field. The opcode
// alone determines which direction the mnemonic moves data; MovRM
// passes its destination register as r and its memory operand as m.
func emitRegMemOp(buf *[]byte, m, r *ir.Value, opcode byte) error {
	size, err := operandSize(m)
	if err != nil {
		return err
	}

	var operand []byte
	if err := modRmEncoding(&operand, size, m, r, 0); err != nil {
		return err
	}

	// The REX prefix leading operand goes ahead of the opcode.
	encode8(buf, operand[0])
	encode8(buf, opcode)
	*buf = append(*buf, operand[1:]...)

	return nil
}

func emitUnaryM(buf *[]byte, m *ir.Value, opcode byte, xop int) error {
	size, err := operandSize(m)
	if err != nil {
		return err
	}

	var operand []byte
	if err := modRmEncoding(&operand, size, m, nil, xop); err != nil {
		return err
	}

	// The REX prefix leading operand goes ahead of the opcode.
	encode8(buf, operand[0])
	encode8(buf, opcode)
	*buf = append(*buf, operand[1:]...)

	return nil
}

// emitPushPop emits PushSave/PopRestore for a fixed physical
// register: 50+reg/58+reg for the low eight, with a REX.B prefix for
// R8..R15 (the spec's documented "REX + FF /6" form also works, but
// the `50+reg`/`58+reg` short form is valid with a bare REX.B prefix
// and needs no ModR/M byte).
func emitPushPop(buf *[]byte, reg int, push bool) error {
	if highReg(reg) {
		encode8(buf, rex(false, false, false, true))
	}

	base := byte(0x50)
	if !push {
		base = 0x58
	}

	encode8(buf, base+byte(reg&7))

	return nil
}

// emitStackAdj emits SUB/ADD RSP, imm32 (xop picks the opcode
// extension: 5 for SUB, 0 for ADD).
func emitStackAdj(buf *[]byte, adj int64, xop int) error {
	encode8(buf, rex(true, false, false, false))
	encode8(buf, 0x81)
	encode8(buf, modrm(3, xop, back.RSP))
	encode32(buf, uint32(adj))

	return nil
}
