// Package emit turns an allocated x86 IR function (see compiler/back)
// into machine code bytes plus the ELF fragments, symbols and
// relocations (see compiler/elfobj) that let it call out through the
// GOT/PLT and branch to its own other blocks.
package emit

import (
	"github.com/managarm/lewis/compiler/back"
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

func encode8(buf *[]byte, v uint8) { *buf = append(*buf, v) }

func encode16(buf *[]byte, v uint16) {
	*buf = append(*buf, byte(v), byte(v>>8))
}

func encode32(buf *[]byte, v uint32) {
	*buf = append(*buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func encode64(buf *[]byte, v uint64) {
	encode32(buf, uint32(v))
	encode32(buf, uint32(v>>32))
}

// rex builds a REX prefix byte: 0x40 | W<<3 | R<<2 | X<<1 | B.
func rex(w, r, x, b bool) byte {
	var v byte = 0x40

	if w {
		v |= 1 << 3
	}

	if r {
		v |= 1 << 2
	}

	if x {
		v |= 1 << 1
	}

	if b {
		v |= 1
	}

	return v
}

// modrm builds a single ModR/M byte: mod<<6 | reg<<3 | rm.
func modrm(mod, reg, rm int) byte {
	return byte(mod&3)<<6 | byte(reg&7)<<3 | byte(rm&7)
}

// highReg reports whether reg needs a REX extension bit (R8..R15).
func highReg(reg int) bool { return reg >= back.R8 }

// regField resolves the register an x86-mode Value occupies. Both
// RegisterMode and BaseDispMemoryMode values hold their GPR index in
// the field SetRegister wrote.
func regField(v *ir.Value) (int, error) {
	reg, err := v.Register()
	if err != nil {
		return 0, errors.Wrap(err, "value has no assigned register")
	}

	return reg, nil
}

// operandSize picks the REX.W bit from an operand's type, qword
// requiring it set and dword requiring it clear.
func operandSize(v *ir.Value) (ir.OperandSize, error) {
	size, err := v.Type.OperandSize()
	if err != nil {
		return 0, errors.Wrap(err, "value %v", v)
	}

	return size, nil
}

// modRmEncoding emits the REX prefix and ModR/M (+ optional SIB and
// displacement) bytes addressing m, with either a register operand r
// or (if r is nil) a raw opcode-extension field xop in the reg
// position. Mirrors spec's ModRmEncoding helper. The REX byte is always
// the first byte written, so callers splice their opcode in right
// after it.
func modRmEncoding(buf *[]byte, size ir.OperandSize, m, r *ir.Value, xop int) error {
	reg := xop
	rexR := false

	if r != nil {
		rr, err := regField(r)
		if err != nil {
			return err
		}

		reg = rr & 7
		rexR = highReg(rr)
	}

	switch m.Kind {
	case ir.RegisterMode:
		mreg, err := regField(m)
		if err != nil {
			return err
		}

		encode8(buf, rex(size == ir.Qword, rexR, false, highReg(mreg)))
		encode8(buf, modrm(3, reg, mreg&7))

		return nil

	case ir.BaseDispMemoryMode:
		base, err := regField(m)
		if err != nil {
			return err
		}

		rexB := highReg(base)
		baseLow := base & 7

		var mod int

		switch {
		case m.Displacement == 0 && baseLow != 5:
			mod = 0
		case int32(int8(m.Displacement)) == m.Displacement:
			mod = 1
		default:
			mod = 2
		}

		encode8(buf, rex(size == ir.Qword, rexR, false, rexB))
		encode8(buf, modrm(mod, reg, baseLow))

		if baseLow == 4 {
			// SIB required to address RSP/R12 as a base; no index,
			// scale is irrelevant.
			encode8(buf, modrm(0, 4, baseLow))
		}

		switch mod {
		case 1:
			encode8(buf, uint8(int8(m.Displacement)))
		case 2:
			encode32(buf, uint32(m.Displacement))
		}

		return nil

	default:
		return errors.New("value kind %v is not an addressable x86 operand", m.Kind)
	}
}
