// Package x86enc is a disassembly-free verifier for compiler/emit's
// output. It recomputes REX/ModR/M/SIB bytes from first principles,
// independently of compiler/emit's own encoder, so a mistake in either
// implementation shows up in tests as a disagreement between the two.
// It is not imported outside tests.
package x86enc

// REX builds a REX prefix byte. w selects the 64-bit operand size; r,
// x and b are the high-bit extensions for the ModR/M reg, SIB index
// and ModR/M rm (or SIB base, or opcode) fields respectively.
func REX(w, r, x, b bool) byte {
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

// ModRM packs the mod/reg/rm fields of a ModR/M byte.
func ModRM(mod, reg, rm int) byte {
	return byte(mod&3)<<6 | byte(reg&7)<<3 | byte(rm&7)
}

// High reports whether reg (0..15) needs a REX extension bit.
func High(reg int) bool { return reg >= 8 }

// Low returns reg's 3-bit encoding, discarding the REX extension bit.
func Low(reg int) int { return reg & 7 }

// RegisterOperand computes the REX+ModR/M byte pair x86enc expects for
// a register-direct r/m operand, independent of compiler/emit.
func RegisterOperand(wordSize bool, reg, rm int) []byte {
	return []byte{
		REX(wordSize, High(reg), false, High(rm)),
		ModRM(3, Low(reg), Low(rm)),
	}
}

// BaseDispOperand computes the REX+ModR/M(+SIB)(+disp) bytes x86enc
// expects for a base+displacement memory r/m operand. mod=0 with no
// displacement byte is never chosen for an RBP/R13 base, since mod=0
// rm=101 is reinterpreted as RIP-relative addressing rather than
// "no displacement" in 64-bit mode; a zero displacement against such
// a base still needs its disp8 byte, which falls out of choosing
// mod=1 whenever the displacement fits in a byte.
func BaseDispOperand(wordSize bool, reg, base int, disp int32) []byte {
	baseLow := Low(base)

	var mod int

	switch {
	case disp == 0 && baseLow != 5:
		mod = 0
	case int32(int8(disp)) == disp:
		mod = 1
	default:
		mod = 2
	}

	out := []byte{
		REX(wordSize, High(reg), false, High(base)),
		ModRM(mod, Low(reg), baseLow),
	}

	if baseLow == 4 {
		out = append(out, ModRM(0, 4, baseLow))
	}

	switch mod {
	case 1:
		out = append(out, byte(int8(disp)))
	case 2:
		out = append(out, le32(uint32(disp))...)
	}

	return out
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// MovRegImm32 computes the expected bytes for the register form of
// MovMC: `B8+reg imm32`, with a bare REX.B prefix (no REX.W) when reg
// needs the extension bit.
func MovRegImm32(reg int, imm uint32) []byte {
	var out []byte

	if High(reg) {
		out = append(out, REX(false, false, false, true))
	}

	out = append(out, 0xb8+byte(Low(reg)))

	return append(out, le32(imm)...)
}

// Rel32 computes the little-endian bytes of a 32-bit relative
// displacement field, the form every internal relocation resolves to.
func Rel32(disp int32) []byte {
	return le32(uint32(disp))
}
