package emit

import (
	"github.com/managarm/lewis/compiler/elfobj"
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

// emitBranch emits a block's terminator per spec §4.3.4. Every
// disp32 is a placeholder zero patched later by InternalLink, since
// forward targets have no known address yet at emit time.
func (fs *funcState) emitBranch(block *ir.BasicBlock) error {
	b := block.Branch
	if b == nil {
		return errors.New("block %v has no terminator", block.Name)
	}

	text := fs.st.text

	switch b.Kind {
	case ir.BranchRet:
		encode8(&text.Buffer, 0xc3)
		return nil

	case ir.BranchJmp:
		return fs.emitRel32Jump(0xe9, nil, b.Target)

	case ir.BranchJnz:
		v := b.Operand.Value()
		if v == nil {
			return errors.New("Jnz: missing operand")
		}

		if err := emitTestSelf(&text.Buffer, v); err != nil {
			return err
		}

		if err := fs.emitRel32Jump(0x85, []byte{0x0f}, b.IfTarget); err != nil {
			return err
		}

		return fs.emitRel32Jump(0xe9, nil, b.ElseTarget)

	default:
		return errors.New("branch kind %v is not an x86 terminator", b.Kind)
	}
}

// emitTestSelf emits TEST r,r (85 /r with the same register in both
// the reg and r/m fields), used to set flags ahead of Jnz.
func emitTestSelf(buf *[]byte, v *ir.Value) error {
	size, err := operandSize(v)
	if err != nil {
		return err
	}

	var operand []byte
	if err := modRmEncoding(&operand, size, v, v, 0); err != nil {
		return err
	}

	// The REX prefix leading operand goes ahead of the opcode.
	encode8(buf, operand[0])
	encode8(buf, 0x85)
	*buf = append(*buf, operand[1:]...)

	return nil
}

// emitRel32Jump emits an optional opcode prefix, the given opcode
// byte, and a 4-byte placeholder displacement, recording an internal
// PC-relative relocation (addend -4, matching the disp32 field
// sitting at the end of the instruction) against target's symbol.
func (fs *funcState) emitRel32Jump(opcode byte, prefix []byte, target *ir.BasicBlock) error {
	sym, ok := fs.blockSymbols[target]
	if !ok {
		return errors.New("jump target %v has no reserved symbol", target.Name)
	}

	text := fs.st.text

	for _, b := range prefix {
		encode8(&text.Buffer, b)
	}

	encode8(&text.Buffer, opcode)

	dispOffset := int64(len(text.Buffer))
	encode32(&text.Buffer, 0)

	fs.st.obj.AddRelocation(elfobj.InternalRelocation, text, dispOffset, sym, -4)

	return nil
}
