package emit

import (
	"github.com/managarm/lewis/compiler/elfobj"
	"github.com/managarm/lewis/compiler/ir"
	"tlog.app/go/errors"
)

// calleeSite caches the GOT slot and PLT stub synthesised for one
// external callee name, so a second call to the same function reuses
// the existing stub rather than growing .got/.plt again.
type calleeSite struct {
	dynSymbol *elfobj.Symbol
	gotSymbol *elfobj.Symbol
	pltSymbol *elfobj.Symbol
}

// calleeSite implements spec §4.3.3 steps 1-3, run once per distinct
// callee name encountered across the whole object.
func (st *State) calleeSite(name string) (*calleeSite, error) {
	if c, ok := st.callees[name]; ok {
		return c, nil
	}

	dyn := st.obj.AddSymbol(name, nil, 0)

	gotOffset := int64(len(st.got.Buffer))
	encode64(&st.got.Buffer, 0)
	gotSym := st.obj.AddSymbol(name+"@got", st.got, uint64(gotOffset))

	st.obj.AddRelocation(elfobj.ExternalRelocation, st.got, gotOffset, dyn, 0)

	pltOffset := int64(len(st.plt.Buffer))
	pltSym := st.obj.AddSymbol(name+"@plt", st.plt, uint64(pltOffset))

	encode8(&st.plt.Buffer, 0xff)
	encode8(&st.plt.Buffer, 0x25)
	dispOffset := int64(len(st.plt.Buffer))
	encode32(&st.plt.Buffer, 0)

	st.obj.AddRelocation(elfobj.InternalRelocation, st.plt, dispOffset, gotSym, -4)

	c := &calleeSite{dynSymbol: dyn, gotSymbol: gotSym, pltSymbol: pltSym}
	st.callees[name] = c

	return c, nil
}

// emitCall implements spec §4.3.3 step 4: the call site itself.
func (fs *funcState) emitCall(inst *ir.Instruction) error {
	if inst.Callee == "" {
		return errors.New("Call: missing callee name")
	}

	site, err := fs.st.calleeSite(inst.Callee)
	if err != nil {
		return err
	}

	text := fs.st.text

	encode8(&text.Buffer, 0xe8)
	dispOffset := int64(len(text.Buffer))
	encode32(&text.Buffer, 0)

	fs.st.obj.AddRelocation(elfobj.InternalRelocation, text, dispOffset, site.pltSymbol, -4)

	return nil
}
