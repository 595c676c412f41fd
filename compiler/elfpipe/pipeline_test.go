package elfpipe_test

import (
	"bytes"
	"context"
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/managarm/lewis/compiler"
)

func TestCompilePackageProducesParseableELF(t *testing.T) {
	buf, err := compiler.CompilePackage(context.Background(), compiler.ExitSample(7))
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, buf[:4])

	f, err := elf.NewFile(bytes.NewReader(buf))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, elf.ET_DYN, f.Type)
	require.Equal(t, elf.EM_X86_64, f.Machine)

	// Section-name strings aren't modelled (no .shstrtab), so sections
	// are identified by flags rather than by Name.
	var text *elf.Section
	for _, s := range f.Sections {
		if s.Flags&elf.SHF_EXECINSTR != 0 {
			text = s
		}
	}
	require.NotNil(t, text, "layout must preserve an executable section")

	// The object carries one SHT_SYMTAB, not a SHT_DYNSYM; Symbols
	// reads the former.
	syms, err := f.Symbols()
	require.NoError(t, err)

	var sawMain bool
	for _, s := range syms {
		if s.Name == "main" {
			sawMain = true
		}
	}
	require.True(t, sawMain, "the entry function symbol must survive into the emitted symbol table")
}
