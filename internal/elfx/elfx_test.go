package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lift/internal/sleigh"
)

var mipsCode = []byte{2, 0, 0, 8, 32, 8, 67, 0, 100, 0, 65, 52}

// buildELF32 writes a section-less little-endian ELF32 with a code and a data segment.
func buildELF32(t *testing.T, machine elf.Machine) []byte {
	t.Helper()
	const (
		ehsize  = 52
		phsize  = 32
		codeOff = ehsize + 2*phsize
		dataOff = codeOff + 12
	)

	var hdr elf.Header32
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Machine = uint16(machine)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = 0x400000
	hdr.Phoff = ehsize
	hdr.Ehsize = ehsize
	hdr.Phentsize = phsize
	hdr.Phnum = 2
	hdr.Shentsize = 40

	progs := []elf.Prog32{
		{Type: uint32(elf.PT_LOAD), Off: codeOff, Vaddr: 0x400000, Paddr: 0x400000, Filesz: 12, Memsz: 12, Flags: uint32(elf.PF_R | elf.PF_X), Align: 4},
		{Type: uint32(elf.PT_LOAD), Off: dataOff, Vaddr: 0x410000, Paddr: 0x410000, Filesz: 4, Memsz: 16, Flags: uint32(elf.PF_R | elf.PF_W), Align: 4},
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	for _, p := range progs {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, p))
	}
	buf.Write(mipsCode)
	buf.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	return buf.Bytes()
}

func TestParseSegments(t *testing.T) {
	im, err := Parse(buildELF32(t, elf.EM_MIPS))
	require.NoError(t, err)
	defer im.Close()

	require.Len(t, im.Segments, 2)
	assert.Equal(t, "segment_0", im.Segments[0].Name)
	assert.Equal(t, "segment_1", im.Segments[1].Name)
	assert.Equal(t, uint64(0x400000), im.Segments[0].Vaddr)
	assert.Equal(t, mipsCode, im.Segments[0].Data)
	assert.Equal(t, uint64(16), im.Segments[1].Memsz)

	exec := im.Executable()
	require.Len(t, exec, 1)
	assert.Equal(t, "segment_0", exec[0].Name)

	seg, ok := im.Segment("segment_1")
	require.True(t, ok)
	assert.False(t, seg.Exec())
	_, ok = im.Segment("segment_9")
	assert.False(t, ok)

	b, ok := im.SliceVA(0x400004, 4)
	require.True(t, ok)
	assert.Equal(t, []byte{32, 8, 67, 0}, b)
	_, ok = im.SliceVA(0x500000, 1)
	assert.False(t, ok)

	assert.Equal(t, uint64(0x400000), im.Entry())
	assert.Empty(t, im.Syms)
}

func TestArchAndMode(t *testing.T) {
	tests := []struct {
		machine elf.Machine
		arch    string
	}{
		{elf.EM_MIPS, "mips32le"},
		{elf.EM_386, "x86"},
		{elf.EM_ARM, "arm7_le"},
	}
	for _, tt := range tests {
		t.Run(tt.machine.String(), func(t *testing.T) {
			im, err := Parse(buildELF32(t, tt.machine))
			require.NoError(t, err)
			arch, err := im.Arch()
			require.NoError(t, err)
			assert.Equal(t, tt.arch, arch)
			assert.Equal(t, sleigh.Mode32, im.Mode())
		})
	}

	im, err := Parse(buildELF32(t, elf.EM_VAX))
	require.NoError(t, err)
	_, err = im.Arch()
	assert.ErrorIs(t, err, ErrUnknownMachine)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog")
	require.NoError(t, os.WriteFile(path, buildELF32(t, elf.EM_MIPS), 0o644))

	im, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, im.Path)
	assert.Len(t, im.Segments, 2)
	require.NoError(t, im.Close())

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = Open(empty)
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not an elf file"), 0o644))
	_, err = Open(garbage)
	assert.Error(t, err)

	_, err = Open(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSymbolLookup(t *testing.T) {
	im := &Image{Syms: []Symbol{
		{Name: "_ZN3foo3barEv", Demangled: "foo::bar()", Addr: 0x10, Func: true},
		{Name: "main", Demangled: "main", Addr: 0x20, Func: true},
	}}

	s, ok := im.SymbolAt(0x20)
	require.True(t, ok)
	assert.Equal(t, "main", s.Name)
	_, ok = im.SymbolAt(0x18)
	assert.False(t, ok)

	s, ok = im.FindSymbol("foo::bar()")
	require.True(t, ok)
	assert.Equal(t, uint64(0x10), s.Addr)
}
