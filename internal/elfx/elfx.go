// Package elfx opens ELF binaries, exposes their PT_LOAD segments and symbols, and maps the machine type to a preset name.
package elfx

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"sort"
	"syscall"

	"github.com/ianlancetaylor/demangle"

	"lift/internal/sleigh"
)

// ErrUnknownMachine is returned by Arch for machine types without a preset.
var ErrUnknownMachine = errors.New("no preset for elf machine")

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Segments []Segment
	Syms     []Symbol

	mapped bool
	f      *os.File
}

// Segment is one PT_LOAD program header with its file bytes.
type Segment struct {
	Name          string // segment_N, N counting PT_LOAD headers only
	Vaddr, Off    uint64
	Filesz, Memsz uint64
	Flags         elf.ProgFlag
	Data          []byte
}

// Exec reports whether the segment is mapped executable.
func (s Segment) Exec() bool {
	return s.Flags&elf.PF_X != 0
}

// Contains reports whether va lies within the file-backed part of s.
func (s Segment) Contains(va uint64) bool {
	return va >= s.Vaddr && va < s.Vaddr+s.Filesz
}

type Symbol struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
	Func      bool
}

// Open maps path read-only and parses it.
func Open(path string) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() == 0 {
		of.Close()
		return nil, fmt.Errorf("open elf: %s is empty", path)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im, err := parse(all)
	if err != nil {
		syscall.Munmap(all)
		of.Close()
		return nil, err
	}
	im.Path = path
	im.mapped = true
	im.f = of
	return im, nil
}

// Parse reads an ELF image already held in memory.
func Parse(data []byte) (*Image, error) {
	return parse(data)
}

func parse(all []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(all))
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	im := &Image{File: f, All: all}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		seg := Segment{
			Name:   fmt.Sprintf("segment_%d", len(im.Segments)),
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Flags:  p.Flags,
		}
		if end := p.Off + p.Filesz; p.Filesz > 0 && end <= uint64(len(all)) && end >= p.Off {
			seg.Data = all[p.Off:end]
		}
		im.Segments = append(im.Segments, seg)
	}

	im.loadSymbols()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.mapped && im.All != nil {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, s := range im.Segments {
		if s.Contains(va) {
			return s.Off + (va - s.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns the file bytes backing [va, va+size).
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// Segment looks a segment up by name.
func (im *Image) Segment(name string) (Segment, bool) {
	for _, s := range im.Segments {
		if s.Name == name {
			return s, true
		}
	}
	return Segment{}, false
}

// Executable returns the executable segments with file bytes.
func (im *Image) Executable() []Segment {
	var out []Segment
	for _, s := range im.Segments {
		if s.Exec() && len(s.Data) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Entry is the ELF entry point.
func (im *Image) Entry() uint64 {
	return im.File.Entry
}

// loadSymbols collects function and object symbols from .symtab and
// .dynsym, sorted by address.
func (im *Image) loadSymbols() {
	seen := make(map[uint64]bool)
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			typ := elf.ST_TYPE(sym.Info)
			if sym.Name == "" || sym.Value == 0 || (typ != elf.STT_FUNC && typ != elf.STT_OBJECT) {
				continue
			}
			if seen[sym.Value] {
				continue
			}
			seen[sym.Value] = true
			im.Syms = append(im.Syms, Symbol{
				Name:      sym.Name,
				Demangled: demangle.Filter(sym.Name),
				Addr:      sym.Value,
				Size:      sym.Size,
				Func:      typ == elf.STT_FUNC,
			})
		}
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms)
	}
	if syms, err := im.File.DynamicSymbols(); err == nil {
		add(syms)
	}
	sort.Slice(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
}

// SymbolAt returns the symbol starting exactly at va.
func (im *Image) SymbolAt(va uint64) (Symbol, bool) {
	i := sort.Search(len(im.Syms), func(i int) bool { return im.Syms[i].Addr >= va })
	if i < len(im.Syms) && im.Syms[i].Addr == va {
		return im.Syms[i], true
	}
	return Symbol{}, false
}

// FindSymbol looks a symbol up by raw or demangled name.
func (im *Image) FindSymbol(name string) (Symbol, bool) {
	for _, s := range im.Syms {
		if s.Name == name || s.Demangled == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Arch returns the preset name for the image's machine, class and byte order.
func (im *Image) Arch() (string, error) {
	f := im.File
	little := f.Data == elf.ELFDATA2LSB
	wide := f.Class == elf.ELFCLASS64
	pick := func(le, be string) string {
		if little {
			return le
		}
		return be
	}

	switch f.Machine {
	case elf.EM_386:
		return "x86", nil
	case elf.EM_X86_64:
		return "x86-64", nil
	case elf.EM_AARCH64:
		return pick("aarch64", "aarch64be"), nil
	case elf.EM_MIPS:
		if wide {
			return pick("mips64le", "mips64be"), nil
		}
		return pick("mips32le", "mips32be"), nil
	case elf.EM_ARM:
		return pick("arm7_le", "arm7_be"), nil
	case elf.EM_PPC:
		return pick("ppc_32_le", "ppc_32_be"), nil
	case elf.EM_PPC64:
		return pick("ppc_64_le", "ppc_64_be"), nil
	case elf.EM_RISCV:
		return "riscv", nil
	case elf.EM_SPARCV9:
		return "sparcv9_64", nil
	case elf.EM_SH:
		return pick("superh4_le", "superh4_be"), nil
	case elf.EM_AVR:
		return "avr8", nil
	case elf.EM_MSP430:
		return "ti_msp430", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMachine, f.Machine)
}

// Mode returns the decode width matching the image's class.
func (im *Image) Mode() sleigh.Mode {
	if im.File.Class == elf.ELFCLASS64 {
		return sleigh.Mode64
	}
	return sleigh.Mode32
}
