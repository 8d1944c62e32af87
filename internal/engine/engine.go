// Package engine is the built-in decoding engine behind sleigh.Engine.
//
// It reads the processor header of a catalog specification and dispatches
// to a decoder for that family: x86 and AArch64 on golang.org/x/arch, MIPS32
// on a table decoder of its own. Each decoded instruction is printed and
// lifted to pcode; instructions without modelled semantics lift to a single
// CALLOTHER so every instruction carries at least one operation.
package engine

import (
	"log/slog"
	"sort"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

// decoder decodes one instruction from code, which holds maxLen bytes
// fetched at pc, and lifts it into l.
type decoder interface {
	maxLen() int
	decode(l *lifter, code []byte, pc uint64) (mnemonic, body string, length int, err error)
}

type decoderFactory func(d *Descriptor, mode sleigh.Mode) decoder

var decoders = map[string]decoderFactory{
	"x86":     newX86Decoder,
	"AARCH64": newARM64Decoder,
	"MIPS":    newMIPSDecoder,
}

// Processors lists the catalog processor names the engine can decode.
func Processors() []string {
	out := make([]string, 0, len(decoders))
	for name := range decoders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether spec names a processor the engine can decode.
func Supports(spec string) bool {
	d, err := ParseDescriptor(spec)
	if err != nil {
		return false
	}
	_, ok := decoders[d.Processor]
	return ok
}

// Translator implements sleigh.Engine. A Translator serves one session.
type Translator struct {
	desc  *Descriptor
	cfg   sleigh.EngineConfig
	dec   decoder
	lift  *lifter
	fetch []byte
}

// New returns an unbound translator.
func New() *Translator {
	return &Translator{}
}

// Descriptor returns the header of the bound specification, or nil.
func (t *Translator) Descriptor() *Descriptor {
	return t.desc
}

func (t *Translator) Bind(cfg sleigh.EngineConfig) error {
	desc, err := ParseDescriptor(cfg.Spec)
	if err != nil {
		return err
	}
	factory, ok := decoders[desc.Processor]
	if !ok {
		return &UnsupportedProcessorError{Processor: desc.Processor, Variant: desc.Variant}
	}

	t.desc = desc
	t.cfg = cfg
	t.dec = factory(desc, cfg.Mode)
	t.lift = newLifter(desc)
	t.fetch = make([]byte, t.dec.maxLen())

	slog.Debug("Engine bound", "processor", desc.Processor, "variant", desc.Variant, "mode", cfg.Mode)
	return nil
}

func (t *Translator) DecodeAt(offset uint64) (int, error) {
	if t.dec == nil {
		return 0, ErrNotBound
	}
	addr := disasm.NewAddress(t.desc.DefaultSpace, offset)
	t.cfg.Loader.LoadFill(t.fetch, addr)

	t.lift.reset()
	mnemonic, body, n, err := t.dec.decode(t.lift, t.fetch, offset)
	if err != nil {
		return 0, &InvalidInstructionError{Addr: addr, Err: err}
	}
	if len(t.lift.ops) == 0 {
		t.lift.userop()
	}

	t.cfg.AsmEmit.Dump(addr, mnemonic, body)
	for _, op := range t.lift.ops {
		t.cfg.PcodeEmit.Dump(addr, op.opcode, op.out, op.in)
	}
	return n, nil
}
