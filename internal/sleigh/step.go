package sleigh

import "lift/internal/disasm"

// StepEmit is implemented by sinks that want to know where one decode step
// ends. EndStep is called after the step's output has been delivered.
type StepEmit interface {
	EndStep()
}

type stagedAsm struct {
	addr           disasm.Address
	mnemonic, body string
}

type stagedPcode struct {
	addr   disasm.Address
	opcode disasm.Opcode
	out    *disasm.Varnode
	vars   []disasm.Varnode
}

// stepBuffer holds what the engine emits during one DecodeAt call. The
// session forwards it to the real sinks once the step is accepted and drops
// it otherwise.
type stepBuffer struct {
	asms   []stagedAsm
	pcodes []stagedPcode
}

func (b *stepBuffer) asmEmit() AssemblyEmit {
	return AssemblyEmitFunc(func(addr disasm.Address, mnemonic, body string) {
		b.asms = append(b.asms, stagedAsm{addr: addr, mnemonic: mnemonic, body: body})
	})
}

func (b *stepBuffer) pcodeEmit() PcodeEmit {
	return PcodeEmitFunc(func(addr disasm.Address, opcode disasm.Opcode, out *disasm.Varnode, vars []disasm.Varnode) {
		var outCopy *disasm.Varnode
		if out != nil {
			o := *out
			outCopy = &o
		}
		b.pcodes = append(b.pcodes, stagedPcode{
			addr:   addr,
			opcode: opcode,
			out:    outCopy,
			vars:   append([]disasm.Varnode(nil), vars...),
		})
	})
}

func (b *stepBuffer) reset() {
	b.asms = b.asms[:0]
	b.pcodes = b.pcodes[:0]
}

// flush delivers the step to asm and pcode, then empties the buffer.
func (b *stepBuffer) flush(asm AssemblyEmit, pcode PcodeEmit) {
	for _, a := range b.asms {
		asm.Dump(a.addr, a.mnemonic, a.body)
	}
	for _, p := range b.pcodes {
		pcode.Dump(p.addr, p.opcode, p.out, p.vars)
	}
	if s, ok := asm.(StepEmit); ok {
		s.EndStep()
	}
	if s, ok := pcode.(StepEmit); ok {
		s.EndStep()
	}
	b.reset()
}
