package sleigh

import "lift/internal/disasm"

// AssemblyEmit receives one call per decoded instruction.
type AssemblyEmit interface {
	Dump(addr disasm.Address, mnemonic, body string)
}

// PcodeEmit receives one call per micro-operation, in emission order.
// out is nil when the operation writes nothing.
type PcodeEmit interface {
	Dump(addr disasm.Address, opcode disasm.Opcode, out *disasm.Varnode, vars []disasm.Varnode)
}

// AssemblyEmitFunc adapts a function to AssemblyEmit.
type AssemblyEmitFunc func(addr disasm.Address, mnemonic, body string)

func (f AssemblyEmitFunc) Dump(addr disasm.Address, mnemonic, body string) {
	f(addr, mnemonic, body)
}

// PcodeEmitFunc adapts a function to PcodeEmit.
type PcodeEmitFunc func(addr disasm.Address, opcode disasm.Opcode, out *disasm.Varnode, vars []disasm.Varnode)

func (f PcodeEmitFunc) Dump(addr disasm.Address, opcode disasm.Opcode, out *disasm.Varnode, vars []disasm.Varnode) {
	f(addr, opcode, out, vars)
}

// CollectingAssemblyEmit keeps every emitted instruction.
type CollectingAssemblyEmit struct {
	Asms disasm.Stream
}

func (c *CollectingAssemblyEmit) Dump(addr disasm.Address, mnemonic, body string) {
	c.Asms = append(c.Asms, disasm.Instruction{
		Addr:     addr,
		Mnemonic: mnemonic,
		Body:     body,
	})
}

// CollectingPcodeEmit keeps every emitted micro-operation and numbers them.
// The sequence restarts at 0 whenever the address differs from the
// previous emission, and after every decode step, so re-decoding one
// address twice in a row still yields two runs.
type CollectingPcodeEmit struct {
	Pcodes disasm.PcodeStream

	seq     uint64
	last    disasm.Address
	started bool
}

func (c *CollectingPcodeEmit) Dump(addr disasm.Address, opcode disasm.Opcode, out *disasm.Varnode, vars []disasm.Varnode) {
	if !c.started || !c.last.Equal(addr) {
		c.seq = 0
	}
	c.last = addr
	c.started = true

	var outCopy *disasm.Varnode
	if out != nil {
		o := *out
		outCopy = &o
	}
	c.Pcodes = append(c.Pcodes, disasm.PcodeInstruction{
		Addr:   addr,
		Seq:    c.seq,
		Opcode: opcode,
		Vars:   append([]disasm.Varnode(nil), vars...),
		Out:    outCopy,
	})
	c.seq++
}

// EndStep restarts the sequence for the next decode step.
func (c *CollectingPcodeEmit) EndStep() {
	c.started = false
}
