// Package disasm defines the instruction and micro-operation representation
// shared by the engine, the session driver and every consumer of a listing.
package disasm

import (
	"fmt"
	"strings"
)

// Instruction is one decoded assembly line.
type Instruction struct {
	Addr     Address // address of the instruction
	Mnemonic string  // opcode name as printed by the engine
	Body     string  // operand text
}

// Text joins mnemonic and body the way a listing prints them.
func (i Instruction) Text() string {
	if i.Body == "" {
		return i.Mnemonic
	}
	return i.Mnemonic + " " + i.Body
}

func (i Instruction) String() string {
	return fmt.Sprintf("Inst@%s %s %s", i.Addr, i.Mnemonic, i.Body)
}

// PcodeInstruction is one micro-operation emitted while decoding the
// instruction at Addr. Seq counts up from 0 for consecutive emissions
// that share the same Addr.
type PcodeInstruction struct {
	Addr   Address
	Seq    uint64
	Opcode Opcode
	Vars   []Varnode
	Out    *Varnode
}

func (p PcodeInstruction) String() string {
	var vars strings.Builder
	for _, v := range p.Vars {
		vars.WriteString(",")
		vars.WriteString(v.String())
	}
	if p.Out != nil {
		return fmt.Sprintf("Pcode@%s(%s, [%s], %s)", p.Addr, p.Opcode, vars.String(), p.Out)
	}
	return fmt.Sprintf("Pcode@%s(%s, [%s])", p.Addr, p.Opcode, vars.String())
}

// Stream is a linear sequence of instructions in decode order.
type Stream []Instruction

// PcodeStream is a linear sequence of micro-operations in emission order.
type PcodeStream []PcodeInstruction
