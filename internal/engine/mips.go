package engine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

var errMIPSUnknown = errors.New("unknown mips instruction")

// MIPS register file layout: gpr N at N*4, hi/lo after the gprs.
const (
	mipsHI = 0x80
	mipsLO = 0x84
)

var mipsRegNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "s8", "ra",
}

type mipsDecoder struct {
	order binary.ByteOrder
}

func newMIPSDecoder(d *Descriptor, _ sleigh.Mode) decoder {
	if d.BigEndian {
		return &mipsDecoder{order: binary.BigEndian}
	}
	return &mipsDecoder{order: binary.LittleEndian}
}

func (m *mipsDecoder) maxLen() int { return 4 }

// mipsInst is the field split of one instruction word.
type mipsInst struct {
	word                   uint32
	op, rs, rt, rd, sa, fn uint32
	imm                    uint16
	target                 uint32
}

func splitMIPS(w uint32) mipsInst {
	return mipsInst{
		word:   w,
		op:     w >> 26,
		rs:     w >> 21 & 31,
		rt:     w >> 16 & 31,
		rd:     w >> 11 & 31,
		sa:     w >> 6 & 31,
		fn:     w & 63,
		imm:    uint16(w),
		target: w & 0x3ffffff,
	}
}

func (i mipsInst) simm() int64 { return int64(int16(i.imm)) }

type mipsLifter struct {
	*lifter
	pc uint64
	i  mipsInst
}

func (m *mipsDecoder) decode(l *lifter, code []byte, pc uint64) (string, string, int, error) {
	ml := &mipsLifter{lifter: l, pc: pc, i: splitMIPS(m.order.Uint32(code))}
	mnemonic, body, err := ml.lift()
	if err != nil {
		return "", "", 0, err
	}
	return mnemonic, body, 4, nil
}

func (m *mipsLifter) gpr(n uint32) disasm.Varnode {
	if n == 0 {
		return m.constant(0, 4)
	}
	return m.register(uint64(n)*4, 4)
}

func (m *mipsLifter) set(n uint32, val disasm.Varnode) {
	if n == 0 {
		return
	}
	m.copy(m.gpr(n), val)
}

func (m *mipsLifter) link() {
	m.copy(m.gpr(31), m.constant(m.pc+8, 4))
}

func hex(v int64) string {
	if v < 0 {
		return fmt.Sprintf("-0x%x", -v)
	}
	return fmt.Sprintf("0x%x", v)
}

func (m *mipsLifter) lift() (string, string, error) {
	i := m.i
	rs, rt, rd := mipsRegNames[i.rs], mipsRegNames[i.rt], mipsRegNames[i.rd]
	three := rd + "," + rs + "," + rt
	branchTarget := (m.pc + 4 + uint64(i.simm()<<2)) & sizeMask(m.ramSize)

	switch i.op {
	case 0x00:
		return m.special(three)
	case 0x01:
		return m.regimm(branchTarget)
	case 0x02, 0x03:
		target := (m.pc+4)&0xf0000000 | uint64(i.target)<<2
		if i.op == 0x03 {
			m.link()
			m.call(target)
			return "jal", hex(int64(target)), nil
		}
		m.branch(target)
		return "j", hex(int64(target)), nil
	case 0x04, 0x05:
		if i.op == 0x04 && i.rs == 0 && i.rt == 0 {
			m.branch(branchTarget)
			return "b", hex(int64(branchTarget)), nil
		}
		op, name := disasm.INT_EQUAL, "beq"
		if i.op == 0x05 {
			op, name = disasm.INT_NOTEQUAL, "bne"
		}
		m.cbranch(branchTarget, m.test(op, m.gpr(i.rs), m.gpr(i.rt)))
		return name, rs + "," + rt + "," + hex(int64(branchTarget)), nil
	case 0x06, 0x07:
		zero := m.constant(0, 4)
		if i.op == 0x06 {
			m.cbranch(branchTarget, m.test(disasm.INT_SLESSEQUAL, m.gpr(i.rs), zero))
			return "blez", rs + "," + hex(int64(branchTarget)), nil
		}
		m.cbranch(branchTarget, m.test(disasm.INT_SLESS, zero, m.gpr(i.rs)))
		return "bgtz", rs + "," + hex(int64(branchTarget)), nil
	case 0x08, 0x09:
		m.set(i.rt, m.binary(disasm.INT_ADD, m.gpr(i.rs), m.constant(uint64(i.simm()), 4)))
		name := "addi"
		if i.op == 0x09 {
			name = "addiu"
		}
		return name, rt + "," + rs + "," + hex(i.simm()), nil
	case 0x0a, 0x0b:
		op, name := disasm.INT_SLESS, "slti"
		if i.op == 0x0b {
			op, name = disasm.INT_LESS, "sltiu"
		}
		flag := m.test(op, m.gpr(i.rs), m.constant(uint64(i.simm()), 4))
		m.set(i.rt, m.resize(flag, 4, false))
		return name, rt + "," + rs + "," + hex(i.simm()), nil
	case 0x0c, 0x0d, 0x0e:
		op := map[uint32]disasm.Opcode{0x0c: disasm.INT_AND, 0x0d: disasm.INT_OR, 0x0e: disasm.INT_XOR}[i.op]
		name := map[uint32]string{0x0c: "andi", 0x0d: "ori", 0x0e: "xori"}[i.op]
		m.set(i.rt, m.binary(op, m.gpr(i.rs), m.constant(uint64(i.imm), 4)))
		return name, rt + "," + rs + "," + hex(int64(i.imm)), nil
	case 0x0f:
		m.set(i.rt, m.constant(uint64(i.imm)<<16, 4))
		return "lui", rt + "," + hex(int64(i.imm)), nil
	case 0x1c:
		if i.fn == 0x02 {
			m.set(i.rd, m.binary(disasm.INT_MULT, m.gpr(i.rs), m.gpr(i.rt)))
			return "mul", three, nil
		}
	case 0x20, 0x21, 0x23, 0x24, 0x25:
		return m.memory(rt, rs)
	case 0x22, 0x26:
		// Unaligned partial loads keep their text but no semantics.
		name := map[uint32]string{0x22: "lwl", 0x26: "lwr"}[i.op]
		return name, rt + "," + hex(i.simm()) + "(" + rs + ")", nil
	case 0x28, 0x29, 0x2b:
		return m.memory(rt, rs)
	case 0x2a, 0x2e:
		name := map[uint32]string{0x2a: "swl", 0x2e: "swr"}[i.op]
		return name, rt + "," + hex(i.simm()) + "(" + rs + ")", nil
	}
	return "", "", fmt.Errorf("%w: word 0x%08x", errMIPSUnknown, i.word)
}

func (m *mipsLifter) special(three string) (string, string, error) {
	i := m.i
	rs, rt, rd := mipsRegNames[i.rs], mipsRegNames[i.rt], mipsRegNames[i.rd]
	alu := map[uint32]struct {
		name string
		op   disasm.Opcode
	}{
		0x20: {"add", disasm.INT_ADD}, 0x21: {"addu", disasm.INT_ADD},
		0x22: {"sub", disasm.INT_SUB}, 0x23: {"subu", disasm.INT_SUB},
		0x24: {"and", disasm.INT_AND}, 0x25: {"or", disasm.INT_OR},
		0x26: {"xor", disasm.INT_XOR},
	}
	if e, ok := alu[i.fn]; ok {
		m.set(i.rd, m.binary(e.op, m.gpr(i.rs), m.gpr(i.rt)))
		if e.name == "or" && i.rt == 0 {
			return "move", rd + "," + rs, nil
		}
		return e.name, three, nil
	}

	shifts := map[uint32]struct {
		name string
		op   disasm.Opcode
	}{
		0x00: {"sll", disasm.INT_LEFT}, 0x02: {"srl", disasm.INT_RIGHT}, 0x03: {"sra", disasm.INT_SRIGHT},
		0x04: {"sllv", disasm.INT_LEFT}, 0x06: {"srlv", disasm.INT_RIGHT}, 0x07: {"srav", disasm.INT_SRIGHT},
	}
	if e, ok := shifts[i.fn]; ok {
		if i.word == 0 {
			return "nop", "", nil
		}
		if i.fn < 0x04 {
			m.set(i.rd, m.binary(e.op, m.gpr(i.rt), m.constant(uint64(i.sa), 4)))
			return e.name, rd + "," + rt + "," + hex(int64(i.sa)), nil
		}
		amount := m.binary(disasm.INT_AND, m.gpr(i.rs), m.constant(0x1f, 4))
		m.set(i.rd, m.binary(e.op, m.gpr(i.rt), amount))
		return e.name, rd + "," + rt + "," + rs, nil
	}

	switch i.fn {
	case 0x08:
		if i.rs == 31 {
			m.emit(disasm.RETURN, nil, m.gpr(i.rs))
		} else {
			m.emit(disasm.BRANCHIND, nil, m.gpr(i.rs))
		}
		return "jr", rs, nil
	case 0x09:
		target := m.temp(4)
		m.copy(target, m.gpr(i.rs))
		if i.rd != 0 {
			m.copy(m.gpr(i.rd), m.constant(m.pc+8, 4))
		}
		m.emit(disasm.CALLIND, nil, target)
		if i.rd == 31 {
			return "jalr", rs, nil
		}
		return "jalr", rd + "," + rs, nil
	case 0x0a, 0x0b:
		// Conditional moves keep their text but no semantics.
		return map[uint32]string{0x0a: "movz", 0x0b: "movn"}[i.fn], three, nil
	case 0x0c:
		return "syscall", "", nil
	case 0x0d:
		return "break", "", nil
	case 0x0f:
		return "sync", "", nil
	case 0x10, 0x12:
		src := m.register(mipsHI, 4)
		name := "mfhi"
		if i.fn == 0x12 {
			src, name = m.register(mipsLO, 4), "mflo"
		}
		m.set(i.rd, src)
		return name, rd, nil
	case 0x11, 0x13:
		dst := m.register(mipsHI, 4)
		name := "mthi"
		if i.fn == 0x13 {
			dst, name = m.register(mipsLO, 4), "mtlo"
		}
		m.copy(dst, m.gpr(i.rs))
		return name, rs, nil
	case 0x18, 0x19:
		signed := i.fn == 0x18
		prod := m.binary(disasm.INT_MULT, m.resize(m.gpr(i.rs), 8, signed), m.resize(m.gpr(i.rt), 8, signed))
		lo, hi := m.register(mipsLO, 4), m.register(mipsHI, 4)
		m.emit(disasm.SUBPIECE, &lo, prod, m.constant(0, 4))
		m.emit(disasm.SUBPIECE, &hi, prod, m.constant(4, 4))
		if signed {
			return "mult", rs + "," + rt, nil
		}
		return "multu", rs + "," + rt, nil
	case 0x1a, 0x1b:
		div, rem, name := disasm.INT_SDIV, disasm.INT_SREM, "div"
		if i.fn == 0x1b {
			div, rem, name = disasm.INT_DIV, disasm.INT_REM, "divu"
		}
		lo, hi := m.register(mipsLO, 4), m.register(mipsHI, 4)
		m.emit(div, &lo, m.gpr(i.rs), m.gpr(i.rt))
		m.emit(rem, &hi, m.gpr(i.rs), m.gpr(i.rt))
		return name, rs + "," + rt, nil
	case 0x27:
		m.set(i.rd, m.unary(disasm.INT_NEGATE, 4, m.binary(disasm.INT_OR, m.gpr(i.rs), m.gpr(i.rt))))
		return "nor", three, nil
	case 0x2a, 0x2b:
		op, name := disasm.INT_SLESS, "slt"
		if i.fn == 0x2b {
			op, name = disasm.INT_LESS, "sltu"
		}
		m.set(i.rd, m.resize(m.test(op, m.gpr(i.rs), m.gpr(i.rt)), 4, false))
		return name, three, nil
	}
	return "", "", fmt.Errorf("%w: word 0x%08x", errMIPSUnknown, i.word)
}

func (m *mipsLifter) regimm(target uint64) (string, string, error) {
	i := m.i
	rs := mipsRegNames[i.rs]
	zero := m.constant(0, 4)
	var cond disasm.Varnode
	var name string
	switch i.rt {
	case 0x00, 0x10:
		cond, name = m.test(disasm.INT_SLESS, m.gpr(i.rs), zero), "bltz"
	case 0x01, 0x11:
		cond, name = m.test(disasm.INT_SLESSEQUAL, zero, m.gpr(i.rs)), "bgez"
	default:
		return "", "", fmt.Errorf("%w: word 0x%08x", errMIPSUnknown, i.word)
	}
	if i.rt >= 0x10 {
		m.link()
		name += "al"
	}
	m.cbranch(target, cond)
	return name, rs + "," + hex(int64(target)), nil
}

func (m *mipsLifter) memory(rt, rs string) (string, string, error) {
	i := m.i
	addr := m.binary(disasm.INT_ADD, m.gpr(i.rs), m.constant(uint64(i.simm()), 4))
	body := rt + "," + hex(i.simm()) + "(" + rs + ")"

	loads := map[uint32]struct {
		name   string
		width  uint32
		signed bool
	}{
		0x20: {"lb", 1, true}, 0x21: {"lh", 2, true}, 0x23: {"lw", 4, true},
		0x24: {"lbu", 1, false}, 0x25: {"lhu", 2, false},
	}
	if e, ok := loads[i.op]; ok {
		m.set(i.rt, m.resize(m.load(addr, e.width), 4, e.signed))
		return e.name, body, nil
	}

	stores := map[uint32]struct {
		name  string
		width uint32
	}{0x28: {"sb", 1}, 0x29: {"sh", 2}, 0x2b: {"sw", 4}}
	e := stores[i.op]
	m.store(addr, m.resize(m.gpr(i.rt), e.width, false))
	return e.name, body, nil
}
