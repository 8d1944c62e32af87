package engine

import (
	"encoding/binary"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

// AArch64 register file layout: xN at N*8, sp at 0x100, NZCV from 0x200.
const (
	a64SP = 0x100
	a64NG = 0x200
	a64ZR = 0x201
	a64CY = 0x202
	a64OV = 0x203
)

type arm64Decoder struct{}

func newARM64Decoder(_ *Descriptor, _ sleigh.Mode) decoder {
	return arm64Decoder{}
}

func (arm64Decoder) maxLen() int { return 4 }

func (arm64Decoder) decode(l *lifter, code []byte, pc uint64) (string, string, int, error) {
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return "", "", 0, err
	}
	mnemonic, body, _ := strings.Cut(arm64asm.GNUSyntax(inst), " ")

	al := &arm64Lifter{lifter: l, inst: inst, pc: pc, enc: binary.LittleEndian.Uint32(code)}
	if !al.lift() {
		l.userop()
	}
	return mnemonic, strings.TrimSpace(body), 4, nil
}

type arm64Lifter struct {
	*lifter
	inst arm64asm.Inst
	pc   uint64
	enc  uint32
}

// reg returns the varnode of a general register. Zero registers read as a
// constant and are reported with zero=true.
func (a *arm64Lifter) reg(r arm64asm.Reg) (v disasm.Varnode, zero bool, ok bool) {
	switch {
	case r == arm64asm.WZR:
		return a.constant(0, 4), true, true
	case r == arm64asm.XZR:
		return a.constant(0, 8), true, true
	case r >= arm64asm.W0 && r <= arm64asm.W30:
		return a.register(uint64(r-arm64asm.W0)*8, 4), false, true
	case r >= arm64asm.X0 && r <= arm64asm.X30:
		return a.register(uint64(r-arm64asm.X0)*8, 8), false, true
	}
	return disasm.Varnode{}, false, false
}

func (a *arm64Lifter) regSP(r arm64asm.RegSP) (disasm.Varnode, bool) {
	switch arm64asm.Reg(r) {
	case arm64asm.SP:
		return a.register(a64SP, 8), true
	case arm64asm.WSP:
		return a.register(a64SP, 4), true
	}
	v, _, ok := a.reg(arm64asm.Reg(r))
	return v, ok
}

func (a *arm64Lifter) operand(arg arm64asm.Arg, size uint32) (disasm.Varnode, bool) {
	switch arg := arg.(type) {
	case arm64asm.Reg:
		v, _, ok := a.reg(arg)
		return v, ok
	case arm64asm.RegSP:
		return a.regSP(arg)
	case arm64asm.Imm:
		return a.constant(uint64(arg.Imm), size), true
	case arm64asm.Imm64:
		return a.constant(arg.Imm, size), true
	case arm64asm.PCRel:
		return a.code(a.pc + uint64(int64(arg))), true
	}
	return disasm.Varnode{}, false
}

// write stores val into a destination register. W writes clear the upper half.
func (a *arm64Lifter) write(arg arm64asm.Arg, val disasm.Varnode) bool {
	var dst disasm.Varnode
	switch arg := arg.(type) {
	case arm64asm.Reg:
		v, zero, ok := a.reg(arg)
		if !ok {
			return false
		}
		if zero {
			return true
		}
		dst = v
	case arm64asm.RegSP:
		v, ok := a.regSP(arg)
		if !ok {
			return false
		}
		dst = v
	default:
		return false
	}
	if dst.Size == 4 {
		full := a.register(dst.Offset, 8)
		a.emit(disasm.INT_ZEXT, &full, val)
		return true
	}
	a.copy(dst, val)
	return true
}

// source decodes the second ALU operand. Immediate and shifted-register
// forms are recovered from the encoding since arm64asm keeps them opaque.
func (a *arm64Lifter) source(arg arm64asm.Arg, size uint32) (disasm.Varnode, bool) {
	switch arg.(type) {
	case arm64asm.ImmShift:
		// add/sub immediate: imm12 at [21:10], shift flag at 22.
		if a.enc>>23&0x3f != 0x22 {
			return disasm.Varnode{}, false
		}
		imm := uint64(a.enc >> 10 & 0xfff)
		if a.enc>>22&1 == 1 {
			imm <<= 12
		}
		return a.constant(imm, size), true
	case arm64asm.RegExtshiftAmount:
		class := a.enc >> 24 & 0x1f
		if class != 0x0b && class != 0x0a {
			return disasm.Varnode{}, false
		}
		if class == 0x0b && a.enc>>21&1 == 1 {
			return disasm.Varnode{}, false // extended register
		}
		rm := arm64asm.Reg(a.enc >> 16 & 0x1f)
		base := arm64asm.W0
		if size == 8 {
			base = arm64asm.X0
		}
		if rm == 31 {
			rm = arm64asm.WZR
			if size == 8 {
				rm = arm64asm.XZR
			}
		} else {
			rm += base
		}
		v, _, ok := a.reg(rm)
		if !ok {
			return disasm.Varnode{}, false
		}
		amount := uint64(a.enc >> 10 & 0x3f)
		if amount == 0 {
			return v, true
		}
		op := []disasm.Opcode{disasm.INT_LEFT, disasm.INT_RIGHT, disasm.INT_SRIGHT, 0}[a.enc>>22&3]
		if op == 0 {
			return disasm.Varnode{}, false
		}
		return a.binary(op, v, a.constant(amount, 4)), true
	}
	return a.operand(arg, size)
}

func (a *arm64Lifter) size(arg arm64asm.Arg) uint32 {
	switch arg := arg.(type) {
	case arm64asm.Reg:
		if v, _, ok := a.reg(arg); ok {
			return v.Size
		}
	case arm64asm.RegSP:
		if v, ok := a.regSP(arg); ok {
			return v.Size
		}
	}
	return 8
}

func (a *arm64Lifter) setFlags(res, x, y disasm.Varnode, subtract bool) {
	ng, zr, cy, ov := a.register(a64NG, 1), a.register(a64ZR, 1), a.register(a64CY, 1), a.register(a64OV, 1)
	zero := a.constant(0, res.Size)
	a.emit(disasm.INT_SLESS, &ng, res, zero)
	a.emit(disasm.INT_EQUAL, &zr, res, zero)
	switch {
	case subtract:
		a.emit(disasm.INT_LESSEQUAL, &cy, y, x)
		a.emit(disasm.INT_SBORROW, &ov, x, y)
	case y.Size != 0:
		a.emit(disasm.INT_CARRY, &cy, x, y)
		a.emit(disasm.INT_SCARRY, &ov, x, y)
	default:
		a.copy(cy, a.constant(0, 1))
		a.copy(ov, a.constant(0, 1))
	}
}

func (a *arm64Lifter) lift() bool {
	args := a.inst.Args
	switch a.inst.Op {
	case arm64asm.MOV:
		size := a.size(args[0])
		src, ok := a.operand(args[1], size)
		return ok && a.write(args[0], src)

	case arm64asm.MOVZ, arm64asm.MOVN, arm64asm.MOVK:
		size := a.size(args[0])
		shift := 16 * uint64(a.enc>>21&3)
		imm := uint64(a.enc>>5&0xffff) << shift
		switch a.inst.Op {
		case arm64asm.MOVZ:
			return a.write(args[0], a.constant(imm, size))
		case arm64asm.MOVN:
			return a.write(args[0], a.constant(^imm, size))
		}
		cur, ok := a.operand(args[0], size)
		if !ok {
			return false
		}
		kept := a.binary(disasm.INT_AND, cur, a.constant(^(uint64(0xffff) << shift), size))
		return a.write(args[0], a.binary(disasm.INT_OR, kept, a.constant(imm, size)))

	case arm64asm.ADD, arm64asm.ADDS, arm64asm.SUB, arm64asm.SUBS, arm64asm.CMP, arm64asm.CMN:
		return a.addSub()

	case arm64asm.AND, arm64asm.ANDS, arm64asm.ORR, arm64asm.EOR, arm64asm.TST:
		return a.logical()

	case arm64asm.NEG:
		size := a.size(args[0])
		src, ok := a.source(args[1], size)
		return ok && a.write(args[0], a.unary(disasm.INT_2COMP, size, src))

	case arm64asm.MVN:
		size := a.size(args[0])
		src, ok := a.source(args[1], size)
		return ok && a.write(args[0], a.unary(disasm.INT_NEGATE, size, src))

	case arm64asm.ADR:
		return a.write(args[0], a.constant(a.pc+uint64(int64(args[1].(arm64asm.PCRel))), 8))

	case arm64asm.ADRP:
		page := a.pc &^ 0xfff
		return a.write(args[0], a.constant(page+uint64(int64(args[1].(arm64asm.PCRel))), 8))

	case arm64asm.B:
		if cond, ok := args[0].(arm64asm.Cond); ok {
			rel, ok := args[1].(arm64asm.PCRel)
			if !ok {
				return false
			}
			c, ok := a.condition(cond)
			if !ok {
				a.branch(a.pc + uint64(int64(rel)))
				return true
			}
			a.cbranch(a.pc+uint64(int64(rel)), c)
			return true
		}
		rel, ok := args[0].(arm64asm.PCRel)
		if !ok {
			return false
		}
		a.branch(a.pc + uint64(int64(rel)))
		return true

	case arm64asm.BL:
		rel, ok := args[0].(arm64asm.PCRel)
		if !ok {
			return false
		}
		a.copy(a.register(30*8, 8), a.constant(a.pc+4, 8))
		a.call(a.pc + uint64(int64(rel)))
		return true

	case arm64asm.BR, arm64asm.BLR, arm64asm.RET:
		target := a.register(30*8, 8)
		if args[0] != nil {
			v, ok := a.operand(args[0], 8)
			if !ok {
				return false
			}
			target = v
		}
		switch a.inst.Op {
		case arm64asm.BR:
			a.emit(disasm.BRANCHIND, nil, target)
		case arm64asm.BLR:
			saved := a.temp(8)
			a.copy(saved, target)
			a.copy(a.register(30*8, 8), a.constant(a.pc+4, 8))
			a.emit(disasm.CALLIND, nil, saved)
		default:
			a.emit(disasm.RETURN, nil, target)
		}
		return true

	case arm64asm.CBZ, arm64asm.CBNZ:
		v, ok := a.operand(args[0], 8)
		rel, isRel := args[1].(arm64asm.PCRel)
		if !ok || !isRel {
			return false
		}
		op := disasm.INT_EQUAL
		if a.inst.Op == arm64asm.CBNZ {
			op = disasm.INT_NOTEQUAL
		}
		a.cbranch(a.pc+uint64(int64(rel)), a.test(op, v, a.constant(0, v.Size)))
		return true

	case arm64asm.LDR, arm64asm.STR, arm64asm.LDRB, arm64asm.STRB, arm64asm.LDRH, arm64asm.STRH:
		return a.loadStore()
	}
	return false
}

func (a *arm64Lifter) addSub() bool {
	args := a.inst.Args
	op := a.inst.Op
	dst, x, y := args[0], args[1], args[2]
	if op == arm64asm.CMP || op == arm64asm.CMN {
		dst, x, y = nil, args[0], args[1]
	}
	size := a.size(x)
	vx, ok1 := a.operand(x, size)
	vy, ok2 := a.source(y, size)
	if !ok1 || !ok2 {
		return false
	}

	subtract := op == arm64asm.SUB || op == arm64asm.SUBS || op == arm64asm.CMP
	code := disasm.INT_ADD
	if subtract {
		code = disasm.INT_SUB
	}
	res := a.binary(code, vx, vy)
	if op == arm64asm.ADDS || op == arm64asm.SUBS || op == arm64asm.CMP || op == arm64asm.CMN {
		a.setFlags(res, vx, vy, subtract)
	}
	if dst == nil {
		return true
	}
	return a.write(dst, res)
}

func (a *arm64Lifter) logical() bool {
	args := a.inst.Args
	dst, x, y := args[0], args[1], args[2]
	if a.inst.Op == arm64asm.TST {
		dst, x, y = nil, args[0], args[1]
	}
	size := a.size(x)
	vx, ok1 := a.operand(x, size)
	vy, ok2 := a.source(y, size)
	if !ok1 || !ok2 {
		return false
	}
	code := map[arm64asm.Op]disasm.Opcode{
		arm64asm.AND:  disasm.INT_AND,
		arm64asm.ANDS: disasm.INT_AND,
		arm64asm.TST:  disasm.INT_AND,
		arm64asm.ORR:  disasm.INT_OR,
		arm64asm.EOR:  disasm.INT_XOR,
	}[a.inst.Op]
	res := a.binary(code, vx, vy)
	if a.inst.Op == arm64asm.ANDS || a.inst.Op == arm64asm.TST {
		a.setFlags(res, vx, disasm.Varnode{}, false)
	}
	if dst == nil {
		return true
	}
	return a.write(dst, res)
}

// loadStore covers the unsigned-offset immediate form.
func (a *arm64Lifter) loadStore() bool {
	if a.enc>>24&0x3f != 0x39 {
		return false
	}
	mem, ok := a.inst.Args[1].(arm64asm.MemImmediate)
	if !ok {
		return false
	}
	base, ok := a.regSP(mem.Base)
	if !ok {
		return false
	}
	scale := a.enc >> 30
	width := uint32(1) << scale
	off := uint64(a.enc>>10&0xfff) << scale
	addr := base
	if off != 0 {
		addr = a.binary(disasm.INT_ADD, base, a.constant(off, base.Size))
	}

	switch a.inst.Op {
	case arm64asm.STR, arm64asm.STRB, arm64asm.STRH:
		val, ok := a.operand(a.inst.Args[0], 8)
		if !ok {
			return false
		}
		a.store(addr, a.resize(val, width, false))
		return true
	}
	size := a.size(a.inst.Args[0])
	return a.write(a.inst.Args[0], a.resize(a.load(addr, width), size, false))
}

// condition evaluates a condition code; ok is false for "always".
func (a *arm64Lifter) condition(c arm64asm.Cond) (disasm.Varnode, bool) {
	ng, zr, cy, ov := a.register(a64NG, 1), a.register(a64ZR, 1), a.register(a64CY, 1), a.register(a64OV, 1)
	invert := (c.Value&1 == 1) != c.Invert

	var v disasm.Varnode
	switch c.Value >> 1 {
	case 0:
		v = zr
	case 1:
		v = cy
	case 2:
		v = ng
	case 3:
		v = ov
	case 4:
		v = a.test(disasm.BOOL_AND, cy, a.unary(disasm.BOOL_NEGATE, 1, zr))
	case 5:
		v = a.test(disasm.INT_EQUAL, ng, ov)
	case 6:
		v = a.test(disasm.BOOL_AND, a.unary(disasm.BOOL_NEGATE, 1, zr), a.test(disasm.INT_EQUAL, ng, ov))
	default:
		return disasm.Varnode{}, false
	}
	if invert {
		v = a.unary(disasm.BOOL_NEGATE, 1, v)
	}
	return v, true
}
