package engine

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

// x86 register file layout: general register i at i*8 with the legacy
// high byte at +1, segment registers from 0x100, flags from 0x200.
const (
	x86SegBase = 0x100
	x86CF      = 0x200
	x86PF      = 0x202
	x86ZF      = 0x206
	x86SF      = 0x207
	x86OF      = 0x20b
	x86IP      = 0x288
)

type x86Decoder struct {
	bits int
}

func newX86Decoder(_ *Descriptor, mode sleigh.Mode) decoder {
	return &x86Decoder{bits: mode.Bits()}
}

func (x *x86Decoder) maxLen() int { return 15 }

func (x *x86Decoder) decode(l *lifter, code []byte, pc uint64) (string, string, int, error) {
	inst, err := x86asm.Decode(code, x.bits)
	if err != nil {
		return "", "", 0, err
	}
	mnemonic, body := splitX86(x86asm.IntelSyntax(inst, pc, nil))

	xl := &x86Lifter{lifter: l, inst: inst, pc: pc, bits: x.bits}
	if !xl.lift() {
		l.userop()
	}
	return mnemonic, body, inst.Len, nil
}

var x86Prefixes = map[string]bool{
	"lock": true, "rep": true, "repe": true, "repz": true, "repne": true, "repnz": true,
	"data16": true, "data32": true, "addr16": true, "addr32": true, "bnd": true,
	"xacquire": true, "xrelease": true, "rex": true, "rex.w": true,
}

// splitX86 separates the mnemonic (with any leading prefixes) from the operands.
func splitX86(text string) (string, string) {
	fields := strings.Fields(text)
	i := 0
	for i < len(fields)-1 && x86Prefixes[fields[i]] {
		i++
	}
	if len(fields) == 0 {
		return "", ""
	}
	return strings.Join(fields[:i+1], " "), strings.Join(fields[i+1:], " ")
}

type x86Lifter struct {
	*lifter
	inst x86asm.Inst
	pc   uint64
	bits int
}

func (x *x86Lifter) next() uint64 {
	return (x.pc + uint64(x.inst.Len)) & sizeMask(uint32(x.bits/8))
}

func (x *x86Lifter) flag(off uint64) disasm.Varnode {
	return x.register(off, 1)
}

// reg maps an x86asm register onto the register space.
func (x *x86Lifter) reg(r x86asm.Reg) (disasm.Varnode, bool) {
	switch {
	case r >= x86asm.AL && r <= x86asm.BL:
		return x.register(uint64(r-x86asm.AL)*8, 1), true
	case r >= x86asm.AH && r <= x86asm.BH:
		return x.register(uint64(r-x86asm.AH)*8+1, 1), true
	case r >= x86asm.SPB && r <= x86asm.R15B:
		return x.register(uint64(r-x86asm.SPB+4)*8, 1), true
	case r >= x86asm.AX && r <= x86asm.R15W:
		return x.register(uint64(r-x86asm.AX)*8, 2), true
	case r >= x86asm.EAX && r <= x86asm.R15L:
		return x.register(uint64(r-x86asm.EAX)*8, 4), true
	case r >= x86asm.RAX && r <= x86asm.R15:
		return x.register(uint64(r-x86asm.RAX)*8, 8), true
	case r == x86asm.IP:
		return x.register(x86IP, 2), true
	case r == x86asm.EIP:
		return x.register(x86IP, 4), true
	case r == x86asm.RIP:
		return x.register(x86IP, 8), true
	case r >= x86asm.ES && r <= x86asm.GS:
		return x.register(x86SegBase+uint64(r-x86asm.ES)*2, 2), true
	}
	return disasm.Varnode{}, false
}

func (x *x86Lifter) stackReg() disasm.Varnode {
	v, _ := x.reg(stackRegs[x.bits])
	return v
}

var stackRegs = map[int]x86asm.Reg{16: x86asm.SP, 32: x86asm.ESP, 64: x86asm.RSP}
var baseRegs = map[int]x86asm.Reg{16: x86asm.BP, 32: x86asm.EBP, 64: x86asm.RBP}

// effective computes a memory operand's address without segment bases.
func (x *x86Lifter) effective(m x86asm.Mem) (disasm.Varnode, bool) {
	size := uint32(x.inst.AddrSize / 8)
	if size == 0 {
		size = uint32(x.bits / 8)
	}
	var acc *disasm.Varnode
	add := func(v disasm.Varnode) {
		if acc == nil {
			acc = &v
			return
		}
		sum := x.binary(disasm.INT_ADD, *acc, x.resize(v, acc.Size, false))
		acc = &sum
	}

	switch m.Base {
	case 0:
	case x86asm.RIP, x86asm.EIP, x86asm.IP:
		add(x.constant(x.next(), size))
	default:
		base, ok := x.reg(m.Base)
		if !ok {
			return disasm.Varnode{}, false
		}
		add(base)
	}
	if m.Index != 0 {
		idx, ok := x.reg(m.Index)
		if !ok {
			return disasm.Varnode{}, false
		}
		if m.Scale > 1 {
			idx = x.binary(disasm.INT_MULT, idx, x.constant(uint64(m.Scale), idx.Size))
		}
		add(idx)
	}
	if m.Disp != 0 || acc == nil {
		add(x.constant(uint64(m.Disp), size))
	}
	return *acc, true
}

func (x *x86Lifter) argSize(a x86asm.Arg) uint32 {
	switch a := a.(type) {
	case x86asm.Reg:
		if v, ok := x.reg(a); ok {
			return v.Size
		}
	case x86asm.Mem:
		return uint32(x.inst.MemBytes)
	}
	return uint32(x.inst.DataSize / 8)
}

func (x *x86Lifter) read(a x86asm.Arg, size uint32) (disasm.Varnode, bool) {
	switch a := a.(type) {
	case x86asm.Reg:
		return x.reg(a)
	case x86asm.Mem:
		addr, ok := x.effective(a)
		if !ok {
			return disasm.Varnode{}, false
		}
		return x.load(addr, size), true
	case x86asm.Imm:
		return x.constant(uint64(a), size), true
	case x86asm.Rel:
		return x.code(x.next() + uint64(int64(a))), true
	}
	return disasm.Varnode{}, false
}

func (x *x86Lifter) write(a x86asm.Arg, val disasm.Varnode) bool {
	switch a := a.(type) {
	case x86asm.Reg:
		dst, ok := x.reg(a)
		if !ok {
			return false
		}
		x.copy(dst, val)
		// 32-bit writes clear the upper half in long mode.
		if x.bits == 64 && a >= x86asm.EAX && a <= x86asm.R15L {
			full, _ := x.reg(a - x86asm.EAX + x86asm.RAX)
			x.emit(disasm.INT_ZEXT, &full, dst)
		}
		return true
	case x86asm.Mem:
		addr, ok := x.effective(a)
		if !ok {
			return false
		}
		x.store(addr, val)
		return true
	}
	return false
}

func (x *x86Lifter) resultFlags(res disasm.Varnode) {
	zero := x.constant(0, res.Size)
	zf, sf := x.flag(x86ZF), x.flag(x86SF)
	x.emit(disasm.INT_EQUAL, &zf, res, zero)
	x.emit(disasm.INT_SLESS, &sf, res, zero)
}

func (x *x86Lifter) push(val disasm.Varnode) {
	sp := x.stackReg()
	x.emit(disasm.INT_SUB, &sp, sp, x.constant(uint64(val.Size), sp.Size))
	x.store(sp, val)
}

func (x *x86Lifter) pop(size uint32) disasm.Varnode {
	sp := x.stackReg()
	val := x.load(sp, size)
	x.emit(disasm.INT_ADD, &sp, sp, x.constant(uint64(size), sp.Size))
	return val
}

func (x *x86Lifter) stackWidth() uint32 {
	if x.bits == 64 {
		return 8
	}
	return uint32(x.inst.DataSize / 8)
}

// lift reports false when the instruction has operands or semantics the
// lifter does not model.
func (x *x86Lifter) lift() bool {
	args := x.inst.Args
	switch x.inst.Op {
	case x86asm.NOP:
		acc, _ := x.reg(x86asm.AX)
		if x.bits >= 32 {
			acc, _ = x.reg(x86asm.EAX)
		}
		x.copy(acc, acc)
		return true

	case x86asm.MOV:
		size := x.argSize(args[0])
		src, ok := x.read(args[1], size)
		return ok && x.write(args[0], src)

	case x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		size := x.argSize(args[0])
		src, ok := x.read(args[1], x.argSize(args[1]))
		if !ok {
			return false
		}
		return x.write(args[0], x.resize(src, size, x.inst.Op != x86asm.MOVZX))

	case x86asm.LEA:
		m, ok := args[1].(x86asm.Mem)
		if !ok {
			return false
		}
		addr, ok := x.effective(m)
		return ok && x.write(args[0], x.resize(addr, x.argSize(args[0]), false))

	case x86asm.XCHG:
		size := x.argSize(args[0])
		a, ok1 := x.read(args[0], size)
		b, ok2 := x.read(args[1], size)
		if !ok1 || !ok2 {
			return false
		}
		tmp := x.temp(size)
		x.copy(tmp, a)
		return x.write(args[0], b) && x.write(args[1], tmp)

	case x86asm.ADD, x86asm.SUB, x86asm.CMP, x86asm.ADC, x86asm.SBB,
		x86asm.AND, x86asm.OR, x86asm.XOR, x86asm.TEST:
		return x.arith()

	case x86asm.INC, x86asm.DEC:
		size := x.argSize(args[0])
		a, ok := x.read(args[0], size)
		if !ok {
			return false
		}
		one := x.constant(1, size)
		of := x.flag(x86OF)
		op, ovf := disasm.INT_ADD, disasm.INT_SCARRY
		if x.inst.Op == x86asm.DEC {
			op, ovf = disasm.INT_SUB, disasm.INT_SBORROW
		}
		x.emit(ovf, &of, a, one)
		res := x.binary(op, a, one)
		x.resultFlags(res)
		return x.write(args[0], res)

	case x86asm.NEG, x86asm.NOT:
		size := x.argSize(args[0])
		a, ok := x.read(args[0], size)
		if !ok {
			return false
		}
		if x.inst.Op == x86asm.NOT {
			return x.write(args[0], x.unary(disasm.INT_NEGATE, size, a))
		}
		cf := x.flag(x86CF)
		x.emit(disasm.INT_NOTEQUAL, &cf, a, x.constant(0, size))
		res := x.unary(disasm.INT_2COMP, size, a)
		x.resultFlags(res)
		return x.write(args[0], res)

	case x86asm.SHL, x86asm.SHR, x86asm.SAR:
		return x.shift()

	case x86asm.IMUL:
		if args[1] == nil {
			return false
		}
		size := x.argSize(args[0])
		a, b := args[0], args[1]
		if args[2] != nil {
			a, b = args[1], args[2]
		}
		va, ok1 := x.read(a, size)
		vb, ok2 := x.read(b, size)
		if !ok1 || !ok2 {
			return false
		}
		return x.write(args[0], x.binary(disasm.INT_MULT, va, vb))

	case x86asm.PUSH:
		size := x.stackWidth()
		if r, ok := args[0].(x86asm.Reg); ok {
			size = x.argSize(r)
		}
		v, ok := x.read(args[0], size)
		if !ok {
			return false
		}
		x.push(x.resize(v, size, true))
		return true

	case x86asm.POP:
		return x.write(args[0], x.pop(x.argSize(args[0])))

	case x86asm.LEAVE:
		sp := x.stackReg()
		bp, _ := x.reg(baseRegs[x.bits])
		x.copy(sp, bp)
		x.copy(bp, x.pop(bp.Size))
		return true

	case x86asm.JMP:
		if rel, ok := args[0].(x86asm.Rel); ok {
			x.branch(x.next() + uint64(int64(rel)))
			return true
		}
		target, ok := x.read(args[0], x.argSize(args[0]))
		if !ok {
			return false
		}
		x.emit(disasm.BRANCHIND, nil, target)
		return true

	case x86asm.CALL:
		x.push(x.constant(x.next(), x.stackWidth()))
		if rel, ok := args[0].(x86asm.Rel); ok {
			x.call(x.next() + uint64(int64(rel)))
			return true
		}
		target, ok := x.read(args[0], x.argSize(args[0]))
		if !ok {
			return false
		}
		x.emit(disasm.CALLIND, nil, target)
		return true

	case x86asm.RET:
		target := x.pop(x.stackWidth())
		if imm, ok := args[0].(x86asm.Imm); ok {
			sp := x.stackReg()
			x.emit(disasm.INT_ADD, &sp, sp, x.constant(uint64(imm), sp.Size))
		}
		x.emit(disasm.RETURN, nil, target)
		return true

	case x86asm.CLC, x86asm.STC:
		var v uint64
		if x.inst.Op == x86asm.STC {
			v = 1
		}
		x.copy(x.flag(x86CF), x.constant(v, 1))
		return true
	}

	if cond, ok := x.condition(); ok {
		rel, isRel := args[0].(x86asm.Rel)
		if !isRel {
			return false
		}
		x.cbranch(x.next()+uint64(int64(rel)), cond)
		return true
	}
	return false
}

func (x *x86Lifter) arith() bool {
	args := x.inst.Args
	size := x.argSize(args[0])
	a, ok1 := x.read(args[0], size)
	b, ok2 := x.read(args[1], size)
	if !ok1 || !ok2 {
		return false
	}
	b = x.resize(b, size, true)
	cf, of := x.flag(x86CF), x.flag(x86OF)

	var res disasm.Varnode
	switch x.inst.Op {
	case x86asm.ADD, x86asm.ADC:
		if x.inst.Op == x86asm.ADC {
			b = x.binary(disasm.INT_ADD, b, x.resize(cf, size, false))
		}
		x.emit(disasm.INT_CARRY, &cf, a, b)
		x.emit(disasm.INT_SCARRY, &of, a, b)
		res = x.binary(disasm.INT_ADD, a, b)
	case x86asm.SUB, x86asm.SBB, x86asm.CMP:
		if x.inst.Op == x86asm.SBB {
			b = x.binary(disasm.INT_ADD, b, x.resize(cf, size, false))
		}
		x.emit(disasm.INT_LESS, &cf, a, b)
		x.emit(disasm.INT_SBORROW, &of, a, b)
		res = x.binary(disasm.INT_SUB, a, b)
	default:
		op := map[x86asm.Op]disasm.Opcode{
			x86asm.AND:  disasm.INT_AND,
			x86asm.TEST: disasm.INT_AND,
			x86asm.OR:   disasm.INT_OR,
			x86asm.XOR:  disasm.INT_XOR,
		}[x.inst.Op]
		x.copy(cf, x.constant(0, 1))
		x.copy(of, x.constant(0, 1))
		res = x.binary(op, a, b)
	}
	x.resultFlags(res)

	if x.inst.Op == x86asm.CMP || x.inst.Op == x86asm.TEST {
		return true
	}
	return x.write(args[0], res)
}

func (x *x86Lifter) shift() bool {
	args := x.inst.Args
	size := x.argSize(args[0])
	a, ok := x.read(args[0], size)
	if !ok {
		return false
	}
	count := x.constant(1, 1)
	if args[1] != nil {
		if count, ok = x.read(args[1], 1); !ok {
			return false
		}
	}
	limit := uint64(0x1f)
	if size == 8 {
		limit = 0x3f
	}
	count = x.binary(disasm.INT_AND, count, x.constant(limit, count.Size))

	op := map[x86asm.Op]disasm.Opcode{
		x86asm.SHL: disasm.INT_LEFT,
		x86asm.SHR: disasm.INT_RIGHT,
		x86asm.SAR: disasm.INT_SRIGHT,
	}[x.inst.Op]
	res := x.binary(op, a, count)
	x.resultFlags(res)
	return x.write(args[0], res)
}

// condition computes the branch condition of a jcc instruction.
func (x *x86Lifter) condition() (disasm.Varnode, bool) {
	cf, zf, sf, of, pf := x.flag(x86CF), x.flag(x86ZF), x.flag(x86SF), x.flag(x86OF), x.flag(x86PF)
	not := func(v disasm.Varnode) disasm.Varnode { return x.unary(disasm.BOOL_NEGATE, 1, v) }

	switch x.inst.Op {
	case x86asm.JE:
		return zf, true
	case x86asm.JNE:
		return not(zf), true
	case x86asm.JB:
		return cf, true
	case x86asm.JAE:
		return not(cf), true
	case x86asm.JBE:
		return x.test(disasm.BOOL_OR, cf, zf), true
	case x86asm.JA:
		return not(x.test(disasm.BOOL_OR, cf, zf)), true
	case x86asm.JS:
		return sf, true
	case x86asm.JNS:
		return not(sf), true
	case x86asm.JO:
		return of, true
	case x86asm.JNO:
		return not(of), true
	case x86asm.JP:
		return pf, true
	case x86asm.JNP:
		return not(pf), true
	case x86asm.JL:
		return x.test(disasm.INT_NOTEQUAL, sf, of), true
	case x86asm.JGE:
		return x.test(disasm.INT_EQUAL, sf, of), true
	case x86asm.JLE:
		return x.test(disasm.BOOL_OR, zf, x.test(disasm.INT_NOTEQUAL, sf, of)), true
	case x86asm.JG:
		return x.test(disasm.BOOL_AND, not(zf), x.test(disasm.INT_EQUAL, sf, of)), true
	case x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		counter := map[x86asm.Op]x86asm.Reg{x86asm.JCXZ: x86asm.CX, x86asm.JECXZ: x86asm.ECX, x86asm.JRCXZ: x86asm.RCX}[x.inst.Op]
		cx, _ := x.reg(counter)
		return x.test(disasm.INT_EQUAL, cx, x.constant(0, cx.Size)), true
	}
	return disasm.Varnode{}, false
}
