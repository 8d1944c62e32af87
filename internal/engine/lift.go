package engine

import "lift/internal/disasm"

type pcodeOp struct {
	opcode disasm.Opcode
	out    *disasm.Varnode
	in     []disasm.Varnode
}

// lifter accumulates the pcode of one instruction. Nothing reaches the
// session sinks until the decoder has succeeded.
type lifter struct {
	ram, reg, cst, uniq string
	ramIndex            uint64
	ramSize             uint32
	uniqBase            uint64

	next uint64
	ops  []pcodeOp
}

func newLifter(d *Descriptor) *lifter {
	ram, _ := d.Space(d.DefaultSpace)
	return &lifter{
		ram:      ram.Name,
		reg:      "register",
		cst:      d.spaceOfKind("const", "const"),
		uniq:     d.spaceOfKind("unique", "unique"),
		ramIndex: uint64(ram.Index),
		ramSize:  uint32(ram.Size),
		uniqBase: d.UniqBase,
	}
}

func (l *lifter) reset() {
	l.next = l.uniqBase
	l.ops = l.ops[:0]
}

func (l *lifter) constant(v uint64, size uint32) disasm.Varnode {
	return disasm.Varnode{Space: l.cst, Offset: v & sizeMask(size), Size: size}
}

func (l *lifter) register(off uint64, size uint32) disasm.Varnode {
	return disasm.Varnode{Space: l.reg, Offset: off, Size: size}
}

func (l *lifter) code(target uint64) disasm.Varnode {
	return disasm.Varnode{Space: l.ram, Offset: target & sizeMask(l.ramSize), Size: l.ramSize}
}

func (l *lifter) temp(size uint32) disasm.Varnode {
	v := disasm.Varnode{Space: l.uniq, Offset: l.next, Size: size}
	l.next += 0x10
	return v
}

func (l *lifter) emit(op disasm.Opcode, out *disasm.Varnode, in ...disasm.Varnode) {
	l.ops = append(l.ops, pcodeOp{opcode: op, out: out, in: in})
}

func (l *lifter) copy(dst, src disasm.Varnode) {
	l.emit(disasm.COPY, &dst, src)
}

// unary writes op(a) into a fresh temporary of the given size.
func (l *lifter) unary(op disasm.Opcode, size uint32, a disasm.Varnode) disasm.Varnode {
	out := l.temp(size)
	l.emit(op, &out, a)
	return out
}

// binary writes op(a, b) into a fresh temporary sized like a.
func (l *lifter) binary(op disasm.Opcode, a, b disasm.Varnode) disasm.Varnode {
	out := l.temp(a.Size)
	l.emit(op, &out, a, b)
	return out
}

// test writes a one-byte boolean op(a, b) into a fresh temporary.
func (l *lifter) test(op disasm.Opcode, a, b disasm.Varnode) disasm.Varnode {
	out := l.temp(1)
	l.emit(op, &out, a, b)
	return out
}

func (l *lifter) resize(v disasm.Varnode, size uint32, signed bool) disasm.Varnode {
	switch {
	case v.Size == size:
		return v
	case v.Size > size:
		out := l.temp(size)
		l.emit(disasm.SUBPIECE, &out, v, l.constant(0, 4))
		return out
	case signed:
		return l.unary(disasm.INT_SEXT, size, v)
	}
	return l.unary(disasm.INT_ZEXT, size, v)
}

func (l *lifter) load(addr disasm.Varnode, size uint32) disasm.Varnode {
	out := l.temp(size)
	l.emit(disasm.LOAD, &out, l.constant(l.ramIndex, 8), l.resize(addr, l.ramSize, false))
	return out
}

func (l *lifter) store(addr, val disasm.Varnode) {
	l.emit(disasm.STORE, nil, l.constant(l.ramIndex, 8), l.resize(addr, l.ramSize, false), val)
}

func (l *lifter) branch(target uint64) {
	l.emit(disasm.BRANCH, nil, l.code(target))
}

func (l *lifter) cbranch(target uint64, cond disasm.Varnode) {
	l.emit(disasm.CBRANCH, nil, l.code(target), cond)
}

func (l *lifter) call(target uint64) {
	l.emit(disasm.CALL, nil, l.code(target))
}

// userop records semantics the engine does not model.
func (l *lifter) userop() {
	l.ops = l.ops[:0]
	l.emit(disasm.CALLOTHER, nil, l.constant(0, 4))
}

func sizeMask(size uint32) uint64 {
	if size >= 8 || size == 0 {
		return ^uint64(0)
	}
	return 1<<(8*size) - 1
}
