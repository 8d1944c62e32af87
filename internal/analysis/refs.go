// Package analysis recovers the addresses a listing refers to and names them
// from an ELF image: branch and call targets by symbol, pointers into data
// segments by the C string they hold.
package analysis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"lift/internal/correspond"
	"lift/internal/disasm"
	"lift/internal/elfx"
)

const (
	// MaxStringLength caps the bytes read for one string.
	MaxStringLength = 256
	// MinStringLength is the shortest run accepted as a string.
	MinStringLength = 4
)

type RefKind int

const (
	RefSymbol RefKind = iota
	RefString
)

func (k RefKind) String() string {
	if k == RefString {
		return "string"
	}
	return "symbol"
}

// Ref is one address an instruction refers to.
type Ref struct {
	Inst   uint64 // offset of the referring instruction
	Target uint64
	Kind   RefKind
	Text   string
}

// EscapeUnprintable keeps printable runes and escapes the rest as \uXXXX,
// invalid UTF-8 as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, "\\x%02X", b[0])
		case unicode.IsPrint(r):
			sb.WriteRune(r)
		default:
			fmt.Fprintf(&sb, "\\u%04X", r)
		}
		b = b[size:]
	}
	return sb.String()
}

// ReadCString reads the NUL-terminated string at va from a non-executable
// segment. It fails when the string is shorter than MinStringLength or holds
// control bytes.
func ReadCString(im *elfx.Image, va uint64) (string, bool) {
	var seg elfx.Segment
	found := false
	for _, s := range im.Segments {
		if s.Contains(va) {
			seg, found = s, true
			break
		}
	}
	if !found || seg.Exec() {
		return "", false
	}

	n := min(seg.Vaddr+seg.Filesz-va, MaxStringLength)
	raw, ok := im.SliceVA(va, n)
	if !ok {
		return "", false
	}
	end := -1
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
		if b < 0x20 && b != '\t' && b != '\n' {
			return "", false
		}
	}
	if end < 0 {
		end = len(raw)
	}
	if end < MinStringLength {
		return "", false
	}
	return EscapeUnprintable(raw[:end]), true
}

// propagation tracks varnodes holding known constants inside one block.
type propagation struct {
	known map[disasm.Varnode]uint64
}

func (p *propagation) value(v disasm.Varnode) (uint64, bool) {
	if v.Space == "const" {
		return v.Offset, true
	}
	val, ok := p.known[v]
	return val, ok
}

func mask(v uint64, size uint32) uint64 {
	if size >= 8 {
		return v
	}
	return v & (1<<(8*size) - 1)
}

// step applies one micro-operation and returns the value it computed, if known.
func (p *propagation) step(op disasm.PcodeInstruction) (uint64, bool) {
	if op.Out == nil {
		return 0, false
	}
	out := *op.Out
	delete(p.known, out)

	var val uint64
	switch op.Opcode {
	case disasm.COPY, disasm.INT_ZEXT:
		if len(op.Vars) == 0 {
			return 0, false
		}
		v, ok := p.value(op.Vars[0])
		if !ok {
			return 0, false
		}
		val = v
	case disasm.INT_ADD, disasm.INT_SUB, disasm.INT_OR, disasm.INT_AND, disasm.INT_XOR, disasm.INT_LEFT:
		if len(op.Vars) < 2 {
			return 0, false
		}
		a, okA := p.value(op.Vars[0])
		b, okB := p.value(op.Vars[1])
		if !okA || !okB {
			return 0, false
		}
		switch op.Opcode {
		case disasm.INT_ADD:
			val = a + b
		case disasm.INT_SUB:
			val = a - b
		case disasm.INT_OR:
			val = a | b
		case disasm.INT_AND:
			val = a & b
		case disasm.INT_XOR:
			val = a ^ b
		case disasm.INT_LEFT:
			val = a << (b & 63)
		}
	default:
		return 0, false
	}
	val = mask(val, out.Size)
	p.known[out] = val
	return val, true
}

// References walks l and reports every target that names a symbol of im or
// points at a string in one of its data segments. Constants are propagated
// within straight-line code and forgotten at each branch.
func References(l *correspond.Listing, im *elfx.Image) []Ref {
	var refs []Ref
	prop := &propagation{known: make(map[disasm.Varnode]uint64)}

	for _, e := range l.Entries {
		seen := make(map[uint64]bool)
		add := func(target uint64) {
			if seen[target] {
				return
			}
			seen[target] = true
			if sym, ok := im.SymbolAt(target); ok {
				name := sym.Demangled
				if name == "" {
					name = sym.Name
				}
				refs = append(refs, Ref{Inst: e.Inst.Addr.Offset, Target: target, Kind: RefSymbol, Text: name})
				return
			}
			if s, ok := ReadCString(im, target); ok {
				refs = append(refs, Ref{Inst: e.Inst.Addr.Offset, Target: target, Kind: RefString, Text: `"` + s + `"`})
			}
		}

		branches := false
		for _, op := range e.Pcodes {
			switch op.Opcode {
			case disasm.BRANCH, disasm.CBRANCH, disasm.CALL:
				branches = true
				if len(op.Vars) > 0 && op.Vars[0].Space != "const" && op.Vars[0].Space != "unique" {
					add(op.Vars[0].Offset)
				}
				continue
			case disasm.BRANCHIND, disasm.CALLIND, disasm.RETURN:
				branches = true
				continue
			}
			if val, ok := prop.step(op); ok {
				add(val)
			}
		}
		if branches {
			clear(prop.known)
		}
	}
	return refs
}

// Comments joins the references of each instruction into one comment.
func Comments(refs []Ref) map[uint64]string {
	out := make(map[uint64]string)
	for _, r := range refs {
		if prev, ok := out[r.Inst]; ok {
			out[r.Inst] = prev + ", " + r.Text
		} else {
			out[r.Inst] = r.Text
		}
	}
	return out
}
