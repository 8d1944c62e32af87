package disasm

import (
	"fmt"
	"strings"
)

// Opcode is a micro-operation kind. Values match the engine's numbering,
// slot 45 is unused.
type Opcode int

const (
	COPY Opcode = iota + 1
	LOAD
	STORE
	BRANCH
	CBRANCH
	BRANCHIND
	CALL
	CALLIND
	CALLOTHER
	RETURN
	INT_EQUAL
	INT_NOTEQUAL
	INT_SLESS
	INT_SLESSEQUAL
	INT_LESS
	INT_LESSEQUAL
	INT_ZEXT
	INT_SEXT
	INT_ADD
	INT_SUB
	INT_CARRY
	INT_SCARRY
	INT_SBORROW
	INT_2COMP
	INT_NEGATE
	INT_XOR
	INT_AND
	INT_OR
	INT_LEFT
	INT_RIGHT
	INT_SRIGHT
	INT_MULT
	INT_DIV
	INT_SDIV
	INT_REM
	INT_SREM
	BOOL_NEGATE
	BOOL_XOR
	BOOL_AND
	BOOL_OR
	FLOAT_EQUAL
	FLOAT_NOTEQUAL
	FLOAT_LESS
	FLOAT_LESSEQUAL
	_
	FLOAT_NAN
	FLOAT_ADD
	FLOAT_DIV
	FLOAT_MULT
	FLOAT_SUB
	FLOAT_NEG
	FLOAT_ABS
	FLOAT_SQRT
	FLOAT_INT2FLOAT
	FLOAT_FLOAT2FLOAT
	FLOAT_TRUNC
	FLOAT_CEIL
	FLOAT_FLOOR
	FLOAT_ROUND
	MULTIEQUAL
	INDIRECT
	PIECE
	SUBPIECE
	CAST
	PTRADD
	PTRSUB
	SEGMENTOP
	CPOOLREF
	NEW
	INSERT
	EXTRACT
	POPCOUNT
	MAX
)

var opcodeNames = map[Opcode]string{
	COPY: "COPY", LOAD: "LOAD", STORE: "STORE",
	BRANCH: "BRANCH", CBRANCH: "CBRANCH", BRANCHIND: "BRANCHIND",
	CALL: "CALL", CALLIND: "CALLIND", CALLOTHER: "CALLOTHER", RETURN: "RETURN",
	INT_EQUAL: "INT_EQUAL", INT_NOTEQUAL: "INT_NOTEQUAL",
	INT_SLESS: "INT_SLESS", INT_SLESSEQUAL: "INT_SLESSEQUAL",
	INT_LESS: "INT_LESS", INT_LESSEQUAL: "INT_LESSEQUAL",
	INT_ZEXT: "INT_ZEXT", INT_SEXT: "INT_SEXT",
	INT_ADD: "INT_ADD", INT_SUB: "INT_SUB",
	INT_CARRY: "INT_CARRY", INT_SCARRY: "INT_SCARRY", INT_SBORROW: "INT_SBORROW",
	INT_2COMP: "INT_2COMP", INT_NEGATE: "INT_NEGATE",
	INT_XOR: "INT_XOR", INT_AND: "INT_AND", INT_OR: "INT_OR",
	INT_LEFT: "INT_LEFT", INT_RIGHT: "INT_RIGHT", INT_SRIGHT: "INT_SRIGHT",
	INT_MULT: "INT_MULT", INT_DIV: "INT_DIV", INT_SDIV: "INT_SDIV",
	INT_REM: "INT_REM", INT_SREM: "INT_SREM",
	BOOL_NEGATE: "BOOL_NEGATE", BOOL_XOR: "BOOL_XOR", BOOL_AND: "BOOL_AND", BOOL_OR: "BOOL_OR",
	FLOAT_EQUAL: "FLOAT_EQUAL", FLOAT_NOTEQUAL: "FLOAT_NOTEQUAL",
	FLOAT_LESS: "FLOAT_LESS", FLOAT_LESSEQUAL: "FLOAT_LESSEQUAL",
	FLOAT_NAN: "FLOAT_NAN", FLOAT_ADD: "FLOAT_ADD", FLOAT_DIV: "FLOAT_DIV",
	FLOAT_MULT: "FLOAT_MULT", FLOAT_SUB: "FLOAT_SUB", FLOAT_NEG: "FLOAT_NEG",
	FLOAT_ABS: "FLOAT_ABS", FLOAT_SQRT: "FLOAT_SQRT",
	FLOAT_INT2FLOAT: "FLOAT_INT2FLOAT", FLOAT_FLOAT2FLOAT: "FLOAT_FLOAT2FLOAT",
	FLOAT_TRUNC: "FLOAT_TRUNC", FLOAT_CEIL: "FLOAT_CEIL",
	FLOAT_FLOOR: "FLOAT_FLOOR", FLOAT_ROUND: "FLOAT_ROUND",
	MULTIEQUAL: "MULTIEQUAL", INDIRECT: "INDIRECT",
	PIECE: "PIECE", SUBPIECE: "SUBPIECE", CAST: "CAST",
	PTRADD: "PTRADD", PTRSUB: "PTRSUB", SEGMENTOP: "SEGMENTOP",
	CPOOLREF: "CPOOLREF", NEW: "NEW", INSERT: "INSERT", EXTRACT: "EXTRACT",
	POPCOUNT: "POPCOUNT", MAX: "MAX",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", int(op))
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeNames[op]
	return ok
}

// ParseOpcode maps a canonical opcode name (case-insensitive) back to its value.
func ParseOpcode(name string) (Opcode, error) {
	if op, ok := opcodesByName[strings.ToUpper(name)]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown pcode opcode %q", name)
}

// IsBranch reports control transfers, calls and returns included.
func (op Opcode) IsBranch() bool {
	return op >= BRANCH && op <= RETURN
}

// IsCompare reports integer and float comparisons.
func (op Opcode) IsCompare() bool {
	switch op {
	case INT_EQUAL, INT_NOTEQUAL, INT_SLESS, INT_SLESSEQUAL, INT_LESS, INT_LESSEQUAL,
		FLOAT_EQUAL, FLOAT_NOTEQUAL, FLOAT_LESS, FLOAT_LESSEQUAL, FLOAT_NAN:
		return true
	}
	return false
}

// IsArithmetic reports integer arithmetic, carries included.
func (op Opcode) IsArithmetic() bool {
	switch op {
	case INT_ADD, INT_SUB, INT_CARRY, INT_SCARRY, INT_SBORROW, INT_2COMP,
		INT_MULT, INT_DIV, INT_SDIV, INT_REM, INT_SREM:
		return true
	}
	return false
}

// IsLogical reports bitwise, shift and boolean operations.
func (op Opcode) IsLogical() bool {
	switch op {
	case INT_NEGATE, INT_XOR, INT_AND, INT_OR, INT_LEFT, INT_RIGHT, INT_SRIGHT,
		BOOL_NEGATE, BOOL_XOR, BOOL_AND, BOOL_OR:
		return true
	}
	return false
}

// IsFloat reports floating-point operations.
func (op Opcode) IsFloat() bool {
	return op >= FLOAT_EQUAL && op <= FLOAT_ROUND
}

// IsCast reports extensions, truncations and conversions.
func (op Opcode) IsCast() bool {
	switch op {
	case INT_ZEXT, INT_SEXT, PIECE, SUBPIECE, CAST,
		FLOAT_INT2FLOAT, FLOAT_FLOAT2FLOAT, FLOAT_TRUNC:
		return true
	}
	return false
}
