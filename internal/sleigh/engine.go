package sleigh

import (
	"fmt"
	"strconv"
)

// Mode selects the default address width the engine decodes with.
type Mode int

const (
	Mode16 Mode = iota // default
	Mode32
	Mode64
)

// Bits is the address width in bits.
func (m Mode) Bits() int {
	switch m {
	case Mode32:
		return 32
	case Mode64:
		return 64
	}
	return 16
}

func (m Mode) String() string {
	return "MODE" + strconv.Itoa(m.Bits())
}

// ParseMode accepts "16", "32" or "64".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "16":
		return Mode16, nil
	case "32":
		return Mode32, nil
	case "64":
		return Mode64, nil
	}
	return Mode16, fmt.Errorf("invalid mode %q: want 16, 32 or 64", s)
}

// EngineConfig is everything an engine receives before the first decode.
type EngineConfig struct {
	Spec      string
	Mode      Mode
	Loader    LoadImage
	AsmEmit   AssemblyEmit
	PcodeEmit PcodeEmit
}

// Engine decodes single instructions. DecodeAt emits exactly one
// instruction through the assembly sink and zero or more micro-operations
// through the pcode sink, all before it returns the instruction length.
type Engine interface {
	Bind(cfg EngineConfig) error
	DecodeAt(offset uint64) (int, error)
}
