package engine

import (
	"errors"
	"fmt"

	"lift/internal/disasm"
)

// ErrNotBound is returned by DecodeAt before a successful Bind.
var ErrNotBound = errors.New("engine is not bound to a session")

// UnsupportedProcessorError is returned by Bind for catalog entries the
// engine has no decoder for.
type UnsupportedProcessorError struct {
	Processor string
	Variant   string
}

func (e *UnsupportedProcessorError) Error() string {
	return fmt.Sprintf("processor %s (%s) is not supported by the engine", e.Processor, e.Variant)
}

// InvalidInstructionError reports bytes that do not decode.
type InvalidInstructionError struct {
	Addr disasm.Address
	Err  error
}

func (e *InvalidInstructionError) Error() string {
	return fmt.Sprintf("invalid instruction at %s: %v", e.Addr, e.Err)
}

func (e *InvalidInstructionError) Unwrap() error {
	return e.Err
}
