package sleigh

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingArgument is matched by every MissingArgumentError.
	ErrMissingArgument = errors.New("missing argument")
	// ErrBuilderConsumed is returned by Build on a builder that already built a session.
	ErrBuilderConsumed = errors.New("builder already consumed")
	// ErrSessionDone is returned by Decode once the session has finished.
	ErrSessionDone = errors.New("session already done")
	// ErrNotEnoughBytes is wrapped by a DecodeError when an instruction runs past the buffer.
	ErrNotEnoughBytes = errors.New("bytes not enough when decoding")
)

// MissingArgumentError names the first required setting a builder lacks.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument: %s", e.Name)
}

func (e *MissingArgumentError) Is(target error) bool {
	return target == ErrMissingArgument
}

// DecodeError is an engine failure at a specific offset.
type DecodeError struct {
	Offset uint64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at 0x%x: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
