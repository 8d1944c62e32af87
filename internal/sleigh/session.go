package sleigh

import (
	"fmt"
	"log/slog"
)

// State is the lifecycle position of a session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats counts the work done by Decode.
type Stats struct {
	Instructions  int
	BytesConsumed int
}

// Session is a bound engine plus the sinks it emits into. It is owned by a
// single goroutine; concurrent decoding needs separate sessions with
// separate sinks and engines.
type Session[A AssemblyEmit, P PcodeEmit] struct {
	engine Engine
	loader LoadImage
	asm    A
	pcode  P
	mode   Mode
	step   *stepBuffer

	state State
	stats Stats
}

// AsmEmit returns the assembly sink the session was built with.
func (s *Session[A, P]) AsmEmit() A { return s.asm }

// PcodeEmit returns the pcode sink the session was built with.
func (s *Session[A, P]) PcodeEmit() P { return s.pcode }

func (s *Session[A, P]) Loader() LoadImage { return s.loader }
func (s *Session[A, P]) Mode() Mode        { return s.mode }
func (s *Session[A, P]) State() State      { return s.state }
func (s *Session[A, P]) Stats() Stats      { return s.stats }

type decodeOptions struct {
	maxInsts int
	limited  bool
}

// DecodeOption tunes a Decode call.
type DecodeOption func(*decodeOptions)

// WithMaxInstructions stops decoding after n instructions. Zero decodes nothing.
func WithMaxInstructions(n int) DecodeOption {
	return func(o *decodeOptions) {
		o.maxInsts = n
		o.limited = true
	}
}

// Decode steps the engine from start until the buffer is consumed, the
// instruction cap is reached, or the engine fails. Each step reaches the
// sinks only once it is accepted, so after a failure the sinks hold exactly
// the steps before the failing one. An instruction running past the end of
// the buffer fails with ErrNotEnoughBytes. The session is done afterwards.
func (s *Session[A, P]) Decode(start uint64, opts ...DecodeOption) error {
	if s.state == StateDone {
		return ErrSessionDone
	}
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.state = StateRunning
	defer func() { s.state = StateDone }()

	bufSize := s.loader.BufSize()
	cursor := start
	for s.stats.BytesConsumed < bufSize {
		if o.limited && s.stats.Instructions >= o.maxInsts {
			break
		}
		s.step.reset()
		length, err := s.engine.DecodeAt(cursor)
		if err != nil {
			s.step.reset()
			return &DecodeError{Offset: cursor, Err: err}
		}
		if length <= 0 {
			panic(fmt.Sprintf("sleigh: invariant violation: engine reported length %d at 0x%x", length, cursor))
		}
		if s.stats.BytesConsumed+length > bufSize {
			slog.Debug("Dropped overrunning instruction", "offset", cursor, "length", length,
				"remaining", bufSize-s.stats.BytesConsumed)
			s.step.reset()
			return &DecodeError{Offset: cursor, Err: ErrNotEnoughBytes}
		}
		s.step.flush(s.asm, s.pcode)
		slog.Debug("Decoded instruction", "offset", cursor, "length", length)

		cursor += uint64(length)
		s.stats.BytesConsumed += length
		s.stats.Instructions++
	}
	return nil
}
