package sleigh

import (
	"fmt"
	"log/slog"
	"reflect"

	"lift/internal/preset"
)

// Builder collects the settings of a decoding session. The loader, the
// specification and both emission sinks are required; Mode defaults to
// Mode16. A builder produces at most one session.
type Builder[A AssemblyEmit, P PcodeEmit] struct {
	engine   Engine
	registry *preset.Registry

	loader   LoadImage
	spec     string
	hasSpec  bool
	asm      A
	hasAsm   bool
	pcode    P
	hasPcode bool
	mode     Mode

	consumed bool
}

// NewBuilder returns a builder whose session will run on engine.
func NewBuilder[A AssemblyEmit, P PcodeEmit](engine Engine) *Builder[A, P] {
	return &Builder[A, P]{engine: engine, registry: preset.Default()}
}

// NewCollectingBuilder is NewBuilder for the collecting sinks.
func NewCollectingBuilder(engine Engine) *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit] {
	return NewBuilder[*CollectingAssemblyEmit, *CollectingPcodeEmit](engine)
}

// WithRegistry replaces the preset registry used by Arch.
func (b *Builder[A, P]) WithRegistry(r *preset.Registry) *Builder[A, P] {
	b.registry = r
	return b
}

func (b *Builder[A, P]) Loader(l LoadImage) *Builder[A, P] {
	b.loader = l
	return b
}

// Buffer sets a PlainLoadImage over buf mapped at start.
func (b *Builder[A, P]) Buffer(buf []byte, start uint64) *Builder[A, P] {
	return b.Loader(NewPlainLoadImage(buf, start))
}

func (b *Builder[A, P]) Spec(spec string) *Builder[A, P] {
	b.spec = spec
	b.hasSpec = true
	return b
}

// Arch sets the specification registered under name.
func (b *Builder[A, P]) Arch(name string) (*Builder[A, P], error) {
	spec, err := b.registry.Resolve(name)
	if err != nil {
		return b, err
	}
	return b.Spec(spec), nil
}

func (b *Builder[A, P]) AsmEmit(emit A) *Builder[A, P] {
	b.asm = emit
	b.hasAsm = !isNil(emit)
	return b
}

func (b *Builder[A, P]) PcodeEmit(emit P) *Builder[A, P] {
	b.pcode = emit
	b.hasPcode = !isNil(emit)
	return b
}

func (b *Builder[A, P]) Mode(m Mode) *Builder[A, P] {
	b.mode = m
	return b
}

// Build validates the settings, binds them to the engine and returns a
// session ready to decode. The first missing setting is reported in the
// order loader, spec, asm_emit, pcode_emit.
func (b *Builder[A, P]) Build() (*Session[A, P], error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	switch {
	case b.loader == nil:
		return nil, &MissingArgumentError{Name: "loader"}
	case !b.hasSpec:
		return nil, &MissingArgumentError{Name: "spec"}
	case !b.hasAsm:
		return nil, &MissingArgumentError{Name: "asm_emit"}
	case !b.hasPcode:
		return nil, &MissingArgumentError{Name: "pcode_emit"}
	case b.engine == nil:
		return nil, &MissingArgumentError{Name: "engine"}
	}

	step := &stepBuffer{}
	err := b.engine.Bind(EngineConfig{
		Spec:      b.spec,
		Mode:      b.mode,
		Loader:    b.loader,
		AsmEmit:   step.asmEmit(),
		PcodeEmit: step.pcodeEmit(),
	})
	if err != nil {
		return nil, fmt.Errorf("bind engine: %w", err)
	}
	b.consumed = true

	slog.Debug("Session built", "mode", b.mode, "buf_size", b.loader.BufSize())
	return &Session[A, P]{
		engine: b.engine,
		loader: b.loader,
		asm:    b.asm,
		pcode:  b.pcode,
		mode:   b.mode,
		step:   step,
	}, nil
}

// isNil reports a nil interface or a nil pointer, map, func, chan or slice
// behind one.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
