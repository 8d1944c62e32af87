package sleigh

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lift/internal/disasm"
	"lift/internal/preset"
)

type fakeStep struct {
	length int
	mnem   string
	ops    []disasm.Opcode
	err    error
}

// fakeEngine replays scripted steps keyed by offset.
type fakeEngine struct {
	steps    map[uint64]fakeStep
	bound    *EngineConfig
	bindErr  error
	decodes  []uint64
	fallback *fakeStep
}

func (f *fakeEngine) Bind(cfg EngineConfig) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound = &cfg
	return nil
}

func (f *fakeEngine) DecodeAt(offset uint64) (int, error) {
	f.decodes = append(f.decodes, offset)
	step, ok := f.steps[offset]
	if !ok {
		if f.fallback == nil {
			return 0, errors.New("unscripted offset")
		}
		step = *f.fallback
	}
	// A step with both a mnemonic and an error emits before failing.
	if step.mnem != "" {
		addr := disasm.NewAddress("ram", offset)
		f.bound.AsmEmit.Dump(addr, step.mnem, "")
		for _, op := range step.ops {
			f.bound.PcodeEmit.Dump(addr, op, nil, []disasm.Varnode{{Space: "const", Offset: offset, Size: 4}})
		}
	}
	if step.err != nil {
		return 0, step.err
	}
	return step.length, nil
}

// countingAsm is a custom assembly sink.
type countingAsm struct{ n int }

func (c *countingAsm) Dump(disasm.Address, string, string) { c.n++ }

func newFake() *fakeEngine {
	return &fakeEngine{steps: map[uint64]fakeStep{
		0: {length: 1, mnem: "NOP", ops: []disasm.Opcode{disasm.COPY}},
		1: {length: 2, mnem: "XOR", ops: []disasm.Opcode{disasm.LOAD, disasm.INT_XOR, disasm.COPY}},
		3: {length: 1, mnem: "RET", ops: []disasm.Opcode{disasm.RETURN}},
	}}
}

func collectingSession(t *testing.T, eng Engine, buf []byte) *Session[*CollectingAssemblyEmit, *CollectingPcodeEmit] {
	t.Helper()
	s, err := NewCollectingBuilder(eng).
		Buffer(buf, 0).
		Spec("<sleigh/>").
		AsmEmit(&CollectingAssemblyEmit{}).
		PcodeEmit(&CollectingPcodeEmit{}).
		Build()
	require.NoError(t, err)
	return s
}

func TestBuildMissingArguments(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit])
		want  string
	}{
		{
			name:  "nothing set",
			setup: func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit]) {},
			want:  "loader",
		},
		{
			name: "no spec",
			setup: func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit]) {
				b.Buffer([]byte{0x90}, 0).AsmEmit(&CollectingAssemblyEmit{}).PcodeEmit(&CollectingPcodeEmit{})
			},
			want: "spec",
		},
		{
			name: "no asm sink",
			setup: func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit]) {
				b.Buffer([]byte{0x90}, 0).Spec("x").PcodeEmit(&CollectingPcodeEmit{})
			},
			want: "asm_emit",
		},
		{
			name: "nil asm sink",
			setup: func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit]) {
				b.Buffer([]byte{0x90}, 0).Spec("x").AsmEmit(nil).PcodeEmit(&CollectingPcodeEmit{})
			},
			want: "asm_emit",
		},
		{
			name: "no pcode sink",
			setup: func(b *Builder[*CollectingAssemblyEmit, *CollectingPcodeEmit]) {
				b.Buffer([]byte{0x90}, 0).Spec("x").AsmEmit(&CollectingAssemblyEmit{})
			},
			want: "pcode_emit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFake()
			b := NewCollectingBuilder(eng)
			tt.setup(b)

			s, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errors.Is(err, ErrMissingArgument))

			var missing *MissingArgumentError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tt.want, missing.Name)
			assert.Nil(t, eng.bound, "engine must not be touched")
			assert.Empty(t, eng.decodes)
		})
	}
}

func TestBuildHandsOverSettings(t *testing.T) {
	eng := newFake()
	asm := &CollectingAssemblyEmit{}
	pcode := &CollectingPcodeEmit{}
	b := NewCollectingBuilder(eng).Buffer([]byte{1, 2, 3}, 0x400).Spec("spec-text").AsmEmit(asm).PcodeEmit(pcode).Mode(Mode32)

	s, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, eng.bound)
	assert.Equal(t, "spec-text", eng.bound.Spec)
	assert.Equal(t, Mode32, eng.bound.Mode)
	assert.Equal(t, 3, eng.bound.Loader.BufSize())
	assert.Same(t, asm, s.AsmEmit())
	assert.Same(t, pcode, s.PcodeEmit())
	assert.Equal(t, StateIdle, s.State())

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}

func TestBuildDefaultsToMode16(t *testing.T) {
	eng := newFake()
	collectingSession(t, eng, []byte{0})
	assert.Equal(t, Mode16, eng.bound.Mode)
}

func TestBuildBindFailureLeavesBuilderReusable(t *testing.T) {
	eng := newFake()
	eng.bindErr = errors.New("unsupported processor")
	b := NewCollectingBuilder(eng).Buffer([]byte{0}, 0).Spec("x").AsmEmit(&CollectingAssemblyEmit{}).PcodeEmit(&CollectingPcodeEmit{})

	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported processor")

	eng.bindErr = nil
	_, err = b.Build()
	assert.NoError(t, err)
}

func TestBuilderArch(t *testing.T) {
	reg := preset.NewRegistry(fstest.MapFS{"sla/toy.sla": {Data: []byte("toy spec")}}, "sla")
	eng := newFake()
	b := NewCollectingBuilder(eng).WithRegistry(reg)

	_, err := b.Arch("does-not-exist")
	require.ErrorIs(t, err, preset.ErrArchNotFound)
	assert.Contains(t, err.Error(), "does-not-exist")

	_, err = b.Arch("TOY")
	require.NoError(t, err)
	_, err = b.Buffer([]byte{0}, 0).AsmEmit(&CollectingAssemblyEmit{}).PcodeEmit(&CollectingPcodeEmit{}).Build()
	require.NoError(t, err)
	assert.Equal(t, "toy spec", eng.bound.Spec)
}

func TestDecodeWholeBuffer(t *testing.T) {
	eng := newFake()
	s := collectingSession(t, eng, []byte{0x90, 0x32, 0x31, 0xc3})

	require.NoError(t, s.Decode(0))
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, []uint64{0, 1, 3}, eng.decodes)
	assert.Equal(t, Stats{Instructions: 3, BytesConsumed: 4}, s.Stats())

	asms := s.AsmEmit().Asms
	require.Len(t, asms, 3)
	assert.Equal(t, "XOR", asms[1].Mnemonic)

	pcodes := s.PcodeEmit().Pcodes
	require.Len(t, pcodes, 5)
	var seqs []uint64
	for _, p := range pcodes {
		seqs = append(seqs, p.Seq)
	}
	assert.Equal(t, []uint64{0, 0, 1, 2, 0}, seqs)

	assert.ErrorIs(t, s.Decode(0), ErrSessionDone)
}

func TestDecodeBounds(t *testing.T) {
	tests := []struct {
		name      string
		buf       []byte
		opts      []DecodeOption
		wantInsts int
	}{
		{name: "empty buffer", buf: nil, wantInsts: 0},
		{name: "zero cap", buf: []byte{0x90, 0x32, 0x31}, opts: []DecodeOption{WithMaxInstructions(0)}, wantInsts: 0},
		{name: "cap of one", buf: []byte{0x90, 0x32, 0x31}, opts: []DecodeOption{WithMaxInstructions(1)}, wantInsts: 1},
		{name: "cap above count", buf: []byte{0x90, 0x32, 0x31}, opts: []DecodeOption{WithMaxInstructions(10)}, wantInsts: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := collectingSession(t, newFake(), tt.buf)
			require.NoError(t, s.Decode(0, tt.opts...))
			assert.Len(t, s.AsmEmit().Asms, tt.wantInsts)
			assert.Equal(t, tt.wantInsts, s.Stats().Instructions)
			assert.LessOrEqual(t, s.Stats().BytesConsumed, len(tt.buf))
			if tt.wantInsts == 0 {
				assert.Empty(t, s.PcodeEmit().Pcodes)
			}
		})
	}
}

func TestDecodeErrorKeepsPartialResults(t *testing.T) {
	eng := newFake()
	eng.steps[1] = fakeStep{err: errors.New("bad data")}
	s := collectingSession(t, eng, []byte{0x90, 0xff, 0xff})

	err := s.Decode(0)
	require.Error(t, err)
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, uint64(1), decErr.Offset)
	assert.Contains(t, err.Error(), "0x1")
	assert.Contains(t, err.Error(), "bad data")

	assert.Len(t, s.AsmEmit().Asms, 1)
	assert.Equal(t, []uint64{0, 1}, eng.decodes, "no retry or resync")
	assert.Equal(t, StateDone, s.State())
}

func TestDecodeOverrunningInstruction(t *testing.T) {
	eng := newFake()
	s := collectingSession(t, eng, []byte{0x90, 0x32})

	err := s.Decode(0)
	require.ErrorIs(t, err, ErrNotEnoughBytes)
	assert.Equal(t, Stats{Instructions: 1, BytesConsumed: 1}, s.Stats())

	asms := s.AsmEmit().Asms
	require.Len(t, asms, 1, "the overrunning instruction is dropped")
	assert.Equal(t, "NOP", asms[0].Mnemonic)
	assert.Len(t, s.PcodeEmit().Pcodes, 1)
	assert.Equal(t, s.Stats().Instructions, len(asms))
}

func TestDecodeErrorDropsFailingStepOutput(t *testing.T) {
	eng := newFake()
	eng.steps[1] = fakeStep{mnem: "HALF", ops: []disasm.Opcode{disasm.COPY, disasm.COPY}, err: errors.New("bad data")}
	s := collectingSession(t, eng, []byte{0x90, 0xff, 0xff})

	require.Error(t, s.Decode(0))
	asms := s.AsmEmit().Asms
	require.Len(t, asms, 1)
	assert.Equal(t, "NOP", asms[0].Mnemonic)
	require.Len(t, s.PcodeEmit().Pcodes, 1)
	assert.Equal(t, disasm.NewAddress("ram", 0), s.PcodeEmit().Pcodes[0].Addr)
}

func TestBuildRejectsTypedNilCustomSink(t *testing.T) {
	eng := newFake()
	var sink *countingAsm
	s, err := NewBuilder[*countingAsm, *CollectingPcodeEmit](eng).
		Buffer([]byte{0x90}, 0).
		Spec("x").
		AsmEmit(sink).
		PcodeEmit(&CollectingPcodeEmit{}).
		Build()
	require.Error(t, err)
	assert.Nil(t, s)
	var missing *MissingArgumentError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "asm_emit", missing.Name)
	assert.Nil(t, eng.bound)

	s, err = NewBuilder[*countingAsm, *CollectingPcodeEmit](newFake()).
		Buffer([]byte{0x90, 0x32, 0x31}, 0).
		Spec("x").
		AsmEmit(&countingAsm{}).
		PcodeEmit(&CollectingPcodeEmit{}).
		Build()
	require.NoError(t, err)
	require.NoError(t, s.Decode(0))
	assert.Equal(t, 2, s.AsmEmit().n)
}

func TestDecodeNonPositiveLengthPanics(t *testing.T) {
	eng := newFake()
	eng.steps[0] = fakeStep{length: -1, mnem: "BAD"}
	s := collectingSession(t, eng, []byte{0x90})
	assert.Panics(t, func() { _ = s.Decode(0) })
}

func TestPlainLoadImageZeroFill(t *testing.T) {
	tests := []struct {
		name string
		addr uint64
		size int
		want []byte
	}{
		{name: "inside", addr: 0x1000, size: 2, want: []byte{1, 2}},
		{name: "overlapping end", addr: 0x1002, size: 3, want: []byte{3, 0, 0}},
		{name: "before start", addr: 0x0ffe, size: 3, want: []byte{0, 0, 1}},
		{name: "far outside", addr: 0x9000, size: 2, want: []byte{0, 0}},
	}

	l := NewPlainLoadImage([]byte{1, 2, 3}, 0x1000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			for i := range buf {
				buf[i] = 0xaa
			}
			l.LoadFill(buf, disasm.NewAddress("ram", tt.addr))
			assert.Equal(t, tt.want, buf)
		})
	}
	assert.Equal(t, 3, l.BufSize())

	l.AdjustVMA(-0x1000)
	buf := make([]byte, 1)
	l.LoadFill(buf, disasm.NewAddress("ram", 0))
	assert.Equal(t, []byte{1}, buf)
	assert.Equal(t, uint64(0), l.Start())

	empty := NewPlainLoadImage(nil, 0)
	buf = []byte{9}
	empty.LoadFill(buf, disasm.NewAddress("ram", 0))
	assert.Equal(t, []byte{0}, buf)
}

func TestCollectingPcodeSequenceResets(t *testing.T) {
	c := &CollectingPcodeEmit{}
	a := disasm.NewAddress("ram", 4)
	b := disasm.NewAddress("ram", 8)
	other := disasm.NewAddress("const", 4)
	out := &disasm.Varnode{Space: "register", Offset: 0, Size: 4}

	c.Dump(a, disasm.COPY, out, nil)
	c.Dump(a, disasm.INT_ADD, nil, nil)
	c.Dump(b, disasm.COPY, nil, nil)
	c.Dump(other, disasm.COPY, nil, nil)
	c.Dump(a, disasm.COPY, nil, nil)

	var seqs []uint64
	for _, p := range c.Pcodes {
		seqs = append(seqs, p.Seq)
	}
	assert.Equal(t, []uint64{0, 1, 0, 0, 0}, seqs)

	out.Offset = 99
	assert.Equal(t, uint64(0), c.Pcodes[0].Out.Offset, "sink keeps its own copy")

	c.Dump(a, disasm.INT_ADD, nil, nil)
	c.EndStep()
	c.Dump(a, disasm.COPY, nil, nil)
	assert.Equal(t, uint64(1), c.Pcodes[5].Seq)
	assert.Equal(t, uint64(0), c.Pcodes[6].Seq, "a new step restarts the sequence")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Mode16, "16": Mode16, "32": Mode32, "64": Mode64} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("8")
	assert.Error(t, err)
	assert.Equal(t, "MODE64", Mode64.String())
	assert.Equal(t, 32, Mode32.Bits())
}
