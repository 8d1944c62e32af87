package correspond

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

func ram(off uint64) disasm.Address { return disasm.NewAddress("ram", off) }

func inst(addr disasm.Address, mnem string) disasm.Instruction {
	return disasm.Instruction{Addr: addr, Mnemonic: mnem}
}

func pc(addr disasm.Address, seq uint64, op disasm.Opcode) disasm.PcodeInstruction {
	return disasm.PcodeInstruction{Addr: addr, Seq: seq, Opcode: op}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		insts      disasm.Stream
		pcodes     disasm.PcodeStream
		want       [][]int
		unassigned []int
	}{
		{
			name:   "one group per instruction",
			insts:  disasm.Stream{inst(ram(0), "nop"), inst(ram(1), "xor")},
			pcodes: disasm.PcodeStream{pc(ram(0), 0, disasm.COPY), pc(ram(1), 0, disasm.LOAD), pc(ram(1), 1, disasm.INT_XOR)},
			want:   [][]int{{0}, {1, 2}},
		},
		{
			name:   "instruction without pcode",
			insts:  disasm.Stream{inst(ram(0), "a"), inst(ram(4), "b"), inst(ram(8), "c")},
			pcodes: disasm.PcodeStream{pc(ram(0), 0, disasm.BRANCH), pc(ram(8), 0, disasm.INT_OR)},
			want:   [][]int{{0}, nil, {1}},
		},
		{
			name:  "same offset in another space stays apart",
			insts: disasm.Stream{inst(ram(4), "a")},
			pcodes: disasm.PcodeStream{
				pc(disasm.NewAddress("const", 4), 0, disasm.COPY),
				pc(ram(4), 0, disasm.INT_ADD),
			},
			want:       [][]int{{1}},
			unassigned: []int{0},
		},
		{
			name:  "re-decoded address gets its own run",
			insts: disasm.Stream{inst(ram(0), "a"), inst(ram(4), "b"), inst(ram(0), "a")},
			pcodes: disasm.PcodeStream{
				pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.INT_ADD),
				pc(ram(4), 0, disasm.RETURN),
				pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.INT_ADD),
			},
			want: [][]int{{0, 1}, {2}, {3, 4}},
		},
		{
			name:  "instruction without pcode decoded again later",
			insts: disasm.Stream{inst(ram(0), "nop"), inst(ram(4), "x"), inst(ram(0), "add")},
			pcodes: disasm.PcodeStream{
				pc(ram(4), 0, disasm.COPY),
				pc(ram(0), 0, disasm.INT_ADD),
			},
			want: [][]int{nil, {0}, {1}},
		},
		{
			name:  "run before its owner is not taken by an earlier instruction",
			insts: disasm.Stream{inst(ram(0), "a"), inst(ram(4), "b"), inst(ram(0), "a")},
			pcodes: disasm.PcodeStream{
				pc(ram(4), 0, disasm.COPY),
				pc(ram(0), 0, disasm.COPY),
				pc(ram(0), 0, disasm.COPY),
			},
			want:       [][]int{nil, {0}, {1}},
			unassigned: []int{2},
		},
		{
			name:  "back to back re-decode split on sequence reset",
			insts: disasm.Stream{inst(ram(0), "a"), inst(ram(0), "a")},
			pcodes: disasm.PcodeStream{
				pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.INT_ADD),
				pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.INT_ADD),
			},
			want: [][]int{{0, 1}, {2, 3}},
		},
		{
			name:       "surplus runs are unassigned",
			insts:      disasm.Stream{inst(ram(0), "a")},
			pcodes:     disasm.PcodeStream{pc(ram(0), 0, disasm.COPY), pc(ram(0), 0, disasm.COPY), pc(ram(9), 0, disasm.COPY)},
			want:       [][]int{{0}},
			unassigned: []int{1, 2},
		},
		{
			name: "empty",
			want: [][]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Build(tt.insts, tt.pcodes)
			require.NoError(t, err)
			require.Equal(t, len(tt.insts), idx.Len())

			got := make([][]int, idx.Len())
			for i := range got {
				got[i], err = idx.PcodePositions(i)
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("positions mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.unassigned, idx.Unassigned())
		})
	}
}

func TestBuildGroupsShareAddressAndIncreaseSequence(t *testing.T) {
	insts := disasm.Stream{inst(ram(0), "a"), inst(ram(2), "b"), inst(ram(0), "a")}
	pcodes := disasm.PcodeStream{
		pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.COPY), pc(ram(0), 2, disasm.COPY),
		pc(disasm.NewAddress("register", 2), 0, disasm.COPY),
		pc(ram(2), 0, disasm.COPY), pc(ram(2), 3, disasm.COPY),
		pc(ram(0), 0, disasm.COPY),
	}
	idx, err := Build(insts, pcodes)
	require.NoError(t, err)

	for i, in := range insts {
		positions, err := idx.PcodePositions(i)
		require.NoError(t, err)
		for j, pos := range positions {
			assert.True(t, pcodes[pos].Addr.Equal(in.Addr))
			if j > 0 {
				assert.Greater(t, pcodes[pos].Seq, pcodes[positions[j-1]].Seq)
			}
		}
	}
}

func TestBuildIdempotent(t *testing.T) {
	insts := disasm.Stream{inst(ram(0), "a"), inst(ram(1), "b")}
	pcodes := disasm.PcodeStream{pc(ram(0), 0, disasm.COPY), pc(ram(1), 0, disasm.COPY), pc(ram(1), 1, disasm.COPY)}

	first, err := Build(insts, pcodes)
	require.NoError(t, err)
	second, err := Build(insts, pcodes)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildSequenceCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		pcodes disasm.PcodeStream
	}{
		{name: "duplicate", pcodes: disasm.PcodeStream{pc(ram(0), 0, disasm.COPY), pc(ram(0), 1, disasm.COPY), pc(ram(0), 1, disasm.COPY)}},
		{name: "decreasing", pcodes: disasm.PcodeStream{pc(ram(0), 0, disasm.COPY), pc(ram(0), 3, disasm.COPY), pc(ram(0), 2, disasm.COPY)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(disasm.Stream{inst(ram(0), "a")}, tt.pcodes)
			assert.ErrorIs(t, err, ErrSequenceCorrupt)
			assert.Contains(t, err.Error(), "ram(0)")
		})
	}
}

func TestPcodePositionsOutOfRange(t *testing.T) {
	idx, err := Build(disasm.Stream{inst(ram(0), "a")}, nil)
	require.NoError(t, err)

	positions, err := idx.PcodePositions(0)
	require.NoError(t, err)
	assert.Empty(t, positions)

	for _, i := range []int{-1, 1, 100} {
		_, err := idx.PcodePositions(i)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "position %d", i)
	}
}

func TestJoinString(t *testing.T) {
	out := disasm.Varnode{Space: "register", Offset: 8, Size: 4}
	pcodes := disasm.PcodeStream{
		{Addr: ram(0), Seq: 0, Opcode: disasm.COPY, Vars: []disasm.Varnode{{Space: "register", Offset: 0, Size: 4}}, Out: &out},
		{Addr: ram(0), Seq: 1, Opcode: disasm.BRANCH, Vars: []disasm.Varnode{{Space: "ram", Offset: 8, Size: 4}}},
	}
	l, err := Join(disasm.Stream{{Addr: ram(0), Mnemonic: "j", Body: "0x8"}}, pcodes)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())

	want := "Inst@ram(0) j 0x8 pcodes=[" +
		"Pcode@ram(0)(COPY, [,varnode@register(4):0], varnode@register(4):8), " +
		"Pcode@ram(0)(BRANCH, [,varnode@ram(4):8])]\n"
	assert.Equal(t, want, l.String())
	assert.Equal(t, pcodes, l.Pcodes())
	assert.Equal(t, "j", l.Instructions()[0].Mnemonic)
}

type scriptEngine struct {
	cfg  sleigh.EngineConfig
	fail uint64
}

func (e *scriptEngine) Bind(cfg sleigh.EngineConfig) error {
	e.cfg = cfg
	return nil
}

func (e *scriptEngine) DecodeAt(offset uint64) (int, error) {
	if offset == e.fail {
		return 0, errors.New("invalid instruction")
	}
	addr := ram(offset)
	e.cfg.AsmEmit.Dump(addr, "op", "")
	for i := uint64(0); i <= offset%3; i++ {
		e.cfg.PcodeEmit.Dump(addr, disasm.COPY, nil, nil)
	}
	return 1, nil
}

func TestRun(t *testing.T) {
	eng := &scriptEngine{fail: 3}
	s, err := sleigh.NewCollectingBuilder(eng).
		Buffer(make([]byte, 6), 0).
		Spec("test").
		AsmEmit(&sleigh.CollectingAssemblyEmit{}).
		PcodeEmit(&sleigh.CollectingPcodeEmit{}).
		Build()
	require.NoError(t, err)

	l, err := Run(s, 0)
	var decErr *sleigh.DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, uint64(3), decErr.Offset)

	require.NotNil(t, l)
	require.Equal(t, 3, l.Len())
	for i, e := range l.Entries {
		assert.Len(t, e.Pcodes, i%3+1)
	}
	assert.Empty(t, l.Unassigned)
	assert.Equal(t, 3, strings.Count(l.String(), "Inst@"))
}

type redecodeStep struct {
	addr disasm.Address
	ops  []disasm.Opcode
}

// redecodeEngine emits a scripted address per cursor offset, so one address
// can be decoded more than once.
type redecodeEngine struct {
	cfg   sleigh.EngineConfig
	steps []redecodeStep
}

func (e *redecodeEngine) Bind(cfg sleigh.EngineConfig) error {
	e.cfg = cfg
	return nil
}

func (e *redecodeEngine) DecodeAt(offset uint64) (int, error) {
	step := e.steps[offset]
	e.cfg.AsmEmit.Dump(step.addr, "op", "")
	for _, op := range step.ops {
		e.cfg.PcodeEmit.Dump(step.addr, op, nil, nil)
	}
	return 1, nil
}

func TestRunRedecodedAddresses(t *testing.T) {
	eng := &redecodeEngine{steps: []redecodeStep{
		{addr: ram(0)},
		{addr: ram(4), ops: []disasm.Opcode{disasm.COPY}},
		{addr: ram(0), ops: []disasm.Opcode{disasm.INT_ADD}},
		{addr: ram(8), ops: []disasm.Opcode{disasm.LOAD, disasm.INT_OR}},
		{addr: ram(8), ops: []disasm.Opcode{disasm.STORE, disasm.INT_XOR}},
	}}
	s, err := sleigh.NewCollectingBuilder(eng).
		Buffer(make([]byte, len(eng.steps)), 0).
		Spec("test").
		AsmEmit(&sleigh.CollectingAssemblyEmit{}).
		PcodeEmit(&sleigh.CollectingPcodeEmit{}).
		Build()
	require.NoError(t, err)

	l, err := Run(s, 0)
	require.NoError(t, err)
	require.Equal(t, len(eng.steps), l.Len())

	var got [][]disasm.Opcode
	for _, e := range l.Entries {
		var ops []disasm.Opcode
		for _, p := range e.Pcodes {
			ops = append(ops, p.Opcode)
		}
		got = append(got, ops)
	}
	want := [][]disasm.Opcode{nil}
	for _, step := range eng.steps[1:] {
		want = append(want, step.ops)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pcodes per instruction mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, l.Unassigned)
}
