// Package correspond joins the assembly and pcode streams of a decode run.
//
// Pcodes are grouped into runs: consecutive emissions at one address whose
// sequence starts at 0 and strictly increases. Both streams are in emission
// order, so runs are matched in lockstep: a run belongs to the first
// instruction at its address that comes after the owner of the previous
// matched run. An instruction that emitted nothing keeps no pcodes even when
// its address is decoded again later.
package correspond

import (
	"errors"
	"fmt"

	"lift/internal/disasm"
)

var (
	// ErrIndexOutOfRange is returned for instruction positions the index does not hold.
	ErrIndexOutOfRange = errors.New("instruction position out of range")
	// ErrSequenceCorrupt is returned when a run repeats or decreases a sequence number.
	ErrSequenceCorrupt = errors.New("pcode sequence corrupt")
)

// Index maps instruction positions to the ordered positions of their pcodes.
type Index struct {
	groups     [][]int
	unassigned []int
}

type run struct {
	addr      disasm.Address
	positions []int
}

// Build indexes pcodes against insts. Neither slice is modified.
func Build(insts disasm.Stream, pcodes disasm.PcodeStream) (*Index, error) {
	runs, err := splitRuns(pcodes)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[disasm.Address][]int)
	for i, inst := range insts {
		byAddr[inst.Addr] = append(byAddr[inst.Addr], i)
	}

	idx := &Index{groups: make([][]int, len(insts))}
	next := make(map[disasm.Address]int)
	cursor := 0
	for _, r := range runs {
		owners := byAddr[r.addr]
		k := next[r.addr]
		for k < len(owners) && owners[k] < cursor {
			k++
		}
		next[r.addr] = k
		if k == len(owners) {
			idx.unassigned = append(idx.unassigned, r.positions...)
			continue
		}
		owner := owners[k]
		idx.groups[owner] = r.positions
		next[r.addr] = k + 1
		cursor = owner + 1
	}
	return idx, nil
}

func splitRuns(pcodes disasm.PcodeStream) ([]run, error) {
	var runs []run
	for i, p := range pcodes {
		if len(runs) > 0 {
			cur := &runs[len(runs)-1]
			if p.Seq != 0 && cur.addr.Equal(p.Addr) {
				last := pcodes[cur.positions[len(cur.positions)-1]]
				if p.Seq <= last.Seq {
					return nil, fmt.Errorf("%w: seq %d follows %d at %s (position %d)",
						ErrSequenceCorrupt, p.Seq, last.Seq, p.Addr, i)
				}
				cur.positions = append(cur.positions, i)
				continue
			}
		}
		runs = append(runs, run{addr: p.Addr, positions: []int{i}})
	}
	return runs, nil
}

// Len is the number of instruction positions in the index.
func (x *Index) Len() int {
	return len(x.groups)
}

// PcodePositions returns the pcode positions of instruction i, ascending in
// sequence. The slice must not be modified.
func (x *Index) PcodePositions(i int) ([]int, error) {
	if i < 0 || i >= len(x.groups) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(x.groups))
	}
	return x.groups[i], nil
}

// Unassigned returns the positions of pcodes that belong to no instruction.
func (x *Index) Unassigned() []int {
	return x.unassigned
}
