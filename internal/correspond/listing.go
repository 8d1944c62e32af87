package correspond

import (
	"strings"

	"lift/internal/disasm"
	"lift/internal/sleigh"
)

// Entry is one instruction with its pcodes attached.
type Entry struct {
	Inst   disasm.Instruction
	Pcodes []disasm.PcodeInstruction
}

func (e Entry) String() string {
	parts := make([]string, len(e.Pcodes))
	for i, p := range e.Pcodes {
		parts[i] = p.String()
	}
	return e.Inst.String() + " pcodes=[" + strings.Join(parts, ", ") + "]"
}

// Listing is the joined result of a decode run, in decode order.
type Listing struct {
	Entries    []Entry
	Unassigned []disasm.PcodeInstruction
}

// Join builds the index over insts and pcodes and materializes it.
func Join(insts disasm.Stream, pcodes disasm.PcodeStream) (*Listing, error) {
	idx, err := Build(insts, pcodes)
	if err != nil {
		return nil, err
	}

	l := &Listing{Entries: make([]Entry, len(insts))}
	for i, inst := range insts {
		positions, err := idx.PcodePositions(i)
		if err != nil {
			return nil, err
		}
		e := Entry{Inst: inst, Pcodes: make([]disasm.PcodeInstruction, len(positions))}
		for j, pos := range positions {
			e.Pcodes[j] = pcodes[pos]
		}
		l.Entries[i] = e
	}
	for _, pos := range idx.Unassigned() {
		l.Unassigned = append(l.Unassigned, pcodes[pos])
	}
	return l, nil
}

// Len is the number of instructions.
func (l *Listing) Len() int { return len(l.Entries) }

// Instructions returns the assembly stream the listing was built from.
func (l *Listing) Instructions() disasm.Stream {
	out := make(disasm.Stream, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.Inst
	}
	return out
}

// Pcodes returns every attached pcode in instruction order.
func (l *Listing) Pcodes() disasm.PcodeStream {
	var out disasm.PcodeStream
	for _, e := range l.Entries {
		out = append(out, e.Pcodes...)
	}
	return out
}

func (l *Listing) String() string {
	var sb strings.Builder
	for _, e := range l.Entries {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// CollectingSession is a session built with the collecting sinks.
type CollectingSession = sleigh.Session[*sleigh.CollectingAssemblyEmit, *sleigh.CollectingPcodeEmit]

// Run decodes s from start and joins what the sinks collected. When decoding
// fails the listing still holds the instructions emitted before the failure.
func Run(s *CollectingSession, start uint64, opts ...sleigh.DecodeOption) (*Listing, error) {
	decErr := s.Decode(start, opts...)
	l, err := Join(s.AsmEmit().Asms, s.PcodeEmit().Pcodes)
	if err != nil {
		return nil, err
	}
	return l, decErr
}
