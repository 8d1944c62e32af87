// Package export turns decode results into tabular rows and keeps named
// tables of rows in a LevelDB store.
package export

import (
	"strings"

	"lift/internal/correspond"
	"lift/internal/disasm"
	"lift/internal/elfx"
)

// AsmRow is one instruction of an asm table.
type AsmRow struct {
	Space    string `json:"space"`
	Offset   uint64 `json:"offset"`
	Mnemonic string `json:"mnemonic"`
	Body     string `json:"body"`
}

// Operand is an inline varnode column group.
type Operand struct {
	Space  string `json:"space"`
	Offset uint64 `json:"offset"`
	Size   uint32 `json:"size"`
}

// PcodeRow is one micro-operation of a pcode table. The first two inputs
// are inline; further inputs are kept in Comment.
type PcodeRow struct {
	Space   string   `json:"space"`
	Offset  uint64   `json:"offset"`
	Seq     uint64   `json:"seq"`
	Op      string   `json:"op"`
	Opr1    *Operand `json:"opr1,omitempty"`
	Opr2    *Operand `json:"opr2,omitempty"`
	Out     *Operand `json:"out,omitempty"`
	Comment string   `json:"comment,omitempty"`
}

// SegmentRow is one loaded segment of a load table.
type SegmentRow struct {
	Addr  uint64 `json:"addr"`
	Name  string `json:"name"`
	Bytes []byte `json:"bytes"`
}

func operand(v disasm.Varnode) *Operand {
	return &Operand{Space: v.Space, Offset: v.Offset, Size: v.Size}
}

func AsmRows(insts disasm.Stream) []AsmRow {
	rows := make([]AsmRow, len(insts))
	for i, in := range insts {
		rows[i] = AsmRow{
			Space:    in.Addr.Space,
			Offset:   in.Addr.Offset,
			Mnemonic: in.Mnemonic,
			Body:     in.Body,
		}
	}
	return rows
}

func PcodeRows(pcodes disasm.PcodeStream) []PcodeRow {
	rows := make([]PcodeRow, len(pcodes))
	for i, p := range pcodes {
		row := PcodeRow{
			Space:  p.Addr.Space,
			Offset: p.Addr.Offset,
			Seq:    p.Seq,
			Op:     p.Opcode.String(),
		}
		if len(p.Vars) >= 1 {
			row.Opr1 = operand(p.Vars[0])
		}
		if len(p.Vars) >= 2 {
			row.Opr2 = operand(p.Vars[1])
		}
		if len(p.Vars) >= 3 {
			rest := make([]string, 0, len(p.Vars)-2)
			for _, v := range p.Vars[2:] {
				rest = append(rest, v.String())
			}
			row.Comment = "rest_vars: [" + strings.Join(rest, ", ") + "]"
		}
		if p.Out != nil {
			row.Out = operand(*p.Out)
		}
		rows[i] = row
	}
	return rows
}

// ListingRows flattens a listing into its asm and pcode rows.
func ListingRows(l *correspond.Listing) ([]AsmRow, []PcodeRow) {
	return AsmRows(l.Instructions()), PcodeRows(l.Pcodes())
}

// SegmentRows lists every PT_LOAD segment of im.
func SegmentRows(im *elfx.Image) []SegmentRow {
	rows := make([]SegmentRow, len(im.Segments))
	for i, s := range im.Segments {
		rows[i] = SegmentRow{Addr: s.Vaddr, Name: s.Name, Bytes: append([]byte(nil), s.Data...)}
	}
	return rows
}
