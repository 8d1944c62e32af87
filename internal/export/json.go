package export

import (
	"encoding/json"
	"io"

	"lift/internal/correspond"
	"lift/internal/disasm"
)

// EntryJSON is one instruction with its pcode rows attached.
type EntryJSON struct {
	AsmRow
	Pcodes []PcodeRow `json:"pcodes"`
}

// EncodeListing writes l as an indented JSON array.
func EncodeListing(w io.Writer, l *correspond.Listing) error {
	out := make([]EntryJSON, len(l.Entries))
	for i, e := range l.Entries {
		asm := AsmRows(disasm.Stream{e.Inst})
		out[i] = EntryJSON{AsmRow: asm[0], Pcodes: PcodeRows(e.Pcodes)}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
