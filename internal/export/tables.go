package export

import (
	"fmt"
	"math/rand/v2"

	"lift/internal/correspond"
	"lift/internal/elfx"
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LoadTableName returns a fresh name for a load table.
func LoadTableName() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = nameAlphabet[rand.IntN(len(nameAlphabet))]
	}
	return "load_res_" + string(b)
}

// SaveListing writes the asm and pcode tables of a decode run. Both names
// are checked before anything is written.
func SaveListing(s *Store, asmTable, pcodeTable string, l *correspond.Listing) error {
	for _, name := range []string{asmTable, pcodeTable} {
		if !ValidTableName(name) {
			return &InvalidTableNameError{Name: name}
		}
	}
	if asmTable == pcodeTable {
		return fmt.Errorf("%w: %s", ErrTableExists, asmTable)
	}

	asms, pcodes := ListingRows(l)
	if err := s.WriteAsm(asmTable, asms); err != nil {
		return err
	}
	if err := s.WritePcode(pcodeTable, pcodes); err != nil {
		_ = s.Drop(asmTable)
		return err
	}
	return nil
}

// SaveImage writes the PT_LOAD segments of im into a load table.
func SaveImage(s *Store, table string, im *elfx.Image) error {
	return s.WriteSegments(table, SegmentRows(im))
}
