package disasm

import (
	"errors"
	"fmt"
)

// ErrSpaceMismatch is returned when two locations in different address
// spaces are compared. Offsets from different spaces have no order.
var ErrSpaceMismatch = errors.New("addresses are not comparable across spaces")

// Address is an offset within a named address space.
type Address struct {
	Space  string
	Offset uint64
}

// NewAddress returns the address space(offset).
func NewAddress(space string, offset uint64) Address {
	return Address{Space: space, Offset: offset}
}

// Equal reports whether both space and offset match.
func (a Address) Equal(b Address) bool {
	return a.Space == b.Space && a.Offset == b.Offset
}

// Compare orders two addresses of the same space: -1, 0 or +1.
func (a Address) Compare(b Address) (int, error) {
	if a.Space != b.Space {
		return 0, fmt.Errorf("%w: %q vs %q", ErrSpaceMismatch, a.Space, b.Space)
	}
	switch {
	case a.Offset < b.Offset:
		return -1, nil
	case a.Offset > b.Offset:
		return 1, nil
	}
	return 0, nil
}

// Less is Compare for sort callbacks. It panics when the spaces differ.
func (a Address) Less(b Address) bool {
	c, err := a.Compare(b)
	if err != nil {
		panic(err)
	}
	return c < 0
}

// Add returns the address delta bytes further into the same space.
func (a Address) Add(delta uint64) Address {
	return Address{Space: a.Space, Offset: a.Offset + delta}
}

func (a Address) String() string {
	return fmt.Sprintf("%s(%d)", a.Space, a.Offset)
}

// Varnode is a storage location read or written by a micro-operation.
type Varnode struct {
	Space  string
	Offset uint64
	Size   uint32
}

// Address returns the location of the varnode without its size.
func (v Varnode) Address() Address {
	return Address{Space: v.Space, Offset: v.Offset}
}

func (v Varnode) String() string {
	return fmt.Sprintf("varnode@%s(%d):%d", v.Space, v.Size, v.Offset)
}

// SpaceKind classifies an address space the way the engine reports it.
type SpaceKind int

const (
	SpaceConstant SpaceKind = iota
	SpaceProcessor
	SpaceBase
	SpaceInternal
	SpaceFspec
	SpaceIop
	SpaceJoin
)

var spaceKindNames = [...]string{"constant", "processor", "spacebase", "internal", "fspec", "iop", "join"}

func (k SpaceKind) String() string {
	if k < 0 || int(k) >= len(spaceKindNames) {
		return fmt.Sprintf("SpaceKind(%d)", int(k))
	}
	return spaceKindNames[k]
}
