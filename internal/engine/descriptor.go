package engine

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is the header of a catalog specification.
type Descriptor struct {
	Version   int
	BigEndian bool
	Align     int
	Processor string
	Variant   string
	UniqBase  uint64

	DefaultSpace string
	Spaces       []Space
}

// Space is one address space declared by a descriptor.
type Space struct {
	Name      string
	Index     int
	Size      int
	Kind      string // "const", "unique" or "" for ordinary spaces
	BigEndian bool
}

type xmlSpace struct {
	Name      string `xml:"name,attr"`
	Index     int    `xml:"index,attr"`
	Size      int    `xml:"size,attr"`
	BigEndian bool   `xml:"bigendian,attr"`
}

type xmlSleigh struct {
	XMLName   xml.Name `xml:"sleigh"`
	Version   int      `xml:"version,attr"`
	BigEndian bool     `xml:"bigendian,attr"`
	Align     int      `xml:"align,attr"`
	Processor string   `xml:"processor,attr"`
	Variant   string   `xml:"variant,attr"`
	UniqBase  string   `xml:"uniqbase,attr"`
	Spaces    struct {
		Default string     `xml:"defaultspace,attr"`
		Const   []xmlSpace `xml:"space_const"`
		Unique  []xmlSpace `xml:"space_unique"`
		Plain   []xmlSpace `xml:"space"`
	} `xml:"spaces"`
}

// ParseDescriptor reads the header of spec.
func ParseDescriptor(spec string) (*Descriptor, error) {
	var raw xmlSleigh
	if err := xml.NewDecoder(strings.NewReader(spec)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse specification: %w", err)
	}
	if raw.Processor == "" {
		return nil, fmt.Errorf("parse specification: no processor attribute")
	}

	d := &Descriptor{
		Version:      raw.Version,
		BigEndian:    raw.BigEndian,
		Align:        raw.Align,
		Processor:    raw.Processor,
		Variant:      raw.Variant,
		DefaultSpace: raw.Spaces.Default,
	}
	if raw.UniqBase != "" {
		base, err := strconv.ParseUint(raw.UniqBase, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("parse specification: uniqbase %q: %w", raw.UniqBase, err)
		}
		d.UniqBase = base
	}
	for _, s := range raw.Spaces.Const {
		d.Spaces = append(d.Spaces, Space{Name: s.Name, Index: s.Index, Size: s.Size, Kind: "const"})
	}
	for _, s := range raw.Spaces.Unique {
		d.Spaces = append(d.Spaces, Space{Name: s.Name, Index: s.Index, Size: s.Size, Kind: "unique"})
	}
	for _, s := range raw.Spaces.Plain {
		d.Spaces = append(d.Spaces, Space{Name: s.Name, Index: s.Index, Size: s.Size, BigEndian: s.BigEndian})
	}

	if _, ok := d.Space(d.DefaultSpace); !ok {
		return nil, fmt.Errorf("parse specification: default space %q is not declared", d.DefaultSpace)
	}
	return d, nil
}

// Space looks up a declared space by name.
func (d *Descriptor) Space(name string) (Space, bool) {
	for _, s := range d.Spaces {
		if s.Name == name {
			return s, true
		}
	}
	return Space{}, false
}

func (d *Descriptor) spaceOfKind(kind, fallback string) string {
	for _, s := range d.Spaces {
		if s.Kind == kind {
			return s.Name
		}
	}
	return fallback
}
