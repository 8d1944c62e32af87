package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"lift/internal/analysis"
	"lift/internal/correspond"
	"lift/internal/elfx"
	"lift/internal/export"
)

func newElfCmd(a *app) *cobra.Command {
	var (
		f            listingFlags
		segment      string
		saveSegments bool
		loadTable    string
	)

	c := &cobra.Command{
		Use:   "elf <file>",
		Short: "Disassemble the executable segments of an ELF file",
		Long: `Load the PT_LOAD segments of an ELF file and decode the executable ones with the
preset matching the file's machine. Function symbols label the listing.
With --save-segments every loaded segment is written to a load table that
"lift tables disasm" can decode later.`,
		Example: `
# Decode every executable segment
lift elf ./a.out

# Decode one segment with an explicit preset
lift elf -a mips32be --segment segment_0 ./firmware.elf

# Keep the segments for later
lift elf --store ./tables --save-segments --no-pcode ./a.out
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			im, err := elfx.Open(args[0])
			if err != nil {
				return err
			}
			defer im.Close()

			machineArch, archErr := im.Arch()
			if f.arch == "" && archErr != nil {
				return fmt.Errorf("%w (pass --arch)", archErr)
			}
			arch, mode, limit, err := f.resolve(cmd, a.cfg, machineArch, im.Mode())
			if err != nil {
				return err
			}

			if saveSegments || loadTable != "" {
				if err := saveImage(cmd, a, im, loadTable); err != nil {
					return err
				}
			}

			segs, err := pickSegments(im, segment)
			if err != nil {
				return err
			}

			merged := &correspond.Listing{}
			for _, seg := range segs {
				l, decErr := decode(decodeRequest{buf: seg.Data, start: seg.Vaddr, arch: arch, mode: mode, max: limit})
				if l == nil {
					return decErr
				}
				if decErr != nil {
					slog.Warn("Segment decoded partially", "segment", seg.Name, "instructions", l.Len(), "error", decErr)
				}
				merged.Entries = append(merged.Entries, l.Entries...)
				merged.Unassigned = append(merged.Unassigned, l.Unassigned...)
			}

			title := fmt.Sprintf("%s (%s %s, %d segments)", filepath.Base(args[0]), arch, mode, len(segs))
			comments := analysis.Comments(analysis.References(merged, im))
			return f.output(cmd, a, merged, arch, title, symbolLabels(im), comments)
		},
	}

	addListingFlags(c, &f)
	c.Flags().StringVar(&segment, "segment", "", "Decode only this segment (segment_N)")
	c.Flags().BoolVar(&saveSegments, "save-segments", false, "Write the loaded segments to a load table")
	c.Flags().StringVar(&loadTable, "load-table", "", "Load table name (default load_res_<random>)")
	return c
}

func pickSegments(im *elfx.Image, name string) ([]elfx.Segment, error) {
	if name != "" {
		seg, ok := im.Segment(name)
		if !ok {
			return nil, fmt.Errorf("no segment %s in %s", name, im.Path)
		}
		return []elfx.Segment{seg}, nil
	}
	segs := im.Executable()
	if len(segs) == 0 {
		return nil, errors.New("no executable segment to decode")
	}
	return segs, nil
}

func saveImage(cmd *cobra.Command, a *app, im *elfx.Image, table string) error {
	s, err := a.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if table == "" {
		table = export.LoadTableName()
	}
	if err := export.SaveImage(s, table, im); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "saved %d segments to %s\n", len(im.Segments), table)
	return nil
}

// symbolLabels names function entry points by their demangled symbol.
func symbolLabels(im *elfx.Image) map[uint64]string {
	labels := make(map[uint64]string)
	for _, s := range im.Syms {
		if !s.Func || s.Addr == 0 {
			continue
		}
		if _, ok := labels[s.Addr]; ok {
			continue
		}
		name := s.Demangled
		if name == "" {
			name = s.Name
		}
		labels[s.Addr] = name
	}
	return labels
}
