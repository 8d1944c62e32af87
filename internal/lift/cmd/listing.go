package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lift/internal/config"
	"lift/internal/correspond"
	"lift/internal/engine"
	"lift/internal/export"
	"lift/internal/lift/styles"
	"lift/internal/lift/tui"
	"lift/internal/sleigh"
	"lift/internal/ui/colorize"
)

// decodeRequest is one decode of a byte buffer.
type decodeRequest struct {
	buf   []byte
	start uint64
	arch  string
	mode  sleigh.Mode
	max   int
}

// decode runs a collecting session over the request. A failed decode still
// returns the instructions emitted before the failure.
func decode(req decodeRequest) (*correspond.Listing, error) {
	b, err := sleigh.NewCollectingBuilder(engine.New()).
		Buffer(req.buf, req.start).
		Mode(req.mode).
		Arch(req.arch)
	if err != nil {
		return nil, err
	}
	s, err := b.AsmEmit(&sleigh.CollectingAssemblyEmit{}).
		PcodeEmit(&sleigh.CollectingPcodeEmit{}).
		Build()
	if err != nil {
		return nil, err
	}

	var opts []sleigh.DecodeOption
	if req.max > 0 {
		opts = append(opts, sleigh.WithMaxInstructions(req.max))
	}
	return correspond.Run(s, req.start, opts...)
}

// listingFlags are the output flags shared by the decoding commands.
type listingFlags struct {
	arch       string
	mode       string
	max        int
	json       bool
	noPcode    bool
	asmTable   string
	pcodeTable string
	tui        bool
}

func addListingFlags(c *cobra.Command, f *listingFlags) {
	c.Flags().StringVarP(&f.arch, "arch", "a", "", "Preset name (see lift archs)")
	c.Flags().StringVarP(&f.mode, "mode", "m", "", "Decode width: 16, 32 or 64")
	c.Flags().IntVar(&f.max, "max", 0, "Maximum instructions to decode (0 decodes everything)")
	c.Flags().BoolVarP(&f.json, "json", "j", false, "Print the listing as JSON")
	c.Flags().BoolVar(&f.noPcode, "no-pcode", false, "Print assembly only")
	c.Flags().StringVar(&f.asmTable, "asm-table", "", "Save instructions to this table")
	c.Flags().StringVar(&f.pcodeTable, "pcode-table", "", "Save pcode to this table")
	c.Flags().BoolVarP(&f.tui, "tui", "t", false, "Browse the listing in the viewer")
}

// modeUnset asks resolve to take the mode from the config.
const modeUnset sleigh.Mode = -1

// resolve fills unset flags from cfg, then from arch and mode. Values given
// on the command line win.
func (f *listingFlags) resolve(cmd *cobra.Command, cfg config.Config, arch string, mode sleigh.Mode) (string, sleigh.Mode, int, error) {
	if f.arch != "" {
		arch = f.arch
	}
	if arch == "" {
		arch = cfg.Arch
	}

	switch {
	case f.mode != "":
		m, err := sleigh.ParseMode(f.mode)
		if err != nil {
			return "", 0, 0, err
		}
		mode = m
	case mode == modeUnset:
		m, err := cfg.DecodeMode()
		if err != nil {
			return "", 0, 0, err
		}
		mode = m
	}

	limit := f.max
	if !cmd.Flags().Changed("max") {
		limit = cfg.MaxInstructions
	}
	if limit < 0 {
		return "", 0, 0, fmt.Errorf("--max must not be negative")
	}
	return arch, mode, limit, nil
}

func (f *listingFlags) saving() bool {
	return f.asmTable != "" || f.pcodeTable != ""
}

// save writes l to the asm and pcode tables named by the flags.
func (f *listingFlags) save(cmd *cobra.Command, a *app, l *correspond.Listing) error {
	if f.asmTable == "" || f.pcodeTable == "" {
		return fmt.Errorf("--asm-table and --pcode-table must be given together")
	}
	s, err := a.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := export.SaveListing(s, f.asmTable, f.pcodeTable, l); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "saved %d instructions to %s and %d pcodes to %s\n",
		l.Len(), f.asmTable, len(l.Pcodes()), f.pcodeTable)
	return nil
}

// output prints, shows or saves l as the flags ask.
func (f *listingFlags) output(cmd *cobra.Command, a *app, l *correspond.Listing, arch, title string, labels, comments map[uint64]string) error {
	if f.saving() {
		if err := f.save(cmd, a, l); err != nil {
			return err
		}
	}

	noTUI, _ := cmd.Flags().GetBool("no-tui")
	switch {
	case f.json:
		return export.EncodeListing(cmd.OutOrStdout(), l)
	case f.tui && !noTUI:
		return tui.Run(cmd.Context(), l, tui.Options{Title: title, Arch: arch, Labels: labels, Comments: comments})
	}

	if colorize.Enabled() {
		fmt.Fprintln(cmd.OutOrStdout(), styles.RenderMarkdown("# "+title, 80))
	}
	writeListing(cmd.OutOrStdout(), l, arch, labels, comments, !f.noPcode)
	return nil
}

// writeListing prints one line per instruction, its pcode indented below.
func writeListing(w io.Writer, l *correspond.Listing, arch string, labels, comments map[uint64]string, pcode bool) {
	for _, e := range l.Entries {
		if label, ok := labels[e.Inst.Addr.Offset]; ok {
			fmt.Fprintln(w, colorize.Label(label))
		}
		line := colorize.InstructionLine(fmt.Sprintf("%08x", e.Inst.Addr.Offset), e.Inst.Text(), arch)
		if c, ok := comments[e.Inst.Addr.Offset]; ok {
			line += "  " + colorize.Comment("; "+c)
		}
		fmt.Fprintln(w, line)
		if !pcode {
			continue
		}
		for _, p := range e.Pcodes {
			fmt.Fprintf(w, "          %s\n", colorize.PcodeLine(p))
		}
	}
	if n := len(l.Unassigned); n > 0 {
		fmt.Fprintf(w, "; %d pcode operations matched no instruction\n", n)
	}
}

// parseHex reads bytes written as hex, optionally split by spaces or commas
// and prefixed with 0x.
func parseHex(parts []string) ([]byte, error) {
	var sb strings.Builder
	for _, p := range parts {
		for _, field := range strings.FieldsFunc(p, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' || r == '\t' }) {
			field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
			if len(field)%2 == 1 {
				field = "0" + field
			}
			sb.WriteString(field)
		}
	}
	buf, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes: %w", err)
	}
	return buf, nil
}

// readInput returns the bytes of path, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
