package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newDisasmCmd(a *app) *cobra.Command {
	var (
		f     listingFlags
		file  string
		start uint64
	)

	c := &cobra.Command{
		Use:   "disasm [hex bytes...]",
		Short: "Decode a byte buffer into assembly and pcode",
		Long: `Decode bytes given as hex arguments, or read from a file with --file, as if
they were mapped at --start. Decoding covers the whole buffer unless --max caps it.`,
		Example: `
# 16-bit x86 (the default mode)
lift disasm 90 32 31

# Little-endian MIPS
lift disasm -a mips32le 02000000 20082200 64002134

# Save the listing
lift disasm --store ./tables --asm-table asm --pcode-table pcode 90 90
  `,
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf []byte
			var err error
			switch {
			case file != "" && len(args) > 0:
				return fmt.Errorf("pass hex bytes or --file, not both")
			case file != "":
				buf, err = readInput(cmd, file)
			case len(args) > 0:
				buf, err = parseHex(args)
			default:
				return fmt.Errorf("nothing to decode: pass hex bytes or --file")
			}
			if err != nil {
				return err
			}

			arch, mode, limit, err := f.resolve(cmd, a.cfg, "", modeUnset)
			if err != nil {
				return err
			}
			slog.Debug("Decoding buffer", "arch", arch, "mode", mode, "size", len(buf), "start", start)

			l, decErr := decode(decodeRequest{buf: buf, start: start, arch: arch, mode: mode, max: limit})
			if l == nil {
				return decErr
			}
			title := fmt.Sprintf("%s %s, %d bytes at 0x%x", arch, mode, len(buf), start)
			if err := f.output(cmd, a, l, arch, title, nil, nil); err != nil {
				return err
			}
			return decErr
		},
	}

	addListingFlags(c, &f)
	c.Flags().StringVarP(&file, "file", "f", "", "Read the buffer from a file (- for stdin)")
	c.Flags().Uint64VarP(&start, "start", "s", 0, "Address the buffer is mapped at")
	return c
}
