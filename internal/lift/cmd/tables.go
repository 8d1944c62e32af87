package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lift/internal/correspond"
	"lift/internal/export"
)

func newTablesCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "tables",
		Short: "Inspect the table store",
		Long: `Work with the asm, pcode and load tables kept in the table store (--store or the
store entry of the config file).`,
	}
	c.AddCommand(
		newTablesListCmd(a),
		newTablesShowCmd(a),
		newTablesDropCmd(a),
		newTablesDisasmCmd(a),
	)
	return c
}

func newTablesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			tables, err := s.Tables()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tables {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Name, t.Kind, t.Rows)
			}
			return tw.Flush()
		},
	}
}

func newTablesShowCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "show <table>",
		Short: "Print the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			info, err := s.Info(args[0])
			if err != nil {
				return err
			}
			var rows any
			switch info.Kind {
			case export.KindAsm:
				rows, err = s.ReadAsm(info.Name)
			case export.KindPcode:
				rows, err = s.ReadPcode(info.Name)
			case export.KindSegments:
				rows, err = s.ReadSegments(info.Name)
			default:
				return fmt.Errorf("%w: %s has kind %q", export.ErrKindMismatch, info.Name, info.Kind)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return writeRows(cmd.OutOrStdout(), rows)
		},
	}
	c.Flags().BoolVarP(&asJSON, "json", "j", false, "Print rows as JSON")
	return c
}

func writeRows(w io.Writer, rows any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch rows := rows.(type) {
	case []export.AsmRow:
		fmt.Fprintln(tw, "space\toffset\tmnemonic\tbody")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t0x%x\t%s\t%s\n", r.Space, r.Offset, r.Mnemonic, r.Body)
		}
	case []export.PcodeRow:
		fmt.Fprintln(tw, "space\toffset\tseq\top\topr1\topr2\tout\tcomment")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t0x%x\t%d\t%s\t%s\t%s\t%s\t%s\n",
				r.Space, r.Offset, r.Seq, r.Op, operandText(r.Opr1), operandText(r.Opr2), operandText(r.Out), r.Comment)
		}
	case []export.SegmentRow:
		fmt.Fprintln(tw, "addr\tname\tsize")
		for _, r := range rows {
			fmt.Fprintf(tw, "0x%x\t%s\t%d\n", r.Addr, r.Name, len(r.Bytes))
		}
	}
	return tw.Flush()
}

func operandText(o *export.Operand) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%s[0x%x:%d]", o.Space, o.Offset, o.Size)
}

func newTablesDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <table>...",
		Short: "Delete tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			for _, name := range args {
				if err := s.Drop(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newTablesDisasmCmd(a *app) *cobra.Command {
	var (
		f       listingFlags
		segment string
	)
	c := &cobra.Command{
		Use:   "disasm <load-table>",
		Short: "Decode the segments of a load table",
		Long: `Decode the segments saved by "lift elf --save-segments". Every segment with
bytes is decoded at its address unless --segment picks one.`,
		Example: `
lift tables disasm --store ./tables -a mips32le --asm-table asm --pcode-table pcode load_res_x1Y2z3W4
  `,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, mode, limit, err := f.resolve(cmd, a.cfg, "", modeUnset)
			if err != nil {
				return err
			}

			s, err := a.openStore(cmd)
			if err != nil {
				return err
			}
			rows, err := s.ReadSegments(args[0])
			s.Close()
			if err != nil {
				return err
			}

			merged := &correspond.Listing{}
			decoded := 0
			for _, r := range rows {
				if (segment != "" && r.Name != segment) || len(r.Bytes) == 0 {
					continue
				}
				decoded++
				l, decErr := decode(decodeRequest{buf: r.Bytes, start: r.Addr, arch: arch, mode: mode, max: limit})
				if l == nil {
					return decErr
				}
				if decErr != nil {
					slog.Warn("Segment decoded partially", "segment", r.Name, "instructions", l.Len(), "error", decErr)
				}
				merged.Entries = append(merged.Entries, l.Entries...)
				merged.Unassigned = append(merged.Unassigned, l.Unassigned...)
			}
			if decoded == 0 {
				return fmt.Errorf("no segment with bytes to decode in %s", args[0])
			}

			title := fmt.Sprintf("%s (%s %s, %d segments)", args[0], arch, mode, decoded)
			return f.output(cmd, a, merged, arch, title, nil, nil)
		},
	}
	addListingFlags(c, &f)
	c.Flags().StringVar(&segment, "segment", "", "Decode only this segment (segment_N)")
	return c
}
