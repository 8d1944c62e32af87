package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lift/internal/engine"
	"lift/internal/preset"
)

func newArchsCmd() *cobra.Command {
	var supportedOnly bool

	c := &cobra.Command{
		Use:   "archs",
		Short: "List the preset catalog",
		Long: `List every preset name with its processor. Presets marked with * can be decoded
by the built-in engine; the others are catalog entries only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := preset.Default()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range reg.Names() {
				spec, err := reg.Resolve(name)
				if err != nil {
					return err
				}
				processor := "?"
				if d, err := engine.ParseDescriptor(spec); err == nil {
					processor = d.Processor
				}
				mark := " "
				if engine.Supports(spec) {
					mark = "*"
				} else if supportedOnly {
					continue
				}
				fmt.Fprintf(tw, "%s %s\t%s\n", mark, name, processor)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d presets\n", reg.Len())
			return nil
		},
	}
	c.Flags().BoolVar(&supportedOnly, "supported", false, "Only list presets the engine decodes")
	return c
}
