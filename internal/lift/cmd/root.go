package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"lift/internal/config"
	"lift/internal/export"
	"lift/internal/lift/log"
	"lift/internal/ui/colorize"
)

// app carries the state shared by every command of one invocation.
type app struct {
	cfg config.Config
}

func (a *app) storePath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("store"); p != "" {
		return p
	}
	return a.cfg.Store
}

// openStore opens the table store named by --store or the config file.
func (a *app) openStore(cmd *cobra.Command) (*export.Store, error) {
	path := a.storePath(cmd)
	if path == "" {
		return nil, fmt.Errorf("no table store: pass --store or set store in %s", config.DefaultPath())
	}
	return export.Open(path)
}

// NewRootCmd builds the lift command tree.
func NewRootCmd() *cobra.Command {
	a := &app{cfg: config.Default()}

	rootCmd := &cobra.Command{
		Use:   "lift",
		Short: "Disassemble machine code into assembly and pcode",
		Long: `Lift decodes machine code for a catalog of processor presets and lifts every
instruction into pcode micro-operations. Listings can be printed, browsed in a
terminal viewer, or saved as asm and pcode tables.`,
		Example: `
# Decode three bytes of 16-bit x86
lift disasm 90 32 31

# Decode little-endian MIPS from a file, 10 instructions at most
lift disasm -a mips32le -f code.bin --max 10

# Save the executable segments of an ELF file as tables
lift elf --store ./tables --asm-table asm --pcode-table pcode ./a.out
  `,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			required := path != ""
			if !required {
				path = config.DefaultPath()
			}
			cfg, err := config.Load(path, required)
			if err != nil {
				return err
			}
			a.cfg = cfg

			debug, _ := cmd.Flags().GetBool("debug")
			log.Setup(cfg.LogDir, cfg.LogLevel, debug || cfg.Debug)

			if cfg.NoColor || !term.IsTerminal(os.Stdout.Fd()) {
				os.Setenv(colorize.EnvNoColor, "1")
			}
			slog.Debug("Config loaded", "path", path, "arch", cfg.Arch, "store", cfg.Store)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/lift/lift.json)")
	rootCmd.PersistentFlags().String("store", "", "Table store directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().BoolP("no-tui", "n", false, "Never start the viewer")

	rootCmd.AddCommand(
		newDisasmCmd(a),
		newElfCmd(a),
		newArchsCmd(),
		newTablesCmd(a),
		newSchemaCmd(),
	)
	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()

	// bypass fang's markdown rendering when output is piped or the viewer is off
	noTUI := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" {
			noTUI = true
			break
		}
	}

	if noTUI {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
