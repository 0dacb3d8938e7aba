package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/config"
)

var checkPrint bool

var checkCmd = &cobra.Command{
	Use:   "check [config-file]",
	Short: "Validate a configuration file",
	Long: `Parse and validate a configuration file without starting anything.

With --print the file is written back as HCL with every default filled in.`,
	Example: "  " + brand.BinaryName + " check --print /etc/pfw/pfw.hcl",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := brand.DefaultConfigPath()
		if len(args) > 0 {
			path = args[0]
		}
		return RunCheck(path, checkPrint, cmd.OutOrStdout())
	},
}

func init() {
	checkCmd.Flags().BoolVarP(&checkPrint, "print", "p", false, "Print the effective configuration as HCL")
}

// errInvalidConfig is returned once the problems have been printed.
var errInvalidConfig = errors.New("configuration invalid")

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, printHCL bool, w io.Writer) error {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	cfg.ApplyDefaults()

	all := cfg.Validate()
	for _, e := range all.Errors() {
		errPrint(w, "error: %s: %s\n", e.Field, e.Message)
	}
	for _, e := range all.Warnings() {
		warnf(w, "warning: %s: %s\n", e.Field, e.Message)
	}
	if all.HasErrors() {
		return errInvalidConfig
	}

	success(w, "%s\n", Printer.Sprintf("Configuration valid!"))
	printSummary(w, cfg)

	if printHCL {
		fmt.Fprintln(w)
		w.Write(config.GenerateHCL(cfg))
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	Printer.Fprintf(w, "Schema Version:\t%s\n", cfg.SchemaVersion)
	Printer.Fprintf(w, "Listen:\t%s\n", cfg.Server.Listen)
	Printer.Fprintf(w, "Store:\t%s %s\n", cfg.Store.Kind, cfg.Store.Path)
	Printer.Fprintf(w, "Strict:\t%t\n", cfg.Store.Strict)
	Printer.Fprintf(w, "API keys:\t%d\n", len(cfg.Server.APIKeys))
	if n, every := cfg.Server.RateLimit.Limit(); n > 0 {
		Printer.Fprintf(w, "Rate limit:\t%d per %s\n", n, every)
	}
	Printer.Fprintf(w, "Console server:\t%s\n", cfg.Console.ServerURL)
	w.Flush()
}
