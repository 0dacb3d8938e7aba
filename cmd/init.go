package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [config-file]",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with every default spelled out, ready to edit.
An existing file is left alone unless --force is given.`,
	Example: "  " + brand.BinaryName + " init ./pfw.hcl",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := brand.DefaultConfigPath()
		if len(args) > 0 {
			path = args[0]
		}
		return RunInit(path, initForce, cmd.OutOrStdout())
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}

// RunInit writes the default configuration to path.
func RunInit(path string, force bool, w io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveHCL(config.Default(), path); err != nil {
		return err
	}
	success(w, "%s\n", Printer.Sprintf("Wrote %s", path))
	Printer.Fprintf(w, "Check it with: %s check %s\n", brand.BinaryName, path)
	return nil
}
