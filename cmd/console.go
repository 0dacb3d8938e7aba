package cmd

import (
	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/console"
	"grimm.is/pfw/internal/logging"
	"grimm.is/pfw/internal/tui"
)

var consoleFlags struct {
	clientFlags
	debug   string
	noWatch bool
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive rule console",
	Long: `Open the full-screen rule console.

The console lists the rules on the server, lets you add, edit and delete
them, and refreshes itself when another client changes the list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := logging.Discard()
		if consoleFlags.debug != "" {
			l, closeLog, err := tui.OpenDebugLog(consoleFlags.debug)
			if err != nil {
				return err
			}
			defer closeLog()
			logger = l
			logger.Info("starting console", "server", cfg.Console.ServerURL)
		}

		c := consoleFlags.newClient(cfg)
		opts := tui.Options{
			State:     console.New(c, logger),
			ServerURL: c.BaseURL(),
			Timeout:   cfg.Console.ClientTimeout(),
			Logger:    logger,
		}
		if !consoleFlags.noWatch {
			opts.Watcher = c
		}
		return tui.Run(cmd.Context(), opts)
	},
}

func init() {
	consoleFlags.register(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleFlags.debug, "debug", "", "Write debug logs to this file")
	consoleCmd.Flags().BoolVar(&consoleFlags.noWatch, "no-watch", false, "Do not subscribe to live rule events")
}
