// Package cmd implements the pfw command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/config"
	"grimm.is/pfw/internal/i18n"
	"grimm.is/pfw/internal/logging"
)

// Printer is the global message printer for the CLI
var Printer = i18n.NewCLIPrinter()

// Initialize colored output
var (
	success  = color.New(color.FgGreen).FprintfFunc()
	warnf    = color.New(color.FgYellow).FprintfFunc()
	errPrint = color.New(color.FgRed).FprintfFunc()
)

var (
	configPath string
	logLevel   string
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   brand.BinaryName,
	Short: brand.Description,
	Long: `pfw keeps an ordered list of firewall rules behind a small HTTP API
and gives you a console and scriptable commands to manage it.

Start the store with "pfw serve", then open "pfw console" or use the
"pfw rules" subcommands against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       brand.Version,
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		errPrint(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (HCL or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(hashKeyCmd)
}

// loadConfig reads --config (or the default file when present) and the
// environment, then applies the global logging flags.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(brand.DefaultConfigPath()); err == nil {
			path = brand.DefaultConfigPath()
		}
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logJSON {
		cfg.Logging.JSON = true
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging block and makes it
// the package default.
func newLogger(cfg *config.Config, out io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: level, Output: out, JSON: cfg.Logging.JSON})
	logging.SetDefault(logger)
	return logger, nil
}

// clientFlags are shared by every command that talks to the service.
type clientFlags struct {
	server string
	apiKey string
}

// register adds the flags to cmd and its subcommands.
func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.server, "server", "s", "", "Rule store URL (default from config, "+brand.DefaultServerURL()+")")
	cmd.PersistentFlags().StringVarP(&f.apiKey, "api-key", "k", "", "API key for mutations")
}

// newClient builds an HTTP client from the console block, overridden by flags.
func (f *clientFlags) newClient(cfg *config.Config) *client.HTTPClient {
	server := cfg.Console.ServerURL
	if f.server != "" {
		server = f.server
	}
	key := cfg.Console.APIKey
	if f.apiKey != "" {
		key = f.apiKey
	}
	lang := cfg.Console.Language
	if lang == "" {
		lang = i18n.CLILanguage().String()
	}
	return client.NewHTTPClient(server,
		client.WithAPIKey(key),
		client.WithTimeout(cfg.Console.ClientTimeout()),
		client.WithLanguage(lang),
	)
}

// describe turns client errors into a line for the terminal.
func describe(c *client.HTTPClient, err error) error {
	switch {
	case client.IsNetwork(err):
		return fmt.Errorf("%s: %w", Printer.Sprintf(i18n.MsgServerUnreached, c.BaseURL()), err)
	case client.IsUnauthorized(err):
		return fmt.Errorf("%w; %s", err, Printer.Sprintf(i18n.MsgKeyRejected))
	case client.IsNotFound(err), client.IsConflict(err):
		return fmt.Errorf("%w; %s", err, Printer.Sprintf(i18n.MsgListChanged))
	}
	return err
}
