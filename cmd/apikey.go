package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/api"
	"grimm.is/pfw/internal/brand"
	"grimm.is/pfw/internal/validation"
)

var hashKeyFlags struct {
	name       string
	jsonOutput bool
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Generate or hash an API key for the server config",
	Long: `Print the bcrypt hash of an API key together with an api_key block to
paste into the server section of the config file.

Without an argument a new random key is generated. The key itself is
printed once; only the hash belongs in the config.`,
	Example: `  ` + brand.BinaryName + ` hash-key --name ci
  ` + brand.BinaryName + ` hash-key --json my-existing-key`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := ""
		if len(args) > 0 {
			key = args[0]
		}
		return RunHashKey(key, hashKeyFlags.name, hashKeyFlags.jsonOutput, cmd.OutOrStdout())
	},
}

func init() {
	hashKeyCmd.Flags().StringVarP(&hashKeyFlags.name, "name", "n", "default", "Name for the api_key block")
	hashKeyCmd.Flags().BoolVarP(&hashKeyFlags.jsonOutput, "json", "j", false, "Output in JSON format (for scripting)")
}

type hashKeyResult struct {
	Name string `json:"name"`
	Key  string `json:"key,omitempty"`
	Hash string `json:"hash"`
}

// RunHashKey hashes key, generating one first when key is empty.
func RunHashKey(key, name string, jsonOutput bool, w io.Writer) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	generated := key == ""
	if generated {
		var err error
		if key, err = api.GenerateKey(); err != nil {
			return err
		}
	}
	hash, err := api.HashKey(key)
	if err != nil {
		return err
	}

	res := hashKeyResult{Name: name, Hash: hash}
	if generated {
		res.Key = key
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if generated {
		success(w, "API Key: %s\n", key)
		warnf(w, "Save this key now. It cannot be recovered from the hash.\n\n")
	}
	Printer.Fprintf(w, "Add to the server block of %s:\n\n", brand.DefaultConfigPath())
	fmt.Fprintf(w, "server {\n  api_key %q {\n    hash = %q\n  }\n}\n", name, hash)
	return nil
}
