package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/rules"
)

var diffFlags struct {
	clientFlags
}

var diffCmd = &cobra.Command{
	Use:   "diff <rules-file>",
	Short: "Compare a rules file against the server",
	Long: `Print a unified diff between the rules in a JSON or YAML file and the
rules currently on the server. Exits non-zero when they differ.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c := diffFlags.newClient(cfg)
		return describe(c, RunDiff(cmd.Context(), c, args[0], cmd.OutOrStdout()))
	},
}

func init() {
	diffFlags.register(diffCmd)
}

// ErrRulesDiffer is returned by RunDiff when the file and the server disagree.
var ErrRulesDiffer = errors.New("rules differ")

// RunDiff compares the rules in file against the running list.
func RunDiff(ctx context.Context, api client.RulesAPI, file string, w io.Writer) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	want, err := rules.Decode(data, rules.FormatFromPath(file))
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	running, err := api.ListRules(ctx)
	if err != nil {
		return err
	}

	if sameRules(want, running) {
		Printer.Fprintf(w, "No changes detected.\n")
		return nil
	}

	// IDs are assigned by the server, so compare contents only.
	a, b := renderContent(want), renderContent(running)
	Printer.Fprintf(w, "Rules differ from running state:\n")
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: file,
		ToFile:   "Running",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return err
	}
	fmt.Fprint(w, text)
	return ErrRulesDiffer
}

func sameRules(a, b []rules.Rule) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !rules.SameContent(a[i], b[i]) {
			return false
		}
	}
	return true
}

func renderContent(rs []rules.Rule) string {
	stripped := make([]rules.Rule, len(rs))
	for i, r := range rs {
		stripped[i] = r.Content()
	}
	return strings.Join(rules.Render(stripped), "")
}
