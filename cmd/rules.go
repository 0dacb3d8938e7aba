package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/clock"
	"grimm.is/pfw/internal/console"
	"grimm.is/pfw/internal/i18n"
	"grimm.is/pfw/internal/rules"
	"grimm.is/pfw/internal/tui"
)

var rulesFlags struct {
	clientFlags
	listFormat  string
	format      string
	output      string
	replace     bool
	interactive bool
	fields      map[rules.Field]*string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List and change rules on the server",
	Long: `Scriptable versions of the console operations.

A <ref> is either a position in the list ("0", "3") or a rule id.`,
}

var rulesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print the rules in server order",
	Args:    cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		return RunList(ctx, c, cmd.OutOrStdout(), rulesFlags.listFormat)
	}),
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Print one rule as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		r, err := c.GetRule(ctx, parseRef(args[0]))
		if err != nil {
			return err
		}
		return rules.Encode(cmd.OutOrStdout(), []rules.Rule{r}, rules.FormatJSON)
	}),
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a rule",
	Example: `  pfw rules add --action deny --src-ip 10.0.0.1 --protocol tcp --size-max 1500
  pfw rules add -i`,
	Args: cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		s := console.New(c, nil)
		if err := fillDraft(cmd, s); err != nil {
			return err
		}
		return RunSubmit(ctx, s, cmd.OutOrStdout())
	}),
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <ref>",
	Short: "Change fields of an existing rule",
	Long: `Change fields of an existing rule. Only the flags you pass are changed;
the other fields keep their current values.`,
	Args: cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		s := console.New(c, nil)
		if err := StartEdit(ctx, s, args[0]); err != nil {
			return err
		}
		if err := fillDraft(cmd, s); err != nil {
			return err
		}
		return RunSubmit(ctx, s, cmd.OutOrStdout())
	}),
}

var rulesDeleteCmd = &cobra.Command{
	Use:     "delete <ref>",
	Aliases: []string{"rm"},
	Short:   "Remove a rule",
	Args:    cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		return RunDelete(ctx, console.New(c, nil), args[0], cmd.OutOrStdout())
	}),
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all rules as JSON or YAML",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		format := rules.FormatFromPath(rulesFlags.output)
		if cmd.Flags().Changed("format") {
			var err error
			if format, err = rules.ParseFormat(rulesFlags.format); err != nil {
				return err
			}
		}
		w := cmd.OutOrStdout()
		if rulesFlags.output != "" && rulesFlags.output != "-" {
			f, err := os.Create(rulesFlags.output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		return RunExport(ctx, c, w, format)
	}),
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append the rules from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		rs, err := rules.Decode(data, rules.FormatFromPath(args[0]))
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return RunImport(ctx, c, rs, rulesFlags.replace, cmd.OutOrStdout())
	}),
}

var rulesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print rule changes as they happen",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		w := cmd.OutOrStdout()
		return c.Watch(ctx, func(e client.RuleEvent) {
			fmt.Fprintln(w, formatEvent(e))
		})
	}),
}

func init() {
	rulesFlags.clientFlags.register(rulesCmd)

	rulesListCmd.Flags().StringVarP(&rulesFlags.listFormat, "format", "f", "table", "Output format: table, json or yaml")
	rulesExportCmd.Flags().StringVarP(&rulesFlags.format, "format", "f", "json", "Output format: json or yaml")
	rulesExportCmd.Flags().StringVarP(&rulesFlags.output, "output", "o", "", "Write to file instead of stdout (format from extension)")
	rulesImportCmd.Flags().BoolVar(&rulesFlags.replace, "replace", false, "Delete existing rules first")

	rulesFlags.fields = make(map[rules.Field]*string)
	for _, c := range []*cobra.Command{rulesAddCmd, rulesUpdateCmd} {
		c.Flags().BoolVarP(&rulesFlags.interactive, "interactive", "i", false, "Fill in the rule with a form")
		for _, f := range rules.DraftFields {
			p, ok := rulesFlags.fields[f]
			if !ok {
				p = new(string)
				rulesFlags.fields[f] = p
			}
			c.Flags().StringVar(p, flagName(f), "", "Rule "+string(f))
		}
	}

	rulesCmd.AddCommand(rulesListCmd, rulesGetCmd, rulesAddCmd, rulesUpdateCmd,
		rulesDeleteCmd, rulesExportCmd, rulesImportCmd, rulesWatchCmd)
}

func flagName(f rules.Field) string {
	return strings.ReplaceAll(string(f), "_", "-")
}

type clientRunE func(ctx context.Context, c *client.HTTPClient, cmd *cobra.Command, args []string) error

// withClient loads the config, builds the client and maps network errors
// to a readable message.
func withClient(fn clientRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := newLogger(cfg, cmd.ErrOrStderr()); err != nil {
			return err
		}
		c := rulesFlags.newClient(cfg)
		return describe(c, fn(cmd.Context(), c, cmd, args))
	}
}

// fillDraft applies the field flags that were given, then the form when
// --interactive is set.
func fillDraft(cmd *cobra.Command, s *console.State) error {
	for _, f := range rules.DraftFields {
		if cmd.Flags().Changed(flagName(f)) {
			if err := s.SetField(f, *rulesFlags.fields[f]); err != nil {
				return err
			}
		}
	}
	if rulesFlags.interactive {
		d, err := tui.EditDraft(s.Draft())
		if err != nil {
			return err
		}
		s.SetDraft(d)
	}
	return nil
}

func parseRef(s string) client.Ref {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return client.At(n, "")
	}
	return client.ByID(s)
}

// indexOf resolves ref against the fetched list.
func indexOf(s *console.State, ref string) (int, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		return n, nil
	}
	for i, r := range s.Rules() {
		if r.ID == ref {
			return i, nil
		}
	}
	return 0, &rules.ValidationError{Field: "ref", Value: ref, Reason: "no rule with this id"}
}

// StartEdit fetches the rules and puts the one named by ref into the draft.
func StartEdit(ctx context.Context, s *console.State, ref string) error {
	if err := s.FetchRules(ctx); err != nil {
		return err
	}
	idx, err := indexOf(s, ref)
	if err != nil {
		return err
	}
	return s.EditRule(idx)
}

// RunSubmit sends the draft and reports the result.
func RunSubmit(ctx context.Context, s *console.State, w io.Writer) error {
	m, err := s.SubmitDraft(ctx)
	if err != nil && m.Message == "" {
		return err
	}
	printMutation(w, m)
	return err
}

// RunDelete removes the rule named by ref.
func RunDelete(ctx context.Context, s *console.State, ref string, w io.Writer) error {
	if err := s.FetchRules(ctx); err != nil {
		return err
	}
	idx, err := indexOf(s, ref)
	if err != nil {
		return err
	}
	m, err := s.DeleteRule(ctx, idx)
	if err != nil && m.Message == "" {
		return err
	}
	printMutation(w, m)
	return err
}

// printMutation reports a successful change. Index is negative when the
// server did not say where the rule is.
func printMutation(w io.Writer, m client.Mutation) {
	if m.Index < 0 {
		success(w, "%s: %s\n", m.Message, m.Rule)
		return
	}
	success(w, "%s: #%d %s\n", m.Message, m.Index, m.Rule)
}

// listClock decides the ACTIVE column of the rule table.
var listClock clock.Clock = clock.RealClock{}

// RunList prints the rules as a table, JSON or YAML.

func RunList(ctx context.Context, api client.RulesAPI, w io.Writer, format string) error {
	list, err := api.ListRules(ctx)
	if err != nil {
		return err
	}
	if format != "" && format != "table" {
		f, err := rules.ParseFormat(format)
		if err != nil {
			return err
		}
		return rules.Encode(w, list, f)
	}

	if len(list) == 0 {
		fmt.Fprintln(w, Printer.Sprintf(i18n.MsgNoRules))
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	now := listClock.Now()
	fmt.Fprintln(tw, "#\tACTION\tSOURCE\tPORT\tPROTO\tSIZE\tWINDOW\tACTIVE\tID")
	for i, r := range list {
		window := "-"
		if r.StartTime != "" || r.EndTime != "" {
			window = dash(r.StartTime) + "-" + dash(r.EndTime)
		}
		active := "yes"
		if !r.ActiveAt(now) {
			active = "no"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d-%d\t%s\t%s\t%s\n",
			i, dash(r.Action), dash(r.SrcIP), dash(r.Port), dash(r.Protocol),
			r.SizeMin, r.SizeMax, window, active, dash(r.ID))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, Printer.Sprintf(i18n.MsgRulesCount, len(list)))
	return nil
}

// RunExport writes every rule in format.
func RunExport(ctx context.Context, api client.RulesAPI, w io.Writer, format rules.Format) error {
	list, err := api.ListRules(ctx)
	if err != nil {
		return err
	}
	return rules.Encode(w, list, format)
}

// RunImport appends rs in order, after deleting every existing rule when
// replace is set.
func RunImport(ctx context.Context, api client.RulesAPI, rs []rules.Rule, replace bool, w io.Writer) error {
	if replace {
		existing, err := api.ListRules(ctx)
		if err != nil {
			return err
		}
		// Last first, so positional refs stay valid for id-less rules.
		for i := len(existing) - 1; i >= 0; i-- {
			if _, err := api.DeleteRule(ctx, client.RefFor(existing[i], i)); err != nil {
				return fmt.Errorf("delete #%d: %w", i, err)
			}
		}
		if len(existing) > 0 {
			warnf(w, "removed %d existing rule(s)\n", len(existing))
		}
	}
	for i, r := range rs {
		if _, err := api.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, r, err)
		}
	}
	success(w, "imported %d rule(s)\n", len(rs))
	return nil
}

func formatEvent(e client.RuleEvent) string {
	return fmt.Sprintf("%s %-13s #%d %s %s",
		e.Timestamp.Local().Format("15:04:05"), e.Type, e.Data.Index, e.Data.ID, e.Data.Rule)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
