package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective resolution table",
	Long: `Print the rules in evaluation order, config rules first, with their
fixtures and generic actions, followed by the table fingerprint. The
fingerprint changes whenever the effective table changes.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

var rulesOutput string

func init() {
	rulesCmd.Flags().StringVarP(&rulesOutput, "output", "o", outputYAML, "output format: json or yaml")
	rootCmd.AddCommand(rulesCmd)
}

// tableView is the printable form of a rule table.
type tableView struct {
	Fingerprint string     `json:"fingerprint" yaml:"fingerprint"`
	Rules       []ruleView `json:"rules" yaml:"rules"`
}

type ruleView struct {
	Category string            `json:"category" yaml:"category"`
	Match    string            `json:"match" yaml:"match"`
	Fixtures map[string]string `json:"fixtures,omitempty" yaml:"fixtures,omitempty"`
	Actions  []actionView      `json:"actions,omitempty" yaml:"actions,omitempty"`
}

type actionView struct {
	Type       string  `json:"type" yaml:"type"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Risk       string  `json:"risk" yaml:"risk"`
	Rollback   bool    `json:"rollback" yaml:"rollback"`
}

func runRules(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(rulesOutput); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	resolver, err := a.resolver()
	if err != nil {
		return fmt.Errorf("failed to build resolver: %w", err)
	}
	return writeTable(cmd.OutOrStdout(), resolver.Table(), rulesOutput)
}

func writeTable(w io.Writer, table *resolution.Table, format string) error {
	view := tableView{Fingerprint: fmt.Sprintf("%016x", table.Fingerprint())}
	for _, r := range table.Rules() {
		rv := ruleView{Category: r.Category, Match: r.Match.String()}
		for _, f := range r.Fixtures {
			if rv.Fixtures == nil {
				rv.Fixtures = make(map[string]string, len(r.Fixtures))
			}
			rv.Fixtures[f.Deployment] = f.Action.ActionType
		}
		if r.Generic != nil {
			for _, t := range r.Generic.Templates() {
				rv.Actions = append(rv.Actions, actionView{
					Type:       t.ActionType,
					Confidence: t.Confidence,
					Risk:       string(t.RiskLevel),
					Rollback:   t.RollbackPossible,
				})
			}
		}
		view.Rules = append(view.Rules, rv)
	}

	enc := newOutputEncoder(w, format)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
