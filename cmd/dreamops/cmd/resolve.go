package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/resolution"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve alerts into remediation actions",
	Long: `Gather context from the enabled capability servers, resolve each alert
against the rule table, and print one report per alert.

Alerts come from a YAML file (one alert per document, "-" for stdin) or from
--description and --meta flags.

Examples:
  dreamops resolve --description "Pod OOMKilled" --meta deployment_name=api --meta namespace=prod
  dreamops resolve --alert alerts.yaml --output yaml
  cat alert.json | dreamops resolve --alert - --no-context`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

var (
	resolveAlertFile   string
	resolveDescription string
	resolveMeta        []string
	resolveOutput      string
	resolveNoContext   bool
)

func init() {
	resolveCmd.Flags().StringVar(&resolveAlertFile, "alert", "", `alert file, one YAML document per alert ("-" for stdin)`)
	resolveCmd.Flags().StringVar(&resolveDescription, "description", "", "alert description")
	resolveCmd.Flags().StringArrayVar(&resolveMeta, "meta", nil, "alert metadata as key=value (repeatable)")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", outputJSON, "output format: json or yaml")
	resolveCmd.Flags().BoolVar(&resolveNoContext, "no-context", false, "skip context gathering")
	resolveCmd.MarkFlagsMutuallyExclusive("alert", "description")
	resolveCmd.MarkFlagsMutuallyExclusive("alert", "meta")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(resolveOutput); err != nil {
		return err
	}
	alerts, err := readAlerts(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.incidentService()
	if err != nil {
		return fmt.Errorf("failed to build resolver: %w", err)
	}

	enc := newOutputEncoder(cmd.OutOrStdout(), resolveOutput)
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return err
		}
		report := svc.Handle(ctx, alert, !resolveNoContext)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return enc.Close()
}

// readAlerts collects the alerts named by the flags.
func readAlerts(stdin io.Reader) ([]resolution.AlertSignal, error) {
	switch {
	case resolveAlertFile == "-":
		return decodeAlerts(stdin)
	case resolveAlertFile != "":
		f, err := os.Open(resolveAlertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open alert file: %w", err)
		}
		defer f.Close()
		return decodeAlerts(f)
	case resolveDescription != "":
		meta, err := parseMeta(resolveMeta)
		if err != nil {
			return nil, err
		}
		return []resolution.AlertSignal{{Description: resolveDescription, Metadata: meta}}, nil
	default:
		return nil, errors.New("either --alert or --description is required")
	}
}
