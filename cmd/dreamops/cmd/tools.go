package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SkySingh04/DreamOps-sub002/internal/domain/capability"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List or call tools on capability servers",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Connect to servers and print their tools",
	Long: `Connect to each enabled capability server, or only the one named with
--server, and print the tools it exposes. Servers that fail to connect are
reported and skipped.

Examples:
  dreamops tools list
  dreamops tools list --server kubernetes`,
	Args: cobra.NoArgs,
	RunE: runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <server> <tool>",
	Short: "Call one tool and print the result",
	Long: `Connect to a capability server, call a single tool, and print the
normalized result. The command fails when the call does not succeed.

Examples:
  dreamops tools call kubernetes get_pods --params '{"namespace":"prod"}'
  dreamops tools call github search_code --output yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runToolsCall,
}

var (
	toolsServer string
	toolsParams string
	toolsOutput string
)

func init() {
	toolsListCmd.Flags().StringVar(&toolsServer, "server", "", "only list tools of this server")
	toolsCallCmd.Flags().StringVar(&toolsParams, "params", "", "tool arguments as a JSON object")
	toolsCallCmd.Flags().StringVarP(&toolsOutput, "output", "o", outputJSON, "output format: json or yaml")
	toolsCmd.AddCommand(toolsListCmd, toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var servers []*capability.Server
	if toolsServer != "" {
		srv, ok := a.cfg.Server(toolsServer)
		if !ok {
			return fmt.Errorf("unknown server %q", toolsServer)
		}
		servers = append(servers, srv)
	} else {
		for _, srv := range a.cfg.ToServers() {
			if srv.Enabled {
				servers = append(servers, srv)
			}
		}
	}
	if len(servers) == 0 {
		return fmt.Errorf("no enabled servers configured")
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tTOOL\tDESCRIPTION")
	failed := 0
	for _, srv := range servers {
		client := a.newClient(srv)
		if !client.Connect(ctx) {
			failed++
			fmt.Fprintf(tw, "%s\t-\t(unreachable)\n", srv.Name)
			continue
		}
		for _, tool := range client.Tools() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", srv.Name, tool.Name, tool.Description)
		}
		client.Disconnect()
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if failed == len(servers) {
		return fmt.Errorf("no server could be reached")
	}
	return nil
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	if err := validateOutput(toolsOutput); err != nil {
		return err
	}
	params, err := parseParams(toolsParams)
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

	srv, ok := a.cfg.Server(args[0])
	if !ok {
		return fmt.Errorf("unknown server %q", args[0])
	}

	client := a.newClient(srv)
	if !client.Connect(ctx) {
		return fmt.Errorf("failed to connect to %s", srv.Name)
	}
	defer client.Disconnect()

	result := client.CallTool(ctx, args[1], params)

	enc := newOutputEncoder(cmd.OutOrStdout(), toolsOutput)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s failed: %s", result.Kind, result.Error)
	}
	return nil
}

// parseParams decodes --params. An empty value means no arguments.
func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid --params: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
