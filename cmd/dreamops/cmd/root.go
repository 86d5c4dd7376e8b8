// Package cmd provides the CLI commands for DreamOps.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SkySingh04/DreamOps-sub002/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dreamops",
	Short: "DreamOps - incident context and resolution",
	Long: `DreamOps talks to capability servers (Kubernetes, GitHub, observability
tools) to gather context for an alert, then proposes remediation actions
from an ordered rule table.

Quick start:
  1. Create a config file: dreamops.yaml
  2. Run: dreamops resolve --description "Pod OOMKilled" --meta deployment_name=api

Configuration:
  Config is loaded from dreamops.yaml in the current directory,
  $HOME/.dreamops/, or /etc/dreamops/.

  Environment variables can override scalar config values with the DREAMOPS_ prefix.
  Example: DREAMOPS_LOG_LEVEL=debug

Commands:
  tools       List or call tools on capability servers
  resolve     Resolve alerts into remediation actions
  rules       Print the effective resolution table
  version     Print version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dreamops.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
