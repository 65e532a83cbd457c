// Package cmd wires the worker commands: each worker runs as its own
// process under a pidfile, and the timer command is the one-shot phase
// dispatcher meant to run from cron or a systemd timer.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "tradingbot",
	Short:        "Automated trading pipeline",
	Long:         "Workers of the automated trading pipeline: market data ingest, persistence, snapshot queries, buy and sell evaluation and order fulfilment, connected through the message bus.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (INI)")
}
