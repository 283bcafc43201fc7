package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rowbase",
	Short: "Schema-as-a-service data layer with realtime broadcast",
	Long: `Rowbase is a self-hosted data layer on top of Postgres.

It exposes table and column definition as API operations, compiling a
closed, validated schema vocabulary into safe DDL, and broadcasts row
changes to websocket subscribers with per-subscriber row-level security
checks.

Quick start:
  rowbase serve     # Start the server
  rowbase validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "rowbase.yaml", "config file path")
}
