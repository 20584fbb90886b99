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
	Use:   "lexgate",
	Short: "AI gateway for the legal-education platform",
	Long: `lexgate sits between the practice-session frontend and the LLM provider.

It admits chat and feedback requests through rate limits, monthly session
quotas and a daily spend ceiling, relays streamed replies as SSE, and
scores finished sessions.

Quick start:
  lexgate serve                 # Start the gateway
  lexgate validate              # Check configuration

Operations:
  lexgate cost --input 1000 --output 500
  lexgate usage --days 7`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "lexgate.yaml", "config file path")
}
