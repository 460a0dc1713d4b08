// Package cmd implements the seneschal CLI using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🏰"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "seneschal",
	Short: logo + " seneschal — Personal AI Steward",
	Long:  logo + " seneschal — a conversational agent runtime with tools, agents, and durable memory",
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(capabilityCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(compactCmd)
}
