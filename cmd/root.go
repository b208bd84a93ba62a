// Package cmd implements the truenorth command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "truenorth",
	Short: "True North - grounded YouTube creator support answers",
	Long: `True North answers YouTube creator support questions by retrieving
relevant knowledge-base passages and generating a grounded, localized
answer over a WebSocket stream.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
