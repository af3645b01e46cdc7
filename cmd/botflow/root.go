package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "botflow",
	Short: "botflow runs conversational automation flows",
	Long: `botflow is the conversational automation engine: it walks customers
through configured flow graphs, calls external tools and streams replies
over SSE.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "botflow.yaml", "Path to the configuration file")
}
