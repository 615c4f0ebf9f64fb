package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "space-explorer"

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Space Explorer dashboard backend",
	Long: `Space Explorer serves live ISS positions, a child-friendly space guide and
spoken answers, with deterministic fallbacks when a provider is unavailable.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, statusCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
