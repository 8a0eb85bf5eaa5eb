package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "orchestrator",
		Short:        "EV charging site evaluation orchestrator",
		Long:         "Runs site evaluations, network optimizations and permit crisis workflows across the specialist agents, locally or against a running server.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file (ORCH_ environment variables override it)")
	rootCmd.PersistentFlags().String("server", "", "Orchestrator server URL; runs locally when empty")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newEvaluateCommand())
	rootCmd.AddCommand(newOptimizeCommand())
	rootCmd.AddCommand(newCrisisCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newEventsCommand())
	return rootCmd
}
