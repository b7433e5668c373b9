package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/pulse/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse - adaptive metrics collection for RPC services",
	Long: `Pulse collects per-endpoint latency, error and throughput metrics for RPC
services and aggregates them across every replica of a fleet.

It provides:
  - Local percentiles, latency distribution and QPS per endpoint
  - Fleet-wide counters, percentiles and unique callers in a shared Redis store
  - Automatic failover to local-only collection while the store is down
  - Adaptive sampling driven by fleet QPS and slow-endpoint detection`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
