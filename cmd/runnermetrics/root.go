package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "runnermetrics",
	Short: "Runner autoscaler metrics tooling",
	Long: `runnermetrics aggregates the metrics of GitHub runner autoscaler runs
into value histograms and emits them to CloudWatch, Prometheus or
OpenTelemetry in size-bounded batches.

Configuration is read from an optional file and RUNNERMETRICS_* environment
variables.`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}
