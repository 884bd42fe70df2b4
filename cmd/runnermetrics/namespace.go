package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linchenxuan/runnermetrics/config"
	"github.com/linchenxuan/runnermetrics/metrics"
)

var namespaceFlags struct {
	environment string
}

var namespaceCmd = &cobra.Command{
	Use:   "namespace <component>",
	Short: "Print the metrics namespace of a component",
	Long: `Print the namespace the given component flushes its metrics to, built as
{environment}-{component}-dim.

Examples:
  runnermetrics namespace scaleUp
  runnermetrics namespace scaleDown --environment prod`,
	Args: cobra.ExactArgs(1),
	RunE: printNamespace,
}

func init() {
	rootCmd.AddCommand(namespaceCmd)
	namespaceCmd.Flags().StringVar(&namespaceFlags.environment, "environment", "", "override the configured environment")
}

func printNamespace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if namespaceFlags.environment != "" {
		cfg.Environment = namespaceFlags.environment
	}
	agg := metrics.NewAggregator(args[0], nil, cfg.AggregatorCfg())
	fmt.Fprintln(cmd.OutOrStdout(), agg.Namespace())
	return nil
}
