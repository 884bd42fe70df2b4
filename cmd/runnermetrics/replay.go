package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linchenxuan/runnermetrics"
	"github.com/linchenxuan/runnermetrics/config"
	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/runtime"
)

const (
	opCount = "count"
	opAdd   = "add"
)

// Script is a recorded sequence of observations for one component.
type Script struct {
	Component string            `yaml:"component"`
	Units     map[string]string `yaml:"units"`
	Ops       []Op              `yaml:"ops"`
}

// Op is one count or add call, repeated Times times. A count without a
// value increments by one.
type Op struct {
	Op     string            `yaml:"op"`
	Metric string            `yaml:"metric"`
	Value  *float64          `yaml:"value"`
	Times  int               `yaml:"times"`
	Dims   map[string]string `yaml:"dims"`
}

func (o *Op) value() metrics.Value {
	switch {
	case o.Value != nil:
		return metrics.Value(*o.Value)
	case o.Op == opCount:
		return 1
	}
	return 0
}

// ParseScript decodes and checks a replay script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if s.Component == "" {
		return nil, errors.New("script component must be set")
	}
	for name, u := range s.Units {
		switch metrics.Unit(u) {
		case metrics.UnitCount, metrics.UnitMilliseconds, metrics.UnitSeconds:
		default:
			return nil, fmt.Errorf("unit %q of %s", u, name)
		}
	}
	for i, op := range s.Ops {
		if op.Op != opCount && op.Op != opAdd {
			return nil, fmt.Errorf("op %d: unknown op %q, must be %q or %q", i, op.Op, opCount, opAdd)
		}
		if op.Metric == "" {
			return nil, fmt.Errorf("op %d: metric must be set", i)
		}
		if op.Times < 0 {
			return nil, fmt.Errorf("op %d: times must be non-negative", i)
		}
	}
	return &s, nil
}

// Apply records every op of s on agg.
func (s *Script) Apply(agg *metrics.Aggregator) error {
	for name, u := range s.Units {
		agg.RegisterUnit(name, metrics.Unit(u))
	}
	for i, op := range s.Ops {
		times := max(op.Times, 1)
		for range times {
			var err error
			if op.Op == opCount {
				err = agg.CountEntry(op.Metric, op.value(), op.Dims)
			} else {
				err = agg.AddEntry(op.Metric, op.value(), op.Dims)
			}
			if err != nil {
				return fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Metric, err)
			}
		}
	}
	return nil
}

var replayFlags struct {
	dryRun bool
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay recorded observations and flush them",
	Long: `Apply a YAML script of count and add operations to a fresh aggregator and
flush it through the configured sender, as one run would.

Script format:
  component: scaleUp
  units:
    run.custom.latency: Milliseconds
  ops:
    - op: count
      metric: run.process
      value: 1
      dims: {Repo: runner, Owner: acme}
    - op: add
      metric: gh.calls.reposGetContent.wallclock
      value: 120
      times: 3

Examples:
  # Log the batches instead of sending them
  runnermetrics replay script.yaml --dry-run

  # Send to the sender of the config file
  runnermetrics replay script.yaml --config prod.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: replay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayFlags.dryRun, "dry-run", false, "log batches instead of sending them")
}

func replay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	var opts []runnermetrics.Option
	if replayFlags.dryRun {
		opts = append(opts, runnermetrics.WithSender(metrics.NewLogSender(nil)))
	}
	app, err := runnermetrics.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer app.Stop()

	agg := metrics.NewAggregator(script.Component, app.Emitter(), cfg.AggregatorCfg())
	batches := 0
	err = app.Run(cmd.Context(), agg, func(_ context.Context, _ *runtime.Run) error {
		if err := script.Apply(agg); err != nil {
			return err
		}
		batches = len(agg.Encode())
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "flushed %d batches to %s\n", batches, agg.Namespace())
	return nil
}
