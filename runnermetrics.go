// Package runnermetrics wires configuration, logging, sender plugins and the
// metrics engine into an App that builds per-run aggregators.
package runnermetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/linchenxuan/runnermetrics/config"
	"github.com/linchenxuan/runnermetrics/event"
	"github.com/linchenxuan/runnermetrics/log"
	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/metrics/cloudwatch"
	"github.com/linchenxuan/runnermetrics/metrics/otel"
	"github.com/linchenxuan/runnermetrics/metrics/prometheus"
	"github.com/linchenxuan/runnermetrics/plugin"
	"github.com/linchenxuan/runnermetrics/retry"
	"github.com/linchenxuan/runnermetrics/runtime"
)

const _publishTimeout = 5 * time.Second

// App is the assembled application. Each run gets its own aggregator from
// NewScaleUp or NewScaleDown; the App itself holds no per-run state.
type App struct {
	Cfg           *config.Config
	Logger        *log.JSONLogger
	PluginManager *plugin.Manager
	Publisher     *event.Publisher
	Harness       *runtime.Harness

	emitter *metrics.Emitter
}

type options struct {
	sender    metrics.Sender
	factories []plugin.Factory
}

// Option customizes New.
type Option func(*options)

// WithSender bypasses the sender plugins and flushes through s.
func WithSender(s metrics.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithFactory registers an extra plugin factory.
func WithFactory(f plugin.Factory) Option {
	return func(o *options) { o.factories = append(o.factories, f) }
}

// New builds an App from cfg. A nil cfg uses config.Default. The App's
// logger becomes the package default logger.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger, err := log.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log.SetDefaultLogger(logger)

	pm := plugin.NewManager()
	pm.RegisterFactory(cloudwatch.NewFactory())
	pm.RegisterFactory(prometheus.NewFactory())
	pm.RegisterFactory(otel.NewFactory())
	pm.RegisterFactory(metrics.NewLogSenderFactory())
	for _, f := range o.factories {
		pm.RegisterFactory(f)
	}

	sender := o.sender
	if sender == nil {
		if err := pm.SetupPlugins(cfg.PluginCfg()); err != nil {
			pm.Destroy()
			return nil, fmt.Errorf("setup plugins: %w", err)
		}
		if sender, err = metrics.SenderPlugin(pm, cfg.Sender); err != nil {
			pm.Destroy()
			return nil, err
		}
	}

	pub := event.NewPublisher(_publishTimeout)
	a := &App{
		Cfg:           cfg,
		Logger:        logger,
		PluginManager: pm,
		Publisher:     pub,
		Harness: runtime.NewHarness(runtime.Cfg{
			RunTimeout: cfg.Timeout.RunTimeout,
			Margin:     cfg.Timeout.Margin,
		}, pub),
		emitter: metrics.NewEmitter(sender, retry.New(&cfg.Retry), newPacer(cfg.RateLimit)),
	}

	logger.Info().Str("environment", cfg.Environment).Str("sender", cfg.Sender).
		Strs("senders", pm.Names(plugin.Sender)).Msg("runnermetrics initialized")
	return a, nil
}

func newPacer(c config.RateLimitCfg) metrics.Pacer {
	if c.PerSecond <= 0 {
		return nil
	}
	if c.Kind == config.PacerLeaky {
		return metrics.NewLeakyBucketPacer(max(int(c.PerSecond), 1))
	}
	return metrics.NewTokenBucketPacer(c.PerSecond, max(c.Burst, 1))
}

// Emitter returns the emitter shared by the App's aggregators.
func (a *App) Emitter() *metrics.Emitter {
	return a.emitter
}

// NewScaleUp creates the aggregator of one scale-up run.
func (a *App) NewScaleUp() *metrics.ScaleUpMetrics {
	return metrics.NewScaleUpMetrics(a.emitter, a.Cfg.AggregatorCfg())
}

// NewScaleDown creates the aggregator of one scale-down run.
func (a *App) NewScaleDown() *metrics.ScaleDownMetrics {
	return metrics.NewScaleDownMetrics(a.emitter, a.Cfg.AggregatorCfg())
}

// Run executes body as one run flushed through m. See runtime.Harness.Run.
func (a *App) Run(ctx context.Context, m runtime.Recorder, body func(ctx context.Context, run *runtime.Run) error) error {
	return a.Harness.Run(ctx, m, body)
}

// Stop releases the sender plugins and flushes the logger.
func (a *App) Stop() {
	a.Logger.Info().Msg("runnermetrics shutting down")
	a.PluginManager.Destroy()
	a.Logger.Refresh()
}
