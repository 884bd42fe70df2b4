// Package config loads the runnermetrics configuration from an optional
// YAML/TOML/JSON file and RUNNERMETRICS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/linchenxuan/runnermetrics/log"
	"github.com/linchenxuan/runnermetrics/metrics"
	"github.com/linchenxuan/runnermetrics/retry"
)

// EnvPrefix prefixes every environment override, e.g. RUNNERMETRICS_ENVIRONMENT
// or RUNNERMETRICS_RETRY_MAXATTEMPTS.
const EnvPrefix = "RUNNERMETRICS"

// Pacing kinds.
const (
	PacerToken = "token"
	PacerLeaky = "leaky"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full application configuration.
type Config struct {
	// Environment is the first part of every namespace, e.g. "prod".
	Environment string `mapstructure:"environment"`
	// AWSRegion is the default region of the cloudwatch sender.
	AWSRegion string `mapstructure:"awsRegion"`
	// Sender names the sender plugin instance metrics are flushed through.
	Sender string `mapstructure:"sender"`

	Flush     FlushCfg     `mapstructure:"flush"`
	Retry     retry.Cfg    `mapstructure:"retry"`
	RateLimit RateLimitCfg `mapstructure:"rateLimit"`
	Timeout   TimeoutCfg   `mapstructure:"timeout"`
	Log       log.LogCfg   `mapstructure:"log"`
	// Plugin maps plugin type to factory name to factory config.
	Plugin map[string]any `mapstructure:"plugin"`
}

// FlushCfg controls what happens to aggregated data on flush.
type FlushCfg struct {
	Mode              metrics.FlushMode `mapstructure:"mode"`
	MaxDatumsPerBatch int               `mapstructure:"maxDatumsPerBatch"`
	MaxValuesPerDatum int               `mapstructure:"maxValuesPerDatum"`
	// Units is a list rather than a map because config keys are
	// case-folded and split on dots, both of which break metric names.
	Units []UnitOverride `mapstructure:"units"`
}

// UnitOverride sets the unit of one metric name.
type UnitOverride struct {
	Metric string       `mapstructure:"metric"`
	Unit   metrics.Unit `mapstructure:"unit"`
}

// RateLimitCfg paces backend requests. PerSecond 0 disables pacing.
type RateLimitCfg struct {
	Kind      string  `mapstructure:"kind"`
	PerSecond float64 `mapstructure:"perSecond"`
	Burst     int     `mapstructure:"burst"`
}

// TimeoutCfg configures the deadline guard of a run.
type TimeoutCfg struct {
	// RunTimeout is the run budget used when the context carries no deadline.
	// Zero means no budget.
	RunTimeout time.Duration `mapstructure:"runTimeout"`
	// Margin is how long before the deadline the guard fires.
	Margin time.Duration `mapstructure:"margin"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Environment: "dev",
		AWSRegion:   "us-east-1",
		Sender:      "cloudwatch",
		Flush: FlushCfg{
			Mode:              metrics.RetainAfterFlush,
			MaxDatumsPerBatch: metrics.DefaultMaxDatumsPerBatch,
			MaxValuesPerDatum: metrics.DefaultMaxValuesPerDatum,
		},
		Retry: *retry.DefaultCfg(),
		RateLimit: RateLimitCfg{
			Kind:      PacerToken,
			PerSecond: 0,
			Burst:     1,
		},
		Timeout: TimeoutCfg{
			RunTimeout: 0,
			Margin:     10 * time.Second,
		},
		Log: *log.DefaultCfg(),
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("environment", d.Environment)
	v.SetDefault("awsRegion", d.AWSRegion)
	v.SetDefault("sender", d.Sender)

	v.SetDefault("flush.mode", string(d.Flush.Mode))
	v.SetDefault("flush.maxDatumsPerBatch", d.Flush.MaxDatumsPerBatch)
	v.SetDefault("flush.maxValuesPerDatum", d.Flush.MaxValuesPerDatum)

	v.SetDefault("retry.maxAttempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.baseDelay", d.Retry.BaseDelay)
	v.SetDefault("retry.maxDelay", d.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", d.Retry.Multiplier)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("rateLimit.kind", d.RateLimit.Kind)
	v.SetDefault("rateLimit.perSecond", d.RateLimit.PerSecond)
	v.SetDefault("rateLimit.burst", d.RateLimit.Burst)

	v.SetDefault("timeout.runTimeout", d.Timeout.RunTimeout)
	v.SetDefault("timeout.margin", d.Timeout.Margin)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.consoleAppender", d.Log.ConsoleAppender)
	v.SetDefault("log.fileAppender", d.Log.FileAppender)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.enabledCallerInfo", d.Log.EnabledCallerInfo)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads path, if non-empty, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Settings returns the merged defaults, file values and environment
// overrides as a nested map. Keys are lower-cased.
func Settings(path string) (map[string]any, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("%w: environment must be set", ErrInvalidConfig)
	}
	if c.Sender == "" {
		return fmt.Errorf("%w: sender must be set", ErrInvalidConfig)
	}
	for _, u := range c.Flush.Units {
		if u.Metric == "" {
			return fmt.Errorf("%w: unit override without metric name", ErrInvalidConfig)
		}
		switch u.Unit {
		case metrics.UnitCount, metrics.UnitMilliseconds, metrics.UnitSeconds:
		default:
			return fmt.Errorf("%w: unit %q of %s", ErrInvalidConfig, u.Unit, u.Metric)
		}
	}
	if err := c.AggregatorCfg().Validate(); err != nil {
		return fmt.Errorf("%w: flush: %v", ErrInvalidConfig, err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.RateLimit.Kind {
	case "", PacerToken, PacerLeaky:
	default:
		return fmt.Errorf("%w: rate limit kind %q, must be %q or %q", ErrInvalidConfig, c.RateLimit.Kind, PacerToken, PacerLeaky)
	}
	if c.RateLimit.PerSecond < 0 {
		return fmt.Errorf("%w: rate limit must be non-negative, got %v", ErrInvalidConfig, c.RateLimit.PerSecond)
	}
	if c.Timeout.RunTimeout < 0 || c.Timeout.Margin < 0 {
		return fmt.Errorf("%w: timeouts must be non-negative", ErrInvalidConfig)
	}
	if c.Timeout.RunTimeout > 0 && c.Timeout.Margin >= c.Timeout.RunTimeout {
		return fmt.Errorf("%w: timeout margin %v must be below run timeout %v", ErrInvalidConfig, c.Timeout.Margin, c.Timeout.RunTimeout)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: log: %v", ErrInvalidConfig, err)
	}
	return nil
}

// AggregatorCfg returns the aggregator settings derived from c.
func (c *Config) AggregatorCfg() *metrics.AggregatorCfg {
	var units map[string]metrics.Unit
	if len(c.Flush.Units) > 0 {
		units = make(map[string]metrics.Unit, len(c.Flush.Units))
		for _, u := range c.Flush.Units {
			units[u.Metric] = u.Unit
		}
	}
	return &metrics.AggregatorCfg{
		Environment: c.Environment,
		FlushMode:   c.Flush.Mode,
		Encoder: metrics.EncoderCfg{
			MaxDatumsPerBatch: c.Flush.MaxDatumsPerBatch,
			MaxValuesPerDatum: c.Flush.MaxValuesPerDatum,
		},
		Units: units,
	}
}

// PluginCfg returns the plugin section, defaulting to a single cloudwatch
// sender in AWSRegion when none is configured.
func (c *Config) PluginCfg() map[string]any {
	if len(c.Plugin) > 0 {
		return c.Plugin
	}
	return map[string]any{
		"sender": map[string]any{
			"cloudwatch": map[string]any{"region": c.AWSRegion},
		},
	}
}
