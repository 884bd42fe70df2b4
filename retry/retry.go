// Package retry runs backend requests with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/linchenxuan/runnermetrics/log"
)

// Cfg configures the backoff policy.
type Cfg struct {
	// MaxAttempts bounds the total number of tries, including the first.
	MaxAttempts int `mapstructure:"maxAttempts"`
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration `mapstructure:"baseDelay"`
	// MaxDelay caps any single wait.
	MaxDelay time.Duration `mapstructure:"maxDelay"`
	// Multiplier grows the wait after each retry.
	Multiplier float64 `mapstructure:"multiplier"`
	// Jitter randomizes each wait by +/- this fraction.
	Jitter float64 `mapstructure:"jitter"`
}

// DefaultCfg returns the policy used when no configuration is given.
func DefaultCfg() *Cfg {
	return &Cfg{
		MaxAttempts: 6,
		BaseDelay:   time.Second,
		MaxDelay:    20 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// Validate checks the configuration.
func (c *Cfg) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("retry delays invalid: base %v, max %v", c.BaseDelay, c.MaxDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1, got %v", c.Multiplier)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("retry jitter must be in [0, 1), got %v", c.Jitter)
	}
	return nil
}

// Backoff retries operations whose errors are marked retryable.
type Backoff struct {
	cfg Cfg
}

// New creates a Backoff. A nil cfg uses DefaultCfg.
func New(cfg *Cfg) *Backoff {
	if cfg == nil {
		cfg = DefaultCfg()
	}
	return &Backoff{cfg: *cfg}
}

func (b *Backoff) policy(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.cfg.BaseDelay
	exp.MaxInterval = b.cfg.MaxDelay
	exp.Multiplier = b.cfg.Multiplier
	exp.RandomizationFactor = b.cfg.Jitter
	exp.MaxElapsedTime = 0
	exp.Reset()

	var p backoff.BackOff = exp
	if b.cfg.MaxAttempts > 0 {
		p = backoff.WithMaxRetries(exp, uint64(b.cfg.MaxAttempts-1))
	}
	return backoff.WithContext(p, ctx)
}

// Do runs op until it succeeds, returns an error that is not retryable, the
// attempts are used up or ctx is done. The last error of op is returned.
func (b *Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b.policy(ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("retrying backend request")
	})
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
