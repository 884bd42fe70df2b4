package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/linchenxuan/runnermetrics/log"
)

// TimeoutFlusher is what the timeout guard needs from an aggregator.
type TimeoutFlusher interface {
	RunTimeout()
	SendMetrics(ctx context.Context) error
}

// TimeoutVars holds the aggregator and the pending timer of one run. The
// guard and the normal end of the run both release them, whichever comes first.
type TimeoutVars struct {
	mu      sync.Mutex
	metrics TimeoutFlusher
	timer   *time.Timer

	// set once the guard has taken the aggregator
	fired bool
	done  chan struct{}
	err   error
}

// NewTimeoutVars creates a holder for m with no timer armed.
func NewTimeoutVars(m TimeoutFlusher) *TimeoutVars {
	return &TimeoutVars{metrics: m, done: make(chan struct{})}
}

// Arm schedules the guard built by SendMetricsAtTimeout to fire after d.
// Any previously armed timer is stopped.
func (v *TimeoutVars) Arm(ctx context.Context, d time.Duration) {
	cb := SendMetricsAtTimeout(ctx, v)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(d, cb)
}

// Disarm stops the timer and releases the aggregator without recording
// anything. It returns the aggregator if the guard had not fired yet, nil otherwise.
func (v *TimeoutVars) Disarm() TimeoutFlusher {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	m := v.metrics
	v.metrics = nil
	return m
}

// Wait blocks until a fired guard has finished flushing and returns its
// flush error. It returns nil at once if the guard never took the aggregator.
func (v *TimeoutVars) Wait() error {
	v.mu.Lock()
	fired := v.fired
	v.mu.Unlock()
	if !fired {
		return nil
	}
	<-v.done
	return v.err
}

// SendMetricsAtTimeout returns the guard callback for vars. The callback stops
// the timer if one is set and, if the aggregator is still held, records
// run.timeout and flushes it. Both references are cleared, so a second call
// does nothing. The flush error is logged and kept for Wait.
func SendMetricsAtTimeout(ctx context.Context, vars *TimeoutVars) func() {
	return func() {
		vars.mu.Lock()
		if vars.timer != nil {
			vars.timer.Stop()
			vars.timer = nil
		}
		m := vars.metrics
		vars.metrics = nil
		if m != nil {
			vars.fired = true
		}
		vars.mu.Unlock()

		if m == nil {
			return
		}
		defer close(vars.done)
		log.Warn().Msg("run deadline approaching, flushing metrics")
		m.RunTimeout()
		if err := m.SendMetrics(ctx); err != nil {
			vars.err = err
			log.Error().Err(err).Msg("flush metrics at timeout")
		}
	}
}
