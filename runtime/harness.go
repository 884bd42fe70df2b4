// Package runtime drives one scale-up or scale-down run: it arms the
// deadline guard, runs the body, and performs the final metrics flush.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/linchenxuan/runnermetrics/event"
	"github.com/linchenxuan/runnermetrics/log"
	"github.com/linchenxuan/runnermetrics/metrics"
)

// ErrRunPanicked wraps a panic raised by a run body.
var ErrRunPanicked = errors.New("run panicked")

// Recorder is the aggregator of a run.
type Recorder interface {
	metrics.TimeoutFlusher
	Component() string
	Namespace() string
}

// Cfg configures the harness.
type Cfg struct {
	// RunTimeout bounds runs whose context has no deadline. Zero means unbounded.
	RunTimeout time.Duration
	// Margin is how long before the deadline the guard flushes.
	Margin time.Duration
}

// Harness runs bodies against a Recorder. It is safe for concurrent use.
type Harness struct {
	cfg Cfg
	pub *event.Publisher
	now func() time.Time
}

// NewHarness creates a harness. pub may be nil.
func NewHarness(cfg Cfg, pub *event.Publisher) *Harness {
	return &Harness{cfg: cfg, pub: pub, now: time.Now}
}

// Run describes a run in progress.
type Run struct {
	ID        string
	Component string
	Namespace string
	// Deadline is zero for an unbounded run.
	Deadline time.Time
}

func (r *Run) info() event.RunInfo {
	return event.RunInfo{RunID: r.ID, Component: r.Component, Namespace: r.Namespace}
}

// Run executes body with m as the run's recorder.
//
// If the run has a deadline, a guard fires Margin before it, records
// run.timeout and flushes m, and Run waits for that flush after body returns.
// Otherwise m is flushed once body returns, even if it failed or panicked.
// The body error and the flush error are joined.
func (h *Harness) Run(ctx context.Context, m Recorder, body func(ctx context.Context, run *Run) error) error {
	run := &Run{
		ID:        uuid.NewString(),
		Component: m.Component(),
		Namespace: m.Namespace(),
	}

	runCtx := ctx
	if d, ok := ctx.Deadline(); ok {
		run.Deadline = d
	} else if h.cfg.RunTimeout > 0 {
		run.Deadline = h.now().Add(h.cfg.RunTimeout)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, run.Deadline)
		defer cancel()
	}

	vars := metrics.NewTimeoutVars(&observed{Recorder: m, run: run, h: h})
	if !run.Deadline.IsZero() {
		wait := max(run.Deadline.Sub(h.now())-h.cfg.Margin, 0)
		vars.Arm(context.WithoutCancel(ctx), wait)
	}

	logger := log.Info().Str("run", run.ID).Str("namespace", run.Namespace)
	if !run.Deadline.IsZero() {
		logger = logger.Time("deadline", run.Deadline)
	}
	logger.Msg("run started")

	bodyErr := h.runBody(runCtx, run, body)

	var flushErr error
	if f := vars.Disarm(); f != nil {
		if err := f.SendMetrics(context.WithoutCancel(ctx)); err != nil {
			flushErr = fmt.Errorf("final metrics flush: %w", err)
		}
	} else if err := vars.Wait(); err != nil {
		flushErr = fmt.Errorf("timeout metrics flush: %w", err)
	}

	if bodyErr != nil {
		log.Error().Err(bodyErr).Str("run", run.ID).Msg("run failed")
	}
	return errors.Join(bodyErr, flushErr)
}

func (h *Harness) runBody(ctx context.Context, run *Run, body func(ctx context.Context, run *Run) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRunPanicked, r)
		}
	}()
	return body(ctx, run)
}

func (h *Harness) publish(topic string, payload any) {
	if h.pub == nil {
		return
	}
	if err := h.pub.Publish(topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("publish run event")
	}
}

// observed reports the guard and flush outcomes of a run as events.
type observed struct {
	Recorder
	run *Run
	h   *Harness
}

func (o *observed) RunTimeout() {
	o.Recorder.RunTimeout()
	o.h.publish(event.RunTimedOut, o.run.info())
}

func (o *observed) SendMetrics(ctx context.Context) error {
	err := o.Recorder.SendMetrics(ctx)
	res := event.FlushResult{RunInfo: o.run.info(), Err: err}
	if err != nil {
		o.h.publish(event.FlushFailed, res)
	} else {
		o.h.publish(event.FlushCompleted, res)
	}
	return err
}
