package metrics

import (
	"context"
	"errors"
	"fmt"

	"github.com/linchenxuan/runnermetrics/log"
)

// ErrNoEmitter is returned by SendMetrics when the aggregator has nowhere to send.
var ErrNoEmitter = errors.New("metrics: no emitter configured")

// Sender delivers one batch to a metrics backend.
type Sender interface {
	Send(ctx context.Context, b Batch) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, b Batch) error

// Send calls f(ctx, b).
func (f SenderFunc) Send(ctx context.Context, b Batch) error {
	return f(ctx, b)
}

// Retrier runs op until it succeeds, a non-retryable error is returned, or
// its attempt budget is exhausted.
type Retrier interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

type onceRetrier struct{}

func (onceRetrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	return op(ctx)
}

// FlushError reports a flush that stopped before every batch was delivered.
// Batches before Sent were accepted by the backend; the rest were not sent.
type FlushError struct {
	Sent  int
	Total int
	Err   error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("metrics flush stopped after %d/%d batches: %v", e.Sent, e.Total, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Emitter sends batches one at a time through a Sender, wrapping every send
// with the injected Retrier and waiting on the optional Pacer first.
type Emitter struct {
	sender  Sender
	retrier Retrier
	pacer   Pacer
}

// NewEmitter creates an Emitter. A nil retrier makes a single attempt per
// batch and a nil pacer does not wait.
func NewEmitter(sender Sender, retrier Retrier, pacer Pacer) *Emitter {
	if retrier == nil {
		retrier = onceRetrier{}
	}
	return &Emitter{
		sender:  sender,
		retrier: retrier,
		pacer:   pacer,
	}
}

// Emit sends batches in order. The first batch whose retries are exhausted
// stops the flush and the remaining batches are left unsent.
func (e *Emitter) Emit(ctx context.Context, batches []Batch) error {
	for i := range batches {
		b := batches[i]
		err := e.retrier.Do(ctx, func(ctx context.Context) error {
			if e.pacer != nil {
				if err := e.pacer.Wait(ctx); err != nil {
					return err
				}
			}
			return e.sender.Send(ctx, b)
		})
		if err != nil {
			log.Error().Err(err).Str("namespace", b.Namespace).Int("batch", i).
				Int("total", len(batches)).Msg("metrics batch send failed")
			return &FlushError{Sent: i, Total: len(batches), Err: err}
		}
		log.Debug().Str("namespace", b.Namespace).Int("batch", i).
			Int("datums", len(b.Data)).Msg("metrics batch sent")
	}
	return nil
}
