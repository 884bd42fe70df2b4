package metrics

import (
	"context"
	"time"
)

// MsTimer starts a monotonic timer. The returned function reports the whole
// milliseconds elapsed since MsTimer was called.
func MsTimer() func() Value {
	start := time.Now()
	return func() Value {
		return Value(time.Since(start).Milliseconds())
	}
}

// TrackRequest times op. On success onSuccess receives the elapsed
// milliseconds and op's result is returned; on error onFailure receives them
// and op's error is returned unchanged. If op panics, onFailure is called
// before the panic continues.
func TrackRequest[T any](ctx context.Context, onSuccess, onFailure func(ms Value),
	op func(ctx context.Context) (T, error)) (result T, err error) {
	timer := MsTimer()
	done := false
	defer func() {
		if !done {
			onFailure(timer())
		}
	}()

	result, err = op(ctx)
	done = true
	if err != nil {
		onFailure(timer())
		return result, err
	}
	onSuccess(timer())
	return result, nil
}

// TrackGH times a GitHub API call and records it under op.
func TrackGH[T any](ctx context.Context, m *Aggregator, op GHOperation,
	fn func(ctx context.Context) (T, error)) (T, error) {
	return TrackRequest(ctx,
		func(ms Value) { m.GHCallSuccess(op, ms) },
		func(ms Value) { m.GHCallFailure(op, ms) },
		fn)
}

// TrackAWS times an AWS API call and records it under op.
func TrackAWS[T any](ctx context.Context, m *Aggregator, op AWSOperation,
	fn func(ctx context.Context) (T, error)) (T, error) {
	return TrackRequest(ctx,
		func(ms Value) { m.AWSCallSuccess(op, ms) },
		func(ms Value) { m.AWSCallFailure(op, ms) },
		fn)
}
