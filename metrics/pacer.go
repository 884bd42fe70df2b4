package metrics

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// Pacer blocks before each backend request so a flush stays within the
// backend's request quota.
type Pacer interface {
	Wait(ctx context.Context) error
}

// TokenBucketPacer paces requests with a token bucket, allowing short bursts.
type TokenBucketPacer struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewTokenBucketPacer creates a pacer allowing perSecond requests with the given burst.
func NewTokenBucketPacer(perSecond float64, burst int) *TokenBucketPacer {
	p := &TokenBucketPacer{}
	p.limiter.Store(rate.NewLimiter(rate.Limit(perSecond), burst))
	return p
}

// Wait blocks until a token is available or ctx is done.
func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	return p.limiter.Load().Wait(ctx)
}

// Reload swaps the limiter in place; concurrent waiters keep the old one.
func (p *TokenBucketPacer) Reload(perSecond float64, burst int) {
	p.limiter.Store(rate.NewLimiter(rate.Limit(perSecond), burst))
}

// LeakyBucketPacer spaces requests evenly without bursting.
type LeakyBucketPacer struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewLeakyBucketPacer creates a pacer letting perSecond requests through.
func NewLeakyBucketPacer(perSecond int) *LeakyBucketPacer {
	p := &LeakyBucketPacer{}
	l := ratelimit.New(perSecond)
	p.limiter.Store(&l)
	return p
}

// Wait blocks until the next slot. ratelimit has no cancellation, so ctx is
// only checked before taking the slot.
func (p *LeakyBucketPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	(*p.limiter.Load()).Take()
	return nil
}

// Reload swaps the limiter in place.
func (p *LeakyBucketPacer) Reload(perSecond int) {
	l := ratelimit.New(perSecond)
	p.limiter.Store(&l)
}
