// Path: internal/oai/ratelimit.go
package oai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum wall-clock spacing between successive requests
// to the OAI-PMH endpoint. arXiv asks harvesters to stay at one request every
// few seconds; the delay is configuration, not a constant.
type Limiter struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewLimiter creates a limiter with the given minimum spacing.
func NewLimiter(delay time.Duration) *Limiter {
	return &Limiter{
		delay:   delay,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Wait blocks until at least the configured delay has elapsed since the
// previous request. The first call returns immediately. Returns early with
// the context's error if the context is cancelled mid-wait.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Pause blocks for the full configured delay regardless of how much time has
// passed, used between logical units of work rather than individual requests.
func (l *Limiter) Pause(ctx context.Context) error {
	return l.PauseFor(ctx, l.delay)
}

// PauseFor blocks for an arbitrary duration, cancellable via ctx.
func (l *Limiter) PauseFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the configured minimum spacing.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}
