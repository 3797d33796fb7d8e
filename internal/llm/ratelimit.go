// Package llm holds plumbing shared by the completion backends.
package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"tutor/internal/domain"
)

// RateLimited wraps a Completer so that calls never exceed rpm requests per
// minute. A rewrite and a generation each count as one request.
type RateLimited struct {
	next    domain.Completer
	limiter *rate.Limiter
}

// NewRateLimited returns c unchanged when rpm is not positive.
func NewRateLimited(c domain.Completer, rpm int) domain.Completer {
	if rpm <= 0 {
		return c
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: c, limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)}
}

func (r *RateLimited) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, req)
}

func (r *RateLimited) Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string) error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	return r.next.Stream(ctx, req, onDelta)
}

// Ping forwards to the wrapped completer when it can be pinged.
func (r *RateLimited) Ping(ctx context.Context) error {
	if p, ok := r.next.(domain.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
