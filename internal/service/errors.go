package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ExternalCallError wraps a failure of a completion, embedding, index or
// storage call.
type ExternalCallError struct {
	Service string
	Op      string
	Timeout bool
	Err     error
}

func (e *ExternalCallError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s: timed out: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a deadline expiry or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ece *ExternalCallError
	if errors.As(err, &ece) && ece.Timeout {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// callBounded runs fn under a timeout. A timeout is retried exactly once;
// any other error, or a second timeout, is returned wrapped.
func callBounded[T any](ctx context.Context, timeout time.Duration, svc, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := runWithTimeout(ctx, timeout, fn)
		if err == nil {
			return v, nil
		}
		timedOut := IsTimeout(err) && ctx.Err() == nil
		if timedOut && attempt == 0 {
			continue
		}
		return zero, &ExternalCallError{Service: svc, Op: op, Timeout: timedOut, Err: err}
	}
}

func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}
