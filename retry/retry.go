// Package retry wraps remote-call operations with exponential backoff.
// Only errors the policy classifies as transient are retried; everything
// else propagates immediately. Cache lookups and writes are never routed
// through this package.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/docsieve/docsieve/errors"
)

// Policy configures retry behavior for a class of remote calls.
type Policy struct {
	// MaxAttempts bounds the total number of invocations. Zero derives
	// the bound from the delay parameters:
	// ceil(log2(MaxDelay/InitialDelay)) + 1.
	MaxAttempts int

	// InitialDelay is the sleep before the second attempt. Doubles each
	// attempt, capped at MaxDelay.
	InitialDelay time.Duration

	// MaxDelay caps the per-attempt sleep.
	MaxDelay time.Duration

	// Transient classifies retryable errors. Nil defaults to
	// errors.IsTransient.
	Transient func(error) bool

	// Logger for retry warnings. Nil disables logging.
	Logger *zap.SugaredLogger

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the policy used for hosted-API backends: 2s initial
// delay doubling up to 1h, attempt count derived from the delay bounds.
func Default(logger *zap.SugaredLogger) Policy {
	return Policy{
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Hour,
		Logger:       logger,
	}
}

// Attempts returns the effective attempt bound.
func (p Policy) Attempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	initial := p.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay < initial {
		maxDelay = initial
	}
	return int(math.Ceil(math.Log2(float64(maxDelay)/float64(initial)))) + 1
}

// Do invokes op, retrying transient failures with exponential backoff
// until the attempt budget is exhausted. The last transient error is
// returned unchanged; non-transient errors return immediately.
func (p Policy) Do(ctx context.Context, op func() error) error {
	transient := p.Transient
	if transient == nil {
		transient = errors.IsTransient
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	attempts := p.Attempts()
	delay := p.InitialDelay
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !transient(err) {
			return err
		}
		lastErr = err

		if attempt == attempts-1 {
			break
		}
		if p.Logger != nil {
			p.Logger.Warnw("Transient error, retrying",
				"attempt", attempt+1,
				"max_attempts", attempts,
				"delay", delay,
				"error", err,
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
