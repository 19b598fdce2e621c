// Package retry repeats an operation while it keeps failing with errors the
// caller classifies as transient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExhausted marks a failure that was still transient on the last attempt.
var ErrExhausted = errors.New("retries exhausted")

type Action int

const (
	Stop  Action = iota // give up and return the error as is
	Retry               // wait and try again
)

type Classify func(err error) Action

type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single try.
	MaxAttempts int
	Backoff     time.Duration
	// Exponential doubles the wait after each failure, capped at MaxBackoff
	// when that is set.
	Exponential bool
	MaxBackoff  time.Duration
	// Clock drives the waits; nil uses the real clock.
	Clock   clockwork.Clock
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do runs op until it succeeds, classify says Stop, the attempts run out or
// ctx ends.
func Do[T any](ctx context.Context, p Policy, classify Classify, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.MaxAttempts, 1)
	wait := p.Backoff

	for attempt := 1; ; attempt++ {
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		if classify(err) == Stop {
			return zero, err
		}
		if attempt >= attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-clock.After(wait):
		case <-ctx.Done():
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, ctx.Err())
		}

		if p.Exponential {
			wait *= 2
			if p.MaxBackoff > 0 && wait > p.MaxBackoff {
				wait = p.MaxBackoff
			}
		}
	}
}
