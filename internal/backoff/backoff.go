// Package backoff provides bounded exponential backoff retry used for calls
// to external collaborators (text generation and embedding APIs).
package backoff

import (
	"context"
	"time"
)

// Policy configures exponential backoff retry behavior
type Policy struct {
	MaxAttempts int           // Total attempts including the first call
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Ceiling for the delay
	Multiplier  float64       // Exponential growth factor
}

// Generation returns the retry policy for text-generation calls.
func Generation() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
	}
}

// Embedding returns the retry policy for embedding calls.
func Embedding() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
	}
}

// Retry executes fn with exponential backoff. A deadline expiry on an
// individual call counts as one attempt; cancellation of ctx stops retrying
// immediately and returns the context error.
func Retry[T any](ctx context.Context, p Policy, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	delay := p.BaseDelay

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < p.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * p.Multiplier)
				if delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}
