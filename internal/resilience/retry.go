// Package resilience bounds calls to map providers with retries and backoff.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a failing call is retried.
type Policy struct {
	// Attempts is the total number of tries including the first. Default 3.
	Attempts int

	// Backoff is the delay before the first retry. Default 500ms.
	Backoff time.Duration

	// MaxBackoff caps the grown delay. Default 10s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each attempt. Default 2.
	Multiplier float64

	// Jitter spreads each delay by ±Jitter of itself.
	Jitter float64

	// Retryable decides which errors are worth another try. Nil means IsTransient.
	Retryable func(err error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// NewPolicy builds a Policy from config values; zero values keep the defaults.
func NewPolicy(attempts, backoffMs, maxBackoffMs int) Policy {
	p := Policy{Jitter: 0.2}
	if attempts > 0 {
		p.Attempts = attempts
	}
	if backoffMs > 0 {
		p.Backoff = time.Duration(backoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p.normalized()
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Run calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. The last error is returned on failure along with
// the number of attempts made.
func Run[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.Retryable(err) || attempt == p.Attempts {
			return zero, attempt, lastErr
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, lastErr
		case <-timer.C:
		}
	}
	return zero, p.Attempts, lastErr
}

func (p Policy) delay(retry int) time.Duration {
	d := float64(p.Backoff) * math.Pow(p.Multiplier, float64(retry))
	d = math.Min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry callback that logs each retry at warn level.
func LogRetries(provider, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying map fetch",
			zap.String("provider", provider),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
