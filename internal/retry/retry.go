package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"subforge-go/internal/metrics"
)

// Policy describes how a single external call is retried.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	IsTransient func(error) bool
	// OnRetry is called before sleeping ahead of retry attempt (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxJitter: time.Second}
}

// ExhaustedError is returned when a transient failure persists past MaxRetries.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// expBackOff yields base*2^n + jitter for the n-th retry.
type expBackOff struct {
	base   time.Duration
	jitter time.Duration
	n      int
}

func (b *expBackOff) NextBackOff() time.Duration {
	d := b.base << b.n
	if b.jitter > 0 {
		d += time.Duration(rand.Int64N(int64(b.jitter)))
	}
	b.n++
	return d
}

func (b *expBackOff) Reset() { b.n = 0 }

// Do runs op, retrying transient failures with exponential backoff. Errors the policy does
// not consider transient are returned as-is on first occurrence.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0
	permanent := false
	wrapped := func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || p.IsTransient == nil || !p.IsTransient(err) {
			permanent = true
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	var b backoff.BackOff = &expBackOff{base: p.BaseDelay, jitter: p.MaxJitter}
	b = backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	notify := func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempts, err, wait)
		}
	}

	v, err := backoff.RetryNotifyWithData(wrapped, b, notify)
	if err == nil {
		return v, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(err, cerr) {
			return v, err
		}
		return v, fmt.Errorf("%w: %w", cerr, err)
	}
	if permanent {
		return v, err
	}
	return v, &ExhaustedError{Attempts: attempts, Err: err}
}

// Observed returns a copy of p that logs and counts every retry under op, then calls
// any OnRetry hook already set.
func (p Policy) Observed(op string, log *logrus.Entry, m *metrics.Metrics) Policy {
	next := p.OnRetry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Retried(op)
		if log != nil {
			log.WithFields(logrus.Fields{
				"op":      op,
				"attempt": attempt,
				"wait":    wait.String(),
				"error":   err.Error(),
			}).Warn("transient failure, retrying")
		}
		if next != nil {
			next(attempt, err, wait)
		}
	}
	return p
}
