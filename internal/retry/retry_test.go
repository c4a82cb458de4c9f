package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("503 overloaded")

func fastPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		IsTransient: func(err error) bool { return errors.Is(err, errBusy) },
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var waits []time.Duration
	p := fastPolicy()
	p.OnRetry = func(_ int, _ error, d time.Duration) { waits = append(waits, d) }

	v, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBusy
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDoExhausts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, errBusy
	})
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, ex.Attempts)
	assert.ErrorIs(t, err, errBusy)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	bad := errors.New("400 invalid argument")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, bad
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, bad)
	var ex *ExhaustedError
	assert.False(t, errors.As(err, &ex))
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.BaseDelay = time.Hour
	p.OnRetry = func(int, error, time.Duration) { cancel() }

	_, err := Do(ctx, p, func(context.Context) (int, error) { return 0, errBusy })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackOffGrowsWithJitterBound(t *testing.T) {
	b := &expBackOff{base: 10 * time.Millisecond, jitter: 5 * time.Millisecond}
	for n := 0; n < 4; n++ {
		d := b.NextBackOff()
		lo := 10 * time.Millisecond << n
		assert.GreaterOrEqual(t, d, lo)
		assert.Less(t, d, lo+5*time.Millisecond)
	}
	b.Reset()
	assert.Less(t, b.NextBackOff(), 15*time.Millisecond)
}
