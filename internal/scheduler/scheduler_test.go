package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPreservesInputOrder(t *testing.T) {
	out, err := Run(context.Background(), 6, 3, func(_ context.Context, i int) (int, error) {
		// later indexes finish first
		time.Sleep(time.Duration(6-i) * time.Millisecond)
		return i * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40, 50}, out)
}

func TestRunRespectsLimit(t *testing.T) {
	var inFlight, peak int32
	_, err := Run(context.Background(), 20, 4, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestRunReportsLowestFailureAndKeepsSiblings(t *testing.T) {
	var ran int32
	out, err := Run(context.Background(), 5, 5, func(_ context.Context, i int) (string, error) {
		atomic.AddInt32(&ran, 1)
		if i == 1 || i == 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	require.Error(t, err)

	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Index)
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
	assert.Equal(t, []string{"ok", "", "ok", "", "ok"}, out)
}

func TestRunSkipsTasksAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran int32
	_, err := Run(ctx, 10, 1, func(_ context.Context, i int) (int, error) {
		atomic.AddInt32(&ran, 1)
		if i == 1 {
			cancel()
		}
		return i, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ran))
}

func TestRunEmpty(t *testing.T) {
	out, err := Run(context.Background(), 0, 3, func(context.Context, int) (int, error) {
		t.Fatal("should not be called")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}
