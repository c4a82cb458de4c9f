package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TaskError carries the index of the failed task.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %d: %v", e.Index, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

// Run executes task for every index in [0,n) with at most limit tasks in flight and
// returns the results aligned to input order.
//
// A failing task does not stop its siblings. Once every task has settled, the error of
// the lowest-index failure is returned as *TaskError together with the results of the
// tasks that succeeded. Tasks not yet started when ctx is cancelled are skipped and
// record ctx.Err().
func Run[R any](ctx context.Context, n, limit int, task func(ctx context.Context, i int) (R, error)) ([]R, error) {
	results := make([]R, n)
	if n <= 0 {
		return results, nil
	}
	if limit <= 0 {
		limit = 1
	}

	var (
		mu   sync.Mutex
		errs = make([]error, n)
	)
	record := func(i int, err error) {
		mu.Lock()
		errs[i] = err
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(i, err)
				return nil
			}
			r, err := task(ctx, i)
			if err != nil {
				record(i, err)
				return nil
			}
			// each goroutine owns results[i]
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			return results, &TaskError{Index: i, Err: err}
		}
	}
	return results, nil
}
