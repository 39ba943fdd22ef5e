package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker pool bounds.
const (
	DefaultConcurrency = 3
	MaxConcurrency     = 10
)

// ClampConcurrency maps a requested worker count into [1, MaxConcurrency];
// zero selects the default.
func ClampConcurrency(n int) int {
	switch {
	case n == 0:
		return DefaultConcurrency
	case n < 1:
		return 1
	case n > MaxConcurrency:
		return MaxConcurrency
	default:
		return n
	}
}

// queue is the shared work list; pop is the only synchronized operation.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
}

func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// runPool drains items with a fixed number of workers. A failing item is
// logged and counted; it never stops the pool. Only context cancellation
// ends the run early.
func runPool[T any](ctx context.Context, items []T, workers int, name func(T) string, fn func(ctx context.Context, item T) error) (int, error) {
	q := &queue[T]{items: append([]T(nil), items...)}
	workers = ClampConcurrency(workers)
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	var failed atomic.Int64
	g, gCtx := errgroup.WithContext(ctx)
	for worker := 1; worker <= workers; worker++ {
		g.Go(func() error {
			for {
				if err := gCtx.Err(); err != nil {
					return err
				}
				item, ok := q.pop()
				if !ok {
					return nil
				}
				if err := fn(gCtx, item); err != nil {
					failed.Add(1)
					zap.L().Error("project failed",
						zap.Int("worker", worker),
						zap.String("project", name(item)),
						zap.Error(err),
					)
				}
			}
		})
	}
	err := g.Wait()
	return int(failed.Load()), err
}
