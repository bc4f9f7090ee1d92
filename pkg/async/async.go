package async

import (
	"context"
	"time"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

func newFuture[U any]() *Future[U] {
	return &Future[U]{done: make(chan struct{})}
}

func (f *Future[U]) complete(res U, err error) {
	f.result, f.err = res, err
	close(f.done)
}

// Await waits for the computation to complete and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout is Await bounded by timeout; it returns ErrTimeout when
// the computation is still running.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		var zero U
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the computation finished, without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async runs fn in a new goroutine. The goroutine gets a forked tenant
// scope: it starts with the caller's current tenant, and selections it makes
// never reach the caller.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := newFuture[U]()
	child := tenant.Fork(ctx)

	go func() {
		if err := child.Err(); err != nil {
			var zero U
			f.complete(zero, err)
			return
		}
		res, err := fn(child, param)
		f.complete(res, err)
	}()

	return f
}

// WaitAll waits for every future and returns their results in order. It
// returns the first error encountered.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))
	for i, future := range futures {
		result, err := future.Await()
		results[i] = result
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// WaitAny returns the index, result and error of the first future to complete.
func WaitAny[U any](futures ...*Future[U]) (int, U, error) {
	if len(futures) == 0 {
		var zero U
		return -1, zero, ErrNoFutures
	}

	type outcome struct {
		index  int
		result U
		err    error
	}
	done := make(chan outcome, len(futures))
	for i, future := range futures {
		go func() {
			result, err := future.Await()
			done <- outcome{i, result, err}
		}()
	}

	res := <-done
	return res.index, res.result, res.err
}
