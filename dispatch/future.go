package dispatch

import (
	"context"
	"sync"
)

// Future is a single-assignment deferred result. It is resolved or rejected
// exactly once; later completions are ignored.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a future that already carries a value.
func Resolved[T any](val T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(val)

	return f
}

// Rejected creates a future that already carries an error.
func Rejected[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Reject(err)

	return f
}

// Resolve completes the future with a value. No-op if already completed.
func (f *Future[T]) Resolve(val T) {
	f.once.Do(func() {
		f.val = val
		close(f.done)
	})
}

// Reject completes the future with an error. No-op if already completed.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel that is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or the context is cancelled.
// Cancellation abandons the wait, not the underlying work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
