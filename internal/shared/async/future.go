package async

import (
	"context"
	"fmt"
	"time"
)

// Future holds a value that is either ready now or produced later by a worker.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Ready returns a future that is already resolved to v.
func Ready[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Failed returns a future that is already resolved to err.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

func pending[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// complete must be called exactly once on a pending future.
func (f *Future[T]) complete(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done is closed once the future holds a value or an error.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the future can be resolved without waiting.
func (f *Future[T]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Resolve waits up to timeout for the value. A non-positive timeout waits
// until the future completes.
func (f *Future[T]) Resolve(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-f.done
		return f.value, f.err
	}

	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

// ResolveOr is Resolve that substitutes fallback for any error.
func (f *Future[T]) ResolveOr(timeout time.Duration, fallback T) T {
	v, err := f.Resolve(timeout)
	if err != nil {
		return fallback
	}
	return v
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// run executes fn and completes the future, converting a panic into an error.
func (f *Future[T]) run(ctx context.Context, fn func(context.Context) (T, error)) {
	var (
		v   T
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			var zero T
			f.complete(zero, fmt.Errorf("task panicked: %v", r))
			return
		}
		f.complete(v, err)
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
		return
	}
	v, err = fn(ctx)
}
