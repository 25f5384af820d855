package client

import (
	"context"
	"sync"
)

// Future is the result of a request answered later on the read path. It is
// resolved exactly once, later resolutions are ignored.
type Future[T any] struct {
	mu        sync.Mutex
	resolved  bool
	callbacks []func(T, error)

	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// failedFuture returns a Future that is already resolved with err.
func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.reject(err)
	return f
}

func (f *Future[T]) resolve(value T) bool {
	return f.settle(value, nil)
}

func (f *Future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(value T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}

	f.resolved = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(value, err)
	}

	return true
}

// then runs cb once the Future is resolved, on the goroutine resolving it, or
// right away if it already is.
func (f *Future[T]) then(cb func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	cb(f.value, f.err)
}

// Done is closed once the Future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result blocks until the Future is resolved and returns the outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the Future is resolved or ctx is done. Giving up on the
// wait does not remove the request from its queue, the reply will still be
// consumed when it arrives.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err

	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
