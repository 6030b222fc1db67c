// Package executor runs units of work on a bounded pool and hands back
// joinable handles.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by handles submitted after Close.
var ErrClosed = errors.New("executor is closed")

// DefaultSize leaves one CPU for the submitting goroutine.
func DefaultSize() int {
	return max(1, runtime.NumCPU()-1)
}

// Executor bounds the number of tasks running at once. Tasks are started
// immediately and wait for a slot, so nothing is dropped if a handle is
// never joined.
type Executor struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates an executor running at most size tasks at a time.
// A size <= 0 uses DefaultSize.
func New(size int) *Executor {
	if size <= 0 {
		size = DefaultSize()
	}

	return &Executor{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the concurrency bound
func (e *Executor) Size() int {
	return e.size
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
}

// Handle is the pending result of a submitted task.
type Handle[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Join blocks until the task finishes and returns its result.
func (h *Handle[T]) Join() (T, error) {
	<-h.done
	return h.value, h.err
}

// Done is closed once the task has finished.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Submit schedules fn on the executor. A panic inside fn is returned from
// Join as an error.
func Submit[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Handle[T] {
	return SubmitContext(context.Background(), e, fn)
}

// SubmitContext is Submit with a context passed through to fn. The context
// does not cancel a task once it has been accepted.
func SubmitContext[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) (T, error)) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		h.err = ErrClosed
		close(h.done)
		return h
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer close(h.done)

		// Background so an accepted task always runs
		_ = e.sem.Acquire(context.Background(), 1)
		defer e.sem.Release(1)

		h.value, h.err = run(ctx, fn)
	}()

	return h
}

func run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return fn(ctx)
}
