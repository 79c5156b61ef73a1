package worker

import (
	"context"

	"github.com/ChuLiYu/parabola/pkg/types"
)

// Computer is a worker's registered handle on the computation routine.
// It is created on the worker's own goroutine and never shared.
type Computer interface {
	Compute(req types.Request) (types.Result, error)
	Release()
}

// Registrar binds a fresh worker identity to per-thread routine state.
type Registrar interface {
	Register(id types.WorkerIdentity) (Computer, error)
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(id types.WorkerIdentity) (Computer, error)

// Register calls f(id).
func (f RegistrarFunc) Register(id types.WorkerIdentity) (Computer, error) {
	return f(id)
}

// task is one queued unit of work. run resolves the task's future and
// returns its error for logging. fail resolves the future without running.
type task struct {
	run  func(c Computer) error
	fail func(err error)
}

// Future resolves to a task's value or error once the task finishes.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Abandoning the wait
// does not cancel the task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
