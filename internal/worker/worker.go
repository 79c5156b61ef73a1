// ============================================================================
// Parabola Worker - Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: One worker goroutine, locked to its own OS thread, draining the
//           pool's shared FIFO.
//
// Lifecycle:
//   ┌────────────────────────────────────────────┐
//   │  Worker Goroutine (LockOSThread)           │
//   │  1. Register identity → Computer           │
//   │  2. Report ready / spawn error             │
//   │  3. loop:                                  │
//   │     ├─ wait while queue empty && !stop     │
//   │     ├─ exit if stop && queue empty         │
//   │     └─ dequeue, run task with Computer     │
//   │  4. Release Computer                       │
//   └────────────────────────────────────────────┘
//
// The identity and its Computer never leave this goroutine. Tasks only see
// the Computer while they run on it.
//
// A stop request never drops queued tasks: a worker exits only once the
// queue is empty.
//
// ============================================================================

package worker

import (
	"fmt"
	"runtime"
	"time"

	"github.com/ChuLiYu/parabola/pkg/types"
)

// Worker is one execution unit of a Pool.
type Worker struct {
	id   types.WorkerIdentity
	pool *Pool
}

func newWorker(id types.WorkerIdentity, pool *Pool) *Worker {
	return &Worker{id: id, pool: pool}
}

// Run registers the worker's identity, reports the outcome on ready and then
// executes tasks until the pool stops it.
func (w *Worker) Run(ready chan<- error) {
	defer w.pool.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	comp, err := w.pool.registrar.Register(w.id)
	if err != nil {
		ready <- fmt.Errorf("%w: identity %d: %w", ErrWorkerSpawn, w.id, err)
		return
	}
	defer comp.Release()
	ready <- nil

	for {
		t, ok := w.pool.next()
		if !ok {
			return
		}
		w.execute(t, comp)
	}
}

func (w *Worker) execute(t *task, comp Computer) {
	start := time.Now()
	err := t.run(comp)
	d := time.Since(start)

	w.pool.metrics.RecordTask(d, err)
	if err != nil {
		w.pool.log.Error("Task failed",
			"worker", w.id,
			"duration", d,
			"error", err)
	}
}
