// ============================================================================
// Parabola Worker Pool - Concurrent Task Executor
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Own a set of workers, their identities and one shared FIFO.
//
// Architecture:
//   ┌─────────────┐
//   │  Executor   │ --Submit()--> queue (mutex + cond)
//   └─────────────┘                 │
//         ↑                         ├──> Worker 1 (identity 1)
//     Future.Wait()                 ├──> Worker 2 (identity 2)
//         │                         └──> Worker N (identity N)
//   results resolved per task
//
// States:
//   Running ──Resize──▶ Draining ──respawn──▶ Running
//   Running ──Shutdown─▶ Draining ──join──▶ Stopped (terminal)
//   Draining ──no worker could be spawned or restored──▶ Failed
//   Failed ──Resize──▶ Draining ──respawn──▶ Running
//
// Concurrency:
//   - mu + cond guard the queue, the stop flag and the state
//   - resizeMu serializes Resize and Shutdown against each other
//   - Submit only takes mu; it never waits for a worker
//   - Resize drains then recreates. Tasks submitted during a resize drain are
//     accepted and run by the old or the new workers.
//   - Shutdown rejects new submissions as soon as it starts
//   - A Failed pool has no workers. Queued tasks resolve with the spawn
//     error and Submit returns it until a Resize succeeds.
//
// Errors:
//   - ErrPoolNotStarted: Submit before Start
//   - ErrPoolStopped:    Submit/Start/Resize after Shutdown
//   - ErrWorkerSpawn:    a worker could not register its identity; also
//                        returned by Submit while the pool is Failed
//   - ErrTaskPanic:      a task panicked; reported on its Future
//
// ============================================================================

package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ChuLiYu/parabola/internal/metrics"
	"github.com/ChuLiYu/parabola/pkg/types"
	"github.com/eapache/queue"
)

// ============================================================================
// Error definitions
// ============================================================================

var (
	// ErrPoolStopped means the pool has been shut down.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrPoolNotStarted means Start has not been called.
	ErrPoolNotStarted = errors.New("worker pool not started")
	// ErrPoolStarted means Start was called twice.
	ErrPoolStarted = errors.New("worker pool already started")
	// ErrWorkerSpawn means a worker could not be created.
	ErrWorkerSpawn = errors.New("worker spawn failed")
	// ErrTaskPanic means a task panicked.
	ErrTaskPanic = errors.New("task panicked")
)

// ============================================================================
// Data structures
// ============================================================================

// Pool is a resizable set of workers draining one FIFO.
type Pool struct {
	registrar  Registrar
	log        *slog.Logger
	metrics    *metrics.Collector
	release    func() error
	maxWorkers int

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	state   types.PoolState
	stop    bool // workers exit once the queue is empty
	closing bool // Shutdown has begun; reject submissions
	started bool
	broken  error // set while the pool has no workers after a failed resize
	size    int
	wg      sync.WaitGroup

	resizeMu    sync.Mutex
	nextID      atomic.Int64
	releaseOnce sync.Once
	releaseErr  error
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pool) { p.metrics = c }
}

// WithRelease sets a hook run exactly once after Shutdown joins all workers.
func WithRelease(fn func() error) Option {
	return func(p *Pool) { p.release = fn }
}

// WithMaxWorkers caps the worker count. Asking for more fails with
// ErrWorkerSpawn, like hitting a platform thread limit.
func WithMaxWorkers(n int) Option {
	return func(p *Pool) { p.maxWorkers = n }
}

// NewPool creates a pool whose workers register through registrar.
func NewPool(registrar Registrar, opts ...Option) *Pool {
	p := &Pool{
		registrar: registrar,
		log:       slog.Default(),
		tasks:     queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start spawns n workers; n <= 0 selects DefaultConcurrency.
func (p *Pool) Start(n int) error {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	if p.started {
		p.mu.Unlock()
		return ErrPoolStarted
	}
	p.mu.Unlock()

	n = normalize(n)
	if err := p.spawn(n); err != nil {
		p.join()
		return err
	}

	p.mu.Lock()
	p.started = true
	p.state = types.PoolRunning
	p.mu.Unlock()

	p.log.Info("Worker pool started", "workers", n)
	return nil
}

// Resize drains the queue, joins every worker and spawns n new ones with
// fresh identities. If the new workers cannot be spawned the previous size
// is restored and ErrWorkerSpawn is returned. If not even one worker can be
// restored the pool becomes Failed.
func (p *Pool) Resize(n int) error {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	prev := p.size
	p.state = types.PoolDraining
	p.mu.Unlock()

	n = normalize(n)
	p.join()

	err := p.spawn(n)
	if err != nil {
		p.join()
		p.log.Warn("Pool resize failed, restoring previous size",
			"requested", n,
			"previous", prev,
			"error", err)
		if rerr := p.spawn(prev); rerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to restore %d workers: %w", prev, rerr))
		}
	}

	var orphaned []*task
	p.mu.Lock()
	size := p.size
	if size == 0 {
		p.broken = err
		p.state = types.PoolFailed
		orphaned = p.drainLocked()
	} else {
		p.broken = nil
		p.state = types.PoolRunning
	}
	p.mu.Unlock()

	for _, t := range orphaned {
		t.fail(err)
	}
	if size == 0 {
		p.log.Error("Worker pool has no workers",
			"requested", n,
			"failed_tasks", len(orphaned),
			"error", err)
		return err
	}
	if err != nil {
		return err
	}
	p.metrics.RecordResize()
	p.log.Info("Worker pool resized", "from", prev, "to", size)
	return nil
}

// drainLocked empties the queue. p.mu must be held.
func (p *Pool) drainLocked() []*task {
	out := make([]*task, 0, p.tasks.Length())
	for p.tasks.Length() > 0 {
		out = append(out, p.tasks.Remove().(*task))
	}
	return out
}

// Shutdown stops accepting tasks, lets queued and running tasks finish,
// joins every worker and runs the release hook once. Calling it again is a
// no-op that returns the first release error.
func (p *Pool) Shutdown() error {
	p.resizeMu.Lock()
	defer p.resizeMu.Unlock()

	p.mu.Lock()
	if p.state == types.PoolStopped {
		p.mu.Unlock()
		return p.releaseErr
	}
	p.closing = true
	p.state = types.PoolDraining
	p.stop = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.state = types.PoolStopped
	p.size = 0
	p.mu.Unlock()
	p.metrics.SetWorkers(0)

	p.releaseOnce.Do(func() {
		if p.release != nil {
			p.releaseErr = p.release()
		}
	})
	p.log.Info("Worker pool stopped")
	return p.releaseErr
}

// spawn starts n workers and waits for each to register. On failure the
// workers already started keep running; callers join them.
func (p *Pool) spawn(n int) error {
	if p.maxWorkers > 0 && n > p.maxWorkers {
		return fmt.Errorf("%w: %d workers exceeds limit %d", ErrWorkerSpawn, n, p.maxWorkers)
	}

	for i := 0; i < n; i++ {
		id := types.WorkerIdentity(p.nextID.Add(1))
		w := newWorker(id, p)
		ready := make(chan error, 1)

		p.wg.Add(1)
		go w.Run(ready)

		if err := <-ready; err != nil {
			return err
		}
		p.mu.Lock()
		p.size++
		size := p.size
		p.mu.Unlock()
		p.metrics.SetWorkers(size)
	}
	return nil
}

// join asks every worker to exit once the queue is empty and waits for them.
func (p *Pool) join() {
	p.mu.Lock()
	p.stop = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.stop = false
	p.size = 0
	p.mu.Unlock()
	p.metrics.SetWorkers(0)
}

func normalize(n int) int {
	if n <= 0 {
		return DefaultConcurrency()
	}
	return n
}

// ============================================================================
// Queue
// ============================================================================

// Submit enqueues fn and returns a Future for its outcome. fn runs on one
// worker with that worker's Computer. A panic in fn is recovered and
// reported as ErrTaskPanic.
func Submit[T any](p *Pool, fn func(c Computer) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	t := &task{
		fail: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
		run: func(c Computer) (err error) {
			var v T
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
					var zero T
					f.resolve(zero, err)
				}
			}()
			v, err = fn(c)
			f.resolve(v, err)
			return err
		},
	}
	if err := p.enqueue(t); err != nil {
		return nil, err
	}
	return f, nil
}

func (p *Pool) enqueue(t *task) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	if p.broken != nil {
		err := p.broken
		p.mu.Unlock()
		return err
	}
	p.tasks.Add(t)
	depth := p.tasks.Length()
	p.cond.Signal()
	p.mu.Unlock()

	p.metrics.RecordSubmit(depth)
	return nil
}

// next blocks until a task is available or the worker should exit.
func (p *Pool) next() (*task, bool) {
	p.mu.Lock()
	for p.tasks.Length() == 0 && !p.stop {
		p.cond.Wait()
	}
	if p.tasks.Length() == 0 {
		p.mu.Unlock()
		return nil, false
	}
	t := p.tasks.Remove().(*task)
	depth := p.tasks.Length()
	p.mu.Unlock()

	p.metrics.RecordDequeue(depth)
	return t, true
}

// ============================================================================
// Introspection
// ============================================================================

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// State returns the pool state. It is empty before Start.
func (p *Pool) State() types.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

// IsStarted reports whether Start has succeeded.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
