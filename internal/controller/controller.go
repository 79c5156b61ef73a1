// ============================================================================
// Parabola Controller - Engine Lifecycle Coordinator
// ============================================================================
//
// Package: internal/controller
// File: controller.go
// Function: Own one engine instance end to end: auxiliary files, the
//           ephemeris adapter, the worker pool and the batch executor.
//
// Components:
//   - swevid.Store:      auxiliary tables, memory-mapped
//   - ephemeris.Adapter: one-shot initialization, per-worker sessions
//   - worker.Pool:       workers pinned to OS threads, one FIFO
//   - batch.Executor:    ordered slice fan-out / fan-in
//   - tuner.Tuner:       offline thread-count search
//
// Startup:
//   1. Load the configured swevid files
//   2. Initialize the adapter (validation probe); failure is fatal and no
//      worker is created
//   3. Start the pool with the configured thread count, else the tuned
//      artifact's, else platform concurrency
//   4. Build the executor
//
// Shutdown (idempotent):
//   1. adapter.BeginDrain
//   2. pool.Shutdown: queued and running slices finish, workers join
//   3. release hook: adapter.Close, exactly once
//   4. close the store
//
// There is no package-level instance. Callers own the Controller.
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/ChuLiYu/parabola/internal/batch"
	"github.com/ChuLiYu/parabola/internal/config"
	"github.com/ChuLiYu/parabola/internal/ephemeris"
	"github.com/ChuLiYu/parabola/internal/metrics"
	"github.com/ChuLiYu/parabola/internal/swevid"
	"github.com/ChuLiYu/parabola/internal/tuner"
	"github.com/ChuLiYu/parabola/internal/worker"
	"github.com/ChuLiYu/parabola/pkg/types"
)

var (
	ErrNotInitialized = errors.New("controller not initialized")
	ErrStopped        = errors.New("controller stopped")
)

// ============================================================================
// Data structures
// ============================================================================

// Controller coordinates one engine instance.
type Controller struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Collector
	store     *swevid.Store
	adapter   *ephemeris.Adapter
	artifacts *config.ArtifactStore

	mu          sync.Mutex // guards everything below
	pool        *worker.Pool
	exec        *batch.Executor
	initialized bool
	stopped     bool
	startTime   time.Time
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a controller. A nil routine selects the built-in Engine
// reading the controller's auxiliary store.
func New(cfg *config.Config, routine ephemeris.Routine, opts ...Option) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Controller{
		cfg:       cfg,
		log:       slog.Default(),
		store:     swevid.NewStore(),
		artifacts: config.NewArtifactStore(cfg.Tuning.Artifact),
	}
	for _, opt := range opts {
		opt(c)
	}
	if routine == nil {
		routine = ephemeris.NewEngine(c.store, ephemeris.WithMaxSlots(cfg.Ephemeris.MaxSlots))
	}
	c.adapter = ephemeris.NewAdapter(routine, ephemeris.WithLogger(c.log))
	return c
}

// ============================================================================
// Lifecycle
// ============================================================================

// Initialize brings the engine up. Calling it again after success is a
// no-op.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}
	if c.initialized {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dataPath := c.cfg.Ephemeris.DataPath
	for _, name := range c.cfg.Ephemeris.SwevidFiles {
		path := name
		if !filepath.IsAbs(path) && dataPath != "" {
			path = filepath.Join(dataPath, name)
		}
		if err := c.store.Load(path); err != nil {
			return fmt.Errorf("failed to load auxiliary file: %w", err)
		}
	}

	if err := c.adapter.Initialize(dataPath); err != nil {
		return fmt.Errorf("failed to initialize ephemeris: %w", err)
	}

	threads := c.threadCount()
	pool := worker.NewPool(worker.RegistrarFunc(c.register),
		worker.WithLogger(c.log),
		worker.WithMetrics(c.metrics),
		worker.WithRelease(c.adapter.Close))
	if err := pool.Start(threads); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	c.pool = pool
	c.exec = batch.NewExecutor(pool,
		batch.WithLogger(c.log),
		batch.WithMetrics(c.metrics),
		batch.WithSliceBounds(c.cfg.Batch.MinSlice, c.cfg.Batch.MaxSlice))
	c.initialized = true
	c.startTime = time.Now()

	c.log.Info("Controller initialized",
		"data_path", dataPath,
		"swevid_files", len(c.cfg.Ephemeris.SwevidFiles),
		"workers", pool.Size())
	return nil
}

// threadCount resolves config, then artifact, then 0 (platform default).
func (c *Controller) threadCount() int {
	if n := c.cfg.Pool.ThreadCount; n > 0 {
		return n
	}
	a, ok, err := c.artifacts.Load()
	if err != nil {
		c.log.Warn("Ignoring tuning artifact", "path", c.artifacts.Path(), "error", err)
		return 0
	}
	if ok {
		c.log.Info("Using tuned thread count", "threads", a.ThreadCount, "tuned_at", a.TunedAt)
		return a.ThreadCount
	}
	return 0
}

func (c *Controller) register(id types.WorkerIdentity) (worker.Computer, error) {
	s, err := c.adapter.Register(id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Shutdown drains and releases everything. Safe to call more than once.
func (c *Controller) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		c.log.Info("Controller already stopped")
		return nil
	}
	c.stopped = true
	c.log.Info("Stopping controller...")

	var errs []error
	c.adapter.BeginDrain()
	if c.pool != nil {
		if err := c.pool.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	} else if err := c.adapter.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close auxiliary store: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		c.log.Error("Controller stopped with errors", "error", err)
		return err
	}
	c.log.Info("Controller stopped")
	return nil
}

// ============================================================================
// Operations
// ============================================================================

func (c *Controller) running() (*worker.Pool, *batch.Executor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil, nil, ErrStopped
	}
	if !c.initialized {
		return nil, nil, ErrNotInitialized
	}
	return c.pool, c.exec, nil
}

// ComputeBatch evaluates reqs and returns results in input order.
func (c *Controller) ComputeBatch(ctx context.Context, reqs []types.Request) ([]types.Result, error) {
	_, exec, err := c.running()
	if err != nil {
		return nil, err
	}
	return exec.ComputeBatch(ctx, reqs)
}

// Resize changes the worker count; n <= 0 selects platform concurrency.
func (c *Controller) Resize(n int) error {
	pool, _, err := c.running()
	if err != nil {
		return err
	}
	return pool.Resize(n)
}

// Tune searches for the best thread count, leaves the pool at it and
// persists the result to the tuning artifact. maxThreads <= 0 uses the
// configured ceiling.
func (c *Controller) Tune(ctx context.Context, maxThreads int) (tuner.Report, error) {
	pool, _, err := c.running()
	if err != nil {
		return tuner.Report{}, err
	}
	if maxThreads <= 0 {
		maxThreads = c.cfg.Tuning.MaxThreads
	}

	t := tuner.New(pool,
		tuner.WithLogger(c.log),
		tuner.WithMetrics(c.metrics),
		tuner.WithMaxThreads(maxThreads),
		tuner.WithWorkloadSize(c.cfg.Tuning.WorkloadSize))
	report, err := t.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to tune thread count: %w", err)
	}

	if c.artifacts.Path() != "" {
		err := c.artifacts.Write(config.Artifact{
			ThreadCount: report.Threads,
			Throughput:  report.Throughput,
			MaxThreads:  report.MaxThreads,
			TunedAt:     time.Now().UTC(),
		})
		if err != nil {
			return report, fmt.Errorf("failed to persist tuning artifact: %w", err)
		}
		c.log.Info("Tuning artifact written", "path", c.artifacts.Path(), "threads", report.Threads)
	}
	return report, nil
}

// WatchArtifact resizes the pool whenever the tuning artifact is rewritten
// with a different thread count. It blocks until ctx is done. A thread
// count pinned in config takes precedence over the artifact.
func (c *Controller) WatchArtifact(ctx context.Context) error {
	if _, _, err := c.running(); err != nil {
		return err
	}
	w, err := config.NewWatcher(c.artifacts, c.log)
	if err != nil {
		return err
	}
	return w.Run(ctx, func(a config.Artifact) {
		if c.cfg.Pool.ThreadCount > 0 {
			c.log.Info("Thread count pinned by config, ignoring artifact",
				"configured", c.cfg.Pool.ThreadCount,
				"artifact", a.ThreadCount)
			return
		}
		pool, _, err := c.running()
		if err != nil {
			return
		}
		if pool.Size() == a.ThreadCount {
			return
		}
		if err := pool.Resize(a.ThreadCount); err != nil {
			c.log.Error("Failed to apply tuned thread count", "threads", a.ThreadCount, "error", err)
		}
	})
}

// Stats returns a snapshot of the engine state.
func (c *Controller) Stats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := map[string]interface{}{
		"adapter_state": c.adapter.State().String(),
		"initialized":   c.initialized,
		"stopped":       c.stopped,
		"swevid_files":  c.store.Files(),
		"artifact":      c.artifacts.Path(),
	}
	if c.pool != nil {
		stats["pool_state"] = string(c.pool.State())
		stats["workers"] = c.pool.Size()
		stats["queue_depth"] = c.pool.QueueDepth()
	}
	if !c.startTime.IsZero() {
		stats["uptime"] = time.Since(c.startTime).String()
	}
	return stats
}

// Artifacts returns the tuning artifact store.
func (c *Controller) Artifacts() *config.ArtifactStore {
	return c.artifacts
}
