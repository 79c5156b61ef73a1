// ============================================================================
// Parabola Autotuner - Thread Count Selection
// ============================================================================
//
// Package: internal/tuner
// File: tuner.go
// Function: Measure throughput of a fixed workload at increasing thread
//           counts and pick the count to run with.
//
// Trial sequence: 1, 2, 3, 4, 8, 16, ... up to the ceiling.
//
// Selection:
//   - throughput >  best * Improve           → new best
//   - threads > best && tp >= best*Tolerance → prefer more threads, keep
//                                              the best throughput
//   - throughput <  best * Tolerance         → regression, stop
//   - ErrWorkerSpawn on resize               → ceiling reached, stop
//
// Tuning runs offline or at startup only. The batch path never calls it.
//
// ============================================================================

package tuner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/parabola/internal/batch"
	"github.com/ChuLiYu/parabola/internal/metrics"
	"github.com/ChuLiYu/parabola/internal/worker"
	"github.com/ChuLiYu/parabola/pkg/types"
)

// Thresholds controls sample selection.
type Thresholds struct {
	Improve   float64 // a new best must beat best throughput by this factor
	Tolerance float64 // below best*Tolerance is a regression
}

// DefaultThresholds is a 5% band either side of the best throughput.
var DefaultThresholds = Thresholds{Improve: 1.05, Tolerance: 0.95}

// Report is the outcome of a tuning run.
type Report struct {
	Threads    int                  `json:"threads" yaml:"threads"`
	Throughput float64              `json:"throughput" yaml:"throughput"`
	MaxThreads int                  `json:"max_threads" yaml:"max_threads"`
	Samples    []types.TuningSample `json:"samples" yaml:"samples"`
}

// NextThreads returns the thread count tried after t.
func NextThreads(t int) int {
	if t < 4 {
		return t + 1
	}
	return t * 2
}

// Selection accumulates trial samples.
type Selection struct {
	th   Thresholds
	best types.TuningSample
}

// NewSelection starts an empty selection.
func NewSelection(th Thresholds) *Selection {
	return &Selection{th: th}
}

// Observe records a sample and reports whether tuning should continue.
func (s *Selection) Observe(sample types.TuningSample) bool {
	switch {
	case s.best.Threads == 0:
		s.best = sample
	case sample.Throughput > s.best.Throughput*s.th.Improve:
		s.best = sample
	case sample.Threads > s.best.Threads && sample.Throughput >= s.best.Throughput*s.th.Tolerance:
		s.best.Threads = sample.Threads
	case sample.Throughput < s.best.Throughput*s.th.Tolerance:
		return false
	}
	return true
}

// Best returns the selected sample. Threads is at least 1.
func (s *Selection) Best() types.TuningSample {
	best := s.best
	if best.Threads < 1 {
		best.Threads = 1
	}
	return best
}

// Select replays samples in order, stopping at the first regression.
func Select(samples []types.TuningSample, th Thresholds) types.TuningSample {
	sel := NewSelection(th)
	for _, s := range samples {
		if !sel.Observe(s) {
			break
		}
	}
	return sel.Best()
}

// Tuner runs trials on a pool.
type Tuner struct {
	pool       *worker.Pool
	log        *slog.Logger
	metrics    *metrics.Collector
	maxThreads int
	workload   []types.Request
	th         Thresholds
}

// Option configures a Tuner.
type Option func(*Tuner)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tuner) {
		if l != nil {
			t.log = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tuner) { t.metrics = c }
}

// WithMaxThreads sets the ceiling. Non-positive selects twice the platform
// concurrency.
func WithMaxThreads(n int) Option {
	return func(t *Tuner) { t.maxThreads = n }
}

// WithWorkloadSize sets the number of time steps in the workload.
func WithWorkloadSize(count int) Option {
	return func(t *Tuner) { t.workload = Workload(count) }
}

func WithThresholds(th Thresholds) Option {
	return func(t *Tuner) { t.th = th }
}

// New creates a tuner for a started pool.
func New(pool *worker.Pool, opts ...Option) *Tuner {
	t := &Tuner{
		pool: pool,
		log:  slog.Default(),
		th:   DefaultThresholds,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxThreads <= 0 {
		t.maxThreads = 2 * worker.DefaultConcurrency()
	}
	if t.workload == nil {
		t.workload = Workload(DefaultWorkloadSize)
	}
	return t
}

// Run tries each thread count in turn and leaves the pool resized to the
// selected count.
func (t *Tuner) Run(ctx context.Context) (Report, error) {
	report := Report{MaxThreads: t.maxThreads}
	sel := NewSelection(t.th)

	t.log.Info("Starting thread autotuning",
		"max_threads", t.maxThreads,
		"workload", len(t.workload))

	for threads := 1; threads <= t.maxThreads; threads = NextThreads(threads) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := t.pool.Resize(threads); err != nil {
			if errors.Is(err, worker.ErrWorkerSpawn) {
				t.log.Warn("Thread ceiling reached", "threads", threads, "error", err)
				break
			}
			return report, fmt.Errorf("failed to resize pool to %d: %w", threads, err)
		}

		d, err := t.trial(ctx, threads)
		if err != nil {
			return report, err
		}
		sample := types.TuningSample{Threads: threads, Throughput: throughput(len(t.workload), d)}
		report.Samples = append(report.Samples, sample)
		t.metrics.RecordTrial(threads, sample.Throughput)
		t.log.Info("Tuning trial",
			"threads", threads,
			"duration", d,
			"throughput", sample.Throughput)

		if !sel.Observe(sample) {
			t.log.Info("Throughput regressed, stopping", "threads", threads)
			break
		}
	}

	best := sel.Best()
	report.Threads = best.Threads
	report.Throughput = best.Throughput

	if err := t.pool.Resize(best.Threads); err != nil {
		return report, fmt.Errorf("failed to resize pool to selected %d: %w", best.Threads, err)
	}
	t.metrics.SetTunedThreads(best.Threads)
	t.log.Info("Optimal thread count", "threads", best.Threads, "throughput", best.Throughput)
	return report, nil
}

// trial runs the workload through a batch executor pinned to
// max(1, n/threads)-sized slices and returns the wall time. Item errors are
// expected on a synthetic workload and only logged at Debug.
func (t *Tuner) trial(ctx context.Context, threads int) (time.Duration, error) {
	size := max(1, len(t.workload)/threads)
	exec := batch.NewExecutor(t.pool,
		batch.WithLogger(t.log),
		batch.WithSliceBounds(size, size),
		batch.WithItemErrorLevel(slog.LevelDebug))

	start := time.Now()
	if _, err := exec.ComputeBatch(ctx, t.workload); err != nil {
		return 0, fmt.Errorf("tuning trial with %d threads: %w", threads, err)
	}
	return time.Since(start), nil
}

// throughput returns requests per second, clamping d to at least 1µs.
func throughput(n int, d time.Duration) float64 {
	if d < time.Microsecond {
		d = time.Microsecond
	}
	return float64(n) / d.Seconds()
}
