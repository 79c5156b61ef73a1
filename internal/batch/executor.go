// ============================================================================
// Parabola Batch Executor - Ordered Fan-out / Fan-in
// ============================================================================
//
// Package: internal/batch
// File: executor.go
// Function: Split a request sequence into contiguous slices, run each slice
//           as one pool task and merge the results back in input order.
//
// Flow:
//   reqs[0..n) ──split──▶ [s0][s1]...[sk] ──Submit──▶ futures f0..fk
//                                                     │ Wait in order
//   out = r(f0) ++ r(f1) ++ ... ++ r(fk) ◀────────────┘
//
// Invariants:
//   - len(out) == len(reqs) or the call fails with ErrResultCountMismatch
//   - out[i] answers reqs[i]
//   - per-item domain errors stay inside Result and never fail the call
//
// ============================================================================

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/parabola/internal/ephemeris"
	"github.com/ChuLiYu/parabola/internal/metrics"
	"github.com/ChuLiYu/parabola/internal/worker"
	"github.com/ChuLiYu/parabola/pkg/types"
	"github.com/google/uuid"
)

const (
	DefaultMinSlice = 10
	DefaultMaxSlice = 100
)

// ErrResultCountMismatch means the merged results do not line up with the
// requests. The batch is rejected rather than padded or truncated.
var ErrResultCountMismatch = errors.New("result count mismatch")

// Executor runs batches on a worker pool.
type Executor struct {
	pool      *worker.Pool
	log       *slog.Logger
	metrics   *metrics.Collector
	minSlice  int
	maxSlice  int
	itemLevel slog.Level

	// runSlice evaluates one slice on one worker.
	runSlice func(c worker.Computer, reqs []types.Request) ([]types.Result, error)
}

// Option configures an Executor.
type Option func(*Executor)

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) { e.metrics = c }
}

// WithSliceBounds overrides the slice size clamp. Non-positive values keep
// the defaults.
func WithSliceBounds(minSize, maxSize int) Option {
	return func(e *Executor) {
		if minSize > 0 {
			e.minSlice = minSize
		}
		if maxSize > 0 {
			e.maxSlice = maxSize
		}
	}
}

// WithItemErrorLevel sets the level at which per-item errors are logged.
// The tuner lowers it to Debug.
func WithItemErrorLevel(level slog.Level) Option {
	return func(e *Executor) { e.itemLevel = level }
}

// NewExecutor creates an executor over pool.
func NewExecutor(pool *worker.Pool, opts ...Option) *Executor {
	e := &Executor{
		pool:      pool,
		log:       slog.Default(),
		minSlice:  DefaultMinSlice,
		maxSlice:  DefaultMaxSlice,
		itemLevel: slog.LevelWarn,
	}
	e.runSlice = e.computeSlice
	for _, opt := range opts {
		opt(e)
	}
	if e.maxSlice < e.minSlice {
		e.maxSlice = e.minSlice
	}
	return e
}

// SliceSize returns clamp(n/poolSize, minSize, maxSize).
func SliceSize(n, poolSize, minSize, maxSize int) int {
	if poolSize < 1 {
		poolSize = 1
	}
	return max(minSize, min(n/poolSize, maxSize))
}

// ComputeBatch evaluates reqs in parallel and returns one result per request
// in input order. A slice failure fails the whole call; no partial results
// are returned.
func (e *Executor) ComputeBatch(ctx context.Context, reqs []types.Request) ([]types.Result, error) {
	if len(reqs) == 0 {
		return []types.Result{}, nil
	}

	batchID := uuid.NewString()
	start := time.Now()
	size := SliceSize(len(reqs), e.pool.Size(), e.minSlice, e.maxSlice)

	futures := make([]*worker.Future[[]types.Result], 0, (len(reqs)+size-1)/size)
	for lo := 0; lo < len(reqs); lo += size {
		hi := min(lo+size, len(reqs))
		slice := reqs[lo:hi]
		f, err := worker.Submit(e.pool, func(c worker.Computer) ([]types.Result, error) {
			return e.runSlice(c, slice)
		})
		if err != nil {
			err = fmt.Errorf("failed to submit slice [%d:%d): %w", lo, hi, err)
			e.finish(batchID, len(reqs), 0, start, err)
			return nil, err
		}
		futures = append(futures, f)
	}

	out := make([]types.Result, 0, len(reqs))
	for i, f := range futures {
		res, err := f.Wait(ctx)
		if err != nil {
			err = fmt.Errorf("slice %d: %w", i, err)
			e.finish(batchID, len(reqs), 0, start, err)
			return nil, err
		}
		out = append(out, res...)
	}

	if len(out) != len(reqs) {
		err := fmt.Errorf("%w: %d requests, %d results", ErrResultCountMismatch, len(reqs), len(out))
		e.log.Error("Batch result count mismatch",
			"batch", batchID,
			"requests", len(reqs),
			"results", len(out))
		e.finish(batchID, len(reqs), 0, start, err)
		return nil, err
	}

	itemErrors := 0
	for _, r := range out {
		if !r.OK() {
			itemErrors++
		}
	}
	e.finish(batchID, len(reqs), itemErrors, start, nil)
	return out, nil
}

func (e *Executor) finish(batchID string, n, itemErrors int, start time.Time, err error) {
	d := time.Since(start)
	e.metrics.RecordBatch(n, itemErrors, d, err)
	if err != nil {
		e.log.Error("Batch failed",
			"batch", batchID,
			"requests", n,
			"duration", d,
			"error", err)
		return
	}
	e.log.Debug("Batch completed",
		"batch", batchID,
		"requests", n,
		"item_errors", itemErrors,
		"duration", d)
}

// computeSlice runs every request of a slice on c, in order.
func (e *Executor) computeSlice(c worker.Computer, reqs []types.Request) ([]types.Result, error) {
	out := make([]types.Result, len(reqs))
	for i, req := range reqs {
		res, err := c.Compute(req)
		if err != nil {
			return nil, err
		}
		if !res.OK() {
			e.log.Log(context.Background(), e.itemLevel, "Ephemeris computation failed",
				"body", ephemeris.BodyName(req.Target),
				"jd", req.JD,
				"code", res.ErrCode,
				"error", res.ErrMsg)
		}
		out[i] = res
	}
	return out, nil
}
