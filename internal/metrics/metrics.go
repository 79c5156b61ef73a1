// ============================================================================
// Parabola Metrics - Prometheus Instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Expose worker pool, batch and tuning metrics for Prometheus.
//
// Metric groups:
//
//   1. Pool (RED/USE):
//      - parabola_tasks_submitted_total / completed_total / failed_total
//      - parabola_task_latency_seconds       slice execution time
//      - parabola_queue_depth                tasks waiting for a worker
//      - parabola_workers                    live worker goroutines
//      - parabola_pool_resizes_total
//
//   2. Batches:
//      - parabola_batches_total, parabola_batch_failures_total
//      - parabola_batch_requests_total       requests across all batches
//      - parabola_item_errors_total          per-item domain errors
//      - parabola_batch_latency_seconds
//
//   3. Tuning:
//      - parabola_tuning_throughput{threads} requests/sec per trial
//      - parabola_tuned_threads              last selected thread count
//
// Example queries:
//
//   # Requests per second
//   rate(parabola_batch_requests_total[1m])
//
//   # Per-item error ratio
//   rate(parabola_item_errors_total[5m]) / rate(parabola_batch_requests_total[5m])
//
//   # Backlog per worker
//   parabola_queue_depth / parabola_workers
//
// A nil *Collector is valid and records nothing, so components can run
// without instrumentation in tests.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds parabola's Prometheus metrics.
type Collector struct {
	// Pool
	tasksSubmitted prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	taskLatency    prometheus.Histogram
	queueDepth     prometheus.Gauge
	workers        prometheus.Gauge
	resizes        prometheus.Counter

	// Batches
	batches       prometheus.Counter
	batchFailures prometheus.Counter
	batchRequests prometheus.Counter
	itemErrors    prometheus.Counter
	batchLatency  prometheus.Histogram

	// Tuning
	tuningThroughput *prometheus.GaugeVec
	tunedThreads     prometheus.Gauge
}

// NewCollector creates a collector registered with the default registerer.
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer)
}

// NewCollectorWith creates a collector registered with reg.
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_tasks_submitted_total",
			Help: "Total number of tasks submitted to the worker pool",
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_tasks_completed_total",
			Help: "Total number of tasks completed without error",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_tasks_failed_total",
			Help: "Total number of tasks that returned an error or panicked",
		}),
		taskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parabola_task_latency_seconds",
			Help:    "Task execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parabola_queue_depth",
			Help: "Current number of queued tasks",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parabola_workers",
			Help: "Current number of live workers",
		}),
		resizes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_pool_resizes_total",
			Help: "Total number of completed pool resizes",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_batches_total",
			Help: "Total number of batch calls",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_batch_failures_total",
			Help: "Total number of batch calls that failed as a whole",
		}),
		batchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_batch_requests_total",
			Help: "Total number of requests received in batches",
		}),
		itemErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parabola_item_errors_total",
			Help: "Total number of results carrying a negative error code",
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parabola_batch_latency_seconds",
			Help:    "Batch call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		tuningThroughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parabola_tuning_throughput",
			Help: "Measured requests per second per autotuning trial",
		}, []string{"threads"}),
		tunedThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parabola_tuned_threads",
			Help: "Thread count selected by the last autotuning run",
		}),
	}

	reg.MustRegister(
		c.tasksSubmitted,
		c.tasksCompleted,
		c.tasksFailed,
		c.taskLatency,
		c.queueDepth,
		c.workers,
		c.resizes,
		c.batches,
		c.batchFailures,
		c.batchRequests,
		c.itemErrors,
		c.batchLatency,
		c.tuningThroughput,
		c.tunedThreads,
	)

	return c
}

// RecordSubmit records a task entering the queue.
func (c *Collector) RecordSubmit(depth int) {
	if c == nil {
		return
	}
	c.tasksSubmitted.Inc()
	c.queueDepth.Set(float64(depth))
}

// RecordDequeue records a worker claiming a task.
func (c *Collector) RecordDequeue(depth int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
}

// RecordTask records a finished task.
func (c *Collector) RecordTask(d time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.tasksFailed.Inc()
	} else {
		c.tasksCompleted.Inc()
	}
	c.taskLatency.Observe(d.Seconds())
}

// SetWorkers records the live worker count.
func (c *Collector) SetWorkers(n int) {
	if c == nil {
		return
	}
	c.workers.Set(float64(n))
}

// RecordResize records a completed resize.
func (c *Collector) RecordResize() {
	if c == nil {
		return
	}
	c.resizes.Inc()
}

// RecordBatch records a batch call of size requests.
func (c *Collector) RecordBatch(size, itemErrors int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.batches.Inc()
	c.batchRequests.Add(float64(size))
	if err != nil {
		c.batchFailures.Inc()
		return
	}
	c.itemErrors.Add(float64(itemErrors))
	c.batchLatency.Observe(d.Seconds())
}

// RecordTrial records one autotuning trial.
func (c *Collector) RecordTrial(threads int, throughput float64) {
	if c == nil {
		return
	}
	c.tuningThroughput.WithLabelValues(strconv.Itoa(threads)).Set(throughput)
}

// SetTunedThreads records the autotuner's selection.
func (c *Collector) SetTunedThreads(n int) {
	if c == nil {
		return
	}
	c.tunedThreads.Set(float64(n))
}

// StartServer serves /metrics on port until ctx is cancelled.
func StartServer(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
