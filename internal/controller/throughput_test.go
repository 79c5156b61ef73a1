package controller

// ============================================================================
// Throughput tests
//
// TestSystemThroughput:
//   - the 10 000-request tuning workload on platform concurrency
//   - every result succeeds and the rate is logged
//
// BenchmarkComputeBatch:
//   - one 1000-request batch per iteration, 4 workers
// ============================================================================

import (
	"context"
	"testing"
	"time"

	"github.com/ChuLiYu/parabola/internal/config"
	"github.com/ChuLiYu/parabola/internal/tuner"
)

func TestSystemThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping throughput test in short mode")
	}

	ctrl := createTestController(t, testConfig(t))
	reqs := tuner.Workload(tuner.DefaultWorkloadSize)

	startTime := time.Now()
	out, err := ctrl.ComputeBatch(context.Background(), reqs)
	elapsedTime := time.Since(startTime)
	if err != nil {
		t.Fatalf("Failed to compute batch: %v", err)
	}
	if len(out) != len(reqs) {
		t.Fatalf("Got %d results for %d requests", len(out), len(reqs))
	}

	failed := 0
	for _, r := range out {
		if !r.OK() {
			failed++
		}
	}

	t.Logf("=== Throughput Test Results ===")
	t.Logf("Requests: %d", len(reqs))
	t.Logf("Workers: %v", ctrl.Stats()["workers"])
	t.Logf("Elapsed time: %v", elapsedTime)
	t.Logf("Throughput: %.0f requests/second", float64(len(reqs))/elapsedTime.Seconds())
	t.Logf("===============================")

	if failed > 0 {
		t.Errorf("%d of %d requests failed", failed, len(reqs))
	}
}

func BenchmarkComputeBatch(b *testing.B) {
	cfg := config.Default()
	cfg.Tuning.Artifact = ""
	cfg.Pool.ThreadCount = 4

	ctrl := New(cfg, nil)
	if err := ctrl.Initialize(context.Background()); err != nil {
		b.Fatalf("Failed to initialize controller: %v", err)
	}
	defer ctrl.Shutdown()

	reqs := tuner.Workload(100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ctrl.ComputeBatch(context.Background(), reqs); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	b.ReportMetric(float64(len(reqs)*b.N)/b.Elapsed().Seconds(), "requests/s")
}
