// ============================================================================
// Parabola CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra commands over the controller
//
// Command Structure:
//   parabola                       # Root command
//   ├── --config, -c               # YAML config file (default: built-in)
//   ├── tune                       # Offline thread-count autotune
//   │   ├── --ephe                 # Ephemeris data path
//   │   ├── --out                  # Artifact path
//   │   └── --max-threads          # Ceiling (default 2 x concurrency)
//   ├── compute                    # One batch from a JSON file
//   │   ├── --file, -f             # Request JSON
//   │   └── --out, -o              # Result JSON (default stdout)
//   ├── run                        # Sustained synthetic load
//   │   ├── --duration             # Stop after this long (0 = until signal)
//   │   └── --steps                # Time steps per batch (x10 bodies)
//   ├── status                     # Config, artifact and platform info
//   └── --version
//
// compute JSON format:
//   [ {"jd": 2451545.0, "target": 0, "flags": 256}, ... ]
//
// run Command:
//   1. Load config, start the controller
//   2. Serve /metrics if enabled
//   3. Watch the tuning artifact and resize live
//   4. Compute batches until SIGINT/SIGTERM or --duration
//   5. Shut down gracefully
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ChuLiYu/parabola/internal/config"
	"github.com/ChuLiYu/parabola/internal/controller"
	"github.com/ChuLiYu/parabola/internal/metrics"
	"github.com/ChuLiYu/parabola/internal/tuner"
	"github.com/ChuLiYu/parabola/internal/worker"
	"github.com/ChuLiYu/parabola/pkg/types"
	"github.com/spf13/cobra"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parabola",
		Short: "Parabola: a parallel ephemeris batch engine",
		Long: `Parabola evaluates planetary positions in parallel batches with:
- Workers pinned to OS threads, one per routine slot
- Order-preserving batch slicing
- Offline thread-count autotuning
- Prometheus metrics`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: built-in defaults)")

	rootCmd.AddCommand(buildTuneCommand())
	rootCmd.AddCommand(buildComputeCommand())
	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// loadConfig reads the config file and installs the configured log handler.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ============================================================================
// tune
// ============================================================================

func buildTuneCommand() *cobra.Command {
	var ephePath, outPath string
	var maxThreads int

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Find the best thread count and persist it",
		Long:  "Run the synthetic workload at increasing thread counts and write the tuning artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTune(cmd.Context(), cmd.OutOrStdout(), ephePath, outPath, maxThreads)
		},
	}

	cmd.Flags().StringVar(&ephePath, "ephe", "", "ephemeris data path (overrides config)")
	cmd.Flags().StringVar(&outPath, "out", "", "artifact path (overrides config)")
	cmd.Flags().IntVar(&maxThreads, "max-threads", 0, "highest thread count to try (default 2 x concurrency)")

	return cmd
}

func runTune(ctx context.Context, out io.Writer, ephePath, outPath string, maxThreads int) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if ephePath != "" {
		cfg.Ephemeris.DataPath = ephePath
	}
	if outPath != "" {
		cfg.Tuning.Artifact = outPath
	}
	// Tuning starts small and resizes upward
	cfg.Pool.ThreadCount = 1

	ctrl := controller.New(cfg, nil, controller.WithLogger(logger))
	defer ctrl.Shutdown()
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	report, err := ctrl.Tune(ctx, maxThreads)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Optimal thread count: %d (%.0f requests/sec)\n", report.Threads, report.Throughput)
	for _, s := range report.Samples {
		fmt.Fprintf(out, "  %3d threads: %.0f requests/sec\n", s.Threads, s.Throughput)
	}
	fmt.Fprintf(out, "Artifact written to %s\n", cfg.Tuning.Artifact)
	return nil
}

// ============================================================================
// compute
// ============================================================================

func buildComputeCommand() *cobra.Command {
	var inPath, outPath string

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute one batch from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(cmd.Context(), cmd.OutOrStdout(), inPath, outPath)
		},
	}

	cmd.Flags().StringVarP(&inPath, "file", "f", "", "request JSON file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "result JSON file (default stdout)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runCompute(ctx context.Context, stdout io.Writer, inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read request file: %w", err)
	}
	var reqs []types.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return fmt.Errorf("failed to parse request JSON: %w", err)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctrl := controller.New(cfg, nil, controller.WithLogger(logger))
	defer ctrl.Shutdown()
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	results, err := ctrl.ComputeBatch(ctx, reqs)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" {
		_, err = stdout.Write(encoded)
		return err
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	logger.Info("Results written", "path", outPath, "count", len(results))
	return nil
}

// ============================================================================
// run
// ============================================================================

func buildRunCommand() *cobra.Command {
	var duration time.Duration
	var steps int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a sustained synthetic load",
		Long:  "Compute synthetic batches continuously, serving metrics and following the tuning artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), cmd.OutOrStdout(), duration, steps)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until signal)")
	cmd.Flags().IntVar(&steps, "steps", 100, "time steps per batch (each evaluates 10 bodies)")

	return cmd
}

func runLoad(parent context.Context, out io.Writer, duration time.Duration, steps int) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctrl := controller.New(cfg, nil, controller.WithLogger(logger), controller.WithMetrics(collector))
	defer ctrl.Shutdown()
	if err := ctrl.Initialize(ctx); err != nil {
		return err
	}

	go func() {
		if err := ctrl.WatchArtifact(ctx); err != nil {
			logger.Warn("Artifact watch stopped", "error", err)
		}
	}()

	workload := tuner.Workload(steps)
	start := time.Now()
	batches, requests := 0, 0
	for ctx.Err() == nil {
		// Shift each batch forward so no two batches repeat
		reqs := make([]types.Request, len(workload))
		for i, req := range workload {
			req.JD += float64(batches)
			reqs[i] = req
		}
		results, err := ctrl.ComputeBatch(ctx, reqs)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		batches++
		requests += len(results)
	}

	elapsed := time.Since(start)
	logger.Info("Load stopped",
		"batches", batches,
		"requests", requests,
		"duration", elapsed)
	fmt.Fprintf(out, "Computed %d batches (%d requests) in %s\n", batches, requests, elapsed.Round(time.Millisecond))
	return nil
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and tuning status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.OutOrStdout())
		},
	}
	return cmd
}

func showStatus(out io.Writer) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintln(out, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║              Parabola Engine Status                       ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	source := configFile
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintln(out, "📋 Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:     %s\n", source)
	fmt.Fprintf(out, "  ├─ Data Path:       %s\n", cfg.Ephemeris.DataPath)
	fmt.Fprintf(out, "  ├─ Swevid Files:    %d\n", len(cfg.Ephemeris.SwevidFiles))
	fmt.Fprintf(out, "  ├─ Thread Count:    %d\n", cfg.Pool.ThreadCount)
	fmt.Fprintf(out, "  └─ Slice Size:      %d-%d\n", cfg.Batch.MinSlice, cfg.Batch.MaxSlice)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "⚙️  Platform:")
	fmt.Fprintf(out, "  └─ Platform concurrency: %d\n", worker.DefaultConcurrency())
	fmt.Fprintln(out)

	fmt.Fprintln(out, "🎯 Tuning Artifact:")
	a, ok, err := config.NewArtifactStore(cfg.Tuning.Artifact).Load()
	switch {
	case err != nil:
		fmt.Fprintf(out, "  └─ ❌ Unreadable: %v\n", err)
	case !ok:
		fmt.Fprintf(out, "  └─ Not tuned (run 'parabola tune' to create %s)\n", cfg.Tuning.Artifact)
	default:
		fmt.Fprintf(out, "  ├─ Path:          %s\n", cfg.Tuning.Artifact)
		fmt.Fprintf(out, "  ├─ Thread Count:  %d\n", a.ThreadCount)
		fmt.Fprintf(out, "  ├─ Throughput:    %.0f requests/sec\n", a.Throughput)
		fmt.Fprintf(out, "  └─ Tuned At:      %s\n", a.TunedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "📡 Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Fprintln(out, "  └─ Status: ⚠️  Disabled")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
	return nil
}
