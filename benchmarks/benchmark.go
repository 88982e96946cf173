package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"txkernel/pkg/concurrency/lock"
	"txkernel/pkg/config"
	"txkernel/pkg/kernel"
	"txkernel/pkg/logging"
	"txkernel/pkg/primitives"
)

// BenchmarkResult captures timing statistics for one benchmarked operation.
type BenchmarkResult struct {
	Operation      string        `json:"operation"`
	Iterations     int           `json:"iterations"`
	Concurrency    int           `json:"concurrency"`
	TotalDuration  time.Duration `json:"total_duration_ns"`
	AvgDuration    time.Duration `json:"avg_duration_ns"`
	MinDuration    time.Duration `json:"min_duration_ns"`
	MaxDuration    time.Duration `json:"max_duration_ns"`
	MedianDuration time.Duration `json:"median_duration_ns"`
	P95Duration    time.Duration `json:"p95_duration_ns"`
	P99Duration    time.Duration `json:"p99_duration_ns"`
	OpsPerSecond   float64       `json:"ops_per_second"`
	SuccessCount   int           `json:"success_count"`
	ErrorCount     int           `json:"error_count"`
	ErrorSamples   []string      `json:"error_samples"`
	Timestamp      time.Time     `json:"timestamp"`
}

// BenchmarkReport aggregates every result of one run.
type BenchmarkReport struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	LedgerPath    string            `json:"ledger_path"`
	Results       []BenchmarkResult `json:"results"`
}

// benchmark is one operation under test. run returns the error of a single
// iteration; i is unique per iteration.
type benchmark struct {
	name string
	run  func(ctx context.Context, i int) error
}

// main runs the suite and writes a JSON report.
//
// Environment variables:
//   - BENCHMARK_OUTPUT: directory for reports (default: ./benchmark-results)
//   - BENCHMARK_ITERATIONS: iterations per benchmark (default: 2000)
//   - BENCHMARK_CONCURRENCY: parallel workers for concurrent runs (default: 8)
//   - DATA_DIR: directory of the benchmark ledger (default: a temp dir)
func main() {
	outputDir := filepath.Clean(os.Getenv("BENCHMARK_OUTPUT"))
	if outputDir == "." {
		outputDir = "./benchmark-results"
	}
	iterations := envInt("BENCHMARK_ITERATIONS", 2000)
	concurrency := envInt("BENCHMARK_CONCURRENCY", 8)

	cfg := config.Default()
	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		dir, err := os.MkdirTemp("", "txkernel-bench-")
		if err != nil {
			fail("failed to create temp dir", err)
		}
		defer os.RemoveAll(dir)
		cfg.DataDir = dir
	}
	cfg.LedgerName = fmt.Sprintf("bench-%d", time.Now().UnixNano())

	_ = os.MkdirAll(outputDir, 0o750) // #nosec G703

	log := logging.WithComponent("benchmark")
	log.Info("starting benchmark suite", "iterations", iterations, "concurrency", concurrency)

	k, err := kernel.Open(cfg, nil)
	if err != nil {
		fail("failed to open kernel", err)
	}
	defer k.Close()

	report := BenchmarkReport{
		StartTime:  time.Now(),
		LedgerPath: cfg.LedgerPath(),
	}

	for _, bench := range suite(k) {
		log.Info("running", "benchmark", bench.name)

		seq := runBenchmark(bench, iterations, 1)
		report.Results = append(report.Results, seq)
		printBenchmarkResult(seq)

		conc := runBenchmark(bench, iterations, concurrency)
		report.Results = append(report.Results, conc)
		printBenchmarkResult(conc)
	}

	report.EndTime = time.Now()
	report.TotalDuration = report.EndTime.Sub(report.StartTime)

	jsonFile := filepath.Join(outputDir, fmt.Sprintf("benchmark_report_%s.json", time.Now().Format("20060102_150405")))
	if err := saveJSONReport(report, jsonFile); err != nil {
		fail("failed to save report", err)
	}
	log.Info("benchmark suite complete", "duration", formatDuration(report.TotalDuration), "report", jsonFile)
}

// suite lists the benchmarked operations. Ledger operations pay one fsync
// each; lock table operations are purely in memory.
func suite(k *kernel.Kernel) []benchmark {
	table := lock.NewTable()
	var lockXID atomic.Uint64

	return []benchmark{
		{"Begin+Commit", func(ctx context.Context, i int) error {
			xid, err := k.Begin()
			if err != nil {
				return err
			}
			return k.Commit(xid)
		}},
		{"Begin+Abort", func(ctx context.Context, i int) error {
			xid, err := k.Begin()
			if err != nil {
				return err
			}
			return k.Abort(xid)
		}},
		{"Status (cached)", func(ctx context.Context, i int) error {
			_, err := k.Status(primitives.XID(i%int(max(k.Ledger().Counter(), 1)) + 1))
			return err
		}},
		{"Lock Add+Remove (uncontended)", func(ctx context.Context, i int) error {
			xid := primitives.XID(lockXID.Add(1))
			if _, err := table.Add(xid, primitives.ResourceID(xid)); err != nil {
				return err
			}
			table.Remove(xid)
			return nil
		}},
		{"Acquire (contended, 4 resources)", func(ctx context.Context, i int) error {
			xid, err := k.Begin()
			if err != nil {
				return err
			}
			if err := k.Acquire(ctx, xid, primitives.ResourceID(i%4+1)); err != nil {
				_ = k.Abort(xid)
				return err
			}
			return k.Commit(xid)
		}},
	}
}

// runBenchmark executes bench iterations times with at most concurrent
// iterations in flight.
func runBenchmark(bench benchmark, iterations, concurrent int) BenchmarkResult {
	durations := make([]time.Duration, 0, iterations)
	var mu sync.Mutex

	successCount := 0
	errorCount := 0
	errorSamples := make([]string, 0, 5)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(concurrent)

	startTime := time.Now()
	for i := 0; i < iterations; i++ {
		i := i
		g.Go(func() error {
			opStart := time.Now()
			err := bench.run(ctx, i)
			duration := time.Since(opStart)

			mu.Lock()
			defer mu.Unlock()
			durations = append(durations, duration)
			if err != nil {
				errorCount++
				if len(errorSamples) < 5 {
					errorSamples = append(errorSamples, err.Error())
				}
			} else {
				successCount++
			}
			return nil
		})
	}
	_ = g.Wait()
	totalDuration := time.Since(startTime)

	name := bench.name
	if concurrent > 1 {
		name += " (Concurrent)"
	}
	result := BenchmarkResult{
		Operation:     name,
		Iterations:    iterations,
		Concurrency:   concurrent,
		TotalDuration: totalDuration,
		SuccessCount:  successCount,
		ErrorCount:    errorCount,
		ErrorSamples:  errorSamples,
		Timestamp:     time.Now(),
	}
	if len(durations) == 0 {
		return result
	}

	slices.Sort(durations)
	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	result.AvgDuration = sum / time.Duration(len(durations))
	result.MinDuration = durations[0]
	result.MaxDuration = durations[len(durations)-1]
	result.MedianDuration = percentile(durations, 0.50)
	result.P95Duration = percentile(durations, 0.95)
	result.P99Duration = percentile(durations, 0.99)
	result.OpsPerSecond = float64(iterations) / totalDuration.Seconds()
	return result
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// formatDuration formats a duration in a human-readable way with appropriate units.
// Examples: 1.23ms, 456.78µs, 12.34s
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

func printBenchmarkResult(result BenchmarkResult) {
	successRate := 0.0
	if result.Iterations > 0 {
		successRate = float64(result.SuccessCount) / float64(result.Iterations) * 100
	}

	fmt.Printf("  ┌─ %s\n", result.Operation)
	fmt.Printf("  │  Total Time:        %s\n", formatDuration(result.TotalDuration))
	fmt.Printf("  │  Avg per Op:        %s\n", formatDuration(result.AvgDuration))
	fmt.Printf("  │  Min / Max:         %s / %s\n", formatDuration(result.MinDuration), formatDuration(result.MaxDuration))
	fmt.Printf("  │  Median (P50):      %s\n", formatDuration(result.MedianDuration))
	fmt.Printf("  │  P95 / P99:         %s / %s\n", formatDuration(result.P95Duration), formatDuration(result.P99Duration))
	fmt.Printf("  │  Throughput:        %.0f ops/sec\n", result.OpsPerSecond)
	fmt.Printf("  │  Success Rate:      %.1f%% (%d/%d)\n", successRate, result.SuccessCount, result.Iterations)

	for i, msg := range result.ErrorSamples {
		if i == 3 {
			fmt.Printf("  │     ... and %d more error(s)\n", len(result.ErrorSamples)-3)
			break
		}
		fmt.Printf("  │  ⚠ %s\n", strings.NewReplacer("\n", " ", "\r", " ").Replace(msg))
	}
	fmt.Println("  └─")
}

func saveJSONReport(report BenchmarkReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func fail(msg string, err error) {
	logging.Error(msg, "error", err)
	os.Exit(1)
}
