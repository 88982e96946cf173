package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/config"
	"txkernel/pkg/kernel"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

// snapshotSource reads ledger counts from disk on every scrape.
func snapshotSource(path string) func() (metrics.LedgerCounts, error) {
	return func() (metrics.LedgerCounts, error) {
		snap, err := transaction.Inspect(path)
		if err != nil {
			return metrics.LedgerCounts{}, err
		}
		return snap.Counts(), nil
	}
}

// newMux serves /metrics from reg and a /health probe.
func newMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// simulate runs a small transaction every interval until ctx ends.
func simulate(ctx context.Context, k *kernel.Kernel, interval time.Duration) {
	log := logging.WithComponent("simulation")
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		xid, err := k.Begin()
		if err != nil {
			log.Error("begin failed", "error", err)
			continue
		}
		if err := k.Acquire(ctx, xid, primitives.ResourceID(rng.Intn(8)+1)); err != nil {
			log.Warn("acquire failed", "xid", uint64(xid), "error", err)
			_ = k.Abort(xid)
			continue
		}
		if rng.Intn(10) == 0 {
			_ = k.Abort(xid)
		} else {
			_ = k.Commit(xid)
		}
	}
}

// loadConfig starts from the defaults and applies DATA_DIR, LEDGER_NAME,
// METRICS_ADDR and LOG_LEVEL.
func loadConfig() config.Config {
	cfg := config.Default()
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LEDGER_NAME"); v != "" {
		cfg.LedgerName = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg
}

func main() {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Logging()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Close()

	log := logging.WithComponent("exporter")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewLedgerCollector(snapshotSource(cfg.LedgerPath())),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIMULATE drives a kernel against the ledger so the dashboards have
	// traffic to show. Its live counters are exported next to the snapshot.
	if on, _ := strconv.ParseBool(os.Getenv("SIMULATE")); on {
		k, err := kernel.Open(cfg, metrics.New(reg))
		if err != nil {
			log.Error("failed to open kernel", "error", err)
			os.Exit(1)
		}
		defer k.Close()
		go simulate(ctx, k, time.Second)
	}

	srv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      newMux(reg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info("serving metrics", "addr", cfg.MetricsAddr, "ledger", cfg.LedgerPath())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server failed", "error", err)
	}
}
