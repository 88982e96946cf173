// Package metrics exposes Prometheus collectors for the ledger and the lock
// table. Every method is safe to call on a nil *Metrics, so components can be
// built without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "txkernel"

// Grant kinds reported by the lock table.
const (
	GrantImmediate = "immediate"
	GrantReentrant = "reentrant"
	GrantHandoff   = "handoff"
)

// Metrics bundles all kernel collectors.
type Metrics struct {
	Begins       prometheus.Counter
	Commits      prometheus.Counter
	Aborts       prometheus.Counter
	SyncDuration prometheus.Histogram

	Grants       *prometheus.CounterVec
	Waits        prometheus.Counter
	Deadlocks    prometheus.Counter
	AbortedWaits prometheus.Counter
	Waiting      prometheus.Gauge
}

// New registers a fresh set of collectors with reg. Pass a new
// prometheus.Registry in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Begins: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "begins_total",
			Help: "Transactions started.",
		}),
		Commits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "commits_total",
			Help: "Transactions committed.",
		}),
		Aborts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "aborts_total",
			Help: "Transactions aborted.",
		}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ledger", Name: "sync_seconds",
			Help:    "Latency of forced ledger writes.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Grants: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock", Name: "grants_total",
			Help: "Resource grants by kind.",
		}, []string{"kind"}),
		Waits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock", Name: "waits_total",
			Help: "Requests told to wait.",
		}),
		Deadlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock", Name: "deadlocks_total",
			Help: "Requests refused because waiting would cycle.",
		}),
		AbortedWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lock", Name: "aborted_waits_total",
			Help: "Waiters failed because their transaction ended first.",
		}),
		Waiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "lock", Name: "waiting",
			Help: "Transactions currently blocked on a resource.",
		}),
	}
}

func (m *Metrics) ObserveBegin() {
	if m != nil {
		m.Begins.Inc()
	}
}

func (m *Metrics) ObserveCommit() {
	if m != nil {
		m.Commits.Inc()
	}
}

func (m *Metrics) ObserveAbort() {
	if m != nil {
		m.Aborts.Inc()
	}
}

// ObserveSync records how long a forced write took.
func (m *Metrics) ObserveSync(start time.Time) {
	if m != nil {
		m.SyncDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveGrant(kind string) {
	if m != nil {
		m.Grants.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveWait() {
	if m != nil {
		m.Waits.Inc()
		m.Waiting.Inc()
	}
}

// ObserveWake is called when a waiter leaves the queue, granted or not.
func (m *Metrics) ObserveWake(aborted bool) {
	if m == nil {
		return
	}
	m.Waiting.Dec()
	if aborted {
		m.AbortedWaits.Inc()
	}
}

func (m *Metrics) ObserveDeadlock() {
	if m != nil {
		m.Deadlocks.Inc()
	}
}
