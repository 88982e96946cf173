package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerCounts is what a ledger snapshot reports.
type LedgerCounts struct {
	Counter   uint64
	Active    uint64
	Committed uint64
	Aborted   uint64
}

// LedgerCollector reports ledger file contents on every scrape. The source is
// called once per Collect; an error is reported as an invalid metric.
type LedgerCollector struct {
	source func() (LedgerCounts, error)

	counter *prometheus.Desc
	status  *prometheus.Desc
}

// NewLedgerCollector builds a collector around source.
func NewLedgerCollector(source func() (LedgerCounts, error)) *LedgerCollector {
	return &LedgerCollector{
		source: source,
		counter: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "xid_counter"),
			"Highest transaction id issued.", nil, nil,
		),
		status: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ledger", "transactions"),
			"Transactions recorded in the ledger by status.", []string{"status"}, nil,
		),
	}
}

func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counter
	ch <- c.status
}

func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.source()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.counter, err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.counter, prometheus.GaugeValue, float64(counts.Counter))
	ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, float64(counts.Active), "active")
	ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, float64(counts.Committed), "committed")
	ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, float64(counts.Aborted), "aborted")
}
