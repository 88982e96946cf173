package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
)

func TestExporterServesLedgerCounts(t *testing.T) {
	logging.Discard()

	base := filepath.Join(t.TempDir(), "exported")
	l, err := transaction.Create(base)
	require.NoError(t, err)
	x1, _ := l.Begin()
	_, _ = l.Begin()
	require.NoError(t, l.Commit(x1))
	require.NoError(t, l.Close())

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewLedgerCollector(snapshotSource(base)))

	expected := `
# HELP txkernel_ledger_transactions Transactions recorded in the ledger by status.
# TYPE txkernel_ledger_transactions gauge
txkernel_ledger_transactions{status="aborted"} 0
txkernel_ledger_transactions{status="active"} 1
txkernel_ledger_transactions{status="committed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "txkernel_ledger_transactions"))

	srv := httptest.NewServer(newMux(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "txkernel_ledger_xid_counter 2")

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/var/lib/txkernel")
	t.Setenv("LEDGER_NAME", "main")
	t.Setenv("METRICS_ADDR", ":9999")

	cfg := loadConfig()
	assert.Equal(t, filepath.Join("/var/lib/txkernel", "main.xid"), cfg.LedgerPath())
	assert.Equal(t, ":9999", cfg.MetricsAddr)
}
