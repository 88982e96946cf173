package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBegin()
	m.ObserveCommit()
	m.ObserveAbort()
	m.ObserveSync(time.Now())
	m.ObserveGrant(GrantImmediate)
	m.ObserveWait()
	m.ObserveWake(true)
	m.ObserveDeadlock()
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBegin()
	m.ObserveBegin()
	m.ObserveCommit()
	m.ObserveGrant(GrantHandoff)
	m.ObserveWait()
	m.ObserveWait()
	m.ObserveWake(false)
	m.ObserveWake(true)
	m.ObserveDeadlock()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Begins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Aborts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Grants.WithLabelValues(GrantHandoff)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Waits))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Waiting))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbortedWaits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deadlocks))
}

func TestLedgerCollector(t *testing.T) {
	c := NewLedgerCollector(func() (LedgerCounts, error) {
		return LedgerCounts{Counter: 5, Active: 1, Committed: 3, Aborted: 1}, nil
	})

	expected := `
# HELP txkernel_ledger_xid_counter Highest transaction id issued.
# TYPE txkernel_ledger_xid_counter gauge
txkernel_ledger_xid_counter 5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "txkernel_ledger_xid_counter"))
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestLedgerCollectorError(t *testing.T) {
	c := NewLedgerCollector(func() (LedgerCounts, error) {
		return LedgerCounts{}, errors.New("unreadable")
	})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	_, err := reg.Gather()
	assert.Error(t, err)
}
