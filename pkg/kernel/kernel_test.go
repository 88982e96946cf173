package kernel

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/config"
	dberror "txkernel/pkg/error"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

func TestMain(m *testing.M) {
	logging.Discard()
	os.Exit(m.Run())
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	return cfg
}

// setupTestKernel opens a kernel in a temp directory.
func setupTestKernel(t *testing.T) (*Kernel, func()) {
	t.Helper()
	k, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	return k, func() { _ = k.Close() }
}

func TestOpen_CreatesThenReopens(t *testing.T) {
	cfg := testConfig(t)

	k, err := Open(cfg, nil)
	require.NoError(t, err)
	x1, err := k.Begin()
	require.NoError(t, err)
	require.NoError(t, k.Commit(x1))
	require.NoError(t, k.Close())

	k, err = Open(cfg, nil)
	require.NoError(t, err)
	defer k.Close()

	status, err := k.Status(x1)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCommitted, status)

	x2, err := k.Begin()
	require.NoError(t, err)
	assert.Equal(t, primitives.XID(2), x2)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.LedgerName = ""
	_, err := Open(cfg, nil)
	assert.Error(t, err)
}

func TestOpen_AbortsOrphans(t *testing.T) {
	cfg := testConfig(t)

	k, err := Open(cfg, nil)
	require.NoError(t, err)
	done, _ := k.Begin()
	orphan, _ := k.Begin()
	require.NoError(t, k.Commit(done))
	require.NoError(t, k.Close())

	cfg.AbortOrphans = false
	k, err = Open(cfg, nil)
	require.NoError(t, err)
	status, _ := k.Status(orphan)
	assert.Equal(t, transaction.StatusActive, status, "left alone when disabled")
	require.NoError(t, k.Close())

	cfg.AbortOrphans = true
	k, err = Open(cfg, nil)
	require.NoError(t, err)
	defer k.Close()

	status, _ = k.Status(orphan)
	assert.Equal(t, transaction.StatusAborted, status)
	status, _ = k.Status(done)
	assert.Equal(t, transaction.StatusCommitted, status)
}

func TestEndToEnd(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()

	x1, err := k.Begin()
	require.NoError(t, err)
	x2, err := k.Begin()
	require.NoError(t, err)
	assert.Equal(t, primitives.XID(1), x1)
	assert.Equal(t, primitives.XID(2), x2)

	require.NoError(t, k.Acquire(context.Background(), x1, 100))

	acquired := make(chan error, 1)
	go func() {
		acquired <- k.Acquire(context.Background(), x2, 100)
	}()

	require.Eventually(t, func() bool {
		_, waiting := k.Table().WaitingFor(x2)
		return waiting
	}, time.Second, time.Millisecond)

	require.NoError(t, k.Commit(x1))

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("x2 was not woken by x1's commit")
	}

	owner, _ := k.Table().Owner(100)
	assert.Equal(t, x2, owner)
	assert.True(t, k.Ledger().IsCommitted(x1))
	assert.True(t, k.Ledger().IsActive(x2))
}

func TestAcquire_DeadlockAbortsVictim(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()
	ctx := context.Background()

	x1, _ := k.Begin()
	x2, _ := k.Begin()
	require.NoError(t, k.Acquire(ctx, x1, 1))
	require.NoError(t, k.Acquire(ctx, x2, 2))

	waited := make(chan error, 1)
	go func() {
		waited <- k.Acquire(ctx, x1, 2)
	}()
	require.Eventually(t, func() bool {
		_, waiting := k.Table().WaitingFor(x1)
		return waiting
	}, time.Second, time.Millisecond)

	err := k.Acquire(ctx, x2, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, dberror.ErrDeadlock))

	// the victim is aborted and its resource went to x1
	assert.True(t, k.Ledger().IsAborted(x2))
	require.NoError(t, <-waited)
	owner, _ := k.Table().Owner(2)
	assert.Equal(t, x1, owner)

	info := k.GetStatistics()
	assert.Equal(t, int64(1), info.Deadlocks)
	assert.Equal(t, int64(1), info.Aborts)
}

func TestAcquire_AbortedWhileWaiting(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()
	ctx := context.Background()

	x1, _ := k.Begin()
	x2, _ := k.Begin()
	require.NoError(t, k.Acquire(ctx, x1, 1))

	waited := make(chan error, 1)
	go func() {
		waited <- k.Acquire(ctx, x2, 1)
	}()
	require.Eventually(t, func() bool {
		_, waiting := k.Table().WaitingFor(x2)
		return waiting
	}, time.Second, time.Millisecond)

	require.NoError(t, k.Abort(x2))

	err := <-waited
	assert.True(t, errors.Is(err, dberror.ErrAbortedWhileWaiting))
	assert.Equal(t, int64(1), k.GetStatistics().AbortedWaits)

	// x1 still owns the resource, and x2 never gets it
	require.NoError(t, k.Commit(x1))
	_, owned := k.Table().Owner(1)
	assert.False(t, owned)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()

	x1, _ := k.Begin()
	x2, _ := k.Begin()
	require.NoError(t, k.Acquire(context.Background(), x1, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := k.Acquire(ctx, x2, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	require.NoError(t, k.Abort(x2))
	_, waiting := k.Table().WaitingFor(x2)
	assert.False(t, waiting)
}

func TestAcquire_FinishedTransaction(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()
	ctx := context.Background()

	x1, _ := k.Begin()
	require.NoError(t, k.Commit(x1))

	err := k.Acquire(ctx, x1, 1)
	assert.True(t, errors.Is(err, dberror.ErrIllegalTransition))

	err = k.Acquire(ctx, 42, 1)
	assert.True(t, errors.Is(err, dberror.ErrUnknownXID))

	require.NoError(t, k.Acquire(ctx, primitives.SuperXID, 1))
	_, owned := k.Table().Owner(1)
	assert.False(t, owned)
}

func TestAcquire_FinishedBetweenCheckAndAdd(t *testing.T) {
	tests := []struct {
		name   string
		finish func(k *Kernel, xid primitives.XID) error
		held   bool
	}{
		{"abort on free resource", (*Kernel).Abort, false},
		{"abort on held resource", (*Kernel).Abort, true},
		{"commit on free resource", (*Kernel).Commit, false},
		{"commit on held resource", (*Kernel).Commit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, cleanup := setupTestKernel(t)
			defer cleanup()
			ctx := context.Background()

			holder, _ := k.Begin()
			x, _ := k.Begin()
			if tt.held {
				require.NoError(t, k.Acquire(ctx, holder, 1))
			}

			k.knobs.afterActiveCheck = func(xid primitives.XID) {
				if xid == x {
					require.NoError(t, tt.finish(k, x))
				}
			}

			err := k.Acquire(ctx, x, 1)
			assert.True(t, errors.Is(err, dberror.ErrIllegalTransition), "got %v", err)

			assert.Empty(t, k.Table().HeldBy(x))
			assert.Empty(t, k.Table().Waiting(1))
			_, waiting := k.Table().WaitingFor(x)
			assert.False(t, waiting)

			owner, owned := k.Table().Owner(1)
			if tt.held {
				require.True(t, owned)
				assert.Equal(t, holder, owner)
				require.NoError(t, k.Commit(holder))
			}
			_, owned = k.Table().Owner(1)
			assert.False(t, owned)
		})
	}
}

func TestCommit_KeepsLocksWhenLedgerRefuses(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()

	x1, _ := k.Begin()
	require.NoError(t, k.Acquire(context.Background(), x1, 5))

	err := k.Commit(42)
	assert.True(t, errors.Is(err, dberror.ErrUnknownXID))

	require.NoError(t, k.Abort(x1))
	err = k.Commit(x1)
	assert.True(t, errors.Is(err, dberror.ErrIllegalTransition))
	_, owned := k.Table().Owner(5)
	assert.False(t, owned)
}

func TestClose(t *testing.T) {
	k, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, k.Close())

	_, err = k.Begin()
	assert.True(t, errors.Is(err, dberror.ErrLedgerClosed))
	assert.True(t, errors.Is(k.Close(), dberror.ErrLedgerClosed))
}

func TestKernelMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	k, err := Open(testConfig(t), m)
	require.NoError(t, err)
	defer k.Close()

	x1, _ := k.Begin()
	require.NoError(t, k.Acquire(context.Background(), x1, 1))
	require.NoError(t, k.Commit(x1))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Begins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Grants.WithLabelValues(metrics.GrantImmediate)))
}

// Workers run short transactions over a small resource pool. Each transaction
// ends committed or as a deadlock victim, and nothing stays locked.
func TestConcurrency_Workload(t *testing.T) {
	k, cleanup := setupTestKernel(t)
	defer cleanup()

	const workers = 8
	const txnsPerWorker = 25

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		seed := int64(w + 1)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < txnsPerWorker; i++ {
				xid, err := k.Begin()
				if err != nil {
					return err
				}

				failed := false
				for _, r := range rng.Perm(5)[:3] {
					err := k.Acquire(ctx, xid, primitives.ResourceID(r+1))
					if errors.Is(err, dberror.ErrDeadlock) {
						failed = true
						break
					}
					if err != nil {
						return err
					}
				}
				if failed {
					continue
				}
				if err := k.Commit(xid); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	info := k.GetStatistics()
	assert.Equal(t, int64(workers*txnsPerWorker), info.Begins)
	assert.Equal(t, info.Begins, info.Commits+info.Aborts)
	assert.Equal(t, info.Deadlocks, info.Aborts)
	assert.Equal(t, 0, info.Locks.Owned)
	assert.Equal(t, 0, info.Locks.Waiting)

	active, err := k.Ledger().ActiveXIDs()
	require.NoError(t, err)
	assert.Empty(t, active)
}
