package lock

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	dberror "txkernel/pkg/error"
	"txkernel/pkg/primitives"
)

// Transactions grab random resources in random order; every one must either
// finish or be refused with a deadlock, and the table must end up empty.
func TestTable_ConcurrentWorkload(t *testing.T) {
	table := NewTable()

	const workers = 12
	const txnsPerWorker = 30
	const resources = 6

	var nextXID atomic.Uint64
	var deadlocks atomic.Int64

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		seed := int64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < txnsPerWorker; i++ {
				xid := primitives.XID(nextXID.Add(1))
				err := runTxn(ctx, table, xid, rng, resources)
				table.Remove(xid)

				switch {
				case err == nil:
				case errors.Is(err, dberror.ErrDeadlock):
					deadlocks.Add(1)
				default:
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("workload failed: %v", err)
	}

	stats := table.Stats()
	if stats.Holders != 0 || stats.Owned != 0 || stats.Waiting != 0 || stats.Queues != 0 {
		t.Fatalf("table not empty after workload: %+v", stats)
	}
	if int64(stats.Deadlocks) != deadlocks.Load() {
		t.Errorf("Expected %d deadlocks in stats, got %d", deadlocks.Load(), stats.Deadlocks)
	}
}

func runTxn(ctx context.Context, table *Table, xid primitives.XID, rng *rand.Rand, resources int) error {
	for _, uid := range rng.Perm(resources)[:3] {
		res, err := table.Add(xid, primitives.ResourceID(uid+1))
		if err != nil {
			return err
		}
		if res.Outcome == MustWait {
			if err := res.Waiter.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
