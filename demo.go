package main

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"txkernel/pkg/config"
	"txkernel/pkg/debug/ui"
	dberror "txkernel/pkg/error"
	"txkernel/pkg/kernel"
	"txkernel/pkg/primitives"
)

type demoOptions struct {
	Workers      int
	Transactions int
	Resources    int
	PerTxn       int
	Hold         time.Duration
	Seed         int64
}

func newDemoCommand(cfg *config.Config) *cobra.Command {
	opts := demoOptions{
		Workers:      8,
		Transactions: 50,
		Resources:    6,
		PerTxn:       3,
		Hold:         time.Millisecond,
		Seed:         time.Now().UnixNano(),
	}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a concurrent workload that provokes deadlocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.PerTxn > opts.Resources {
				return errors.Newf("--per-txn (%d) exceeds --resources (%d)", opts.PerTxn, opts.Resources)
			}

			k, err := kernel.Open(*cfg, nil)
			if err != nil {
				return err
			}
			defer k.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, banner())

			start := time.Now()
			if err := runDemo(cmd.Context(), k, opts); err != nil {
				return err
			}

			info := k.GetStatistics()
			rows := [][]string{
				{"ledger", info.LedgerPath},
				{"counter", strconv.FormatUint(info.Counter, 10)},
				{"begins", strconv.FormatInt(info.Begins, 10)},
				{"commits", strconv.FormatInt(info.Commits, 10)},
				{"aborts", strconv.FormatInt(info.Aborts, 10)},
				{"deadlocks", strconv.FormatInt(info.Deadlocks, 10)},
				{"lock waits", strconv.FormatUint(info.Locks.Waits, 10)},
				{"handoffs", strconv.FormatUint(info.Locks.Handoffs, 10)},
				{"elapsed", time.Since(start).Round(time.Millisecond).String()},
			}
			fmt.Fprint(out, ui.RenderTable([]string{"METRIC", "VALUE"}, rows, -1))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Workers, "workers", opts.Workers, "concurrent clients")
	f.IntVar(&opts.Transactions, "txns", opts.Transactions, "transactions per client")
	f.IntVar(&opts.Resources, "resources", opts.Resources, "size of the shared resource pool")
	f.IntVar(&opts.PerTxn, "per-txn", opts.PerTxn, "resources each transaction acquires")
	f.DurationVar(&opts.Hold, "hold", opts.Hold, "time spent holding resources before commit")
	f.Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	return cmd
}

// runDemo drives the kernel the way a data layer would: acquire a few
// resources in random order, hold them, commit. Deadlock victims are already
// aborted by the kernel and simply move on.
func runDemo(ctx context.Context, k *kernel.Kernel, opts demoOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		rng := rand.New(rand.NewSource(opts.Seed + int64(w)))
		g.Go(func() error {
			for i := 0; i < opts.Transactions; i++ {
				if err := demoTxn(ctx, k, rng, opts); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func demoTxn(ctx context.Context, k *kernel.Kernel, rng *rand.Rand, opts demoOptions) error {
	xid, err := k.Begin()
	if err != nil {
		return err
	}

	for _, r := range rng.Perm(opts.Resources)[:opts.PerTxn] {
		err := k.Acquire(ctx, xid, primitives.ResourceID(r+1))
		if errors.Is(err, dberror.ErrDeadlock) {
			return nil
		}
		if err != nil {
			_ = k.Abort(xid)
			return err
		}
	}

	if opts.Hold > 0 {
		time.Sleep(opts.Hold)
	}
	return k.Commit(xid)
}
