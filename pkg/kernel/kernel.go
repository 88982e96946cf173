// Package kernel ties the transaction ledger and the lock table together into
// the begin / acquire / commit / abort cycle a data layer drives.
package kernel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"txkernel/pkg/concurrency/lock"
	"txkernel/pkg/concurrency/transaction"
	"txkernel/pkg/config"
	dberror "txkernel/pkg/error"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

const component = "Kernel"

// Kernel coordinates a Ledger and a lock Table.
//
// The ledger is always written first: a transaction's resources are released
// only after its outcome is durable.
type Kernel struct {
	ledger *transaction.Ledger
	table  *lock.Table
	log    *slog.Logger

	mutex  sync.RWMutex
	closed bool
	stats  *KernelStats

	knobs testingKnobs
}

// testingKnobs lets tests interleave other calls inside Acquire.
type testingKnobs struct {
	afterActiveCheck func(primitives.XID)
}

// KernelStats tracks per-kernel counters.
type KernelStats struct {
	Begins       int64
	Commits      int64
	Aborts       int64
	Deadlocks    int64
	AbortedWaits int64
	mutex        sync.RWMutex
}

// Info is a snapshot of the kernel for tooling.
type Info struct {
	LedgerPath   string
	Counter      uint64
	Begins       int64
	Commits      int64
	Aborts       int64
	Deadlocks    int64
	AbortedWaits int64
	Locks        lock.Stats
}

// Open creates or reopens the ledger described by cfg and wraps it with a
// fresh lock table. m may be nil.
func Open(cfg config.Config, m *metrics.Metrics) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	path := primitives.Filepath(cfg.LedgerPath())
	if err := path.MkdirAll(primitives.DirMode); err != nil {
		return nil, errors.Wrapf(err, "create data directory for %s", path)
	}

	opts := []transaction.Option{
		transaction.WithStatusCache(cfg.StatusCacheSize),
		transaction.WithMetrics(m),
	}

	var (
		ledger *transaction.Ledger
		err    error
	)
	if path.Exists() {
		ledger, err = transaction.Open(path.String(), opts...)
	} else {
		ledger, err = transaction.Create(path.String(), opts...)
	}
	if err != nil {
		return nil, err
	}

	k := New(ledger, lock.NewTable(lock.WithMetrics(m)))

	if cfg.AbortOrphans {
		if err := k.abortOrphans(); err != nil {
			_ = ledger.Close()
			return nil, err
		}
	}
	return k, nil
}

// New wraps an already open ledger and table.
func New(ledger *transaction.Ledger, table *lock.Table) *Kernel {
	return &Kernel{
		ledger: ledger,
		table:  table,
		log:    logging.WithComponent(component),
		stats:  &KernelStats{},
	}
}

// abortOrphans aborts transactions a previous run left Active.
func (k *Kernel) abortOrphans() error {
	orphans, err := k.ledger.ActiveXIDs()
	if err != nil {
		return err
	}

	for _, xid := range orphans {
		if err := k.ledger.Abort(xid); err != nil {
			return err
		}
	}

	if len(orphans) > 0 {
		k.log.Warn("aborted transactions left active by a previous run", "count", len(orphans))
	}
	return nil
}

// Begin starts a transaction.
func (k *Kernel) Begin() (primitives.XID, error) {
	if err := k.checkOpen("Begin"); err != nil {
		return 0, err
	}

	xid, err := k.ledger.Begin()
	if err != nil {
		return 0, err
	}

	k.record(func(s *KernelStats) { s.Begins++ })
	return xid, nil
}

// Acquire gives xid ownership of uid, blocking while another transaction
// holds it.
//
// If waiting would deadlock, xid is aborted, its resources are released and
// the ErrDeadlock is returned. If xid is aborted by someone else while it
// waits, ErrAbortedWhileWaiting is returned. If ctx ends first, its error is
// returned and xid stays queued; the caller must Abort it.
func (k *Kernel) Acquire(ctx context.Context, xid primitives.XID, uid primitives.ResourceID) error {
	if err := k.checkOpen("Acquire"); err != nil {
		return err
	}
	if err := k.checkActive(xid); err != nil {
		return err
	}
	if fn := k.knobs.afterActiveCheck; fn != nil {
		fn(xid)
	}

	res, err := k.table.Add(xid, uid)
	switch {
	case errors.Is(err, dberror.ErrDeadlock):
		k.record(func(s *KernelStats) { s.Deadlocks++ })
		logging.WithLock(xid, uid).Info("aborting deadlock victim")
		if abortErr := k.Abort(xid); abortErr != nil {
			return errors.CombineErrors(err, abortErr)
		}
		return err
	case err != nil:
		return err
	}

	// Commit and Abort write the ledger before they remove xid from the
	// table. If that write landed after the first check, their Remove may
	// have run before Add, so whatever Add granted or queued is released
	// here instead.
	if err := k.checkActive(xid); err != nil {
		k.table.Remove(xid)
		logging.WithLock(xid, uid).Debug("transaction finished during acquire", "error", err)
		return err
	}

	if res.Outcome != lock.MustWait {
		return nil
	}

	if err := res.Waiter.Wait(ctx); err != nil {
		if errors.Is(err, dberror.ErrAbortedWhileWaiting) {
			k.record(func(s *KernelStats) { s.AbortedWaits++ })
		}
		return err
	}
	return nil
}

// Commit makes xid's outcome durable and then releases its resources.
// If the ledger write fails the resources stay held.
func (k *Kernel) Commit(xid primitives.XID) error {
	if err := k.checkOpen("Commit"); err != nil {
		return err
	}

	if err := k.ledger.Commit(xid); err != nil {
		return err
	}
	k.table.Remove(xid)

	k.record(func(s *KernelStats) { s.Commits++ })
	return nil
}

// Abort records xid as aborted and releases its resources. A wait xid is
// blocked in fails with ErrAbortedWhileWaiting.
func (k *Kernel) Abort(xid primitives.XID) error {
	if err := k.checkOpen("Abort"); err != nil {
		return err
	}

	err := k.ledger.Abort(xid)
	if err != nil && !errors.Is(err, dberror.ErrIllegalTransition) {
		return err
	}
	k.table.Remove(xid)
	if err != nil {
		return err
	}

	k.record(func(s *KernelStats) { s.Aborts++ })
	return nil
}

func (k *Kernel) Status(xid primitives.XID) (transaction.Status, error) {
	return k.ledger.Status(xid)
}

func (k *Kernel) Ledger() *transaction.Ledger {
	return k.ledger
}

func (k *Kernel) Table() *lock.Table {
	return k.table
}

// GetStatistics returns current kernel statistics.
func (k *Kernel) GetStatistics() Info {
	k.stats.mutex.RLock()
	defer k.stats.mutex.RUnlock()

	return Info{
		LedgerPath:   k.ledger.Path(),
		Counter:      k.ledger.Counter(),
		Begins:       k.stats.Begins,
		Commits:      k.stats.Commits,
		Aborts:       k.stats.Aborts,
		Deadlocks:    k.stats.Deadlocks,
		AbortedWaits: k.stats.AbortedWaits,
		Locks:        k.table.Stats(),
	}
}

// Close closes the ledger. Transactions still running are left Active on
// disk.
func (k *Kernel) Close() error {
	k.mutex.Lock()
	defer k.mutex.Unlock()

	if k.closed {
		return dberror.ErrLedgerClosed.Instance("Close", component)
	}
	k.closed = true

	if stats := k.table.Stats(); stats.Holders > 0 {
		k.log.Warn("closing with transactions still holding resources", "holders", stats.Holders)
	}
	return k.ledger.Close()
}

func (k *Kernel) checkOpen(op string) error {
	k.mutex.RLock()
	defer k.mutex.RUnlock()

	if k.closed {
		return dberror.ErrLedgerClosed.Instance(op, component)
	}
	return nil
}

// checkActive refuses lock requests from transactions that already finished
// or were never issued; their resources would never be released.
func (k *Kernel) checkActive(xid primitives.XID) error {
	if xid.IsSuper() {
		return nil
	}

	status, err := k.ledger.Status(xid)
	if err != nil {
		return err
	}

	switch status {
	case transaction.StatusActive:
		return nil
	case transaction.StatusUnknown:
		return dberror.ErrUnknownXID.Instance("Acquire", component).
			WithDetail("xid %d", uint64(xid))
	default:
		return dberror.ErrIllegalTransition.Instance("Acquire", component).
			WithDetail("xid %d is %s", uint64(xid), status)
	}
}

func (k *Kernel) record(update func(*KernelStats)) {
	k.stats.mutex.Lock()
	update(k.stats)
	k.stats.mutex.Unlock()
}
