package lock

import (
	"sync"

	"github.com/google/btree"

	dberror "txkernel/pkg/error"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

const (
	component = "LockTable"

	// heldDegree is the btree degree of each per-transaction held set.
	// Most transactions hold a handful of resources.
	heldDegree = 8
)

// resourceSet is the ordered set of resources one transaction owns.
type resourceSet = btree.BTreeG[primitives.ResourceID]

// Table tracks resource ownership and waiting transactions.
//
// It maintains a dual index of ownership:
//   - held:  xid -> ordered set of resources that transaction owns
//   - owner: resource -> the transaction owning it
//
// plus the wait queue and the pending Waiter of every blocked transaction.
// All of it is guarded by one mutex, so Add and Remove are atomic with
// respect to each other.
type Table struct {
	mutex sync.Mutex

	held    map[primitives.XID]*resourceSet
	owner   map[primitives.ResourceID]primitives.XID
	queue   *WaitQueue
	waiters map[primitives.XID]*Waiter

	metrics *metrics.Metrics
	counts  counters
}

type counters struct {
	grants       uint64
	handoffs     uint64
	waits        uint64
	deadlocks    uint64
	abortedWaits uint64
}

// Stats is a point-in-time summary of the table.
type Stats struct {
	Holders      int // transactions owning at least one resource
	Owned        int // resources with an owner
	Waiting      int // transactions blocked on a resource
	Queues       int // resources with at least one waiter
	Grants       uint64
	Handoffs     uint64
	Waits        uint64
	Deadlocks    uint64
	AbortedWaits uint64
}

// Option configures a Table.
type Option func(*Table)

// WithMetrics reports grants, waits and deadlocks to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) {
		t.metrics = m
	}
}

// NewTable creates an empty lock table.
func NewTable(opts ...Option) *Table {
	t := &Table{
		held:    make(map[primitives.XID]*resourceSet),
		owner:   make(map[primitives.ResourceID]primitives.XID),
		queue:   NewWaitQueue(),
		waiters: make(map[primitives.XID]*Waiter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add asks for uid on behalf of xid.
//
// It never blocks. On MustWait the caller waits on the returned Waiter; on
// Deadlocked the error is ErrDeadlock and the table is exactly as it was
// before the call.
func (t *Table) Add(xid primitives.XID, uid primitives.ResourceID) (Result, error) {
	if xid.IsSuper() {
		return Result{Outcome: Granted}, nil
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	log := logging.WithLock(xid, uid)

	holder, owned := t.owner[uid]
	if owned && holder == xid {
		t.metrics.ObserveGrant(metrics.GrantReentrant)
		return Result{Outcome: Granted}, nil
	}

	if current, waiting := t.queue.WaitingFor(xid); waiting {
		return Result{}, dberror.ErrAlreadyWaiting.Instance("Add", component).
			WithDetail("xid %d waits for uid %d", uint64(xid), uint64(current))
	}

	if !owned {
		t.grant(xid, uid)
		t.counts.grants++
		t.metrics.ObserveGrant(metrics.GrantImmediate)
		log.Debug("granted")
		return Result{Outcome: Granted}, nil
	}

	if err := t.queue.Push(xid, uid); err != nil {
		return Result{}, err
	}

	if cycle := t.findCycle(xid); cycle != nil {
		t.queue.Remove(xid, uid)
		t.counts.deadlocks++
		t.metrics.ObserveDeadlock()

		detail := formatCycle(cycle)
		log.Warn("deadlock detected", "cycle", detail)
		return Result{Outcome: Deadlocked}, dberror.ErrDeadlock.Instance("Add", component).
			WithDetail("%s", detail)
	}

	w := newWaiter(xid, uid)
	t.waiters[xid] = w
	t.counts.waits++
	t.metrics.ObserveWait()
	log.Debug("must wait", "owner", uint64(holder))
	return Result{Outcome: MustWait, Waiter: w}, nil
}

// Remove releases everything xid holds and forgets it. Each released
// resource goes to the oldest live waiter on it. If xid was itself waiting,
// its waiter fails with ErrAbortedWhileWaiting.
//
// Remove cannot fail and is a no-op for unknown xids.
func (t *Table) Remove(xid primitives.XID) {
	if xid.IsSuper() {
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.withdraw(xid)

	set, holds := t.held[xid]
	if !holds {
		return
	}
	delete(t.held, xid)

	uids := make([]primitives.ResourceID, 0, set.Len())
	set.Ascend(func(uid primitives.ResourceID) bool {
		uids = append(uids, uid)
		return true
	})

	for _, uid := range uids {
		delete(t.owner, uid)
		t.handoff(uid)
	}

	logging.WithXID(xid).Debug("removed", "released", len(uids))
}

// withdraw takes a waiting xid off its queue and fails its waiter.
func (t *Table) withdraw(xid primitives.XID) {
	uid, waiting := t.queue.WaitingFor(xid)
	if waiting {
		t.queue.Remove(xid, uid)
	}

	w, ok := t.waiters[xid]
	if !ok {
		return
	}
	delete(t.waiters, xid)

	err := dberror.ErrAbortedWhileWaiting.Instance("Remove", component).
		WithDetail("xid %d was waiting for uid %d", uint64(xid), uint64(w.uid))
	if w.release(err) {
		t.counts.abortedWaits++
		t.metrics.ObserveWake(true)
		logging.WithLock(xid, w.uid).Debug("waiter aborted")
	}
}

// handoff gives a free uid to the front of its queue, skipping entries whose
// waiter is gone.
func (t *Table) handoff(uid primitives.ResourceID) {
	for {
		next, ok := t.queue.PopFront(uid)
		if !ok {
			return
		}

		w, live := t.waiters[next]
		if !live {
			continue
		}
		delete(t.waiters, next)

		t.grant(next, uid)
		t.counts.handoffs++
		t.metrics.ObserveGrant(metrics.GrantHandoff)
		if w.release(nil) {
			t.metrics.ObserveWake(false)
		}
		logging.WithLock(next, uid).Debug("handed off")
		return
	}
}

func (t *Table) grant(xid primitives.XID, uid primitives.ResourceID) {
	t.owner[uid] = xid

	set, ok := t.held[xid]
	if !ok {
		set = btree.NewOrderedG[primitives.ResourceID](heldDegree)
		t.held[xid] = set
	}
	set.ReplaceOrInsert(uid)
}

// Owner returns the transaction owning uid.
func (t *Table) Owner(uid primitives.ResourceID) (primitives.XID, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	xid, ok := t.owner[uid]
	return xid, ok
}

// HeldBy returns the resources xid owns in ascending order.
func (t *Table) HeldBy(xid primitives.XID) []primitives.ResourceID {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	set, ok := t.held[xid]
	if !ok {
		return nil
	}

	uids := make([]primitives.ResourceID, 0, set.Len())
	set.Ascend(func(uid primitives.ResourceID) bool {
		uids = append(uids, uid)
		return true
	})
	return uids
}

// Waiting returns the transactions queued on uid, oldest first.
func (t *Table) Waiting(uid primitives.ResourceID) []primitives.XID {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.queue.Requests(uid)
}

// WaitingFor returns the resource xid is blocked on.
func (t *Table) WaitingFor(xid primitives.XID) (primitives.ResourceID, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.queue.WaitingFor(xid)
}

func (t *Table) Stats() Stats {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return Stats{
		Holders:      len(t.held),
		Owned:        len(t.owner),
		Waiting:      t.queue.Len(),
		Queues:       t.queue.Queues(),
		Grants:       t.counts.grants,
		Handoffs:     t.counts.handoffs,
		Waits:        t.counts.waits,
		Deadlocks:    t.counts.deadlocks,
		AbortedWaits: t.counts.abortedWaits,
	}
}
