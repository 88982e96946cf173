package lock

import (
	"slices"

	dberror "txkernel/pkg/error"
	"txkernel/pkg/primitives"
)

// WaitQueue keeps, for each contended resource, the transactions waiting for
// it in arrival order, and for each waiting transaction the one resource it
// waits for.
//
// The two maps always agree: xid is in resourceQueue[uid] exactly when
// waitingFor[xid] == uid. WaitQueue is not safe for concurrent use; the
// owning Table serializes access.
type WaitQueue struct {
	resourceQueue map[primitives.ResourceID][]primitives.XID
	waitingFor    map[primitives.XID]primitives.ResourceID
}

// NewWaitQueue creates an empty WaitQueue.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{
		resourceQueue: make(map[primitives.ResourceID][]primitives.XID),
		waitingFor:    make(map[primitives.XID]primitives.ResourceID),
	}
}

// Push appends xid to the back of uid's queue. A transaction can wait for
// only one resource at a time.
func (wq *WaitQueue) Push(xid primitives.XID, uid primitives.ResourceID) error {
	if current, waiting := wq.waitingFor[xid]; waiting {
		return dberror.ErrAlreadyWaiting.Instance("Push", "WaitQueue").
			WithDetail("xid %d waits for uid %d", uint64(xid), uint64(current))
	}

	wq.resourceQueue[uid] = append(wq.resourceQueue[uid], xid)
	wq.waitingFor[xid] = uid
	return nil
}

// PopFront removes and returns the oldest waiter on uid.
func (wq *WaitQueue) PopFront(uid primitives.ResourceID) (primitives.XID, bool) {
	queue := wq.resourceQueue[uid]
	if len(queue) == 0 {
		return 0, false
	}

	xid := queue[0]
	updateOrDelete(wq.resourceQueue, uid, queue[1:])
	delete(wq.waitingFor, xid)
	return xid, true
}

// Remove withdraws xid from uid's queue, preserving the order of the rest.
func (wq *WaitQueue) Remove(xid primitives.XID, uid primitives.ResourceID) {
	if current, waiting := wq.waitingFor[xid]; !waiting || current != uid {
		return
	}

	queue := wq.resourceQueue[uid]
	if i := slices.Index(queue, xid); i >= 0 {
		queue = slices.Delete(slices.Clone(queue), i, i+1)
	}
	updateOrDelete(wq.resourceQueue, uid, queue)
	delete(wq.waitingFor, xid)
}

// Requests returns a copy of uid's queue, front first.
func (wq *WaitQueue) Requests(uid primitives.ResourceID) []primitives.XID {
	return slices.Clone(wq.resourceQueue[uid])
}

// WaitingFor returns the resource xid is queued on.
func (wq *WaitQueue) WaitingFor(xid primitives.XID) (primitives.ResourceID, bool) {
	uid, ok := wq.waitingFor[xid]
	return uid, ok
}

// Len is the number of waiting transactions.
func (wq *WaitQueue) Len() int {
	return len(wq.waitingFor)
}

// Queues is the number of resources with at least one waiter.
func (wq *WaitQueue) Queues() int {
	return len(wq.resourceQueue)
}
