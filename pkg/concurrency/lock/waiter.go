package lock

import (
	"context"
	"sync"

	"txkernel/pkg/primitives"
)

// Waiter is the token a transaction blocks on after Add answers MustWait.
// It is released exactly once: with a nil error when the resource has been
// handed over, or with ErrAbortedWhileWaiting when the transaction was
// removed before that happened.
type Waiter struct {
	xid  primitives.XID
	uid  primitives.ResourceID
	done chan struct{}
	once sync.Once
	err  error
}

func newWaiter(xid primitives.XID, uid primitives.ResourceID) *Waiter {
	return &Waiter{xid: xid, uid: uid, done: make(chan struct{})}
}

// release reports whether this call was the one that released w.
func (w *Waiter) release(err error) bool {
	released := false
	w.once.Do(func() {
		w.err = err
		close(w.done)
		released = true
	})
	return released
}

// Done is closed when the waiter is released.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Err returns the release outcome, or nil while the waiter is still pending.
func (w *Waiter) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Wait blocks until the waiter is released or ctx ends. A ctx error leaves
// the transaction queued; the caller is expected to abort it.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Waiter) XID() primitives.XID {
	return w.xid
}

func (w *Waiter) Resource() primitives.ResourceID {
	return w.uid
}
