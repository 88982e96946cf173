// Package lock implements the resource lock table of the transaction kernel
// together with deadlock detection over its wait-for graph.
//
// # Overview
//
// Every resource has at most one owning transaction. A transaction keeps the
// resources it acquired until it finishes, at which point [Table.Remove]
// releases all of them at once. Locks are exclusive and never released
// mid-transaction.
//
// # Components
//
//   - [Table]     the single entry point. It owns every map below under one mutex.
//   - [WaitQueue] per-resource FIFO of waiting transactions plus the reverse
//     index (which resource each transaction waits for).
//   - [Waiter]    one-shot token handed to a transaction that must wait. It is
//     released exactly once, granted or failed.
//
// # Acquisition
//
// [Table.Add] answers one of three ways:
//
//  1. [Granted]    the caller already owns the resource, or it was free.
//  2. [MustWait]   another transaction owns it; block on the returned [Waiter].
//  3. [Deadlocked] waiting would close a cycle. Nothing was recorded and the
//     caller must abort.
//
// # Deadlock Detection
//
// A transaction waits for at most one resource and a resource has at most one
// owner, so the wait-for graph has out-degree one. Detection follows that
// chain iteratively from the requester while the table mutex is held,
// guaranteeing the graph is checked before the caller blocks.
//
// # Handoff
//
// When a transaction is removed each resource it held is handed to the oldest
// live waiter on that resource's queue, or becomes free when nobody is left.
// Resources are processed in ascending id order so handoff is deterministic.
//
// # Invariants
//
//   - owner and held describe the same relation from both sides.
//   - A transaction appears in at most one queue and only while it waits.
//   - The wait-for graph never contains a cycle after Add returns.
//   - The super transaction (xid 0) never enters any map.
package lock
