// Package transaction implements the transaction ledger: the durable source of
// transaction identities and their terminal outcomes.
//
// # Lifecycle
//
// [Create] writes a fresh ledger file and [Open] reopens one after a restart.
// [Ledger.Begin] issues xids 1, 2, 3, ... with no gaps or repeats, even under
// concurrent callers. [Ledger.Commit] and [Ledger.Abort] move an Active xid to
// its terminal status exactly once:
//
//	ACTIVE ──► COMMITTED
//	   └─────► ABORTED
//
// Repeating the same terminal call is a no-op. Crossing from one terminal
// status to the other fails with ErrIllegalTransition.
//
// # Durability
//
// Every status-changing write is followed by fsync before the call returns,
// so a crash right after a returned Commit cannot lose it. Nothing is repaired
// on Open: an xid left Active by a crash is reported by [Ledger.ActiveXIDs]
// for the caller to resolve.
//
// # Super transaction
//
// xid 0 is never issued. It reads as committed and cannot be committed or
// aborted.
package transaction
