// Package primitives holds the identifier types shared by the ledger and the
// lock table.
package primitives

import "fmt"

// XID identifies a transaction. Values are handed out by the ledger counter
// starting at 1; zero is reserved for SuperXID.
type XID uint64

// SuperXID is the bootstrap transaction. It is always committed and never
// takes part in locking.
const SuperXID XID = 0

// IsSuper reports whether x is the reserved super transaction.
func (x XID) IsSuper() bool {
	return x == SuperXID
}

func (x XID) String() string {
	return fmt.Sprintf("XID-%d", uint64(x))
}

// ResourceID names a lockable unit (a row, a page, ...). Its meaning belongs to
// the caller; the lock table only compares values.
type ResourceID uint64

func (r ResourceID) String() string {
	return fmt.Sprintf("UID-%d", uint64(r))
}
