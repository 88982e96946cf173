package transaction

import (
	"encoding/binary"

	"txkernel/pkg/primitives"
)

/*
Ledger file
────────────────────────────────────────────────────────────
| counter (8, little-endian) | s(1) | s(2) | ... | s(counter) |
────────────────────────────────────────────────────────────

counter is the highest xid ever issued. s(n) is the status byte of xid n
and lives at HeaderSize + (n-1).
*/

const (
	// Suffix marks a file as a transaction status ledger.
	Suffix = ".xid"

	HeaderSize      = 8
	statusFieldSize = 1
)

func statusOffset(xid primitives.XID) int64 {
	return HeaderSize + int64(xid-1)*statusFieldSize
}

func encodeHeader(counter uint64) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf, counter)
	return buf
}

func decodeHeader(buf []byte) uint64 {
	return binary.LittleEndian.Uint64(buf[:HeaderSize])
}

// LedgerPath returns the on-disk name for a ledger rooted at path.
func LedgerPath(path string) primitives.Filepath {
	return primitives.Filepath(path).WithSuffix(Suffix)
}
