package transaction

// Status is the one-byte record kept for every issued xid.
type Status byte

const (
	StatusActive    Status = 0
	StatusCommitted Status = 1
	StatusAborted   Status = 2

	// StatusUnknown is reported for xids that were never issued. It is never
	// written to the ledger file.
	StatusUnknown Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusCommitted:
		return "COMMITTED"
	case StatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusAborted
}

func (s Status) valid() bool {
	return s <= StatusAborted
}
