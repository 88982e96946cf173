package error

// common errors - keep grouped by component
var (
	ErrAlreadyExists = New(ErrCategorySystem, "LEDGER_EXISTS", "ledger file already exists")
	ErrFileAccess    = New(ErrCategorySystem, "LEDGER_FILE_ACCESS", "ledger file cannot be opened read-write")
	ErrCorruptLedger = New(ErrCategoryData, "LEDGER_CORRUPT", "ledger file is corrupt")
	ErrLedgerClosed  = New(ErrCategorySystem, "LEDGER_CLOSED", "ledger is closed")
	ErrXIDExhausted  = New(ErrCategorySystem, "XID_EXHAUSTED", "no transaction ids left to issue")

	ErrSuperXID          = New(ErrCategoryUser, "SUPER_XID", "super transaction has no status to change")
	ErrUnknownXID        = New(ErrCategoryUser, "UNKNOWN_XID", "transaction id was never issued")
	ErrIllegalTransition = New(ErrCategoryUser, "ILLEGAL_TRANSITION", "transaction already reached a different terminal status")

	ErrDeadlock            = New(ErrCategoryConcurrency, "DEADLOCK_DETECTED", "waiting would create a cycle in the wait-for graph")
	ErrAlreadyWaiting      = New(ErrCategoryConcurrency, "ALREADY_WAITING", "transaction is already waiting for another resource")
	ErrAbortedWhileWaiting = New(ErrCategoryConcurrency, "ABORTED_WHILE_WAITING", "transaction was aborted while waiting for a resource")
)

func init() {
	ErrDeadlock.Hint = "abort the requesting transaction; do not retry the wait"
	ErrAlreadyExists.Hint = "open the existing ledger instead of creating it"
}
