package lock

// Outcome tells the caller of Add what to do next.
type Outcome int

const (
	// Granted means the caller owns the resource now. No waiter is returned.
	Granted Outcome = iota

	// MustWait means another transaction owns the resource. The caller blocks
	// on Result.Waiter.
	MustWait

	// Deadlocked means waiting would close a cycle. Nothing was recorded.
	Deadlocked
)

func (o Outcome) String() string {
	switch o {
	case Granted:
		return "GRANTED"
	case MustWait:
		return "MUST_WAIT"
	case Deadlocked:
		return "DEADLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Result is the answer of Table.Add. Waiter is set only for MustWait.
type Result struct {
	Outcome Outcome
	Waiter  *Waiter
}
