// Package logging provides a process-wide structured logger for txkernel.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. The ledger, the
// lock table and the kernel obtain loggers through this package so that level
// and destination are controlled from one place.
//
// # Initialisation
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug}); err != nil {
//	    log.Fatal(err)
//	}
//
// InitDefault writes INFO-level text logs to stderr. If GetLogger is called
// before Init, the default logger is installed lazily via sync.Once.
//
// # Context helpers
//
//	log := logging.WithXID(xid)       // adds xid field
//	log := logging.WithLock(xid, uid) // adds xid and uid fields
//	log := logging.WithLedger(path)   // adds component=ledger and path
package logging
