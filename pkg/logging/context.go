package logging

import (
	"log/slog"
	"txkernel/pkg/primitives"
)

// WithXID creates a logger carrying a transaction id.
//
// Example:
//
//	log := logging.WithXID(xid)
//	log.Info("committed")
func WithXID(xid primitives.XID) *slog.Logger {
	return GetLogger().With("xid", uint64(xid))
}

// WithLock creates a logger with transaction and resource context.
// Useful for lock table operations.
//
// Example:
//
//	log := logging.WithLock(xid, uid)
//	log.Debug("must wait", "owner", owner)
func WithLock(xid primitives.XID, uid primitives.ResourceID) *slog.Logger {
	return GetLogger().With("xid", uint64(xid), "uid", uint64(uid))
}

// WithComponent creates a logger with component/subsystem context.
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithLedger creates a logger tagged with the ledger component and file.
func WithLedger(path string) *slog.Logger {
	return GetLogger().With("component", "ledger", "path", path)
}

// WithError creates a logger with error context.
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
