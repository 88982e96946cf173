package transaction

import (
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	dberror "txkernel/pkg/error"
	"txkernel/pkg/logging"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

const component = "Ledger"

// Ledger is the durable record of every transaction's identity and outcome.
//
// Begin, Commit and Abort are serialized by one mutex and each forces its
// write to stable storage before returning. Status reads share the mutex in
// read mode and may be answered from a cache once an xid is terminal.
type Ledger struct {
	path    primitives.Filepath
	file    *os.File
	mutex   sync.RWMutex
	counter uint64
	closed  bool

	cache   *statusCache
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Create initializes a new ledger file at path (the .xid suffix is appended
// when missing). It never overwrites an existing file.
func Create(path string, opts ...Option) (*Ledger, error) {
	p := LedgerPath(path)

	file, err := os.OpenFile(p.String(), os.O_RDWR|os.O_CREATE|os.O_EXCL, primitives.FileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, dberror.ErrAlreadyExists.Instance("Create", component).
				WithDetail("%s", p).
				WithCause(err)
		}
		return nil, fileAccess("Create", p, err)
	}

	if _, err := file.WriteAt(encodeHeader(0), 0); err != nil {
		discard(file, p)
		return nil, ioError("Create", errors.Wrapf(err, "write header of %s", p))
	}
	if err := file.Sync(); err != nil {
		discard(file, p)
		return nil, ioError("Create", errors.Wrapf(err, "sync %s", p))
	}

	l, err := newLedger(p, file, 0, opts)
	if err != nil {
		discard(file, p)
		return nil, err
	}

	l.log.Info("ledger created")
	return l, nil
}

// Open reopens an existing ledger. Statuses are read back as they are; a
// transaction left Active by a crash stays Active.
func Open(path string, opts ...Option) (*Ledger, error) {
	p := LedgerPath(path)

	file, err := os.OpenFile(p.String(), os.O_RDWR, 0)
	if err != nil {
		return nil, fileAccess("Open", p, err)
	}

	counter, err := readHeader(file, p)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	l, err := newLedger(p, file, counter, opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	l.log.Info("ledger opened", "counter", counter)
	return l, nil
}

func newLedger(p primitives.Filepath, file *os.File, counter uint64, opts []Option) (*Ledger, error) {
	o := buildOptions(opts)

	cache, err := newStatusCache(o.cacheSize)
	if err != nil {
		return nil, ioError("Open", errors.Wrap(err, "status cache"))
	}

	return &Ledger{
		path:    p,
		file:    file,
		counter: counter,
		cache:   cache,
		metrics: o.metrics,
		log:     logging.WithLedger(p.String()),
	}, nil
}

func readHeader(file *os.File, p primitives.Filepath) (uint64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fileAccess("Open", p, err)
	}
	if info.Size() < HeaderSize {
		return 0, dberror.ErrCorruptLedger.Instance("Open", component).
			WithDetail("%s is %d bytes", p, info.Size())
	}

	buf := make([]byte, HeaderSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return 0, ioError("Open", errors.Wrapf(err, "read header of %s", p))
	}

	// Begins are serialized and each one syncs, so at most the newest
	// status byte can be missing.
	counter := decodeHeader(buf)
	if limit := uint64(info.Size()-HeaderSize) + 1; counter > limit {
		return 0, dberror.ErrCorruptLedger.Instance("Open", component).
			WithDetail("%s: counter %d but room for %d statuses", p, counter, limit-1)
	}
	return counter, nil
}

// Begin issues the next xid and durably records it as Active.
func (l *Ledger) Begin() (primitives.XID, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return 0, dberror.ErrLedgerClosed.Instance("Begin", component)
	}

	if l.counter == math.MaxUint64 {
		return 0, dberror.ErrXIDExhausted.Instance("Begin", component)
	}

	next := l.counter + 1
	xid := primitives.XID(next)

	if _, err := l.file.WriteAt([]byte{byte(StatusActive)}, statusOffset(xid)); err != nil {
		return 0, ioError("Begin", errors.Wrapf(err, "write status of xid %d", next))
	}
	if _, err := l.file.WriteAt(encodeHeader(next), 0); err != nil {
		return 0, ioError("Begin", errors.Wrapf(err, "write counter %d", next))
	}
	if err := l.sync(); err != nil {
		return 0, ioError("Begin", err)
	}

	l.counter = next
	l.metrics.ObserveBegin()
	l.log.Debug("transaction started", "xid", next)
	return xid, nil
}

// Commit durably marks xid Committed. Committing an already committed xid is
// a no-op; committing an aborted xid fails with ErrIllegalTransition.
func (l *Ledger) Commit(xid primitives.XID) error {
	if err := l.finish(xid, StatusCommitted, "Commit"); err != nil {
		return err
	}
	l.metrics.ObserveCommit()
	return nil
}

// Abort durably marks xid Aborted. Aborting an already aborted xid is a no-op;
// aborting a committed xid fails with ErrIllegalTransition.
func (l *Ledger) Abort(xid primitives.XID) error {
	if err := l.finish(xid, StatusAborted, "Abort"); err != nil {
		return err
	}
	l.metrics.ObserveAbort()
	return nil
}

func (l *Ledger) finish(xid primitives.XID, target Status, op string) error {
	if xid.IsSuper() {
		return dberror.ErrSuperXID.Instance(op, component)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return dberror.ErrLedgerClosed.Instance(op, component)
	}
	if uint64(xid) > l.counter {
		return dberror.ErrUnknownXID.Instance(op, component).
			WithDetail("xid %d, counter %d", uint64(xid), l.counter)
	}

	current, err := l.readStatus(xid, op)
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}
	if current != StatusActive {
		l.log.Warn("illegal status transition", "xid", uint64(xid), "from", current, "to", target)
		return dberror.ErrIllegalTransition.Instance(op, component).
			WithDetail("xid %d is %s", uint64(xid), current)
	}

	if _, err := l.file.WriteAt([]byte{byte(target)}, statusOffset(xid)); err != nil {
		return ioError(op, errors.Wrapf(err, "write status of xid %d", uint64(xid)))
	}
	if err := l.sync(); err != nil {
		return ioError(op, err)
	}

	l.cache.store(xid, target)
	l.log.Debug("transaction finished", "xid", uint64(xid), "status", target)
	return nil
}

// Status returns the recorded status of xid. The super transaction is always
// Committed; xids beyond the counter are StatusUnknown.
func (l *Ledger) Status(xid primitives.XID) (Status, error) {
	if xid.IsSuper() {
		return StatusCommitted, nil
	}

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.closed {
		return StatusUnknown, dberror.ErrLedgerClosed.Instance("Status", component)
	}
	if uint64(xid) > l.counter {
		return StatusUnknown, nil
	}
	if status, ok := l.cache.get(xid); ok {
		return status, nil
	}

	status, err := l.readStatus(xid, "Status")
	if err != nil {
		return StatusUnknown, err
	}
	l.cache.store(xid, status)
	return status, nil
}

func (l *Ledger) IsActive(xid primitives.XID) bool {
	return l.is(xid, StatusActive)
}

func (l *Ledger) IsCommitted(xid primitives.XID) bool {
	return l.is(xid, StatusCommitted)
}

func (l *Ledger) IsAborted(xid primitives.XID) bool {
	return l.is(xid, StatusAborted)
}

func (l *Ledger) is(xid primitives.XID, want Status) bool {
	status, err := l.Status(xid)
	if err != nil {
		l.log.Error("status lookup failed", "xid", uint64(xid), "error", err)
		return false
	}
	return status == want
}

// readStatus must be called with the mutex held. A byte missing past EOF
// belongs to an xid whose header write reached disk before its status byte;
// it reads as Active, the zero value.
func (l *Ledger) readStatus(xid primitives.XID, op string) (Status, error) {
	buf := make([]byte, statusFieldSize)
	if _, err := l.file.ReadAt(buf, statusOffset(xid)); err != nil {
		if errors.Is(err, io.EOF) {
			return StatusActive, nil
		}
		return StatusUnknown, ioError(op, errors.Wrapf(err, "read status of xid %d", uint64(xid)))
	}

	status := Status(buf[0])
	if !status.valid() {
		return StatusUnknown, dberror.ErrCorruptLedger.Instance(op, component).
			WithDetail("xid %d has status byte %#x", uint64(xid), buf[0])
	}
	return status, nil
}

// Counter returns the highest xid issued so far.
func (l *Ledger) Counter() uint64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.counter
}

// Path returns the ledger file path including its suffix.
func (l *Ledger) Path() string {
	return l.path.String()
}

// ActiveXIDs lists xids still recorded as Active, in ascending order. A
// higher layer uses it after Open to decide what to do with transactions a
// crash left unfinished.
func (l *Ledger) ActiveXIDs() ([]primitives.XID, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if l.closed {
		return nil, dberror.ErrLedgerClosed.Instance("ActiveXIDs", component)
	}

	statuses, err := readStatuses(l.file, l.counter)
	if err != nil {
		return nil, ioError("ActiveXIDs", err)
	}

	var active []primitives.XID
	for i, s := range statuses {
		if s == StatusActive {
			active = append(active, primitives.XID(i+1))
		}
	}
	return active, nil
}

// Close flushes and releases the file. Every later call fails with
// ErrLedgerClosed.
func (l *Ledger) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed {
		return dberror.ErrLedgerClosed.Instance("Close", component)
	}
	l.closed = true
	l.cache.close()

	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return ioError("Close", errors.Wrap(err, "sync"))
	}
	if err := l.file.Close(); err != nil {
		return ioError("Close", errors.Wrap(err, "close"))
	}

	l.log.Info("ledger closed", "counter", l.counter)
	return nil
}

func (l *Ledger) sync() error {
	start := time.Now()
	if err := l.file.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", l.path)
	}
	l.metrics.ObserveSync(start)
	return nil
}

func fileAccess(op string, p primitives.Filepath, err error) error {
	return dberror.ErrFileAccess.Instance(op, component).
		WithDetail("%s", p).
		WithCause(err)
}

func ioError(op string, err error) error {
	return dberror.Wrap(err, "LEDGER_IO", op, component)
}

func discard(file *os.File, p primitives.Filepath) {
	_ = file.Close()
	_ = os.Remove(p.String())
}
