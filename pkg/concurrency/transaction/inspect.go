package transaction

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"

	dberror "txkernel/pkg/error"
	"txkernel/pkg/metrics"
	"txkernel/pkg/primitives"
)

// Snapshot is a read-only decode of a ledger file.
type Snapshot struct {
	Path     string
	Size     int64
	Counter  uint64
	Statuses []Status // Statuses[i] belongs to xid i+1
}

// Inspect decodes the ledger at path without taking ownership of it. It is
// safe to run against a ledger another process has open; the result is a
// point-in-time view.
func Inspect(path string) (*Snapshot, error) {
	p := LedgerPath(path)

	file, err := os.Open(p.String())
	if err != nil {
		return nil, fileAccess("Inspect", p, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fileAccess("Inspect", p, err)
	}

	counter, err := readHeader(file, p)
	if err != nil {
		return nil, err
	}

	statuses, err := readStatuses(file, counter)
	if err != nil {
		return nil, ioError("Inspect", err)
	}

	return &Snapshot{
		Path:     p.String(),
		Size:     info.Size(),
		Counter:  counter,
		Statuses: statuses,
	}, nil
}

// readStatuses returns the status of xids 1..counter. Bytes missing past EOF
// read as Active.
func readStatuses(r io.ReaderAt, counter uint64) ([]Status, error) {
	buf := make([]byte, counter)
	n, err := r.ReadAt(buf, HeaderSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read status bytes")
	}

	statuses := make([]Status, counter)
	for i := 0; i < n; i++ {
		statuses[i] = Status(buf[i])
	}
	return statuses, nil
}

// Status returns the recorded status of xid in the snapshot.
func (s *Snapshot) Status(xid primitives.XID) Status {
	if xid.IsSuper() {
		return StatusCommitted
	}
	if uint64(xid) > s.Counter {
		return StatusUnknown
	}
	return s.Statuses[xid-1]
}

// Counts tallies the snapshot by status.
func (s *Snapshot) Counts() metrics.LedgerCounts {
	counts := metrics.LedgerCounts{Counter: s.Counter}
	for _, st := range s.Statuses {
		switch st {
		case StatusActive:
			counts.Active++
		case StatusCommitted:
			counts.Committed++
		case StatusAborted:
			counts.Aborted++
		}
	}
	return counts
}

// Validate reports the first status byte that is not a known status.
func (s *Snapshot) Validate() error {
	for i, st := range s.Statuses {
		if !st.valid() {
			return dberror.ErrCorruptLedger.Instance("Validate", component).
				WithDetail("xid %d has status byte %#x", i+1, byte(st))
		}
	}
	return nil
}
