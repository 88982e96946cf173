package transaction

import (
	"github.com/dgraph-io/ristretto/v2"

	"txkernel/pkg/primitives"
)

// DefaultStatusCacheSize is the number of terminal statuses kept in memory.
const DefaultStatusCacheSize = 1 << 12

// statusCache serves Committed/Aborted lookups without touching the file.
// Terminal statuses never change, so a cached answer cannot go stale.
// Active is never stored.
type statusCache struct {
	c *ristretto.Cache[uint64, Status]
}

func newStatusCache(size int64) (*statusCache, error) {
	if size <= 0 {
		return nil, nil
	}

	c, err := ristretto.NewCache(&ristretto.Config[uint64, Status]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &statusCache{c: c}, nil
}

func (s *statusCache) get(xid primitives.XID) (Status, bool) {
	if s == nil {
		return StatusUnknown, false
	}
	return s.c.Get(uint64(xid))
}

func (s *statusCache) store(xid primitives.XID, status Status) {
	if s == nil || !status.Terminal() {
		return
	}
	s.c.Set(uint64(xid), status, 1)
}

func (s *statusCache) close() {
	if s != nil {
		s.c.Close()
	}
}
