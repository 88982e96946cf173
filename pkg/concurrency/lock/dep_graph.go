package lock

import "txkernel/pkg/primitives"

// The wait-for graph is not stored separately. An edge A -> B exists when A
// waits for a resource that B owns, so it is derived from the wait queue and
// the owner map on demand and can never drift from them.

// waitsOn returns the transaction xid is blocked behind.
func (t *Table) waitsOn(xid primitives.XID) (primitives.XID, bool) {
	uid, waiting := t.queue.WaitingFor(xid)
	if !waiting {
		return 0, false
	}
	holder, owned := t.owner[uid]
	return holder, owned
}

// findCycle follows wait-for edges from start. It returns the cycle as a
// closed path ("a -> b -> a") or nil when the chain ends at a running
// transaction. Must be called with the table mutex held.
//
// Each node has at most one outgoing edge, so the walk is a single path and
// the visited set doubles as the stack.
func (t *Table) findCycle(start primitives.XID) []primitives.XID {
	visited := map[primitives.XID]int{start: 0}
	path := []primitives.XID{start}

	for cur := start; ; {
		next, ok := t.waitsOn(cur)
		if !ok {
			return nil
		}
		if at, seen := visited[next]; seen {
			return append(path[at:], next)
		}
		visited[next] = len(path)
		path = append(path, next)
		cur = next
	}
}

// WaitForEdges returns a snapshot of the wait-for graph, waiter -> holder.
func (t *Table) WaitForEdges() map[primitives.XID]primitives.XID {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	edges := make(map[primitives.XID]primitives.XID, t.queue.Len())
	for xid := range t.queue.waitingFor {
		if holder, ok := t.waitsOn(xid); ok {
			edges[xid] = holder
		}
	}
	return edges
}
