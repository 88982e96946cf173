package lock

import (
	"fmt"
	"strings"

	"txkernel/pkg/primitives"
)

// updateOrDelete updates the map with the new slice, or deletes the key if the slice is empty.
// This maintains map cleanliness by avoiding storage of empty slices.
func updateOrDelete[K comparable, V any](m map[K][]V, key K, newSlice []V) {
	if len(newSlice) > 0 {
		m[key] = newSlice
	} else {
		delete(m, key)
	}
}

// formatCycle renders a cycle as "1 -> 2 -> 1".
func formatCycle(cycle []primitives.XID) string {
	parts := make([]string, len(cycle))
	for i, xid := range cycle {
		parts[i] = fmt.Sprintf("%d", uint64(xid))
	}
	return strings.Join(parts, " -> ")
}
