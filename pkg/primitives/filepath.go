package primitives

import (
	"os"
	"path/filepath"
	"strings"
)

// Filepath is a type-safe wrapper around file paths used for ledger files.
//
// Example usage:
//
//	dataDir := primitives.Filepath("/data")
//	ledger := dataDir.Join("txn").WithSuffix(".xid")
//	if ledger.Exists() {
//	    ...
//	}
type Filepath string

// Dir returns all but the last element of the path.
func (f Filepath) Dir() string {
	return filepath.Dir(string(f))
}

func (f Filepath) String() string {
	return string(f)
}

// Join joins path elements onto this path.
func (f Filepath) Join(elem ...string) Filepath {
	parts := append([]string{string(f)}, elem...)
	return Filepath(filepath.Join(parts...))
}

// Base returns the last element of the path.
func (f Filepath) Base() string {
	return filepath.Base(string(f))
}

// Exists reports whether something is present at the path.
func (f Filepath) Exists() bool {
	_, err := os.Stat(string(f))
	return err == nil
}

// IsEmpty reports whether the path is the empty string.
func (f Filepath) IsEmpty() bool {
	return f == ""
}

// MkdirAll creates the parent directory of the path.
func (f Filepath) MkdirAll(perm os.FileMode) error {
	return os.MkdirAll(f.Dir(), perm)
}

// HasSuffix reports whether the path already ends with suffix.
func (f Filepath) HasSuffix(suffix string) bool {
	return strings.HasSuffix(string(f), suffix)
}

// WithSuffix appends suffix unless the path already carries it.
func (f Filepath) WithSuffix(suffix string) Filepath {
	if f.HasSuffix(suffix) {
		return f
	}
	return Filepath(string(f) + suffix)
}

// Clean returns the shortest equivalent path.
func (f Filepath) Clean() Filepath {
	return Filepath(filepath.Clean(string(f)))
}
