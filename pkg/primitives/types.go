package primitives

// Permissions used when creating ledger files and their directories.
const (
	FileMode = 0o600
	DirMode  = 0o750
)
