package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// PathHash hashes a canonical source path. Derived artifact names and
// compile database keys are built from it, so it must be stable across runs.
func PathHash(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Key formats a path hash as a database key
func Key(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}
