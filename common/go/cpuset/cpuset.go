// Package cpuset represents small sets of CPU indices, used by the
// orchestrator to decide which CPUs to spawn ring-reader workers on.
package cpuset

import (
	"iter"

	"github.com/tempesta-tech/tfw-logshipper/common/go/bitset"
)

// Max is the number of CPU indices this Set can represent (0 to Max-1).
const Max = 64

// Set is a fixed-width bitmap of CPU indices.
type Set uint64

// WithTrailing returns a Set with the first n CPU indices present,
// i.e. {0, 1, ..., n-1}. Used to build the set of online CPUs from a
// count such as runtime.NumCPU().
func WithTrailing(n int) Set {
	if n <= 0 {
		return Set(0)
	}
	if n >= Max {
		return Set(^uint64(0))
	}
	return Set(^uint64(0) >> (Max - n))
}

func (s Set) IsEmpty() bool {
	return s == 0
}

// Iter yields CPU indices from least to most significant.
func (s Set) Iter() iter.Seq[uint32] {
	return bitset.NewBitsTraverser(uint64(s)).Iter()
}
