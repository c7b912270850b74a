// Package ring implements the user-space side of the per-CPU shared-memory
// ring between the Tempesta FW kernel producer and this shipper.
package ring

import "unsafe"

// header is the fixed region header (cpu id, padding, head, tail, size)
// that precedes the ring's circular data area in each per-CPU mapping;
// headerSize is its size in bytes.
//
// The kernel producer's exact mmap layout (region size, offset of the
// per-cpu assignment word) is not part of the distilled core source; this
// layout is this rewrite's own choice of a minimal header carrying just
// enough to validate the mapping and read back the producer-assigned CPU.
type header struct {
	CPUID    uint32
	reserved uint32
	Head     uint64
	Tail     uint64
	Size     uint64
}

const headerSize = int(unsafe.Sizeof(header{}))

// minRegionSize is the smallest mmap region this reader accepts: enough to
// hold the header. The ring size itself is checked against the header's
// size field.
const minRegionSize = headerSize

// dataOffset returns the byte offset of the ring's circular data area
// within the mapped region.
func dataOffset() int {
	return headerSize
}
