package ring

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// ErrCorrupt is returned when the ring invariant head-tail <= size is
// violated, i.e. the producer has overrun this reader. Fatal to the
// worker that owns this reader.
var ErrCorrupt = errors.New("ring: corrupt (producer overran consumer)")

// ErrClosed is returned by NextSpan once the reader has been closed or its
// context is done. The reader does not poll the device, so a device EOF is
// not detected here.
var ErrClosed = errors.New("ring: closed")

const (
	minWait     = 50 * time.Microsecond
	maxWait     = 2 * time.Millisecond
	waitBackoff = 2
)

// Reader drains variable-length binary records deposited by the kernel
// producer into one per-CPU mmap region.
//
// Grounded on modules/pdump/controlplane/ring.go's workerArea: same
// acquire/release discipline over head/tail via sync/atomic, same
// wrap-by-masking arithmetic. Unlike that teacher (which clones an
// already-mapped shared memory view handed to it by a sibling cgo agent),
// this Reader wraps the raw mmap of one device-backed region directly. It
// neither maps nor unmaps the region; its owner does both.
type Reader struct {
	region []byte
	hdr    *header
	data   []byte
	mask   uint64

	cpuID uint32

	closed atomic.Bool
}

// NewReader wraps an mmap'd per-CPU region. The region must be exactly
// headerSize + size bytes, with size a power of two.
func NewReader(region []byte) (*Reader, error) {
	if len(region) < minRegionSize {
		return nil, fmt.Errorf("ring: region too small: %d bytes", len(region))
	}

	hdr := (*header)(unsafe.Pointer(&region[0]))
	size := hdr.Size
	if size == 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("ring: size %d is not a power of two", size)
	}
	if int(size) != len(region)-dataOffset() {
		return nil, fmt.Errorf("ring: size %d does not match region length %d", size, len(region))
	}

	r := &Reader{
		region: region,
		hdr:    hdr,
		data:   region[dataOffset():],
		mask:   size - 1,
		cpuID:  hdr.CPUID,
	}

	// Publish tail = 0 to the producer.
	atomic.StoreUint64(&r.hdr.Tail, 0)

	return r, nil
}

// CPUID returns the CPU index assigned to this region by the producer.
func (r *Reader) CPUID() uint32 {
	return r.cpuID
}

// Close marks this reader closed; a blocked or subsequent NextSpan call
// returns ErrClosed.
func (r *Reader) Close() error {
	r.closed.Store(true)
	return nil
}

// NextSpan blocks until there is readable data, the reader is closed, or
// ctx is done, and returns the contiguous readable bytes from tail up to
// head or the physical end of the buffer, whichever comes first. The slice
// is not aligned to frames: it can end part-way through a frame.
//
// A canceled ctx surfaces as ErrClosed, the same as an explicit Close: the
// worker's shutdown path only needs to distinguish "stop, flush what you
// have" from "ring corrupt", and a supervisory cancellation is exactly the
// former (spec §5: "a supervisory signal causes each worker to observe
// Closed at the next wait and exit"). Grounded on
// modules/pdump/controlplane/ring.go's runReaders, which selects on
// ctx.Done() at the same point it would otherwise sleep.
//
// The returned slice aliases the mmap'd region; the caller must not retain
// it past the matching Advance call.
func (r *Reader) NextSpan(ctx context.Context) ([]byte, error) {
	wait := minWait

	for {
		if r.closed.Load() {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ErrClosed
		}

		head := atomic.LoadUint64(&r.hdr.Head)
		tail := atomic.LoadUint64(&r.hdr.Tail)

		readable := head - tail
		if readable == 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ErrClosed
			case <-timer.C:
			}
			if wait < maxWait {
				wait *= waitBackoff
				if wait > maxWait {
					wait = maxWait
				}
			}
			continue
		}
		if readable > uint64(len(r.data)) {
			return nil, ErrCorrupt
		}

		start := tail & r.mask
		end := start + readable
		if end > uint64(len(r.data)) {
			end = uint64(len(r.data))
		}

		return r.data[start:end], nil
	}
}

// Advance releases n consumed bytes back to the producer. n must equal
// the total length of whole frames decoded from the last span returned by
// NextSpan; partial-frame advance is forbidden.
func (r *Reader) Advance(n int) {
	if n == 0 {
		return
	}
	atomic.AddUint64(&r.hdr.Tail, uint64(n))
}
