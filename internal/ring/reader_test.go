package ring

import (
	"context"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRegion builds a region of dataSize bytes of ring data (must be a
// power of two) preceded by a header, simulating the kernel producer's
// mmap layout.
func newTestRegion(t *testing.T, cpuID uint32, dataSize uint64) []byte {
	t.Helper()

	region := make([]byte, headerSize+int(dataSize))
	hdr := (*header)(unsafe.Pointer(&region[0]))
	hdr.CPUID = cpuID
	hdr.Size = dataSize

	return region
}

func Test_NewReader_RejectsNonPowerOfTwoSize(t *testing.T) {
	region := newTestRegion(t, 0, 4096)
	hdr := (*header)(unsafe.Pointer(&region[0]))
	hdr.Size = 4097

	_, err := NewReader(region)
	assert.Error(t, err)
}

func Test_NewReader_RejectsTooSmallRegion(t *testing.T) {
	_, err := NewReader(make([]byte, 8))
	assert.Error(t, err)
}

func Test_Reader_CPUID(t *testing.T) {
	region := newTestRegion(t, 3, 4096)

	r, err := NewReader(region)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), r.CPUID())
}

func Test_Reader_NextSpanReadsProducedData(t *testing.T) {
	region := newTestRegion(t, 0, 4096)
	r, err := NewReader(region)
	require.NoError(t, err)

	payload := []byte("hello world")
	copy(r.data[:len(payload)], payload)
	atomic.StoreUint64(&r.hdr.Head, uint64(len(payload)))

	span, err := r.NextSpan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, span)

	r.Advance(len(payload))
	assert.Equal(t, uint64(len(payload)), atomic.LoadUint64(&r.hdr.Tail))
}

func Test_Reader_NextSpanWrapsAround(t *testing.T) {
	region := newTestRegion(t, 0, 16)
	r, err := NewReader(region)
	require.NoError(t, err)

	// Simulate having already consumed most of one lap so head/tail sit
	// near the wrap boundary, then the producer writes 4 bytes that wrap.
	atomic.StoreUint64(&r.hdr.Tail, 14)
	copy(r.data[14:16], []byte{0xAA, 0xBB})
	copy(r.data[0:2], []byte{0xCC, 0xDD})
	atomic.StoreUint64(&r.hdr.Head, 18)

	span, err := r.NextSpan(context.Background())
	require.NoError(t, err)
	// The reader hands back a contiguous run up to the physical end of
	// the buffer; the caller re-reads after Advance to pick up the
	// wrapped remainder, matching the span-at-a-time contract.
	assert.Equal(t, []byte{0xAA, 0xBB}, span)

	r.Advance(len(span))

	span, err = r.NextSpan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCC, 0xDD}, span)
}

func Test_Reader_DetectsOverrun(t *testing.T) {
	region := newTestRegion(t, 0, 16)
	r, err := NewReader(region)
	require.NoError(t, err)

	// Producer has written more than the ring can hold relative to tail:
	// head-tail exceeds the data area, which can only mean the producer
	// lapped this reader.
	atomic.StoreUint64(&r.hdr.Head, 17)

	_, err = r.NextSpan(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func Test_Reader_CloseUnblocksNextSpan(t *testing.T) {
	region := newTestRegion(t, 0, 4096)
	r, err := NewReader(region)
	require.NoError(t, err)

	require.NoError(t, r.Close())

	_, err = r.NextSpan(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func Test_Reader_ContextCancelUnblocksNextSpan(t *testing.T) {
	region := newTestRegion(t, 0, 4096)
	r, err := NewReader(region)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.NextSpan(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
