package accesslog

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendHeader(buf []byte, frameType FrameType, mask uint16, timestamp uint64) []byte {
	buf = append(buf, byte(frameType))
	buf = binary.LittleEndian.AppendUint16(buf, mask)
	buf = binary.LittleEndian.AppendUint64(buf, timestamp)
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// minimalAccessFrame builds an ACCESS frame carrying only a status field,
// the minimal-event scenario from the round-trip tests.
func minimalAccessFrame(timestamp uint64, status uint16) []byte {
	mask := uint16(1) << FieldStatus
	buf := appendHeader(nil, FrameAccess, mask, timestamp)
	buf = binary.LittleEndian.AppendUint16(buf, status)
	return buf
}

// fullAccessFrame builds an ACCESS frame with every optional field present.
func fullAccessFrame(timestamp uint64) []byte {
	var mask uint16
	for ord := FieldOrd(0); ord < numFields; ord++ {
		mask |= 1 << ord
	}

	buf := appendHeader(nil, FrameAccess, mask, timestamp)
	buf = append(buf, net.ParseIP("2001:db8::1").To16()...)
	buf = append(buf, 'G')  // method
	buf = append(buf, '2')  // version
	buf = binary.LittleEndian.AppendUint16(buf, 200)
	buf = binary.LittleEndian.AppendUint32(buf, 1024)
	buf = binary.LittleEndian.AppendUint32(buf, 15)
	buf = appendString(buf, "example.com")
	buf = appendString(buf, "/index.html")
	buf = appendString(buf, "https://example.com/")
	buf = appendString(buf, "curl/8.0")
	return buf
}

func droppedFrame(timestamp, count uint64) []byte {
	buf := appendHeader(nil, FrameDropped, 0, timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, count)
	return buf
}

func Test_DecodeSpan_MinimalAccess(t *testing.T) {
	span := minimalAccessFrame(100, 404)
	block := NewBlock()

	n, status := DecodeSpan(span, block, nil)

	assert.Equal(t, len(span), n)
	assert.Equal(t, StatusOK, status)
	require.Equal(t, 1, block.Len())
	assert.Equal(t, uint64(100), block.Timestamp[0])
	assert.Equal(t, uint16(404), block.Status[0])
	assert.Equal(t, net.IP(zeroAddress), block.Address[0])
	assert.Equal(t, "", block.Vhost[0])
}

func Test_DecodeSpan_FullAccess(t *testing.T) {
	span := fullAccessFrame(200)
	block := NewBlock()

	n, status := DecodeSpan(span, block, nil)

	assert.Equal(t, len(span), n)
	assert.Equal(t, StatusOK, status)
	require.Equal(t, 1, block.Len())
	assert.Equal(t, net.ParseIP("2001:db8::1").To16(), block.Address[0])
	assert.Equal(t, uint8('G'), block.Method[0])
	assert.Equal(t, uint8('2'), block.Version[0])
	assert.Equal(t, uint16(200), block.Status[0])
	assert.Equal(t, uint32(1024), block.ResponseContentLength[0])
	assert.Equal(t, uint32(15), block.ResponseTime[0])
	assert.Equal(t, "example.com", block.Vhost[0])
	assert.Equal(t, "/index.html", block.URI[0])
	assert.Equal(t, "https://example.com/", block.Referer[0])
	assert.Equal(t, "curl/8.0", block.UserAgent[0])
}

func Test_DecodeSpan_MultipleFrames(t *testing.T) {
	span := append(minimalAccessFrame(1, 200), minimalAccessFrame(2, 201)...)
	block := NewBlock()

	n, status := DecodeSpan(span, block, nil)

	assert.Equal(t, len(span), n)
	assert.Equal(t, StatusOK, status)
	require.Equal(t, 2, block.Len())
	assert.Equal(t, []uint64{1, 2}, block.Timestamp)
}

func Test_DecodeSpan_Dropped(t *testing.T) {
	first := minimalAccessFrame(1, 200)
	span := append(first, droppedFrame(2, 7)...)
	span = append(span, minimalAccessFrame(3, 200)...)

	block := NewBlock()
	var dropped uint64
	n, status := DecodeSpan(span, block, func(count uint64) { dropped = count })

	assert.Equal(t, StatusDropped, status)
	assert.Equal(t, uint64(7), dropped)
	assert.Equal(t, len(first)+headerLen+8, n)
	// The trailing ACCESS frame after the DROPPED frame is not consumed;
	// the caller advances only past what DecodeSpan reports and will see
	// it again on its next NextSpan call.
	require.Equal(t, 1, block.Len())
}

func Test_DecodeSpan_SplitFrame(t *testing.T) {
	full := fullAccessFrame(300)
	block := NewBlock()

	// Feed everything but the last 3 bytes: decoding must stop clean with
	// StatusTruncated and consume nothing from this incomplete frame.
	n, status := DecodeSpan(full[:len(full)-3], block, nil)

	assert.Equal(t, 0, n)
	assert.Equal(t, StatusTruncated, status)
	assert.Equal(t, 0, block.Len())

	// Retrying with the whole frame available succeeds.
	n, status = DecodeSpan(full, block, nil)
	assert.Equal(t, len(full), n)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 1, block.Len())
}

func Test_DecodeSpan_UnknownFrameType(t *testing.T) {
	span := appendHeader(nil, FrameType(99), 0, 1)
	block := NewBlock()

	n, status := DecodeSpan(span, block, nil)

	assert.Equal(t, 0, n)
	assert.Equal(t, StatusUnknown, status)
	assert.Equal(t, 0, block.Len())
}

func Test_DecodeSpan_HeaderTruncated(t *testing.T) {
	span := []byte{byte(FrameAccess), 0, 0}
	block := NewBlock()

	n, status := DecodeSpan(span, block, nil)

	assert.Equal(t, 0, n)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 0, block.Len())
}
