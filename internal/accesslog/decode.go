package accesslog

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/tempesta-tech/tfw-logshipper/common/go/bitset"
)

// Event is one fully-decoded ACCESS row, prior to being appended to a
// Block. Absent fields already carry their zero value.
type Event struct {
	Timestamp             uint64
	Address                net.IP
	Method                 uint8
	Version                uint8
	Status                 uint16
	ResponseContentLength  uint32
	ResponseTime           uint32
	Vhost                  string
	URI                    string
	Referer                string
	UserAgent              string
}

// DroppedFunc is called once per DROPPED frame with the number of events
// the producer dropped since the previous DROPPED frame.
type DroppedFunc func(count uint64)

// DecodeSpan walks frames from the start of span, appending one row to
// block per ACCESS frame, until the span is exhausted or a frame forces a
// stop. It returns the number of bytes making up whole, successfully
// decoded frames (the exact value the caller must pass to the ring
// reader's Advance) and a Status describing why decoding stopped.
//
// Grounded on original_source/utils/tfw_logger.cc's callback()/
// read_access_log_event(): same per-frame dispatch, same field walk in
// ascending ordinal order, same DROPPED-terminates-the-span behavior
// (spec §9 open question — preserved, not "fixed").
func DecodeSpan(span []byte, block *Block, onDropped DroppedFunc) (int, Status) {
	consumed := 0

	for {
		remaining := span[consumed:]
		if len(remaining) < headerLen {
			return consumed, StatusOK
		}

		frameType := FrameType(remaining[0])
		mask := binary.LittleEndian.Uint16(remaining[1:3])
		timestamp := binary.LittleEndian.Uint64(remaining[3:11])

		switch frameType {
		case FrameAccess:
			n, status := decodeAccessEvent(remaining, block, timestamp, mask)
			switch status {
			case StatusOK:
				consumed += n
				continue
			case StatusTruncated:
				return consumed, StatusTruncated
			default:
				return consumed, status
			}

		case FrameDropped:
			body := remaining[headerLen:]
			if len(body) < 8 {
				return consumed, StatusTruncated
			}
			count := binary.LittleEndian.Uint64(body[:8])
			if onDropped != nil {
				onDropped(count)
			}
			consumed += headerLen + 8
			// Preserve the source behavior of returning immediately on a
			// DROPPED frame, discarding any bytes remaining in the span
			// (spec §9 flags this as possibly unintentional; an
			// alternative would continue decoding after the count).
			return consumed, StatusDropped

		default:
			return consumed, StatusUnknown
		}
	}
}

// decodeAccessEvent decodes one ACCESS frame starting at span[0]. On
// success it appends exactly one row to block and returns the frame's
// total length. On truncation it returns (0, StatusTruncated) having made
// no change to block: the event is assembled off to the side and only
// appended to block once every field has decoded successfully, so a
// mid-event bounds failure never leaves block's columns misaligned
// (spec §4.B "Atomicity") without needing an explicit rollback.
func decodeAccessEvent(span []byte, block *Block, timestamp uint64, maskWord uint16) (int, Status) {
	mask := bitset.TinyBitset{}
	bitset.NewBitsTraverser(uint64(maskWord)).Traverse(func(ord uint32) bool {
		mask.Insert(ord)
		return true
	})

	event := &Event{
		Timestamp: timestamp,
		Address:   append(net.IP(nil), zeroAddress...),
	}

	offset := headerLen

	for ord := FieldOrd(0); ord < numFields; ord++ {
		present := mask.Test(uint32(ord))

		if !present {
			continue
		}

		remaining := span[offset:]

		if isStringField(ord) {
			if len(remaining) < 2 {
				return 0, StatusTruncated
			}
			strLen := int(binary.LittleEndian.Uint16(remaining[:2]))
			total := strLen + 2
			if total > len(remaining) {
				return 0, StatusTruncated
			}
			value := string(remaining[2:total])
			setStringField(event, ord, value)
			offset += total
			continue
		}

		fieldLen := fixedFieldLen(ord)
		if fieldLen > len(remaining) {
			return 0, StatusTruncated
		}
		setFixedField(event, ord, remaining[:fieldLen])
		offset += fieldLen
	}

	block.AppendAccess(event)

	return offset, StatusOK
}

func setStringField(e *Event, ord FieldOrd, value string) {
	switch ord {
	case FieldVhost:
		e.Vhost = value
	case FieldURI:
		e.URI = value
	case FieldReferer:
		e.Referer = value
	case FieldUserAgent:
		e.UserAgent = value
	default:
		panic(fmt.Sprintf("accesslog: ordinal %d is not a string field", ord))
	}
}

func setFixedField(e *Event, ord FieldOrd, raw []byte) {
	switch ord {
	case FieldAddress:
		e.Address = append(net.IP(nil), raw[:16]...)
	case FieldMethod:
		e.Method = raw[0]
	case FieldVersion:
		e.Version = raw[0]
	case FieldStatus:
		e.Status = binary.LittleEndian.Uint16(raw[:2])
	case FieldResponseContentLength:
		e.ResponseContentLength = binary.LittleEndian.Uint32(raw[:4])
	case FieldResponseTime:
		e.ResponseTime = binary.LittleEndian.Uint32(raw[:4])
	default:
		panic(fmt.Sprintf("accesslog: ordinal %d is not a fixed field", ord))
	}
}
