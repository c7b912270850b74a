// Package accesslog decodes Tempesta FW's binary access-log framing and
// batches the result into columnar blocks ready for a ClickHouse insert.
package accesslog

import "fmt"

// FrameType identifies the kind of frame at the start of an event.
type FrameType uint8

const (
	// FrameAccess carries one HTTP access-log event.
	FrameAccess FrameType = 1
	// FrameDropped carries a count of events the producer dropped since
	// the last dropped-frame.
	FrameDropped FrameType = 2
)

// Field ordinals, in the fixed order the wire format requires them to be
// read. Mirrors original_source/utils/tfw_logger.cc's tfw_fields table.
const (
	FieldAddress FieldOrd = iota
	FieldMethod
	FieldVersion
	FieldStatus
	FieldResponseContentLength
	FieldResponseTime
	FieldVhost
	FieldURI
	FieldReferer
	FieldUserAgent

	numFields
)

// FieldOrd is the ordinal of an optional ACCESS field.
type FieldOrd uint32

// headerLen is the size of the fixed frame header: type + mask + timestamp.
const headerLen = 1 + 2 + 8

// fixedFieldLen returns the encoded length of fixed-size fields (ordinals
// 0-5). String fields (6-9) are length-prefixed and have no fixed length;
// callers must not call this for them.
func fixedFieldLen(ord FieldOrd) int {
	switch ord {
	case FieldAddress:
		return 16
	case FieldMethod, FieldVersion:
		return 1
	case FieldStatus:
		return 2
	case FieldResponseContentLength, FieldResponseTime:
		return 4
	default:
		panic(fmt.Sprintf("accesslog: field %d has no fixed length", ord))
	}
}

func isStringField(ord FieldOrd) bool {
	return ord >= FieldVhost && ord <= FieldUserAgent
}

// Status is the outcome of decoding one span.
type Status int

const (
	// StatusOK means decoding stopped with no error: every whole frame was
	// consumed, and fewer than headerLen bytes (a partial header) may be
	// left unconsumed.
	StatusOK Status = iota
	// StatusTruncated means the span ended mid-frame; the caller should
	// wait for more bytes and retry with a grown span.
	StatusTruncated
	// StatusDropped means a DROPPED frame was processed; per the source
	// behavior (spec open question), span processing stops there even
	// if bytes remain. The alternative — continuing to decode after the
	// 8-byte count — is not implemented, matching the preserved
	// behavior.
	StatusDropped
	// StatusUnknown means an unrecognized frame type byte was
	// encountered; fatal to the worker.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTruncated:
		return "truncated"
	case StatusDropped:
		return "dropped"
	case StatusUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}
