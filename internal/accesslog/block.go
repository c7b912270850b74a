package accesslog

import (
	"context"
	"fmt"
	"net"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// columnNames is the fixed schema, in insert order, matching spec §3 and
// §6 ("Schema at the sink matches §3's table exactly, prefixed by
// timestamp UInt64").
var columnNames = []string{
	"timestamp",
	"address",
	"method",
	"version",
	"status",
	"response_content_length",
	"response_time",
	"vhost",
	"uri",
	"referer",
	"user_agent",
}

// zeroAddress is the all-zero 16-byte IPv6 value appended for events with
// the address field absent from the mask.
var zeroAddress = make(net.IP, 16)

// Block is a growing columnar batch keyed by the fixed access-log schema.
// One Block is live per worker at a time; after Commit the caller
// discards it and allocates a fresh one.
//
// Grounded on original_source/utils/tfw_logger.cc's make_block/Block/
// AppendColumn model: a column per field, appended to in lock-step, sent
// to the database as a single block. The "global column factory" (spec
// §9) has no hidden state here: NewBlock is a pure constructor.
type Block struct {
	Timestamp             []uint64
	Address                []net.IP
	Method                 []uint8
	Version                []uint8
	Status                 []uint16
	ResponseContentLength  []uint32
	ResponseTime           []uint32
	Vhost                  []string
	URI                    []string
	Referer                []string
	UserAgent              []string
}

// NewBlock returns an empty block with the fixed schema.
func NewBlock() *Block {
	return &Block{}
}

// Len returns the current row count. All columns are kept at equal
// length; Len reports that shared length.
func (b *Block) Len() int {
	return len(b.Timestamp)
}

// AppendAccess appends one fully-decoded ACCESS event as a single row.
// Called only once the whole event has been parsed without error
// (decode.go's atomicity requirement).
func (b *Block) AppendAccess(e *Event) {
	b.Timestamp = append(b.Timestamp, e.Timestamp)
	b.Address = append(b.Address, e.Address)
	b.Method = append(b.Method, e.Method)
	b.Version = append(b.Version, e.Version)
	b.Status = append(b.Status, e.Status)
	b.ResponseContentLength = append(b.ResponseContentLength, e.ResponseContentLength)
	b.ResponseTime = append(b.ResponseTime, e.ResponseTime)
	b.Vhost = append(b.Vhost, e.Vhost)
	b.URI = append(b.URI, e.URI)
	b.Referer = append(b.Referer, e.Referer)
	b.UserAgent = append(b.UserAgent, e.UserAgent)
}

// Truncate rolls every column back to length n. DecodeSpan does not call
// it: the decoder appends only whole events, so a mid-event bounds failure
// never leaves a partial row to discard (spec §4.B "Atomicity").
func (b *Block) Truncate(n int) {
	b.Timestamp = b.Timestamp[:n]
	b.Address = b.Address[:n]
	b.Method = b.Method[:n]
	b.Version = b.Version[:n]
	b.Status = b.Status[:n]
	b.ResponseContentLength = b.ResponseContentLength[:n]
	b.ResponseTime = b.ResponseTime[:n]
	b.Vhost = b.Vhost[:n]
	b.URI = b.URI[:n]
	b.Referer = b.Referer[:n]
	b.UserAgent = b.UserAgent[:n]
}

// Commit inserts the block into access_log as a single table append. It
// does not clear b; the caller replaces b with NewBlock() afterwards.
func (b *Block) Commit(ctx context.Context, conn driver.Conn) error {
	if b.Len() == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO access_log (%s)", columnsClause()))
	if err != nil {
		return fmt.Errorf("accesslog: failed to prepare batch: %w", err)
	}

	columns := []any{
		b.Timestamp,
		b.Address,
		b.Method,
		b.Version,
		b.Status,
		b.ResponseContentLength,
		b.ResponseTime,
		b.Vhost,
		b.URI,
		b.Referer,
		b.UserAgent,
	}

	for idx, values := range columns {
		if err := batch.Column(idx).Append(values); err != nil {
			return fmt.Errorf("accesslog: failed to append column %q: %w", columnNames[idx], err)
		}
	}

	return batch.Send()
}

func columnsClause() string {
	out := columnNames[0]
	for _, name := range columnNames[1:] {
		out += ", " + name
	}
	return out
}
