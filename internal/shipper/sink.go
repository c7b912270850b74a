package shipper

import (
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// OpenSink opens a ClickHouse native-protocol connection to host, bound to
// the fixed access_log table schema (accesslog.Block.Commit). One
// connection is opened per worker; the driver pools and reconnects
// internally on transient network errors.
//
// Grounded on original_source/utils/tfw_logger.cc's client.Create +
// client.Connect bring-up, adapted to clickhouse-go/v2's native driver.
func OpenSink(host string) (driver.Conn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{host},
		Settings: clickhouse.Settings{
			"async_insert": 0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("shipper: failed to open clickhouse connection to %q: %w", host, err)
	}

	return conn, nil
}
