package accesslog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Block_AppendAccessKeepsColumnsAligned(t *testing.T) {
	b := NewBlock()

	b.AppendAccess(&Event{Timestamp: 1, Vhost: "a"})
	b.AppendAccess(&Event{Timestamp: 2, Vhost: "b"})

	require.Equal(t, 2, b.Len())
	assert.Equal(t, []uint64{1, 2}, b.Timestamp)
	assert.Equal(t, []string{"a", "b"}, b.Vhost)
}

func Test_Block_Truncate(t *testing.T) {
	b := NewBlock()
	b.AppendAccess(&Event{Timestamp: 1})
	b.AppendAccess(&Event{Timestamp: 2})
	b.AppendAccess(&Event{Timestamp: 3})

	b.Truncate(1)

	require.Equal(t, 1, b.Len())
	assert.Equal(t, []uint64{1}, b.Timestamp)
}

func Test_Block_CommitEmptyIsNoop(t *testing.T) {
	b := NewBlock()

	err := b.Commit(nil, nil)

	assert.NoError(t, err)
}
